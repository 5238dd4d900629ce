package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetConditional(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte("<rss/>"))
	}))
	defer srv.Close()

	client := NewClient(Options{UserAgent: "test-agent"})

	body, notModified, err := client.GetConditional(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if notModified || string(body) != "<rss/>" {
		t.Fatalf("first fetch = (%q, %v), want body", body, notModified)
	}

	body, notModified, err = client.GetConditional(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if !notModified || body != nil {
		t.Errorf("second fetch = (%q, %v), want not-modified", body, notModified)
	}
	if requests != 2 {
		t.Errorf("expected 2 requests, got %d", requests)
	}
}

func TestGetRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	client := NewClient(Options{UserAgent: "test-agent"})
	if _, err := client.Get(context.Background(), srv.URL); err == nil {
		t.Error("expected error on 410")
	}
}

func TestRobotsDisallowed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(Options{UserAgent: "test-agent", RespectRobots: true})

	if _, err := client.Get(context.Background(), srv.URL+"/public/page"); err != nil {
		t.Fatalf("allowed path: %v", err)
	}
	if _, err := client.Get(context.Background(), srv.URL+"/private/page"); err == nil {
		t.Error("expected robots denial for /private/")
	}
}
