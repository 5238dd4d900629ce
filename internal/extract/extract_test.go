package extract

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"riskradar/internal/clock"
	"riskradar/internal/core"
	"riskradar/internal/fetch"
)

func TestExtractArticleTextFromArticleTag(t *testing.T) {
	body := strings.Repeat("Die Gläubigerversammlung stimmte dem Nachlassvertrag zu. ", 5)
	html := `<html><body>
	  <nav><a href="/">Home</a></nav>
	  <article><h1>Nachlassstundung bewilligt</h1><p>` + body + `</p></article>
	  <footer>Impressum</footer>
	</body></html>`

	text, err := ExtractArticleText([]byte(html))
	if err != nil {
		t.Fatalf("ExtractArticleText: %v", err)
	}
	if !strings.Contains(text, "Nachlassstundung bewilligt") || !strings.Contains(text, "Gläubigerversammlung") {
		t.Errorf("expected headline and body in text, got %q", text)
	}
	if strings.Contains(text, "Impressum") {
		t.Error("boilerplate must be removed")
	}
}

func TestExtractArticleTextIncludesTables(t *testing.T) {
	filler := strings.Repeat("Details zum Verfahren gegen die Schuldnerin. ", 3)
	html := `<html><body><article>
	  <p>` + filler + `</p>
	  <table><tr><td>Forderungssumme</td><td>CHF 2.4 Mio</td></tr></table>
	</article></body></html>`

	text, err := ExtractArticleText([]byte(html))
	if err != nil {
		t.Fatalf("ExtractArticleText: %v", err)
	}
	if !strings.Contains(text, "CHF 2.4 Mio") {
		t.Errorf("expected table cells in text, got %q", text)
	}
}

func TestExtractArticleTextDeduplicatesBlocks(t *testing.T) {
	para := strings.Repeat("Wiederholter Absatz über das Konkursverfahren. ", 3)
	html := `<html><body><article><p>` + para + `</p><p>` + para + `</p></article></body></html>`

	text, err := ExtractArticleText([]byte(html))
	if err != nil {
		t.Fatalf("ExtractArticleText: %v", err)
	}
	if strings.Count(text, "Wiederholter Absatz") != 3 {
		t.Errorf("expected duplicate paragraph collapsed, got %q", text)
	}
}

func TestExtractArticleTextJSONLDFallback(t *testing.T) {
	body := strings.Repeat("Strukturierte Daten tragen den Artikeltext. ", 5)
	ld, _ := json.Marshal(map[string]any{
		"@type": "NewsArticle",
		"mainEntity": map[string]any{
			"articleBody": body,
		},
	})
	html := `<html><head><script type="application/ld+json">` + string(ld) + `</script></head>
	<body><div>kurz</div></body></html>`

	text, err := ExtractArticleText([]byte(html))
	if err != nil {
		t.Fatalf("ExtractArticleText: %v", err)
	}
	if !strings.Contains(text, "Strukturierte Daten") {
		t.Errorf("expected JSON-LD articleBody, got %q", text)
	}
}

func TestIsAggregatorURL(t *testing.T) {
	if !IsAggregatorURL("https://news.google.com/rss/articles/abc") {
		t.Error("news.google.com must be recognized")
	}
	if IsAggregatorURL("https://www.nzz.ch/artikel/x") {
		t.Error("publisher host misclassified as aggregator")
	}
}

func TestDecodePathSegments(t *testing.T) {
	target := "https://www.handelszeitung.ch/artikel/konkurs-xy"
	encoded := base64.URLEncoding.EncodeToString([]byte("\x08\x13" + target + "\xd2\x01\x00"))
	rawURL := "https://news.google.com/rss/articles/" + encoded + "?oc=5"

	if got := decodePathSegments(rawURL); got != target {
		t.Errorf("decodePathSegments = %q, want %q", got, target)
	}

	if got := decodePathSegments("https://news.google.com/rss/articles/short"); got != "" {
		t.Errorf("expected no decode for short segment, got %q", got)
	}
}

func TestValidResolvedURL(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"https://www.nzz.ch/wirtschaft/artikel-xyz", true},
		{"ftp://example.ch/datei", false},
		{"https://news.google.com/articles/abc-def-ghi", false},
		{"https://example.ch/logo.png", false},
		{"https://x.ch/a", false}, // too short
	}
	for _, tc := range cases {
		if got := validResolvedURL(tc.url); got != tc.want {
			t.Errorf("validResolvedURL(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}

func TestResolveViaMetaRefresh(t *testing.T) {
	target := "https://www.cash.ch/news/firmenkonkurs-im-aargau"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head>
		  <meta http-equiv="refresh" content="0; URL=` + target + `">
		</head><body></body></html>`))
	}))
	defer srv.Close()

	client := fetch.NewClient(fetch.Options{UserAgent: "test-agent"})
	resolver := NewResolver(client, nil)

	// The server URL itself is not an aggregator; call the page resolver
	// directly to exercise the meta-refresh path.
	got, err := resolver.resolveViaPage(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("resolveViaPage: %v", err)
	}
	if got != target {
		t.Errorf("resolved %q, want %q", got, target)
	}
}

func TestResolveViaLocationScript(t *testing.T) {
	target := "https://www.fuw.ch/article/bilanzskandal-zieht-kreise"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><script>window.location.href = "` + target + `";</script></body></html>`))
	}))
	defer srv.Close()

	client := fetch.NewClient(fetch.Options{UserAgent: "test-agent"})
	resolver := NewResolver(client, nil)

	got, err := resolver.resolveViaPage(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("resolveViaPage: %v", err)
	}
	if got != target {
		t.Errorf("resolved %q, want %q", got, target)
	}
}

type extractStore struct {
	items    []core.Item
	saved    []core.ExtractedArticle
	failures map[int64]string
}

func (s *extractStore) ItemsNeedingExtraction() ([]core.Item, error) { return s.items, nil }

func (s *extractStore) SaveExtractedArticle(a core.ExtractedArticle) error {
	s.saved = append(s.saved, a)
	return nil
}

func (s *extractStore) RecordExtractionFailure(itemID int64, reason string, now time.Time) error {
	if s.failures == nil {
		s.failures = make(map[int64]string)
	}
	s.failures[itemID] = reason
	return nil
}

func TestExtractorRun(t *testing.T) {
	longBody := strings.Repeat("Der Verwaltungsrat bestätigte die Überschuldung der Gesellschaft. ", 15)
	mux := http.NewServeMux()
	mux.HandleFunc("/good", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><article><p>` + longBody + `</p></article></body></html>`))
	})
	mux.HandleFunc("/thin", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><article><p>Zu kurz.</p></article></body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := &extractStore{items: []core.Item{
		{ID: 1, RawURL: srv.URL + "/good"},
		{ID: 2, RawURL: srv.URL + "/thin"},
		{ID: 3, RawURL: "https://news.google.com/rss/articles/abcdefghijklmnopqrstuvwxyz"},
	}}
	client := fetch.NewClient(fetch.Options{UserAgent: "test-agent"})
	clk := &clock.Fake{Current: time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)}

	e := New(store, client, nil, clk, true)
	result, err := e.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Extracted != 1 || result.Failed != 1 || result.Skipped != 1 {
		t.Errorf("expected 1 extracted / 1 failed / 1 skipped, got %+v", result)
	}
	if len(store.saved) != 1 || store.saved[0].ItemID != 1 {
		t.Fatalf("expected item 1 saved, got %+v", store.saved)
	}
	if store.saved[0].ExtractionMethod != core.ExtractionHeuristic {
		t.Errorf("expected heuristic method, got %s", store.saved[0].ExtractionMethod)
	}
	if _, ok := store.failures[2]; !ok {
		t.Error("expected failure recorded for thin article")
	}
}

func TestExtractorBrowserFallback(t *testing.T) {
	longText := strings.Repeat("Vom Browser gerenderter Artikeltext über die Zahlungsunfähigkeit. ", 15)

	browserSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/extract" {
			w.WriteHeader(http.StatusOK)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"text": longText})
	}))
	defer browserSrv.Close()

	pageSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div id="app"></div></body></html>`))
	}))
	defer pageSrv.Close()

	store := &extractStore{items: []core.Item{{ID: 1, RawURL: pageSrv.URL}}}
	client := fetch.NewClient(fetch.Options{UserAgent: "test-agent"})
	browser := NewBrowserClient(browserSrv.URL, 5*time.Second, 3)
	clk := &clock.Fake{Current: time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)}

	e := New(store, client, browser, clk, true)
	result, err := e.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Extracted != 1 {
		t.Fatalf("expected browser extraction, got %+v", result)
	}
	if store.saved[0].ExtractionMethod != core.ExtractionBrowser {
		t.Errorf("expected browser method, got %s", store.saved[0].ExtractionMethod)
	}
}
