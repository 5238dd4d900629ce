package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"riskradar/internal/logger"
)

// BrowserClient talks to the headless-browser sidecar over HTTP. It owns a
// single browser session: the sidecar keeps one page context alive between
// calls, so the client recycles it every few articles and resets it on any
// fault.
type BrowserClient struct {
	endpoint     string
	http         *http.Client
	navTimeout   time.Duration
	recycleEvery int

	mu    sync.Mutex
	count int
}

// NewBrowserClient creates a client for the sidecar at endpoint. A zero
// recycleEvery disables periodic recycling.
func NewBrowserClient(endpoint string, navTimeout time.Duration, recycleEvery int) *BrowserClient {
	if navTimeout == 0 {
		navTimeout = 60 * time.Second
	}
	return &BrowserClient{
		endpoint:     endpoint,
		http:         &http.Client{Timeout: navTimeout + 5*time.Second},
		navTimeout:   navTimeout,
		recycleEvery: recycleEvery,
	}
}

type browserRequest struct {
	URL        string `json:"url"`
	TimeoutSec int    `json:"timeout_sec"`
}

type browserResponse struct {
	Text     string `json:"text"`
	FinalURL string `json:"final_url"`
	Error    string `json:"error"`
}

// ExtractText navigates to the URL in the sidecar and returns the rendered
// page text. Every Nth call recycles the session first; any fault resets it.
func (b *BrowserClient) ExtractText(ctx context.Context, rawURL string) (string, error) {
	b.maybeRecycle(ctx)

	resp, err := b.call(ctx, "/extract", rawURL)
	if err != nil {
		b.reset(ctx)
		return "", err
	}
	return resp.Text, nil
}

// ResolveURL navigates to the URL and returns where the page ended up.
func (b *BrowserClient) ResolveURL(ctx context.Context, rawURL string) (string, error) {
	b.maybeRecycle(ctx)

	resp, err := b.call(ctx, "/navigate", rawURL)
	if err != nil {
		b.reset(ctx)
		return "", err
	}
	return resp.FinalURL, nil
}

func (b *BrowserClient) call(ctx context.Context, path, rawURL string) (*browserResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, b.navTimeout)
	defer cancel()

	payload, err := json.Marshal(browserRequest{URL: rawURL, TimeoutSec: int(b.navTimeout.Seconds())})
	if err != nil {
		return nil, fmt.Errorf("failed to encode browser request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create browser request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("browser sidecar unreachable: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read browser response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("browser sidecar returned status %d", httpResp.StatusCode)
	}

	var resp browserResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode browser response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("browser navigation failed: %s", resp.Error)
	}
	return &resp, nil
}

// maybeRecycle resets the session on every Nth article.
func (b *BrowserClient) maybeRecycle(ctx context.Context) {
	b.mu.Lock()
	b.count++
	due := b.recycleEvery > 0 && b.count%b.recycleEvery == 0
	b.mu.Unlock()
	if due {
		b.reset(ctx)
	}
}

// reset asks the sidecar for a fresh session. Failures are logged only; the
// next call will surface a real error if the sidecar is gone.
func (b *BrowserClient) reset(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+"/reset", nil)
	if err != nil {
		return
	}
	resp, err := b.http.Do(req)
	if err != nil {
		logger.Warn("Browser session reset failed", "error", err.Error())
		return
	}
	resp.Body.Close()
}
