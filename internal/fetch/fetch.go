// Package fetch provides the shared HTTP client used by the collector and
// the content extractor: configured user agent, language preference,
// transparent content decoding, an optional robots policy and a crawl delay.
package fetch

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/temoto/robotstxt"
	"golang.org/x/time/rate"

	"riskradar/internal/logger"
)

// maxBodySize caps response bodies; article pages beyond this are cut off
// rather than ballooning memory.
const maxBodySize = 10 << 20 // 10 MiB

// ErrRobotsDisallowed marks URLs the robots policy forbids.
var ErrRobotsDisallowed = fmt.Errorf("fetch disallowed by robots policy")

// Options configures a Client.
type Options struct {
	UserAgent      string
	AcceptLanguage string
	Timeout        time.Duration
	CrawlDelay     time.Duration
	RespectRobots  bool
}

// Client is a rate-limited fetching client shared within one step.
type Client struct {
	http    *http.Client
	opts    Options
	limiter *rate.Limiter

	mu         sync.Mutex
	robots     map[string]*robotstxt.RobotsData // per-host policy cache
	validators map[string]validator             // per-URL conditional-GET state
}

// validator holds the cache validators of a previously fetched URL.
type validator struct {
	etag         string
	lastModified string
}

// NewClient creates a fetch client.
func NewClient(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 12 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.CrawlDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.CrawlDelay), 1)
	}

	return &Client{
		http:    &http.Client{Timeout: opts.Timeout},
		opts:    opts,
		limiter: limiter,
		robots:  make(map[string]*robotstxt.RobotsData),

		validators: make(map[string]validator),
	}
}

// GetConditional fetches a URL with If-None-Match / If-Modified-Since built
// from the previous fetch of the same URL. notModified is true on a 304; the
// body is nil in that case.
func (c *Client) GetConditional(ctx context.Context, rawURL string) (body []byte, notModified bool, err error) {
	c.mu.Lock()
	val := c.validators[rawURL]
	c.mu.Unlock()

	extra := make(map[string]string)
	if val.etag != "" {
		extra["If-None-Match"] = val.etag
	}
	if val.lastModified != "" {
		extra["If-Modified-Since"] = val.lastModified
	}

	body, headers, err := c.GetWithHeaders(ctx, rawURL, extra)
	if err != nil {
		return nil, false, err
	}
	if body == nil {
		return nil, true, nil
	}

	if headers != nil {
		c.mu.Lock()
		c.validators[rawURL] = validator{
			etag:         headers.Get("ETag"),
			lastModified: headers.Get("Last-Modified"),
		}
		c.mu.Unlock()
	}
	return body, false, nil
}

// Get fetches a URL and returns the decoded body. Non-2xx statuses are
// errors. The context bounds the whole operation.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	body, _, err := c.GetWithHeaders(ctx, rawURL, nil)
	return body, err
}

// GetWithHeaders fetches a URL with extra request headers and returns the
// decoded body plus the response headers (for conditional-GET callers).
func (c *Client) GetWithHeaders(ctx context.Context, rawURL string, extra map[string]string) ([]byte, http.Header, error) {
	if c.opts.RespectRobots {
		allowed, err := c.robotsAllowed(ctx, rawURL)
		if err != nil {
			logger.Debug("Robots check failed, proceeding", "url", rawURL, "error", err.Error())
		} else if !allowed {
			return nil, nil, fmt.Errorf("%w: %s", ErrRobotsDisallowed, rawURL)
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept-Encoding", "gzip, deflate, br, zstd")
	if c.opts.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", c.opts.AcceptLanguage)
	}
	for k, v := range extra {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil, resp.Header, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.Header, fmt.Errorf("fetch of %s returned status %d", rawURL, resp.StatusCode)
	}

	body, err := decodeBody(resp)
	if err != nil {
		return nil, resp.Header, fmt.Errorf("failed to read body of %s: %w", rawURL, err)
	}
	return body, resp.Header, nil
}

// decodeBody handles gzip, deflate, br and zstd content encodings.
func decodeBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = io.LimitReader(resp.Body, maxBodySize)

	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		gz, err := gzip.NewReader(reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		fl := flate.NewReader(reader)
		defer fl.Close()
		reader = fl
	case "br":
		reader = brotli.NewReader(reader)
	case "zstd":
		zr, err := zstd.NewReader(reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer zr.Close()
		reader = zr
	}

	return io.ReadAll(reader)
}

// robotsAllowed fetches and caches the host's robots.txt and checks the
// path against the configured user agent.
func (c *Client) robotsAllowed(ctx context.Context, rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("failed to parse URL: %w", err)
	}

	c.mu.Lock()
	data, ok := c.robots[u.Host]
	c.mu.Unlock()

	if !ok {
		robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
		if err != nil {
			return false, err
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)

		resp, err := c.http.Do(req)
		if err != nil {
			return false, err
		}
		defer resp.Body.Close()

		data, err = robotstxt.FromResponse(resp)
		if err != nil {
			return false, fmt.Errorf("failed to parse robots.txt: %w", err)
		}

		c.mu.Lock()
		c.robots[u.Host] = data
		c.mu.Unlock()
	}

	group := data.FindGroup(c.opts.UserAgent)
	return group.Test(u.Path), nil
}
