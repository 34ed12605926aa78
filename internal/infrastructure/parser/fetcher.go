package parser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"DealsIngestor/internal/resilience"
)

const maxBodyBytes = 4 << 20

// Page is a fetched document.
type Page struct {
	URL    string
	Status int
	Body   []byte
}

// Fetcher loads a page.
type Fetcher interface {
	Fetch(ctx context.Context, target string) (Page, error)
}

// HTTPFetcher is the plain net/http fetcher used for static pages.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher wires an HTTP client; a nil client gets a 20s timeout.
func NewHTTPFetcher(client *http.Client, userAgent string) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &HTTPFetcher{client: client, userAgent: userAgent}
}

// Fetch returns the page body. Statuses that signal blocking wrap
// resilience.ErrBlocked; other non-2xx statuses are *resilience.StatusError.
func (f *HTTPFetcher) Fetch(ctx context.Context, target string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Page{}, resilience.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-IN,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Page{}, fmt.Errorf("read document: %w", err)
	}
	page := Page{URL: resp.Request.URL.String(), Status: resp.StatusCode, Body: body}

	status := &resilience.StatusError{URL: target, Code: resp.StatusCode}
	switch {
	case resp.StatusCode == http.StatusForbidden:
		return page, fmt.Errorf("%w: %w", resilience.ErrBlocked, status)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return page, status
	}
	return page, nil
}

// blockMarkers appear on bot walls rather than product pages.
var blockMarkers = []string{
	"robot check",
	"type the characters you see",
	"api-services-support@amazon.com",
	"/errors/validatecaptcha",
	"are you a human",
	"unusual traffic from your computer",
	"access denied",
}

// detectBlock reports whether a 2xx page is really a block page.
func detectBlock(page Page) error {
	lower := strings.ToLower(string(page.Body))
	for _, marker := range blockMarkers {
		if strings.Contains(lower, marker) {
			return fmt.Errorf("%w: page contains %q", resilience.ErrBlocked, marker)
		}
	}
	return nil
}
