package parser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// ChromeOptions tune the headless browser.
type ChromeOptions struct {
	Timeout   time.Duration
	Settle    time.Duration
	UserAgent string
	ExecPath  string
}

// ChromeFetcher renders pages in headless Chrome for profiles whose prices
// are filled in by scripts.
type ChromeFetcher struct {
	opts    []chromedp.ExecAllocatorOption
	timeout time.Duration
	settle  time.Duration
}

// NewChromeFetcher prepares allocator options; Chrome starts per fetch.
func NewChromeFetcher(o ChromeOptions) *ChromeFetcher {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Settle <= 0 {
		o.Settle = 1500 * time.Millisecond
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUserAgent
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(o.UserAgent),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.Flag("disable-gpu", true),
	)
	if o.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.ExecPath))
	}
	return &ChromeFetcher{opts: opts, timeout: o.Timeout, settle: o.Settle}
}

// Fetch navigates to target and returns the rendered DOM.
func (f *ChromeFetcher) Fetch(ctx context.Context, target string) (Page, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, f.opts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	runCtx, cancel := context.WithTimeout(browserCtx, f.timeout)
	defer cancel()

	var html, location string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(f.settle),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return Page{}, fmt.Errorf("render %s: %w", target, err)
	}
	return Page{URL: location, Status: 200, Body: []byte(html)}, nil
}
