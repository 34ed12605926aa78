package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"DealsIngestor/internal/domain"
	"DealsIngestor/internal/extract"
	"DealsIngestor/internal/ports"
	"DealsIngestor/internal/resilience"
)

const (
	defaultMaxHops   = 5
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

var (
	errTooManyHops  = errors.New("too many redirects")
	errRedirectLoop = errors.New("redirect loop")
)

// HTTPResolver follows redirects one hop at a time so loops and hop limits
// are observable.
type HTTPResolver struct {
	client    *http.Client
	guard     ports.CallGuard
	maxHops   int
	userAgent string
	logger    *slog.Logger
}

// Options tune an HTTPResolver. Zero values select defaults.
type Options struct {
	MaxHops   int
	Timeout   time.Duration
	UserAgent string
	Transport http.RoundTripper
}

// New builds a resolver. guard may be nil.
func New(opts Options, guard ports.CallGuard, logger *slog.Logger) *HTTPResolver {
	if opts.MaxHops <= 0 {
		opts.MaxHops = defaultMaxHops
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	client := &http.Client{
		Transport: opts.Transport,
		Timeout:   opts.Timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &HTTPResolver{client: client, guard: guard, maxHops: opts.MaxHops, userAgent: opts.UserAgent, logger: logger}
}

// Resolve returns the final URL after following at most maxHops redirects.
func (r *HTTPResolver) Resolve(ctx context.Context, u domain.ExtractedURL) (domain.ResolvedURL, error) {
	result := domain.ResolvedURL{Original: u.Raw}
	if host := domain.HostOf(u.Raw); extract.IsShortener(host) {
		result.ShortenerDomain = host
	}

	current := u.Raw
	visited := map[string]bool{}
	for hops := 0; ; hops++ {
		if visited[current] {
			return result, domain.NewResolutionError(u.Raw, "follow", fmt.Errorf("%w at %s", errRedirectLoop, current))
		}
		visited[current] = true

		next, err := r.step(ctx, current)
		if err != nil {
			return result, domain.NewResolutionError(u.Raw, "follow", err)
		}
		if next == "" {
			result.Final = current
			result.Hops = hops
			result.Resolved = true
			r.logger.Debug("resolved url", "url", u.Raw, "final", current, "hops", hops)
			return result, nil
		}
		if hops+1 > r.maxHops {
			return result, domain.NewResolutionError(u.Raw, "follow", fmt.Errorf("%w: more than %d", errTooManyHops, r.maxHops))
		}
		current = next
	}
}

type hopResult struct {
	location string
	status   int
}

func (h hopResult) redirect() bool { return h.location != "" }

// headRejected reports statuses after which HEAD is retried as GET.
func headRejected(status int) bool {
	switch status {
	case http.StatusMethodNotAllowed, http.StatusNotImplemented, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

// step issues HEAD, falling back to GET, and returns the redirect target or
// "" when current is final.
func (r *HTTPResolver) step(ctx context.Context, current string) (string, error) {
	var res hopResult
	fetch := func(ctx context.Context) error {
		var err error
		res, err = r.hop(ctx, http.MethodHead, current)
		if err != nil || (!res.redirect() && headRejected(res.status)) {
			res, err = r.hop(ctx, http.MethodGet, current)
		}
		return err
	}

	var err error
	if r.guard != nil {
		err = r.guard.Do(ctx, domain.HostOf(current), fetch)
	} else {
		err = fetch(ctx)
	}
	if err != nil {
		return "", err
	}
	return res.location, nil
}

func (r *HTTPResolver) hop(ctx context.Context, method, target string) (hopResult, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return hopResult{}, resilience.Permanent(err)
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")

	resp, err := r.client.Do(req)
	if err != nil {
		return hopResult{}, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	res := hopResult{status: resp.StatusCode}
	switch {
	case resp.StatusCode >= 500:
		return res, &resilience.StatusError{URL: target, Code: resp.StatusCode}
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		header := resp.Header.Get("Location")
		if header == "" {
			return res, nil
		}
		next, err := resolveReference(target, header)
		if err != nil {
			return res, resilience.Permanent(err)
		}
		res.location = next
	}
	return res, nil
}

func resolveReference(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}
