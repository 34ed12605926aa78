package parser

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"DealsIngestor/internal/domain"
	"DealsIngestor/internal/extract"
	"DealsIngestor/internal/ports"
	"DealsIngestor/internal/resilience"
	"DealsIngestor/internal/scanner"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

var (
	digitExpr    = regexp.MustCompile(`\d`)
	styleURLExpr = regexp.MustCompile(`url\(["']?([^"')]+)["']?\)`)
	imageAttrs   = []string{"data-old-hires", "src", "data-src"}
)

// HTTPScraper extracts product fields from a page using the profile matched
// to the page host.
type HTTPScraper struct {
	registry *scanner.Registry
	static   Fetcher
	render   Fetcher
	guard    ports.CallGuard
	logger   *slog.Logger
}

var _ ports.MetadataScraper = (*HTTPScraper)(nil)

// NewHTTPScraper wires the fetchers. render may be nil, in which case
// render profiles are fetched statically. guard may be nil.
func NewHTTPScraper(reg *scanner.Registry, static, render Fetcher, guard ports.CallGuard, logger *slog.Logger) *HTTPScraper {
	if static == nil {
		static = NewHTTPFetcher(nil, "")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HTTPScraper{registry: reg, static: static, render: render, guard: guard, logger: logger}
}

// Scrape fetches u and returns a candidate with Source=scraper.
func (s *HTTPScraper) Scrape(ctx context.Context, u domain.ResolvedURL) (domain.ProductCandidate, error) {
	target := u.Final
	if target == "" {
		target = u.Original
	}
	host := domain.HostOf(target)
	profile, err := s.registry.Resolve(host)
	if err != nil {
		return domain.ProductCandidate{}, domain.NewScrapeError(target, false, "select profile", err)
	}

	fetcher := s.static
	if profile.Render && s.render != nil {
		fetcher = s.render
	}
	s.logger.Debug("scrape page", "url", target, "profile", profile.Name, "render", profile.Render && s.render != nil)

	var page Page
	fetch := func(ctx context.Context) error {
		p, err := fetcher.Fetch(ctx, target)
		if err != nil {
			return err
		}
		if err := detectBlock(p); err != nil {
			return err
		}
		page = p
		return nil
	}
	if s.guard != nil {
		err = s.guard.Do(ctx, host, fetch)
	} else {
		err = fetch(ctx)
	}
	if err != nil {
		return domain.ProductCandidate{}, domain.NewScrapeError(target, blocked(err), "fetch", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return domain.ProductCandidate{}, domain.NewScrapeError(target, false, "parse document", err)
	}
	base, _ := url.Parse(firstNonEmpty(page.URL, target))

	c := extractCandidate(doc, profile, base)
	c.URL = u
	if c.Empty() {
		return domain.ProductCandidate{}, domain.NewScrapeError(target, false, "no title or price found", nil)
	}
	return c, nil
}

func blocked(err error) bool {
	if errors.Is(err, resilience.ErrBlocked) {
		return true
	}
	var status *resilience.StatusError
	if errors.As(err, &status) {
		switch status.Code {
		case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
			return true
		}
	}
	return false
}

func extractCandidate(doc *goquery.Document, p scanner.Profile, base *url.URL) domain.ProductCandidate {
	c := domain.ProductCandidate{
		Title:             firstValue(doc, p.Fields[scanner.FieldTitle], nil),
		PriceText:         firstValue(doc, p.Fields[scanner.FieldPrice], hasDigit),
		OriginalPriceText: firstValue(doc, p.Fields[scanner.FieldOriginalPrice], hasDigit),
		Description:       firstValue(doc, p.Fields[scanner.FieldDescription], nil),
		RatingText:        firstValue(doc, p.Fields[scanner.FieldRating], hasDigit),
		ReviewCountText:   firstValue(doc, p.Fields[scanner.FieldReviewCount], hasDigit),
		ImageURL:          firstImage(doc, p.Fields[scanner.FieldImage], base),
		Source:            domain.SourceScraper,
	}
	bodyText := doc.Find("body").Text()
	if p.Generic && c.PriceText == "" {
		c.PriceText = priceByAttribute(doc)
		if c.PriceText == "" {
			c.PriceText = extract.FirstMoney(collapse(bodyText))
		}
	}
	c.LimitedOffer = extract.HasLimitedOffer(bodyText)
	return c
}

func firstValue(doc *goquery.Document, selectors []scanner.Selector, accept func(string) bool) string {
	for _, sel := range selectors {
		var found string
		doc.Find(sel.CSS).EachWithBreak(func(_ int, node *goquery.Selection) bool {
			v := readValue(node, sel.Attr)
			if v == "" || (accept != nil && !accept(v)) {
				return true
			}
			found = v
			return false
		})
		if found != "" {
			return found
		}
	}
	return ""
}

func readValue(node *goquery.Selection, attr string) string {
	if attr == "" {
		return collapse(node.Text())
	}
	v, _ := node.Attr(attr)
	if attr == "style" {
		if m := styleURLExpr.FindStringSubmatch(v); m != nil {
			return m[1]
		}
		return ""
	}
	return collapse(v)
}

func firstImage(doc *goquery.Document, selectors []scanner.Selector, base *url.URL) string {
	for _, sel := range selectors {
		var found string
		doc.Find(sel.CSS).EachWithBreak(func(_ int, node *goquery.Selection) bool {
			if sel.Attr != "" {
				found = readValue(node, sel.Attr)
			} else {
				for _, attr := range imageAttrs {
					if v, ok := node.Attr(attr); ok && v != "" && !strings.HasPrefix(v, "data:") {
						found = strings.TrimSpace(v)
						break
					}
				}
			}
			return found == ""
		})
		if found != "" {
			return absolute(base, found)
		}
	}
	return ""
}

// priceByAttribute looks at any element whose class or id mentions price.
func priceByAttribute(doc *goquery.Document) string {
	var found string
	doc.Find(`[class*="price"], [id*="price"]`).EachWithBreak(func(_ int, node *goquery.Selection) bool {
		found = extract.FirstMoney(collapse(node.Text()))
		return found == ""
	})
	return found
}

func absolute(base *url.URL, ref string) string {
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base == nil || r.IsAbs() {
		return r.String()
	}
	return base.ResolveReference(r).String()
}

func hasDigit(s string) bool { return digitExpr.MatchString(s) }

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
