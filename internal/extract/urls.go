// Package extract pulls product links and regex-derived product fields out of
// free-form channel text.
package extract

import (
	"strings"

	"mvdan.cc/xurls/v2"

	"DealsIngestor/internal/domain"
)

// ShortenerDomains are hosts that only redirect to the real product page.
var ShortenerDomains = []string{
	"bit.ly", "tinyurl.com", "amzn.to", "amzn.in", "fkrt.it", "fkrt.cc", "bitli.in",
	"goo.gl", "t.co", "short.link", "cutt.ly", "rb.gy", "is.gd", "v.gd",
	"ow.ly", "buff.ly", "a.co", "myntr.it", "ajiio.in",
}

var linkFinder = xurls.Relaxed()

// productLink reports whether a relaxed match is a web link. Schemeless
// matches need a www. prefix or a path so bare mentions like "Amazon.in" and
// e-mail addresses are skipped.
func productLink(match string) bool {
	lower := strings.ToLower(match)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return true
	}
	if strings.Contains(lower, "://") || strings.Contains(lower, "@") || strings.HasPrefix(lower, "mailto:") {
		return false
	}
	return strings.HasPrefix(lower, "www.") || strings.Contains(lower, "/")
}

const trailingPunct = ".,;:!?*'\"”’»…"

// URLs returns product links in order of first appearance. Markdown links,
// angle-bracketed links and bare shortener links are recognised, entity URLs
// (links attached to text by the messaging platform) are appended after the
// inline ones. Duplicates collapse onto their first position.
func URLs(text string, entityURLs []string) []domain.ExtractedURL {
	var found []domain.ExtractedURL
	seen := map[string]bool{}
	add := func(raw string, start, end int) {
		clean, ok := cleanURL(raw)
		if !ok || seen[clean] {
			return
		}
		seen[clean] = true
		found = append(found, domain.ExtractedURL{Raw: clean, Start: start, End: end})
	}

	for _, loc := range linkFinder.FindAllStringIndex(text, -1) {
		if productLink(text[loc[0]:loc[1]]) {
			add(text[loc[0]:loc[1]], loc[0], loc[1])
		}
	}
	for _, raw := range entityURLs {
		add(raw, len(text), len(text))
	}
	return found
}

func cleanURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	for {
		trimmed := strings.TrimRight(raw, trailingPunct)
		if strings.HasSuffix(trimmed, ")") && strings.Count(trimmed, "(") < strings.Count(trimmed, ")") {
			trimmed = trimmed[:len(trimmed)-1]
		}
		if trimmed == raw {
			break
		}
		raw = trimmed
	}
	if raw == "" {
		return "", false
	}
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		raw = "https://" + raw
	}
	host := domain.HostOf(raw)
	if host == "" || !strings.Contains(host, ".") {
		return "", false
	}
	return raw, true
}

// IsShortener reports whether host belongs to a known shortener.
func IsShortener(host string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	for _, d := range ShortenerDomains {
		if host == d {
			return true
		}
	}
	return false
}

// FilterHosts drops URLs whose host equals or is a subdomain of any ignored host.
func FilterHosts(urls []domain.ExtractedURL, ignored []string) []domain.ExtractedURL {
	if len(ignored) == 0 {
		return urls
	}
	out := urls[:0:0]
	for _, u := range urls {
		host := domain.HostOf(u.Raw)
		skip := false
		for _, ig := range ignored {
			ig = strings.ToLower(ig)
			if host == ig || strings.HasSuffix(host, "."+ig) {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, u)
		}
	}
	return out
}
