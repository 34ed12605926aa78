// Package affiliate rewrites product URLs so they credit a configured
// affiliate account.
package affiliate

import (
	"fmt"
	"net/url"
	"strings"

	"DealsIngestor/internal/domain"
)

// Network identifies an affiliate program.
type Network string

const (
	Amazon   Network = "amazon"
	INRDeals Network = "inrdeals"
	Cuelinks Network = "cuelinks"
	EarnKaro Network = "earnkaro"
	Deodap   Network = "deodap"
	// None preserves the URL untouched.
	None Network = "none"
	// Auto picks a network from the product host.
	Auto Network = "auto"
)

const maxUnwrapDepth = 4

type scheme struct {
	// param networks carry the tag as a query parameter on the product URL.
	param string
	// wrapper networks redirect through their own host.
	base      string
	host      string
	idKey     string
	targetKey string
	extra     map[string]string
}

func (s scheme) wrapper() bool { return s.base != "" }

var schemes = map[Network]scheme{
	Amazon:   {param: "tag"},
	Deodap:   {param: "ref"},
	INRDeals: {base: "https://inrdeals.com/redirect", host: "inrdeals.com", idKey: "id", targetKey: "url"},
	Cuelinks: {base: "https://linksredirect.com/", host: "linksredirect.com", idKey: "cid", targetKey: "url", extra: map[string]string{"source": "linkkit"}},
	EarnKaro: {base: "https://earnkaro.com/api/redirect", host: "earnkaro.com", idKey: "ref", targetKey: "url"},
}

// foreignParams are tracking parameters removed before a tag is applied.
var foreignParams = []string{
	"tag", "ascsubtag", "linkCode", "linkId", "camp", "creative", "creativeASIN",
	"ref", "ref_", "affid", "affExtParam1", "affExtParam2",
	"utm_source", "utm_medium", "utm_campaign", "utm_content", "utm_term",
}

// Route is the per-channel tagging instruction.
type Route struct {
	Network Network
	Value   string
}

// RouteFor builds a route from a channel entry.
func RouteFor(ch domain.Channel) Route {
	return Route{Network: Network(strings.ToLower(ch.Network)), Value: ch.TagValue}
}

// Result is a tagged URL.
type Result struct {
	URL     string
	Network Network
	Applied bool
}

// Tagger applies affiliate routes. Defaults supply tag values for networks
// reached through Auto detection; Fallback is used when detection finds nothing.
type Tagger struct {
	defaults map[Network]string
	fallback Network
}

// NewTagger builds a tagger.
func NewTagger(defaults map[Network]string, fallback Network) *Tagger {
	copied := make(map[Network]string, len(defaults))
	for k, v := range defaults {
		copied[k] = v
	}
	return &Tagger{defaults: copied, fallback: fallback}
}

// Tag rewrites raw for route. Tagging an already tagged URL yields the same URL.
func (t *Tagger) Tag(raw string, route Route) (Result, error) {
	network := route.Network
	if network == None {
		return Result{URL: raw, Network: None}, nil
	}
	target, err := Unwrap(raw)
	if err != nil {
		return Result{}, domain.NewTaggingError(string(network), "parse url", err)
	}
	value := route.Value
	if network == "" || network == Auto {
		network = Detect(target)
		if network == "" {
			network = t.fallback
		}
		if network == "" {
			return Result{}, domain.NewTaggingError(string(Auto), "no network for host "+domain.HostOf(target), nil)
		}
		if network == None {
			return Result{URL: raw, Network: None}, nil
		}
		if v := t.defaults[network]; v != "" {
			value = v
		}
	}
	if value == "" {
		value = t.defaults[network]
	}
	sc, ok := schemes[network]
	if !ok {
		return Result{}, domain.NewTaggingError(string(network), "unknown affiliate network", nil)
	}
	if value == "" {
		return Result{}, domain.NewTaggingError(string(network), "no tag value configured", nil)
	}

	out, err := apply(sc, target, value)
	if err != nil {
		return Result{}, domain.NewTaggingError(string(network), "rewrite url", err)
	}
	if err := Verify(out, network, value); err != nil {
		return Result{}, domain.NewTaggingError(string(network), "verify", err)
	}
	return Result{URL: out, Network: network, Applied: true}, nil
}

func apply(sc scheme, target, value string) (string, error) {
	clean, err := stripForeign(target)
	if err != nil {
		return "", err
	}
	if !sc.wrapper() {
		u, err := url.Parse(clean)
		if err != nil {
			return "", err
		}
		q := u.Query()
		q.Set(sc.param, value)
		u.RawQuery = q.Encode()
		return u.String(), nil
	}
	u, err := url.Parse(sc.base)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set(sc.idKey, value)
	q.Set(sc.targetKey, clean)
	for k, v := range sc.extra {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Detect picks a param network from the product host.
func Detect(raw string) Network {
	host := domain.HostOf(raw)
	switch {
	case strings.HasPrefix(host, "amazon.") || strings.Contains(host, ".amazon.") || host == "amzn.to" || host == "a.co":
		return Amazon
	case host == "deodap.in" || strings.HasSuffix(host, ".deodap.in") || host == "deodap.com":
		return Deodap
	}
	return ""
}

// Unwrap strips known redirect wrappers and returns the inner product URL.
func Unwrap(raw string) (string, error) {
	current := raw
	for depth := 0; depth < maxUnwrapDepth; depth++ {
		u, err := url.Parse(current)
		if err != nil {
			return "", err
		}
		inner := ""
		host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		for _, sc := range schemes {
			if sc.wrapper() && host == sc.host {
				inner = u.Query().Get(sc.targetKey)
				break
			}
		}
		if inner == "" {
			return current, nil
		}
		current = inner
	}
	return current, nil
}

func stripForeign(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.RawQuery == "" {
		return raw, nil
	}
	q := u.Query()
	for _, p := range foreignParams {
		q.Del(p)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Verify re-parses tagged and checks it carries exactly one tag with value.
func Verify(tagged string, network Network, value string) error {
	sc, ok := schemes[network]
	if !ok {
		return fmt.Errorf("unknown network %q", network)
	}
	u, err := url.Parse(tagged)
	if err != nil {
		return err
	}
	q := u.Query()
	key := sc.param
	if sc.wrapper() {
		if strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.") != sc.host {
			return fmt.Errorf("host %q is not %s", u.Hostname(), sc.host)
		}
		target, err := url.Parse(q.Get(sc.targetKey))
		if err != nil || !target.IsAbs() {
			return fmt.Errorf("missing wrapped target url")
		}
		key = sc.idKey
	}
	if got := q[key]; len(got) != 1 || got[0] != value {
		return fmt.Errorf("%s=%v, want exactly %q", key, got, value)
	}
	return nil
}
