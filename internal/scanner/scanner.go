package scanner

import (
	"fmt"
	"strings"
)

// Field is a product attribute a profile knows how to locate.
type Field string

const (
	FieldTitle         Field = "title"
	FieldPrice         Field = "price"
	FieldOriginalPrice Field = "original_price"
	FieldImage         Field = "image"
	FieldDescription   Field = "description"
	FieldRating        Field = "rating"
	FieldReviewCount   Field = "review_count"
)

// Fields lists every field in evaluation order.
var Fields = []Field{FieldTitle, FieldPrice, FieldOriginalPrice, FieldImage, FieldDescription, FieldRating, FieldReviewCount}

// Selector is a CSS query, optionally reading an attribute instead of text.
type Selector struct {
	CSS  string
	Attr string
}

// ParseSelector reads "css" or "css@attr".
func ParseSelector(s string) Selector {
	if i := strings.LastIndex(s, "@"); i > 0 && !strings.ContainsAny(s[i:], "]) ") {
		return Selector{CSS: strings.TrimSpace(s[:i]), Attr: strings.TrimSpace(s[i+1:])}
	}
	return Selector{CSS: strings.TrimSpace(s)}
}

// Profile describes how to scrape one family of hosts.
type Profile struct {
	Name string
	// Hosts match the final URL host or any of its parent domains.
	Hosts []string
	// Render asks for a headless browser instead of a plain fetch.
	Render bool
	// Generic profiles match every host and are consulted last.
	Generic bool
	Fields  map[Field][]Selector
}

// Matches reports whether host belongs to the profile.
func (p Profile) Matches(host string) bool {
	if p.Generic {
		return true
	}
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	for _, pattern := range p.Hosts {
		pattern = strings.TrimPrefix(strings.ToLower(pattern), "www.")
		if host == pattern || strings.HasSuffix(host, "."+pattern) {
			return true
		}
	}
	return false
}

// Registry keeps scraping profiles in registration order.
type Registry struct {
	profiles []Profile
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a profile, or replaces a registered profile of the same name in place.
func (r *Registry) Register(p Profile) {
	for i, existing := range r.profiles {
		if existing.Name == p.Name {
			r.profiles[i] = p
			return
		}
	}
	r.profiles = append(r.profiles, p)
}

// Resolve returns the first specific profile matching host, then the first generic one.
func (r *Registry) Resolve(host string) (Profile, error) {
	for _, p := range r.profiles {
		if !p.Generic && p.Matches(host) {
			return p, nil
		}
	}
	for _, p := range r.profiles {
		if p.Generic {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("no scraping profile for host %s", host)
}

// Profiles returns a copy of the registered profiles.
func (r *Registry) Profiles() []Profile {
	out := make([]Profile, len(r.profiles))
	copy(out, r.profiles)
	return out
}
