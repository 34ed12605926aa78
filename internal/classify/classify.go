// Package classify assigns categories, content types and display pages to
// normalized products.
package classify

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"DealsIngestor/internal/domain"
	"DealsIngestor/internal/ports"
)

// Display pages every product may be routed to.
const (
	PageHome     = "home"
	PageTopPicks = "top-picks"
	PageServices = "services"
	PageApps     = "apps"
)

// Input is what the classifier looks at.
type Input struct {
	Title       string
	Description string
	Channel     domain.Channel
}

// Verdict is the pure classification result before the category is persisted.
type Verdict struct {
	Category    string
	ContentType domain.ContentType
	Featured    bool
	Keyword     string
}

// Classifier matches keyword rules and resolves categories through a store.
type Classifier struct {
	rules []Rule
	store ports.CategoryStore
	lang  language.Tag
}

// New builds a classifier. With no rules DefaultRules apply.
func New(store ports.CategoryStore, rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	prepared := make([]Rule, len(rules))
	for i, r := range rules {
		r.Keyword = normalizeText(r.Keyword)
		prepared[i] = r
	}
	return &Classifier{rules: prepared, store: store, lang: language.English}
}

// Classify detects the category and gets or creates it in the store.
func (c *Classifier) Classify(ctx context.Context, in Input) (domain.CategoryAssignment, error) {
	v := c.Detect(in)
	name := c.CanonicalName(v.Category)
	icon, color := Style(name)
	cat, err := c.store.GetOrCreate(ctx, domain.Category{
		Name:        name,
		Slug:        Slug(name),
		Icon:        icon,
		Color:       color,
		ContentType: v.ContentType,
	})
	if err != nil {
		return domain.CategoryAssignment{}, fmt.Errorf("get or create category %q: %w", name, err)
	}
	return domain.CategoryAssignment{
		Category:     cat,
		ContentType:  v.ContentType,
		DisplayPages: DisplayPages(in.Channel.PageSlug, v.ContentType, v.Featured),
		Featured:     v.Featured,
		Keyword:      v.Keyword,
	}, nil
}

// Detect is the pure part of Classify.
func (c *Classifier) Detect(in Input) Verdict {
	text := " " + normalizeText(in.Title+" "+in.Description) + " "
	featured := in.Channel.Featured || containsAny(text, featuredKeywords)

	contentType := in.Channel.ContentType
	if contentType == "" {
		contentType = indicatorType(text)
		if contentType == domain.ContentProduct {
			if best, ok := c.best(text, ""); ok {
				return Verdict{Category: best.Category, ContentType: best.ContentType, Featured: featured, Keyword: best.Keyword}
			}
			return Verdict{Category: DefaultProductCategory, ContentType: domain.ContentProduct, Featured: featured}
		}
	}
	if best, ok := c.best(text, contentType); ok {
		return Verdict{Category: best.Category, ContentType: contentType, Featured: featured, Keyword: best.Keyword}
	}
	return Verdict{Category: defaultCategory(contentType), ContentType: contentType, Featured: featured}
}

// best returns the longest matching keyword; priority then table order break ties.
func (c *Classifier) best(text string, only domain.ContentType) (Rule, bool) {
	var winner Rule
	found := false
	for _, r := range c.rules {
		if only != "" && r.ContentType != only {
			continue
		}
		if r.Keyword == "" || !strings.Contains(text, " "+r.Keyword+" ") {
			continue
		}
		switch {
		case !found:
		case len(r.Keyword) > len(winner.Keyword):
		case len(r.Keyword) == len(winner.Keyword) && r.Priority > winner.Priority:
		default:
			continue
		}
		winner, found = r, true
	}
	return winner, found
}

func indicatorType(text string) domain.ContentType {
	if countAny(text, serviceIndicators) >= serviceThreshold {
		return domain.ContentService
	}
	if countAny(text, appIndicators) >= appThreshold {
		return domain.ContentApp
	}
	return domain.ContentProduct
}

func defaultCategory(ct domain.ContentType) string {
	switch ct {
	case domain.ContentService:
		return DefaultServiceCategory
	case domain.ContentApp:
		return DefaultAppCategory
	}
	return DefaultProductCategory
}

// DisplayPages lists the pages a product shows on, channel page first.
func DisplayPages(pageSlug string, ct domain.ContentType, featured bool) []string {
	pages := make([]string, 0, 4)
	add := func(p string) {
		if p == "" {
			return
		}
		for _, existing := range pages {
			if existing == p {
				return
			}
		}
		pages = append(pages, p)
	}
	add(pageSlug)
	add(PageHome)
	switch ct {
	case domain.ContentService:
		add(PageServices)
	case domain.ContentApp:
		add(PageApps)
	}
	if featured {
		add(PageTopPicks)
	}
	return pages
}

// CanonicalName title-cases a category name, keeping connectors lowercase and
// acronyms such as "AI" upper case.
func (c *Classifier) CanonicalName(name string) string {
	words := strings.Fields(norm.NFC.String(name))
	// Casers are stateful; a fresh one keeps concurrent workers apart.
	title := cases.Title(c.lang)
	for i, w := range words {
		switch lw := strings.ToLower(w); {
		case lw == "&" || (i > 0 && (lw == "and" || lw == "of" || lw == "for")):
			words[i] = lw
		case isUpper(w) && len([]rune(w)) <= 3:
			words[i] = w
		default:
			words[i] = title.String(w)
		}
	}
	return strings.Join(words, " ")
}

// Slug is the unique, normalized category key.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(norm.NFKC.String(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// Style returns a deterministic icon and color for a category name.
func Style(name string) (icon, color string) {
	lower := strings.ToLower(name)
	for _, s := range styles {
		if strings.Contains(lower, s.match) {
			return s.icon, s.color
		}
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(Slug(name)))
	sum := h.Sum32()
	return icons[sum%uint32(len(icons))], palette[sum%uint32(len(palette))]
}

func normalizeText(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(norm.NFKC.String(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '&' {
			b.WriteRune(r)
			continue
		}
		if r == '-' {
			b.WriteRune(r)
			continue
		}
		b.WriteByte(' ')
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func containsAny(text string, keywords []string) bool {
	return countAny(text, keywords) > 0
}

func countAny(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, " "+normalizeText(kw)+" ") {
			n++
		}
	}
	return n
}

func isUpper(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) && !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}
