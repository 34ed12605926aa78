package extract

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"DealsIngestor/internal/domain"
)

// LimitedOfferKeywords flag time-boxed deals in page or message text.
var LimitedOfferKeywords = []string{
	"limited time", "flash sale", "today only", "hurry up", "limited stock",
	"sale ends", "offer expires", "limited offer", "deal of the day", "lightning deal",
	"ends tonight", "few hours left",
}

// HasLimitedOffer reports whether text carries a limited-offer marker.
func HasLimitedOffer(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range LimitedOfferKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

const (
	minTitleRunes   = 11
	maxDescLines    = 3
	maxDescRunes    = 200
	listMarkerChars = "•-*–·>#"
)

var (
	listNumber   = regexp.MustCompile(`^\d{1,2}\s*[.)]\s*`)
	percentToken = regexp.MustCompile(`\d{1,3}\s*%`)
	priceWords   = regexp.MustCompile(`(?i)\b(?:off|deal|price|mrp|reg|only|just|flat|save|discount|now|at|rs|inr|upto|up|to|get)\b`)
	asinPath     = regexp.MustCompile(`(?i)/(?:dp|gp/product)/([A-Z0-9]{10})`)
)

// TextExtractor recovers a product candidate from message text when the
// product page cannot be scraped.
type TextExtractor struct {
	rules []Rule
}

// NewTextExtractor builds an extractor. With no rules DefaultRules apply.
func NewTextExtractor(rules ...Rule) *TextExtractor {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &TextExtractor{rules: rules}
}

// Extract never fails: when no title line qualifies a deterministic
// placeholder is derived from the URL host or the channel name.
func (e *TextExtractor) Extract(text string, u domain.ResolvedURL, channelName string) domain.ProductCandidate {
	fields := ApplyRules(e.rules, text)
	title, desc := titleAndDescription(text)
	if title == "" {
		title = titleFromURL(u.Final)
	}
	if title == "" {
		title = Placeholder(u.Host(), channelName)
	}
	return domain.ProductCandidate{
		Title:             title,
		Description:       desc,
		PriceText:         fields.Price,
		OriginalPriceText: fields.Original,
		DiscountText:      fields.Discount,
		SavingsText:       fields.Savings,
		LimitedOffer:      HasLimitedOffer(text),
		URL:               u,
		Source:            domain.SourceFallback,
	}
}

// Placeholder names a product with no readable title.
func Placeholder(host, channelName string) string {
	switch {
	case strings.Contains(host, "amazon") || host == "amzn.to" || host == "a.co":
		return "Amazon Product"
	case strings.Contains(host, "flipkart") || strings.HasPrefix(host, "fkrt."):
		return "Flipkart Product"
	case strings.Contains(host, "myntra"):
		return "Myntra Product"
	case strings.Contains(host, "ajio"):
		return "Ajio Product"
	case strings.Contains(host, "nykaa"):
		return "Nykaa Product"
	case channelName != "":
		return "Product from " + channelName
	}
	return "Product from Telegram"
}

func titleAndDescription(text string) (string, string) {
	var title string
	var desc []string
	for _, raw := range strings.Split(text, "\n") {
		line := cleanLine(raw)
		if line == "" || containsURL(line) || isPriceLine(line) {
			continue
		}
		if title == "" {
			if len([]rune(line)) >= minTitleRunes {
				title = line
			}
			continue
		}
		if len(desc) < maxDescLines {
			desc = append(desc, line)
		}
	}
	return title, truncateRunes(strings.Join(desc, " "), maxDescRunes)
}

func cleanLine(line string) string {
	line = StripEmoji(line)
	line = strings.ReplaceAll(line, "**", "")
	line = strings.ReplaceAll(line, "__", "")
	line = strings.TrimSpace(line)
	line = strings.TrimLeft(line, listMarkerChars)
	line = listNumber.ReplaceAllString(strings.TrimSpace(line), "")
	return strings.Join(strings.Fields(line), " ")
}

// StripEmoji removes pictographs, variation selectors and joiners.
func StripEmoji(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == 0x200D, r >= 0xFE00 && r <= 0xFE0F:
			return -1
		case r >= 0x1F000 && r <= 0x1FAFF, r >= 0x2600 && r <= 0x27BF, r >= 0x2B00 && r <= 0x2BFF:
			return -1
		case unicode.Is(unicode.So, r) && r != '₹':
			return -1
		}
		return r
	}, s)
}

func containsURL(line string) bool {
	for _, m := range linkFinder.FindAllString(line, -1) {
		if productLink(m) {
			return true
		}
	}
	return false
}

// isPriceLine reports lines made of prices, percentages and deal words only.
func isPriceLine(line string) bool {
	rest := anyMoney.ReplaceAllString(line, " ")
	rest = percentToken.ReplaceAllString(rest, " ")
	rest = priceWords.ReplaceAllString(rest, " ")
	letters := 0
	for _, r := range rest {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters < 4
}

// titleFromURL reads Amazon search keywords or the slug in front of /dp/.
func titleFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || !strings.Contains(strings.ToLower(u.Host), "amazon") {
		return ""
	}
	for _, key := range []string{"keywords", "k"} {
		if kw := strings.TrimSpace(u.Query().Get(key)); kw != "" {
			return titleCase(strings.NewReplacer("+", " ", "-", " ").Replace(kw))
		}
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, seg := range segments {
		if (seg == "dp" || seg == "product") && i > 0 {
			slug := segments[i-1]
			if i > 1 && segments[i-1] == "gp" {
				slug = segments[i-2]
			}
			if slug != "" && slug != "gp" {
				return titleCase(strings.ReplaceAll(slug, "-", " "))
			}
		}
	}
	if m := asinPath.FindStringSubmatch(u.Path); m != nil {
		return "Amazon Product " + strings.ToUpper(m[1])
	}
	return ""
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
