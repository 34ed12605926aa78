// Package normalize converts raw candidate texts into typed, consistent
// product fields.
package normalize

import (
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"DealsIngestor/internal/domain"
)

const (
	// MaxTitleRunes caps stored titles.
	MaxTitleRunes = 200
	// DiscountTolerance is the allowed gap in points between a stated and a computed discount.
	DiscountTolerance = 1
	defaultCurrency   = "INR"
)

var (
	amountPattern  = regexp.MustCompile(`(\d[\d,]*(?:\.\d+)?)\s*([kK]\b)?`)
	percentPattern = regexp.MustCompile(`(\d{1,4}(?:\.\d+)?)`)
	ratingPattern  = regexp.MustCompile(`(\d(?:\.\d+)?)`)
	countPattern   = regexp.MustCompile(`(\d[\d,]*)`)
)

var currencySymbols = []struct {
	token string
	code  string
}{
	{"₹", "INR"},
	{"rs.", "INR"},
	{"rs ", "INR"},
	{"inr", "INR"},
	{"us$", "USD"},
	{"$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"¥", "JPY"},
}

// Amount is a parsed monetary value.
type Amount struct {
	Value    float64
	Currency string
}

// ParseAmount reads the first number in text. A trailing k multiplies by one
// thousand and separators are dropped. Non-positive values are reported as absent.
func ParseAmount(text string) (Amount, bool) {
	m := amountPattern.FindStringSubmatch(text)
	if m == nil {
		return Amount{}, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return Amount{}, false
	}
	if m[2] != "" {
		v *= 1000
	}
	if v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return Amount{}, false
	}
	return Amount{Value: round2(v), Currency: DetectCurrency(text)}, true
}

// ParsePercent reads a discount percentage.
func ParsePercent(text string) (float64, bool) {
	m := percentPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// DetectCurrency maps the first currency marker in text to an ISO code.
func DetectCurrency(text string) string {
	lower := strings.ToLower(text) + " "
	best, bestAt := "", -1
	for _, sym := range currencySymbols {
		if at := strings.Index(lower, sym.token); at >= 0 && (bestAt < 0 || at < bestAt) {
			best, bestAt = sym.code, at
		}
	}
	return best
}

// Normalizer turns candidates into validated products.
type Normalizer struct {
	logger *slog.Logger
}

// New builds a normalizer. A nil logger discards output.
func New(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Normalizer{logger: logger}
}

// Normalize parses prices and derives the missing one of price, original
// price and discount when the other two are known. The result always holds
// price <= original price and a discount within DiscountTolerance of the
// one implied by the prices.
func (n *Normalizer) Normalize(c domain.ProductCandidate, fallbackCurrency string) (domain.NormalizedProduct, error) {
	title := NormalizeTitle(c.Title)
	price, hasPrice := ParseAmount(c.PriceText)
	orig, hasOrig := ParseAmount(c.OriginalPriceText)
	if title == "" && !hasPrice {
		return domain.NormalizedProduct{}, domain.NewNormalizationError("candidate has neither title nor price", nil)
	}

	if hasPrice && hasOrig && price.Value > orig.Value {
		n.logger.Warn("price above original price, swapping", "price", price.Value, "original", orig.Value, "url", c.URL.Final)
		price, orig = orig, price
	}
	if hasPrice && !hasOrig {
		if save, ok := ParseAmount(c.SavingsText); ok {
			orig, hasOrig = Amount{Value: round2(price.Value + save.Value), Currency: price.Currency}, true
		}
	}

	stated, hasStated := ParsePercent(c.DiscountText)
	if hasStated && stated > 0 && stated < 100 {
		switch {
		case !hasPrice && hasOrig:
			price, hasPrice = Amount{Value: round2(orig.Value * (100 - stated) / 100), Currency: orig.Currency}, true
		case hasPrice && !hasOrig:
			orig, hasOrig = Amount{Value: round2(price.Value * 100 / (100 - stated)), Currency: price.Currency}, true
		}
	}

	out := domain.NormalizedProduct{
		Title:        title,
		Description:  NormalizeTitle(c.Description),
		ImageURL:     strings.TrimSpace(c.ImageURL),
		ProductURL:   c.URL.Final,
		LimitedOffer: c.LimitedOffer,
		Source:       c.Source,
	}
	if out.ProductURL == "" {
		out.ProductURL = c.URL.Original
	}
	if hasPrice {
		v := price.Value
		out.Price = &v
	}
	if hasOrig {
		v := orig.Value
		out.OriginalPrice = &v
	}

	var discount float64
	hasDiscount := false
	if hasPrice && hasOrig {
		computed := (orig.Value - price.Value) / orig.Value * 100
		discount, hasDiscount = computed, true
		if hasStated && math.Abs(stated-computed) <= DiscountTolerance {
			discount = stated
		} else if hasStated {
			n.logger.Debug("stated discount disagrees with prices", "stated", stated, "computed", computed)
		}
	} else if hasStated {
		discount, hasDiscount = stated, true
	}
	if hasDiscount {
		d := int(math.Round(discount))
		if d < 0 || d > 100 {
			n.logger.Warn("discount out of range, clamping", "discount", d, "url", out.ProductURL)
			d = min(max(d, 0), 100)
		}
		out.Discount = &d
	}

	out.Currency = firstNonEmpty(price.Currency, orig.Currency, strings.ToUpper(fallbackCurrency), defaultCurrency)
	if r, ok := parseRating(c.RatingText); ok {
		out.Rating = &r
	}
	out.ReviewCount = parseCount(c.ReviewCountText)
	return out, nil
}

// NormalizeTitle applies NFC, collapses whitespace and caps the length.
func NormalizeTitle(s string) string {
	s = strings.Join(strings.Fields(norm.NFC.String(s)), " ")
	r := []rune(s)
	if len(r) > MaxTitleRunes {
		s = strings.TrimSpace(string(r[:MaxTitleRunes]))
	}
	return s
}

func parseRating(text string) (float64, bool) {
	m := ratingPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v <= 0 || v > 5 {
		return 0, false
	}
	return v, true
}

func parseCount(text string) int {
	m := countPattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	v, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return 0
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
