package normalize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"DealsIngestor/internal/domain"
)

func TestParseAmount(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in       string
		value    float64
		currency string
		ok       bool
	}{
		{"₹1,29,999", 129999, "INR", true},
		{"Rs. 499", 499, "INR", true},
		{"2.5k", 2500, "", true},
		{"499/-", 499, "", true},
		{"Rs 1,299/-", 1299, "INR", true},
		{"$19.99", 19.99, "USD", true},
		{"€ 10", 10, "EUR", true},
		{"£7.5", 7.5, "GBP", true},
		{"₹0", 0, "", false},
		{"free", 0, "", false},
	}
	for _, tc := range cases {
		got, ok := ParseAmount(tc.in)
		require.Equal(t, tc.ok, ok, tc.in)
		if ok {
			require.InDelta(t, tc.value, got.Value, 0.001, tc.in)
			require.Equal(t, tc.currency, got.Currency, tc.in)
		}
	}
}

func TestNormalizeComputesDiscountFromPrices(t *testing.T) {
	t.Parallel()

	p, err := New(nil).Normalize(domain.ProductCandidate{
		Title:             "  Wireless   Earbuds ",
		PriceText:         "₹899",
		OriginalPriceText: "₹2999",
		DiscountText:      "70",
	}, "INR")
	require.NoError(t, err)
	require.Equal(t, "Wireless Earbuds", p.Title)
	require.Equal(t, 899.0, *p.Price)
	require.Equal(t, 2999.0, *p.OriginalPrice)
	require.Equal(t, 70, *p.Discount)
	require.Equal(t, "INR", p.Currency)
}

func TestNormalizeReplacesInconsistentDiscount(t *testing.T) {
	t.Parallel()

	p, err := New(nil).Normalize(domain.ProductCandidate{
		Title: "Mixer Grinder 750W", PriceText: "₹1000", OriginalPriceText: "₹2000", DiscountText: "80",
	}, "")
	require.NoError(t, err)
	require.Equal(t, 50, *p.Discount)
}

func TestNormalizeDerivesMissingField(t *testing.T) {
	t.Parallel()

	n := New(nil)

	p, err := n.Normalize(domain.ProductCandidate{Title: "Steel Bottle 1L", OriginalPriceText: "₹1000", DiscountText: "40"}, "")
	require.NoError(t, err)
	require.Equal(t, 600.0, *p.Price)
	require.Equal(t, 40, *p.Discount)

	p, err = n.Normalize(domain.ProductCandidate{Title: "Steel Bottle 1L", PriceText: "₹600", DiscountText: "40%"}, "")
	require.NoError(t, err)
	require.Equal(t, 1000.0, *p.OriginalPrice)

	p, err = n.Normalize(domain.ProductCandidate{Title: "Steel Bottle 1L", PriceText: "₹499", SavingsText: "₹500"}, "")
	require.NoError(t, err)
	require.Equal(t, 999.0, *p.OriginalPrice)
	require.Equal(t, 50, *p.Discount)
}

func TestNormalizeSwapsInvertedPrices(t *testing.T) {
	t.Parallel()

	p, err := New(nil).Normalize(domain.ProductCandidate{Title: "Running Shoes", PriceText: "₹2999", OriginalPriceText: "₹899"}, "")
	require.NoError(t, err)
	require.LessOrEqual(t, *p.Price, *p.OriginalPrice)
	require.Equal(t, 899.0, *p.Price)
}

func TestNormalizeClampsStatedDiscount(t *testing.T) {
	t.Parallel()

	p, err := New(nil).Normalize(domain.ProductCandidate{Title: "Mystery Loot Box", DiscountText: "150"}, "")
	require.NoError(t, err)
	require.Equal(t, 100, *p.Discount)
	require.Nil(t, p.Price)
}

func TestNormalizeTreatsZeroAsAbsent(t *testing.T) {
	t.Parallel()

	p, err := New(nil).Normalize(domain.ProductCandidate{Title: "Free Sample Pack", PriceText: "₹0"}, "usd")
	require.NoError(t, err)
	require.Nil(t, p.Price)
	require.Nil(t, p.Discount)
	require.Equal(t, "USD", p.Currency)
}

func TestNormalizeRejectsEmptyCandidate(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Normalize(domain.ProductCandidate{}, "")
	var nerr *domain.NormalizationError
	require.True(t, errors.As(err, &nerr))
}

func TestNormalizeTitleCapsAndComposes(t *testing.T) {
	t.Parallel()

	long := make([]rune, 0, 260)
	for i := 0; i < 260; i++ {
		long = append(long, 'a')
	}
	require.Len(t, []rune(NormalizeTitle(string(long))), MaxTitleRunes)
	require.Equal(t, "\u00e9", NormalizeTitle("e\u0301"))
}

func TestNormalizeParsesRatingAndReviews(t *testing.T) {
	t.Parallel()

	p, err := New(nil).Normalize(domain.ProductCandidate{
		Title: "Smart Watch Pro", PriceText: "₹1999", RatingText: "4.3 out of 5 stars", ReviewCountText: "12,345 ratings",
	}, "")
	require.NoError(t, err)
	require.Equal(t, 4.3, *p.Rating)
	require.Equal(t, 12345, p.ReviewCount)
}
