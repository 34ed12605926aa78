package domain

// CandidateSource names the extractor that produced a candidate.
type CandidateSource string

const (
	SourceScraper  CandidateSource = "scraper"
	SourceFallback CandidateSource = "fallback"
	// SourceMixed is a scraped candidate whose title or price came from the
	// message text.
	SourceMixed CandidateSource = "mixed"
)

// ProductCandidate holds raw field texts before normalization.
type ProductCandidate struct {
	Title             string
	Description       string
	PriceText         string
	OriginalPriceText string
	DiscountText      string
	SavingsText       string
	ImageURL          string
	RatingText        string
	ReviewCountText   string
	LimitedOffer      bool
	URL               ResolvedURL
	Source            CandidateSource
}

// Empty reports whether neither a title nor a price was found.
func (c ProductCandidate) Empty() bool {
	return c.Title == "" && c.PriceText == ""
}

// Merge fills fields missing in c from other. The result is SourceMixed when
// the title or the price was taken from other and the two sources differ.
func (c ProductCandidate) Merge(other ProductCandidate) ProductCandidate {
	fill := func(dst *string, src string) bool {
		if *dst == "" && src != "" {
			*dst = src
			return true
		}
		return false
	}
	borrowedTitle := fill(&c.Title, other.Title)
	fill(&c.Description, other.Description)
	borrowedPrice := fill(&c.PriceText, other.PriceText)
	fill(&c.OriginalPriceText, other.OriginalPriceText)
	fill(&c.DiscountText, other.DiscountText)
	fill(&c.SavingsText, other.SavingsText)
	fill(&c.ImageURL, other.ImageURL)
	fill(&c.RatingText, other.RatingText)
	fill(&c.ReviewCountText, other.ReviewCountText)
	c.LimitedOffer = c.LimitedOffer || other.LimitedOffer
	if (borrowedTitle || borrowedPrice) && other.Source != c.Source {
		c.Source = SourceMixed
	}
	return c
}

// NormalizedProduct is a candidate with parsed and validated fields.
type NormalizedProduct struct {
	Title               string
	Description         string
	Price               *float64
	OriginalPrice       *float64
	Currency            string
	Discount            *int
	ImageURL            string
	ProductURL          string
	AffiliateURL        string
	AffiliateNetwork    string
	AffiliateTagApplied bool
	Rating              *float64
	ReviewCount         int
	LimitedOffer        bool
	Source              CandidateSource
}

// Channel is one routing table entry.
type Channel struct {
	ID          string
	Name        string
	PageSlug    string
	Network     string
	TagValue    string
	ContentType ContentType
	Currency    string
	Featured    bool
	TimerHours  int
}
