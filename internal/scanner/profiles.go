package scanner

func sels(css ...string) []Selector {
	out := make([]Selector, 0, len(css))
	for _, c := range css {
		out = append(out, ParseSelector(c))
	}
	return out
}

// Amazon covers the Amazon storefronts.
var Amazon = Profile{
	Name:  "amazon",
	Hosts: []string{"amazon.in", "amazon.com", "amazon.co.uk", "amazon.de", "amazon.ae"},
	Fields: map[Field][]Selector{
		FieldTitle:         sels("#productTitle", "h1.a-size-large", "span#productTitle"),
		FieldPrice:         sels(".a-price-current .a-offscreen", "#corePriceDisplay_desktop_feature_div .a-price .a-offscreen", ".a-price .a-offscreen", ".a-price-whole"),
		FieldOriginalPrice: sels(".a-price.a-text-price .a-offscreen", ".a-text-strike .a-offscreen", ".a-text-strike"),
		FieldImage:         sels("#landingImage", "#imgBlkFront", "img[data-old-hires]"),
		FieldDescription:   sels("#feature-bullets ul li span", "#productDescription p"),
		FieldRating:        sels(".a-icon-alt", "#acrPopover@title"),
		FieldReviewCount:   sels("#acrCustomerReviewText"),
	},
}

// Flipkart covers flipkart.com.
var Flipkart = Profile{
	Name:  "flipkart",
	Hosts: []string{"flipkart.com"},
	Fields: map[Field][]Selector{
		FieldTitle:         sels(".B_NuCI", "h1 span", "h1"),
		FieldPrice:         sels("._30jeq3._16Jk6d", "._30jeq3", ".Nx9bqj", "._1_WHN1"),
		FieldOriginalPrice: sels("._3I9_wc._27UcVY", "._3I9_wc", ".yRaY8j"),
		FieldImage:         sels("._396cs4 img", "img._2r_T1I", "meta[property='og:image']@content"),
		FieldDescription:   sels("._1mXcCf", "._1AN87F"),
		FieldRating:        sels("._3LWZlK"),
		FieldReviewCount:   sels("._2_R_DZ span"),
	},
}

// Myntra renders prices client side.
var Myntra = Profile{
	Name:   "myntra",
	Hosts:  []string{"myntra.com"},
	Render: true,
	Fields: map[Field][]Selector{
		FieldTitle:         sels("h1.pdp-title", "h1.pdp-name", "h1"),
		FieldPrice:         sels(".pdp-price strong", ".pdp-price"),
		FieldOriginalPrice: sels(".pdp-mrp s", ".pdp-mrp"),
		FieldImage:         sels(".image-grid-image@style", "meta[property='og:image']@content"),
		FieldDescription:   sels(".pdp-product-description-content"),
		FieldRating:        sels(".index-overallRating div"),
		FieldReviewCount:   sels(".index-ratingsCount"),
	},
}

// Generic is the last resort for unknown hosts.
var Generic = Profile{
	Name:    "generic",
	Generic: true,
	Fields: map[Field][]Selector{
		FieldTitle:         sels("meta[property='og:title']@content", "h1", ".product-title", "title"),
		FieldPrice:         sels("meta[property='product:price:amount']@content", ".price", ".product-price", "[data-testid='price']", "[itemprop='price']@content"),
		FieldOriginalPrice: sels(".original-price", ".was-price", ".strike-price", ".old-price", "del", "s"),
		FieldImage:         sels("meta[property='og:image']@content", ".product-image img", "img"),
		FieldDescription:   sels("meta[property='og:description']@content", "meta[name='description']@content"),
		FieldRating:        sels("[itemprop='ratingValue']@content", ".rating"),
		FieldReviewCount:   sels("[itemprop='reviewCount']@content", ".review-count"),
	},
}

// DefaultRegistry returns the built-in profiles with generic registered last.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Amazon)
	r.Register(Flipkart)
	r.Register(Myntra)
	r.Register(Generic)
	return r
}
