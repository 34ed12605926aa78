package classify

import "DealsIngestor/internal/domain"

// Rule maps a keyword to a category. Higher priority wins ties between
// keywords of the same length.
type Rule struct {
	Keyword     string
	Category    string
	ContentType domain.ContentType
	Priority    int
}

const (
	DefaultProductCategory = "General Goods"
	DefaultServiceCategory = "Digital Services"
	DefaultAppCategory     = "AI & Apps"
)

func group(category string, ct domain.ContentType, priority int, keywords ...string) []Rule {
	rules := make([]Rule, 0, len(keywords))
	for _, kw := range keywords {
		rules = append(rules, Rule{Keyword: kw, Category: category, ContentType: ct, Priority: priority})
	}
	return rules
}

func concat(groups ...[]Rule) []Rule {
	var out []Rule
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// DefaultRules is the built-in keyword table.
var DefaultRules = concat(
	group("Electronics & Gadgets", domain.ContentProduct, 10,
		"phone", "smartphone", "mobile", "laptop", "tablet", "headphones", "headphone", "earbuds",
		"earphones", "tws", "speaker", "soundbar", "charger", "power bank", "smartwatch", "smart watch",
		"camera", "monitor", "keyboard", "mouse", "television", "smart tv", "led tv", "router", "ssd",
		"pendrive", "gaming laptop", "bluetooth speaker", "wireless earbuds"),
	group("Fashion & Clothing", domain.ContentProduct, 8,
		"shirt", "t-shirt", "tshirt", "jeans", "dress", "kurta", "saree", "shoes", "sneakers",
		"jacket", "hoodie", "trousers", "sandals", "handbag", "wallet", "sunglasses", "running shoes"),
	group("Home & Kitchen", domain.ContentProduct, 8,
		"kitchen", "cookware", "pressure cooker", "mixer", "grinder", "mixer grinder", "bedsheet",
		"curtain", "decor", "lamp", "cushion", "water bottle", "bottle", "knife", "air fryer", "vacuum cleaner"),
	group("Health & Beauty", domain.ContentProduct, 7,
		"beauty", "skincare", "makeup", "perfume", "shampoo", "face wash", "lotion", "serum",
		"sunscreen", "trimmer", "hair dryer", "lipstick"),
	group("Sports & Fitness", domain.ContentProduct, 6,
		"fitness", "yoga", "yoga mat", "dumbbell", "gym", "treadmill", "cycle", "bicycle", "protein"),
	group("Books & Education", domain.ContentProduct, 5, "book", "books", "novel", "paperback", "kindle"),
	group("Toys & Games", domain.ContentProduct, 5, "toy", "toys", "lego", "puzzle", "board game", "action figure"),
	group("Automotive", domain.ContentProduct, 5, "car", "helmet", "tyre", "dash cam", "car charger"),
	group("Pet Supplies", domain.ContentProduct, 4, "pet", "dog food", "cat food", "pet bed"),
	group("Travel & Luggage", domain.ContentProduct, 4, "luggage", "trolley", "suitcase", "backpack", "duffle bag"),
	group("Office Supplies", domain.ContentProduct, 3, "stationery", "notebook", "office chair", "printer"),

	group("Financial Services", domain.ContentService, 9,
		"credit card", "loan", "personal loan", "banking", "savings account", "demat", "mutual fund", "cashback card"),
	group("Insurance Services", domain.ContentService, 9, "insurance", "health insurance", "car insurance", "term plan"),
	group("Entertainment Services", domain.ContentService, 8,
		"streaming", "netflix", "spotify", "prime video", "hotstar", "ott", "music subscription"),
	group("Cloud & Hosting Services", domain.ContentService, 7, "cloud storage", "hosting", "web hosting", "domain name"),
	group("Security Services", domain.ContentService, 7, "vpn", "antivirus", "password manager"),
	group("Education Services", domain.ContentService, 6, "online course", "course", "certification", "tutoring", "bootcamp"),
	group("Travel Services", domain.ContentService, 6, "flight", "flights", "hotel booking", "bus ticket", "train ticket", "holiday package"),
	group("Food Delivery", domain.ContentService, 5, "food delivery", "swiggy", "zomato"),

	group("AI Writing Tools", domain.ContentApp, 9, "ai writing", "ai writer", "copywriting", "gpt", "chatgpt"),
	group("AI Image Tools", domain.ContentApp, 9, "ai image", "image generator", "ai art", "midjourney"),
	group("AI Assistants", domain.ContentApp, 8, "ai assistant", "chatbot", "ai chatbot", "voice assistant"),
	group("Productivity Apps", domain.ContentApp, 7, "productivity app", "task manager", "notes app", "todo app"),
	group("Design Apps", domain.ContentApp, 6, "design tool", "figma", "canva", "photo editor"),
	group("Developer Tools", domain.ContentApp, 6, "developer tool", "code editor", "api", "sdk", "ide"),
	group("Mobile Apps", domain.ContentApp, 5, "android app", "ios app", "mobile app", "app"),
)

// serviceIndicators and appIndicators pick a content type when the channel
// does not force one.
var (
	serviceIndicators = []string{
		"service", "services", "subscription", "plan", "membership", "booking", "account",
		"insurance", "loan", "credit card", "streaming", "course", "vpn", "hosting", "recharge",
	}
	appIndicators = []string{
		"mobile app", "web app", "software", "saas", "ai tool", "ai powered", "artificial intelligence",
		"extension", "plugin", "chatgpt", "gpt",
	}
	featuredKeywords = []string{
		"premium", "exclusive", "bestseller", "best seller", "top rated", "editor's choice",
		"trending", "limited edition", "flagship", "deal of the day",
	}
)

const (
	serviceThreshold = 2
	appThreshold     = 1
)
