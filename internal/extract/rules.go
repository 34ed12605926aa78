package extract

import (
	"regexp"
	"strings"
)

const (
	currencyToken = `(?:₹|\b[Rr][Ss]\.?|\bINR|\$|€|£|¥)`
	amountToken   = `\d[\d,]*(?:\.\d+)?(?:[kK]\b)?(?:/-)?`
	slashAmount   = `\d[\d,]*(?:\.\d+)?/-`
	moneyToken    = currencyToken + `\s*` + amountToken
	maybeMoney    = `(?:` + currencyToken + `\s*)?` + amountToken
)

// Fields are price-related substrings captured by a rule.
type Fields struct {
	Price    string
	Original string
	Discount string
	Savings  string
}

func (f *Fields) fill(other Fields) {
	if f.Price == "" {
		f.Price = other.Price
	}
	if f.Original == "" {
		f.Original = other.Original
	}
	if f.Discount == "" {
		f.Discount = other.Discount
	}
	if f.Savings == "" {
		f.Savings = other.Savings
	}
}

// Rule is one pure pattern over message text. Rules run in order and the
// first rule to produce a field owns it.
type Rule struct {
	Name  string
	Match func(text string) (Fields, bool)
}

var (
	dualPrice   = regexp.MustCompile(`(` + moneyToken + `)\s*(?:[/|,-]\s*|\s+)(?:(?i:M\.?R\.?P\.?)\s*:?\s*)?(` + moneyToken + `)`)
	dealAt      = regexp.MustCompile(`(?i)\bdeal\s*(?:price)?\s*@\s*(` + maybeMoney + `)`)
	priceLabel  = regexp.MustCompile(`(?i)\b(?:offer price|deal price|price|now|only)\s*[:=-]\s*(` + maybeMoney + `)`)
	priceWord   = regexp.MustCompile(`(?i)\b(?:only|just|now)\s+(` + moneyToken + `|` + slashAmount + `)`)
	regAt       = regexp.MustCompile(`(?i)\breg(?:ular)?\s*@\s*(` + maybeMoney + `)`)
	mrpLabel    = regexp.MustCompile(`(?i)(?:\bM\.?R\.?P\.?|\bregular price)\s*[:@-]?\s*(` + maybeMoney + `)`)
	anyMoney    = regexp.MustCompile(moneyToken)
	percentOff  = regexp.MustCompile(`(?i)(\d{1,3}(?:\.\d+)?)\s*%\s*(?:off|discount|savings?)\b`)
	percentFlat = regexp.MustCompile(`(?i)\b(?:flat|upto|up to|get|save)\s*(\d{1,3}(?:\.\d+)?)\s*%`)
	saveAmount  = regexp.MustCompile(`(?i)\bsave\s*(?:up to\s*)?(` + maybeMoney + `)`)
)

// DefaultRules is the built-in rule order, most specific first.
var DefaultRules = []Rule{
	{Name: "dual-price", Match: func(text string) (Fields, bool) {
		m := dualPrice.FindStringSubmatch(text)
		if m == nil {
			return Fields{}, false
		}
		return Fields{Price: m[1], Original: m[2]}, true
	}},
	{Name: "deal-at", Match: single(dealAt, func(v string) Fields { return Fields{Price: v} })},
	{Name: "price-label", Match: single(priceLabel, func(v string) Fields { return Fields{Price: v} })},
	{Name: "price-word", Match: single(priceWord, func(v string) Fields { return Fields{Price: v} })},
	{Name: "reg-at", Match: single(regAt, func(v string) Fields { return Fields{Original: v} })},
	{Name: "mrp", Match: single(mrpLabel, func(v string) Fields { return Fields{Original: v} })},
	{Name: "symbol-prices", Match: func(text string) (Fields, bool) {
		all := anyMoney.FindAllString(saveAmount.ReplaceAllString(text, " "), 2)
		switch len(all) {
		case 0:
			return Fields{}, false
		case 1:
			return Fields{Price: all[0]}, true
		}
		return Fields{Price: all[0], Original: all[1]}, true
	}},
	{Name: "percent-off", Match: func(text string) (Fields, bool) {
		if m := percentOff.FindStringSubmatch(text); m != nil {
			return Fields{Discount: m[1]}, true
		}
		if m := percentFlat.FindStringSubmatch(text); m != nil {
			return Fields{Discount: m[1]}, true
		}
		return Fields{}, false
	}},
	{Name: "save-amount", Match: single(saveAmount, func(v string) Fields { return Fields{Savings: v} })},
}

// single builds a rule from a one-group pattern. Matches directly followed by
// a percent sign are skipped so "save 40%" is not read as an amount.
func single(re *regexp.Regexp, build func(string) Fields) func(string) (Fields, bool) {
	return func(text string) (Fields, bool) {
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			if loc[2] < 0 {
				continue
			}
			rest := strings.TrimLeft(text[loc[3]:], " ")
			if strings.HasPrefix(rest, "%") {
				continue
			}
			return build(text[loc[2]:loc[3]]), true
		}
		return Fields{}, false
	}
}

// ApplyRules runs rules in order and merges their fields by priority.
func ApplyRules(rules []Rule, text string) Fields {
	var out Fields
	for _, r := range rules {
		if f, ok := r.Match(text); ok {
			out.fill(f)
		}
	}
	return out
}

// FirstMoney returns the first currency-marked amount in text, or "".
func FirstMoney(text string) string {
	return anyMoney.FindString(text)
}
