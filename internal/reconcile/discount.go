package reconcile

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/garyjia/contract-reconciler/internal/domain/entity"
)

type metric int

const (
	metricQuantity metric = iota
	metricLineAmount
	metricOrderAmount
)

type comparison int

const (
	cmpGTE comparison = iota
	cmpGT
	cmpLTE
	cmpLT
	cmpEQ
)

// condition is one numeric clause of a discount's free-text conditions,
// e.g. "quantity >= 100" or "orders over $5,000".
type condition struct {
	metric metric
	cmp    comparison
	value  decimal.Decimal
}

var conditionPattern = regexp.MustCompile(`(?i)\b(quantity|qty|units?|amount|spend(?:ing)?|orders?|total|subtotal)\s*(?:of\s+)?(>=|<=|>|<|=|≥|≤|at least|minimum of|more than|over|above|exceeds?|less than|below|under|up to|at most)?\s*\$?\s*([0-9][0-9,]*(?:\.[0-9]+)?)(\s*\+)?(?:\s*(units?|items?|pcs|pieces|cases?|boxes|cartons?)\b)?`)

var plusPattern = regexp.MustCompile(`(?i)\b([0-9][0-9,]*)\s*\+\s*(?:units?|items?|pcs|pieces)?`)

// lineContext carries the figures discount conditions are evaluated against
type lineContext struct {
	quantity    decimal.Decimal
	lineAmount  decimal.Decimal
	orderAmount decimal.Decimal
}

func parseConditions(text string) []condition {
	var out []condition
	for _, m := range conditionPattern.FindAllStringSubmatch(text, -1) {
		value, err := decimal.NewFromString(strings.ReplaceAll(m[3], ",", ""))
		if err != nil {
			continue
		}
		c := condition{metric: parseMetric(m[1]), cmp: parseComparison(m[2]), value: value}
		// "orders of 100+ units" counts units, not currency
		if m[4] != "" || m[5] != "" {
			c.metric = metricQuantity
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		for _, m := range plusPattern.FindAllStringSubmatch(text, -1) {
			value, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
			if err != nil {
				continue
			}
			out = append(out, condition{metric: metricQuantity, cmp: cmpGTE, value: value})
		}
	}
	return out
}

func parseMetric(word string) metric {
	switch w := strings.ToLower(word); {
	case strings.HasPrefix(w, "order"), w == "total", w == "subtotal":
		return metricOrderAmount
	case w == "amount", strings.HasPrefix(w, "spend"):
		return metricLineAmount
	default:
		return metricQuantity
	}
}

func parseComparison(op string) comparison {
	switch strings.ToLower(op) {
	case ">", "more than", "over", "above", "exceed", "exceeds":
		return cmpGT
	case "<=", "≤", "up to", "at most":
		return cmpLTE
	case "<", "less than", "below", "under":
		return cmpLT
	case "=":
		return cmpEQ
	default:
		return cmpGTE
	}
}

func (c condition) holds(ctx lineContext) bool {
	var actual decimal.Decimal
	switch c.metric {
	case metricLineAmount:
		actual = ctx.lineAmount
	case metricOrderAmount:
		actual = ctx.orderAmount
	default:
		actual = ctx.quantity
	}
	switch c.cmp {
	case cmpGT:
		return actual.GreaterThan(c.value)
	case cmpLTE:
		return actual.LessThanOrEqual(c.value)
	case cmpLT:
		return actual.LessThan(c.value)
	case cmpEQ:
		return actual.Equal(c.value)
	default:
		return actual.GreaterThanOrEqual(c.value)
	}
}

// discountApplies reports whether d covers the matched item under ctx.
// A discount naming contract items applies only to those items. Conditions
// that name no item and contain no parseable clause never apply.
func discountApplies(d entity.Discount, item string, pricing []entity.PricingTerm, ctx lineContext) bool {
	text := strings.ToLower(d.Conditions)
	if strings.TrimSpace(text) == "" {
		return true
	}

	namesAny, namesItem := false, false
	for _, p := range pricing {
		name := fold(p.Item)
		if name != "" && strings.Contains(text, name) {
			namesAny = true
			if name == fold(item) {
				namesItem = true
			}
		}
	}
	if namesAny && !namesItem {
		return false
	}

	conds := parseConditions(d.Conditions)
	if len(conds) == 0 {
		return namesItem
	}
	for _, c := range conds {
		if !c.holds(ctx) {
			return false
		}
	}
	return true
}

// applyDiscount returns the discounted unit price, or false for unknown types
func applyDiscount(price decimal.Decimal, d entity.Discount) (decimal.Decimal, bool) {
	switch strings.ToLower(strings.TrimSpace(d.Type)) {
	case "percentage", "percent", "pct", "%", "volume":
		if d.Amount.GreaterThan(hundred) {
			return price, false
		}
		return price.Mul(hundred.Sub(d.Amount)).Div(hundred), true
	case "fixed", "flat", "amount", "fixed_amount", "per_unit":
		discounted := price.Sub(d.Amount)
		if discounted.IsNegative() {
			discounted = decimal.Zero
		}
		return discounted, true
	default:
		return price, false
	}
}

// expectedPrice is the contract price after the best applicable discount
func expectedPrice(term entity.PricingTerm, terms *entity.ContractTerms, ctx lineContext) (decimal.Decimal, *entity.Discount) {
	best := term.Price
	var applied *entity.Discount
	for i := range terms.Discounts {
		d := terms.Discounts[i]
		if !discountApplies(d, term.Item, terms.Pricing, ctx) {
			continue
		}
		price, ok := applyDiscount(term.Price, d)
		if ok && price.LessThan(best) {
			best = price
			applied = &terms.Discounts[i]
		}
	}
	return best, applied
}
