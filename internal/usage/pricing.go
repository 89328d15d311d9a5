package usage

import (
	"strings"

	"github.com/shopspring/decimal"
)

var thousand = decimal.NewFromInt(1000)

// ModelPrice is the per-1K-token price of one model
type ModelPrice struct {
	InputPer1K  decimal.Decimal
	OutputPer1K decimal.Decimal
}

// PriceTable estimates the cost of a token count per model.
// Only a total token count is known per call, so it is split into input and
// output tokens by a fixed share.
type PriceTable struct {
	prices     map[string]ModelPrice
	inputShare decimal.Decimal
}

// NewPriceTable creates a table; model names are matched case-insensitively
func NewPriceTable(prices map[string]ModelPrice, inputShare decimal.Decimal) PriceTable {
	normalized := make(map[string]ModelPrice, len(prices))
	for name, p := range prices {
		normalized[strings.ToLower(name)] = p
	}
	return PriceTable{prices: normalized, inputShare: inputShare}
}

// DefaultPriceTable prices the gpt-4o family with an 80/20 input/output split
func DefaultPriceTable() PriceTable {
	return NewPriceTable(map[string]ModelPrice{
		"gpt-4o": {
			InputPer1K:  decimal.RequireFromString("0.0025"),
			OutputPer1K: decimal.RequireFromString("0.01"),
		},
		"gpt-4o-mini": {
			InputPer1K:  decimal.RequireFromString("0.00015"),
			OutputPer1K: decimal.RequireFromString("0.0006"),
		},
		"gpt-4-turbo": {
			InputPer1K:  decimal.RequireFromString("0.01"),
			OutputPer1K: decimal.RequireFromString("0.03"),
		},
	}, decimal.RequireFromString("0.8"))
}

// Lookup finds a model's price by exact name, then by the longest known
// prefix so dated snapshots like gpt-4o-2024-08-06 resolve to their family.
func (t PriceTable) Lookup(model string) (ModelPrice, bool) {
	name := strings.ToLower(strings.TrimSpace(model))
	if p, ok := t.prices[name]; ok {
		return p, true
	}
	best, bestLen := ModelPrice{}, 0
	for known, p := range t.prices {
		if strings.HasPrefix(name, known+"-") && len(known) > bestLen {
			best, bestLen = p, len(known)
		}
	}
	return best, bestLen > 0
}

// Cost estimates the price of tokens on model. Unknown models cost zero and
// report false.
func (t PriceTable) Cost(model string, tokens int) (decimal.Decimal, bool) {
	p, ok := t.Lookup(model)
	if !ok {
		return decimal.Zero, false
	}
	total := decimal.NewFromInt(int64(tokens))
	input := total.Mul(t.inputShare)
	output := total.Sub(input)
	cost := input.Div(thousand).Mul(p.InputPer1K).Add(output.Div(thousand).Mul(p.OutputPer1K))
	return cost.Round(6), true
}
