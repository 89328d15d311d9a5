package entity

import "github.com/shopspring/decimal"

// DiscrepancyType classifies a detected deviation
type DiscrepancyType string

const (
	DiscrepancyPrice            DiscrepancyType = "price"
	DiscrepancyQuantity         DiscrepancyType = "quantity"
	DiscrepancyTax              DiscrepancyType = "tax"
	DiscrepancyMissingItem      DiscrepancyType = "missing_item"
	DiscrepancyUnauthorizedItem DiscrepancyType = "unauthorized_item"
	DiscrepancyPaymentTerms     DiscrepancyType = "payment_terms"
	DiscrepancyOther            DiscrepancyType = "other"
)

// Severity grades a discrepancy
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank orders severities, higher is worse
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Discrepancy is one deviation between invoice and contract
type Discrepancy struct {
	Type           DiscrepancyType  `json:"type"`
	Severity       Severity         `json:"severity"`
	Field          string           `json:"field"`
	Expected       interface{}      `json:"expected"`
	Actual         interface{}      `json:"actual"`
	Difference     *decimal.Decimal `json:"difference,omitempty"`
	Description    string           `json:"description"`
	Recommendation string           `json:"recommendation,omitempty"`

	// Exposure is the total money at stake when Difference is a per-unit
	// figure, e.g. a unit price delta times quantity
	Exposure *decimal.Decimal `json:"-"`
}

// Impact is the absolute financial magnitude used for ordering
func (d Discrepancy) Impact() decimal.Decimal {
	if d.Exposure != nil {
		return d.Exposure.Abs()
	}
	if d.Difference == nil {
		return decimal.Zero
	}
	return d.Difference.Abs()
}
