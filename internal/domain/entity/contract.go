package entity

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/garyjia/contract-reconciler/internal/domain/apperr"
)

var hundred = decimal.NewFromInt(100)

// PricingTerm is one contracted price
type PricingTerm struct {
	Item       string          `json:"item"`
	Price      decimal.Decimal `json:"price"`
	Unit       string          `json:"unit"`
	Conditions string          `json:"conditions,omitempty"`
}

// Discount is a contracted discount, applied when its conditions hold
type Discount struct {
	Type       string          `json:"type"`
	Amount     decimal.Decimal `json:"amount"`
	Conditions string          `json:"conditions"`
}

// ContractTerms is the comparison baseline for one invoice analysis.
// It is built per request from caller-supplied JSON and never persisted here.
type ContractTerms struct {
	PaymentTerms   string           `json:"paymentTerms"`
	Pricing        []PricingTerm    `json:"pricing"`
	Discounts      []Discount       `json:"discounts,omitempty"`
	TaxRate        *decimal.Decimal `json:"taxRate,omitempty"`
	EffectiveDate  Date             `json:"effectiveDate"`
	ExpirationDate *Date            `json:"expirationDate,omitempty"`
}

// Validate checks the structural invariants of caller-supplied terms
func (c *ContractTerms) Validate() error {
	var details []string

	if c.EffectiveDate.IsZero() {
		details = append(details, "contractTerms.effectiveDate: required")
	}
	if c.ExpirationDate != nil && !c.EffectiveDate.IsZero() && c.ExpirationDate.Before(c.EffectiveDate.Time) {
		details = append(details, "contractTerms.expirationDate: must not precede effectiveDate")
	}
	for i, p := range c.Pricing {
		if strings.TrimSpace(p.Item) == "" {
			details = append(details, fmt.Sprintf("contractTerms.pricing[%d].item: required", i))
		}
		if !p.Price.IsPositive() {
			details = append(details, fmt.Sprintf("contractTerms.pricing[%d].price: must be greater than 0", i))
		}
	}
	if c.TaxRate != nil && (c.TaxRate.IsNegative() || c.TaxRate.GreaterThan(hundred)) {
		details = append(details, "contractTerms.taxRate: must be between 0 and 100")
	}
	for i, d := range c.Discounts {
		if d.Amount.IsNegative() {
			details = append(details, fmt.Sprintf("contractTerms.discounts[%d].amount: must not be negative", i))
		}
	}

	if len(details) > 0 {
		return apperr.New(apperr.KindSchemaValidation, "invalid contract terms").WithDetails(details...)
	}
	return nil
}

// Covers reports whether d falls inside the contract term
func (c *ContractTerms) Covers(d Date) bool {
	if d.IsZero() {
		return true
	}
	if !c.EffectiveDate.IsZero() && d.Before(c.EffectiveDate.Time) {
		return false
	}
	if c.ExpirationDate != nil && d.After(c.ExpirationDate.Time) {
		return false
	}
	return true
}
