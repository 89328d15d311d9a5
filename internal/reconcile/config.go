// Package reconcile compares an extracted invoice against contract terms.
//
// The engine is pure: it reads no clock, does no I/O and returns the same
// result for the same inputs. Problems found in the invoice are reported as
// discrepancies; only an invoice that cannot be compared is an error.
package reconcile

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/garyjia/contract-reconciler/internal/domain/entity"
)

// Config holds every threshold the engine applies
type Config struct {
	PriceTolerancePct    decimal.Decimal // deviation at or below this is accepted
	LowSeverityMaxPct    decimal.Decimal // overcharges up to this are low
	MediumSeverityMaxPct decimal.Decimal // overcharges up to this are medium, above are high
	ArithmeticTolerance  decimal.Decimal // absolute slack on line and subtotal arithmetic
	TaxTolerance         decimal.Decimal // absolute slack on tax and total arithmetic
	HighRiskAmount       decimal.Decimal // unauthorized lines above this are high
	ActionableConfidence float64         // below this the result needs manual review
	LowPenalty           float64
	MediumPenalty        float64
	HighPenalty          float64
}

// DefaultConfig returns the shipped thresholds
func DefaultConfig() Config {
	return Config{
		PriceTolerancePct:    decimal.NewFromInt(1),
		LowSeverityMaxPct:    decimal.NewFromInt(10),
		MediumSeverityMaxPct: decimal.NewFromInt(15),
		ArithmeticTolerance:  decimal.RequireFromString("0.01"),
		TaxTolerance:         decimal.NewFromInt(1),
		HighRiskAmount:       decimal.NewFromInt(1000),
		ActionableConfidence: 0.5,
		LowPenalty:           0.02,
		MediumPenalty:        0.08,
		HighPenalty:          0.2,
	}
}

// Validate ensures thresholds are within range and ordered
func (c Config) Validate() error {
	if c.PriceTolerancePct.IsNegative() {
		return fmt.Errorf("price tolerance must not be negative, got %s", c.PriceTolerancePct)
	}
	if c.LowSeverityMaxPct.GreaterThan(c.MediumSeverityMaxPct) {
		return fmt.Errorf("low severity bound %s exceeds medium bound %s", c.LowSeverityMaxPct, c.MediumSeverityMaxPct)
	}
	if c.ArithmeticTolerance.IsNegative() || c.TaxTolerance.IsNegative() {
		return fmt.Errorf("tolerances must not be negative")
	}
	if c.ActionableConfidence < 0 || c.ActionableConfidence > 1 {
		return fmt.Errorf("actionable confidence must be between 0.0 and 1.0, got %.2f", c.ActionableConfidence)
	}
	for _, p := range []float64{c.LowPenalty, c.MediumPenalty, c.HighPenalty} {
		if p < 0 || p > 1 {
			return fmt.Errorf("severity penalties must be between 0.0 and 1.0, got %.2f", p)
		}
	}
	return nil
}

func (c Config) penalty(s entity.Severity) float64 {
	switch s {
	case entity.SeverityHigh:
		return c.HighPenalty
	case entity.SeverityMedium:
		return c.MediumPenalty
	default:
		return c.LowPenalty
	}
}

// overchargeSeverity grades a positive relative deviation in percent
func (c Config) overchargeSeverity(pct decimal.Decimal) entity.Severity {
	switch {
	case pct.LessThanOrEqual(c.LowSeverityMaxPct):
		return entity.SeverityLow
	case pct.LessThanOrEqual(c.MediumSeverityMaxPct):
		return entity.SeverityMedium
	default:
		return entity.SeverityHigh
	}
}

// amountSeverity escalates medium to high for large sums
func (c Config) amountSeverity(amount decimal.Decimal) entity.Severity {
	if amount.Abs().GreaterThan(c.HighRiskAmount) {
		return entity.SeverityHigh
	}
	return entity.SeverityMedium
}
