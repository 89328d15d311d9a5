package reconcile

import (
	"math"
	"strings"

	"github.com/garyjia/contract-reconciler/internal/domain/entity"
)

var amountFields = []string{entity.FieldTotalAmount, entity.FieldSubtotal, entity.FieldTaxAmount}

// confidence combines extraction certainty with a discrepancy penalty floor.
// The result never exceeds the draft's overall confidence or the confidence
// of any amount-bearing field, line items included.
func (e *Engine) confidence(draft *entity.InvoiceDraft, found []entity.Discrepancy) float64 {
	score := clamp(draft.Confidence)

	if avg, ok := materialAverage(draft.FieldConfidence); ok {
		score = math.Min(score, avg)
	}
	for field, v := range draft.FieldConfidence {
		if isMaterial(field) {
			score = math.Min(score, clamp(v))
		}
	}

	floor := 1.0
	for _, d := range found {
		floor -= e.cfg.penalty(d.Severity)
	}
	score = math.Min(score, clamp(floor))

	// Truncate so rounding can never lift the score above an input
	return math.Floor(score*1000) / 1000
}

func materialAverage(fields map[string]float64) (float64, bool) {
	var sum float64
	var n int
	for name, v := range fields {
		if isMaterial(name) {
			sum += clamp(v)
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func isMaterial(field string) bool {
	for _, f := range amountFields {
		if field == f {
			return true
		}
	}
	return strings.HasPrefix(field, entity.FieldLineItems)
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
