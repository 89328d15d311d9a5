package reconcile

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/garyjia/contract-reconciler/internal/domain/apperr"
	"github.com/garyjia/contract-reconciler/internal/domain/entity"
)

var hundred = decimal.NewFromInt(100)

// Engine reconciles invoice drafts against contract terms
type Engine struct {
	cfg     Config
	matcher Matcher
}

// Option adjusts a single reconciliation
type Option func(*options)

type options struct {
	expectedVendor string
}

// WithExpectedVendor flags a vendor name on the invoice that does not match
func WithExpectedVendor(name string) Option {
	return func(o *options) {
		o.expectedVendor = name
	}
}

// NewEngine creates an engine; a nil matcher selects DefaultMatcher
func NewEngine(cfg Config, matcher Matcher) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid reconciliation config: %w", err)
	}
	if matcher == nil {
		matcher = DefaultMatcher()
	}
	return &Engine{cfg: cfg, matcher: matcher}, nil
}

// Reconcile compares draft against terms. terms may be nil, in which case
// only the invoice's internal arithmetic is checked. The returned result has
// no processing time; the caller stamps it.
func (e *Engine) Reconcile(draft *entity.InvoiceDraft, terms *entity.ContractTerms, opts ...Option) (*entity.AnalysisResult, error) {
	if draft == nil {
		return nil, apperr.New(apperr.KindDataIntegrity, "no invoice draft to reconcile")
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	if terms != nil {
		if err := terms.Validate(); err != nil {
			return nil, err
		}
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	run := &run{cfg: e.cfg, matcher: e.matcher, draft: draft, terms: terms}
	run.checkLineItems()
	run.checkSubtotal()
	run.checkTax()
	if terms != nil {
		run.checkPaymentTerms()
		run.checkContractPeriod()
	}
	run.checkVendor(o.expectedVendor)

	confidence := e.confidence(draft, run.found)
	if confidence < e.cfg.ActionableConfidence {
		run.add(entity.Discrepancy{
			Type:           entity.DiscrepancyOther,
			Severity:       entity.SeverityHigh,
			Field:          "confidence",
			Expected:       fmt.Sprintf(">= %.2f", e.cfg.ActionableConfidence),
			Actual:         fmt.Sprintf("%.3f", confidence),
			Description:    "Manual review required: extraction confidence is too low to act on this comparison",
			Recommendation: "Verify the invoice figures against the source document before approving",
		})
	}

	discrepancies := orderDiscrepancies(run.found)

	result := &entity.AnalysisResult{
		Success:             true,
		Confidence:          confidence,
		Discrepancies:       discrepancies,
		ComplianceStatus:    complianceStatus(discrepancies),
		PotentialOvercharge: run.overcharge,
		Invoice:             draft,
	}
	result.AIReasoning = summarize(result, len(draft.LineItems), terms)
	return result, nil
}

// run accumulates findings for one reconciliation
type run struct {
	cfg        Config
	matcher    Matcher
	draft      *entity.InvoiceDraft
	terms      *entity.ContractTerms
	found      []entity.Discrepancy
	overcharge decimal.Decimal
}

func (r *run) add(d entity.Discrepancy) {
	r.found = append(r.found, d)
}

func (r *run) checkLineItems() {
	order := *r.draft.Subtotal

	for i, item := range r.draft.LineItems {
		prefix := fmt.Sprintf("lineItems[%d]", i)

		if !item.Quantity.IsPositive() {
			r.add(entity.Discrepancy{
				Type:           entity.DiscrepancyQuantity,
				Severity:       entity.SeverityHigh,
				Field:          prefix + ".quantity",
				Expected:       "> 0",
				Actual:         item.Quantity.String(),
				Description:    fmt.Sprintf("%q has a non-positive quantity", item.Description),
				Recommendation: "Request a corrected invoice",
			})
		}

		computed := item.Quantity.Mul(item.UnitPrice)
		if diff := item.TotalPrice.Sub(computed); diff.Abs().GreaterThan(r.cfg.ArithmeticTolerance) {
			r.add(entity.Discrepancy{
				Type:        entity.DiscrepancyOther,
				Severity:    entity.SeverityMedium,
				Field:       prefix + ".totalPrice",
				Expected:    computed.StringFixed(2),
				Actual:      item.TotalPrice.StringFixed(2),
				Difference:  decimalPtr(diff),
				Description: fmt.Sprintf("%q total does not equal quantity × unit price", item.Description),
			})
		}

		if r.terms == nil {
			continue
		}

		idx, ok := r.matcher.Match(item.Description, r.terms.Pricing)
		if !ok {
			r.add(entity.Discrepancy{
				Type:           entity.DiscrepancyUnauthorizedItem,
				Severity:       r.cfg.amountSeverity(item.TotalPrice),
				Field:          prefix,
				Expected:       "item covered by contract pricing",
				Actual:         item.Description,
				Difference:     decimalPtr(item.TotalPrice),
				Description:    fmt.Sprintf("%q is not covered by the contract", item.Description),
				Recommendation: "Confirm the item was authorized or dispute the charge",
			})
			continue
		}
		term := r.terms.Pricing[idx]

		if item.Unit != "" && term.Unit != "" && fold(item.Unit) != fold(term.Unit) {
			r.add(entity.Discrepancy{
				Type:        entity.DiscrepancyOther,
				Severity:    entity.SeverityLow,
				Field:       prefix + ".unit",
				Expected:    term.Unit,
				Actual:      item.Unit,
				Description: fmt.Sprintf("%q is billed per %s, contract prices per %s", item.Description, item.Unit, term.Unit),
			})
		}

		r.comparePrice(prefix, item, term, order)
	}
}

func (r *run) comparePrice(prefix string, item entity.LineItem, term entity.PricingTerm, order decimal.Decimal) {
	expected, discount := expectedPrice(term, r.terms, lineContext{
		quantity:    item.Quantity,
		lineAmount:  item.TotalPrice,
		orderAmount: order,
	})

	diff := item.UnitPrice.Sub(expected)
	if diff.IsZero() {
		return
	}

	var pct decimal.Decimal
	if expected.IsZero() {
		pct = hundred.Mul(hundred)
	} else {
		pct = diff.Abs().Div(expected).Mul(hundred)
	}
	if pct.LessThanOrEqual(r.cfg.PriceTolerancePct) {
		return
	}

	severity := entity.SeverityLow
	description := fmt.Sprintf("%q billed at %s, below the contracted %s", item.Description, item.UnitPrice.StringFixed(2), expected.StringFixed(2))
	recommendation := "Confirm the lower price is intended"
	if diff.IsPositive() {
		severity = r.cfg.overchargeSeverity(pct)
		description = fmt.Sprintf("%q billed at %s, %s%% above the contracted %s", item.Description, item.UnitPrice.StringFixed(2), pct.StringFixed(1), expected.StringFixed(2))
		recommendation = "Dispute the overcharge with the vendor"
		if item.Quantity.IsPositive() {
			r.overcharge = r.overcharge.Add(diff.Mul(item.Quantity))
		}
	}
	if discount != nil {
		description += fmt.Sprintf(" after %s discount (%s)", discount.Type, discount.Conditions)
	}

	exposure := diff
	if item.Quantity.IsPositive() {
		exposure = diff.Mul(item.Quantity)
	}

	r.add(entity.Discrepancy{
		Type:           entity.DiscrepancyPrice,
		Severity:       severity,
		Field:          prefix + ".unitPrice",
		Expected:       expected.StringFixed(2),
		Actual:         item.UnitPrice.StringFixed(2),
		Difference:     decimalPtr(diff),
		Description:    description,
		Recommendation: recommendation,
		Exposure:       decimalPtr(exposure),
	})
}

func (r *run) checkSubtotal() {
	if len(r.draft.LineItems) == 0 {
		return
	}
	sum := r.draft.LineItemsTotal()
	diff := r.draft.Subtotal.Sub(sum)
	if diff.Abs().GreaterThan(r.cfg.ArithmeticTolerance) {
		r.add(entity.Discrepancy{
			Type:        entity.DiscrepancyOther,
			Severity:    entity.SeverityMedium,
			Field:       "subtotal",
			Expected:    sum.StringFixed(2),
			Actual:      r.draft.Subtotal.StringFixed(2),
			Difference:  decimalPtr(diff),
			Description: "Subtotal does not equal the sum of line item totals",
		})
	}
}

func (r *run) checkTax() {
	subtotal := *r.draft.Subtotal
	tax := r.draft.TaxOrZero()

	expectedTotal := subtotal.Add(tax)
	if diff := r.draft.TotalAmount.Sub(expectedTotal); diff.Abs().GreaterThan(r.cfg.TaxTolerance) {
		r.add(entity.Discrepancy{
			Type:           entity.DiscrepancyTax,
			Severity:       r.cfg.amountSeverity(diff),
			Field:          "totalAmount",
			Expected:       expectedTotal.StringFixed(2),
			Actual:         r.draft.TotalAmount.StringFixed(2),
			Difference:     decimalPtr(diff),
			Description:    "Total amount does not equal subtotal plus tax",
			Recommendation: "Request a corrected invoice",
		})
	}

	rate := r.draft.TaxRate
	if r.terms != nil && r.terms.TaxRate != nil {
		rate = r.terms.TaxRate
		if r.draft.TaxRate != nil && !r.draft.TaxRate.Equal(*r.terms.TaxRate) {
			r.add(entity.Discrepancy{
				Type:        entity.DiscrepancyTax,
				Severity:    entity.SeverityMedium,
				Field:       "taxRate",
				Expected:    r.terms.TaxRate.String(),
				Actual:      r.draft.TaxRate.String(),
				Difference:  decimalPtr(r.draft.TaxRate.Sub(*r.terms.TaxRate)),
				Description: "Invoice tax rate differs from the contracted rate",
			})
		}
	}
	if rate == nil {
		return
	}

	expectedTax := subtotal.Mul(*rate).Div(hundred)
	if diff := tax.Sub(expectedTax); diff.Abs().GreaterThan(r.cfg.TaxTolerance) {
		r.add(entity.Discrepancy{
			Type:        entity.DiscrepancyTax,
			Severity:    r.cfg.amountSeverity(diff),
			Field:       "taxAmount",
			Expected:    expectedTax.StringFixed(2),
			Actual:      tax.StringFixed(2),
			Difference:  decimalPtr(diff),
			Description: fmt.Sprintf("Tax amount does not match %s%% of the subtotal", rate.String()),
		})
	}
}

func (r *run) checkPaymentTerms() {
	want, got := r.terms.PaymentTerms, r.draft.PaymentTerms
	if strings.TrimSpace(want) == "" || strings.TrimSpace(got) == "" {
		return
	}
	if normalizeTerms(want) == normalizeTerms(got) {
		return
	}
	r.add(entity.Discrepancy{
		Type:        entity.DiscrepancyPaymentTerms,
		Severity:    entity.SeverityLow,
		Field:       "paymentTerms",
		Expected:    want,
		Actual:      got,
		Description: "Invoice payment terms differ from the contract",
	})
}

func (r *run) checkContractPeriod() {
	if r.draft.Date == nil || r.terms.Covers(*r.draft.Date) {
		return
	}
	expected := "from " + r.terms.EffectiveDate.String()
	if r.terms.ExpirationDate != nil {
		expected += " to " + r.terms.ExpirationDate.String()
	}
	r.add(entity.Discrepancy{
		Type:           entity.DiscrepancyOther,
		Severity:       entity.SeverityMedium,
		Field:          "date",
		Expected:       expected,
		Actual:         r.draft.Date.String(),
		Description:    "Invoice is dated outside the contract term",
		Recommendation: "Check whether a renewed contract covers this invoice",
	})
}

func (r *run) checkVendor(expected string) {
	want, got := fold(expected), fold(r.draft.VendorName)
	if want == "" || got == "" || strings.Contains(want, got) || strings.Contains(got, want) {
		return
	}
	r.add(entity.Discrepancy{
		Type:        entity.DiscrepancyOther,
		Severity:    entity.SeverityLow,
		Field:       "vendorName",
		Expected:    expected,
		Actual:      r.draft.VendorName,
		Description: "Invoice vendor differs from the expected vendor",
	})
}

var (
	termsPunct     = regexp.MustCompile(`[^a-z0-9]+`)
	termsLetterNum = regexp.MustCompile(`([a-z])([0-9])`)
)

func normalizeTerms(s string) string {
	s = strings.ToLower(s)
	s = termsLetterNum.ReplaceAllString(s, "$1 $2")
	s = termsPunct.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// orderDiscrepancies sorts by severity, then financial impact, keeping
// detection order for ties.
func orderDiscrepancies(found []entity.Discrepancy) []entity.Discrepancy {
	out := make([]entity.Discrepancy, len(found))
	copy(out, found)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Severity.Rank(), out[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return out[i].Impact().GreaterThan(out[j].Impact())
	})
	return out
}

func complianceStatus(discrepancies []entity.Discrepancy) entity.ComplianceStatus {
	if len(discrepancies) == 0 {
		return entity.ComplianceCompliant
	}
	for _, d := range discrepancies {
		if d.Severity == entity.SeverityHigh {
			return entity.ComplianceNonCompliant
		}
	}
	return entity.ComplianceDiscrepancy
}

func summarize(result *entity.AnalysisResult, lines int, terms *entity.ContractTerms) string {
	counts := result.CountBySeverity()
	scope := "internal consistency only (no contract terms supplied)"
	if terms != nil {
		scope = fmt.Sprintf("%d contract price entries", len(terms.Pricing))
	}
	summary := fmt.Sprintf("Checked %d line items against %s. Found %d discrepancies (%d high, %d medium, %d low).",
		lines, scope, len(result.Discrepancies),
		counts[entity.SeverityHigh], counts[entity.SeverityMedium], counts[entity.SeverityLow])
	if result.PotentialOvercharge.IsPositive() {
		summary += fmt.Sprintf(" Potential overcharge: %s.", result.PotentialOvercharge.StringFixed(2))
	}
	return summary
}

func decimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
