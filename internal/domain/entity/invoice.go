package entity

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/garyjia/contract-reconciler/internal/domain/apperr"
)

// Field confidence keys for amount-bearing fields
const (
	FieldTotalAmount = "totalAmount"
	FieldSubtotal    = "subtotal"
	FieldTaxAmount   = "taxAmount"
	FieldLineItems   = "lineItems"
)

// LineItem is one invoiced line
type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
	Unit        string          `json:"unit"`
}

// InvoiceDraft is the structured record produced by the extraction adapter
type InvoiceDraft struct {
	InvoiceNumber   string             `json:"invoiceNumber"`
	Date            *Date              `json:"date,omitempty"`
	DueDate         *Date              `json:"dueDate,omitempty"`
	TotalAmount     *decimal.Decimal   `json:"totalAmount"`
	Subtotal        *decimal.Decimal   `json:"subtotal"`
	TaxAmount       *decimal.Decimal   `json:"taxAmount,omitempty"`
	TaxRate         *decimal.Decimal   `json:"taxRate,omitempty"`
	LineItems       []LineItem         `json:"lineItems"`
	VendorName      string             `json:"vendorName"`
	PaymentTerms    string             `json:"paymentTerms,omitempty"`
	Confidence      float64            `json:"confidence"`
	FieldConfidence map[string]float64 `json:"fieldConfidence,omitempty"`
}

// Validate checks the structural invariants the reconciliation depends on.
// Failures are data integrity errors, distinct from discrepancies.
func (d *InvoiceDraft) Validate() error {
	var details []string

	if d.TotalAmount == nil {
		details = append(details, "totalAmount: missing")
	}
	if d.Subtotal == nil {
		details = append(details, "subtotal: missing")
	}
	for i, item := range d.LineItems {
		if item.UnitPrice.IsNegative() {
			details = append(details, fmt.Sprintf("lineItems[%d].unitPrice: negative", i))
		}
	}
	for field, score := range d.FieldConfidence {
		if score < 0 || score > 1 {
			details = append(details, fmt.Sprintf("fieldConfidence.%s: outside [0,1]", field))
		}
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		details = append(details, "confidence: outside [0,1]")
	}

	if len(details) > 0 {
		return apperr.New(apperr.KindDataIntegrity, "extracted invoice failed structural checks").WithDetails(details...)
	}
	return nil
}

// TaxOrZero returns the tax amount, treating an absent value as zero
func (d *InvoiceDraft) TaxOrZero() decimal.Decimal {
	if d.TaxAmount == nil {
		return decimal.Zero
	}
	return *d.TaxAmount
}

// LineItemsTotal sums the stated line totals
func (d *InvoiceDraft) LineItemsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range d.LineItems {
		sum = sum.Add(item.TotalPrice)
	}
	return sum
}
