// Package mock provides a deterministic extractor for running the service
// without model access.
package mock

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/contract-reconciler/internal/application/port"
	"github.com/garyjia/contract-reconciler/internal/domain/apperr"
	"github.com/garyjia/contract-reconciler/internal/domain/entity"
)

// ModelName is reported in usage records for mock calls
const ModelName = "mock-extractor"

// Token counts reported per call, so ledger aggregates look like real traffic
const (
	InvoiceTokens  = 1500
	ContractTokens = 2000
)

// Extractor implements port.DocumentExtractor with canned documents
type Extractor struct {
	delay  time.Duration
	logger *zap.Logger
}

// NewExtractor creates a mock extractor that waits delay before answering
func NewExtractor(delay time.Duration, logger *zap.Logger) *Extractor {
	return &Extractor{delay: delay, logger: logger}
}

// Model returns ModelName
func (e *Extractor) Model() string {
	return ModelName
}

// ExtractInvoice returns SampleInvoice
func (e *Extractor) ExtractInvoice(ctx context.Context, doc *port.Document) (*port.InvoiceExtraction, error) {
	usage := port.ModelUsage{Model: ModelName}
	if err := e.wait(ctx); err != nil {
		return &port.InvoiceExtraction{Usage: usage}, err
	}

	e.logger.Debug("Mock invoice extraction", zap.String("file_name", doc.FileName))
	usage.TokensUsed = InvoiceTokens
	return &port.InvoiceExtraction{
		Draft: SampleInvoice(),
		Notes: "mock extraction",
		Usage: usage,
	}, nil
}

// ExtractContractVendor returns SampleContract
func (e *Extractor) ExtractContractVendor(ctx context.Context, doc *port.Document) (*port.ContractExtraction, error) {
	usage := port.ModelUsage{Model: ModelName}
	if err := e.wait(ctx); err != nil {
		return &port.ContractExtraction{Usage: usage}, err
	}

	e.logger.Debug("Mock contract extraction", zap.String("file_name", doc.FileName))
	usage.TokensUsed = ContractTokens
	return &port.ContractExtraction{
		Result: SampleContract(),
		Usage:  usage,
	}, nil
}

func (e *Extractor) wait(ctx context.Context) error {
	if e.delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(e.delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return apperr.Wrap(apperr.KindExtractionTimeout, ctx.Err(), "extraction timed out")
		}
		return apperr.Wrap(apperr.KindCanceled, ctx.Err(), "request canceled during extraction")
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// SampleInvoice is an internally consistent invoice for two contracted items
func SampleInvoice() *entity.InvoiceDraft {
	date := entity.NewDate(2024, time.March, 5)
	due := entity.NewDate(2024, time.April, 4)
	return &entity.InvoiceDraft{
		InvoiceNumber: "MOCK-INV-0001",
		Date:          &date,
		DueDate:       &due,
		VendorName:    "Acme Office Supplies",
		PaymentTerms:  "Net 30",
		Subtotal:      decPtr("1250.00"),
		TaxAmount:     decPtr("100.00"),
		TaxRate:       decPtr("8"),
		TotalAmount:   decPtr("1350.00"),
		LineItems: []entity.LineItem{
			{Description: "Printer Paper", Quantity: dec("50"), UnitPrice: dec("15.00"), TotalPrice: dec("750.00"), Unit: "box"},
			{Description: "Toner Cartridge", Quantity: dec("5"), UnitPrice: dec("100.00"), TotalPrice: dec("500.00"), Unit: "each"},
		},
		Confidence: 0.95,
		FieldConfidence: map[string]float64{
			entity.FieldTotalAmount: 0.97,
			entity.FieldSubtotal:    0.96,
			entity.FieldTaxAmount:   0.94,
			entity.FieldLineItems:   0.93,
		},
	}
}

// SampleContract is the agreement SampleInvoice bills against
func SampleContract() *entity.VendorContractExtraction {
	expires := entity.NewDate(2024, time.December, 31)
	return &entity.VendorContractExtraction{
		Success: true,
		Vendor: entity.VendorInfo{
			Name:     "Acme Office Supplies",
			Email:    "billing@acme.example",
			Category: "office_supplies",
		},
		Contract: entity.ExtractedContract{
			Title:          "Office Supplies Master Agreement",
			ContractNumber: "MOCK-MSA-2024",
			TotalValue:     decPtr("25000.00"),
			Terms: entity.ContractTerms{
				PaymentTerms: "Net 30",
				Pricing: []entity.PricingTerm{
					{Item: "Printer Paper", Price: dec("15.00"), Unit: "box"},
					{Item: "Toner Cartridge", Price: dec("100.00"), Unit: "each"},
				},
				Discounts: []entity.Discount{
					{Type: "percentage", Amount: dec("5"), Conditions: "Printer Paper orders of 100+ units"},
				},
				TaxRate:        decPtr("8"),
				EffectiveDate:  entity.NewDate(2024, time.January, 1),
				ExpirationDate: &expires,
			},
		},
		Confidence: 0.9,
		FieldConfidence: map[string]float64{
			"vendor":  0.95,
			"pricing": 0.9,
			"dates":   0.88,
		},
	}
}
