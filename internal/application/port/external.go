package port

import (
	"context"

	"github.com/garyjia/contract-reconciler/internal/domain/entity"
)

// Document is a normalized image source ready for extraction.
// ImageURL is either an https URL or a data: URL carrying the image inline.
type Document struct {
	ImageURL  string
	FileName  string
	MIMEType  string
	Converted bool // rendered from a PDF
}

// ModelUsage reports what one extraction call consumed
type ModelUsage struct {
	Model      string
	TokensUsed int
}

// InvoiceExtraction is the adapter output for an invoice image
type InvoiceExtraction struct {
	Draft *entity.InvoiceDraft
	Notes string // free-text reasoning from the model, if any
	Usage ModelUsage
}

// ContractExtraction is the adapter output for a contract image
type ContractExtraction struct {
	Result *entity.VendorContractExtraction
	Usage  ModelUsage
}

// DocumentExtractor turns document images into structured drafts.
// When the model was called, the returned extraction carries Usage even if
// err is non-nil so the spend can be ledgered.
type DocumentExtractor interface {
	ExtractInvoice(ctx context.Context, doc *Document) (*InvoiceExtraction, error)
	ExtractContractVendor(ctx context.Context, doc *Document) (*ContractExtraction, error)
	// Model names the model used for calls, for usage accounting
	Model() string
}

// PDFRenderer rasterizes the first page of a PDF
type PDFRenderer interface {
	RenderFirstPage(ctx context.Context, pdf []byte) (image []byte, mimeType string, err error)
}

// UsageOr returns the reported usage, naming model when the extractor
// returned nothing or left the model blank
func (e *InvoiceExtraction) UsageOr(model string) ModelUsage {
	if e == nil {
		return ModelUsage{Model: model}
	}
	return e.Usage.or(model)
}

// UsageOr returns the reported usage, naming model when the extractor
// returned nothing or left the model blank
func (e *ContractExtraction) UsageOr(model string) ModelUsage {
	if e == nil {
		return ModelUsage{Model: model}
	}
	return e.Usage.or(model)
}

func (u ModelUsage) or(model string) ModelUsage {
	if u.Model == "" {
		u.Model = model
	}
	return u
}
