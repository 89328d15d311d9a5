package normalize

import "github.com/garyjia/contract-reconciler/internal/domain/entity"

// DocumentRequest names exactly one image source: a URL or inline base64
type DocumentRequest struct {
	ImageURL  string `json:"imageUrl,omitempty" validate:"required_without=ImageData,excluded_with=ImageData,max=8192"`
	ImageData string `json:"imageData,omitempty" validate:"required_without=ImageURL"`
	ImageType string `json:"imageType,omitempty" validate:"omitempty,max=100"`
	FileName  string `json:"fileName,omitempty" validate:"omitempty,max=255"`
}

// InvoiceRequest is the body of an invoice analysis
type InvoiceRequest struct {
	DocumentRequest
	ContractTerms *entity.ContractTerms `json:"contractTerms,omitempty"`
	VendorInfo    *entity.VendorInfo    `json:"vendorInfo,omitempty"`
}

// ContractRequest is the body of a contract/vendor extraction
type ContractRequest struct {
	DocumentRequest
}

// NormalizedInvoice is a validated invoice request
type NormalizedInvoice struct {
	Document *Document
	Terms    *entity.ContractTerms
	Vendor   *entity.VendorInfo
}
