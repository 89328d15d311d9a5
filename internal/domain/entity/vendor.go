package entity

import "github.com/shopspring/decimal"

// VendorInfo describes the counterparty of a contract
type VendorInfo struct {
	Name        string `json:"name"`
	ContactName string `json:"contactName,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
	TaxID       string `json:"taxId,omitempty"`
	Category    string `json:"category,omitempty"`
}

// ExtractedContract is the contract half of a contract/vendor extraction
type ExtractedContract struct {
	Title          string           `json:"title"`
	ContractNumber string           `json:"contractNumber,omitempty"`
	TotalValue     *decimal.Decimal `json:"totalValue,omitempty"`
	Terms          ContractTerms    `json:"terms"`
}

// VendorContractExtraction is the result of parsing a contract document
type VendorContractExtraction struct {
	Success         bool               `json:"success"`
	RequestID       string             `json:"requestId,omitempty"`
	Vendor          VendorInfo         `json:"vendor"`
	Contract        ExtractedContract  `json:"contract"`
	Confidence      float64            `json:"confidence"`
	FieldConfidence map[string]float64 `json:"fieldConfidence,omitempty"`
	ProcessingTime  int64              `json:"processingTime"`
}
