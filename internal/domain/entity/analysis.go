package entity

import "github.com/shopspring/decimal"

// ComplianceStatus is the tri-state verdict of an analysis
type ComplianceStatus string

const (
	ComplianceCompliant    ComplianceStatus = "compliant"
	ComplianceDiscrepancy  ComplianceStatus = "discrepancy"
	ComplianceNonCompliant ComplianceStatus = "non_compliant"
)

// AnalysisResult is the terminal artifact of an invoice analysis
type AnalysisResult struct {
	RequestID           string           `json:"requestId,omitempty"`
	Success             bool             `json:"success"`
	Confidence          float64          `json:"confidence"`
	Discrepancies       []Discrepancy    `json:"discrepancies"`
	ComplianceStatus    ComplianceStatus `json:"complianceStatus"`
	AIReasoning         string           `json:"aiReasoning,omitempty"`
	ProcessingTime      int64            `json:"processingTime"`
	PotentialOvercharge decimal.Decimal  `json:"potentialOvercharge"`
	Invoice             *InvoiceDraft    `json:"invoice,omitempty"`
}

// CountBySeverity tallies discrepancies per severity
func (r *AnalysisResult) CountBySeverity() map[Severity]int {
	counts := make(map[Severity]int, 3)
	for _, d := range r.Discrepancies {
		counts[d.Severity]++
	}
	return counts
}
