package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Operation names a ledgered AI invocation
type Operation string

const (
	OperationInvoiceAnalysis Operation = "invoice_analysis"
	OperationContractParsing Operation = "contract_parsing"
)

// UsageRecord is one append-only ledger entry
type UsageRecord struct {
	ID             string          `json:"id"`
	Timestamp      time.Time       `json:"timestamp"`
	Operation      Operation       `json:"operation"`
	TokensUsed     int             `json:"tokensUsed"`
	EstimatedCost  decimal.Decimal `json:"estimatedCost"`
	Model          string          `json:"model"`
	Success        bool            `json:"success"`
	ProcessingTime int64           `json:"processingTime"`
}

// UsageBreakdown is a per-dimension slice of an aggregate
type UsageBreakdown struct {
	Requests int             `json:"requests"`
	Tokens   int             `json:"tokens"`
	Cost     decimal.Decimal `json:"cost"`
}

// UsageAggregate summarizes ledger records over a period
type UsageAggregate struct {
	Period                string                       `json:"period"`
	From                  time.Time                    `json:"from"`
	To                    time.Time                    `json:"to"`
	TotalRequests         int                          `json:"totalRequests"`
	SuccessfulRequests    int                          `json:"successfulRequests"`
	FailedRequests        int                          `json:"failedRequests"`
	TotalTokens           int                          `json:"totalTokens"`
	TotalCost             decimal.Decimal              `json:"totalCost"`
	AverageProcessingTime int64                        `json:"averageProcessingTime"`
	ByOperation           map[Operation]UsageBreakdown `json:"byOperation"`
	ByModel               map[string]UsageBreakdown    `json:"byModel"`
}
