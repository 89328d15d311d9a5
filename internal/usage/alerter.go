package usage

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Ceiling names a budget limit
type Ceiling string

const (
	CeilingDailyCost     Ceiling = "daily_cost"
	CeilingDailyRequests Ceiling = "daily_requests"
)

// BudgetAlert reports a breached ceiling
type BudgetAlert struct {
	Ceiling Ceiling
	Date    string
	Limit   string
	Actual  string
}

// Message renders the alert for humans
func (a BudgetAlert) Message() string {
	switch a.Ceiling {
	case CeilingDailyCost:
		return fmt.Sprintf("AI usage budget exceeded on %s: spent $%s of the $%s daily limit", a.Date, a.Actual, a.Limit)
	default:
		return fmt.Sprintf("AI request ceiling exceeded on %s: %s requests against a daily limit of %s", a.Date, a.Actual, a.Limit)
	}
}

// Alerter delivers budget alerts
type Alerter interface {
	Alert(ctx context.Context, alert BudgetAlert) error
}

// LogAlerter writes alerts to the log only
type LogAlerter struct {
	logger *zap.Logger
}

// NewLogAlerter creates a log-only alerter
func NewLogAlerter(logger *zap.Logger) *LogAlerter {
	return &LogAlerter{logger: logger}
}

func (a *LogAlerter) Alert(_ context.Context, alert BudgetAlert) error {
	a.logger.Warn(alert.Message(),
		zap.String("ceiling", string(alert.Ceiling)),
		zap.String("date", alert.Date),
		zap.String("limit", alert.Limit),
		zap.String("actual", alert.Actual))
	return nil
}

// MultiAlerter fans an alert out to every alerter, returning the first error
type MultiAlerter []Alerter

func (m MultiAlerter) Alert(ctx context.Context, alert BudgetAlert) error {
	var first error
	for _, a := range m {
		if err := a.Alert(ctx, alert); err != nil && first == nil {
			first = err
		}
	}
	return first
}
