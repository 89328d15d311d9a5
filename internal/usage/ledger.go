// Package usage records every AI invocation and tracks spend against daily
// ceilings. Ceilings are advisory: breaching one alerts but never blocks.
package usage

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/contract-reconciler/internal/domain/entity"
)

// Limits are the daily ceilings; zero disables a ceiling
type Limits struct {
	DailyCost     decimal.Decimal
	DailyRequests int
}

// RecordInput describes one finished AI invocation
type RecordInput struct {
	Operation      entity.Operation
	Model          string
	TokensUsed     int
	Success        bool
	ProcessingTime time.Duration
}

// BudgetStatus compares one day's usage with the ceilings
type BudgetStatus struct {
	Date             string          `json:"date"`
	Cost             decimal.Decimal `json:"cost"`
	CostLimit        decimal.Decimal `json:"costLimit"`
	Requests         int             `json:"requests"`
	RequestLimit     int             `json:"requestLimit"`
	CostExceeded     bool            `json:"costExceeded"`
	RequestsExceeded bool            `json:"requestsExceeded"`
}

// Exceeded reports whether any ceiling is breached
func (b *BudgetStatus) Exceeded() bool {
	return b.CostExceeded || b.RequestsExceeded
}

// Ledger is the usage ledger
type Ledger struct {
	store   Store
	prices  PriceTable
	limits  Limits
	alerter Alerter
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	alerted map[string]struct{}
}

// LedgerOption configures a Ledger
type LedgerOption func(*Ledger)

// WithLedgerClock replaces the wall clock, for tests
func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) {
		l.now = now
	}
}

// NewLedger creates a ledger; a nil alerter logs alerts only
func NewLedger(store Store, prices PriceTable, limits Limits, alerter Alerter, logger *zap.Logger, opts ...LedgerOption) *Ledger {
	if alerter == nil {
		alerter = NewLogAlerter(logger)
	}
	l := &Ledger{
		store:   store,
		prices:  prices,
		limits:  limits,
		alerter: alerter,
		logger:  logger,
		now:     time.Now,
		alerted: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends a usage record and re-checks today's budget
func (l *Ledger) Record(ctx context.Context, in RecordInput) (*entity.UsageRecord, error) {
	cost, known := l.prices.Cost(in.Model, in.TokensUsed)
	if !known {
		l.logger.Warn("Unknown model in usage record, cost counted as zero",
			zap.String("model", in.Model),
			zap.Int("tokens", in.TokensUsed))
	}

	rec := &entity.UsageRecord{
		ID:             uuid.NewString(),
		Timestamp:      l.now().UTC(),
		Operation:      in.Operation,
		TokensUsed:     in.TokensUsed,
		EstimatedCost:  cost,
		Model:          in.Model,
		Success:        in.Success,
		ProcessingTime: in.ProcessingTime.Milliseconds(),
	}
	if err := l.store.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to append usage record: %w", err)
	}

	l.logger.Debug("Usage recorded",
		zap.String("id", rec.ID),
		zap.String("operation", string(rec.Operation)),
		zap.String("model", rec.Model),
		zap.Int("tokens", rec.TokensUsed),
		zap.String("cost", rec.EstimatedCost.String()),
		zap.Bool("success", rec.Success))

	if _, err := l.CheckBudget(ctx, rec.Timestamp); err != nil {
		l.logger.Warn("Budget check after record failed", zap.Error(err))
	}
	return rec, nil
}

// DailyUsage aggregates the UTC calendar day containing day
func (l *Ledger) DailyUsage(ctx context.Context, day time.Time) (*entity.UsageAggregate, error) {
	from := startOfDay(day)
	to := from.AddDate(0, 0, 1)
	return l.aggregate(ctx, "daily", from, to)
}

// TrailingUsage aggregates the days calendar days ending with asOf
func (l *Ledger) TrailingUsage(ctx context.Context, days int, asOf time.Time) (*entity.UsageAggregate, error) {
	if days <= 0 {
		days = 7
	}
	to := startOfDay(asOf).AddDate(0, 0, 1)
	from := to.AddDate(0, 0, -days)
	return l.aggregate(ctx, fmt.Sprintf("last_%d_days", days), from, to)
}

// MonthlyUsage aggregates one calendar month
func (l *Ledger) MonthlyUsage(ctx context.Context, year int, month time.Month) (*entity.UsageAggregate, error) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	return l.aggregate(ctx, "monthly", from, to)
}

// Records returns the raw records in [from, to)
func (l *Ledger) Records(ctx context.Context, from, to time.Time) ([]entity.UsageRecord, error) {
	recs, err := l.store.Range(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage records: %w", err)
	}
	return recs, nil
}

// Today returns the ledger's current time
func (l *Ledger) Today() time.Time {
	return l.now().UTC()
}

func (l *Ledger) aggregate(ctx context.Context, period string, from, to time.Time) (*entity.UsageAggregate, error) {
	recs, err := l.Records(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return Aggregate(period, from, to, recs), nil
}

// CheckBudget compares day's usage with the ceilings. Each breached ceiling
// is alerted at most once per day.
func (l *Ledger) CheckBudget(ctx context.Context, day time.Time) (*BudgetStatus, error) {
	agg, err := l.DailyUsage(ctx, day)
	if err != nil {
		return nil, err
	}

	date := startOfDay(day).Format(entity.DateLayout)
	status := &BudgetStatus{
		Date:         date,
		Cost:         agg.TotalCost,
		CostLimit:    l.limits.DailyCost,
		Requests:     agg.TotalRequests,
		RequestLimit: l.limits.DailyRequests,
	}
	if l.limits.DailyCost.IsPositive() && agg.TotalCost.GreaterThanOrEqual(l.limits.DailyCost) {
		status.CostExceeded = true
		l.alertOnce(ctx, BudgetAlert{
			Ceiling: CeilingDailyCost,
			Date:    date,
			Limit:   l.limits.DailyCost.StringFixed(2),
			Actual:  agg.TotalCost.StringFixed(2),
		})
	}
	if l.limits.DailyRequests > 0 && agg.TotalRequests >= l.limits.DailyRequests {
		status.RequestsExceeded = true
		l.alertOnce(ctx, BudgetAlert{
			Ceiling: CeilingDailyRequests,
			Date:    date,
			Limit:   strconv.Itoa(l.limits.DailyRequests),
			Actual:  strconv.Itoa(agg.TotalRequests),
		})
	}
	return status, nil
}

func (l *Ledger) alertOnce(ctx context.Context, alert BudgetAlert) {
	key := alert.Date + "/" + string(alert.Ceiling)

	l.mu.Lock()
	if _, done := l.alerted[key]; done {
		l.mu.Unlock()
		return
	}
	l.alerted[key] = struct{}{}
	l.mu.Unlock()

	if err := l.alerter.Alert(ctx, alert); err != nil {
		l.logger.Error("Failed to deliver budget alert, will retry on the next check",
			zap.String("ceiling", string(alert.Ceiling)),
			zap.Error(err))

		l.mu.Lock()
		delete(l.alerted, key)
		l.mu.Unlock()
	}
}
