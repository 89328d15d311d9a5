package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/contract-reconciler/internal/usage"
)

// BudgetChecker is implemented by *usage.Ledger
type BudgetChecker interface {
	CheckBudget(ctx context.Context, day time.Time) (*usage.BudgetStatus, error)
	Today() time.Time
}

// Sweeper is implemented by *ratelimit.MemoryLimiter
type Sweeper interface {
	Sweep(now time.Time) int
}

// BudgetCheckJob re-evaluates today's budget so a breach alerts even when
// no request arrives to trigger it
func BudgetCheckJob(schedule string, checker BudgetChecker, logger *zap.Logger) Job {
	return Job{
		Name:     "budget_check",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			status, err := checker.CheckBudget(ctx, checker.Today())
			if err != nil {
				return fmt.Errorf("check budget: %w", err)
			}
			logger.Debug("Budget checked",
				zap.String("date", status.Date),
				zap.String("cost", status.Cost.String()),
				zap.Int("requests", status.Requests),
				zap.Bool("exceeded", status.Exceeded()))
			return nil
		},
	}
}

// SweepJob drops expired rate-limit windows
func SweepJob(schedule string, sweeper Sweeper, logger *zap.Logger) Job {
	return Job{
		Name:     "ratelimit_sweep",
		Schedule: schedule,
		Run: func(context.Context) error {
			if n := sweeper.Sweep(time.Now()); n > 0 {
				logger.Debug("Expired rate-limit windows removed", zap.Int("count", n))
			}
			return nil
		},
	}
}
