package config

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/garyjia/contract-reconciler/internal/reconcile"
	"github.com/garyjia/contract-reconciler/internal/usage"
	"github.com/garyjia/contract-reconciler/pkg/database"
	"github.com/garyjia/contract-reconciler/pkg/utils"
)

// ReconcileConfig converts the reconciliation section into engine thresholds
func (c *Config) ReconcileConfig() (reconcile.Config, error) {
	r := c.Reconciliation
	cfg := reconcile.Config{
		PriceTolerancePct:    decimal.NewFromFloat(r.PriceTolerancePct),
		LowSeverityMaxPct:    decimal.NewFromFloat(r.LowSeverityMaxPct),
		MediumSeverityMaxPct: decimal.NewFromFloat(r.MediumSeverityMaxPct),
		ArithmeticTolerance:  decimal.NewFromFloat(r.ArithmeticTolerance),
		TaxTolerance:         decimal.NewFromFloat(r.TaxTolerance),
		HighRiskAmount:       decimal.NewFromFloat(r.HighRiskAmount),
		ActionableConfidence: r.ActionableConfidence,
		LowPenalty:           r.LowPenalty,
		MediumPenalty:        r.MediumPenalty,
		HighPenalty:          r.HighPenalty,
	}
	if err := cfg.Validate(); err != nil {
		return reconcile.Config{}, fmt.Errorf("reconciliation: %w", err)
	}
	return cfg, nil
}

// PriceTable builds the usage price table. freeModels are priced at zero so
// they are not reported as unknown.
func (c *Config) PriceTable(freeModels ...string) usage.PriceTable {
	prices := make(map[string]usage.ModelPrice, len(c.Usage.Pricing)+len(freeModels))
	for name, p := range c.Usage.Pricing {
		prices[name] = usage.ModelPrice{
			InputPer1K:  decimal.NewFromFloat(p.InputPer1K),
			OutputPer1K: decimal.NewFromFloat(p.OutputPer1K),
		}
	}
	for _, name := range freeModels {
		prices[name] = usage.ModelPrice{}
	}
	return usage.NewPriceTable(prices, decimal.NewFromFloat(c.Usage.InputTokenShare))
}

// UsageLimits returns the daily ceilings
func (c *Config) UsageLimits() usage.Limits {
	return usage.Limits{
		DailyCost:     decimal.NewFromFloat(c.Usage.DailyCostLimit),
		DailyRequests: c.Usage.DailyRequestLimit,
	}
}

// DatabaseConfig returns the SQLite connection settings
func (c *Config) DatabaseConfig() database.Config {
	return database.Config{
		Path:            c.Database.Path,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
	}
}

// LoggerConfig returns the logger settings for service
func (c *Config) LoggerConfig(service string) utils.LoggerConfig {
	return utils.LoggerConfig{
		Level:      c.Logger.Level,
		OutputPath: c.Logger.OutputPath,
		Format:     c.Logger.Format,
		Service:    service,
	}
}
