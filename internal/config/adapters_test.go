package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileConfig_Defaults(t *testing.T) {
	t.Setenv("AI_MOCK_MODE", "true")
	cfg, err := Load("")
	require.NoError(t, err)

	rc, err := cfg.ReconcileConfig()
	require.NoError(t, err)
	assert.True(t, rc.LowSeverityMaxPct.Equal(decimal.NewFromInt(10)))
	assert.True(t, rc.ArithmeticTolerance.Equal(decimal.RequireFromString("0.01")))
	assert.InDelta(t, 0.5, rc.ActionableConfidence, 1e-9)

	cfg.Reconciliation.LowSeverityMaxPct = 20
	_, err = cfg.ReconcileConfig()
	assert.Error(t, err, "low bound above medium bound")
}

func TestPriceTable(t *testing.T) {
	t.Setenv("AI_MOCK_MODE", "true")
	cfg, err := Load("")
	require.NoError(t, err)

	table := cfg.PriceTable("mock-extractor")

	cost, known := table.Cost("gpt-4o", 1000)
	assert.True(t, known)
	assert.True(t, cost.Equal(decimal.RequireFromString("0.004")), cost.String())

	cost, known = table.Cost("mock-extractor", 1000)
	assert.True(t, known)
	assert.True(t, cost.IsZero())

	_, known = table.Cost("claude-x", 1000)
	assert.False(t, known)
}

func TestUsageLimitsAndDatabase(t *testing.T) {
	t.Setenv("AI_MOCK_MODE", "true")
	t.Setenv("USAGE_DAILY_COST_LIMIT", "12.5")
	t.Setenv("DATABASE_PATH", "/tmp/usage-test.db")
	cfg, err := Load("")
	require.NoError(t, err)

	limits := cfg.UsageLimits()
	assert.True(t, limits.DailyCost.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, 1000, limits.DailyRequests)
	assert.Equal(t, "/tmp/usage-test.db", cfg.DatabaseConfig().Path)
	assert.Equal(t, "svc", cfg.LoggerConfig("svc").Service)
}
