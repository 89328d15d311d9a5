package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/contract-reconciler/internal/domain/entity"
	"github.com/garyjia/contract-reconciler/internal/usage"
)

func TestUsageWorkbook_Write(t *testing.T) {
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	records := []entity.UsageRecord{
		{ID: "a", Timestamp: from.Add(time.Hour), Operation: entity.OperationInvoiceAnalysis, Model: "gpt-4o", TokensUsed: 1000, EstimatedCost: decimal.RequireFromString("0.004"), Success: true, ProcessingTime: 1200},
		{ID: "b", Timestamp: from.Add(2 * time.Hour), Operation: entity.OperationContractParsing, Model: "gpt-4o-mini", TokensUsed: 500, EstimatedCost: decimal.RequireFromString("0.0001"), Success: false, ProcessingTime: 800},
	}
	agg := usage.Aggregate("monthly", from, from.AddDate(0, 1, 0), records)

	var buf bytes.Buffer
	require.NoError(t, NewUsageWorkbook(zap.NewNop()).Write(&buf, agg, records))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetSummary, SheetModels, SheetRecords}, f.GetSheetList())

	period, err := f.GetCellValue(SheetSummary, "B1")
	require.NoError(t, err)
	assert.Equal(t, "monthly", period)

	total, err := f.GetCellValue(SheetSummary, "B4")
	require.NoError(t, err)
	assert.Equal(t, "2", total)

	rows, err := f.GetRows(SheetRecords)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, "a", rows[1][0])
	assert.Equal(t, "contract_parsing", rows[2][2])

	models, err := f.GetRows(SheetModels)
	require.NoError(t, err)
	require.Len(t, models, 3)
	assert.Equal(t, "gpt-4o", models[1][0])
	assert.Equal(t, "gpt-4o-mini", models[2][0])
}
