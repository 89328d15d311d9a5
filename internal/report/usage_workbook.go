// Package report renders usage ledger data as spreadsheets
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/contract-reconciler/internal/domain/entity"
)

// Sheet names of the usage workbook
const (
	SheetSummary = "Summary"
	SheetModels  = "By Model"
	SheetRecords = "Records"
)

// ContentType is the MIME type of the generated workbook
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// UsageWorkbook writes a usage aggregate and its records as .xlsx
type UsageWorkbook struct {
	logger *zap.Logger
}

// NewUsageWorkbook creates a new workbook writer
func NewUsageWorkbook(logger *zap.Logger) *UsageWorkbook {
	return &UsageWorkbook{logger: logger}
}

// Write renders the workbook to w
func (u *UsageWorkbook) Write(w io.Writer, agg *entity.UsageAggregate, records []entity.UsageRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("failed to name summary sheet: %w", err)
	}
	for _, name := range []string{SheetModels, SheetRecords} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := u.writeSummary(f, agg); err != nil {
		return err
	}
	if err := u.writeModels(f, agg, header); err != nil {
		return err
	}
	if err := u.writeRecords(f, records, header); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	u.logger.Info("Usage workbook generated",
		zap.String("period", agg.Period),
		zap.Int("records", len(records)))
	return nil
}

func (u *UsageWorkbook) writeSummary(f *excelize.File, agg *entity.UsageAggregate) error {
	rows := [][]interface{}{
		{"Period", agg.Period},
		{"From", agg.From.Format(entity.DateLayout)},
		{"To (exclusive)", agg.To.Format(entity.DateLayout)},
		{"Total requests", agg.TotalRequests},
		{"Successful requests", agg.SuccessfulRequests},
		{"Failed requests", agg.FailedRequests},
		{"Total tokens", agg.TotalTokens},
		{"Total cost (USD)", agg.TotalCost.InexactFloat64()},
		{"Average processing time (ms)", agg.AverageProcessingTime},
	}
	for i, row := range rows {
		if err := f.SetSheetRow(SheetSummary, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return fmt.Errorf("failed to write summary row %d: %w", i+1, err)
		}
	}
	return f.SetColWidth(SheetSummary, "A", "A", 30)
}

func (u *UsageWorkbook) writeModels(f *excelize.File, agg *entity.UsageAggregate, header int) error {
	if err := f.SetSheetRow(SheetModels, "A1", &[]interface{}{"Model", "Requests", "Tokens", "Cost (USD)"}); err != nil {
		return fmt.Errorf("failed to write model header: %w", err)
	}
	if err := f.SetCellStyle(SheetModels, "A1", "D1", header); err != nil {
		return fmt.Errorf("failed to style model header: %w", err)
	}

	models := make([]string, 0, len(agg.ByModel))
	for m := range agg.ByModel {
		models = append(models, m)
	}
	sort.Strings(models)

	for i, m := range models {
		b := agg.ByModel[m]
		row := []interface{}{m, b.Requests, b.Tokens, b.Cost.InexactFloat64()}
		if err := f.SetSheetRow(SheetModels, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return fmt.Errorf("failed to write model row: %w", err)
		}
	}
	return nil
}

func (u *UsageWorkbook) writeRecords(f *excelize.File, records []entity.UsageRecord, header int) error {
	cols := []interface{}{"ID", "Timestamp (UTC)", "Operation", "Model", "Tokens", "Cost (USD)", "Success", "Processing (ms)"}
	if err := f.SetSheetRow(SheetRecords, "A1", &cols); err != nil {
		return fmt.Errorf("failed to write record header: %w", err)
	}
	if err := f.SetCellStyle(SheetRecords, "A1", "H1", header); err != nil {
		return fmt.Errorf("failed to style record header: %w", err)
	}

	for i, r := range records {
		row := []interface{}{
			r.ID,
			r.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			string(r.Operation),
			r.Model,
			r.TokensUsed,
			r.EstimatedCost.InexactFloat64(),
			r.Success,
			r.ProcessingTime,
		}
		if err := f.SetSheetRow(SheetRecords, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return fmt.Errorf("failed to write record row %d: %w", i+2, err)
		}
	}
	return nil
}
