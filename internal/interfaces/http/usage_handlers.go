package http

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/contract-reconciler/internal/domain/apperr"
	"github.com/garyjia/contract-reconciler/internal/domain/entity"
	"github.com/garyjia/contract-reconciler/internal/report"
	"github.com/garyjia/contract-reconciler/internal/usage"
)

// UsageReader is the read side of the usage ledger
type UsageReader interface {
	DailyUsage(ctx context.Context, day time.Time) (*entity.UsageAggregate, error)
	TrailingUsage(ctx context.Context, days int, asOf time.Time) (*entity.UsageAggregate, error)
	MonthlyUsage(ctx context.Context, year int, month time.Month) (*entity.UsageAggregate, error)
	Records(ctx context.Context, from, to time.Time) ([]entity.UsageRecord, error)
	CheckBudget(ctx context.Context, day time.Time) (*usage.BudgetStatus, error)
	Today() time.Time
}

// UsageHandlers serves usage aggregates and reports
type UsageHandlers struct {
	ledger   UsageReader
	workbook *report.UsageWorkbook
	errors   errorWriter
	logger   *zap.Logger
}

// NewUsageHandlers creates usage handlers
func NewUsageHandlers(ledger UsageReader, exposeInternal bool, logger *zap.Logger) *UsageHandlers {
	return &UsageHandlers{
		ledger:   ledger,
		workbook: report.NewUsageWorkbook(logger),
		errors:   errorWriter{exposeInternal: exposeInternal, logger: logger},
		logger:   logger,
	}
}

// Daily handles GET /usage/daily?date=YYYY-MM-DD
func (h *UsageHandlers) Daily(c *gin.Context) {
	day := h.ledger.Today()
	if raw := c.Query("date"); raw != "" {
		d, err := entity.ParseDate(raw)
		if err != nil {
			h.errors.write(c, apperr.New(apperr.KindSchemaValidation, "invalid date").WithDetails(err.Error()))
			return
		}
		day = d.Time
	}

	agg, err := h.ledger.DailyUsage(c.Request.Context(), day)
	if err != nil {
		h.errors.write(c, apperr.Wrap(apperr.KindInternal, err, "failed to load usage"))
		return
	}
	c.JSON(http.StatusOK, agg)
}

// Weekly handles GET /usage/weekly?days=N, the trailing window ending today
func (h *UsageHandlers) Weekly(c *gin.Context) {
	days := 7
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 366 {
			h.errors.write(c, apperr.New(apperr.KindSchemaValidation, "days must be between 1 and 366"))
			return
		}
		days = n
	}

	agg, err := h.ledger.TrailingUsage(c.Request.Context(), days, h.ledger.Today())
	if err != nil {
		h.errors.write(c, apperr.Wrap(apperr.KindInternal, err, "failed to load usage"))
		return
	}
	c.JSON(http.StatusOK, agg)
}

// Monthly handles GET /usage/monthly?month=YYYY-MM
func (h *UsageHandlers) Monthly(c *gin.Context) {
	month, err := h.parseMonth(c.Query("month"))
	if err != nil {
		h.errors.write(c, err)
		return
	}

	agg, err := h.ledger.MonthlyUsage(c.Request.Context(), month.Year(), month.Month())
	if err != nil {
		h.errors.write(c, apperr.Wrap(apperr.KindInternal, err, "failed to load usage"))
		return
	}
	c.JSON(http.StatusOK, agg)
}

// Budget handles GET /usage/budget
func (h *UsageHandlers) Budget(c *gin.Context) {
	status, err := h.ledger.CheckBudget(c.Request.Context(), h.ledger.Today())
	if err != nil {
		h.errors.write(c, apperr.Wrap(apperr.KindInternal, err, "failed to check budget"))
		return
	}
	c.JSON(http.StatusOK, status)
}

// Report handles GET /usage/report?month=YYYY-MM and returns an .xlsx workbook
func (h *UsageHandlers) Report(c *gin.Context) {
	month, err := h.parseMonth(c.Query("month"))
	if err != nil {
		h.errors.write(c, err)
		return
	}

	ctx := c.Request.Context()
	agg, err := h.ledger.MonthlyUsage(ctx, month.Year(), month.Month())
	if err != nil {
		h.errors.write(c, apperr.Wrap(apperr.KindInternal, err, "failed to load usage"))
		return
	}
	records, err := h.ledger.Records(ctx, agg.From, agg.To)
	if err != nil {
		h.errors.write(c, apperr.Wrap(apperr.KindInternal, err, "failed to load usage records"))
		return
	}

	var buf bytes.Buffer
	if err := h.workbook.Write(&buf, agg, records); err != nil {
		h.errors.write(c, apperr.Wrap(apperr.KindInternal, err, "failed to build report"))
		return
	}

	filename := fmt.Sprintf("usage-%s.xlsx", month.Format("2006-01"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, report.ContentType, buf.Bytes())
}

func (h *UsageHandlers) parseMonth(raw string) (time.Time, error) {
	if raw == "" {
		now := h.ledger.Today()
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	}
	month, err := time.Parse("2006-01", raw)
	if err != nil {
		return time.Time{}, apperr.New(apperr.KindSchemaValidation, "month must be formatted YYYY-MM")
	}
	return month, nil
}
