package http

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/contract-reconciler/internal/application/service"
	"github.com/garyjia/contract-reconciler/internal/domain/entity"
	"github.com/garyjia/contract-reconciler/internal/infrastructure/external/mock"
	"github.com/garyjia/contract-reconciler/internal/normalize"
	"github.com/garyjia/contract-reconciler/internal/outcome"
	"github.com/garyjia/contract-reconciler/internal/ratelimit"
	"github.com/garyjia/contract-reconciler/internal/reconcile"
	"github.com/garyjia/contract-reconciler/internal/report"
	"github.com/garyjia/contract-reconciler/internal/usage"
)

var pngData = base64.StdEncoding.EncodeToString(append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...))

type testServer struct {
	router *gin.Engine
	ledger *usage.Ledger
}

func newTestServer(t *testing.T, enabled bool, rateLimit int) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	engine, err := reconcile.NewEngine(reconcile.DefaultConfig(), reconcile.DefaultMatcher())
	require.NoError(t, err)
	ledger := usage.NewLedger(usage.NewMemoryStore(), usage.DefaultPriceTable(), usage.Limits{}, nil, logger)

	analysis := service.NewAnalysisService(
		service.AnalysisConfig{Enabled: enabled, MockMode: true, ExtractionTimeout: time.Second},
		normalize.New(normalize.Config{MaxDocumentBytes: 1 << 20}, nil, logger),
		ratelimit.NewMemoryLimiter(rateLimit, time.Minute, logger),
		ledger,
		mock.NewExtractor(0, logger),
		engine,
		outcome.NewLogger(logger),
		logger,
	)

	cfg := DefaultServerConfig()
	cfg.Version = "test"
	cfg.MaxBodyBytes = 64 << 10
	srv := NewServer(cfg, analysis, ledger, logger)
	return &testServer{router: srv.Router(), ledger: ledger}
}

func (s *testServer) do(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func invoiceBody() map[string]interface{} {
	return map[string]interface{}{
		"imageData": pngData,
		"imageType": "image/png",
		"fileName":  "invoice.png",
		"contractTerms": map[string]interface{}{
			"paymentTerms": "Net 30",
			"pricing": []map[string]interface{}{
				{"item": "Printer Paper", "price": 15, "unit": "box"},
				{"item": "Toner Cartridge", "price": "100.00", "unit": "each"},
			},
			"taxRate":        8,
			"effectiveDate":  "2024-01-01",
			"expirationDate": "2024-12-31",
		},
	}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, true, 10)

	w := s.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))

	w = s.do(http.MethodGet, "/analyze/invoice", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "invoice-analysis", health.Service)
	assert.Equal(t, "healthy", health.Status)
	assert.True(t, health.MockMode)
	assert.Equal(t, "test", health.Version)

	w = s.do(http.MethodGet, "/analyze/contract-vendor", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "contract-vendor-extraction")
}

func TestAnalyzeInvoice_Compliant(t *testing.T) {
	s := newTestServer(t, true, 10)

	w := s.do(http.MethodPost, "/analyze/invoice", invoiceBody(), map[string]string{HeaderRequestID: "client-req-7"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "client-req-7", w.Header().Get(HeaderRequestID))

	var result entity.AnalysisResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, entity.ComplianceCompliant, result.ComplianceStatus)
	assert.Equal(t, "client-req-7", result.RequestID)
	assert.Empty(t, result.Discrepancies)
}

func TestAnalyzeInvoice_MissingSource(t *testing.T) {
	s := newTestServer(t, true, 10)

	w := s.do(http.MethodPost, "/analyze/invoice", map[string]interface{}{"fileName": "x.png"}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "schema_validation", resp.Kind)
	assert.NotEmpty(t, resp.Details)
	assert.NotEmpty(t, resp.RequestID)

	agg, err := s.ledger.DailyUsage(t.Context(), s.ledger.Today())
	require.NoError(t, err)
	assert.Equal(t, 0, agg.TotalRequests)
}

func TestAnalyzeInvoice_MalformedJSON(t *testing.T) {
	s := newTestServer(t, true, 10)

	w := s.do(http.MethodPost, "/analyze/invoice", `{"imageData": `, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "schema_validation", decodeError(t, w).Kind)

	w = s.do(http.MethodPost, "/analyze/invoice", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalyzeInvoice_InvalidTerms(t *testing.T) {
	s := newTestServer(t, true, 10)
	body := invoiceBody()
	terms := body["contractTerms"].(map[string]interface{})
	terms["expirationDate"] = "2023-01-01"

	w := s.do(http.MethodPost, "/analyze/invoice", body, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "schema_validation", resp.Kind)
	assert.Contains(t, strings.Join(resp.Details, ";"), "expirationDate")
}

func TestAnalyzeInvoice_BodyTooLarge(t *testing.T) {
	s := newTestServer(t, true, 10)
	body := map[string]interface{}{"imageData": strings.Repeat("A", 128<<10)}

	w := s.do(http.MethodPost, "/analyze/invoice", body, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w).Error, "exceeds")
}

func TestAnalyzeInvoice_RateLimited(t *testing.T) {
	s := newTestServer(t, true, 2)
	client := map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}

	for i := 0; i < 2; i++ {
		w := s.do(http.MethodPost, "/analyze/invoice", invoiceBody(), client)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := s.do(http.MethodPost, "/analyze/invoice", invoiceBody(), client)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "rate_limit_exceeded", resp.Kind)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// A different client still has quota
	w = s.do(http.MethodPost, "/analyze/invoice", invoiceBody(), map[string]string{"X-Real-IP": "198.51.100.4"})
	assert.Equal(t, http.StatusOK, w.Code)

	agg, err := s.ledger.DailyUsage(t.Context(), s.ledger.Today())
	require.NoError(t, err)
	assert.Equal(t, 3, agg.TotalRequests)
}

func TestAnalyzeInvoice_FeatureDisabled(t *testing.T) {
	s := newTestServer(t, false, 10)

	w := s.do(http.MethodPost, "/analyze/invoice", invoiceBody(), nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "feature_disabled", decodeError(t, w).Kind)
}

func TestExtractContractVendor(t *testing.T) {
	s := newTestServer(t, true, 10)

	w := s.do(http.MethodPost, "/analyze/contract-vendor", map[string]interface{}{"imageData": pngData, "imageType": "png"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result entity.VendorContractExtraction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, "Acme Office Supplies", result.Vendor.Name)
	assert.Len(t, result.Contract.Terms.Pricing, 2)
	assert.NotEmpty(t, result.RequestID)
}

func TestUsageEndpoints(t *testing.T) {
	s := newTestServer(t, true, 10)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/analyze/invoice", invoiceBody(), nil).Code)

	w := s.do(http.MethodGet, "/usage/daily", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var agg entity.UsageAggregate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &agg))
	assert.Equal(t, 1, agg.TotalRequests)
	assert.Equal(t, mock.InvoiceTokens, agg.TotalTokens)

	w = s.do(http.MethodGet, "/usage/weekly", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "last_7_days")

	w = s.do(http.MethodGet, "/usage/monthly", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/usage/budget", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var budget usage.BudgetStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &budget))
	assert.Equal(t, 1, budget.Requests)
	assert.False(t, budget.Exceeded())

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/usage/daily?date=yesterday", nil, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/usage/monthly?month=2024-13", nil, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/usage/weekly?days=0", nil, nil).Code)
}

func TestUsageReport(t *testing.T) {
	s := newTestServer(t, true, 10)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/analyze/invoice", invoiceBody(), nil).Code)

	w := s.do(http.MethodGet, "/usage/report", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, report.ContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(report.SheetRecords)
	require.NoError(t, err)
	assert.Len(t, rows, 2, "header plus one record")
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID(), Recovery(zap.NewNop()))
	router.GET("/panic", func(*gin.Context) { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "internal", resp.Kind)
	assert.Equal(t, w.Header().Get(HeaderRequestID), resp.RequestID)
}

func TestRequestIDPropagatesToContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	router.GET("/ctx", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"requestId": outcome.RequestID(c.Request.Context()),
			"identity":  outcome.Identity(c.Request.Context()),
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/ctx", nil)
	req.Header.Set("X-Real-IP", "192.0.2.1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, w.Header().Get(HeaderRequestID), body["requestId"])
	assert.Equal(t, "192.0.2.1", body["identity"])
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, true, 10)

	req := httptest.NewRequest(http.MethodOptions, "/analyze/invoice", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
