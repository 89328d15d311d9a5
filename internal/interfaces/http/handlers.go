package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/contract-reconciler/internal/application/service"
	"github.com/garyjia/contract-reconciler/internal/domain/apperr"
	"github.com/garyjia/contract-reconciler/internal/normalize"
)

// Handlers contains the analysis HTTP request handlers
type Handlers struct {
	analysis service.AnalysisService
	version  string
	errors   errorWriter
	logger   *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(analysis service.AnalysisService, version string, exposeInternal bool, logger *zap.Logger) *Handlers {
	return &Handlers{
		analysis: analysis,
		version:  version,
		errors:   errorWriter{exposeInternal: exposeInternal, logger: logger},
		logger:   logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Service    string `json:"service,omitempty"`
	Status     string `json:"status"`
	MockMode   bool   `json:"mockMode"`
	Configured bool   `json:"configured"`
	Enabled    bool   `json:"enabled"`
	Version    string `json:"version"`
	Timestamp  string `json:"timestamp"`
}

func (h *Handlers) health(service string) HealthResponse {
	st := h.analysis.Status()
	return HealthResponse{
		Service:    service,
		Status:     "healthy",
		MockMode:   st.MockMode,
		Configured: st.Configured,
		Enabled:    st.Enabled,
		Version:    h.version,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, h.health(""))
}

// InvoiceHealth handles GET /analyze/invoice
func (h *Handlers) InvoiceHealth(c *gin.Context) {
	c.JSON(http.StatusOK, h.health("invoice-analysis"))
}

// ContractHealth handles GET /analyze/contract-vendor
func (h *Handlers) ContractHealth(c *gin.Context) {
	c.JSON(http.StatusOK, h.health("contract-vendor-extraction"))
}

// AnalyzeInvoice handles POST /analyze/invoice
func (h *Handlers) AnalyzeInvoice(c *gin.Context) {
	var req normalize.InvoiceRequest
	if err := bindJSON(c, &req); err != nil {
		h.errors.write(c, err)
		return
	}

	result, err := h.analysis.AnalyzeInvoice(c.Request.Context(), &req)
	if err != nil {
		h.errors.write(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ExtractContractVendor handles POST /analyze/contract-vendor
func (h *Handlers) ExtractContractVendor(c *gin.Context) {
	var req normalize.ContractRequest
	if err := bindJSON(c, &req); err != nil {
		h.errors.write(c, err)
		return
	}

	result, err := h.analysis.ExtractContractVendor(c.Request.Context(), &req)
	if err != nil {
		h.errors.write(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// bindJSON decodes the body into v, classifying decode failures as schema
// violations
func bindJSON(c *gin.Context, v interface{}) error {
	if c.Request.Body == nil {
		return apperr.New(apperr.KindSchemaValidation, "request body is required")
	}

	err := json.NewDecoder(c.Request.Body).Decode(v)
	if err == nil {
		return nil
	}

	var maxErr *http.MaxBytesError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return apperr.New(apperr.KindSchemaValidation, "request body is required")
	case errors.As(err, &maxErr):
		return apperr.New(apperr.KindSchemaValidation, "request body exceeds %d bytes", maxErr.Limit)
	case errors.As(err, &syntaxErr):
		return apperr.New(apperr.KindSchemaValidation, "malformed JSON at offset %d", syntaxErr.Offset)
	case errors.As(err, &typeErr):
		return apperr.New(apperr.KindSchemaValidation, "invalid request body").
			WithDetails(fmt.Sprintf("%s: expected %s", typeErr.Field, typeErr.Type))
	}
	return apperr.Wrap(apperr.KindSchemaValidation, err, "invalid request body").WithDetails(err.Error())
}
