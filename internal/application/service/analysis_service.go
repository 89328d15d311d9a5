package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/contract-reconciler/internal/application/port"
	"github.com/garyjia/contract-reconciler/internal/domain/apperr"
	"github.com/garyjia/contract-reconciler/internal/domain/entity"
	"github.com/garyjia/contract-reconciler/internal/normalize"
	"github.com/garyjia/contract-reconciler/internal/outcome"
	"github.com/garyjia/contract-reconciler/internal/ratelimit"
	"github.com/garyjia/contract-reconciler/internal/reconcile"
	"github.com/garyjia/contract-reconciler/internal/usage"
)

// AnalysisConfig gates and bounds the pipeline
type AnalysisConfig struct {
	Enabled           bool
	MockMode          bool
	Configured        bool // a real extractor has credentials
	ExtractionTimeout time.Duration
}

// AnalysisStatus is reported by the health endpoints
type AnalysisStatus struct {
	Enabled    bool
	MockMode   bool
	Configured bool
	Model      string
}

// AnalysisService runs documents through the analysis pipeline
type AnalysisService interface {
	// AnalyzeInvoice extracts an invoice and reconciles it against the
	// supplied contract terms
	AnalyzeInvoice(ctx context.Context, req *normalize.InvoiceRequest) (*entity.AnalysisResult, error)
	// ExtractContractVendor extracts vendor details and terms from a contract
	ExtractContractVendor(ctx context.Context, req *normalize.ContractRequest) (*entity.VendorContractExtraction, error)
	Status() AnalysisStatus
}

type analysisServiceImpl struct {
	cfg        AnalysisConfig
	normalizer *normalize.Normalizer
	limiter    ratelimit.Limiter
	ledger     *usage.Ledger
	extractor  port.DocumentExtractor
	engine     *reconcile.Engine
	outcomes   *outcome.Logger
	logger     *zap.Logger
}

// NewAnalysisService creates a new AnalysisService
func NewAnalysisService(
	cfg AnalysisConfig,
	normalizer *normalize.Normalizer,
	limiter ratelimit.Limiter,
	ledger *usage.Ledger,
	extractor port.DocumentExtractor,
	engine *reconcile.Engine,
	outcomes *outcome.Logger,
	logger *zap.Logger,
) AnalysisService {
	if cfg.ExtractionTimeout <= 0 {
		cfg.ExtractionTimeout = 60 * time.Second
	}
	return &analysisServiceImpl{
		cfg:        cfg,
		normalizer: normalizer,
		limiter:    limiter,
		ledger:     ledger,
		extractor:  extractor,
		engine:     engine,
		outcomes:   outcomes,
		logger:     logger,
	}
}

func (s *analysisServiceImpl) Status() AnalysisStatus {
	return AnalysisStatus{
		Enabled:    s.cfg.Enabled,
		MockMode:   s.cfg.MockMode,
		Configured: s.cfg.Configured,
		Model:      s.extractor.Model(),
	}
}

// AnalyzeInvoice runs the invoice pipeline
func (s *analysisServiceImpl) AnalyzeInvoice(ctx context.Context, req *normalize.InvoiceRequest) (*entity.AnalysisResult, error) {
	start := time.Now()
	logReq := outcome.Request{Operation: entity.OperationInvoiceAnalysis}
	if req != nil {
		logReq.FileName = req.FileName
		logReq.Source = sourceOf(&req.DocumentRequest)
		logReq.HasTerms = req.ContractTerms != nil
	}
	s.outcomes.Started(ctx, logReq)

	result, tokens, err := s.analyzeInvoice(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		s.outcomes.Failed(ctx, logReq, err, elapsed)
		return nil, err
	}

	result.RequestID = outcome.RequestID(ctx)
	result.ProcessingTime = elapsed.Milliseconds()

	s.outcomes.Completed(ctx, logReq, outcome.Result{
		Confidence:       result.Confidence,
		ComplianceStatus: result.ComplianceStatus,
		Discrepancies:    len(result.Discrepancies),
		HighSeverity:     result.CountBySeverity()[entity.SeverityHigh],
		TokensUsed:       tokens,
	}, elapsed)

	return result, nil
}

func (s *analysisServiceImpl) analyzeInvoice(ctx context.Context, req *normalize.InvoiceRequest) (*entity.AnalysisResult, int, error) {
	if err := s.gate(); err != nil {
		return nil, 0, err
	}

	normalized, err := s.normalizer.NormalizeInvoice(ctx, req)
	if err != nil {
		return nil, 0, err
	}

	if err := s.admit(ctx); err != nil {
		return nil, 0, err
	}
	s.checkBudget(ctx)

	extractCtx, cancel := context.WithTimeout(ctx, s.cfg.ExtractionTimeout)
	defer cancel()

	callStart := time.Now()
	extraction, err := s.extractor.ExtractInvoice(extractCtx, normalized.Document)
	err = s.classify(ctx, extractCtx, err)
	tokens := s.record(ctx, entity.OperationInvoiceAnalysis, extraction.UsageOr(s.extractor.Model()), err == nil, time.Since(callStart))
	if err != nil {
		return nil, tokens, err
	}

	// The spend is ledgered; a caller that went away gets no reconciliation.
	if ctx.Err() != nil {
		return nil, tokens, apperr.Wrap(apperr.KindCanceled, ctx.Err(), "request canceled after extraction")
	}

	var opts []reconcile.Option
	if normalized.Vendor != nil && normalized.Vendor.Name != "" {
		opts = append(opts, reconcile.WithExpectedVendor(normalized.Vendor.Name))
	}

	result, err := s.engine.Reconcile(extraction.Draft, normalized.Terms, opts...)
	if err != nil {
		return nil, tokens, err
	}
	if extraction.Notes != "" {
		result.AIReasoning += " Extraction notes: " + extraction.Notes
	}

	return result, tokens, nil
}

// ExtractContractVendor runs the contract pipeline
func (s *analysisServiceImpl) ExtractContractVendor(ctx context.Context, req *normalize.ContractRequest) (*entity.VendorContractExtraction, error) {
	start := time.Now()
	logReq := outcome.Request{Operation: entity.OperationContractParsing}
	if req != nil {
		logReq.FileName = req.FileName
		logReq.Source = sourceOf(&req.DocumentRequest)
	}
	s.outcomes.Started(ctx, logReq)

	result, tokens, err := s.extractContract(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		s.outcomes.Failed(ctx, logReq, err, elapsed)
		return nil, err
	}

	result.RequestID = outcome.RequestID(ctx)
	result.ProcessingTime = elapsed.Milliseconds()

	s.outcomes.Completed(ctx, logReq, outcome.Result{
		Confidence: result.Confidence,
		TokensUsed: tokens,
	}, elapsed)

	return result, nil
}

func (s *analysisServiceImpl) extractContract(ctx context.Context, req *normalize.ContractRequest) (*entity.VendorContractExtraction, int, error) {
	if err := s.gate(); err != nil {
		return nil, 0, err
	}
	if req == nil {
		return nil, 0, apperr.New(apperr.KindSchemaValidation, "request body is required")
	}

	doc, err := s.normalizer.Normalize(ctx, &req.DocumentRequest)
	if err != nil {
		return nil, 0, err
	}

	if err := s.admit(ctx); err != nil {
		return nil, 0, err
	}
	s.checkBudget(ctx)

	extractCtx, cancel := context.WithTimeout(ctx, s.cfg.ExtractionTimeout)
	defer cancel()

	callStart := time.Now()
	extraction, err := s.extractor.ExtractContractVendor(extractCtx, doc)
	err = s.classify(ctx, extractCtx, err)
	tokens := s.record(ctx, entity.OperationContractParsing, extraction.UsageOr(s.extractor.Model()), err == nil, time.Since(callStart))
	if err != nil {
		return nil, tokens, err
	}
	if ctx.Err() != nil {
		return nil, tokens, apperr.Wrap(apperr.KindCanceled, ctx.Err(), "request canceled after extraction")
	}
	if extraction.Result == nil {
		return nil, tokens, apperr.New(apperr.KindExtractionFailure, "extractor returned no contract")
	}

	return extraction.Result, tokens, nil
}

func (s *analysisServiceImpl) gate() error {
	if !s.cfg.Enabled {
		return apperr.New(apperr.KindFeatureDisabled, "AI features are disabled")
	}
	return nil
}

// admit applies the rate limit to the caller identity on ctx. A limiter
// backend failure admits the request.
func (s *analysisServiceImpl) admit(ctx context.Context) error {
	identity := outcome.Identity(ctx)
	if identity == "" {
		identity = ratelimit.LocalIdentity
	}

	decision, err := s.limiter.Allow(ctx, identity)
	if err != nil {
		s.logger.Error("Rate limiter unavailable, admitting request",
			zap.String("identity", identity),
			zap.Error(err))
		return nil
	}
	if !decision.Allowed {
		return apperr.Wrap(apperr.KindRateLimitExceeded,
			&ratelimit.ExceededError{Identity: identity, Decision: decision},
			"rate limit exceeded")
	}
	return nil
}

// checkBudget logs a breached ceiling; it never blocks the request
func (s *analysisServiceImpl) checkBudget(ctx context.Context) {
	status, err := s.ledger.CheckBudget(ctx, s.ledger.Today())
	if err != nil {
		s.logger.Warn("Budget check failed", zap.Error(err))
		return
	}
	if status.Exceeded() {
		s.logger.Warn("Daily budget exceeded, continuing",
			zap.String("cost", status.Cost.String()),
			zap.String("cost_limit", status.CostLimit.String()),
			zap.Int("requests", status.Requests),
			zap.Int("request_limit", status.RequestLimit))
	}
}

// classify gives extraction errors a pipeline kind. A deadline on the
// extraction context alone is a timeout; a done caller context is a cancel.
func (s *analysisServiceImpl) classify(ctx, extractCtx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		if apperr.KindOf(err) == apperr.KindCanceled {
			return err
		}
		return apperr.Wrap(apperr.KindCanceled, err, "request canceled during extraction")
	}
	if errors.Is(extractCtx.Err(), context.DeadlineExceeded) {
		if apperr.KindOf(err) == apperr.KindExtractionTimeout {
			return err
		}
		return apperr.Wrap(apperr.KindExtractionTimeout, err, "extraction timed out")
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Wrap(apperr.KindExtractionFailure, err, "extraction failed")
}

// record ledgers one extraction call on a context that survives caller
// cancellation and returns the tokens recorded
func (s *analysisServiceImpl) record(ctx context.Context, op entity.Operation, u port.ModelUsage, success bool, elapsed time.Duration) int {
	_, err := s.ledger.Record(context.WithoutCancel(ctx), usage.RecordInput{
		Operation:      op,
		Model:          u.Model,
		TokensUsed:     u.TokensUsed,
		Success:        success,
		ProcessingTime: elapsed,
	})
	if err != nil {
		s.logger.Error("Failed to record usage",
			zap.String("operation", string(op)),
			zap.String("request_id", outcome.RequestID(ctx)),
			zap.Error(err))
	}
	return u.TokensUsed
}

func sourceOf(req *normalize.DocumentRequest) string {
	if req.ImageURL != "" {
		return "url"
	}
	return "inline"
}
