package service

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/contract-reconciler/internal/application/port"
	"github.com/garyjia/contract-reconciler/internal/domain/apperr"
	"github.com/garyjia/contract-reconciler/internal/domain/entity"
	mockext "github.com/garyjia/contract-reconciler/internal/infrastructure/external/mock"
	"github.com/garyjia/contract-reconciler/internal/normalize"
	"github.com/garyjia/contract-reconciler/internal/outcome"
	"github.com/garyjia/contract-reconciler/internal/ratelimit"
	"github.com/garyjia/contract-reconciler/internal/reconcile"
	"github.com/garyjia/contract-reconciler/internal/usage"
)

const testModel = "gpt-4o"

var pngData = base64.StdEncoding.EncodeToString(append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...))

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) ExtractInvoice(ctx context.Context, doc *port.Document) (*port.InvoiceExtraction, error) {
	args := m.Called(ctx, doc)
	out, _ := args.Get(0).(*port.InvoiceExtraction)
	return out, args.Error(1)
}

func (m *mockExtractor) ExtractContractVendor(ctx context.Context, doc *port.Document) (*port.ContractExtraction, error) {
	args := m.Called(ctx, doc)
	out, _ := args.Get(0).(*port.ContractExtraction)
	return out, args.Error(1)
}

func (m *mockExtractor) Model() string {
	return testModel
}

type fixture struct {
	svc       AnalysisService
	extractor *mockExtractor
	store     *usage.MemoryStore
}

type fixtureOpts struct {
	disabled   bool
	rateLimit  int
	timeout    time.Duration
	dailyLimit int
}

func newFixture(t *testing.T, opts fixtureOpts) *fixture {
	t.Helper()
	logger := zap.NewNop()

	if opts.rateLimit == 0 {
		opts.rateLimit = 100
	}
	if opts.timeout == 0 {
		opts.timeout = time.Second
	}

	engine, err := reconcile.NewEngine(reconcile.DefaultConfig(), reconcile.DefaultMatcher())
	require.NoError(t, err)

	store := usage.NewMemoryStore()
	ledger := usage.NewLedger(store, usage.DefaultPriceTable(), usage.Limits{DailyRequests: opts.dailyLimit}, nil, logger)
	extractor := &mockExtractor{}

	svc := NewAnalysisService(
		AnalysisConfig{Enabled: !opts.disabled, Configured: true, ExtractionTimeout: opts.timeout},
		normalize.New(normalize.Config{MaxDocumentBytes: 1 << 20}, nil, logger),
		ratelimit.NewMemoryLimiter(opts.rateLimit, time.Minute, logger),
		ledger,
		extractor,
		engine,
		outcome.NewLogger(logger),
		logger,
	)
	return &fixture{svc: svc, extractor: extractor, store: store}
}

func (f *fixture) records(t *testing.T) []entity.UsageRecord {
	t.Helper()
	recs, err := f.store.Range(context.Background(), time.Time{}, time.Now().Add(time.Hour))
	require.NoError(t, err)
	return recs
}

func callerContext() context.Context {
	ctx := outcome.WithRequestID(context.Background(), "req-1")
	return outcome.WithIdentity(ctx, "203.0.113.7")
}

func invoiceRequest() *normalize.InvoiceRequest {
	terms := mockext.SampleContract().Contract.Terms
	return &normalize.InvoiceRequest{
		DocumentRequest: normalize.DocumentRequest{ImageData: pngData, ImageType: "png", FileName: "invoice.png"},
		ContractTerms:   &terms,
	}
}

func invoiceExtraction(tokens int) *port.InvoiceExtraction {
	return &port.InvoiceExtraction{
		Draft: mockext.SampleInvoice(),
		Usage: port.ModelUsage{Model: testModel, TokensUsed: tokens},
	}
}

func TestAnalyzeInvoice_Compliant(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.extractor.On("ExtractInvoice", mock.Anything, mock.Anything).Return(invoiceExtraction(1000), nil).Once()

	result, err := f.svc.AnalyzeInvoice(callerContext(), invoiceRequest())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, entity.ComplianceCompliant, result.ComplianceStatus)
	assert.Empty(t, result.Discrepancies)
	assert.Equal(t, "req-1", result.RequestID)
	assert.GreaterOrEqual(t, result.ProcessingTime, int64(0))

	recs := f.records(t)
	require.Len(t, recs, 1)
	assert.Equal(t, entity.OperationInvoiceAnalysis, recs[0].Operation)
	assert.True(t, recs[0].Success)
	assert.Equal(t, 1000, recs[0].TokensUsed)
	// 800 input tokens at 0.0025 plus 200 output tokens at 0.01
	assert.True(t, recs[0].EstimatedCost.Equal(decimal.RequireFromString("0.004")), recs[0].EstimatedCost.String())

	f.extractor.AssertExpectations(t)
}

func TestAnalyzeInvoice_DocumentIsInlineDataURL(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.extractor.On("ExtractInvoice", mock.Anything, mock.MatchedBy(func(doc *port.Document) bool {
		return doc.MIMEType == "image/png" && doc.FileName == "invoice.png" &&
			len(doc.ImageURL) > 22 && doc.ImageURL[:22] == "data:image/png;base64,"
	})).Return(invoiceExtraction(10), nil).Once()

	_, err := f.svc.AnalyzeInvoice(callerContext(), invoiceRequest())
	require.NoError(t, err)
	f.extractor.AssertExpectations(t)
}

func TestAnalyzeInvoice_MissingSourceIsNotLedgered(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	_, err := f.svc.AnalyzeInvoice(callerContext(), &normalize.InvoiceRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrSchemaValidation)

	assert.Empty(t, f.records(t))
	f.extractor.AssertNotCalled(t, "ExtractInvoice", mock.Anything, mock.Anything)
}

func TestAnalyzeInvoice_RateLimitBeforeExtraction(t *testing.T) {
	f := newFixture(t, fixtureOpts{rateLimit: 10})
	f.extractor.On("ExtractInvoice", mock.Anything, mock.Anything).Return(invoiceExtraction(100), nil)

	ctx := callerContext()
	for i := 0; i < 10; i++ {
		_, err := f.svc.AnalyzeInvoice(ctx, invoiceRequest())
		require.NoError(t, err, "request %d", i+1)
	}

	_, err := f.svc.AnalyzeInvoice(ctx, invoiceRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrRateLimitExceeded)

	var exceeded *ratelimit.ExceededError
	require.True(t, errors.As(err, &exceeded))
	assert.Equal(t, "203.0.113.7", exceeded.Identity)
	assert.Equal(t, 10, exceeded.Decision.Limit)

	f.extractor.AssertNumberOfCalls(t, "ExtractInvoice", 10)
	assert.Len(t, f.records(t), 10)

	// Another identity has its own window
	other := outcome.WithIdentity(context.Background(), "198.51.100.1")
	_, err = f.svc.AnalyzeInvoice(other, invoiceRequest())
	assert.NoError(t, err)
}

func TestAnalyzeInvoice_ExtractionFailureIsLedgered(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.extractor.On("ExtractInvoice", mock.Anything, mock.Anything).
		Return(&port.InvoiceExtraction{Usage: port.ModelUsage{Model: testModel, TokensUsed: 500}}, errors.New("upstream 500")).Once()

	_, err := f.svc.AnalyzeInvoice(callerContext(), invoiceRequest())
	require.Error(t, err)
	assert.Equal(t, apperr.KindExtractionFailure, apperr.KindOf(err))

	recs := f.records(t)
	require.Len(t, recs, 1)
	assert.False(t, recs[0].Success)
	assert.Equal(t, 500, recs[0].TokensUsed)
}

func TestAnalyzeInvoice_Timeout(t *testing.T) {
	f := newFixture(t, fixtureOpts{timeout: 20 * time.Millisecond})
	f.extractor.On("ExtractInvoice", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded).Once()

	_, err := f.svc.AnalyzeInvoice(callerContext(), invoiceRequest())
	require.Error(t, err)
	assert.Equal(t, apperr.KindExtractionTimeout, apperr.KindOf(err))
	assert.True(t, apperr.Retriable(apperr.KindOf(err)))

	recs := f.records(t)
	require.Len(t, recs, 1)
	assert.False(t, recs[0].Success)
	assert.Equal(t, testModel, recs[0].Model)
}

func TestAnalyzeInvoice_CallerGoneSkipsReconciliation(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx, cancel := context.WithCancel(callerContext())
	defer cancel()

	f.extractor.On("ExtractInvoice", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(invoiceExtraction(700), nil).Once()

	result, err := f.svc.AnalyzeInvoice(ctx, invoiceRequest())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, apperr.KindCanceled, apperr.KindOf(err))

	recs := f.records(t)
	require.Len(t, recs, 1, "the spend is recorded even though the caller left")
	assert.Equal(t, 700, recs[0].TokensUsed)
}

func TestAnalyzeInvoice_FeatureDisabled(t *testing.T) {
	f := newFixture(t, fixtureOpts{disabled: true})

	_, err := f.svc.AnalyzeInvoice(callerContext(), invoiceRequest())
	assert.ErrorIs(t, err, apperr.ErrFeatureDisabled)
	assert.Empty(t, f.records(t))
}

func TestAnalyzeInvoice_MalformedDraft(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	draft := mockext.SampleInvoice()
	draft.TotalAmount = nil
	f.extractor.On("ExtractInvoice", mock.Anything, mock.Anything).
		Return(&port.InvoiceExtraction{Draft: draft, Usage: port.ModelUsage{Model: testModel, TokensUsed: 300}}, nil).Once()

	_, err := f.svc.AnalyzeInvoice(callerContext(), invoiceRequest())
	assert.ErrorIs(t, err, apperr.ErrDataIntegrity)

	recs := f.records(t)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Success, "the extraction call itself succeeded")
}

func TestAnalyzeInvoice_BudgetIsAdvisory(t *testing.T) {
	f := newFixture(t, fixtureOpts{dailyLimit: 1})
	f.extractor.On("ExtractInvoice", mock.Anything, mock.Anything).Return(invoiceExtraction(100), nil)

	for i := 0; i < 3; i++ {
		_, err := f.svc.AnalyzeInvoice(callerContext(), invoiceRequest())
		require.NoError(t, err)
	}
	assert.Len(t, f.records(t), 3)
}

func TestAnalyzeInvoice_PriceDiscrepancy(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	draft := mockext.SampleInvoice()
	draft.LineItems[1].UnitPrice = decimal.RequireFromString("130.00")
	draft.LineItems[1].TotalPrice = decimal.RequireFromString("650.00")
	sub := decimal.RequireFromString("1400.00")
	tax := decimal.RequireFromString("112.00")
	total := decimal.RequireFromString("1512.00")
	draft.Subtotal, draft.TaxAmount, draft.TotalAmount = &sub, &tax, &total

	f.extractor.On("ExtractInvoice", mock.Anything, mock.Anything).
		Return(&port.InvoiceExtraction{Draft: draft, Usage: port.ModelUsage{Model: testModel, TokensUsed: 100}}, nil).Once()

	result, err := f.svc.AnalyzeInvoice(callerContext(), invoiceRequest())
	require.NoError(t, err)
	require.Len(t, result.Discrepancies, 1)
	assert.Equal(t, entity.DiscrepancyPrice, result.Discrepancies[0].Type)
	assert.Equal(t, entity.SeverityHigh, result.Discrepancies[0].Severity)
	assert.Equal(t, entity.ComplianceNonCompliant, result.ComplianceStatus)
}

func TestExtractContractVendor(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.extractor.On("ExtractContractVendor", mock.Anything, mock.Anything).
		Return(&port.ContractExtraction{
			Result: mockext.SampleContract(),
			Usage:  port.ModelUsage{Model: testModel, TokensUsed: 2000},
		}, nil).Once()

	result, err := f.svc.ExtractContractVendor(callerContext(), &normalize.ContractRequest{
		DocumentRequest: normalize.DocumentRequest{ImageData: pngData, ImageType: "image/png"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme Office Supplies", result.Vendor.Name)
	assert.Equal(t, "req-1", result.RequestID)

	recs := f.records(t)
	require.Len(t, recs, 1)
	assert.Equal(t, entity.OperationContractParsing, recs[0].Operation)
}

func TestExtractContractVendor_InvalidURL(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	_, err := f.svc.ExtractContractVendor(callerContext(), &normalize.ContractRequest{
		DocumentRequest: normalize.DocumentRequest{ImageURL: "ftp://example.com/contract.png"},
	})
	assert.ErrorIs(t, err, apperr.ErrSchemaValidation)
	assert.Empty(t, f.records(t))
}

func TestStatus(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	st := f.svc.Status()
	assert.True(t, st.Enabled)
	assert.Equal(t, testModel, st.Model)
}
