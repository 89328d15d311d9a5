package outcome

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/garyjia/contract-reconciler/internal/domain/apperr"
	"github.com/garyjia/contract-reconciler/internal/domain/entity"
)

func newObserved() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewLogger(zap.New(core)), logs
}

func testContext() context.Context {
	ctx := WithRequestID(context.Background(), "req-123")
	return WithIdentity(ctx, "10.0.0.1")
}

func TestLogger_StartedCarriesCorrelation(t *testing.T) {
	l, logs := newObserved()

	l.Started(testContext(), Request{Operation: entity.OperationInvoiceAnalysis, Source: "inline", HasTerms: true})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, EventStarted, entry.Message)
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "req-123", fields["request_id"])
	assert.Equal(t, "10.0.0.1", fields["client_identity"])
	assert.Equal(t, "invoice_analysis", fields["operation"])
	assert.Equal(t, true, fields["has_terms"])
}

func TestLogger_CompletedLevels(t *testing.T) {
	tests := []struct {
		status entity.ComplianceStatus
		level  zapcore.Level
	}{
		{entity.ComplianceCompliant, zapcore.InfoLevel},
		{entity.ComplianceDiscrepancy, zapcore.InfoLevel},
		{entity.ComplianceNonCompliant, zapcore.WarnLevel},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			l, logs := newObserved()
			l.Completed(testContext(), Request{Operation: entity.OperationInvoiceAnalysis},
				Result{ComplianceStatus: tt.status, Confidence: 0.9, Discrepancies: 2}, 1500*time.Millisecond)

			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			assert.Equal(t, EventCompleted, entry.Message)
			assert.Equal(t, tt.level, entry.Level)
			assert.Equal(t, int64(1500), entry.ContextMap()["duration_ms"])
			assert.Equal(t, string(tt.status), entry.ContextMap()["compliance_status"])
		})
	}
}

func TestLogger_FailedLevels(t *testing.T) {
	l, logs := newObserved()
	ctx := testContext()
	req := Request{Operation: entity.OperationContractParsing}

	l.Failed(ctx, req, apperr.New(apperr.KindRateLimitExceeded, "too many requests"), time.Millisecond)
	l.Failed(ctx, req, apperr.New(apperr.KindExtractionTimeout, "timed out"), time.Second)
	l.Failed(ctx, req, errors.New("boom"), time.Millisecond)

	entries := logs.FilterMessage(EventFailed).All()
	require.Len(t, entries, 3)

	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "rate_limit_exceeded", entries[0].ContextMap()["error_kind"])

	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, true, entries[1].ContextMap()["retriable"])

	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "internal", entries[2].ContextMap()["error_kind"])
}

func TestContextHelpers_Empty(t *testing.T) {
	assert.Equal(t, "", RequestID(context.Background()))
	assert.Equal(t, "", Identity(context.Background()))
}
