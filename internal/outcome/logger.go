// Package outcome writes one structured event per pipeline stage transition
// so every analysis can be traced by request id.
package outcome

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/garyjia/contract-reconciler/internal/domain/apperr"
	"github.com/garyjia/contract-reconciler/internal/domain/entity"
)

// Event names
const (
	EventStarted   = "analysis.started"
	EventCompleted = "analysis.completed"
	EventFailed    = "analysis.failed"
)

// Request describes the analysis being logged
type Request struct {
	Operation entity.Operation
	FileName  string
	Source    string // url or inline
	HasTerms  bool
}

// Result summarizes a finished analysis
type Result struct {
	Confidence       float64
	ComplianceStatus entity.ComplianceStatus
	Discrepancies    int
	HighSeverity     int
	TokensUsed       int
}

// Logger emits outcome events
type Logger struct {
	logger *zap.Logger
}

// NewLogger creates an outcome logger writing to logger
func NewLogger(logger *zap.Logger) *Logger {
	return &Logger{logger: logger.Named("outcome")}
}

// Started logs the beginning of an analysis
func (l *Logger) Started(ctx context.Context, req Request) {
	l.with(ctx, req).Info(EventStarted,
		zap.String("source", req.Source),
		zap.String("file_name", req.FileName),
		zap.Bool("has_terms", req.HasTerms))
}

// Completed logs a successful analysis. Results needing attention are
// logged at warn.
func (l *Logger) Completed(ctx context.Context, req Request, res Result, elapsed time.Duration) {
	level := zapcore.InfoLevel
	if res.ComplianceStatus == entity.ComplianceNonCompliant {
		level = zapcore.WarnLevel
	}

	fields := []zap.Field{
		zap.Int64("duration_ms", elapsed.Milliseconds()),
		zap.Float64("confidence", res.Confidence),
		zap.Int("discrepancies", res.Discrepancies),
		zap.Int("high_severity", res.HighSeverity),
		zap.Int("tokens_used", res.TokensUsed),
	}
	if res.ComplianceStatus != "" {
		fields = append(fields, zap.String("compliance_status", string(res.ComplianceStatus)))
	}

	if ce := l.with(ctx, req).Check(level, EventCompleted); ce != nil {
		ce.Write(fields...)
	}
}

// Failed logs an analysis that ended in err. Caller errors are logged at
// warn, server side failures at error.
func (l *Logger) Failed(ctx context.Context, req Request, err error, elapsed time.Duration) {
	kind := apperr.KindOf(err)
	level := zapcore.WarnLevel
	if apperr.HTTPStatus(kind) >= 500 {
		level = zapcore.ErrorLevel
	}

	if ce := l.with(ctx, req).Check(level, EventFailed); ce != nil {
		ce.Write(
			zap.Int64("duration_ms", elapsed.Milliseconds()),
			zap.String("error_kind", string(kind)),
			zap.Bool("retriable", apperr.Retriable(kind)),
			zap.Error(err))
	}
}

func (l *Logger) with(ctx context.Context, req Request) *zap.Logger {
	fields := []zap.Field{zap.String("operation", string(req.Operation))}
	if id := RequestID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if identity := Identity(ctx); identity != "" {
		fields = append(fields, zap.String("client_identity", identity))
	}
	return l.logger.With(fields...)
}
