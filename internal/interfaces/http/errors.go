package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/contract-reconciler/internal/domain/apperr"
	"github.com/garyjia/contract-reconciler/internal/ratelimit"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error     string   `json:"error"`
	Kind      string   `json:"kind"`
	Details   []string `json:"details,omitempty"`
	Retriable bool     `json:"retriable,omitempty"`
	RequestID string   `json:"requestId,omitempty"`
}

// errorWriter renders pipeline errors
type errorWriter struct {
	exposeInternal bool
	logger         *zap.Logger
}

func (w errorWriter) write(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	resp := ErrorResponse{
		Error:     err.Error(),
		Kind:      string(kind),
		Retriable: apperr.Retriable(kind),
		RequestID: GetRequestID(c),
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		resp.Details = appErr.Details
		if appErr.Message != "" && kind != apperr.KindExtractionFailure && kind != apperr.KindExtractionTimeout {
			resp.Error = appErr.Message
		}
	}

	if kind == apperr.KindInternal && !w.exposeInternal {
		resp.Error = "internal server error"
		resp.Details = nil
	}
	if status >= http.StatusInternalServerError {
		w.logger.Error("Request failed",
			zap.String("request_id", resp.RequestID),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}

	var exceeded *ratelimit.ExceededError
	if errors.As(err, &exceeded) {
		setRateLimitHeaders(c, exceeded.Decision)
		c.Header("Retry-After", strconv.Itoa(int(exceeded.Decision.RetryAfter(time.Now()).Seconds())))
	}

	c.AbortWithStatusJSON(status, resp)
}

func setRateLimitHeaders(c *gin.Context, d ratelimit.Decision) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}
