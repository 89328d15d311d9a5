package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesSentinelByKind(t *testing.T) {
	err := New(KindSchemaValidation, "imageUrl or imageData is required")
	wrapped := fmt.Errorf("normalize: %w", err)

	assert.True(t, errors.Is(wrapped, ErrSchemaValidation))
	assert.False(t, errors.Is(wrapped, ErrRateLimitExceeded))
	assert.Equal(t, KindSchemaValidation, KindOf(wrapped))
}

func TestError_UnwrapKeepsCause(t *testing.T) {
	err := Wrap(KindExtractionTimeout, context.DeadlineExceeded, "extraction timed out")

	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.True(t, errors.Is(err, ErrExtractionTimeout))
	assert.Equal(t, "extraction timed out: context deadline exceeded", err.Error())
}

func TestError_WithDetailsCopies(t *testing.T) {
	base := New(KindSchemaValidation, "invalid request")
	detailed := base.WithDetails("imageUrl: must be https")

	assert.Empty(t, base.Details)
	assert.Equal(t, []string{"imageUrl: must be https"}, detailed.Details)
}

func TestKindOf_Unclassified(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind   Kind
		status int
	}{
		{KindSchemaValidation, http.StatusBadRequest},
		{KindConversionFailure, http.StatusBadRequest},
		{KindRateLimitExceeded, http.StatusTooManyRequests},
		{KindFeatureDisabled, http.StatusServiceUnavailable},
		{KindExtractionTimeout, http.StatusBadGateway},
		{KindExtractionFailure, http.StatusBadGateway},
		{KindDataIntegrity, http.StatusUnprocessableEntity},
		{KindCanceled, StatusClientClosedRequest},
		{KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.status, HTTPStatus(tt.kind))
		})
	}
}

func TestRetriable(t *testing.T) {
	assert.True(t, Retriable(KindExtractionTimeout))
	assert.True(t, Retriable(KindRateLimitExceeded))
	assert.False(t, Retriable(KindSchemaValidation))
	assert.False(t, Retriable(KindDataIntegrity))
}
