package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceUnavailable_CarriesStageAndCause(t *testing.T) {
	cause := stderrors.New("dial tcp: connection refused")
	err := NewSourceUnavailableError("Loading", cause)

	assert.Equal(t, ErrCodeSourceUnavailable, err.Code)
	assert.Equal(t, "Loading", err.Stage)
	assert.Contains(t, err.Error(), "SOURCE_UNAVAILABLE@Loading")
	assert.ErrorIs(t, err, cause)
}

func TestAsStandardError_ThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("batch aborted: %w", NewHotspotNotFoundError("weibo_1"))

	stdErr, ok := AsStandardError(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrCodeHotspotNotFound, stdErr.Code)
	assert.Equal(t, ErrCodeHotspotNotFound, CodeOf(wrapped))
	assert.Equal(t, ErrCodeInternal, CodeOf(stderrors.New("plain")))
}

func TestConvertToBPMNError(t *testing.T) {
	tests := []struct {
		name        string
		err         *StandardError
		wantCode    string
		wantRetries int
		wantStage   bool
	}{
		{"source unavailable retries", NewSourceUnavailableError("Loading", nil), "SOURCE_UNAVAILABLE", 3, true},
		{"timeout maps to batch timeout", NewTimeoutError("Analyzing", nil), "BATCH_TIMEOUT", 1, true},
		{"invalid input never retries", NewInvalidInputError("limit must be positive"), "INVALID_INPUT", 0, false},
		{"config invalid never retries", NewConfigInvalidError("platforms.yaml", "weights"), "CONFIG_INVALID", 0, false},
		{"model failure", NewModelCallFailedError(nil), "MODEL_CALL_FAILED", 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := ConvertToBPMNError(tt.err)
			assert.Equal(t, tt.wantCode, b.Code)
			assert.Equal(t, tt.wantRetries, b.Retries)

			vars := b.ToErrorVariables()
			assert.Equal(t, string(tt.err.Code), vars["originalErrorCode"])
			_, hasStage := vars["failedStage"]
			assert.Equal(t, tt.wantStage, hasStage)
		})
	}
}

func TestGetErrorCategory(t *testing.T) {
	tests := map[ErrorCode]string{
		ErrCodeSourceUnavailable:      "DATA_SOURCE",
		ErrCodeHotspotNotFound:        "DATA_SOURCE",
		ErrCodeExtractionFailed:       "EXTRACTION",
		ErrCodeModelTimeout:           "AI",
		ErrCodeStorageWriteFailed:     "STORAGE",
		ErrCodeIndexNotFound:          "STORAGE",
		ErrCodeNotificationSendFailed: "NOTIFICATION",
		ErrCodeConfigInvalid:          "VALIDATION",
		ErrCodeTimeout:                "TIMEOUT",
		ErrCodeInternal:               "OTHER",
	}
	for code, want := range tests {
		assert.Equal(t, want, GetErrorCategory(code), string(code))
	}
}

func TestWithMetadata(t *testing.T) {
	err := NewUnknownPlatformError("myspace").WithMetadata("known", []string{"wechat"})
	assert.Equal(t, []string{"wechat"}, err.Metadata["known"])
	assert.False(t, IsRetryableErrorCode(err.Code))
}

// ==========================
// Job error handler
// ==========================

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  ErrorCode
		retryable bool
	}{
		{"standard error kept", NewHotspotNotFoundError("h-1"), ErrCodeHotspotNotFound, false},
		{"wrapped standard error", fmt.Errorf("batch: %w", NewStorageWriteFailedError("h-1", stderrors.New("conn reset"))), ErrCodeStorageWriteFailed, true},
		{"deadline becomes timeout", fmt.Errorf("load: %w", context.DeadlineExceeded), ErrCodeTimeout, true},
		{"anything else is internal", stderrors.New("boom"), ErrCodeInternal, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeError(tt.err)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.retryable, got.Retryable)
		})
	}
}

func TestRetryBackoff(t *testing.T) {
	assert.Equal(t, 30*time.Second, retryBackoff(ErrCodeSourceUnavailable))
	assert.Equal(t, 10*time.Second, retryBackoff(ErrCodeModelTimeout))
	assert.Equal(t, 5*time.Second, retryBackoff(ErrCodeSearchQueryFailed))
}
