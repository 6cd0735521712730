// Package errors provides standardized error handling for the hotspot pipeline
// and its BPMN workflow integration.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Pipeline taxonomy
const (
	ErrCodeSourceUnavailable ErrorCode = "SOURCE_UNAVAILABLE"
	ErrCodeExtractionFailed  ErrorCode = "EXTRACTION_FAILED"
	ErrCodeModelCallFailed   ErrorCode = "MODEL_CALL_FAILED"
	ErrCodeModelTimeout      ErrorCode = "MODEL_TIMEOUT"
	ErrCodeValidationAnomaly ErrorCode = "VALIDATION_ANOMALY"
	ErrCodeConfigInvalid     ErrorCode = "CONFIG_INVALID"
	ErrCodeTimeout           ErrorCode = "TIMEOUT"
)

// Surrounding infrastructure
const (
	ErrCodeStorageWriteFailed     ErrorCode = "STORAGE_WRITE_FAILED"
	ErrCodeQueryExecutionFailed   ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeSearchQueryFailed      ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeIndexNotFound          ErrorCode = "INDEX_NOT_FOUND"
	ErrCodeHotspotNotFound        ErrorCode = "HOTSPOT_NOT_FOUND"
	ErrCodeInvalidInput           ErrorCode = "INVALID_INPUT"
	ErrCodeUnknownPlatform        ErrorCode = "UNKNOWN_PLATFORM"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeInternal               ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Stage     string                 `json:"stage,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("StandardError[%s@%s]: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata returns e after setting one metadata entry.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func details(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// NewSourceUnavailableError is batch-fatal: the table store could not be read
// after the loader exhausted its retries.
func NewSourceUnavailableError(stage string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSourceUnavailable,
		Message:   "Hotspot table store unavailable",
		Details:   details(err),
		Stage:     stage,
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewModelCallFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeModelCallFailed,
		Message:   "Language model call failed",
		Details:   details(err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewModelTimeoutError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeModelTimeout,
		Message:   "Language model call timed out",
		Details:   details(err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewConfigInvalidError is fatal at load time.
func NewConfigInvalidError(source, detail string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConfigInvalid,
		Message:   fmt.Sprintf("Invalid configuration in %s", source),
		Details:   detail,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewTimeoutError(stage string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTimeout,
		Message:   "Deadline elapsed",
		Details:   details(err),
		Stage:     stage,
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewStorageWriteFailedError(hotspotID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStorageWriteFailed,
		Message:   fmt.Sprintf("Failed to persist results for %s", hotspotID),
		Details:   details(err),
		Stage:     "Storing",
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewQueryExecutionFailedError(queryType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   fmt.Sprintf("Query execution failed: %s", queryType),
		Details:   details(err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewSearchQueryFailedError(queryType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchQueryFailed,
		Message:   fmt.Sprintf("Search query failed: %s", queryType),
		Details:   details(err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewIndexNotFoundError(indexName string) *StandardError {
	return &StandardError{
		Code:      ErrCodeIndexNotFound,
		Message:   fmt.Sprintf("Index not found: %s", indexName),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewHotspotNotFoundError(id string) *StandardError {
	return &StandardError{
		Code:      ErrCodeHotspotNotFound,
		Message:   fmt.Sprintf("Hotspot not found: %s", id),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewInvalidInputError(detail string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidInput,
		Message:   "Invalid job input",
		Details:   detail,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewUnknownPlatformError(platform string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnknownPlatform,
		Message:   fmt.Sprintf("Unknown platform: %s", platform),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   fmt.Sprintf("Failed to send %s notification", channel),
		Details:   details(err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to BPMN error codes.
// Codes missing from the map are thrown unchanged.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeSourceUnavailable:      "SOURCE_UNAVAILABLE",
	ErrCodeModelCallFailed:        "MODEL_CALL_FAILED",
	ErrCodeModelTimeout:           "MODEL_TIMEOUT",
	ErrCodeConfigInvalid:          "CONFIG_INVALID",
	ErrCodeTimeout:                "BATCH_TIMEOUT",
	ErrCodeStorageWriteFailed:     "STORAGE_WRITE_FAILED",
	ErrCodeQueryExecutionFailed:   "QUERY_EXECUTION_FAILED",
	ErrCodeSearchQueryFailed:      "SEARCH_QUERY_FAILED",
	ErrCodeIndexNotFound:          "INDEX_NOT_FOUND",
	ErrCodeHotspotNotFound:        "HOTSPOT_NOT_FOUND",
	ErrCodeInvalidInput:           "INVALID_INPUT",
	ErrCodeUnknownPlatform:        "UNKNOWN_PLATFORM",
	ErrCodeNotificationSendFailed: "NOTIFICATION_SEND_FAILED",
}

// GetRetryCount returns the recommended job retry count for an error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeSourceUnavailable,
		ErrCodeStorageWriteFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeSearchQueryFailed,
		ErrCodeNotificationSendFailed:
		return 3

	case ErrCodeModelCallFailed,
		ErrCodeModelTimeout:
		return 2

	case ErrCodeTimeout:
		return 1

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	if stdErr.Stage != "" {
		vars["failedStage"] = stdErr.Stage
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// AsStandardError unwraps err to a StandardError when one is in its chain.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// CodeOf returns the error code in err's chain, or INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "STORAGE") || strings.Contains(codeStr, "SEARCH") || strings.Contains(codeStr, "INDEX"):
		return "STORAGE"
	case strings.Contains(codeStr, "SOURCE") || strings.Contains(codeStr, "QUERY_EXECUTION") || strings.Contains(codeStr, "NOT_FOUND"):
		return "DATA_SOURCE"
	case strings.Contains(codeStr, "EXTRACTION"):
		return "EXTRACTION"
	case strings.Contains(codeStr, "MODEL"):
		return "AI"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "CONFIG") || strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "PLATFORM"):
		return "VALIDATION"
	case strings.Contains(codeStr, "TIMEOUT"):
		return "TIMEOUT"
	default:
		return "OTHER"
	}
}
