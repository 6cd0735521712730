// internal/common/errors/handler.go
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// ErrorHandler reports a failed job back to Zeebe: retryable codes fail the
// job with a backoff, the rest are thrown as BPMN errors for the process to
// route.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := normalizeError(err)
	bpmnErr := ConvertToBPMNError(stdErr)

	fields := jobErrorFields(job, stdErr, bpmnErr)
	if bpmnErr.Retries > 0 && job.Retries > 0 {
		retries := bpmnErr.Retries
		if int(job.Retries) < retries {
			retries = int(job.Retries)
		}
		fields["retriesLeft"] = retries
		h.logger.Warn("job failed, handing back for retry", fields)
		h.failJob(ctx, client, job, bpmnErr, retries, retryBackoff(stdErr.Code))
		return
	}

	h.logger.Error("job failed, throwing BPMN error", fields)
	h.throwError(ctx, client, job, bpmnErr)
}

// normalizeError turns any error into a StandardError. A bare context
// deadline becomes TIMEOUT so the job is retried instead of thrown.
func normalizeError(err error) *StandardError {
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError("job", err)
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "unexpected error",
		Details:   details(err),
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// retryBackoff spaces out retries for dependencies that need time to recover.
func retryBackoff(code ErrorCode) time.Duration {
	switch code {
	case ErrCodeSourceUnavailable, ErrCodeStorageWriteFailed:
		return 30 * time.Second
	case ErrCodeModelCallFailed, ErrCodeModelTimeout:
		return 10 * time.Second
	default:
		return 5 * time.Second
	}
}

func (h *ErrorHandler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError, retries int, backoff time.Duration) {
	cmd := client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(int32(retries)).
		RetryBackoff(backoff).
		ErrorMessage(bpmnErr.Message)

	if vars, ok := encodeVariables(bpmnErr); ok {
		if withVars, err := cmd.VariablesFromString(vars); err == nil {
			_, err = withVars.Send(ctx)
			h.reportSend(job, err)
			return
		}
	}
	_, err := cmd.Send(ctx)
	h.reportSend(job, err)
}

func (h *ErrorHandler) throwError(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError) {
	cmd := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(bpmnErr.Code).
		ErrorMessage(bpmnErr.Message)

	if vars, ok := encodeVariables(bpmnErr); ok {
		if withVars, err := cmd.VariablesFromString(vars); err == nil {
			_, err = withVars.Send(ctx)
			h.reportSend(job, err)
			return
		}
	}
	_, err := cmd.Send(ctx)
	h.reportSend(job, err)
}

func (h *ErrorHandler) reportSend(job entities.Job, err error) {
	if err != nil {
		h.logger.Error("failed to report job error to zeebe", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
	}
}

func encodeVariables(bpmnErr *BPMNError) (string, bool) {
	vars := bpmnErr.ToErrorVariables()
	if len(vars) == 0 {
		return "", false
	}
	b, err := json.Marshal(vars)
	if err != nil {
		return "", false
	}
	return string(b), true
}

func jobErrorFields(job entities.Job, stdErr *StandardError, bpmnErr *BPMNError) map[string]interface{} {
	fields := map[string]interface{}{
		"jobKey":             job.Key,
		"jobType":            job.Type,
		"processInstanceKey": job.ProcessInstanceKey,
		"errorCode":          string(stdErr.Code),
		"bpmnErrorCode":      bpmnErr.Code,
		"category":           GetErrorCategory(stdErr.Code),
		"message":            bpmnErr.Message,
	}
	if stdErr.Details != "" {
		fields["details"] = stdErr.Details
	}
	if stdErr.Stage != "" {
		fields["stage"] = stdErr.Stage
	}
	return fields
}
