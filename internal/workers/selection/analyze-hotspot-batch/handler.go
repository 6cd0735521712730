// internal/workers/selection/analyze-hotspot-batch/handler.go
package analyzehotspotbatch

import (
	"context"
	"fmt"
	"time"

	"hotspot-selection/internal/common/camunda"
	"hotspot-selection/internal/common/config"
	"hotspot-selection/internal/common/errors"
	"hotspot-selection/internal/common/logger"
	"hotspot-selection/internal/common/metrics"
	"hotspot-selection/internal/common/validation"
	"hotspot-selection/internal/models"
	"hotspot-selection/internal/pipeline"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "analyze-hotspot-batch"

// BatchAnalyzer is satisfied by *pipeline.Pipeline.
type BatchAnalyzer interface {
	AnalyzeBatch(ctx context.Context, req pipeline.BatchRequest) (*models.BatchSummary, error)
}

type Handler struct {
	config       *Config
	pipeline     BatchAnalyzer
	validator    *validation.Schema
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

type HandlerOptions struct {
	AppConfig    *config.Config
	CustomConfig *Config
	Pipeline     BatchAnalyzer
	// Validator overrides the built-in input schema, usually with the one
	// from the activity registry.
	Validator *validation.Schema
	Logger    logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	cfg := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.Pipeline == nil {
		return nil, fmt.Errorf("%s: pipeline is required", TaskType)
	}

	validator := opts.Validator
	if validator == nil {
		var err error
		if validator, err = validation.Compile(GetInputSchema()); err != nil {
			return nil, fmt.Errorf("%s: %w", TaskType, err)
		}
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewStructured("info", "json")
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})

	return &Handler{
		config:       cfg,
		pipeline:     opts.Pipeline,
		validator:    validator,
		errorHandler: errors.NewErrorHandler(log),
		logger:       log,
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	ctx, cancel := camunda.ExecContext(h.config.Timeout)
	defer cancel()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	input, err := h.parseInput(job)
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("parse job variables: %v", err))
	}
	if res := h.validator.Validate(variables); !res.Valid {
		return nil, errors.NewInvalidInputError(res.Error())
	}

	var input Input
	if err := job.GetVariablesAs(&input); err != nil {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("decode job variables: %v", err))
	}
	return &input, nil
}

// Execute runs one batch. A batch whose items all failed still completes the
// job; only a batch-fatal error fails it.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	req, err := h.buildRequest(input)
	if err != nil {
		return nil, err
	}

	summary, err := h.pipeline.AnalyzeBatch(ctx, req)
	if err != nil {
		return nil, err
	}

	return &Output{
		BatchSummary:     summary,
		BatchState:       string(summary.State),
		RecommendedCount: len(summary.Recommended),
		HasFailures:      summary.Failed > 0,
	}, nil
}

func (h *Handler) buildRequest(input *Input) (pipeline.BatchRequest, error) {
	req := pipeline.BatchRequest{
		RunID:     input.RunID,
		Limit:     input.Limit,
		Platforms: input.Platforms,
	}
	if req.Limit > h.config.MaxLimit {
		return req, errors.NewInvalidInputError(fmt.Sprintf("limit %d exceeds maximum %d", req.Limit, h.config.MaxLimit))
	}

	if input.Date != "" && (input.StartDate != "" || input.EndDate != "") {
		return req, errors.NewInvalidInputError("date and startDate/endDate are mutually exclusive")
	}

	var err error
	if req.Date, err = h.parseDate("date", input.Date); err != nil {
		return req, err
	}
	if req.Start, err = h.parseDate("startDate", input.StartDate); err != nil {
		return req, err
	}
	if req.End, err = h.parseDate("endDate", input.EndDate); err != nil {
		return req, err
	}
	return req, nil
}

func (h *Handler) parseDate(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(dateLayout, value, h.config.Location)
	if err != nil {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("%s: %v", field, err))
	}
	return &t, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	ctx, cancel := camunda.ReportContext()
	defer cancel()

	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.GetKey()).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		return
	}

	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	h.logger.Info("batch job completed", map[string]interface{}{
		"jobKey":      job.GetKey(),
		"runId":       output.BatchSummary.RunID,
		"state":       output.BatchState,
		"recommended": output.RecommendedCount,
	})
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error) {
	ctx, cancel := camunda.ReportContext()
	defer cancel()

	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.CodeOf(err))).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, err)
}
