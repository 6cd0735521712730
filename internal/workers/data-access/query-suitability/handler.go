// internal/workers/data-access/query-suitability/handler.go
package querysuitability

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"hotspot-selection/internal/common/camunda"
	"hotspot-selection/internal/common/errors"
	"hotspot-selection/internal/common/logger"
	"hotspot-selection/internal/common/metrics"
	"hotspot-selection/internal/models"
	"hotspot-selection/internal/workers/data-access/query-suitability/queries"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "query-suitability"
)

type Handler struct {
	config       *Config
	sources      queries.Sources
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, sources queries.Sources, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		sources:      sources,
		errorHandler: errors.NewErrorHandler(log),
		logger:       log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := camunda.ExecContext(h.config.Timeout)
	defer cancel()

	var input Input
	if err := job.GetVariablesAs(&input); err != nil {
		h.failJob(client, job, errors.NewInvalidInputError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil || input.QueryType == "" {
		return nil, errors.NewInvalidInputError("queryType is required")
	}

	params, err := h.params(input)
	if err != nil {
		return nil, err
	}

	result, err := queries.Execute(ctx, h.sources, queries.QueryType(input.QueryType), params)
	if err != nil {
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.NewTimeoutError(input.QueryType, err)
		}
		if stderrors.Is(err, queries.ErrUnknownQueryType) || stderrors.Is(err, queries.ErrMissingParam) {
			return nil, errors.NewInvalidInputError(err.Error())
		}
		if _, ok := errors.AsStandardError(err); ok {
			return nil, err
		}
		return nil, errors.NewSearchQueryFailedError(input.QueryType, err)
	}

	out := &Output{
		QueryType:  input.QueryType,
		Results:    result.Results,
		Categories: result.Categories,
		Analysis:   result.Analysis,
		TotalHits:  result.TotalHits,
		Took:       result.Took,
	}
	if out.Results == nil {
		out.Results = []models.SuitabilityResult{}
	}
	return out, nil
}

func (h *Handler) params(input *Input) (queries.Params, error) {
	p := queries.Params{
		Platform:        input.Platform,
		Category:        input.Category,
		HotspotID:       input.HotspotID,
		RecommendedOnly: input.RecommendedOnly,
		MinScore:        input.MinScore,
		Size:            input.Size,
	}
	if p.Size <= 0 {
		p.Size = h.config.DefaultSize
	}
	if p.MinScore < 0 || p.MinScore > 1 {
		return p, errors.NewInvalidInputError(fmt.Sprintf("minScore %v outside [0,1]", p.MinScore))
	}

	var err error
	if p.From, err = h.parseTime(input.StartDate, false); err != nil {
		return p, err
	}
	if p.To, err = h.parseTime(input.EndDate, true); err != nil {
		return p, err
	}
	if !p.From.IsZero() && !p.To.IsZero() && !p.From.Before(p.To) {
		return p, errors.NewInvalidInputError("startDate must be before endDate")
	}
	return p, nil
}

// parseTime accepts a date or an RFC 3339 timestamp. A date used as an upper
// bound covers the whole day.
func (h *Handler) parseTime(value string, upper bool) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", value, h.config.Location); err == nil {
		if upper {
			t = t.AddDate(0, 0, 1)
		}
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, errors.NewInvalidInputError(fmt.Sprintf("invalid date %q", value))
	}
	return t, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	ctx, cancel := camunda.ReportContext()
	defer cancel()

	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	_, err = cmd.Send(ctx)
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error) {
	ctx, cancel := camunda.ReportContext()
	defer cancel()

	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.CodeOf(err))).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, err)
}
