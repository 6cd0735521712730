// internal/workers/selection/score-hotspots/handler.go
package scorehotspots

import (
	"context"
	"fmt"

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

const TaskType = "score-hotspots"

// Scorer is satisfied by *pipeline.Pipeline.
type Scorer interface {
	ScoreHotspots(ctx context.Context, hotspots []models.Hotspot, platforms []string) (*pipeline.ScoreOutcome, error)
}

type Handler struct {
	config       *Config
	scorer       Scorer
	validator    *validation.Schema
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

type HandlerOptions struct {
	AppConfig    *config.Config
	CustomConfig *Config
	Scorer       Scorer
	Validator    *validation.Schema
	Logger       logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	cfg := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.Scorer == nil {
		return nil, fmt.Errorf("%s: scorer is required", TaskType)
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
		scorer:       opts.Scorer,
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

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	ctx, cancel := camunda.ReportContext()
	defer cancel()

	cmd, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromObject(output)
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

// Execute scores the supplied hotspots without storing anything.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if len(input.Hotspots) == 0 {
		return nil, errors.NewInvalidInputError("hotspots must not be empty")
	}
	if len(input.Hotspots) > h.config.MaxHotspots {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("%d hotspots exceed the maximum of %d", len(input.Hotspots), h.config.MaxHotspots))
	}
	seen := make(map[string]bool, len(input.Hotspots))
	for _, hs := range input.Hotspots {
		if seen[hs.ID] {
			return nil, errors.NewInvalidInputError(fmt.Sprintf("duplicate hotspot id %s", hs.ID))
		}
		seen[hs.ID] = true
	}

	scored, err := h.scorer.ScoreHotspots(ctx, input.Hotspots, input.Platforms)
	if err != nil {
		return nil, err
	}
	results := scored.Results

	// results arrive best first, so the first hit per hotspot is its best platform
	best := make(map[string]string, len(input.Hotspots))
	recommended := 0
	for _, r := range results {
		if _, ok := best[r.HotspotID]; !ok {
			best[r.HotspotID] = r.Platform
		}
		if r.Recommended {
			recommended++
		}
	}

	if input.TopN > 0 && len(results) > input.TopN {
		results = results[:input.TopN]
	}

	h.logger.Info("hotspots scored", map[string]interface{}{
		"hotspots":    len(input.Hotspots),
		"results":     len(results),
		"recommended": recommended,
		"failed":      len(scored.Failures),
	})

	return &Output{
		Results:          results,
		ResultCount:      len(results),
		RecommendedCount: recommended,
		BestPlatform:     best,
		Failures:         scored.Failures,
		FailedCount:      len(scored.Failures),
	}, nil
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error) {
	ctx, cancel := camunda.ReportContext()
	defer cancel()

	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.CodeOf(err))).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, err)
}
