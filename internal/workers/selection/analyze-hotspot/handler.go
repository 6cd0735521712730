// internal/workers/selection/analyze-hotspot/handler.go
package analyzehotspot

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

const TaskType = "analyze-hotspot"

// Analyzer is satisfied by *pipeline.Pipeline.
type Analyzer interface {
	AnalyzeHotspot(ctx context.Context, id string, platforms []string) (*pipeline.HotspotAnalysis, error)
}

type Handler struct {
	config       *Config
	analyzer     Analyzer
	validator    *validation.Schema
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

type HandlerOptions struct {
	AppConfig    *config.Config
	CustomConfig *Config
	Analyzer     Analyzer
	Validator    *validation.Schema
	Logger       logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	cfg := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.Analyzer == nil {
		return nil, fmt.Errorf("%s: analyzer is required", TaskType)
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
		analyzer:     opts.Analyzer,
		validator:    validator,
		errorHandler: errors.NewErrorHandler(log),
		logger:       log,
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	ctx, cancel := camunda.ExecContext(h.config.Timeout)
	defer cancel()

	input, err := h.parseInput(job)
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":    job.GetKey(),
		"hotspotId": input.HotspotID,
	})

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

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if h.config.StrictIDs {
		if _, err := models.ParseHotspotID(input.HotspotID); err != nil {
			return nil, errors.NewInvalidInputError(err.Error())
		}
	}

	analysis, err := h.analyzer.AnalyzeHotspot(ctx, input.HotspotID, input.Platforms)
	if err != nil {
		return nil, err
	}

	out := &Output{
		Analysis: analysis,
		Category: analysis.Classification.PrimaryCategory,
	}
	for _, r := range analysis.Results {
		if out.BestPlatform == "" || r.TotalScore > out.BestScore {
			out.BestPlatform = r.Platform
			out.BestScore = r.TotalScore
		}
		if r.Recommended {
			out.Recommended = true
		}
	}

	h.logger.Info("hotspot analyzed", map[string]interface{}{
		"hotspotId":    input.HotspotID,
		"outcome":      analysis.Outcome,
		"fromStore":    analysis.FromStore,
		"bestPlatform": out.BestPlatform,
		"bestScore":    out.BestScore,
	})
	return out, nil
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error) {
	ctx, cancel := camunda.ReportContext()
	defer cancel()

	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.CodeOf(err))).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, err)
}
