// internal/workers/communication/notify-batch-summary/handler.go
package notifybatchsummary

import (
	"context"
	"fmt"

	"hotspot-selection/internal/common/camunda"
	"hotspot-selection/internal/common/config"
	"hotspot-selection/internal/common/errors"
	"hotspot-selection/internal/common/logger"
	"hotspot-selection/internal/common/metrics"
	"hotspot-selection/internal/common/validation"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "notify-batch-summary"

type ServiceInterface interface {
	Execute(ctx context.Context, input *Input) (*Output, error)
}

type Handler struct {
	config       *Config
	service      ServiceInterface
	validator    *validation.Schema
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

type HandlerOptions struct {
	AppConfig    *config.Config
	CustomConfig *Config
	Publisher    Publisher
	Mailer       Mailer
	Validator    *validation.Schema
	Logger       logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	cfg := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewStructured("info", "json")
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})

	service, err := NewService(ServiceDependencies{
		Publisher: opts.Publisher,
		Mailer:    opts.Mailer,
		Logger:    log,
	}, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", TaskType, err)
	}

	validator := opts.Validator
	if validator == nil {
		if validator, err = validation.Compile(GetInputSchema()); err != nil {
			return nil, fmt.Errorf("%s: %w", TaskType, err)
		}
	}

	return &Handler{
		config:       cfg,
		service:      service,
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

	output, err := h.service.Execute(ctx, input)
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
	if input.BatchSummary == nil {
		return nil, errors.NewInvalidInputError("batchSummary is required")
	}
	return &input, nil
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
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error) {
	ctx, cancel := camunda.ReportContext()
	defer cancel()

	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.CodeOf(err))).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, err)
}
