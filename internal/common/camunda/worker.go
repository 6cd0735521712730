// internal/common/camunda/worker.go
package camunda

import (
	"context"
	"time"

	"hotspot-selection/internal/common/config"
	"hotspot-selection/internal/common/metrics"
	"hotspot-selection/internal/common/observability"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"go.uber.org/zap"
)

// HandlerFunc is the job callback every worker exposes as Handle.
type HandlerFunc func(client worker.JobClient, job entities.Job)

// Job outcomes as seen by Instrument.
const (
	JobCompleted  = "completed"
	JobFailed     = "failed"
	JobThrown     = "error_thrown"
	JobUnreported = "unreported"
)

// Instrument wraps h so active jobs, handling time and the outcome the handler
// reported are tracked per task type. Completion and failure counters by error
// code are recorded by the handlers themselves.
func Instrument(taskType string, h HandlerFunc, obs *observability.Observability) HandlerFunc {
	return func(client worker.JobClient, job entities.Job) {
		metrics.WorkerJobsActive.WithLabelValues(taskType).Inc()
		start := time.Now()
		rc := &reportingClient{JobClient: client, status: JobUnreported}
		defer func() {
			elapsed := time.Since(start)
			metrics.WorkerJobsActive.WithLabelValues(taskType).Dec()
			metrics.WorkerJobDuration.WithLabelValues(taskType).Observe(elapsed.Seconds())
			obs.RecordJobProcessed(context.Background(), taskType, rc.status)
			obs.RecordJobDuration(context.Background(), taskType, elapsed, rc.status)
		}()
		h(rc, job)
	}
}

// reportingClient remembers which command a handler used to report its job.
type reportingClient struct {
	worker.JobClient
	status string
}

func (c *reportingClient) NewCompleteJobCommand() commands.CompleteJobCommandStep1 {
	c.status = JobCompleted
	return c.JobClient.NewCompleteJobCommand()
}

func (c *reportingClient) NewFailJobCommand() commands.FailJobCommandStep1 {
	c.status = JobFailed
	return c.JobClient.NewFailJobCommand()
}

func (c *reportingClient) NewThrowErrorCommand() commands.ThrowErrorCommandStep1 {
	c.status = JobThrown
	return c.JobClient.NewThrowErrorCommand()
}

// StartWorker opens a job worker for taskType. It returns nil when the worker is disabled.
func StartWorker(client zbc.Client, taskType string, wcfg config.WorkerConfig, h HandlerFunc, obs *observability.Observability, log *zap.Logger) worker.JobWorker {
	if !wcfg.Enabled {
		log.Info("worker disabled", zap.String("taskType", taskType))
		return nil
	}

	jw := client.NewJobWorker().
		JobType(taskType).
		Handler(worker.JobHandler(Instrument(taskType, h, obs))).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(config.GetDuration(wcfg.Timeout)).
		Open()

	log.Info("worker started",
		zap.String("taskType", taskType),
		zap.Int("maxJobsActive", wcfg.MaxJobsActive),
		zap.Int("timeout_ms", wcfg.Timeout),
	)
	return jw
}
