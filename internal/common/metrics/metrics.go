// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	// outcome is one of succeeded, degraded, failed
	PipelineStageItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hotspot_pipeline_stage_items_total",
			Help: "Items leaving a pipeline stage, by outcome",
		},
		[]string{"stage", "outcome"},
	)

	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hotspot_pipeline_stage_duration_seconds",
			Help:    "Wall time of one pipeline stage over a batch",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		},
		[]string{"stage"},
	)

	PipelineBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hotspot_pipeline_batches_total",
			Help: "Batches by terminal state",
		},
		[]string{"state"},
	)

	ExtractionResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hotspot_extraction_results_total",
			Help: "Content extractions by strategy and status",
		},
		[]string{"strategy", "status"},
	)

	ModelCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hotspot_model_calls_total",
			Help: "Language model attempts by result",
		},
		[]string{"result"},
	)

	FeatureCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hotspot_feature_cache_lookups_total",
			Help: "Feature cache lookups by result",
		},
		[]string{"result"},
	)

	ResultIndexFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hotspot_result_index_failures_total",
			Help: "Suitability results that could not be indexed into Elasticsearch",
		},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hotspot_notifications_sent_total",
			Help: "Batch summary notifications by channel and status",
		},
		[]string{"channel", "status"},
	)
)
