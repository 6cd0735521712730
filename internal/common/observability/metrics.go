package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

type Observability struct {
	meterProvider *metric.MeterProvider
	meter         otelmetric.Meter
	jobCounter    otelmetric.Int64Counter
	jobDuration   otelmetric.Float64Histogram
	batchItems    otelmetric.Int64Counter
	batchDuration otelmetric.Float64Histogram
	tracing       *Tracing
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{tracing: NewTracing(serviceName, "", 0)}
	}
	o := NewWithReader(serviceName, exporter)
	otel.SetMeterProvider(o.meterProvider)
	return o
}

// NewWithReader builds the instruments on a meter provider fed to reader.
func NewWithReader(serviceName string, reader metric.Reader) *Observability {
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	meter := provider.Meter(serviceName)

	jobCounter, _ := meter.Int64Counter(
		"jobs.processed",
		otelmetric.WithDescription("Number of jobs processed"),
	)

	jobDuration, _ := meter.Float64Histogram(
		"jobs.duration",
		otelmetric.WithDescription("Job processing duration"),
		otelmetric.WithUnit("ms"),
	)

	batchItems, _ := meter.Int64Counter(
		"hotspot.batch.items",
		otelmetric.WithDescription("Hotspots processed per batch, by outcome"),
	)

	batchDuration, _ := meter.Float64Histogram(
		"hotspot.batch.duration",
		otelmetric.WithDescription("Batch wall time"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider: provider,
		meter:         meter,
		jobCounter:    jobCounter,
		jobDuration:   jobDuration,
		batchItems:    batchItems,
		batchDuration: batchDuration,
	}
}

// WithTracing attaches a tracer provider; spans are no-ops until this is called.
func (o *Observability) WithTracing(t *Tracing) *Observability {
	o.tracing = t
	return o
}

func (o *Observability) Tracing() *Tracing {
	if o == nil || o.tracing == nil {
		return nil
	}
	return o.tracing
}

func (o *Observability) RecordJobProcessed(ctx context.Context, taskType, status string) {
	if o != nil && o.jobCounter != nil {
		o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("task_type", taskType),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordJobDuration(ctx context.Context, taskType string, duration time.Duration, status string) {
	if o != nil && o.jobDuration != nil {
		o.jobDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("task_type", taskType),
			attribute.String("status", status),
		))
	}
}

// RecordBatch records one finished batch: item counts per outcome and total duration.
func (o *Observability) RecordBatch(ctx context.Context, state string, outcomes map[string]int, duration time.Duration) {
	if o == nil {
		return
	}
	if o.batchItems != nil {
		for outcome, n := range outcomes {
			o.batchItems.Add(ctx, int64(n), otelmetric.WithAttributes(
				attribute.String("outcome", outcome),
			))
		}
	}
	if o.batchDuration != nil {
		o.batchDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("state", state),
		))
	}
}

func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
	if o.tracing != nil {
		_ = o.tracing.Shutdown(ctx)
	}
}
