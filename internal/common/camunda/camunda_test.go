package camunda

import (
	"context"
	"errors"
	"testing"
	"time"

	"hotspot-selection/internal/common/camunda/camundatest"
	"hotspot-selection/internal/common/config"
	"hotspot-selection/internal/common/metrics"
	"hotspot-selection/internal/common/observability"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
)

func TestIsRetryableZeebeError(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"rpc error: code = Unavailable desc = connection refused", true},
		{"context deadline exceeded", true},
		{"rpc error: code = NotFound desc = no such process", false},
		{"permission denied", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isRetryableZeebeError(errors.New(tt.msg)), tt.msg)
	}
}

func TestBackoffDelay_Capped(t *testing.T) {
	rc := &RetryConfig{BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, backoffDelay(rc, 0))
	assert.Equal(t, 4*time.Second, backoffDelay(rc, 2))
	assert.Equal(t, 5*time.Second, backoffDelay(rc, 6))
}

func TestInstrument_TracksActiveJobs(t *testing.T) {
	const taskType = "instrument-test"
	var activeDuring float64

	h := Instrument(taskType, func(client worker.JobClient, job entities.Job) {
		activeDuring = testutil.ToFloat64(metrics.WorkerJobsActive.WithLabelValues(taskType))
	}, nil)
	h(nil, entities.Job{ActivatedJob: &pb.ActivatedJob{Key: 1}})

	assert.Equal(t, 1.0, activeDuring)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.WorkerJobsActive.WithLabelValues(taskType)))
}

func TestInstrument_RecordsReportedOutcome(t *testing.T) {
	tests := []struct {
		name   string
		report func(client worker.JobClient, job entities.Job)
		want   string
	}{
		{
			name: "completed",
			report: func(client worker.JobClient, job entities.Job) {
				client.NewCompleteJobCommand().JobKey(job.Key).Send(context.Background())
			},
			want: JobCompleted,
		},
		{
			name: "failed",
			report: func(client worker.JobClient, job entities.Job) {
				client.NewFailJobCommand().JobKey(job.Key).Retries(1).Send(context.Background())
			},
			want: JobFailed,
		},
		{
			name: "thrown",
			report: func(client worker.JobClient, job entities.Job) {
				client.NewThrowErrorCommand().JobKey(job.Key).ErrorCode("INVALID_INPUT").Send(context.Background())
			},
			want: JobThrown,
		},
		{
			name:   "nothing sent",
			report: func(worker.JobClient, entities.Job) {},
			want:   JobUnreported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := sdkmetric.NewManualReader()
			obs := observability.NewWithReader("camunda-test", reader)
			client := camundatest.NewJobClient()

			Instrument("outcome-test", tt.report, obs)(client, entities.Job{ActivatedJob: &pb.ActivatedJob{Key: 9}})

			assert.Equal(t, map[string]int64{tt.want: 1}, processedByStatus(t, reader))
		})
	}
}

func processedByStatus(t *testing.T, reader sdkmetric.Reader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok || m.Name != "jobs.processed" {
				continue
			}
			for _, dp := range sum.DataPoints {
				status, _ := dp.Attributes.Value("status")
				out[status.AsString()] += dp.Value
			}
		}
	}
	return out
}

func TestStartWorker_Disabled(t *testing.T) {
	jw := StartWorker(nil, "disabled-task", config.WorkerConfig{Enabled: false}, func(worker.JobClient, entities.Job) {}, nil, zaptest.NewLogger(t))
	assert.Nil(t, jw)
}

func TestExecTimeout(t *testing.T) {
	tests := []struct {
		job  time.Duration
		want time.Duration
	}{
		{time.Second, 900 * time.Millisecond},
		{30 * time.Second, 27 * time.Second},
		{10 * time.Minute, 10*time.Minute - ReportTimeout},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExecTimeout(tt.job), tt.job.String())
	}
}

func TestReportContext_OutlivesExecContext(t *testing.T) {
	execCtx, cancelExec := ExecContext(20 * time.Millisecond)
	defer cancelExec()
	<-execCtx.Done()

	reportCtx, cancel := ReportContext()
	defer cancel()

	assert.NoError(t, reportCtx.Err())
	deadline, ok := reportCtx.Deadline()
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(ReportTimeout), deadline, time.Second)
}
