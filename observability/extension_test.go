package observability_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xraph/jobqueue/ext"
	"github.com/xraph/jobqueue/id"
	"github.com/xraph/jobqueue/job"
	"github.com/xraph/jobqueue/observability"
)

func newTestExtension() (*observability.MetricsExtension, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return observability.NewMetricsExtensionWithMeter(mp.Meter("test")), reader
}

func newTestJob() *job.Job {
	return job.New("send-email", "function::sendEmail", job.WithClient("mailer"))
}

// counterValue sums every data point of the named counter.
func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: data type %T, want Sum[int64]", name, m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestMetricsExtension_Name(t *testing.T) {
	e, _ := newTestExtension()
	if e.Name() != "observability-metrics" {
		t.Errorf("Name() = %q, want %q", e.Name(), "observability-metrics")
	}
}

func TestMetricsExtension_Hooks(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		metric string
		call   func(*observability.MetricsExtension) error
		want   int64
	}{
		{"created", "jobqueue.job.created", func(e *observability.MetricsExtension) error {
			return e.OnJobCreated(ctx, newTestJob())
		}, 1},
		{"completed", "jobqueue.job.completed", func(e *observability.MetricsExtension) error {
			return e.OnJobCompleted(ctx, newTestJob(), 100*time.Millisecond)
		}, 1},
		{"postponed", "jobqueue.job.postponed", func(e *observability.MetricsExtension) error {
			return e.OnJobPostponed(ctx, newTestJob(), time.Now())
		}, 1},
		{"retried", "jobqueue.job.retried", func(e *observability.MetricsExtension) error {
			return e.OnJobRetrying(ctx, newTestJob(), errors.New("boom"), time.Now())
		}, 1},
		{"failed", "jobqueue.job.failed", func(e *observability.MetricsExtension) error {
			return e.OnJobFailed(ctx, newTestJob(), errors.New("boom"))
		}, 1},
		{"swept", "jobqueue.job.swept", func(e *observability.MetricsExtension) error {
			return e.OnJobsSwept(ctx, 3, 2)
		}, 5},
		{"cron", "jobqueue.cron.fired", func(e *observability.MetricsExtension) error {
			return e.OnCronFired(ctx, "daily-cleanup", id.NewJobID())
		}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, reader := newTestExtension()
			if err := tt.call(e); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := counterValue(t, reader, tt.metric); got != tt.want {
				t.Errorf("%s = %d, want %d", tt.metric, got, tt.want)
			}
		})
	}
}

func TestMetricsExtension_ViaRegistry(t *testing.T) {
	e, reader := newTestExtension()

	reg := ext.NewRegistry(slog.Default())
	reg.Register(e)

	ctx := context.Background()
	j := newTestJob()

	reg.EmitJobCreated(ctx, j)
	reg.EmitJobCompleted(ctx, j, 50*time.Millisecond)
	reg.EmitJobPostponed(ctx, j, time.Now())
	reg.EmitJobRetrying(ctx, j, errors.New("fail"), time.Now())
	reg.EmitJobFailed(ctx, j, errors.New("fail"))
	reg.EmitCronFired(ctx, "hourly", id.NewJobID())

	for _, name := range []string{
		"jobqueue.job.created",
		"jobqueue.job.completed",
		"jobqueue.job.postponed",
		"jobqueue.job.retried",
		"jobqueue.job.failed",
		"jobqueue.cron.fired",
	} {
		if got := counterValue(t, reader, name); got != 1 {
			t.Errorf("%s = %d, want 1", name, got)
		}
	}
}
