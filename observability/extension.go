package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/jobqueue/ext"
	"github.com/xraph/jobqueue/id"
	"github.com/xraph/jobqueue/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension    = (*MetricsExtension)(nil)
	_ ext.JobCreated   = (*MetricsExtension)(nil)
	_ ext.JobCompleted = (*MetricsExtension)(nil)
	_ ext.JobPostponed = (*MetricsExtension)(nil)
	_ ext.JobRetrying  = (*MetricsExtension)(nil)
	_ ext.JobFailed    = (*MetricsExtension)(nil)
	_ ext.JobsSwept    = (*MetricsExtension)(nil)
	_ ext.CronFired    = (*MetricsExtension)(nil)
)

const meterName = "github.com/xraph/jobqueue/observability"

// MetricsExtension records system-wide lifecycle counters. Register it as
// an extension to track creation, completion, postponement, retry and
// failure counts, swept jobs, and cron fires.
type MetricsExtension struct {
	JobCreated   metric.Int64Counter
	JobCompleted metric.Int64Counter
	JobPostponed metric.Int64Counter
	JobRetried   metric.Int64Counter
	JobFailed    metric.Int64Counter
	JobsSwept    metric.Int64Counter
	CronFired    metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global
// MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the given
// meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		// Errors come with a usable noop instrument.
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc))
		return c
	}
	return &MetricsExtension{
		JobCreated:   counter("jobqueue.job.created", "Jobs created"),
		JobCompleted: counter("jobqueue.job.completed", "Jobs resolved as SUCCESS"),
		JobPostponed: counter("jobqueue.job.postponed", "Runs postponed by their target"),
		JobRetried:   counter("jobqueue.job.retried", "Failed runs queued for another attempt"),
		JobFailed:    counter("jobqueue.job.failed", "Jobs resolved as FAILURE"),
		JobsSwept:    counter("jobqueue.job.swept", "Jobs soft-deleted or purged by retention"),
		CronFired:    counter("jobqueue.cron.fired", "Jobs created by cron entries"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func jobAttrs(j *job.Job) metric.AddOption {
	return metric.WithAttributes(
		attribute.String("job_name", j.Name),
		attribute.String("client", j.Client),
	)
}

// ── Job lifecycle hooks ─────────────────────────────

// OnJobCreated implements ext.JobCreated.
func (m *MetricsExtension) OnJobCreated(ctx context.Context, j *job.Job) error {
	m.JobCreated.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job, _ time.Duration) error {
	m.JobCompleted.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobPostponed implements ext.JobPostponed.
func (m *MetricsExtension) OnJobPostponed(ctx context.Context, j *job.Job, _ time.Time) error {
	m.JobPostponed.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(ctx context.Context, j *job.Job, _ error, _ time.Time) error {
	m.JobRetried.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	m.JobFailed.Add(ctx, 1, jobAttrs(j))
	return nil
}

// ── Other hooks ─────────────────────────────────────

// OnJobsSwept implements ext.JobsSwept.
func (m *MetricsExtension) OnJobsSwept(ctx context.Context, softDeleted, purged int) error {
	m.JobsSwept.Add(ctx, int64(softDeleted), metric.WithAttributes(attribute.String("action", "soft_delete")))
	m.JobsSwept.Add(ctx, int64(purged), metric.WithAttributes(attribute.String("action", "purge")))
	return nil
}

// OnCronFired implements ext.CronFired.
func (m *MetricsExtension) OnCronFired(ctx context.Context, entryName string, _ id.JobID) error {
	m.CronFired.Add(ctx, 1, metric.WithAttributes(attribute.String("cron_name", entryName)))
	return nil
}
