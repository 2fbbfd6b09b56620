package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/jobqueue/target"
)

const meterName = "github.com/xraph/jobqueue"

// Metrics records per-invocation metrics on the global MeterProvider.
//
// Instruments:
//   - jobqueue.job.duration (Float64Histogram, seconds)
//   - jobqueue.job.executions (Int64Counter)
//
// Both carry job_name, client and outcome ("ok", "failed" or "error").
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter is Metrics with an explicit meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// The OTel API hands back noop instruments alongside any error.
	duration, _ := meter.Float64Histogram(
		"jobqueue.job.duration",
		metric.WithDescription("Duration of job target execution in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter(
		"jobqueue.job.executions",
		metric.WithDescription("Total number of job target executions"),
		metric.WithUnit("{execution}"),
	)

	return func(ctx context.Context, inv *target.Invocation, next Handler) (bool, error) {
		start := time.Now()
		ok, err := next(ctx)

		attrs := metric.WithAttributes(
			attribute.String("job_name", inv.Job.Name),
			attribute.String("client", inv.Job.Client),
			attribute.String("outcome", outcome(ok, err)),
		)
		duration.Record(ctx, time.Since(start).Seconds(), attrs)
		executions.Add(ctx, 1, attrs)

		return ok, err
	}
}
