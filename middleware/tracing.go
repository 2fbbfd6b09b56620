package middleware

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/jobqueue/target"
)

const tracerName = "github.com/xraph/jobqueue"

var errReportedFailure = errors.New("target reported failure")

// Tracing wraps each invocation in a span from the global TracerProvider.
// With no provider configured the noop tracer makes it a pass-through.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer is Tracing with an explicit tracer.
//
// Span attributes: jobqueue.job.id, jobqueue.job.name, jobqueue.target,
// jobqueue.client, jobqueue.failure_count.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, inv *target.Invocation, next Handler) (bool, error) {
		ctx, span := tracer.Start(ctx, "jobqueue.job.execute",
			trace.WithAttributes(
				attribute.String("jobqueue.job.id", inv.Job.ID.String()),
				attribute.String("jobqueue.job.name", inv.Job.Name),
				attribute.String("jobqueue.target", inv.Job.Target),
				attribute.String("jobqueue.client", inv.Job.Client),
				attribute.Int("jobqueue.failure_count", inv.Job.FailureCount),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		ok, err := next(ctx)
		switch {
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case !ok:
			span.SetStatus(codes.Error, errReportedFailure.Error())
		default:
			span.SetStatus(codes.Ok, "")
		}
		return ok, err
	}
}
