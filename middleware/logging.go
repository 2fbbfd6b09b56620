package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/jobqueue/target"
)

// Logging logs every invocation with its elapsed time and outcome.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv *target.Invocation, next Handler) (bool, error) {
		start := time.Now()
		ok, err := next(ctx)

		attrs := []any{
			slog.String("job_name", inv.Job.Name),
			slog.String("job_id", inv.Job.ID.String()),
			slog.String("target", inv.Job.Target),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("outcome", outcome(ok, err)),
		}
		if err != nil {
			logger.Error("job target faulted", append(attrs, slog.String("error", err.Error()))...)
		} else {
			logger.Info("job target returned", attrs...)
		}
		return ok, err
	}
}
