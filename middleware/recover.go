package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/jobqueue/target"
)

// Recover converts a panicking target into an execution fault. The panic
// is logged with a stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv *target.Invocation, next Handler) (ok bool, retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("job target panicked",
					slog.String("job_name", inv.Job.Name),
					slog.String("job_id", inv.Job.ID.String()),
					slog.String("target", inv.Job.Target),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				ok, retErr = false, fmt.Errorf("panic in target %s: %v", inv.Job.Target, r)
			}
		}()
		return next(ctx)
	}
}
