package middleware

import (
	"context"
	"time"

	"github.com/xraph/jobqueue/target"
)

// Timeout bounds each invocation with a context deadline. A zero or
// negative d disables it. Targets must honour ctx for the deadline to
// have any effect.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ *target.Invocation, next Handler) (bool, error) {
		if d <= 0 {
			return next(ctx)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next(ctx)
	}
}
