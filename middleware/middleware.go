package middleware

import (
	"context"

	"github.com/xraph/jobqueue/target"
)

// Handler is the terminal call into a resolved target.
type Handler func(ctx context.Context) (bool, error)

// Middleware wraps a Handler with cross-cutting logic. It receives the
// invocation being executed and the next handler. Middleware must call next
// to continue the chain unless it short-circuits.
type Middleware func(ctx context.Context, inv *target.Invocation, next Handler) (bool, error)

// Chain composes middleware into one. The first middleware is the
// outermost wrapper:
//
//	Chain(recover, logging, timeout) runs as recover → logging → timeout → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, inv *target.Invocation, next Handler) (bool, error) {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw, inner := mws[i], h
			h = func(ctx context.Context) (bool, error) {
				return mw(ctx, inv, inner)
			}
		}
		return h(ctx)
	}
}

// Wrap binds fn to inv and runs it through mw.
func Wrap(mw Middleware, fn target.Func, inv *target.Invocation) Handler {
	return func(ctx context.Context) (bool, error) {
		return mw(ctx, inv, func(ctx context.Context) (bool, error) {
			return fn(ctx, inv)
		})
	}
}

// outcome labels a handler result for logs and metrics.
func outcome(ok bool, err error) string {
	switch {
	case err != nil:
		return "error"
	case ok:
		return "ok"
	default:
		return "failed"
	}
}
