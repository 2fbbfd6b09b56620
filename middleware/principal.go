package middleware

import (
	"context"

	"github.com/xraph/jobqueue/principal"
	"github.com/xraph/jobqueue/target"
)

// Principal stores the invocation's principal in the context so code
// below the target can read it with principal.FromContext.
func Principal() Middleware {
	return func(ctx context.Context, inv *target.Invocation, next Handler) (bool, error) {
		if inv.Principal != nil {
			ctx = principal.NewContext(ctx, inv.Principal)
		}
		return next(ctx)
	}
}
