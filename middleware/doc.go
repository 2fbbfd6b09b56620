// Package middleware provides composable wrappers around target
// invocation.
//
// A [Middleware] wraps the call into a resolved target. [Chain] composes
// them; the first one listed is the outermost:
//
//	chain := middleware.Chain(middleware.Recover(logger), middleware.Logging(logger))
//
// # Built-in Middleware
//
//   - [Recover]: turns a panic into an execution fault
//   - [Logging]: logs target, elapsed time and outcome
//   - [Timeout]: bounds the invocation with a context deadline
//   - [Tracing]: wraps the invocation in an OpenTelemetry span
//   - [Metrics]: records duration and outcome counters
//   - [Principal]: exposes the invocation's principal on the context
//
// A handler reports (ok, err). A non-nil err is a fault; ok=false with a
// nil err is a plain failure.
package middleware
