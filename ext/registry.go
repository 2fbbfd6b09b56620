package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/jobqueue/id"
	"github.com/xraph/jobqueue/job"
)

// entry pairs a hook with the extension name captured at registration.
type entry[H any] struct {
	name string
	hook H
}

// cache appends e to list when it implements H.
func cache[H any](list []entry[H], name string, e Extension) []entry[H] {
	if h, ok := e.(H); ok {
		return append(list, entry[H]{name: name, hook: h})
	}
	return list
}

// Registry holds registered extensions and dispatches lifecycle events to
// them. Hooks are type-cached at registration so each emit only walks the
// extensions that implement it. Register everything before the engine
// starts; emits are not synchronized with Register.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	jobCreated   []entry[JobCreated]
	jobStarted   []entry[JobStarted]
	jobCompleted []entry[JobCompleted]
	jobPostponed []entry[JobPostponed]
	jobRetrying  []entry[JobRetrying]
	jobFailed    []entry[JobFailed]
	jobsSwept    []entry[JobsSwept]
	cronFired    []entry[CronFired]
	shutdown     []entry[Shutdown]
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	r.jobCreated = cache(r.jobCreated, name, e)
	r.jobStarted = cache(r.jobStarted, name, e)
	r.jobCompleted = cache(r.jobCompleted, name, e)
	r.jobPostponed = cache(r.jobPostponed, name, e)
	r.jobRetrying = cache(r.jobRetrying, name, e)
	r.jobFailed = cache(r.jobFailed, name, e)
	r.jobsSwept = cache(r.jobsSwept, name, e)
	r.cronFired = cache(r.cronFired, name, e)
	r.shutdown = cache(r.shutdown, name, e)
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Emitters
// ──────────────────────────────────────────────────

// EmitJobCreated notifies JobCreated hooks.
func (r *Registry) EmitJobCreated(ctx context.Context, j *job.Job) {
	for _, e := range r.jobCreated {
		r.check("OnJobCreated", e.name, e.hook.OnJobCreated(ctx, j))
	}
}

// EmitJobStarted notifies JobStarted hooks.
func (r *Registry) EmitJobStarted(ctx context.Context, j *job.Job) {
	for _, e := range r.jobStarted {
		r.check("OnJobStarted", e.name, e.hook.OnJobStarted(ctx, j))
	}
}

// EmitJobCompleted notifies JobCompleted hooks.
func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) {
	for _, e := range r.jobCompleted {
		r.check("OnJobCompleted", e.name, e.hook.OnJobCompleted(ctx, j, elapsed))
	}
}

// EmitJobPostponed notifies JobPostponed hooks.
func (r *Registry) EmitJobPostponed(ctx context.Context, j *job.Job, nextRunAt time.Time) {
	for _, e := range r.jobPostponed {
		r.check("OnJobPostponed", e.name, e.hook.OnJobPostponed(ctx, j, nextRunAt))
	}
}

// EmitJobRetrying notifies JobRetrying hooks.
func (r *Registry) EmitJobRetrying(ctx context.Context, j *job.Job, cause error, nextRunAt time.Time) {
	for _, e := range r.jobRetrying {
		r.check("OnJobRetrying", e.name, e.hook.OnJobRetrying(ctx, j, cause, nextRunAt))
	}
}

// EmitJobFailed notifies JobFailed hooks.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, cause error) {
	for _, e := range r.jobFailed {
		r.check("OnJobFailed", e.name, e.hook.OnJobFailed(ctx, j, cause))
	}
}

// EmitJobsSwept notifies JobsSwept hooks.
func (r *Registry) EmitJobsSwept(ctx context.Context, softDeleted, purged int) {
	for _, e := range r.jobsSwept {
		r.check("OnJobsSwept", e.name, e.hook.OnJobsSwept(ctx, softDeleted, purged))
	}
}

// EmitCronFired notifies CronFired hooks.
func (r *Registry) EmitCronFired(ctx context.Context, entryName string, jobID id.JobID) {
	for _, e := range r.cronFired {
		r.check("OnCronFired", e.name, e.hook.OnCronFired(ctx, entryName, jobID))
	}
}

// EmitShutdown notifies Shutdown hooks.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		r.check("OnShutdown", e.name, e.hook.OnShutdown(ctx))
	}
}

// check logs a hook error. Hook errors never propagate to the caller.
func (r *Registry) check(hook, extName string, err error) {
	if err == nil {
		return
	}
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
