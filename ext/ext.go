package ext

import (
	"context"
	"time"

	"github.com/xraph/jobqueue/id"
	"github.com/xraph/jobqueue/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobCreated is called after a job is persisted by the gateway or a cron
// entry.
type JobCreated interface {
	OnJobCreated(ctx context.Context, j *job.Job) error
}

// JobStarted is called when the executor moves a job to RUNNING.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after a job is resolved as SUCCESS.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobPostponed is called when a target postponed itself.
type JobPostponed interface {
	OnJobPostponed(ctx context.Context, j *job.Job, nextRunAt time.Time) error
}

// JobRetrying is called when a failed job is queued for another attempt.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, cause error, nextRunAt time.Time) error
}

// JobFailed is called once, when a job ends as FAILURE.
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, cause error) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// JobsSwept is called after a retention sweep.
type JobsSwept interface {
	OnJobsSwept(ctx context.Context, softDeleted, purged int) error
}

// CronFired is called when a cron entry fires and creates a job.
type CronFired interface {
	OnCronFired(ctx context.Context, entryName string, jobID id.JobID) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
