package job

import (
	"context"
	"time"

	"github.com/xraph/jobqueue/id"
)

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// Status filters by status. Empty means all statuses.
	Status Status
	// Client filters by exact client tag. Empty means all clients.
	Client string
	// ModifiedBefore keeps jobs whose UpdatedAt is strictly earlier.
	// Zero means no bound.
	ModifiedBefore time.Time
	// IncludeDeleted also returns soft-deleted jobs.
	IncludeDeleted bool
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
}

// CountOpts controls filtering for job count queries. Soft-deleted jobs are
// never counted.
type CountOpts struct {
	// Status filters by status. Empty means all statuses.
	Status Status
	// Client filters by exact client tag. Empty means all clients.
	Client string
}

// Store defines the persistence contract for jobs.
type Store interface {
	// CreateJob persists a new job.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob retrieves a live job by ID. Soft-deleted jobs yield
	// ErrJobNotFound.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// GetJobWithDeleted retrieves a job by ID even if it was soft-deleted.
	GetJobWithDeleted(ctx context.Context, jobID id.JobID) (*Job, error)

	// UpdateJob persists changes to an existing job and stamps UpdatedAt.
	UpdateJob(ctx context.Context, j *Job) error

	// ClaimJob atomically moves a job from QUEUED to RUNNING. It returns
	// ErrClaimConflict when the job is no longer QUEUED.
	ClaimJob(ctx context.Context, jobID id.JobID) error

	// DueJobs returns up to limit QUEUED, live jobs with ExecuteTime <= now
	// whose client is empty or equals client, oldest ExecuteTime first.
	DueJobs(ctx context.Context, client string, now time.Time, limit int) ([]*Job, error)

	// ListJobs returns jobs matching opts ordered by creation time.
	ListJobs(ctx context.Context, opts ListOpts) ([]*Job, error)

	// CountJobs returns the number of live jobs matching opts.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)

	// CancelJob soft-deletes a job only while it is QUEUED. A job that is
	// RUNNING or DONE yields ErrInvalidState; a missing or already deleted
	// job yields ErrJobNotFound. The status check and the delete are one
	// atomic step, so a cancelled job can never be claimed.
	CancelJob(ctx context.Context, jobID id.JobID) error

	// HeartbeatJob records that the worker running jobID is still alive.
	// It yields ErrInvalidState when the job is no longer RUNNING.
	HeartbeatJob(ctx context.Context, jobID id.JobID, at time.Time) error

	// RequeueStaleJobs moves live RUNNING jobs whose last heartbeat is older
	// than staleBefore back to QUEUED, due at now, and returns them.
	RequeueStaleJobs(ctx context.Context, staleBefore, now time.Time) ([]*Job, error)

	// SoftDeleteJob hides a job from normal reads without touching
	// UpdatedAt.
	SoftDeleteJob(ctx context.Context, jobID id.JobID) error

	// PurgeJob removes a job permanently.
	PurgeJob(ctx context.Context, jobID id.JobID) error
}
