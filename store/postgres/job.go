package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/id"
	"github.com/xraph/jobqueue/job"
)

const jobColumns = `
	id, name, status, resolution, target, data, assigned_principal, client,
	execute_time, requeue, retry_count, failure_count, job_delay, min_interval,
	message, scheduler_id, started_at, deleted_at, created_at, updated_at,
	heartbeat_at`

// CreateJob persists a new job.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobqueue_jobs (`+jobColumns+`
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20,
			$21
		)`,
		j.ID.String(), j.Name, string(j.Status), string(j.Resolution), j.Target, j.Data,
		j.AssignedPrincipal, j.Client,
		j.ExecuteTime, j.Requeue, j.RetryCount, j.FailureCount,
		j.JobDelay.Nanoseconds(), j.MinInterval.Nanoseconds(),
		j.Message, nilIfEmpty(j.SchedulerID.String()), j.StartedAt, j.DeletedAt,
		j.CreatedAt, j.UpdatedAt,
		j.HeartbeatAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return jobqueue.ErrJobAlreadyExists
		}
		return fmt.Errorf("jobqueue/postgres: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a live job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return s.getJob(ctx, jobID, false)
}

// GetJobWithDeleted retrieves a job by ID, soft-deleted or not.
func (s *Store) GetJobWithDeleted(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return s.getJob(ctx, jobID, true)
}

func (s *Store) getJob(ctx context.Context, jobID id.JobID, withDeleted bool) (*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobqueue_jobs WHERE id = $1`
	if !withDeleted {
		query += ` AND deleted_at IS NULL`
	}

	j, err := scanJob(s.pool.QueryRow(ctx, query, jobID.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, jobqueue.ErrJobNotFound
		}
		return nil, fmt.Errorf("jobqueue/postgres: get job: %w", err)
	}
	return j, nil
}

// UpdateJob persists changes to an existing job and stamps UpdatedAt.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	now := s.now()
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobqueue_jobs SET
			name = $2, status = $3, resolution = $4, target = $5, data = $6,
			assigned_principal = $7, client = $8, execute_time = $9,
			requeue = $10, retry_count = $11, failure_count = $12,
			job_delay = $13, min_interval = $14, message = $15,
			scheduler_id = $16, started_at = $17, deleted_at = $18,
			heartbeat_at = $19, updated_at = $20
		WHERE id = $1`,
		j.ID.String(), j.Name, string(j.Status), string(j.Resolution), j.Target, j.Data,
		j.AssignedPrincipal, j.Client, j.ExecuteTime,
		j.Requeue, j.RetryCount, j.FailureCount,
		j.JobDelay.Nanoseconds(), j.MinInterval.Nanoseconds(), j.Message,
		nilIfEmpty(j.SchedulerID.String()), j.StartedAt, j.DeletedAt,
		j.HeartbeatAt, now,
	)
	if err != nil {
		return fmt.Errorf("jobqueue/postgres: update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return jobqueue.ErrJobNotFound
	}
	j.UpdatedAt = now
	return nil
}

// ClaimJob moves a QUEUED job to RUNNING. The status predicate in the
// UPDATE makes the transition atomic across workers. The claim counts as
// the first heartbeat.
func (s *Store) ClaimJob(ctx context.Context, jobID id.JobID) error {
	now := s.now()
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobqueue_jobs
		SET status = 'RUNNING', heartbeat_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'QUEUED' AND deleted_at IS NULL`,
		jobID.String(), now,
	)
	if err != nil {
		return fmt.Errorf("jobqueue/postgres: claim job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return s.guardFailed(ctx, jobID, jobqueue.ErrClaimConflict)
}

// guardFailed explains a guarded UPDATE that matched no row: ErrJobNotFound
// when the job is missing or soft-deleted, conflict otherwise.
func (s *Store) guardFailed(ctx context.Context, jobID id.JobID, conflict error) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM jobqueue_jobs WHERE id = $1 AND deleted_at IS NULL)`,
		jobID.String(),
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("jobqueue/postgres: check job exists: %w", err)
	}
	if !exists {
		return jobqueue.ErrJobNotFound
	}
	return conflict
}

// CancelJob soft-deletes a job only while it is still QUEUED.
func (s *Store) CancelJob(ctx context.Context, jobID id.JobID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobqueue_jobs
		SET deleted_at = $2
		WHERE id = $1 AND status = 'QUEUED' AND deleted_at IS NULL`,
		jobID.String(), s.now(),
	)
	if err != nil {
		return fmt.Errorf("jobqueue/postgres: cancel job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return s.guardFailed(ctx, jobID, fmt.Errorf("%w: job %s is not QUEUED", jobqueue.ErrInvalidState, jobID))
}

// HeartbeatJob stamps heartbeat_at on a RUNNING job.
func (s *Store) HeartbeatJob(ctx context.Context, jobID id.JobID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobqueue_jobs
		SET heartbeat_at = $2
		WHERE id = $1 AND status = 'RUNNING' AND deleted_at IS NULL`,
		jobID.String(), at,
	)
	if err != nil {
		return fmt.Errorf("jobqueue/postgres: heartbeat job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return s.guardFailed(ctx, jobID, fmt.Errorf("%w: job %s is not RUNNING", jobqueue.ErrInvalidState, jobID))
}

// RequeueStaleJobs resets abandoned RUNNING jobs in a single UPDATE, so a
// heartbeat landing concurrently either keeps the row or loses the race
// cleanly.
func (s *Store) RequeueStaleJobs(ctx context.Context, staleBefore, now time.Time) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE jobqueue_jobs
		SET status = 'QUEUED', execute_time = $2, started_at = NULL,
		    heartbeat_at = NULL, updated_at = $2
		WHERE status = 'RUNNING'
		  AND deleted_at IS NULL
		  AND (heartbeat_at IS NULL OR heartbeat_at < $1)
		RETURNING `+jobColumns,
		staleBefore, now,
	)
	if err != nil {
		return nil, fmt.Errorf("jobqueue/postgres: requeue stale jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// DueJobs returns QUEUED live jobs due at now and visible to client,
// oldest execute time first. Rows being claimed concurrently are skipped.
func (s *Store) DueJobs(ctx context.Context, client string, now time.Time, limit int) ([]*job.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobqueue_jobs
		WHERE status = 'QUEUED'
		  AND deleted_at IS NULL
		  AND execute_time <= $1
		  AND (client = '' OR client = $2)
		ORDER BY execute_time ASC, created_at ASC`
	args := []any{now, client}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	query += ` FOR UPDATE SKIP LOCKED`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("jobqueue/postgres: due jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ListJobs returns jobs matching opts ordered by creation time.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !opts.IncludeDeleted {
		where = append(where, "deleted_at IS NULL")
	}
	if opts.Status != "" {
		where = append(where, "status = "+arg(string(opts.Status)))
	}
	if opts.Client != "" {
		where = append(where, "client = "+arg(opts.Client))
	}
	if !opts.ModifiedBefore.IsZero() {
		where = append(where, "updated_at < "+arg(opts.ModifiedBefore))
	}

	query := `SELECT ` + jobColumns + ` FROM jobqueue_jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC"
	if opts.Limit > 0 {
		query += " LIMIT " + arg(opts.Limit)
	}
	if opts.Offset > 0 {
		query += " OFFSET " + arg(opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("jobqueue/postgres: list jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// CountJobs returns the number of live jobs matching opts.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM jobqueue_jobs WHERE deleted_at IS NULL`
	args := []any{}
	argIdx := 1

	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(opts.Status))
		argIdx++
	}
	if opts.Client != "" {
		query += fmt.Sprintf(" AND client = $%d", argIdx)
		args = append(args, opts.Client)
	}

	var count int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("jobqueue/postgres: count jobs: %w", err)
	}
	return count, nil
}

// SoftDeleteJob sets deleted_at and leaves updated_at alone.
func (s *Store) SoftDeleteJob(ctx context.Context, jobID id.JobID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobqueue_jobs
		SET deleted_at = COALESCE(deleted_at, $2)
		WHERE id = $1`,
		jobID.String(), s.now(),
	)
	if err != nil {
		return fmt.Errorf("jobqueue/postgres: soft delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return jobqueue.ErrJobNotFound
	}
	return nil
}

// PurgeJob removes a job permanently.
func (s *Store) PurgeJob(ctx context.Context, jobID id.JobID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobqueue_jobs WHERE id = $1`, jobID.String())
	if err != nil {
		return fmt.Errorf("jobqueue/postgres: purge job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return jobqueue.ErrJobNotFound
	}
	return nil
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j          job.Job
		idStr      string
		status     string
		resolution string
		delayNs    int64
		minNs      int64
		schedID    *string
	)
	err := row.Scan(
		&idStr, &j.Name, &status, &resolution, &j.Target, &j.Data,
		&j.AssignedPrincipal, &j.Client,
		&j.ExecuteTime, &j.Requeue, &j.RetryCount, &j.FailureCount,
		&delayNs, &minNs,
		&j.Message, &schedID, &j.StartedAt, &j.DeletedAt,
		&j.CreatedAt, &j.UpdatedAt,
		&j.HeartbeatAt,
	)
	if err != nil {
		return nil, err
	}

	j.Status = job.Status(status)
	j.Resolution = job.Resolution(resolution)
	j.JobDelay = time.Duration(delayNs)
	j.MinInterval = time.Duration(minNs)

	parsedID, parseErr := id.ParseJobID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("jobqueue/postgres: parse job id %q: %w", idStr, parseErr)
	}
	j.ID = parsedID

	if schedID != nil && *schedID != "" {
		parsedCron, cronErr := id.ParseCronID(*schedID)
		if cronErr == nil {
			j.SchedulerID = parsedCron
		}
	}

	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("jobqueue/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobqueue/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}
