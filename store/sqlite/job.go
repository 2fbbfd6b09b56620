package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/id"
	"github.com/xraph/jobqueue/job"
)

// CreateJob persists a new job.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	m := toJobModel(j)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return jobqueue.ErrJobAlreadyExists
		}
		return fmt.Errorf("jobqueue/sqlite: create job: %w", err)
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
	m := new(jobModel)
	q := s.db.NewSelect().Model(m).Where("id = ?", jobID.String())
	if !withDeleted {
		q = q.Where("deleted_at IS NULL")
	}

	if err := q.Limit(1).Scan(ctx); err != nil {
		if isNoRows(err) {
			return nil, jobqueue.ErrJobNotFound
		}
		return nil, fmt.Errorf("jobqueue/sqlite: get job: %w", err)
	}
	return fromJobModel(m)
}

// UpdateJob persists changes to an existing job and stamps UpdatedAt.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	now := s.now().UTC()
	m := toJobModel(j)
	m.UpdatedAt = now

	res, err := s.db.NewUpdate().Model(m).
		ExcludeColumn("created_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("jobqueue/sqlite: update job: %w", err)
	}
	if affected(res) == 0 {
		return jobqueue.ErrJobNotFound
	}
	j.UpdatedAt = now
	return nil
}

// ClaimJob moves a QUEUED job to RUNNING. SQLite runs the guarded UPDATE
// under its database write lock, so only one caller can win.
func (s *Store) ClaimJob(ctx context.Context, jobID id.JobID) error {
	now := s.now().UTC()
	res, err := s.db.NewUpdate().
		TableExpr("jobqueue_jobs").
		Set("status = ?", string(job.StatusRunning)).
		Set("heartbeat_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", jobID.String()).
		Where("status = ?", string(job.StatusQueued)).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("jobqueue/sqlite: claim job: %w", err)
	}
	if affected(res) == 1 {
		return nil
	}
	return s.guardFailed(ctx, jobID, jobqueue.ErrClaimConflict)
}

// guardFailed explains a guarded update that matched no row.
func (s *Store) guardFailed(ctx context.Context, jobID id.JobID, conflict error) error {
	exists, err := s.db.NewSelect().
		Model((*jobModel)(nil)).
		Where("id = ?", jobID.String()).
		Where("deleted_at IS NULL").
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("jobqueue/sqlite: check job exists: %w", err)
	}
	if !exists {
		return jobqueue.ErrJobNotFound
	}
	return conflict
}

// CancelJob soft-deletes a job only while it is still QUEUED.
func (s *Store) CancelJob(ctx context.Context, jobID id.JobID) error {
	res, err := s.db.NewUpdate().
		TableExpr("jobqueue_jobs").
		Set("deleted_at = ?", s.now().UTC()).
		Where("id = ?", jobID.String()).
		Where("status = ?", string(job.StatusQueued)).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("jobqueue/sqlite: cancel job: %w", err)
	}
	if affected(res) == 1 {
		return nil
	}
	return s.guardFailed(ctx, jobID, fmt.Errorf("%w: job %s is not QUEUED", jobqueue.ErrInvalidState, jobID))
}

// HeartbeatJob stamps heartbeat_at on a RUNNING job.
func (s *Store) HeartbeatJob(ctx context.Context, jobID id.JobID, at time.Time) error {
	res, err := s.db.NewUpdate().
		TableExpr("jobqueue_jobs").
		Set("heartbeat_at = ?", at.UTC()).
		Where("id = ?", jobID.String()).
		Where("status = ?", string(job.StatusRunning)).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("jobqueue/sqlite: heartbeat job: %w", err)
	}
	if affected(res) == 1 {
		return nil
	}
	return s.guardFailed(ctx, jobID, fmt.Errorf("%w: job %s is not RUNNING", jobqueue.ErrInvalidState, jobID))
}

// RequeueStaleJobs selects stale RUNNING rows, then resets each with an
// update that repeats the staleness guard. A row whose heartbeat landed in
// between is left alone.
func (s *Store) RequeueStaleJobs(ctx context.Context, staleBefore, now time.Time) ([]*job.Job, error) {
	staleBefore, now = staleBefore.UTC(), now.UTC()

	var models []jobModel
	err := s.db.NewSelect().Model(&models).
		Where("status = ?", string(job.StatusRunning)).
		Where("deleted_at IS NULL").
		Where("(heartbeat_at IS NULL OR heartbeat_at < ?)", staleBefore).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("jobqueue/sqlite: find stale jobs: %w", err)
	}

	reset := make([]*job.Job, 0, len(models))
	for i := range models {
		res, err := s.db.NewUpdate().
			TableExpr("jobqueue_jobs").
			Set("status = ?", string(job.StatusQueued)).
			Set("execute_time = ?", now).
			Set("started_at = NULL").
			Set("heartbeat_at = NULL").
			Set("updated_at = ?", now).
			Where("id = ?", models[i].ID).
			Where("status = ?", string(job.StatusRunning)).
			Where("deleted_at IS NULL").
			Where("(heartbeat_at IS NULL OR heartbeat_at < ?)", staleBefore).
			Exec(ctx)
		if err != nil {
			return nil, fmt.Errorf("jobqueue/sqlite: requeue stale job: %w", err)
		}
		if affected(res) == 0 {
			continue
		}

		j, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}
		j.ResetStale(now)
		j.UpdatedAt = now
		reset = append(reset, j)
	}
	return reset, nil
}

// DueJobs returns QUEUED live jobs due at now and visible to client,
// oldest execute time first.
func (s *Store) DueJobs(ctx context.Context, client string, now time.Time, limit int) ([]*job.Job, error) {
	var models []jobModel
	q := s.db.NewSelect().Model(&models).
		Where("status = ?", string(job.StatusQueued)).
		Where("deleted_at IS NULL").
		Where("execute_time <= ?", now.UTC()).
		Where("(client = '' OR client = ?)", client).
		Order("execute_time ASC", "created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("jobqueue/sqlite: due jobs: %w", err)
	}
	return fromJobModels(models)
}

// ListJobs returns jobs matching opts ordered by creation time.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	var models []jobModel
	q := s.db.NewSelect().Model(&models)

	if !opts.IncludeDeleted {
		q = q.Where("deleted_at IS NULL")
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Client != "" {
		q = q.Where("client = ?", opts.Client)
	}
	if !opts.ModifiedBefore.IsZero() {
		q = q.Where("updated_at < ?", opts.ModifiedBefore.UTC())
	}

	q = q.Order("created_at ASC", "id ASC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		// SQLite rejects OFFSET without LIMIT.
		if opts.Limit <= 0 {
			q = q.Limit(-1)
		}
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("jobqueue/sqlite: list jobs: %w", err)
	}
	return fromJobModels(models)
}

// CountJobs returns the number of live jobs matching opts.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	q := s.db.NewSelect().Model((*jobModel)(nil)).Where("deleted_at IS NULL")
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Client != "" {
		q = q.Where("client = ?", opts.Client)
	}

	n, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("jobqueue/sqlite: count jobs: %w", err)
	}
	return int64(n), nil
}

// SoftDeleteJob sets deleted_at and leaves updated_at alone.
func (s *Store) SoftDeleteJob(ctx context.Context, jobID id.JobID) error {
	res, err := s.db.NewUpdate().
		TableExpr("jobqueue_jobs").
		Set("deleted_at = COALESCE(deleted_at, ?)", s.now().UTC()).
		Where("id = ?", jobID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("jobqueue/sqlite: soft delete job: %w", err)
	}
	if affected(res) == 0 {
		return jobqueue.ErrJobNotFound
	}
	return nil
}

// PurgeJob removes a job permanently.
func (s *Store) PurgeJob(ctx context.Context, jobID id.JobID) error {
	res, err := s.db.NewDelete().
		TableExpr("jobqueue_jobs").
		Where("id = ?", jobID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("jobqueue/sqlite: purge job: %w", err)
	}
	if affected(res) == 0 {
		return jobqueue.ErrJobNotFound
	}
	return nil
}
