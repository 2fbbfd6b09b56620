package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/cron"
	"github.com/xraph/jobqueue/id"
)

const cronColumns = `
	id, name, schedule, target, data, assigned_principal, client,
	requeue, retry_count, job_delay, min_interval,
	last_run_at, next_run_at, locked_by, locked_until,
	enabled, created_at, updated_at`

// RegisterCron persists a new cron entry. Returns ErrDuplicateCron if the
// name already exists.
func (s *Store) RegisterCron(ctx context.Context, entry *cron.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobqueue_cron_entries (`+cronColumns+`
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		entry.ID.String(), entry.Name, entry.Schedule, entry.Target, entry.Data,
		entry.AssignedPrincipal, entry.Client,
		entry.Requeue, entry.RetryCount, entry.JobDelay.Nanoseconds(), entry.MinInterval.Nanoseconds(),
		entry.LastRunAt, entry.NextRunAt, nilIfEmpty(entry.LockedBy), entry.LockedUntil,
		entry.Enabled, entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return jobqueue.ErrDuplicateCron
		}
		return fmt.Errorf("jobqueue/postgres: register cron: %w", err)
	}
	return nil
}

// GetCron retrieves a cron entry by ID.
func (s *Store) GetCron(ctx context.Context, entryID id.CronID) (*cron.Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+cronColumns+` FROM jobqueue_cron_entries WHERE id = $1`,
		entryID.String(),
	)

	e, err := scanCron(row)
	if err != nil {
		if isNoRows(err) {
			return nil, jobqueue.ErrCronNotFound
		}
		return nil, fmt.Errorf("jobqueue/postgres: get cron: %w", err)
	}
	return e, nil
}

// ListCrons returns all cron entries.
func (s *Store) ListCrons(ctx context.Context) ([]*cron.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+cronColumns+` FROM jobqueue_cron_entries ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("jobqueue/postgres: list crons: %w", err)
	}
	defer rows.Close()

	var entries []*cron.Entry
	for rows.Next() {
		e, scanErr := scanCron(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("jobqueue/postgres: scan cron row: %w", scanErr)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("jobqueue/postgres: iterate cron rows: %w", err)
	}
	return entries, nil
}

// AcquireCronLock attempts to lock a cron entry for workerID. It succeeds
// when the entry is unlocked, the lock expired, or workerID already holds it.
func (s *Store) AcquireCronLock(ctx context.Context, entryID id.CronID, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	now := s.now()
	until := now.Add(ttl)
	wID := workerID.String()

	tag, err := s.pool.Exec(ctx, `
		UPDATE jobqueue_cron_entries
		SET locked_by = $2, locked_until = $3
		WHERE id = $1
		  AND (locked_by IS NULL OR locked_until < $4 OR locked_by = $2)`,
		entryID.String(), wID, until, now,
	)
	if err != nil {
		return false, fmt.Errorf("jobqueue/postgres: acquire cron lock: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Check if the entry exists at all.
		var exists bool
		existErr := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM jobqueue_cron_entries WHERE id = $1)`,
			entryID.String(),
		).Scan(&exists)
		if existErr != nil {
			return false, fmt.Errorf("jobqueue/postgres: check cron exists: %w", existErr)
		}
		if !exists {
			return false, jobqueue.ErrCronNotFound
		}
		return false, nil
	}

	return true, nil
}

// ReleaseCronLock releases the lock if workerID holds it.
func (s *Store) ReleaseCronLock(ctx context.Context, entryID id.CronID, workerID id.WorkerID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobqueue_cron_entries
		SET locked_by = NULL, locked_until = NULL
		WHERE id = $1 AND locked_by = $2`,
		entryID.String(), workerID.String(),
	)
	if err != nil {
		return fmt.Errorf("jobqueue/postgres: release cron lock: %w", err)
	}
	return nil
}

// UpdateCronLastRun records when a job of the entry last ran.
func (s *Store) UpdateCronLastRun(ctx context.Context, entryID id.CronID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobqueue_cron_entries
		SET last_run_at = $2, updated_at = $3
		WHERE id = $1`,
		entryID.String(), at, s.now(),
	)
	if err != nil {
		return fmt.Errorf("jobqueue/postgres: update cron last run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return jobqueue.ErrCronNotFound
	}
	return nil
}

// UpdateCronEntry updates a cron entry. The lock columns are not touched.
func (s *Store) UpdateCronEntry(ctx context.Context, entry *cron.Entry) error {
	now := s.now()
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobqueue_cron_entries SET
			name = $2, schedule = $3, target = $4, data = $5,
			assigned_principal = $6, client = $7,
			requeue = $8, retry_count = $9, job_delay = $10, min_interval = $11,
			last_run_at = $12, next_run_at = $13,
			enabled = $14, updated_at = $15
		WHERE id = $1`,
		entry.ID.String(), entry.Name, entry.Schedule, entry.Target, entry.Data,
		entry.AssignedPrincipal, entry.Client,
		entry.Requeue, entry.RetryCount, entry.JobDelay.Nanoseconds(), entry.MinInterval.Nanoseconds(),
		entry.LastRunAt, entry.NextRunAt,
		entry.Enabled, now,
	)
	if err != nil {
		return fmt.Errorf("jobqueue/postgres: update cron entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return jobqueue.ErrCronNotFound
	}
	entry.UpdatedAt = now
	return nil
}

// DeleteCron removes a cron entry by ID.
func (s *Store) DeleteCron(ctx context.Context, entryID id.CronID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobqueue_cron_entries WHERE id = $1`, entryID.String())
	if err != nil {
		return fmt.Errorf("jobqueue/postgres: delete cron: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return jobqueue.ErrCronNotFound
	}
	return nil
}

// scanCron scans a single cron entry row.
func scanCron(row pgx.Row) (*cron.Entry, error) {
	var (
		e       cron.Entry
		idStr   string
		delayNs int64
		minNs   int64
		lockBy  *string
	)
	err := row.Scan(
		&idStr, &e.Name, &e.Schedule, &e.Target, &e.Data,
		&e.AssignedPrincipal, &e.Client,
		&e.Requeue, &e.RetryCount, &delayNs, &minNs,
		&e.LastRunAt, &e.NextRunAt, &lockBy, &e.LockedUntil,
		&e.Enabled, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseCronID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("jobqueue/postgres: parse cron id %q: %w", idStr, parseErr)
	}
	e.ID = parsedID
	e.JobDelay = time.Duration(delayNs)
	e.MinInterval = time.Duration(minNs)

	if lockBy != nil {
		e.LockedBy = *lockBy
	}

	return &e, nil
}
