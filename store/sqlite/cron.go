package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/cron"
	"github.com/xraph/jobqueue/id"
)

// RegisterCron persists a new cron entry. Returns ErrDuplicateCron if the
// name already exists.
func (s *Store) RegisterCron(ctx context.Context, entry *cron.Entry) error {
	m := toCronModel(entry)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return jobqueue.ErrDuplicateCron
		}
		return fmt.Errorf("jobqueue/sqlite: register cron: %w", err)
	}
	return nil
}

// GetCron retrieves a cron entry by ID.
func (s *Store) GetCron(ctx context.Context, entryID id.CronID) (*cron.Entry, error) {
	m := new(cronEntryModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", entryID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, jobqueue.ErrCronNotFound
		}
		return nil, fmt.Errorf("jobqueue/sqlite: get cron: %w", err)
	}
	return fromCronModel(m)
}

// ListCrons returns all cron entries.
func (s *Store) ListCrons(ctx context.Context) ([]*cron.Entry, error) {
	var models []cronEntryModel
	err := s.db.NewSelect().Model(&models).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("jobqueue/sqlite: list crons: %w", err)
	}

	entries := make([]*cron.Entry, 0, len(models))
	for i := range models {
		e, convErr := fromCronModel(&models[i])
		if convErr != nil {
			return nil, convErr
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// AcquireCronLock attempts to lock a cron entry for workerID. It succeeds
// when the entry is unlocked, the lock expired, or workerID already holds it.
func (s *Store) AcquireCronLock(ctx context.Context, entryID id.CronID, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	now := s.now().UTC()
	wID := workerID.String()

	res, err := s.db.NewUpdate().
		TableExpr("jobqueue_cron_entries").
		Set("locked_by = ?", wID).
		Set("locked_until = ?", now.Add(ttl)).
		Where("id = ?", entryID.String()).
		Where("(locked_by IS NULL OR locked_until < ? OR locked_by = ?)", now, wID).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("jobqueue/sqlite: acquire cron lock: %w", err)
	}
	if affected(res) == 1 {
		return true, nil
	}

	exists, err := s.db.NewSelect().
		Model((*cronEntryModel)(nil)).
		Where("id = ?", entryID.String()).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("jobqueue/sqlite: check cron exists: %w", err)
	}
	if !exists {
		return false, jobqueue.ErrCronNotFound
	}
	return false, nil
}

// ReleaseCronLock releases the lock if workerID holds it.
func (s *Store) ReleaseCronLock(ctx context.Context, entryID id.CronID, workerID id.WorkerID) error {
	_, err := s.db.NewUpdate().
		TableExpr("jobqueue_cron_entries").
		Set("locked_by = NULL").
		Set("locked_until = NULL").
		Where("id = ?", entryID.String()).
		Where("locked_by = ?", workerID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("jobqueue/sqlite: release cron lock: %w", err)
	}
	return nil
}

// UpdateCronLastRun records when a job of the entry last ran.
func (s *Store) UpdateCronLastRun(ctx context.Context, entryID id.CronID, at time.Time) error {
	res, err := s.db.NewUpdate().
		TableExpr("jobqueue_cron_entries").
		Set("last_run_at = ?", at.UTC()).
		Set("updated_at = ?", s.now().UTC()).
		Where("id = ?", entryID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("jobqueue/sqlite: update cron last run: %w", err)
	}
	if affected(res) == 0 {
		return jobqueue.ErrCronNotFound
	}
	return nil
}

// UpdateCronEntry updates a cron entry. The lock columns are not touched.
func (s *Store) UpdateCronEntry(ctx context.Context, entry *cron.Entry) error {
	now := s.now().UTC()
	m := toCronModel(entry)
	m.UpdatedAt = now

	res, err := s.db.NewUpdate().Model(m).
		ExcludeColumn("locked_by", "locked_until", "created_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return jobqueue.ErrDuplicateCron
		}
		return fmt.Errorf("jobqueue/sqlite: update cron entry: %w", err)
	}
	if affected(res) == 0 {
		return jobqueue.ErrCronNotFound
	}
	entry.UpdatedAt = now
	return nil
}

// DeleteCron removes a cron entry by ID.
func (s *Store) DeleteCron(ctx context.Context, entryID id.CronID) error {
	res, err := s.db.NewDelete().
		TableExpr("jobqueue_cron_entries").
		Where("id = ?", entryID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("jobqueue/sqlite: delete cron: %w", err)
	}
	if affected(res) == 0 {
		return jobqueue.ErrCronNotFound
	}
	return nil
}
