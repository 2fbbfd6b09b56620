package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/cron"
	"github.com/xraph/jobqueue/id"
	"github.com/xraph/jobqueue/job"
)

// Ensure Store implements every subsystem store at compile time.
// We can't import store here (import cycle in tests), so we verify each one.
var (
	_ job.Store  = (*Store)(nil)
	_ cron.Store = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
// Records are copied on the way in and out.
type Store struct {
	mu sync.RWMutex

	jobs  map[id.JobID]*job.Job
	crons map[id.CronID]*cron.Entry

	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used to stamp UpdatedAt and lock
// expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Store) { m.now = now }
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	m := &Store{
		jobs:  make(map[id.JobID]*job.Job),
		crons: make(map[id.CronID]*cron.Entry),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ──────────────────────────────────────────────────
// Lifecycle: Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// CreateJob persists a new job.
func (m *Store) CreateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[j.ID]; exists {
		return jobqueue.ErrJobAlreadyExists
	}
	m.jobs[j.ID] = cloneJob(j)
	return nil
}

// GetJob retrieves a live job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID]
	if !ok || j.IsDeleted() {
		return nil, jobqueue.ErrJobNotFound
	}
	return cloneJob(j), nil
}

// GetJobWithDeleted retrieves a job by ID, soft-deleted or not.
func (m *Store) GetJobWithDeleted(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return nil, jobqueue.ErrJobNotFound
	}
	return cloneJob(j), nil
}

// UpdateJob persists changes to an existing job and stamps UpdatedAt on
// both the stored record and j.
func (m *Store) UpdateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[j.ID]; !ok {
		return jobqueue.ErrJobNotFound
	}
	j.UpdatedAt = m.now()
	m.jobs[j.ID] = cloneJob(j)
	return nil
}

// ClaimJob moves a QUEUED job to RUNNING under the write lock.
func (m *Store) ClaimJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok || j.IsDeleted() {
		return jobqueue.ErrJobNotFound
	}
	if j.Status != job.StatusQueued {
		return jobqueue.ErrClaimConflict
	}
	now := m.now()
	j.Status = job.StatusRunning
	j.HeartbeatAt = &now
	j.UpdatedAt = now
	return nil
}

// CancelJob soft-deletes a job while it is QUEUED.
func (m *Store) CancelJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok || j.IsDeleted() {
		return jobqueue.ErrJobNotFound
	}
	if j.Status != job.StatusQueued {
		return fmt.Errorf("%w: job %s is %s", jobqueue.ErrInvalidState, jobID, j.Status)
	}
	now := m.now()
	j.DeletedAt = &now
	return nil
}

// HeartbeatJob stamps HeartbeatAt on a RUNNING job.
func (m *Store) HeartbeatJob(_ context.Context, jobID id.JobID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok || j.IsDeleted() {
		return jobqueue.ErrJobNotFound
	}
	if j.Status != job.StatusRunning {
		return fmt.Errorf("%w: job %s is %s", jobqueue.ErrInvalidState, jobID, j.Status)
	}
	j.HeartbeatAt = &at
	return nil
}

// RequeueStaleJobs resets RUNNING jobs whose heartbeat is older than
// staleBefore.
func (m *Store) RequeueStaleJobs(_ context.Context, staleBefore, now time.Time) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var reset []*job.Job
	for _, j := range m.jobs {
		if !j.IsStale(staleBefore) {
			continue
		}
		j.ResetStale(now)
		j.UpdatedAt = now
		reset = append(reset, cloneJob(j))
	}
	sort.Slice(reset, func(i, k int) bool {
		return reset[i].CreatedAt.Before(reset[k].CreatedAt)
	})
	return reset, nil
}

// DueJobs returns QUEUED live jobs due at now, visible to client, ordered
// by ExecuteTime.
func (m *Store) DueJobs(_ context.Context, client string, now time.Time, limit int) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0)
	for _, j := range m.jobs {
		if j.Status != job.StatusQueued || j.IsDeleted() {
			continue
		}
		if j.ExecuteTime.After(now) || !j.Visible(client) {
			continue
		}
		result = append(result, cloneJob(j))
	}

	sort.Slice(result, func(i, k int) bool {
		if !result[i].ExecuteTime.Equal(result[k].ExecuteTime) {
			return result[i].ExecuteTime.Before(result[k].ExecuteTime)
		}
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ListJobs returns jobs matching opts ordered by creation time.
func (m *Store) ListJobs(_ context.Context, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.IsDeleted() && !opts.IncludeDeleted {
			continue
		}
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		if opts.Client != "" && j.Client != opts.Client {
			continue
		}
		if !opts.ModifiedBefore.IsZero() && !j.UpdatedAt.Before(opts.ModifiedBefore) {
			continue
		}
		result = append(result, cloneJob(j))
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// CountJobs returns the number of live jobs matching opts.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, j := range m.jobs {
		if j.IsDeleted() {
			continue
		}
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		if opts.Client != "" && j.Client != opts.Client {
			continue
		}
		count++
	}
	return count, nil
}

// SoftDeleteJob sets DeletedAt. UpdatedAt is left alone so retention ages
// stay intact.
func (m *Store) SoftDeleteJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return jobqueue.ErrJobNotFound
	}
	if j.DeletedAt == nil {
		now := m.now()
		j.DeletedAt = &now
	}
	return nil
}

// PurgeJob removes a job permanently.
func (m *Store) PurgeJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[jobID]; !ok {
		return jobqueue.ErrJobNotFound
	}
	delete(m.jobs, jobID)
	return nil
}

// PutJob stores j as-is, UpdatedAt included. Tests use it to seed aged
// records.
func (m *Store) PutJob(j *job.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID] = cloneJob(j)
}

// ──────────────────────────────────────────────────
// Cron Store
// ──────────────────────────────────────────────────

// RegisterCron persists a new cron entry. Returns ErrDuplicateCron if the
// name already exists.
func (m *Store) RegisterCron(_ context.Context, entry *cron.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.crons {
		if e.Name == entry.Name {
			return jobqueue.ErrDuplicateCron
		}
	}
	m.crons[entry.ID] = cloneEntry(entry)
	return nil
}

// GetCron retrieves a cron entry by ID.
func (m *Store) GetCron(_ context.Context, entryID id.CronID) (*cron.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.crons[entryID]
	if !ok {
		return nil, jobqueue.ErrCronNotFound
	}
	return cloneEntry(e), nil
}

// ListCrons returns all cron entries ordered by creation time.
func (m *Store) ListCrons(_ context.Context) ([]*cron.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*cron.Entry, 0, len(m.crons))
	for _, e := range m.crons {
		result = append(result, cloneEntry(e))
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	return result, nil
}

// AcquireCronLock attempts to lock a cron entry for workerID.
func (m *Store) AcquireCronLock(_ context.Context, entryID id.CronID, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.crons[entryID]
	if !ok {
		return false, jobqueue.ErrCronNotFound
	}

	now := m.now()
	if e.LockedBy != "" && e.LockedUntil != nil && e.LockedUntil.After(now) {
		if e.LockedBy != workerID.String() {
			return false, nil
		}
	}

	e.LockedBy = workerID.String()
	until := now.Add(ttl)
	e.LockedUntil = &until
	return true, nil
}

// ReleaseCronLock releases the lock if workerID holds it.
func (m *Store) ReleaseCronLock(_ context.Context, entryID id.CronID, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.crons[entryID]
	if !ok {
		return jobqueue.ErrCronNotFound
	}
	if e.LockedBy != workerID.String() {
		return nil
	}
	e.LockedBy = ""
	e.LockedUntil = nil
	return nil
}

// UpdateCronLastRun records when a job of the entry last ran.
func (m *Store) UpdateCronLastRun(_ context.Context, entryID id.CronID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.crons[entryID]
	if !ok {
		return jobqueue.ErrCronNotFound
	}
	e.LastRunAt = &at
	e.UpdatedAt = m.now()
	return nil
}

// UpdateCronEntry updates a cron entry. Lock fields are kept from the
// stored record.
func (m *Store) UpdateCronEntry(_ context.Context, entry *cron.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.crons[entry.ID]
	if !ok {
		return jobqueue.ErrCronNotFound
	}
	entry.UpdatedAt = m.now()
	cp := cloneEntry(entry)
	cp.LockedBy = cur.LockedBy
	cp.LockedUntil = cur.LockedUntil
	m.crons[entry.ID] = cp
	return nil
}

// DeleteCron removes a cron entry by ID.
func (m *Store) DeleteCron(_ context.Context, entryID id.CronID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.crons[entryID]; !ok {
		return jobqueue.ErrCronNotFound
	}
	delete(m.crons, entryID)
	return nil
}

func cloneJob(j *job.Job) *job.Job {
	cp := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.HeartbeatAt != nil {
		t := *j.HeartbeatAt
		cp.HeartbeatAt = &t
	}
	if j.DeletedAt != nil {
		t := *j.DeletedAt
		cp.DeletedAt = &t
	}
	return &cp
}

func cloneEntry(e *cron.Entry) *cron.Entry {
	cp := *e
	return &cp
}
