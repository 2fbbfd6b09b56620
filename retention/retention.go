// Package retention ages out finished jobs. DONE jobs untouched for longer
// than the soft-delete age are hidden; those older than the purge age are
// removed. Jobs in any other status are never touched.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/job"
	"github.com/xraph/jobqueue/target"
)

// TargetName is the function name the sweep is registered under.
const TargetName = "cleanJobQueue"

const (
	// DefaultSoftDeleteAfter is the age at which DONE jobs are soft-deleted.
	DefaultSoftDeleteAfter = 10 * 24 * time.Hour
	// DefaultPurgeAfter is the age at which DONE jobs are removed.
	DefaultPurgeAfter = 100 * 24 * time.Hour
)

// Emitter receives sweep results. ext.Registry satisfies it.
type Emitter interface {
	EmitJobsSwept(ctx context.Context, softDeleted, purged int)
}

// Result counts what a sweep changed.
type Result struct {
	SoftDeleted int `json:"soft_deleted"`
	Purged      int `json:"purged"`
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithAges overrides the soft-delete and purge ages. Non-positive values
// keep the defaults.
func WithAges(softDeleteAfter, purgeAfter time.Duration) Option {
	return func(s *Sweeper) {
		if softDeleteAfter > 0 {
			s.softDeleteAfter = softDeleteAfter
		}
		if purgeAfter > 0 {
			s.purgeAfter = purgeAfter
		}
	}
}

// WithEmitter reports every sweep.
func WithEmitter(e Emitter) Option {
	return func(s *Sweeper) { s.emitter = e }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// Sweeper applies the retention policy to a job store.
type Sweeper struct {
	store           job.Store
	softDeleteAfter time.Duration
	purgeAfter      time.Duration
	emitter         Emitter
	now             func() time.Time
	logger          *slog.Logger
}

// New creates a Sweeper.
func New(store job.Store, logger *slog.Logger, opts ...Option) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sweeper{
		store:           store,
		softDeleteAfter: DefaultSoftDeleteAfter,
		purgeAfter:      DefaultPurgeAfter,
		now:             func() time.Time { return time.Now().UTC() },
		logger:          logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep purges DONE jobs older than the purge age, deleted or not, then
// soft-deletes the remaining live DONE jobs older than the soft-delete age.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	var res Result
	now := s.now()

	stale, err := s.store.ListJobs(ctx, job.ListOpts{
		Status:         job.StatusDone,
		ModifiedBefore: now.Add(-s.purgeAfter),
		IncludeDeleted: true,
	})
	if err != nil {
		return res, fmt.Errorf("retention: list purgeable jobs: %w", err)
	}
	for _, j := range stale {
		if err := s.store.PurgeJob(ctx, j.ID); err != nil && !errors.Is(err, jobqueue.ErrJobNotFound) {
			return res, fmt.Errorf("retention: purge job %s: %w", j.ID, err)
		}
		res.Purged++
	}

	aged, err := s.store.ListJobs(ctx, job.ListOpts{
		Status:         job.StatusDone,
		ModifiedBefore: now.Add(-s.softDeleteAfter),
	})
	if err != nil {
		return res, fmt.Errorf("retention: list expired jobs: %w", err)
	}
	for _, j := range aged {
		if err := s.store.SoftDeleteJob(ctx, j.ID); err != nil && !errors.Is(err, jobqueue.ErrJobNotFound) {
			return res, fmt.Errorf("retention: soft-delete job %s: %w", j.ID, err)
		}
		res.SoftDeleted++
	}

	if s.emitter != nil {
		s.emitter.EmitJobsSwept(ctx, res.SoftDeleted, res.Purged)
	}
	s.logger.Info("retention sweep finished",
		slog.Int("soft_deleted", res.SoftDeleted),
		slog.Int("purged", res.Purged),
	)
	return res, nil
}

// Target exposes the sweep as a function target. It reports the counts
// through the invocation's Handle.
func (s *Sweeper) Target() target.Func {
	return func(ctx context.Context, inv *target.Invocation) (bool, error) {
		res, err := s.Sweep(ctx)
		if err != nil {
			return false, err
		}
		inv.Handle.Succeed(fmt.Sprintf("soft-deleted %d, purged %d", res.SoftDeleted, res.Purged))
		return true, nil
	}
}
