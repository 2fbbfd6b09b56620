package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/jobqueue/id"
	"github.com/xraph/jobqueue/job"
)

// CreateFunc is the callback the scheduler uses to create jobs.
// The engine provides the implementation.
type CreateFunc func(ctx context.Context, name, target string, opts ...job.Option) (*job.Job, error)

// Emitter emits cron lifecycle events.
// ext.Registry satisfies this interface via EmitCronFired.
type Emitter interface {
	EmitCronFired(ctx context.Context, entryName string, jobID id.JobID)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithLockTTL sets the TTL for per-entry locks.
func WithLockTTL(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.lockTTL = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Scheduler fires cron entries on a tick loop.
type Scheduler struct {
	store    Store
	create   CreateFunc
	emitter  Emitter
	workerID id.WorkerID
	logger   *slog.Logger
	now      func() time.Time

	tickInterval time.Duration
	lockTTL      time.Duration

	parsedMu sync.RWMutex
	parsed   map[string]cronlib.Schedule

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	store Store,
	create CreateFunc,
	emitter Emitter,
	workerID id.WorkerID,
	logger *slog.Logger,
	opts ...SchedulerOption,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		store:        store,
		create:       create,
		emitter:      emitter,
		workerID:     workerID,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
		tickInterval: time.Second,
		lockTTL:      30 * time.Second,
		parsed:       make(map[string]cronlib.Schedule),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the tick goroutine.
func (s *Scheduler) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.tickLoop()
	s.logger.Info("cron scheduler started",
		slog.String("worker_id", s.workerID.String()),
		slog.Duration("tick_interval", s.tickInterval),
	)
	return nil
}

// Stop signals the scheduler to stop and waits for the tick goroutine.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("cron scheduler stopped")
	return nil
}

func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := s.Tick(context.Background()); err != nil {
				s.logger.Error("cron tick error", slog.String("error", err.Error()))
			}
		}
	}
}

// Tick fires every enabled entry whose NextRunAt has passed and returns
// how many jobs were created.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	entries, err := s.store.ListCrons(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	fired := 0
	for _, entry := range entries {
		if !entry.Enabled {
			continue
		}
		if entry.NextRunAt == nil || entry.NextRunAt.After(now) {
			continue
		}
		if s.fireEntry(ctx, entry, now) {
			fired++
		}
	}
	return fired, nil
}

func (s *Scheduler) fireEntry(ctx context.Context, entry *Entry, now time.Time) bool {
	acquired, err := s.store.AcquireCronLock(ctx, entry.ID, s.workerID, s.lockTTL)
	if err != nil {
		s.logger.Error("acquire cron lock error",
			slog.String("cron_id", entry.ID.String()),
			slog.String("error", err.Error()),
		)
		return false
	}
	if !acquired {
		return false
	}
	defer s.release(ctx, entry)

	// Another scheduler may have fired the entry between our list and the
	// lock; only the stored NextRunAt is authoritative.
	entry, err = s.store.GetCron(ctx, entry.ID)
	if err != nil {
		s.logger.Error("reload cron entry error", slog.String("error", err.Error()))
		return false
	}
	if !entry.Enabled || entry.NextRunAt == nil || entry.NextRunAt.After(now) {
		return false
	}

	j, err := s.create(ctx, entry.Name, entry.Target, entry.JobOptions(now)...)
	if err != nil {
		s.logger.Error("cron create job error",
			slog.String("cron_name", entry.Name),
			slog.String("target", entry.Target),
			slog.String("error", err.Error()),
		)
		return false
	}

	sched, err := s.schedule(entry.Schedule)
	if err != nil {
		s.logger.Error("parse cron schedule error",
			slog.String("cron_name", entry.Name),
			slog.String("schedule", entry.Schedule),
			slog.String("error", err.Error()),
		)
	} else {
		next := sched.Next(now)
		entry.NextRunAt = &next
		if err := s.store.UpdateCronEntry(ctx, entry); err != nil {
			s.logger.Error("update cron next run error",
				slog.String("cron_id", entry.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.emitter != nil {
		s.emitter.EmitCronFired(ctx, entry.Name, j.ID)
	}

	s.logger.Info("cron fired",
		slog.String("cron_name", entry.Name),
		slog.String("target", entry.Target),
		slog.String("job_id", j.ID.String()),
	)
	return true
}

func (s *Scheduler) release(ctx context.Context, entry *Entry) {
	if err := s.store.ReleaseCronLock(ctx, entry.ID, s.workerID); err != nil {
		s.logger.Error("release cron lock error",
			slog.String("cron_id", entry.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// schedule caches parsed cron expressions.
func (s *Scheduler) schedule(expr string) (cronlib.Schedule, error) {
	s.parsedMu.RLock()
	sched, ok := s.parsed[expr]
	s.parsedMu.RUnlock()
	if ok {
		return sched, nil
	}

	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}

	s.parsedMu.Lock()
	s.parsed[expr] = sched
	s.parsedMu.Unlock()
	return sched, nil
}
