package cron_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/jobqueue/cron"
	"github.com/xraph/jobqueue/id"
	"github.com/xraph/jobqueue/job"
	"github.com/xraph/jobqueue/store/memory"
)

var base = time.Date(2030, 3, 1, 8, 0, 0, 0, time.UTC)

// stubEmitter records EmitCronFired calls.
type stubEmitter struct {
	mu    sync.Mutex
	names []string
}

func (e *stubEmitter) EmitCronFired(_ context.Context, entryName string, _ id.JobID) {
	e.mu.Lock()
	e.names = append(e.names, entryName)
	e.mu.Unlock()
}

// createSpy persists the jobs it is asked to create.
type createSpy struct {
	store *memory.Store
	mu    sync.Mutex
	jobs  []*job.Job
	fail  bool
}

func (c *createSpy) Fn() cron.CreateFunc {
	return func(ctx context.Context, name, target string, opts ...job.Option) (*job.Job, error) {
		if c.fail {
			return nil, errors.New("store down")
		}
		j := job.New(name, target, opts...)
		if err := c.store.CreateJob(ctx, j); err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.jobs = append(c.jobs, j)
		c.mu.Unlock()
		return j, nil
	}
}

func newScheduler(s *memory.Store, spy *createSpy, em *stubEmitter, now *time.Time) *cron.Scheduler {
	return cron.NewScheduler(s, spy.Fn(), em, id.NewWorkerID(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		cron.WithClock(func() time.Time { return *now }),
	)
}

func register(t *testing.T, s *memory.Store, name, schedule string, opts ...cron.EntryOption) *cron.Entry {
	t.Helper()
	e, err := cron.NewEntry(name, schedule, "function::"+name, base, opts...)
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	if err := s.RegisterCron(context.Background(), e); err != nil {
		t.Fatalf("RegisterCron: %v", err)
	}
	return e
}

func TestNewEntry_InvalidSchedule(t *testing.T) {
	if _, err := cron.NewEntry("bad", "not a schedule", "function::x", base); err == nil {
		t.Fatal("NewEntry accepted an invalid schedule")
	}
}

func TestNewEntry_NextRun(t *testing.T) {
	e, err := cron.NewEntry("hourly", "@every 1h", "function::x", base)
	if err != nil {
		t.Fatal(err)
	}
	if want := base.Add(time.Hour); e.NextRunAt == nil || !e.NextRunAt.Equal(want) {
		t.Fatalf("NextRunAt = %v, want %v", e.NextRunAt, want)
	}
}

func TestTick_FiresDueEntries(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	spy := &createSpy{store: s}
	em := &stubEmitter{}
	now := base

	entry := register(t, s, "hourly", "@every 1h",
		cron.WithData("report=daily"),
		cron.WithPrincipal("user-1"),
		cron.WithClient("A"),
		cron.WithRequeue(2),
		cron.WithMinInterval(242*time.Second),
	)
	sched := newScheduler(s, spy, em, &now)

	// Not yet due.
	if n, err := sched.Tick(ctx); err != nil || n != 0 {
		t.Fatalf("early Tick() = %d, %v; want 0, nil", n, err)
	}

	now = base.Add(time.Hour)
	n, err := sched.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if n != 1 || len(spy.jobs) != 1 {
		t.Fatalf("Tick() fired %d (created %d), want 1", n, len(spy.jobs))
	}

	j := spy.jobs[0]
	if j.Target != "function::hourly" || j.Data != "report=daily" {
		t.Errorf("job = %q/%q", j.Target, j.Data)
	}
	if j.AssignedPrincipal != "user-1" || j.Client != "A" {
		t.Errorf("principal/client = %q/%q", j.AssignedPrincipal, j.Client)
	}
	if !j.Requeue || j.RetryCount != 2 || j.MinInterval != 242*time.Second {
		t.Errorf("retry = %v/%d/%v", j.Requeue, j.RetryCount, j.MinInterval)
	}
	if j.SchedulerID != entry.ID {
		t.Errorf("SchedulerID = %q, want %q", j.SchedulerID, entry.ID)
	}
	if !j.ExecuteTime.Equal(now) {
		t.Errorf("ExecuteTime = %v, want %v", j.ExecuteTime, now)
	}

	got, err := s.GetCron(ctx, entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if want := now.Add(time.Hour); got.NextRunAt == nil || !got.NextRunAt.Equal(want) {
		t.Errorf("NextRunAt = %v, want %v", got.NextRunAt, want)
	}
	if got.LockedBy != "" {
		t.Errorf("lock not released: LockedBy = %q", got.LockedBy)
	}
	if len(em.names) != 1 || em.names[0] != "hourly" {
		t.Errorf("emitted = %v, want [hourly]", em.names)
	}

	// Same instant again: NextRunAt moved on.
	if n, _ := sched.Tick(ctx); n != 0 {
		t.Errorf("repeat Tick() fired %d, want 0", n)
	}
}

func TestTick_SkipsDisabled(t *testing.T) {
	s := memory.New()
	spy := &createSpy{store: s}
	now := base.Add(24 * time.Hour)

	register(t, s, "off", "@every 1m", cron.Disabled())
	sched := newScheduler(s, spy, &stubEmitter{}, &now)

	if n, err := sched.Tick(context.Background()); err != nil || n != 0 {
		t.Fatalf("Tick() = %d, %v; want 0, nil", n, err)
	}
}

func TestTick_SkipsLockedEntries(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	spy := &createSpy{store: s}
	now := base.Add(time.Hour)

	entry := register(t, s, "contested", "@every 1m")
	if ok, err := s.AcquireCronLock(ctx, entry.ID, id.NewWorkerID(), time.Hour); err != nil || !ok {
		t.Fatalf("AcquireCronLock = %v, %v", ok, err)
	}

	sched := newScheduler(s, spy, &stubEmitter{}, &now)
	if n, _ := sched.Tick(ctx); n != 0 {
		t.Fatalf("Tick() fired %d while another worker held the lock", n)
	}
}

// snapshotStore serves ListCrons from a list read before another
// scheduler fired the entries.
type snapshotStore struct {
	*memory.Store
	listed []*cron.Entry
}

func (s *snapshotStore) ListCrons(context.Context) ([]*cron.Entry, error) {
	return s.listed, nil
}

func TestTick_RechecksEntryUnderLock(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	spy := &createSpy{store: s}
	now := base.Add(time.Hour)

	fired := register(t, s, "fired", "@every 1h")
	paused := register(t, s, "paused", "@every 1h")
	listed, err := s.ListCrons(ctx)
	if err != nil {
		t.Fatal(err)
	}

	// A peer fires one entry and disables the other after our list.
	later := now.Add(time.Hour)
	fired.NextRunAt = &later
	if err := s.UpdateCronEntry(ctx, fired); err != nil {
		t.Fatal(err)
	}
	paused.Enabled = false
	if err := s.UpdateCronEntry(ctx, paused); err != nil {
		t.Fatal(err)
	}

	sched := cron.NewScheduler(&snapshotStore{Store: s, listed: listed}, spy.Fn(), &stubEmitter{}, id.NewWorkerID(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		cron.WithClock(func() time.Time { return now }),
	)
	n, err := sched.Tick(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 || len(spy.jobs) != 0 {
		t.Fatalf("Tick() fired %d (created %d) from a stale list, want 0", n, len(spy.jobs))
	}

	for _, e := range []*cron.Entry{fired, paused} {
		got, _ := s.GetCron(ctx, e.ID)
		if got.LockedBy != "" {
			t.Errorf("%s: lock not released after skip", e.Name)
		}
	}
	if got, _ := s.GetCron(ctx, fired.ID); !got.NextRunAt.Equal(later) {
		t.Errorf("NextRunAt = %v, want %v", got.NextRunAt, later)
	}
}

func TestTick_CreateFailureKeepsNextRun(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	spy := &createSpy{store: s, fail: true}
	now := base.Add(time.Hour)

	entry := register(t, s, "flaky", "@every 1h")
	sched := newScheduler(s, spy, &stubEmitter{}, &now)

	if n, _ := sched.Tick(ctx); n != 0 {
		t.Fatalf("Tick() fired %d, want 0", n)
	}
	got, _ := s.GetCron(ctx, entry.ID)
	if !got.NextRunAt.Equal(*entry.NextRunAt) {
		t.Errorf("NextRunAt moved to %v after failed create", got.NextRunAt)
	}
	if got.LockedBy != "" {
		t.Errorf("lock not released after failure")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s := memory.New()
	now := base
	sched := newScheduler(s, &createSpy{store: s}, &stubEmitter{}, &now)

	if err := sched.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := sched.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := sched.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := sched.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
}
