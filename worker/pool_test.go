package worker_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/id"
	"github.com/xraph/jobqueue/job"
	"github.com/xraph/jobqueue/store/memory"
	"github.com/xraph/jobqueue/worker"
)

// countingRunner marks each job done and records which jobs it saw.
type countingRunner struct {
	store *memory.Store
	mu    sync.Mutex
	seen  map[id.JobID]int
}

func newCountingRunner(s *memory.Store) *countingRunner {
	return &countingRunner{store: s, seen: make(map[id.JobID]int)}
}

func (r *countingRunner) Run(ctx context.Context, j *job.Job) (bool, error) {
	r.mu.Lock()
	r.seen[j.ID]++
	r.mu.Unlock()
	j.Finish(job.ResolutionSuccess)
	return true, r.store.UpdateJob(ctx, j)
}

func (r *countingRunner) count(jobID id.JobID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen[jobID]
}

func (r *countingRunner) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.seen {
		n += c
	}
	return n
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func enqueue(t *testing.T, s *memory.Store, opts ...job.Option) *job.Job {
	t.Helper()
	j := job.New("pooled", "function::pooled", opts...)
	if err := s.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return j
}

func TestPool_StartStop(t *testing.T) {
	s := memory.New()
	pool := worker.NewPool(s, newCountingRunner(s), discardLogger(),
		worker.WithPoolConcurrency(2),
		worker.WithPollInterval(20*time.Millisecond),
	)

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	// Double start should be no-op.
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("unexpected double-start error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}
	// Double stop should be no-op.
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("unexpected double-stop error: %v", err)
	}
}

func TestPool_ProcessesEachJobOnce(t *testing.T) {
	s := memory.New()
	runner := newCountingRunner(s)
	pool := worker.NewPool(s, runner, discardLogger(),
		worker.WithPoolConcurrency(4),
		worker.WithPollInterval(5*time.Millisecond),
	)

	const n = 20
	jobs := make([]*job.Job, n)
	for i := range jobs {
		jobs[i] = enqueue(t, s)
	}

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = pool.Stop(ctx)
	}()

	deadline := time.After(5 * time.Second)
	for runner.total() < n {
		select {
		case <-deadline:
			t.Fatalf("timed out: processed %d of %d", runner.total(), n)
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	for _, j := range jobs {
		if c := runner.count(j.ID); c != 1 {
			t.Errorf("job %s ran %d times, want 1", j.ID, c)
		}
	}
}

func TestPool_RunOnceHonoursClientAndTime(t *testing.T) {
	s := memory.New()
	runner := newCountingRunner(s)
	pool := worker.NewPool(s, runner, discardLogger(), worker.WithPoolClient("A"))

	untagged := enqueue(t, s)
	mine := enqueue(t, s, job.WithClient("A"))
	theirs := enqueue(t, s, job.WithClient("B"))
	future := enqueue(t, s, job.WithExecuteTime(time.Now().UTC().Add(time.Hour)))

	ran, err := pool.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if ran != 2 {
		t.Fatalf("RunOnce ran %d jobs, want 2", ran)
	}
	for _, j := range []*job.Job{untagged, mine} {
		if runner.count(j.ID) != 1 {
			t.Errorf("job %s not run", j.ID)
		}
	}
	for _, j := range []*job.Job{theirs, future} {
		if runner.count(j.ID) != 0 {
			t.Errorf("job %s run, want skipped", j.ID)
		}
	}
}

// racingStore claims every job on behalf of another worker right before
// the pool tries to.
type racingStore struct {
	*memory.Store
}

func (r racingStore) ClaimJob(ctx context.Context, jobID id.JobID) error {
	_ = r.Store.ClaimJob(ctx, jobID)
	return r.Store.ClaimJob(ctx, jobID)
}

func TestPool_SkipsClaimConflicts(t *testing.T) {
	s := memory.New()
	runner := newCountingRunner(s)
	pool := worker.NewPool(racingStore{s}, runner, discardLogger())

	j := enqueue(t, s)

	ran, err := pool.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if ran != 0 || runner.count(j.ID) != 0 {
		t.Fatalf("ran %d (job count %d), want the contested job skipped", ran, runner.count(j.ID))
	}

	if err := s.ClaimJob(context.Background(), j.ID); !errors.Is(err, jobqueue.ErrClaimConflict) {
		t.Fatalf("job should already be claimed, got %v", err)
	}
}

type denyLimiter struct {
	acquired atomic.Int32
	released atomic.Int32
	allow    bool
}

func (d *denyLimiter) Acquire(_, _ string) bool {
	if !d.allow {
		return false
	}
	d.acquired.Add(1)
	return true
}

func (d *denyLimiter) Release(_, _ string) { d.released.Add(1) }

func TestPool_Limiter(t *testing.T) {
	tests := []struct {
		name  string
		allow bool
		want  int
	}{
		{"denied", false, 0},
		{"allowed", true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := memory.New()
			runner := newCountingRunner(s)
			lim := &denyLimiter{allow: tt.allow}
			pool := worker.NewPool(s, runner, discardLogger(), worker.WithLimiter(lim))

			j := enqueue(t, s)

			ran, err := pool.RunOnce(context.Background())
			if err != nil {
				t.Fatalf("RunOnce: %v", err)
			}
			if ran != tt.want {
				t.Fatalf("ran = %d, want %d", ran, tt.want)
			}
			if lim.acquired.Load() != lim.released.Load() {
				t.Errorf("acquired %d, released %d", lim.acquired.Load(), lim.released.Load())
			}

			got, _ := s.GetJob(context.Background(), j.ID)
			if !tt.allow && got.Status != job.StatusQueued {
				t.Errorf("throttled job status = %q, want QUEUED", got.Status)
			}
		})
	}
}

// gatedRunner blocks until release is closed, then records the job as
// succeeded. It reports whether its context was cancelled while waiting.
type gatedRunner struct {
	store     *memory.Store
	started   chan struct{}
	release   chan struct{}
	cancelled atomic.Bool
}

func (g *gatedRunner) Run(ctx context.Context, j *job.Job) (bool, error) {
	close(g.started)
	select {
	case <-g.release:
	case <-ctx.Done():
		g.cancelled.Store(true)
		<-g.release
	}
	j.Finish(job.ResolutionSuccess)
	return true, g.store.UpdateJob(ctx, j)
}

func TestPool_StopDeadlineLeavesTargetsRunning(t *testing.T) {
	s := memory.New()
	runner := &gatedRunner{store: s, started: make(chan struct{}), release: make(chan struct{})}
	pool := worker.NewPool(s, runner, discardLogger(),
		worker.WithPoolConcurrency(1),
		worker.WithPollInterval(5*time.Millisecond),
	)
	j := enqueue(t, s)

	if err := pool.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	select {
	case <-runner.started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := pool.Stop(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Stop() = %v, want deadline exceeded", err)
	}

	got, err := s.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != job.StatusRunning {
		t.Fatalf("status after Stop = %q, want RUNNING", got.Status)
	}

	close(runner.release)

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err = s.GetJob(context.Background(), j.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status == job.StatusDone {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("status = %q, want DONE once the target returns", got.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if runner.cancelled.Load() {
		t.Error("target context was cancelled by Stop")
	}
}

func TestPool_ReapStaleJobs(t *testing.T) {
	claimedAt := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	s := memory.New(memory.WithClock(func() time.Time { return claimedAt }))

	abandoned := enqueue(t, s)
	fresh := enqueue(t, s)
	waiting := enqueue(t, s)
	ctx := context.Background()
	for _, j := range []*job.Job{abandoned, fresh} {
		if err := s.ClaimJob(ctx, j.ID); err != nil {
			t.Fatal(err)
		}
	}

	now := claimedAt.Add(10 * time.Minute)
	if err := s.HeartbeatJob(ctx, fresh.ID, now.Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}

	pool := worker.NewPool(s, newCountingRunner(s), discardLogger(),
		worker.WithStaleJobThreshold(5*time.Minute),
		worker.WithPoolClock(func() time.Time { return now }),
	)

	n, err := pool.ReapStaleJobs(ctx)
	if err != nil {
		t.Fatalf("ReapStaleJobs: %v", err)
	}
	if n != 1 {
		t.Fatalf("requeued %d jobs, want 1", n)
	}

	got, _ := s.GetJob(ctx, abandoned.ID)
	if got.Status != job.StatusQueued || got.StartedAt != nil || got.HeartbeatAt != nil {
		t.Fatalf("abandoned job = %q started=%v heartbeat=%v, want QUEUED and cleared",
			got.Status, got.StartedAt, got.HeartbeatAt)
	}
	if !got.ExecuteTime.Equal(now) {
		t.Errorf("ExecuteTime = %v, want %v", got.ExecuteTime, now)
	}

	if got, _ := s.GetJob(ctx, fresh.ID); got.Status != job.StatusRunning {
		t.Errorf("fresh job status = %q, want RUNNING", got.Status)
	}
	if got, _ := s.GetJob(ctx, waiting.ID); got.Status != job.StatusQueued {
		t.Errorf("queued job status = %q, want QUEUED", got.Status)
	}

	// The requeued job is picked up again by the next poll.
	ran, err := pool.RunOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ran != 2 {
		t.Fatalf("RunOnce ran %d, want the requeued and the waiting job", ran)
	}
}

func TestPool_ReapDisabledWithoutThreshold(t *testing.T) {
	s := memory.New()
	j := enqueue(t, s)
	if err := s.ClaimJob(context.Background(), j.ID); err != nil {
		t.Fatal(err)
	}

	pool := worker.NewPool(s, newCountingRunner(s), discardLogger(),
		worker.WithPoolClock(func() time.Time { return time.Now().UTC().Add(time.Hour) }),
	)
	n, err := pool.ReapStaleJobs(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("ReapStaleJobs() = %d, %v; want 0, nil", n, err)
	}
}
