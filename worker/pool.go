package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/id"
	"github.com/xraph/jobqueue/job"
)

// Runner executes one claimed job. *Executor implements it.
type Runner interface {
	Run(ctx context.Context, j *job.Job) (bool, error)
}

// Limiter gates due jobs by target and client before they are claimed.
// The pool calls Release once a job it was allowed to run has finished.
type Limiter interface {
	Acquire(target, client string) bool
	Release(target, client string)
}

var _ Runner = (*Executor)(nil)

// Pool manages a set of concurrent worker goroutines that poll the store
// for due jobs, claim them and hand them to a Runner.
type Pool struct {
	store        job.Store
	runner       Runner
	client       string
	concurrency  int
	batchSize    int
	pollInterval time.Duration
	workerID     id.WorkerID
	limiter      Limiter
	now          func() time.Time
	logger       *slog.Logger

	staleJobThreshold time.Duration

	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	activeJobs map[id.JobID]struct{}
	activeMu   sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of concurrent worker goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithPoolClient tags the pool. Only jobs without a client or with this
// exact client are picked up.
func WithPoolClient(client string) PoolOption {
	return func(p *Pool) { p.client = client }
}

// WithBatchSize sets how many due jobs one poll reads.
func WithBatchSize(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithPollInterval sets how long an idle worker waits before polling again.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

// WithLimiter sets the per-target / per-client admission gate.
func WithLimiter(l Limiter) PoolOption {
	return func(p *Pool) { p.limiter = l }
}

// WithStaleJobThreshold enables the reaper: RUNNING jobs whose heartbeat
// is older than d are put back in the queue. Zero disables it.
func WithStaleJobThreshold(d time.Duration) PoolOption {
	return func(p *Pool) { p.staleJobThreshold = d }
}

// WithPoolClock overrides the time source used to select due jobs.
func WithPoolClock(now func() time.Time) PoolOption {
	return func(p *Pool) { p.now = now }
}

// NewPool creates a worker pool.
func NewPool(store job.Store, runner Runner, logger *slog.Logger, opts ...PoolOption) *Pool {
	p := &Pool{
		store:        store,
		runner:       runner,
		concurrency:  4,
		batchSize:    10,
		pollInterval: time.Second,
		workerID:     id.NewWorkerID(),
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger,
		stopCh:       make(chan struct{}),
		activeJobs:   make(map[id.JobID]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's unique worker identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Client returns the pool's client tag.
func (p *Pool) Client() string { return p.client }

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("concurrency", p.concurrency),
		slog.String("client", p.client),
	)

	for range p.concurrency {
		p.wg.Add(1)
		go p.loop()
	}

	if p.staleJobThreshold > 0 {
		p.wg.Add(1)
		go p.reaperLoop()
	}
	return nil
}

// Stop signals all workers to stop and waits for them to finish. Running
// targets are never cancelled: if ctx ends first, Stop returns an error
// and the jobs still in flight finish in the background. A job abandoned
// by a dead process is recovered by the reaper once its heartbeat goes
// stale.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))
	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
		return nil
	case <-ctx.Done():
		inflight := p.activeIDs()
		for _, jobID := range inflight {
			p.logger.Warn("job still running at shutdown", slog.String("job_id", jobID.String()))
		}
		p.logger.Warn("worker pool shutdown timed out", slog.Int("in_flight", len(inflight)))
		return fmt.Errorf("worker: %d jobs still running: %w", len(inflight), ctx.Err())
	}
}

// ReapStaleJobs puts RUNNING jobs whose heartbeat is older than the stale
// threshold back in the queue and returns how many it moved. It is a no-op
// when no threshold is configured.
func (p *Pool) ReapStaleJobs(ctx context.Context) (int, error) {
	if p.staleJobThreshold <= 0 {
		return 0, nil
	}

	now := p.now()
	stale, err := p.store.RequeueStaleJobs(ctx, now.Add(-p.staleJobThreshold), now)
	if err != nil {
		return 0, err
	}

	for _, j := range stale {
		p.logger.Warn("requeued stale job",
			slog.String("job_id", j.ID.String()),
			slog.String("job_name", j.Name),
		)
	}
	return len(stale), nil
}

// RunOnce reads one batch of due jobs and runs every job it manages to
// claim, one after another. It returns how many jobs were run.
func (p *Pool) RunOnce(ctx context.Context) (int, error) {
	due, err := p.store.DueJobs(ctx, p.client, p.now(), p.batchSize)
	if err != nil {
		return 0, err
	}

	ran := 0
	for _, j := range due {
		if ctx.Err() != nil {
			return ran, ctx.Err()
		}
		ok, err := p.process(ctx, j)
		if err != nil {
			return ran, err
		}
		if ok {
			ran++
		}
	}
	return ran, nil
}

func (p *Pool) loop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		found, err := p.poll()
		if err != nil {
			p.logger.Error("poll error", slog.String("error", err.Error()))
			p.sleep()
			continue
		}
		if !found {
			p.sleep()
		}
	}
}

// poll claims and runs the first due job it can get. found is false when
// there was nothing to run.
func (p *Pool) poll() (bool, error) {
	ctx := context.Background()

	due, err := p.store.DueJobs(ctx, p.client, p.now(), p.batchSize)
	if err != nil {
		return false, err
	}

	for _, j := range due {
		select {
		case <-p.stopCh:
			return true, nil
		default:
		}

		ran, err := p.process(ctx, j)
		if err != nil {
			return false, err
		}
		if ran {
			return true, nil
		}
	}
	return false, nil
}

// process claims j and runs it. It reports false without error when the
// job was throttled or another worker claimed it first.
func (p *Pool) process(ctx context.Context, j *job.Job) (bool, error) {
	if p.limiter != nil {
		if !p.limiter.Acquire(j.Target, j.Client) {
			p.logger.Debug("job throttled",
				slog.String("job_id", j.ID.String()),
				slog.String("target", j.Target),
			)
			return false, nil
		}
		defer p.limiter.Release(j.Target, j.Client)
	}

	if err := p.store.ClaimJob(ctx, j.ID); err != nil {
		if errors.Is(err, jobqueue.ErrClaimConflict) || errors.Is(err, jobqueue.ErrJobNotFound) {
			p.logger.Debug("job claimed elsewhere", slog.String("job_id", j.ID.String()))
			return false, nil
		}
		return false, err
	}

	p.trackJob(j.ID)
	defer p.untrackJob(j.ID)

	if _, err := p.runner.Run(ctx, j); err != nil {
		p.logger.Error("job run error",
			slog.String("job_id", j.ID.String()),
			slog.String("job_name", j.Name),
			slog.String("error", err.Error()),
		)
	}
	return true, nil
}

func (p *Pool) sleep() {
	t := time.NewTimer(p.pollInterval)
	defer t.Stop()
	select {
	case <-t.C:
	case <-p.stopCh:
	}
}

// reaperLoop checks for stale jobs twice per threshold period.
func (p *Pool) reaperLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(max(p.staleJobThreshold/2, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			if _, err := p.ReapStaleJobs(context.Background()); err != nil {
				p.logger.Error("reap stale jobs error", slog.String("error", err.Error()))
			}
		}
	}
}

func (p *Pool) trackJob(jobID id.JobID) {
	p.activeMu.Lock()
	p.activeJobs[jobID] = struct{}{}
	p.activeMu.Unlock()
}

func (p *Pool) untrackJob(jobID id.JobID) {
	p.activeMu.Lock()
	delete(p.activeJobs, jobID)
	p.activeMu.Unlock()
}

func (p *Pool) activeIDs() []id.JobID {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	ids := make([]id.JobID, 0, len(p.activeJobs))
	for jobID := range p.activeJobs {
		ids = append(ids, jobID)
	}
	return ids
}
