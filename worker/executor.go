package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/ext"
	"github.com/xraph/jobqueue/id"
	"github.com/xraph/jobqueue/job"
	"github.com/xraph/jobqueue/middleware"
	"github.com/xraph/jobqueue/retry"
	"github.com/xraph/jobqueue/target"
)

// CronRecorder records when a recurring definition last produced a run.
// cron.Store satisfies it.
type CronRecorder interface {
	UpdateCronLastRun(ctx context.Context, entryID id.CronID, at time.Time) error
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMiddleware appends middleware to the invocation chain. Panic
// recovery is always the outermost layer.
func WithMiddleware(mws ...middleware.Middleware) ExecutorOption {
	return func(e *Executor) { e.mws = append(e.mws, mws...) }
}

// WithPolicy replaces the retry policy.
func WithPolicy(p *retry.Policy) ExecutorOption {
	return func(e *Executor) { e.policy = p }
}

// WithCronRecorder enables last-run bookkeeping for jobs created by
// recurring definitions.
func WithCronRecorder(c CronRecorder) ExecutorOption {
	return func(e *Executor) { e.crons = c }
}

// WithDiagnosticsLevel sets the lowest level a target's log record needs
// to be copied into the job message. The default is slog.LevelWarn.
func WithDiagnosticsLevel(l slog.Level) ExecutorOption {
	return func(e *Executor) { e.diagLevel = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

// WithHeartbeatInterval sets how often a running job's heartbeat is
// refreshed while its target executes. Zero disables heartbeats.
func WithHeartbeatInterval(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.heartbeat = d }
}

// WithPersistTimeout bounds each store write made after the target has
// been invoked. Those writes do not inherit the run's cancellation.
func WithPersistTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.persistTimeout = d
		}
	}
}

// Executor runs one job: it resolves the target, invokes it through the
// middleware chain, applies the retry policy, persists the record and
// emits lifecycle events. It must not be called concurrently for the
// same job; the store's claim guarantees that for pooled workers.
type Executor struct {
	store      job.Store
	resolver   *target.Resolver
	extensions *ext.Registry
	policy     *retry.Policy
	crons      CronRecorder
	mws        []middleware.Middleware
	mw         middleware.Middleware
	diagLevel  slog.Level
	now        func() time.Time
	logger     *slog.Logger

	heartbeat      time.Duration
	persistTimeout time.Duration
}

// NewExecutor creates an Executor.
func NewExecutor(
	store job.Store,
	resolver *target.Resolver,
	extensions *ext.Registry,
	logger *slog.Logger,
	opts ...ExecutorOption,
) *Executor {
	e := &Executor{
		store:      store,
		resolver:   resolver,
		extensions: extensions,
		policy:     retry.New(),
		diagLevel:  slog.LevelWarn,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger,

		persistTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.mw = middleware.Chain(append([]middleware.Middleware{middleware.Recover(logger)}, e.mws...)...)
	return e
}

// Run executes j and reports whether it ended as SUCCESS. Target failures
// are recorded on the job and do not produce an error; only store failures
// do. j is updated in place.
//
// Only the target sees ctx's cancellation. Store writes run on a detached
// context bounded by the persist timeout, so a cancelled run still records
// its outcome instead of leaving the job RUNNING.
func (e *Executor) Run(ctx context.Context, j *job.Job) (bool, error) {
	start := e.now()
	j.MarkRunning(start)
	if err := e.persist(ctx, j); err != nil {
		return false, fmt.Errorf("worker: mark job %s running: %w", j.ID, err)
	}
	e.extensions.EmitJobStarted(ctx, j)

	stop := e.startHeartbeat(ctx, j.ID)
	rep, ok, cause := e.invoke(ctx, j)
	stop()

	now := e.now()
	decision := e.decide(j, rep, ok, cause, now)
	if decision == retry.Retry || decision == retry.Final {
		if cause == nil {
			cause = ErrTargetFailed
		}
	}

	if err := e.persist(ctx, j); err != nil {
		return false, fmt.Errorf("worker: save job %s: %w", j.ID, err)
	}

	wctx, cancel := e.detached(ctx)
	defer cancel()
	e.recordCronRun(wctx, j, now)
	e.emit(wctx, j, decision, cause, now.Sub(start))

	return decision == retry.Succeeded, nil
}

func (e *Executor) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.persistTimeout)
}

func (e *Executor) persist(ctx context.Context, j *job.Job) error {
	wctx, cancel := e.detached(ctx)
	defer cancel()
	return e.store.UpdateJob(wctx, j)
}

// startHeartbeat refreshes the job's heartbeat until the returned func is
// called. The returned func waits for the ticker goroutine to exit.
func (e *Executor) startHeartbeat(ctx context.Context, jobID id.JobID) func() {
	if e.heartbeat <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		t := time.NewTicker(e.heartbeat)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				wctx, cancel := e.detached(ctx)
				err := e.store.HeartbeatJob(wctx, jobID, e.now())
				cancel()
				if err != nil {
					e.logger.Warn("job heartbeat failed",
						slog.String("job_id", jobID.String()),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}()

	return func() {
		close(done)
		<-exited
	}
}

// invoke resolves and calls the target. It returns the Handle report, the
// target's bool, and the resolution error or fault if any. Diagnostics
// are flushed into the job message before it returns.
func (e *Executor) invoke(ctx context.Context, j *job.Job) (report, bool, error) {
	diag := &diagnostics{}
	defer func() { j.AppendMessage(diag.flush()) }()

	resolved, err := e.resolver.Resolve(ctx, j)
	if err != nil {
		diag.add(err.Error())
		e.logger.Warn("job target unresolved",
			slog.String("job_id", j.ID.String()),
			slog.String("target", j.Target),
			slog.String("error", err.Error()),
		)
		return reportNone, false, err
	}

	h := &handle{diag: diag}
	base := e.logger.With(slog.String("job_id", j.ID.String()), slog.String("job_name", j.Name))
	inv := &target.Invocation{
		Job:       *j,
		Data:      j.Data,
		Principal: resolved.Principal,
		Handle:    h,
		Logger:    slog.New(newSinkHandler(diag, e.diagLevel, base.Handler())),
	}

	ok, err := middleware.Wrap(e.mw, resolved.Func, inv)(ctx)
	if err != nil {
		fault := &ExecutionFault{Err: err}
		diag.add(fault.Error())
		return h.reported(), false, fault
	}
	return h.reported(), ok, nil
}

// decide applies the outcome to j. A Handle report wins over the return
// value; an error counts as failure.
func (e *Executor) decide(j *job.Job, rep report, ok bool, cause error, now time.Time) retry.Decision {
	switch rep {
	case reportSucceeded:
		return e.policy.Succeed(j, now)
	case reportPostponed:
		return e.policy.Postpone(j, now)
	case reportFailed:
		return e.policy.Fail(j, now)
	}
	if cause == nil && ok {
		return e.policy.Succeed(j, now)
	}
	return e.policy.Fail(j, now)
}

func (e *Executor) recordCronRun(ctx context.Context, j *job.Job, at time.Time) {
	if e.crons == nil || j.SchedulerID.IsNil() {
		return
	}
	err := e.crons.UpdateCronLastRun(ctx, j.SchedulerID, at)
	if err != nil && !errors.Is(err, jobqueue.ErrCronNotFound) {
		e.logger.Warn("failed to record cron last run",
			slog.String("job_id", j.ID.String()),
			slog.String("cron_id", j.SchedulerID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Executor) emit(ctx context.Context, j *job.Job, d retry.Decision, cause error, elapsed time.Duration) {
	attrs := []any{
		slog.String("job_id", j.ID.String()),
		slog.String("job_name", j.Name),
		slog.String("decision", d.String()),
	}

	switch d {
	case retry.Succeeded:
		e.extensions.EmitJobCompleted(ctx, j, elapsed)
		e.logger.Debug("job succeeded", append(attrs, slog.Duration("elapsed", elapsed))...)
	case retry.Postponed:
		e.extensions.EmitJobPostponed(ctx, j, j.ExecuteTime)
		e.logger.Info("job postponed", append(attrs, slog.Time("next_run_at", j.ExecuteTime))...)
	case retry.Retry:
		e.extensions.EmitJobRetrying(ctx, j, cause, j.ExecuteTime)
		e.logger.Info("job scheduled for retry", append(attrs,
			slog.Int("failure_count", j.FailureCount),
			slog.Int("retries_left", j.RetryCount),
			slog.Time("next_run_at", j.ExecuteTime),
		)...)
	case retry.Final:
		e.extensions.EmitJobFailed(ctx, j, cause)
		e.logger.Warn("job failed", append(attrs,
			slog.Int("failure_count", j.FailureCount),
			slog.String("error", cause.Error()),
		)...)
	}
}
