package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/backoff"
	"github.com/xraph/jobqueue/cron"
	"github.com/xraph/jobqueue/ext"
	"github.com/xraph/jobqueue/id"
	"github.com/xraph/jobqueue/job"
	mw "github.com/xraph/jobqueue/middleware"
	"github.com/xraph/jobqueue/observability"
	"github.com/xraph/jobqueue/principal"
	"github.com/xraph/jobqueue/queue"
	"github.com/xraph/jobqueue/retention"
	"github.com/xraph/jobqueue/retry"
	"github.com/xraph/jobqueue/store"
	"github.com/xraph/jobqueue/target"
	"github.com/xraph/jobqueue/worker"
)

const instrumentationName = "github.com/xraph/jobqueue"

// Engine wraps a Dispatcher with typed subsystem access.
// Use Build() to create one from a Dispatcher.
type Engine struct {
	d          *jobqueue.Dispatcher
	extensions *ext.Registry
	registry   *target.Registry
	principals principal.Resolver
	urls       target.URLInvoker
	resolver   *target.Resolver
	jobStore   job.Store
	cronStore  cron.Store
	executor   *worker.Executor
	pool       *worker.Pool
	scheduler  *cron.Scheduler
	sweeper    *retention.Sweeper
	mws        []mw.Middleware
	bo         backoff.Strategy
	now        func() time.Time
	logger     *slog.Logger

	// Queue limits.
	queueConfigs  []queue.Config
	clientConfigs []queue.ClientConfig
	queueManager  *queue.Manager

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware adds middleware to the engine's chain. It runs inside the
// built-in tracing, metrics, logging and principal layers.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithBackoff sets the strategy that grows the reschedule delay of failing
// jobs. The default keeps the delay at max(JobDelay, MinInterval).
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.bo = b
	}
}

// WithQueueConfig registers per-target rate limits and concurrency caps.
// Targets not listed have no limits.
func WithQueueConfig(configs ...queue.Config) Option {
	return func(eng *Engine) {
		eng.queueConfigs = append(eng.queueConfigs, configs...)
	}
}

// WithClientLimit registers per-client rate limits and concurrency caps.
func WithClientLimit(configs ...queue.ClientConfig) Option {
	return func(eng *Engine) {
		eng.clientConfigs = append(eng.clientConfigs, configs...)
	}
}

// WithPrincipals sets the identity directory used for function and method
// targets. Without it every such target fails with PrincipalNotFound.
func WithPrincipals(p principal.Resolver) Option {
	return func(eng *Engine) {
		eng.principals = p
	}
}

// WithURLInvoker replaces the HTTP client used for url:: targets.
func WithURLInvoker(u target.URLInvoker) Option {
	return func(eng *Engine) {
		eng.urls = u
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// WithClock overrides the time source of every subsystem.
func WithClock(now func() time.Time) Option {
	return func(eng *Engine) {
		eng.now = now
	}
}

// Build creates an Engine from a Dispatcher. It wires the target registry,
// executor, worker pool, cron scheduler and retention sweeper, and
// registers the pool and scheduler as runners of d.
func Build(d *jobqueue.Dispatcher, opts ...Option) (*Engine, error) {
	if d.Store() == nil {
		return nil, jobqueue.ErrNoStore
	}
	s, ok := d.Store().(store.Store)
	if !ok {
		return nil, fmt.Errorf("engine: store %T does not implement job and cron persistence", d.Store())
	}

	logger := d.Logger()
	eng := &Engine{
		d:          d,
		extensions: ext.NewRegistry(logger),
		registry:   target.NewRegistry(),
		jobStore:   s,
		cronStore:  s,
		bo:         backoff.DefaultStrategy(),
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger,
	}
	for _, opt := range opts {
		opt(eng)
	}

	cfg := d.Config()

	// Built-in metrics extension.
	if eng.meterProvider != nil {
		eng.extensions.Register(observability.NewMetricsExtensionWithMeter(eng.meterProvider.Meter(instrumentationName)))
	} else {
		eng.extensions.Register(observability.NewMetricsExtension())
	}

	var resolverOpts []target.ResolverOption
	if eng.urls != nil {
		resolverOpts = append(resolverOpts, target.WithURLInvoker(eng.urls))
	}
	eng.resolver = target.NewResolver(eng.registry, eng.principals, resolverOpts...)

	eng.executor = worker.NewExecutor(s, eng.resolver, eng.extensions, logger,
		worker.WithMiddleware(eng.chain(cfg)...),
		worker.WithPolicy(retry.New(retry.WithStrategy(eng.bo))),
		worker.WithCronRecorder(s),
		worker.WithClock(eng.now),
		worker.WithHeartbeatInterval(cfg.HeartbeatInterval),
	)

	poolOpts := []worker.PoolOption{
		worker.WithPoolConcurrency(cfg.Concurrency),
		worker.WithPoolClient(cfg.Client),
		worker.WithBatchSize(cfg.BatchSize),
		worker.WithPollInterval(cfg.PollInterval),
		worker.WithPoolClock(eng.now),
		worker.WithStaleJobThreshold(cfg.StaleJobThreshold),
	}
	if len(eng.queueConfigs) > 0 || len(eng.clientConfigs) > 0 {
		eng.queueManager = queue.NewManager(eng.queueConfigs...)
		for _, cc := range eng.clientConfigs {
			eng.queueManager.SetClientConfig(cc)
		}
		poolOpts = append(poolOpts, worker.WithLimiter(eng.queueManager))
	}
	eng.pool = worker.NewPool(s, eng.executor, logger, poolOpts...)

	eng.scheduler = cron.NewScheduler(s, eng.CreateJob, eng.extensions, eng.pool.WorkerID(), logger,
		cron.WithClock(eng.now),
	)

	eng.sweeper = retention.New(s, logger,
		retention.WithAges(cfg.SoftDeleteAfter, cfg.PurgeAfter),
		retention.WithEmitter(eng.extensions),
		retention.WithClock(eng.now),
	)
	eng.registry.RegisterFunction(retention.TargetName, eng.sweeper.Target())

	d.AddRunner(eng.scheduler)
	d.AddRunner(eng.pool)
	d.SetExtensions(eng.extensions)

	return eng, nil
}

// chain builds the invocation middleware. Panic recovery is added by the
// executor itself, outside of everything listed here.
func (eng *Engine) chain(cfg jobqueue.Config) []mw.Middleware {
	var tracing, metrics mw.Middleware
	if eng.tracerProvider != nil {
		tracing = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	} else {
		tracing = mw.Tracing()
	}
	if eng.meterProvider != nil {
		metrics = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
	} else {
		metrics = mw.Metrics()
	}

	chain := []mw.Middleware{tracing, metrics, mw.Logging(eng.logger), mw.Principal()}
	if cfg.ExecutionTimeout > 0 {
		chain = append(chain, mw.Timeout(cfg.ExecutionTimeout))
	}
	return append(chain, eng.mws...)
}

// ──────────────────────────────────────────────────
// Job operations
// ──────────────────────────────────────────────────

// CreateJob persists a new QUEUED job and emits JobCreated. Without
// job.WithExecuteTime the job is due immediately.
func (eng *Engine) CreateJob(ctx context.Context, name, targetDesc string, opts ...job.Option) (*job.Job, error) {
	j := job.New(name, targetDesc, opts...)
	if err := eng.jobStore.CreateJob(ctx, j); err != nil {
		return nil, fmt.Errorf("engine: create job %q: %w", name, err)
	}
	eng.extensions.EmitJobCreated(ctx, j)
	eng.logger.Debug("job created",
		slog.String("job_id", j.ID.String()),
		slog.String("name", j.Name),
		slog.String("target", j.Target),
	)
	return j, nil
}

// RunJobID claims one QUEUED job and runs it on demand, reporting whether
// it ended as SUCCESS. An unparsable or unknown id, a job tagged for
// another client, and a job that is RUNNING or DONE all yield an error
// wrapping ErrNotRun and leave the record untouched. Callers that already
// hold the claim use Executor().Run instead.
func (eng *Engine) RunJobID(ctx context.Context, rawID, client string) (bool, error) {
	jobID, err := id.ParseJobID(rawID)
	if err != nil {
		return false, fmt.Errorf("%w: invalid job id %q", jobqueue.ErrNotRun, rawID)
	}

	j, err := eng.jobStore.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobqueue.ErrJobNotFound) {
			return false, fmt.Errorf("%w: job %s not found", jobqueue.ErrNotRun, jobID)
		}
		return false, err
	}
	if !j.Visible(client) {
		return false, fmt.Errorf("%w: job %s belongs to client %q", jobqueue.ErrNotRun, jobID, j.Client)
	}

	switch j.Status {
	case job.StatusDone:
		return false, fmt.Errorf("%w: job %s is already %s", jobqueue.ErrNotRun, jobID, j.Resolution)
	case job.StatusRunning:
		return false, fmt.Errorf("%w: job %s is already running", jobqueue.ErrNotRun, jobID)
	}
	if err := eng.jobStore.ClaimJob(ctx, jobID); err != nil {
		if errors.Is(err, jobqueue.ErrClaimConflict) || errors.Is(err, jobqueue.ErrJobNotFound) {
			return false, fmt.Errorf("%w: job %s was claimed by another worker", jobqueue.ErrNotRun, jobID)
		}
		return false, err
	}

	return eng.executor.Run(ctx, j)
}

// GetJob returns a live job, or any job when includeDeleted is set.
func (eng *Engine) GetJob(ctx context.Context, jobID id.JobID, includeDeleted bool) (*job.Job, error) {
	if includeDeleted {
		return eng.jobStore.GetJobWithDeleted(ctx, jobID)
	}
	return eng.jobStore.GetJob(ctx, jobID)
}

// ListJobs returns jobs matching opts.
func (eng *Engine) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	return eng.jobStore.ListJobs(ctx, opts)
}

// CountJobs returns the number of live jobs per status for client (all
// clients when empty).
func (eng *Engine) CountJobs(ctx context.Context, client string) (map[job.Status]int64, error) {
	counts := make(map[job.Status]int64, 3)
	for _, st := range []job.Status{job.StatusQueued, job.StatusRunning, job.StatusDone} {
		n, err := eng.jobStore.CountJobs(ctx, job.CountOpts{Status: st, Client: client})
		if err != nil {
			return nil, fmt.Errorf("engine: count %s jobs: %w", st, err)
		}
		counts[st] = n
	}
	return counts, nil
}

// CancelJob soft-deletes a job that has not been claimed yet. Jobs that
// are RUNNING or DONE yield ErrInvalidState. The store checks the status
// and deletes in one step, so a worker cannot claim the job in between.
func (eng *Engine) CancelJob(ctx context.Context, jobID id.JobID) error {
	if err := eng.jobStore.CancelJob(ctx, jobID); err != nil {
		return err
	}
	eng.logger.Info("job cancelled", slog.String("job_id", jobID.String()))
	return nil
}

// Sweep applies the retention policy once.
func (eng *Engine) Sweep(ctx context.Context) (retention.Result, error) {
	return eng.sweeper.Sweep(ctx)
}

// ──────────────────────────────────────────────────
// Cron operations
// ──────────────────────────────────────────────────

// RegisterCron persists a recurring definition. Registering a name that
// already exists is a no-op, so applications may call it on every boot.
func (eng *Engine) RegisterCron(ctx context.Context, name, schedule, targetDesc string, opts ...cron.EntryOption) error {
	entry, err := cron.NewEntry(name, schedule, targetDesc, eng.now(), opts...)
	if err != nil {
		return err
	}
	if err := eng.cronStore.RegisterCron(ctx, entry); err != nil {
		if errors.Is(err, jobqueue.ErrDuplicateCron) {
			return nil
		}
		return fmt.Errorf("engine: register cron %q: %w", name, err)
	}
	eng.logger.Info("cron registered",
		slog.String("cron_id", entry.ID.String()),
		slog.String("name", name),
		slog.String("schedule", schedule),
	)
	return nil
}

// ListCrons returns every recurring definition.
func (eng *Engine) ListCrons(ctx context.Context) ([]*cron.Entry, error) {
	return eng.cronStore.ListCrons(ctx)
}

// DeleteCron removes a recurring definition. Jobs it already created are
// kept.
func (eng *Engine) DeleteCron(ctx context.Context, entryID id.CronID) error {
	return eng.cronStore.DeleteCron(ctx, entryID)
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// Dispatcher returns the underlying Dispatcher.
func (eng *Engine) Dispatcher() *jobqueue.Dispatcher { return eng.d }

// Targets returns the registry function and method targets resolve against.
func (eng *Engine) Targets() *target.Registry { return eng.registry }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Executor returns the executor shared by the pool and RunJobID.
func (eng *Engine) Executor() *worker.Executor { return eng.executor }

// Pool returns the worker pool.
func (eng *Engine) Pool() *worker.Pool { return eng.pool }

// Scheduler returns the cron scheduler.
func (eng *Engine) Scheduler() *cron.Scheduler { return eng.scheduler }

// Sweeper returns the retention sweeper.
func (eng *Engine) Sweeper() *retention.Sweeper { return eng.sweeper }

// JobStore returns the job store.
func (eng *Engine) JobStore() job.Store { return eng.jobStore }

// CronStore returns the cron store.
func (eng *Engine) CronStore() cron.Store { return eng.cronStore }

// QueueManager returns the limiter, or nil when no limits are configured.
func (eng *Engine) QueueManager() *queue.Manager { return eng.queueManager }

// Start starts the scheduler and the worker pool.
func (eng *Engine) Start(ctx context.Context) error {
	return eng.d.Start(ctx)
}

// Stop stops the pool and the scheduler, then closes the store.
func (eng *Engine) Stop(ctx context.Context) error {
	return eng.d.Stop(ctx)
}
