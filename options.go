package jobqueue

import (
	"context"
	"log/slog"
	"time"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher) error

// Storer is the lifecycle surface every backend exposes. Subsystem layers
// (job, cron) type-assert the concrete store to their own interfaces.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// runner is implemented by the worker pool and the cron scheduler.
type runner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type shutdownEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Dispatcher owns the configuration, logger and store shared by every
// subsystem. The engine package builds the pool and scheduler around it.
type Dispatcher struct {
	config     Config
	logger     *slog.Logger
	store      Storer
	extensions shutdownEmitter
	runners    []runner

	started bool
}

// New creates a new Dispatcher with the given options.
func New(opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Logger returns the dispatcher's logger.
func (d *Dispatcher) Logger() *slog.Logger { return d.logger }

// Store returns the dispatcher's store.
func (d *Dispatcher) Store() Storer { return d.store }

// Config returns a copy of the dispatcher's configuration.
func (d *Dispatcher) Config() Config { return d.config }

// AddRunner registers a component started by Start and stopped by Stop.
// Runners stop in reverse registration order.
func (d *Dispatcher) AddRunner(r interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}) {
	d.runners = append(d.runners, r)
}

// SetExtensions sets the shutdown emitter (called by the engine package).
func (d *Dispatcher) SetExtensions(e interface{ EmitShutdown(ctx context.Context) }) {
	d.extensions = e
}

// Start starts every registered runner.
func (d *Dispatcher) Start(ctx context.Context) error {
	if d.store == nil {
		return ErrNoStore
	}
	for _, r := range d.runners {
		if err := r.Start(ctx); err != nil {
			return err
		}
	}
	d.started = true
	return nil
}

// Stop gracefully shuts down runners, then closes the store.
func (d *Dispatcher) Stop(ctx context.Context) error {
	if d.started {
		for i := len(d.runners) - 1; i >= 0; i-- {
			if err := d.runners[i].Stop(ctx); err != nil {
				d.logger.Error("runner stop error", slog.String("error", err.Error()))
			}
		}
		d.started = false
	}
	if d.extensions != nil {
		d.extensions.EmitShutdown(ctx)
	}
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(d *Dispatcher) error {
		d.config = cfg
		return nil
	}
}

// WithConcurrency sets the number of worker goroutines.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) error {
		d.config.Concurrency = n
		return nil
	}
}

// WithClient tags this dispatcher's pool so it claims only untagged jobs and
// jobs carrying the same client tag.
func WithClient(client string) Option {
	return func(d *Dispatcher) error {
		d.config.Client = client
		return nil
	}
}

// WithPollInterval sets how often idle workers poll for due jobs.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.PollInterval = interval
		return nil
	}
}

// WithExecutionTimeout bounds every target invocation.
func WithExecutionTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.ExecutionTimeout = timeout
		return nil
	}
}

// WithStaleJobRecovery sets the heartbeat interval of running jobs and the
// silence after which the pool queues them again.
func WithStaleJobRecovery(heartbeat, threshold time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.HeartbeatInterval = heartbeat
		d.config.StaleJobThreshold = threshold
		return nil
	}
}

// WithRetention sets the soft-delete and purge ages used by the sweeper.
func WithRetention(softDeleteAfter, purgeAfter time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.SoftDeleteAfter = softDeleteAfter
		d.config.PurgeAfter = purgeAfter
		return nil
	}
}

// WithLogger sets the structured logger for the dispatcher.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) error {
		d.logger = l
		return nil
	}
}

// WithStore sets the persistence backend for the dispatcher.
func WithStore(s Storer) Option {
	return func(d *Dispatcher) error {
		d.store = s
		return nil
	}
}
