package job

import (
	"time"

	"github.com/xraph/jobqueue/id"
)

// Options configures a job at creation time.
type Options struct {
	// Data is the opaque payload handed to the target.
	Data string

	// Principal is the identity the target runs on behalf of.
	Principal string

	// Client restricts the job to pools with the same client tag.
	Client string

	// ExecuteTime is the earliest time the job may run. Zero means now.
	ExecuteTime time.Time

	// Requeue enables retries; RetryCount is the retry budget.
	Requeue    bool
	RetryCount int

	// JobDelay and MinInterval feed the reschedule delay.
	JobDelay    time.Duration
	MinInterval time.Duration

	// SchedulerID links the job to the recurring definition that created it.
	SchedulerID id.CronID
}

// DefaultOptions returns Options with no retries and no delay.
func DefaultOptions() Options {
	return Options{}
}

// Option is a functional option for job creation.
type Option func(*Options)

// WithData sets the opaque payload.
func WithData(data string) Option {
	return func(o *Options) {
		o.Data = data
	}
}

// WithPrincipal assigns the principal the target runs as.
func WithPrincipal(principal string) Option {
	return func(o *Options) {
		o.Principal = principal
	}
}

// WithClient tags the job for a specific worker pool.
func WithClient(client string) Option {
	return func(o *Options) {
		o.Client = client
	}
}

// WithExecuteTime defers the job until t.
func WithExecuteTime(t time.Time) Option {
	return func(o *Options) {
		o.ExecuteTime = t
	}
}

// WithRequeue enables retries with the given budget.
func WithRequeue(retries int) Option {
	return func(o *Options) {
		o.Requeue = true
		o.RetryCount = retries
	}
}

// WithJobDelay sets the base reschedule delay.
func WithJobDelay(d time.Duration) Option {
	return func(o *Options) {
		o.JobDelay = d
	}
}

// WithMinInterval sets the minimum reschedule delay.
func WithMinInterval(d time.Duration) Option {
	return func(o *Options) {
		o.MinInterval = d
	}
}

// WithSchedulerID links the job to a recurring definition.
func WithSchedulerID(cronID id.CronID) Option {
	return func(o *Options) {
		o.SchedulerID = cronID
	}
}
