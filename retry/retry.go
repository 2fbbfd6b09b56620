// Package retry holds the state machine that decides what happens to a job
// after a run: finish it, postpone it, reschedule it after a failure, or
// fail it for good.
//
// The policy mutates the record only. Persisting the record and firing the
// retry/final-failure hooks is the executor's job, after the write succeeds.
package retry

import (
	"time"

	"github.com/xraph/jobqueue/backoff"
	"github.com/xraph/jobqueue/job"
)

// Decision is what the policy did to the job.
type Decision int

const (
	// Succeeded means the job is DONE/SUCCESS.
	Succeeded Decision = iota
	// Postponed means the job is QUEUED/PARTIAL at a later time without a
	// recorded failure.
	Postponed
	// Retry means a failure was recorded and the job is QUEUED/PARTIAL
	// again with one less retry.
	Retry
	// Final means a failure was recorded and the job is DONE/FAILURE.
	Final
)

func (d Decision) String() string {
	switch d {
	case Succeeded:
		return "succeeded"
	case Postponed:
		return "postponed"
	case Retry:
		return "retry"
	case Final:
		return "final"
	default:
		return "unknown"
	}
}

// Option configures a Policy.
type Option func(*Policy)

// WithStrategy stretches failure delays beyond the job's floor.
func WithStrategy(s backoff.Strategy) Option {
	return func(p *Policy) {
		p.strategy = s
	}
}

// Policy applies outcomes to job records.
type Policy struct {
	strategy backoff.Strategy
}

// New creates a Policy. Without options, failed jobs wait exactly
// max(JobDelay, MinInterval).
func New(opts ...Option) *Policy {
	p := &Policy{strategy: backoff.DefaultStrategy()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Succeed resolves the job as SUCCESS/DONE. Counters are untouched.
func (p *Policy) Succeed(j *job.Job, _ time.Time) Decision {
	j.Finish(job.ResolutionSuccess)
	return Succeeded
}

// Postpone queues the job again at now + max(JobDelay, MinInterval).
// It records no failure and spends no retry.
func (p *Policy) Postpone(j *job.Job, now time.Time) Decision {
	j.Reschedule(now.Add(j.RetryDelay()))
	return Postponed
}

// Fail records a failure. Jobs without requeue or without retries left end
// as FAILURE/DONE; the rest are rescheduled with one less retry.
func (p *Policy) Fail(j *job.Job, now time.Time) Decision {
	j.FailureCount++

	if !j.Requeue || j.RetryCount <= 0 {
		j.Finish(job.ResolutionFailure)
		return Final
	}

	j.RetryCount--
	j.Reschedule(now.Add(p.Delay(j)))
	return Retry
}

// Delay is the wait before the next attempt of a failed job.
func (p *Policy) Delay(j *job.Job) time.Duration {
	return backoff.Floor(p.strategy, j.FailureCount, j.RetryDelay())
}
