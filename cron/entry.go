package cron

import (
	"time"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/id"
	"github.com/xraph/jobqueue/job"
)

// Entry is a recurring definition. Every time it fires, a job is created
// from its template fields and tagged with the entry's ID.
type Entry struct {
	jobqueue.Entity

	ID                id.CronID     `json:"id"`
	Name              string        `json:"name"`
	Schedule          string        `json:"schedule"`
	Target            string        `json:"target"`
	Data              string        `json:"data,omitempty"`
	AssignedPrincipal string        `json:"assigned_principal,omitempty"`
	Client            string        `json:"client,omitempty"`
	Requeue           bool          `json:"requeue"`
	RetryCount        int           `json:"retry_count"`
	JobDelay          time.Duration `json:"job_delay"`
	MinInterval       time.Duration `json:"min_interval"`
	LastRunAt         *time.Time    `json:"last_run_at,omitempty"`
	NextRunAt         *time.Time    `json:"next_run_at,omitempty"`
	LockedBy          string        `json:"locked_by,omitempty"`
	LockedUntil       *time.Time    `json:"locked_until,omitempty"`
	Enabled           bool          `json:"enabled"`
}

// JobOptions returns the options that turn the entry's template into a
// job due at the given time.
func (e *Entry) JobOptions(at time.Time) []job.Option {
	opts := []job.Option{
		job.WithData(e.Data),
		job.WithPrincipal(e.AssignedPrincipal),
		job.WithClient(e.Client),
		job.WithExecuteTime(at),
		job.WithJobDelay(e.JobDelay),
		job.WithMinInterval(e.MinInterval),
		job.WithSchedulerID(e.ID),
	}
	if e.Requeue {
		opts = append(opts, job.WithRequeue(e.RetryCount))
	}
	return opts
}
