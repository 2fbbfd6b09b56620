package cron

import (
	"fmt"
	"time"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/id"
)

// EntryOption configures a new Entry.
type EntryOption func(*Entry)

// WithData sets the data every fired job carries.
func WithData(data string) EntryOption {
	return func(e *Entry) { e.Data = data }
}

// WithPrincipal sets the principal fired jobs run as.
func WithPrincipal(principalID string) EntryOption {
	return func(e *Entry) { e.AssignedPrincipal = principalID }
}

// WithClient tags fired jobs with a client.
func WithClient(client string) EntryOption {
	return func(e *Entry) { e.Client = client }
}

// WithRequeue lets fired jobs retry up to n times.
func WithRequeue(n int) EntryOption {
	return func(e *Entry) {
		e.Requeue = true
		e.RetryCount = n
	}
}

// WithJobDelay sets the reschedule delay of fired jobs.
func WithJobDelay(d time.Duration) EntryOption {
	return func(e *Entry) { e.JobDelay = d }
}

// WithMinInterval sets the minimum reschedule interval of fired jobs.
func WithMinInterval(d time.Duration) EntryOption {
	return func(e *Entry) { e.MinInterval = d }
}

// Disabled registers the entry without letting it fire.
func Disabled() EntryOption {
	return func(e *Entry) { e.Enabled = false }
}

// NewEntry validates schedule and builds an enabled entry whose first
// run is the schedule's next activation after now.
func NewEntry(name, schedule, target string, now time.Time, opts ...EntryOption) (*Entry, error) {
	sched, err := ParseSchedule(schedule)
	if err != nil {
		return nil, fmt.Errorf("cron: invalid schedule %q: %w", schedule, err)
	}

	next := sched.Next(now)
	e := &Entry{
		Entity:    jobqueue.NewEntity(),
		ID:        id.NewCronID(),
		Name:      name,
		Schedule:  schedule,
		Target:    target,
		NextRunAt: &next,
		Enabled:   true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}
