package job

import (
	"strings"
	"time"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/id"
)

// Status is the lifecycle status of a job. It doubles as the claim flag:
// only a QUEUED job may be claimed.
type Status string

const (
	// StatusQueued means the job waits for its execute time and a worker.
	StatusQueued Status = "QUEUED"
	// StatusRunning means a worker has claimed the job.
	StatusRunning Status = "RUNNING"
	// StatusDone means the job reached a terminal resolution.
	StatusDone Status = "DONE"
)

// Resolution is the outcome of the most recent run.
type Resolution string

const (
	// ResolutionNone means the job has not finished a run yet.
	ResolutionNone Resolution = "NONE"
	// ResolutionSuccess means the target reported success.
	ResolutionSuccess Resolution = "SUCCESS"
	// ResolutionFailure means the job failed for good.
	ResolutionFailure Resolution = "FAILURE"
	// ResolutionPartial means the run failed or was postponed and the job
	// is queued again.
	ResolutionPartial Resolution = "PARTIAL"
)

// Job is one unit of deferred work.
type Job struct {
	jobqueue.Entity

	ID                id.JobID      `json:"id"`
	Name              string        `json:"name"`
	Status            Status        `json:"status"`
	Resolution        Resolution    `json:"resolution"`
	Target            string        `json:"target"`
	Data              string        `json:"data,omitempty"`
	AssignedPrincipal string        `json:"assigned_principal,omitempty"`
	Client            string        `json:"client,omitempty"`
	ExecuteTime       time.Time     `json:"execute_time"`
	Requeue           bool          `json:"requeue"`
	RetryCount        int           `json:"retry_count"`
	FailureCount      int           `json:"failure_count"`
	JobDelay          time.Duration `json:"job_delay"`
	MinInterval       time.Duration `json:"min_interval"`
	Message           string        `json:"message,omitempty"`
	SchedulerID       id.CronID     `json:"scheduler_id,omitempty"`
	StartedAt         *time.Time    `json:"started_at,omitempty"`
	HeartbeatAt       *time.Time    `json:"heartbeat_at,omitempty"`
	DeletedAt         *time.Time    `json:"deleted_at,omitempty"`
}

// New builds a QUEUED job that is due immediately unless an option
// says otherwise. It does not persist anything.
func New(name, target string, opts ...Option) *Job {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	j := &Job{
		Entity:            jobqueue.NewEntity(),
		ID:                id.NewJobID(),
		Name:              name,
		Status:            StatusQueued,
		Resolution:        ResolutionNone,
		Target:            target,
		Data:              o.Data,
		AssignedPrincipal: o.Principal,
		Client:            o.Client,
		ExecuteTime:       o.ExecuteTime,
		Requeue:           o.Requeue,
		RetryCount:        o.RetryCount,
		JobDelay:          o.JobDelay,
		MinInterval:       o.MinInterval,
		SchedulerID:       o.SchedulerID,
	}
	if j.ExecuteTime.IsZero() {
		j.ExecuteTime = j.CreatedAt
	}
	return j
}

// AppendMessage adds a line to the diagnostic log. Earlier content is kept.
func (j *Job) AppendMessage(msg string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return
	}
	if j.Message == "" {
		j.Message = msg
		return
	}
	j.Message += "\n" + msg
}

// MarkRunning moves the job to RUNNING and counts as its first heartbeat.
func (j *Job) MarkRunning(now time.Time) {
	j.Status = StatusRunning
	j.StartedAt = &now
	j.HeartbeatAt = &now
}

// IsStale reports whether a RUNNING job's last heartbeat is older than
// before. A RUNNING job without a heartbeat is stale.
func (j *Job) IsStale(before time.Time) bool {
	if j.Status != StatusRunning || j.IsDeleted() {
		return false
	}
	return j.HeartbeatAt == nil || j.HeartbeatAt.Before(before)
}

// ResetStale queues an abandoned RUNNING job again, due at now. Counters
// and the resolution are kept; the attempt did not finish.
func (j *Job) ResetStale(now time.Time) {
	j.Status = StatusQueued
	j.ExecuteTime = now
	j.StartedAt = nil
	j.HeartbeatAt = nil
}

// Finish moves the job to DONE with the given resolution.
func (j *Job) Finish(r Resolution) {
	j.Status = StatusDone
	j.Resolution = r
}

// Reschedule queues the job again as PARTIAL, due at the given time.
func (j *Job) Reschedule(at time.Time) {
	j.Status = StatusQueued
	j.Resolution = ResolutionPartial
	j.ExecuteTime = at
}

// RetryDelay is the floor applied whenever the job is queued again:
// the larger of JobDelay and MinInterval.
func (j *Job) RetryDelay() time.Duration {
	return max(j.JobDelay, j.MinInterval)
}

// IsDone reports whether the job reached a terminal state.
func (j *Job) IsDone() bool { return j.Status == StatusDone }

// IsDeleted reports whether the job was soft-deleted.
func (j *Job) IsDeleted() bool { return j.DeletedAt != nil }

// Visible reports whether a worker tagged with client may run this job.
// Untagged jobs are visible to every client.
func (j *Job) Visible(client string) bool {
	return j.Client == "" || j.Client == client
}
