package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionJobCreated   = "job.created"
	ActionJobStarted   = "job.started"
	ActionJobCompleted = "job.completed"
	ActionJobPostponed = "job.postponed"
	ActionJobRetrying  = "job.retrying"
	ActionJobFailed    = "job.failed"
	ActionCronFired    = "cron.fired"
	ActionJobsSwept    = "retention.swept"
)

// Audit event categories group related actions.
const (
	CategoryJob       = "jobqueue.job"
	CategoryCron      = "jobqueue.cron"
	CategoryRetention = "jobqueue.retention"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceJob   = "job"
	ResourceCron  = "cron_entry"
	ResourceQueue = "job_queue"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobCreated,
		ActionJobStarted,
		ActionJobCompleted,
		ActionJobPostponed,
		ActionJobRetrying,
		ActionJobFailed,
		ActionCronFired,
		ActionJobsSwept,
	}
}
