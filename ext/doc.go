// Package ext defines the extension system.
//
// Extensions are notified of lifecycle events and react to them by
// recording metrics, writing audit logs or paging someone. Each hook is a
// separate interface so extensions opt in only to the events they need.
//
//	type Pager struct{}
//
//	func (p *Pager) Name() string { return "pager" }
//
//	func (p *Pager) OnJobFailed(ctx context.Context, j *job.Job, cause error) error {
//	    return page(ctx, j.Name, cause)
//	}
//
// # Job Lifecycle Hooks
//
//   - [JobCreated]: the job was persisted
//   - [JobStarted]: the executor moved the job to RUNNING
//   - [JobCompleted]: the job ended as SUCCESS
//   - [JobPostponed]: the target asked to run again later
//   - [JobRetrying]: a failure was recorded and the job is queued again
//   - [JobFailed]: a failure was recorded and no retries remain
//
// # Other Hooks
//
//   - [JobsSwept]: a retention sweep finished
//   - [CronFired]: a cron entry created a job
//   - [Shutdown]: the dispatcher is shutting down
//
// Hook errors are logged by the [Registry] and never reach the caller.
package ext
