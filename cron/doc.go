// Package cron provides recurring definitions: entries that create a job
// on a schedule.
//
// # Entry
//
// An [Entry] holds a schedule plus a job template:
//   - Schedule: standard 5-field cron expression or a descriptor such as
//     "@every 30s" or "@daily"
//   - Target, Data, AssignedPrincipal, Client: copied to every fired job
//   - Requeue / RetryCount / JobDelay / MinInterval: retry settings of the
//     fired jobs
//   - LastRunAt: when a fired job last ran (recorded by the executor)
//   - NextRunAt: next activation, computed by the scheduler
//   - LockedBy / LockedUntil: per-entry lock (managed internally)
//
// Fired jobs carry the entry's ID in job.Job.SchedulerID.
//
// # Scheduler
//
// The [Scheduler] lists entries on every tick, locks each enabled due
// entry, creates its job, advances NextRunAt and releases the lock. The
// lock is the only coordination between processes; there is no leader.
package cron
