// Package jobqueue is a background job execution engine. It queues units of
// deferred work, dispatches them to registered targets, records outcomes,
// retries failures with a delay, and retires stale records.
//
// jobqueue is a library first. Configure a store, register target functions,
// and let a worker pool drain the due jobs:
//
//	d, err := jobqueue.New(
//	    jobqueue.WithStore(pgStore),
//	    jobqueue.WithConcurrency(8),
//	    jobqueue.WithClient("reports"),
//	)
//	eng, err := engine.Build(d)
//	eng.Targets().RegisterFunction("sendDigest", sendDigest)
//	j, err := eng.CreateJob(ctx, "digest", "function::sendDigest",
//	    job.WithPrincipal("user-42"),
//	    job.WithRequeue(3),
//	)
//
// # Architecture
//
// Every subsystem (job, cron) defines its own store interface and each
// backend (memory, postgres, sqlite, redis) implements all of them. A job
// moves QUEUED → RUNNING → DONE, or back to QUEUED with a later execute time
// when the retry policy reschedules it.
//
// Entity IDs are prefixed, time-ordered UUIDs such as "job_0190…".
package jobqueue
