// Package job defines the job record, its creation options, the
// self-reporting Handle, and the store interface.
//
// # Job Record
//
// A [Job] embeds [jobqueue.Entity] for timestamps and moves through a
// small state machine:
//
//	QUEUED → RUNNING → DONE (SUCCESS | FAILURE)
//	QUEUED → RUNNING → QUEUED (PARTIAL, later ExecuteTime)
//
// Fields of note:
//   - Target: "function::name", "function::Class::method" or "url::address"
//   - Client: optional tag; only pools with the same tag may claim the job
//   - Requeue / RetryCount: retry eligibility and remaining budget
//   - FailureCount: cumulative, never reset
//   - JobDelay / MinInterval: the reschedule delay is the larger of the two
//   - Message: append-only diagnostic log
//
// Status is the claim flag. [Store.ClaimJob] is the only path from QUEUED
// to RUNNING for pooled workers, and it fails with
// jobqueue.ErrClaimConflict when another worker won the race.
package job
