// Package audithook is a jobqueue extension that turns lifecycle events
// into structured audit records.
//
// Each job, cron and retention hook builds an [AuditEvent] and hands it to
// a [Recorder]. Severity follows the outcome: info for normal progress,
// warning for retries and postponements, critical for terminal failures.
//
// # Logging recorder
//
//	eng, _ := engine.Build(d, engine.WithExtension(
//	    audithook.New(audithook.NewLogRecorder(logger)),
//	))
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionJobFailed,
//	        audithook.ActionJobsSwept,
//	    ),
//	)
package audithook
