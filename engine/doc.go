// Package engine wires the jobqueue subsystems together and is the
// application-level entry point for creating and running jobs.
//
// The engine package exists to break an import cycle: the root jobqueue
// package defines Entity and the sentinel errors (imported by job, cron,
// target and the stores) and therefore cannot import those packages back.
// Engine sits above all subsystem packages and below the application layer.
//
// # Building an Engine
//
//	d, err := jobqueue.New(
//	    jobqueue.WithStore(memory.New()),
//	    jobqueue.WithConcurrency(8),
//	    jobqueue.WithClient("reports"),
//	)
//
//	eng, err := engine.Build(d,
//	    engine.WithPrincipals(directory),
//	    engine.WithBackoff(backoff.NewExponential(time.Second, time.Hour)),
//	    engine.WithQueueConfig(queue.Config{
//	        Target:    "url::hooks.example.com/ping",
//	        RateLimit: 5,
//	    }),
//	)
//
// # Registering Targets
//
//	eng.Targets().RegisterFunction("sendReport", sendReport)
//	eng.Targets().RegisterMethod("Billing", "close", closeBooks)
//
// The retention sweeper is always registered as function::cleanJobQueue.
//
// # Creating and Running Jobs
//
//	j, err := eng.CreateJob(ctx, "weekly report", "function::sendReport",
//	    job.WithPrincipal("user-42"),
//	    job.WithRequeue(3),
//	    job.WithJobDelay(time.Minute),
//	)
//
//	ok, err := eng.RunJobID(ctx, j.ID.String(), "reports")
//
// Jobs also run in the background once Start is called: the worker pool
// claims due jobs and the cron scheduler turns recurring definitions into
// jobs.
//
//	err = eng.RegisterCron(ctx, "nightly-cleanup", "0 3 * * *", "function::cleanJobQueue",
//	    cron.WithPrincipal("system"))
//
// # Options
//
//   - [WithExtension]: register a lifecycle extension
//   - [WithMiddleware]: add a middleware to the invocation chain
//   - [WithBackoff]: grow the reschedule delay of failing jobs
//   - [WithQueueConfig], [WithClientLimit]: admission limits for the pool
//   - [WithPrincipals]: identity directory for function targets
//   - [WithURLInvoker]: replace the HTTP client for url:: targets
//   - [WithTracerProvider], [WithMeterProvider]: OpenTelemetry providers
package engine
