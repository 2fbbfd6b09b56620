// Package queue throttles job admission per target and per client tag.
//
// # Per-Target Configuration
//
// Use [Config] to cap a target's concurrency or start rate:
//
//	queue.Config{
//	    Target:         "function::sendMail",
//	    MaxConcurrency: 5,  // at most 5 mails in flight
//	    RateLimit:      10, // at most 10 starts per second
//	    RateBurst:      20,
//	}
//
// Pass configs when building the engine:
//
//	engine.Build(d,
//	    engine.WithQueueConfig(
//	        queue.Config{Target: "function::rebuildIndex", MaxConcurrency: 1},
//	        queue.Config{Target: "url::partner.example.com/sync", RateLimit: 2},
//	    ),
//	)
//
// # Per-Client Configuration
//
// [ClientConfig] applies to every job carrying the client tag, whatever
// its target.
//
// # Manager
//
// [Manager] is consulted by the worker pool before a due job is claimed.
// A job that is refused stays QUEUED and is offered again on the next poll.
// Rate limiting uses a token bucket (golang.org/x/time/rate).
//
//	m := queue.NewManager(configs...)
//	if m.Acquire(j.Target, j.Client) {
//	    defer m.Release(j.Target, j.Client)
//	    // claim and run the job
//	}
package queue
