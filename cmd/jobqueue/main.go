// Command jobqueue runs and administers a job queue backed by SQLite,
// Postgres, Redis, or an in-memory store.
//
// Settings come from the environment (JOBQUEUE_STORE, JOBQUEUE_DSN,
// JOBQUEUE_REDIS_ADDR, JOBQUEUE_HTTP_ADDR, LOG_FORMAT, LOG_LEVEL, ...);
// --store and --dsn override them.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
