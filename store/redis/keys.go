package redis

// All keys share the {jobqueue} hash tag so transactions spanning an entity
// and its indexes hit a single cluster slot.
const keyPrefix = "{jobqueue}:"

// ── Job keys ──

// jobKey returns the key for a job blob: {jobqueue}:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// jobsKey is the Sorted Set of every job ID scored by creation time.
const jobsKey = keyPrefix + "jobs"

// dueKey is the Sorted Set of live QUEUED job IDs scored by execute time.
const dueKey = keyPrefix + "due"

// runningKey is the Sorted Set of live RUNNING job IDs scored by their last
// heartbeat.
const runningKey = keyPrefix + "running"

// ── Cron keys ──

// cronKey returns the key for a cron entry blob: {jobqueue}:cron:{id}
func cronKey(id string) string { return keyPrefix + "cron:" + id }

// cronLockKey returns the key holding the worker that owns a cron entry.
// Its TTL is the lock expiry.
func cronLockKey(id string) string { return keyPrefix + "cron_lock:" + id }

// cronsKey is the Sorted Set of every cron ID scored by creation time.
const cronsKey = keyPrefix + "crons"

// cronNamesKey maps cron names to IDs for duplicate detection.
const cronNamesKey = keyPrefix + "cron_names"
