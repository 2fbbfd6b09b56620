package job

// Handle lets a running target report its own outcome instead of relying
// on its return value. The first report wins; later calls only append
// their message.
type Handle interface {
	// Succeed resolves the job as SUCCESS.
	Succeed(msg string)
	// Fail records a failure and hands the job to the retry policy.
	Fail(msg string)
	// Postpone queues the job again without counting a failure.
	Postpone(msg string)
}
