// Package redis implements store.Store on Redis via go-redis. Jobs and cron
// entries are stored as MessagePack blobs; sorted sets index jobs by
// creation time and by execute time so the dispatcher can poll for due work
// with a single range query.
//
// Every key carries the {jobqueue} hash tag, so the store also works against
// Redis Cluster: multi-key transactions stay within one slot.
//
// The caller owns the client lifecycle; Close never closes it:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis
