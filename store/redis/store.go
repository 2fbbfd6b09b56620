package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/jobqueue/cron"
	"github.com/xraph/jobqueue/job"
	"github.com/xraph/jobqueue/store"
)

// Compile-time interface checks.
var (
	_ store.Store = (*Store)(nil)
	_ job.Store   = (*Store)(nil)
	_ cron.Store  = (*Store)(nil)
)

// maxTxAttempts bounds optimistic transaction retries under contention.
const maxTxAttempts = 16

// scanBatch is the page size used when walking the sorted-set indexes.
const scanBatch = 200

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides the time source used to stamp UpdatedAt and
// DeletedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store implements the composite store.Store interface backed by Redis.
type Store struct {
	client goredis.UniversalClient
	now    func() time.Time
	logger *slog.Logger
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client: client,
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.UniversalClient { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op; the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }

// watch runs fn in an optimistic WATCH/MULTI transaction over keys and
// retries when a concurrent writer invalidates it. Errors returned by fn
// pass through unchanged.
func (s *Store) watch(ctx context.Context, fn func(*goredis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, goredis.TxFailedErr) {
			return err
		}
		s.logger.Debug("redis transaction conflict, retrying",
			slog.Any("keys", keys),
			slog.Int("attempt", attempt+1),
		)
	}
	return fmt.Errorf("jobqueue/redis: transaction on %v: %w", keys, goredis.TxFailedErr)
}

// score converts a timestamp to a sorted-set score.
func score(t time.Time) float64 {
	return float64(t.UnixMicro())
}
