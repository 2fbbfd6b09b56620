package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // register the sqlite3 driver
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/xraph/jobqueue/cron"
	"github.com/xraph/jobqueue/job"
	"github.com/xraph/jobqueue/store"
)

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ store.Store = (*Store)(nil)
	_ job.Store   = (*Store)(nil)
	_ cron.Store  = (*Store)(nil)
)

// Store is a bun implementation of store.Store using the SQLite dialect.
type Store struct {
	db     *bun.DB
	owned  bool
	now    func() time.Time
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock overrides the time source used to stamp UpdatedAt and lock
// expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a store over a caller-owned db. Close will not close it.
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens dsn with the sqlite3 driver and returns a store that owns the
// handle. In-memory databases are pinned to one connection so every query
// sees the same data.
func Open(dsn string, opts ...Option) (*Store, error) {
	sqldb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("jobqueue/sqlite: open: %w", err)
	}
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		sqldb.SetMaxOpenConns(1)
	}

	s := New(bun.NewDB(sqldb, sqlitedialect.New()), opts...)
	s.owned = true
	return s, nil
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Migrate creates the tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	models := []any{(*jobModel)(nil), (*cronEntryModel)(nil)}
	for _, m := range models {
		if _, err := s.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("jobqueue/sqlite: create table: %w", err)
		}
	}

	indexes := []struct {
		name    string
		columns []string
	}{
		{"idx_jobqueue_jobs_due", []string{"status", "execute_time", "created_at"}},
		{"idx_jobqueue_jobs_retention", []string{"status", "updated_at"}},
		{"idx_jobqueue_jobs_client", []string{"client", "status"}},
		{"idx_jobqueue_jobs_running", []string{"status", "heartbeat_at"}},
	}
	for _, idx := range indexes {
		_, err := s.db.NewCreateIndex().
			Model((*jobModel)(nil)).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("jobqueue/sqlite: create index %s: %w", idx.name, err)
		}
	}

	s.logger.Debug("sqlite schema ready")
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database when the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
