// Package sqlite implements store.Store using the bun ORM with the SQLite
// dialect over mattn/go-sqlite3. Suitable for single-node deployments, CLI
// tools, and tests.
//
// Open creates and owns the database handle:
//
//	store, err := sqlite.Open("file:jobqueue.db?_busy_timeout=5000&_journal_mode=WAL")
//	err = store.Migrate(ctx)
//
// New wraps a caller-owned *bun.DB; Close then leaves it open.
//
// SQLite serializes writers, so the guarded UPDATE behind ClaimJob is atomic
// across every process sharing the file.
package sqlite
