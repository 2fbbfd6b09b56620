// Package postgres implements the store using pgx/v5 with raw SQL.
// Features: guarded-UPDATE claims, SKIP LOCKED due-job reads, per-entry
// cron locks, and goose-managed embedded SQL migrations.
package postgres
