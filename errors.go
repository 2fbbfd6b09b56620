package jobqueue

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("jobqueue: no store configured")
	ErrStoreClosed     = errors.New("jobqueue: store closed")
	ErrMigrationFailed = errors.New("jobqueue: migration failed")

	// Not found errors.
	ErrJobNotFound       = errors.New("jobqueue: job not found")
	ErrCronNotFound      = errors.New("jobqueue: cron entry not found")
	ErrPrincipalNotFound = errors.New("jobqueue: principal not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("jobqueue: job already exists")
	ErrDuplicateCron    = errors.New("jobqueue: duplicate cron entry")
	ErrClaimConflict    = errors.New("jobqueue: job already claimed")

	// State errors.
	ErrInvalidState = errors.New("jobqueue: invalid state transition")
	ErrNotRun       = errors.New("jobqueue: job not run")
)
