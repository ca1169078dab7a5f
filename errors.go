package cadence

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("cadence: no store configured")
	ErrStoreClosed     = errors.New("cadence: store closed")
	ErrMigrationFailed = errors.New("cadence: migration failed")

	// Not found errors.
	ErrJobNotFound        = errors.New("cadence: job not found")
	ErrCronNotFound       = errors.New("cadence: cron not found")
	ErrWorkerNotFound     = errors.New("cadence: worker not found")
	ErrSignalNotFound     = errors.New("cadence: signal not found")
	ErrDefinitionNotFound = errors.New("cadence: definition not found")

	// Conflict errors.
	ErrActiveConflict  = errors.New("cadence: an exclusive job with the same name is already active")
	ErrDuplicateWorker = errors.New("cadence: duplicate worker")

	// State errors.
	ErrInvalidState = errors.New("cadence: invalid state transition")

	// Configuration errors.
	ErrEmptyWorkerTags = errors.New("cadence: worker tags should not be empty")
	ErrInvalidSchedule = errors.New("cadence: invalid cron schedule")

	// Liveness errors.
	ErrWorkerDied = errors.New("cadence: worker has been detected as died")
)
