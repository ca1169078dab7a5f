package cadence

import (
	"fmt"
	"time"

	// Embedded zone database so cron schedules resolve in minimal images.
	_ "time/tzdata"
)

// Config holds configuration for the Processor.
type Config struct {
	// PollInterval is how long the processor sleeps when no job could be
	// claimed.
	PollInterval time.Duration

	// CronTickInterval is how often the cron scheduler looks for due crons.
	CronTickInterval time.Duration

	// HeartbeatInterval is how often a worker refreshes its liveness record.
	HeartbeatInterval time.Duration

	// HeartbeatMaxFailures is the number of consecutive failed heartbeats
	// tolerated before the worker gives up (worker mode) or recreates its
	// record (inline mode).
	HeartbeatMaxFailures int

	// WorkerTTL is how long a worker record stays live without a heartbeat.
	WorkerTTL time.Duration

	// CrashGrace is how long a job must have been running before a missing
	// owner is treated as a crash.
	CrashGrace time.Duration

	// KillGrace bounds how long the executor waits for a killed handler to
	// return before finalizing the job as killed.
	KillGrace time.Duration

	// KillRetryDelay is the delay between lookups of a local kill token that
	// is not registered yet.
	KillRetryDelay time.Duration

	// KillRetryWindow bounds how long a local kill keeps retrying.
	KillRetryWindow time.Duration

	// SignalPollInterval is how often the fallback signal poller runs.
	SignalPollInterval time.Duration

	// SignalTTL is how long kill signals are kept.
	SignalTTL time.Duration

	// JobRetention is how long ended jobs are kept before purge.
	JobRetention time.Duration

	// HousekeepingInterval is how often retention purges run. Zero disables
	// purging from the processor loop.
	HousekeepingInterval time.Duration

	// ClaimRate limits claims per second. Zero means unlimited.
	ClaimRate float64

	// Timezone is the IANA location cron expressions are evaluated in.
	Timezone string

	// WorkerTags restricts which definitions this process executes.
	// Nil means every definition.
	WorkerTags []string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:         45 * time.Second,
		CronTickInterval:     60 * time.Second,
		HeartbeatInterval:    30 * time.Second,
		HeartbeatMaxFailures: 3,
		WorkerTTL:            300 * time.Second,
		CrashGrace:           5 * time.Minute,
		KillGrace:            10 * time.Second,
		KillRetryDelay:       1 * time.Second,
		KillRetryWindow:      30 * time.Second,
		SignalPollInterval:   60 * time.Second,
		SignalTTL:            1 * time.Hour,
		JobRetention:         90 * 24 * time.Hour,
		HousekeepingInterval: 1 * time.Hour,
		Timezone:             "Europe/Paris",
	}
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("cadence: load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.WorkerTags != nil && len(c.WorkerTags) == 0 {
		return ErrEmptyWorkerTags
	}
	if c.PollInterval <= 0 || c.CronTickInterval <= 0 || c.HeartbeatInterval <= 0 {
		return fmt.Errorf("cadence: intervals must be positive")
	}
	if c.HeartbeatMaxFailures <= 0 {
		return fmt.Errorf("cadence: heartbeat max failures must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
