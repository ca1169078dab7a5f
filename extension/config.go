package extension

import (
	"time"

	"github.com/xraph/cadence"
)

// Config holds configuration for the Cadence Forge extension.
type Config struct {
	// BasePath is the URL prefix for all cadence API routes.
	BasePath string `default:"/api/cadence" json:"base_path"`

	// DisableRoutes disables the registration of HTTP routes.
	DisableRoutes bool `default:"false" json:"disable_routes"`

	// DisableMigrate disables auto-migration on start.
	DisableMigrate bool `default:"false" json:"disable_migrate"`

	// RequireConfig makes Register fail when no config key is present.
	RequireConfig bool `default:"false" json:"require_config"`

	// Cadence holds the processor configuration. Zero fields keep the
	// cadence defaults.
	Cadence cadence.Config `json:"cadence"`
}

// DefaultConfig returns the default extension configuration.
func DefaultConfig() Config {
	return Config{
		BasePath: "/api/cadence",
		Cadence:  cadence.DefaultConfig(),
	}
}

// processorConfig overlays the non-zero fields of c on the cadence defaults.
func processorConfig(c cadence.Config) cadence.Config {
	out := cadence.DefaultConfig()
	setDuration := func(dst *time.Duration, v time.Duration) {
		if v > 0 {
			*dst = v
		}
	}
	setDuration(&out.PollInterval, c.PollInterval)
	setDuration(&out.CronTickInterval, c.CronTickInterval)
	setDuration(&out.HeartbeatInterval, c.HeartbeatInterval)
	setDuration(&out.WorkerTTL, c.WorkerTTL)
	setDuration(&out.CrashGrace, c.CrashGrace)
	setDuration(&out.KillGrace, c.KillGrace)
	setDuration(&out.KillRetryDelay, c.KillRetryDelay)
	setDuration(&out.KillRetryWindow, c.KillRetryWindow)
	setDuration(&out.SignalPollInterval, c.SignalPollInterval)
	setDuration(&out.SignalTTL, c.SignalTTL)
	setDuration(&out.JobRetention, c.JobRetention)
	setDuration(&out.HousekeepingInterval, c.HousekeepingInterval)
	if c.HeartbeatMaxFailures > 0 {
		out.HeartbeatMaxFailures = c.HeartbeatMaxFailures
	}
	if c.ClaimRate > 0 {
		out.ClaimRate = c.ClaimRate
	}
	if c.Timezone != "" {
		out.Timezone = c.Timezone
	}
	if c.WorkerTags != nil {
		out.WorkerTags = c.WorkerTags
	}
	return out
}
