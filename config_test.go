package cadence_test

import (
	"errors"
	"testing"
	"time"

	"github.com/xraph/cadence"
)

func TestDefaultConfig(t *testing.T) {
	cfg := cadence.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.PollInterval != 45*time.Second {
		t.Errorf("PollInterval = %v, want 45s", cfg.PollInterval)
	}
	if cfg.HeartbeatMaxFailures != 3 {
		t.Errorf("HeartbeatMaxFailures = %d, want 3", cfg.HeartbeatMaxFailures)
	}
	if cfg.CrashGrace != 5*time.Minute {
		t.Errorf("CrashGrace = %v, want 5m", cfg.CrashGrace)
	}
	if cfg.WorkerTags != nil {
		t.Errorf("WorkerTags = %v, want nil", cfg.WorkerTags)
	}

	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	if loc.String() != "Europe/Paris" {
		t.Errorf("Location = %s, want Europe/Paris", loc)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*cadence.Config)
		want   error
	}{
		{"empty worker tags", func(c *cadence.Config) { c.WorkerTags = []string{} }, cadence.ErrEmptyWorkerTags},
		{"zero poll interval", func(c *cadence.Config) { c.PollInterval = 0 }, nil},
		{"negative heartbeat", func(c *cadence.Config) { c.HeartbeatInterval = -time.Second }, nil},
		{"zero max failures", func(c *cadence.Config) { c.HeartbeatMaxFailures = 0 }, nil},
		{"unknown timezone", func(c *cadence.Config) { c.Timezone = "Mars/Olympus" }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := cadence.DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	p, err := cadence.New(
		cadence.WithWorkerTags([]string{"billing"}),
		cadence.WithPollInterval(time.Second),
		cadence.WithTimezone("UTC"),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cfg := p.Config()
	if len(cfg.WorkerTags) != 1 || cfg.WorkerTags[0] != "billing" {
		t.Errorf("WorkerTags = %v", cfg.WorkerTags)
	}
	if cfg.PollInterval != time.Second {
		t.Errorf("PollInterval = %v, want 1s", cfg.PollInterval)
	}
	if p.Logger() == nil {
		t.Error("Logger is nil")
	}

	if _, err := cadence.New(cadence.WithWorkerTags([]string{})); !errors.Is(err, cadence.ErrEmptyWorkerTags) {
		t.Errorf("New(empty tags) = %v, want ErrEmptyWorkerTags", err)
	}
	if _, err := cadence.New(cadence.WithTimezone("Nowhere/Land")); err == nil {
		t.Error("New(bad timezone) succeeded")
	}
}

func TestRunWithoutStore(t *testing.T) {
	p, err := cadence.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Run(t.Context()); !errors.Is(err, cadence.ErrNoStore) {
		t.Errorf("Run = %v, want ErrNoStore", err)
	}
}
