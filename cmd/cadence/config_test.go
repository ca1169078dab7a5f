package main

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/xraph/cadence"
)

func TestSettingsDefaults(t *testing.T) {
	s, err := loadSettings(newViper(), "")
	if err != nil {
		t.Fatalf("loadSettings: %v", err)
	}
	if s.Store != "postgres" || s.Listen != ":8080" || s.LogFormat != "console" {
		t.Errorf("settings = %+v", s)
	}

	got := s.processorConfig()
	want := cadence.DefaultConfig()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("processorConfig() = %+v, want %+v", got, want)
	}
}

func TestSettingsEnvironment(t *testing.T) {
	t.Setenv("CADENCE_STORE", "sqlite")
	t.Setenv("CADENCE_POLL_INTERVAL", "5s")
	t.Setenv("CADENCE_CLAIM_RATE", "2.5")
	t.Setenv("CADENCE_TIMEZONE", "UTC")

	s, err := loadSettings(newViper(), "")
	if err != nil {
		t.Fatalf("loadSettings: %v", err)
	}
	if s.Store != "sqlite" {
		t.Errorf("Store = %q, want sqlite", s.Store)
	}

	c := s.processorConfig()
	if c.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, want 5s", c.PollInterval)
	}
	if c.ClaimRate != 2.5 {
		t.Errorf("ClaimRate = %v, want 2.5", c.ClaimRate)
	}
	if c.Timezone != "UTC" {
		t.Errorf("Timezone = %q, want UTC", c.Timezone)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cadence.yaml")
	content := strings.Join([]string{
		"store: mongo",
		"dsn: mongodb://localhost:27017",
		"mongo_database: jobs",
		"kill_grace: 30s",
		"worker_tags: [reports, billing]",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	s, err := loadSettings(newViper(), path)
	if err != nil {
		t.Fatalf("loadSettings: %v", err)
	}
	if s.Store != "mongo" || s.MongoDatabase != "jobs" {
		t.Errorf("settings = %+v", s)
	}

	c := s.processorConfig()
	if c.KillGrace != 30*time.Second {
		t.Errorf("KillGrace = %v, want 30s", c.KillGrace)
	}
	if !reflect.DeepEqual(c.WorkerTags, []string{"reports", "billing"}) {
		t.Errorf("WorkerTags = %v", c.WorkerTags)
	}
}

func TestSettingsMissingFile(t *testing.T) {
	_, err := loadSettings(newViper(), filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestOpenStoreErrors(t *testing.T) {
	tests := []struct {
		name string
		s    settings
	}{
		{"unknown", settings{Store: "cassandra"}},
		{"postgres without dsn", settings{Store: "postgres"}},
		{"sqlite without dsn", settings{Store: "sqlite"}},
		{"mongo without dsn", settings{Store: "mongo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := openStore(t.Context(), &tt.s, newLogger(&bytes.Buffer{}, "info", "console"))
			if err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"debug":   "DEBUG",
		"WARN":    "WARN",
		"warning": "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"verbose": "INFO",
	}
	for in, want := range cases {
		if got := parseLevel(in).String(); got != want {
			t.Errorf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
