package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xraph/cadence"
)

// settings is the CLI configuration. Every key can be set in the config
// file, as a CADENCE_ environment variable or, for the common ones, as a
// flag.
type settings struct {
	Store         string `mapstructure:"store"`
	DSN           string `mapstructure:"dsn"`
	MongoDatabase string `mapstructure:"mongo_database"`
	RedisURL      string `mapstructure:"redis_url"`
	AMQPURL       string `mapstructure:"amqp_url"`
	AMQPExchange  string `mapstructure:"amqp_exchange"`
	Listen        string `mapstructure:"listen"`
	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`

	PollInterval         time.Duration `mapstructure:"poll_interval"`
	CronTickInterval     time.Duration `mapstructure:"cron_tick_interval"`
	HeartbeatInterval    time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatMaxFailures int           `mapstructure:"heartbeat_max_failures"`
	WorkerTTL            time.Duration `mapstructure:"worker_ttl"`
	CrashGrace           time.Duration `mapstructure:"crash_grace"`
	KillGrace            time.Duration `mapstructure:"kill_grace"`
	KillRetryDelay       time.Duration `mapstructure:"kill_retry_delay"`
	KillRetryWindow      time.Duration `mapstructure:"kill_retry_window"`
	SignalPollInterval   time.Duration `mapstructure:"signal_poll_interval"`
	SignalTTL            time.Duration `mapstructure:"signal_ttl"`
	JobRetention         time.Duration `mapstructure:"job_retention"`
	HousekeepingInterval time.Duration `mapstructure:"housekeeping_interval"`
	ClaimRate            float64       `mapstructure:"claim_rate"`
	Timezone             string        `mapstructure:"timezone"`
	WorkerTags           []string      `mapstructure:"worker_tags"`
}

// newViper returns a viper instance reading CADENCE_ variables with the
// processor defaults applied.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("CADENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	d := cadence.DefaultConfig()
	v.SetDefault("store", "postgres")
	v.SetDefault("dsn", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("amqp_url", "")
	v.SetDefault("worker_tags", []string{})
	v.SetDefault("mongo_database", "cadence")
	v.SetDefault("amqp_exchange", "cadence.events")
	v.SetDefault("listen", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("poll_interval", d.PollInterval)
	v.SetDefault("cron_tick_interval", d.CronTickInterval)
	v.SetDefault("heartbeat_interval", d.HeartbeatInterval)
	v.SetDefault("heartbeat_max_failures", d.HeartbeatMaxFailures)
	v.SetDefault("worker_ttl", d.WorkerTTL)
	v.SetDefault("crash_grace", d.CrashGrace)
	v.SetDefault("kill_grace", d.KillGrace)
	v.SetDefault("kill_retry_delay", d.KillRetryDelay)
	v.SetDefault("kill_retry_window", d.KillRetryWindow)
	v.SetDefault("signal_poll_interval", d.SignalPollInterval)
	v.SetDefault("signal_ttl", d.SignalTTL)
	v.SetDefault("job_retention", d.JobRetention)
	v.SetDefault("housekeeping_interval", d.HousekeepingInterval)
	v.SetDefault("claim_rate", d.ClaimRate)
	v.SetDefault("timezone", d.Timezone)
	return v
}

// loadSettings reads the optional config file and decodes every source.
func loadSettings(v *viper.Viper, configFile string) (*settings, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var s settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &s, nil
}

// processorConfig maps the settings onto a cadence.Config.
func (s *settings) processorConfig() cadence.Config {
	c := cadence.DefaultConfig()
	c.PollInterval = s.PollInterval
	c.CronTickInterval = s.CronTickInterval
	c.HeartbeatInterval = s.HeartbeatInterval
	c.HeartbeatMaxFailures = s.HeartbeatMaxFailures
	c.WorkerTTL = s.WorkerTTL
	c.CrashGrace = s.CrashGrace
	c.KillGrace = s.KillGrace
	c.KillRetryDelay = s.KillRetryDelay
	c.KillRetryWindow = s.KillRetryWindow
	c.SignalPollInterval = s.SignalPollInterval
	c.SignalTTL = s.SignalTTL
	c.JobRetention = s.JobRetention
	c.HousekeepingInterval = s.HousekeepingInterval
	c.ClaimRate = s.ClaimRate
	c.Timezone = s.Timezone
	if len(s.WorkerTags) > 0 {
		c.WorkerTags = s.WorkerTags
	}
	return c
}
