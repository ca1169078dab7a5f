package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/engine"
)

var (
	cfgFile string
	v       = newViper()
	cfg     *settings
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cadence",
	Short: "Administer a cadence job processor deployment",
	Long: `cadence administers the shared store of a cadence deployment.

Every setting can also be given as a CADENCE_ environment variable
(CADENCE_STORE, CADENCE_DSN, CADENCE_POLL_INTERVAL, ...) or in a config
file passed with --config. A .env file in the working directory is loaded
first.

Examples:
  cadence migrate --store postgres --dsn postgres://localhost/cadence
  cadence status
  cadence kill job_01h2xcejqtf2nbrexx3vqjhp41
  cadence serve --listen :8080`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		s, err := loadSettings(v, cfgFile)
		if err != nil {
			return err
		}
		cfg = s
		logger = newLogger(os.Stderr, s.LogLevel, s.LogFormat)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")
	flags.String("store", "postgres", "store backend: memory, postgres, sqlite or mongo")
	flags.String("dsn", "", "store connection string (sqlite: file path)")
	flags.String("mongo-database", "cadence", "mongo database name")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-format", "console", "log format: console or json")
	flags.String("redis-url", "", "redis URL for pushed kill signals (optional)")
	flags.String("timezone", cadence.DefaultConfig().Timezone, "IANA timezone cron expressions run in")

	bindFlags(v, flags, map[string]string{
		"store":          "store",
		"dsn":            "dsn",
		"mongo-database": "mongo_database",
		"log-level":      "log_level",
		"log-format":     "log_format",
		"redis-url":      "redis_url",
		"timezone":       "timezone",
	})

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(healthcheckCmd)
	rootCmd.AddCommand(killCmd)
	rootCmd.AddCommand(serveCmd)
}

// bindFlags binds each flag to its viper key.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for flag, key := range keys {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}
}

// session is an opened store with a built engine.
type session struct {
	eng   *engine.Engine
	close func() error
}

// openSession opens the configured store and builds an engine on it.
// The engine is not started.
func openSession(ctx context.Context, opts ...engine.Option) (*session, error) {
	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	p, err := cadence.New(
		cadence.WithConfig(cfg.processorConfig()),
		cadence.WithLogger(logger),
		cadence.WithStore(st),
	)
	if err != nil {
		_ = closeStore()
		return nil, err
	}

	eng, err := engine.Build(p, opts...)
	if err != nil {
		_ = closeStore()
		return nil, err
	}

	return &session{eng: eng, close: closeStore}, nil
}
