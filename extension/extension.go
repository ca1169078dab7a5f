// Package extension provides the Forge extension adapter for Cadence.
//
// It implements the forge.Extension interface so a Forge application can
// embed a cadence worker: the engine is built on Register, published in
// the DI container, migrated and started on Start and drained on Stop.
//
// Configuration can be provided programmatically via ExtOption functions
// or via YAML configuration files under "extensions.cadence" or "cadence" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/engine"
	"github.com/xraph/cadence/ext"
	mw "github.com/xraph/cadence/middleware"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "cadence"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Distributed job and cron processor with crash detection and kill signals"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Cadence as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config   Config
	eng      *engine.Engine
	store    cadence.Storer
	logger   *slog.Logger
	procOpts []cadence.Option
	exts     []ext.Extension
	mws      []mw.Middleware

	// cancel stops the engine started by Start; done is closed with its
	// result once Start's goroutine returns.
	cancel context.CancelFunc
	done   chan error
}

// New creates a Cadence Forge extension with the given options.
func New(opts ...ExtOption) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying cadence engine.
// This is nil until Register is called.
func (e *Extension) Engine() *engine.Engine { return e.eng }

// Config returns the resolved configuration.
func (e *Extension) Config() Config { return e.config }

// Register implements [forge.Extension]. It builds the engine, registers
// HTTP routes unless disabled and provides the engine to the container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.init(fapp); err != nil {
		return err
	}

	// Register the engine in the DI container so other extensions can use it.
	if err := vessel.Provide(fapp.Container(), func() (*engine.Engine, error) {
		return e.eng, nil
	}); err != nil {
		return fmt.Errorf("cadence: register engine in container: %w", err)
	}

	return nil
}

// init builds the processor and engine.
func (e *Extension) init(fapp forge.App) error {
	if e.store == nil {
		return cadence.ErrNoStore
	}

	logger := e.logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := make([]cadence.Option, 0, len(e.procOpts)+3)
	opts = append(opts,
		cadence.WithConfig(processorConfig(e.config.Cadence)),
		cadence.WithStore(e.store),
		cadence.WithLogger(logger),
	)
	opts = append(opts, e.procOpts...)

	p, err := cadence.New(opts...)
	if err != nil {
		return fmt.Errorf("cadence: create processor: %w", err)
	}

	engOpts := make([]engine.Option, 0, len(e.exts)+len(e.mws)+1)
	engOpts = append(engOpts, engine.WithMetricFactory(fapp.Metrics()))
	for _, x := range e.exts {
		engOpts = append(engOpts, engine.WithExtension(x))
	}
	for _, m := range e.mws {
		engOpts = append(engOpts, engine.WithMiddleware(m))
	}

	e.eng, err = engine.Build(p, engOpts...)
	if err != nil {
		return fmt.Errorf("cadence: build engine: %w", err)
	}

	if !e.config.DisableRoutes {
		e.RegisterRoutes(fapp.Router())
	}
	return nil
}

// Start runs auto-migration if enabled and starts the engine in the
// background. Jobs and crons must be registered on Engine() before Start.
func (e *Extension) Start(ctx context.Context) error {
	if e.eng == nil {
		return errors.New("cadence: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.eng.Store().Migrate(ctx); err != nil {
			return fmt.Errorf("cadence: migration failed: %w", err)
		}
	}

	// The engine outlives the start context.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan error, 1)
	go func() {
		err := e.eng.Start(runCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			e.Logger().Error("cadence: engine stopped", forge.F("error", err.Error()))
		}
		done <- err
	}()
	e.cancel = cancel
	e.done = done

	e.MarkStarted()
	return nil
}

// Stop cancels the engine and waits for it to drain, or for ctx.
func (e *Extension) Stop(ctx context.Context) error {
	if e.cancel == nil {
		e.MarkStopped()
		return nil
	}
	e.cancel()

	var err error
	select {
	case err = <-e.done:
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	case <-ctx.Done():
		err = ctx.Err()
	}
	e.cancel = nil
	e.MarkStopped()
	return err
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.eng == nil {
		return errors.New("cadence: extension not initialized")
	}
	return e.eng.Store().Ping(ctx)
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("cadence: configuration is required but not found in config files; " +
				"ensure 'extensions.cadence' or 'cadence' key exists in your config")
		}
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("cadence: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("base_path", e.config.BasePath),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.cadence", "cadence"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("cadence: loaded config from file", forge.F("key", key))
			return cfg, true
		}
		e.Logger().Warn("cadence: failed to bind config", forge.F("key", key))
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	if cfg.BasePath == "" {
		cfg.BasePath = DefaultConfig().BasePath
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if yamlConfig.BasePath == "" && programmaticConfig.BasePath != "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}
	return e.mergeWithDefaults(yamlConfig)
}
