package extension

import (
	"log/slog"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/ext"
	mw "github.com/xraph/cadence/middleware"
)

// ExtOption configures the Cadence Forge extension.
type ExtOption func(*Extension)

// WithStore sets the persistence backend via a processor option.
func WithStore(s cadence.Storer) ExtOption {
	return func(e *Extension) {
		e.store = s
	}
}

// WithWorkerTags restricts the embedded worker to the given tags.
func WithWorkerTags(tags []string) ExtOption {
	return func(e *Extension) {
		e.procOpts = append(e.procOpts, cadence.WithWorkerTags(tags))
	}
}

// WithExtension registers a cadence lifecycle extension.
func WithExtension(x ext.Extension) ExtOption {
	return func(e *Extension) {
		e.exts = append(e.exts, x)
	}
}

// WithMiddleware adds job middleware to the cadence engine.
func WithMiddleware(m mw.Middleware) ExtOption {
	return func(e *Extension) {
		e.mws = append(e.mws, m)
	}
}

// WithBasePath sets the URL prefix for all cadence routes.
func WithBasePath(path string) ExtOption {
	return func(e *Extension) {
		e.config.BasePath = path
	}
}

// WithConfig sets the extension configuration directly.
func WithConfig(cfg Config) ExtOption {
	return func(e *Extension) {
		e.config = cfg
	}
}

// WithDisableRoutes disables the registration of HTTP routes.
func WithDisableRoutes() ExtOption {
	return func(e *Extension) {
		e.config.DisableRoutes = true
	}
}

// WithDisableMigrate disables auto-migration on start.
func WithDisableMigrate() ExtOption {
	return func(e *Extension) {
		e.config.DisableMigrate = true
	}
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) ExtOption {
	return func(e *Extension) {
		e.config.RequireConfig = require
	}
}

// WithLogger sets the structured logger for the cadence engine.
func WithLogger(l *slog.Logger) ExtOption {
	return func(e *Extension) {
		e.logger = l
	}
}
