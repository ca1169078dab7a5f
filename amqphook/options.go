package amqphook

import (
	"log/slog"
	"time"
)

// Option configures an Extension.
type Option func(*Extension)

// PayloadFunc builds a custom event payload for a specific event type.
// The args parameter is the default payload and the returned value
// becomes the envelope data.
type PayloadFunc func(args any) (any, error)

// WithExchange sets the exchange events are published on.
func WithExchange(name string) Option {
	return func(h *Extension) { h.exchange = name }
}

// WithEvents restricts the extension to publish only the listed event
// types. By default all event types are enabled. Unknown types are
// silently ignored.
func WithEvents(events ...string) Option {
	return func(h *Extension) {
		h.enabled = make(map[string]bool, len(events))
		for _, e := range events {
			h.enabled[e] = true
		}
	}
}

// WithPayloadFunc registers a custom payload builder for the given event
// type. The function replaces the default JSON payload for that event.
func WithPayloadFunc(eventType string, fn PayloadFunc) Option {
	return func(h *Extension) {
		if h.payloads == nil {
			h.payloads = make(map[string]PayloadFunc)
		}
		h.payloads[eventType] = fn
	}
}

// WithLogger sets the logger for publish failures.
func WithLogger(l *slog.Logger) Option {
	return func(h *Extension) { h.logger = l }
}

// WithClock overrides the envelope timestamp source.
func WithClock(now func() time.Time) Option {
	return func(h *Extension) { h.now = now }
}
