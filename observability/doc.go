// Package observability provides an OpenTelemetry metrics extension for
// cadence. The MetricsExtension implements lifecycle hooks to record
// system-wide counters for claims, outcomes, skips, crashes, cron ticks
// and liveness events.
//
// For per-execution tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
