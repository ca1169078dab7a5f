// Package store defines the aggregate persistence interface. Each subsystem
// (job, cron, cluster, signal) defines its own store interface. The
// composite Store composes them all. Backends: Postgres, MongoDB, SQLite
// and Memory.
package store

import (
	"context"

	"github.com/xraph/cadence/cluster"
	"github.com/xraph/cadence/cron"
	"github.com/xraph/cadence/job"
	"github.com/xraph/cadence/signal"
)

// Store is the aggregate persistence interface.
// A single backend (postgres, mongo, sqlite, memory) implements all of them.
type Store interface {
	job.Store
	cron.Store
	cluster.Store
	signal.Store

	// Migrate creates collections, tables and indexes.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
