// Package store is the composite persistence contract of cadence.
//
// Every backend must provide, for each operation, the atomicity described
// on the subsystem interfaces: claims, reclaims and kill transitions are
// single conditional updates, cron advancement is a compare-and-set, and
// exclusive jobs are protected by a partial unique index on (type, name)
// restricted to active statuses.
//
// Backends:
//   - store/memory: process-local, for tests and development
//   - store/postgres: pgx pool, SKIP LOCKED claims, LISTEN/NOTIFY signals
//   - store/mongo: find-and-modify claims, TTL indexes, change streams
//   - store/sqlite: single-host deployments over sqlx
package store
