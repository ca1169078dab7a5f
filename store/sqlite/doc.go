// Package sqlite implements store.Store on SQLite using sqlx and
// mattn/go-sqlite3. The schema is the grove migration group Migrations.
//
// Timestamps are stored as INTEGER Unix nanoseconds so comparisons keep
// full precision. The single-writer model of SQLite makes the UPDATE ...
// RETURNING claim atomic without row locks. Push delivery of signals is
// not supported; listeners fall back to polling.
package sqlite
