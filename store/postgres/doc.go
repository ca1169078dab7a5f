// Package postgres implements store.Store on PostgreSQL using pgx/v5.
// The schema is the grove migration group Migrations.
//
// Exclusivity is enforced by a partial unique index, claims use
// FOR UPDATE SKIP LOCKED and kill signals are pushed with LISTEN/NOTIFY.
package postgres
