// Package cluster tracks which worker processes are alive.
//
// Each process registers a [Worker] record and refreshes its last-seen time
// on a fixed interval through [Heartbeat]. A record that is not refreshed
// within the worker TTL expires, and jobs still running under its ID become
// eligible for crash reclamation.
//
// A dedicated worker process treats repeated heartbeat failures as fatal:
// another process may already have declared it dead and reclaimed its jobs.
// A process that only runs jobs inline uses [InlineHeartbeat], which
// recreates a lost record instead and runs only while inline calls are in
// flight.
package cluster
