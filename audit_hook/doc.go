// Package audithook is a cadence extension that bridges lifecycle events
// to an audit trail backend.
//
// Every job, cron and worker lifecycle hook emits a structured audit event
// through the [Recorder] interface. Severity follows the outcome: info for
// normal transitions, warning for skips, pauses and failed heartbeats,
// critical for errored, killed and crashed jobs.
//
// # Recording to a logger
//
//	audithook.New(audithook.LogRecorder(logger))
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionJobErrored,
//	        audithook.ActionJobCrashed,
//	    ),
//	)
package audithook
