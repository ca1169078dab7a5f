// Package ext defines the extension system for cadence.
//
// Extensions are notified of lifecycle events and can react to them:
// recording metrics, publishing to a broker, writing audit logs.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnJobFinished(ctx context.Context, j *job.Job, elapsed time.Duration) error {
//	    log.Printf("job %s finished in %s", j.ID, elapsed)
//	    return nil
//	}
//
// # Job Lifecycle Hooks
//
//   - [JobScheduled]: a job record was created
//   - [JobClaimed]: this process claimed a job and is about to run it
//   - [JobFinished]: the handler returned successfully
//   - [JobErrored]: the handler failed or the job was interrupted
//   - [JobKilled]: a running job was killed
//   - [JobPaused]: a resumable job was interrupted by shutdown
//   - [JobSkipped]: an exclusive job was skipped on conflict
//   - [JobCrashed]: a job orphaned by a dead worker was reclaimed
//
// # Other Hooks
//
//   - [CronTicked]: a cron fired and created its task
//   - [HeartbeatFailed]: a liveness heartbeat failed
//   - [WorkerRecovered]: an inline worker recreated its lost record
//   - [Shutdown]: the process is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface.
package ext
