package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionJobScheduled    = "job.scheduled"
	ActionJobClaimed      = "job.claimed"
	ActionJobFinished     = "job.finished"
	ActionJobErrored      = "job.errored"
	ActionJobKilled       = "job.killed"
	ActionJobPaused       = "job.paused"
	ActionJobSkipped      = "job.skipped"
	ActionJobCrashed      = "job.crashed"
	ActionCronTicked      = "cron.ticked"
	ActionHeartbeatFailed = "worker.heartbeat_failed"
	ActionWorkerRecovered = "worker.recovered"
)

// Audit event categories group related actions.
const (
	CategoryJob    = "cadence.job"
	CategoryCron   = "cadence.cron"
	CategoryWorker = "cadence.worker"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceJob    = "job"
	ResourceCron   = "cron"
	ResourceWorker = "worker"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobScheduled,
		ActionJobClaimed,
		ActionJobFinished,
		ActionJobErrored,
		ActionJobKilled,
		ActionJobPaused,
		ActionJobSkipped,
		ActionJobCrashed,
		ActionCronTicked,
		ActionHeartbeatFailed,
		ActionWorkerRecovered,
	}
}
