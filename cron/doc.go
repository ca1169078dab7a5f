// Package cron provides leaderless cron scheduling.
//
// Every process runs the same scheduler against the shared store. A cron is
// persisted once per name as a job record of type cron whose scheduled_for
// is the next fire time. On each tick a process computes the following fire
// time and advances the record with a compare-and-set on the previous
// value; only the process that wins the swap creates the cron task. Any
// number of processes therefore fire each occurrence at most once, without
// locks or leader election.
//
// # Registering a Cron
//
//	def := cron.NewDefinition("daily-report", "0 9 * * *",
//	    func(ctx context.Context) (any, error) { return report.Build(ctx) },
//	    job.WithConcurrency(job.ModeExclusive),
//	)
//	eng.RegisterCron(def)
//
// # Initialization
//
// [Scheduler.Init] reconciles the stored crons with the registered
// definitions at startup: removed crons and their pending tasks are
// deleted, changed expressions reset the schedule, and duplicates created
// by concurrent first boots are swept.
package cron
