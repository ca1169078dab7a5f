// Package job defines the job entity, its state machine, typed definitions,
// the definition registry, the concurrency guard and the store interface.
//
// # Job Entity
//
// A [Job] is a tagged union over three record types, discriminated by
// [Job.Type]:
//
//   - [TypeSimple]: a one-off job with a JSON payload
//   - [TypeCron]: the persistent record of a recurring schedule
//   - [TypeCronTask]: one firing of a cron
//
// Simple jobs and cron tasks are executable and progress through:
//
//	pending → running → finished | errored | killed | paused
//	paused  → running
//	(conflict) → skipped
//
// Cron records stay in [StatusActive].
//
// # Defining a Job
//
// Use [Definition] with a typed handler. The payload is JSON-serialized
// at creation time and deserialized before the handler runs:
//
//	var SendEmail = job.NewDefinition("send_email",
//	    func(ctx context.Context, input EmailInput) (any, error) {
//	        return nil, mailer.Send(input.To, input.Subject, input.Body)
//	    },
//	    job.WithConcurrency(job.ModeExclusive),
//	)
//
// # Exclusivity
//
// A definition in [ModeExclusive] has at most one active (pending, running
// or paused) instance at a time. The store enforces it with a unique
// constraint and [Guard] turns a violation into a skipped record.
package job
