// Package cadence provides the coordination core of a distributed job and
// cron processor. Any number of identical processes share one store and
// cooperatively execute one-off jobs and recurring cron tasks without a
// central coordinator.
//
// Cadence is designed as a library, not a service. Import it, configure a
// store, and register jobs or crons as ordinary Go functions.
//
// # Quick Start
//
//	p, err := cadence.New(
//	    cadence.WithStore(pgStore),
//	    cadence.WithWorkerTags([]string{"billing"}),
//	)
//	eng, err := engine.Build(p)
//	engine.Register(eng, job.NewDefinition("send-email", sendEmail))
//	eng.RegisterCron(cron.NewDefinition("nightly", "0 9 * * *", nightly))
//	err = eng.Start(ctx)
//
// # Architecture
//
// Every correctness property relies on the store's atomic conditional
// writes: claims are single find-and-modify operations, cron ticks are
// compare-and-set on the previous fire time, and exclusive jobs are guarded
// by a partial unique index. Each subsystem (job, cron, cluster, signal)
// defines its own store interface and a single backend implements all of
// them.
//
// All entity IDs are type-prefixed, K-sortable, UUIDv7-based identifiers.
package cadence
