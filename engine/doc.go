// Package engine wires all cadence subsystems together and provides the
// application-level API for registering and creating work.
//
// The engine package exists to break an import cycle: the root cadence
// package defines Entity and the sentinel errors (imported by job, cron,
// cluster and signal) and therefore cannot import those packages back.
// Engine sits above all subsystem packages and below the application.
//
// # Building an Engine
//
//	p, err := cadence.New(
//	    cadence.WithStore(pgStore),
//	    cadence.WithWorkerTags([]string{"billing"}),
//	)
//
//	eng, err := engine.Build(p,
//	    engine.WithExtension(amqphook.New(ch)),
//	    engine.WithNotifier(redisnotify.New(rdb)),
//	)
//
// # Registering Work
//
//	engine.Register(eng, job.NewDefinition("send-email", sendEmail,
//	    job.WithConcurrency(job.ModeExclusive),
//	))
//	eng.RegisterCron(cron.NewDefinition("nightly", "0 3 * * *", nightly))
//
// # Creating Jobs
//
//	// Queued, picked up by any worker in scope.
//	engine.ScheduleJob(ctx, eng, "send-email", input, time.Time{})
//
//	// Synchronous, executed by the calling process.
//	final, outcome, err := engine.RunJob(ctx, eng, "send-email", input)
//
// # Running
//
// Start (or Processor.Run) registers the worker record, reconciles the
// stored crons with the registered ones and then runs, until the context
// ends, the heartbeat, the kill signal listener, the cron scheduler and
// the claim loop under one errgroup.
//
// # Options
//
//   - [WithExtension]: register a lifecycle extension
//   - [WithMiddleware]: add a middleware to the execution chain
//   - [WithNotifier]: deliver kill signals over an external channel
//   - [WithOnFatal]: observe a lost heartbeat
//   - [WithTracerProvider]: set the OpenTelemetry tracer provider
//   - [WithMeterProvider]: set the OpenTelemetry meter provider
package engine
