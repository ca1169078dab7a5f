// Package mongo implements store.Store on the official MongoDB Go driver.
//
// Jobs, crons and cron tasks share one collection. Exclusivity is enforced
// by two partial unique indexes on (type, name) restricted to active
// exclusive records, so a conflicting insert fails with a duplicate key
// error that the store reports as cadence.ErrActiveConflict. Ended jobs,
// silent workers and old signals expire through TTL indexes.
//
// The store also implements signal.Subscriber with change streams. They
// require a replica set; against a standalone server SubscriptionSupported
// reports false and listeners poll.
//
// The caller owns the client lifecycle -- mongo never disconnects it:
//
//	client, _ := mongodriver.Connect(options.Client().ApplyURI(uri))
//	s := mongo.New(client.Database("cadence"))
//	s.Migrate(ctx)
package mongo
