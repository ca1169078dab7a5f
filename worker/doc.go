// Package worker provides the job execution engine: an Executor that runs
// one claimed job through middleware and its handler and finalizes it, a
// CrashDetector that reclaims jobs orphaned by dead workers, and a
// Processor that loops crash detection, claim and execution.
package worker
