// Package signal propagates kill requests to the process executing a job.
//
// A kill of a job that is pending or paused is a plain conditional write.
// A kill of a running job raises the in-process cancellation token of the
// owning process: directly when the owner is the calling process, otherwise
// through a durable [Signal] record addressed to the owner. Each process
// runs a [Listener] that receives signals addressed to it, preferably
// through a push [Subscriber] (change streams, LISTEN/NOTIFY, Pub/Sub) and
// otherwise by polling.
package signal
