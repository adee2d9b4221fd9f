// Package async provides panic-safe concurrent execution primitives for
// background work: the sync event consumers and the periodic
// reconciliation sweep.
//
// SafeGo runs a single function in a goroutine with panic recovery and a
// per-task timeout. WorkerPool runs a fixed set of consumers over a task
// channel with graceful draining on shutdown.
package async
