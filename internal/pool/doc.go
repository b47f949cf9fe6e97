// Package pool runs tasks on a bounded set of worker goroutines.
//
// A Pool keeps CoreSize standing workers and grows to MaxSize under load.
// Submission follows a fixed order:
//   - fewer than CoreSize workers: start a new worker for the task
//   - otherwise offer the task to the task queue without blocking
//   - if the queue refuses and fewer than MaxSize workers exist: start one
//   - otherwise reject with ErrRejected
//
// QueueCapacity 0 selects rendezvous hand-off: the task queue has no buffer,
// so a task is only queued when an idle worker is already waiting for it.
// It does NOT mean an unbounded queue. A positive capacity buffers up to that
// many tasks.
//
// Workers above CoreSize retire after KeepAlive without work.
//
// Shutdown stops intake, lets running and queued tasks finish, and after the
// timeout cancels the task context and abandons everything outstanding.
// Futures of abandoned tasks never complete, so their continuations never run.
package pool
