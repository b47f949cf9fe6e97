// Package sender decouples Bot API command producers from the remote calls.
//
// Producers hand commands to Submit (or Offer) from any goroutine. Commands
// wait in a bounded FIFO queue; a single dispatch loop drains it and hands
// each command to the executor pool. When a command carries a callback, the
// callback is chained onto the execution and runs on the separate callback
// pool once execution completes, successfully or not.
//
// Key properties:
//   - Enqueue waits at most Sender.EnqueueTimeout for room, then drops
//   - One dispatch loop per Sender, so hand-off to the executor is FIFO
//   - Execution happens at most once per accepted command, never retried
//   - The loop never waits on execution, callbacks or the journal
//   - Slow callbacks cannot exhaust executor capacity and vice versa
//
// Lifecycle: NEW -> STARTING -> RUNNING -> STOPPING -> TERMINATED. Stop does
// not drain the queue: commands still queued when it is called are discarded.
// Each pool gets Sender.ShutdownTimeout to finish in-flight work before it is
// forcibly terminated and its outstanding work abandoned.
//
// Error handling:
//   - Queue full past the timeout, caller context done, not running → dropped
//   - Executor saturated → rejected
//   - Execution error or panic → failed, callback still runs with Result.Err
//   - Callback panic → logged, isolated to the callback pool
//
// Every outcome is logged and, when configured, journaled and published.
// Journal writes happen on a single background writer; when its backlog is
// full the entry is dropped and logged rather than stalling a producer.
package sender
