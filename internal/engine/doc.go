// Package engine executes automation tasks and propagates their changes.
//
// The engine receives invocations (derived descriptions of committed
// changes), selects the functions and rules interested in each one, runs
// them and commits their operations through the pipeline. Every commit may
// derive further invocations, which come back to the same queue.
//
// ARCHITECTURE:
//
// Work Queue:
// Invocations wait in an unbounded FIFO queue. Submit never blocks, so a
// commit can hand over any number of cascades.
//
// Workers:
// Run starts a fixed number of worker goroutines. Each invocation is
// processed by exactly one worker, single-threaded: its tasks run one after
// the other and every task commits before the next starts. There is no
// ordering between invocations processed by different workers.
//
// Drain processes the queue on the calling goroutine until it is empty.
// The CLI and tests use it for deterministic runs.
//
// Task Processing Flow:
//  1. A worker dequeues an invocation and stamps it with Clock.Next().
//  2. The root flow's quota is checked (QuotaEnforcer).
//  3. Functions, then rules, are selected from the schema object.
//  4. Each task is checked against the CycleDetector, run, and its
//     operations committed with the invocation as parent.
//  5. The outcome of every task goes to the Notifier.
//
// Failures are logged and processing continues with the next task ("log
// and continue"). Retries are the caller's business.
//
// TERMINATION:
//
// Cycle detection skips a task that would run twice on the same entity
// state within one root flow. The steps quota ends a root flow after
// max_steps invocations. Together they bound every cascade.
package engine
