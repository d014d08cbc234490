// Package tracker implements the asynchronous resource-mutation tracking
// engine at the heart of opwatch.
//
// # Overview
//
// The tracker submits create/update/delete requests against a remote,
// eventually-consistent control plane, follows each request's long-running
// progress by polling, and delivers terminal-state notifications to
// subscribers exactly once, without blocking the submitting caller.
//
// The engine is built from four pieces:
//
//   - MutationState: the immutable value for one in-flight mutation
//   - MutationQueue: the thread-safe collection of tracked mutations
//   - PollScheduler: the self-rescheduling timer driving polling passes
//   - Tracker: the façade exposing submission, inspection and subscription
//
// # Polling model
//
// One polling pass runs at a time on a background goroutine, with a fixed
// delay between passes. A pass works from a snapshot of the queue, issues one
// status call per tracked item, publishes a state change only when the
// derived state differs from the previous one, and removes items that reached
// a terminal status. When the queue drains, the scheduler goes idle until the
// next submission.
//
// # Error classification
//
// Errors fall into three classes that decide control flow rather than just
// describing failure:
//
//   - submission: the initial mutating call failed; surfaced to the caller,
//     never enters the queue
//   - unrecoverable: the progress token is no longer resolvable; tracking
//     ends with a single terminal Failed publication
//   - transient: any other poll failure; retried silently on the next pass
//
// # Ordering guarantees
//
// Subscribers see per-token state changes in transition order, never
// concurrently, because only the single pass goroutine publishes. No ordering
// is guaranteed across different tokens.
//
// # Lifecycle
//
// Tracking state is in-memory only. Close stops future passes and abandons
// anything still pending; after a restart the control plane is the only
// authority on outcomes.
package tracker
