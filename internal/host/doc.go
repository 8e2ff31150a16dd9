// Package host is a reference runtime for deferred triggers.
//
// It plays the part a workflow scheduler plays for the trigger: it stores
// serialized triggers, rebuilds them after restarts, runs them, and records
// the one event each emits.
//
// # Store
//
//   - triggers: type_id + canonical JSON params, content hash, status
//     (pending, running, done, failed), attempt count, last error
//   - trigger_events: one row per finished trigger, payload as JSON
//   - All ordering uses seq INTEGER from a logical clock, never timestamps
//   - A pending or running trigger is unique by content hash, so repeated
//     submission of the same definition is idempotent
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// # Runner
//
// The Runner rebuilds each pending trigger through a Registry keyed by type
// identifier, runs it on a conc worker pool, retries connection errors with
// exponential backoff, and reports counters through OpenTelemetry.
package host
