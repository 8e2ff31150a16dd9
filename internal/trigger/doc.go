// Package trigger implements the deferred record-claim trigger.
//
// A Trigger is created from a PollSpec, validated eagerly, and run once by a
// host. Run polls a table with a read query until a candidate row appears,
// tries to claim it with a conditional update, and returns exactly one
// Event: EventClaimed with the row, or EventClaimFailed with a reason.
//
// State machine:
//
//	INITIAL -> POLLING -> (no row) SUSPENDED -> POLLING ...
//	                   -> (row) CLAIMING -> EMITTING_SUCCESS | EMITTING_FAILURE
//	                   -> TERMINATED
//
// Serialize and FromParams let a host persist a trigger as a type identifier
// plus plain parameters and rebuild it after a restart. Rebuilt triggers start
// fresh at INITIAL; no poll counters or partial work survive.
//
// Errors:
//   - *ConfigurationError: the trigger definition cannot work (bad statement,
//     missing id column in the selected row).
//   - *ConnectionError: the connection reference could not be resolved or
//     opened.
//   - anything else from the data source propagates unclassified.
package trigger
