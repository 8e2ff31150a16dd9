// Package harness runs scenario files against a real trigger.
//
// A scenario seeds a scratch SQLite database, defines one trigger and states
// the event its single activation must emit. The harness wraps the trigger's
// connector to record every data source operation (acquire, query, exec,
// commit, rollback, close) and every suspension, so assertions and golden
// files can check not just the outcome but how the trigger reached it: that
// an empty poll wrote nothing, that a failed claim rolled back before the
// event, that the connection was released before suspending.
//
// Suspensions never wait. Statements listed under between_polls run at the
// matching suspension, and before_claim statements run on a separate
// connection after the candidate is selected, which is how a scenario makes
// a competitor win the row.
//
// # Scenario format
//
//	name: empty-then-row
//	description: A row inserted while the trigger is suspended is claimed
//	setup:
//	  - CREATE TABLE orders (id INTEGER PRIMARY KEY, status TEXT)
//	trigger:
//	  select: SELECT id, status FROM orders WHERE status = 'NEW' ORDER BY id
//	  id_column: id
//	  update: UPDATE orders SET status = 'CLAIMED' WHERE id = ? AND status = 'NEW'
//	  interval_seconds: 0.5
//	between_polls:
//	  - after: 1
//	    sql: ["INSERT INTO orders VALUES (7, 'NEW')"]
//	expect:
//	  kind: claimed
//	  record: {id: 7, status: NEW}
//	  polls: 2
//	assertions:
//	  - type: final_state
//	    table: orders
//	    where: {id: 7}
//	    expect: {status: CLAIMED}
package harness
