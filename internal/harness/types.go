package harness

import (
	"github.com/roach88/rowclaim/internal/trigger"
)

// Trace operations, in the order a trigger performs them.
const (
	OpAcquire  = "acquire"
	OpQuery    = "query"
	OpExec     = "exec"
	OpCommit   = "commit"
	OpRollback = "rollback"
	OpClose    = "close"
	OpSleep    = "sleep"
	// OpExternal is a statement the scenario runs outside the trigger's
	// connection, between polls or just before the claim update.
	OpExternal = "external"
)

// TraceEvent is one data source operation observed during a scenario.
type TraceEvent struct {
	Seq       int64   `json:"seq"`
	Op        string  `json:"op"`
	Statement string  `json:"statement,omitempty"`
	Args      []any   `json:"args,omitempty"`
	Rows      int     `json:"rows,omitempty"`     // rows fetched by a query
	Affected  int64   `json:"affected,omitempty"` // rows affected by an exec
	Seconds   float64 `json:"seconds,omitempty"`  // requested suspension
	Error     string  `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when the event matched the expect clause and every
	// assertion held.
	Pass bool `json:"pass"`

	// Event is the activation's terminal event; nil when Run returned an
	// error instead.
	Event *trigger.Event `json:"event,omitempty"`

	// RunError is the activation error, if any.
	RunError string `json:"run_error,omitempty"`

	// Trace holds every operation in order.
	Trace []TraceEvent `json:"trace"`

	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Count returns how many trace events have the given op.
func (r *Result) Count(op string) int {
	n := 0
	for _, ev := range r.Trace {
		if ev.Op == op {
			n++
		}
	}
	return n
}
