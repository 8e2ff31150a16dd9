package trigger

import "fmt"

// State is a point in a trigger's lifecycle.
type State int

const (
	StateInitial State = iota
	StatePolling
	StateSuspended
	StateClaiming
	StateEmittingSuccess
	StateEmittingFailure
	StateTerminated
)

var stateNames = [...]string{
	StateInitial:         "INITIAL",
	StatePolling:         "POLLING",
	StateSuspended:       "SUSPENDED",
	StateClaiming:        "CLAIMING",
	StateEmittingSuccess: "EMITTING_SUCCESS",
	StateEmittingFailure: "EMITTING_FAILURE",
	StateTerminated:      "TERMINATED",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}
