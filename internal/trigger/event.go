package trigger

import (
	json "github.com/goccy/go-json"

	"github.com/roach88/rowclaim/internal/claim"
)

// EventKind tags the terminal event of an activation.
type EventKind string

const (
	// EventClaimed carries the claimed row.
	EventClaimed EventKind = "claimed"
	// EventClaimFailed carries the reason the claim did not take.
	EventClaimFailed EventKind = "claim_failed"
)

// Event is the single notification a trigger activation emits.
type Event struct {
	Kind         EventKind
	Record       claim.Record
	Reason       string
	ActivationID string
	// Polls counts select executions, including the one that found the row.
	Polls int
}

type eventJSON struct {
	Kind         EventKind     `json:"kind"`
	Record       *claim.Record `json:"record,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	ActivationID string        `json:"activation_id,omitempty"`
	Polls        int           `json:"polls"`
}

// MarshalJSON keeps record columns in select order.
func (e Event) MarshalJSON() ([]byte, error) {
	out := eventJSON{
		Kind:         e.Kind,
		Reason:       e.Reason,
		ActivationID: e.ActivationID,
		Polls:        e.Polls,
	}
	if e.Kind == EventClaimed {
		rec := e.Record
		out.Record = &rec
	}
	return json.Marshal(out)
}

// Payload returns the event's content without activation metadata, as plain
// values suitable for canonical encoding.
func (e Event) Payload() map[string]any {
	p := map[string]any{"kind": string(e.Kind)}
	switch e.Kind {
	case EventClaimed:
		p["record"] = e.Record.Map()
	case EventClaimFailed:
		p["reason"] = e.Reason
	}
	return p
}

func eventFrom(out claim.Outcome) Event {
	if out.Kind() == claim.Claimed {
		return Event{Kind: EventClaimed, Record: out.Record()}
	}
	return Event{Kind: EventClaimFailed, Reason: out.Reason()}
}
