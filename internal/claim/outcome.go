package claim

import "fmt"

// OutcomeKind tags an Outcome.
type OutcomeKind int

const (
	// NoCandidate means the select returned no rows; nothing was written.
	NoCandidate OutcomeKind = iota
	// Claimed means the update affected exactly one row and was committed.
	Claimed
	// ClaimFailed means the update affected some other number of rows and
	// was rolled back.
	ClaimFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case NoCandidate:
		return "no_candidate"
	case Claimed:
		return "claimed"
	case ClaimFailed:
		return "claim_failed"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the result of one poll cycle.
type Outcome struct {
	kind   OutcomeKind
	record Record
	reason string
}

// None returns the NoCandidate outcome.
func None() Outcome {
	return Outcome{kind: NoCandidate}
}

// ClaimedRecord returns a Claimed outcome carrying the record.
func ClaimedRecord(r Record) Outcome {
	return Outcome{kind: Claimed, record: r}
}

// Failed returns a ClaimFailed outcome carrying a diagnostic reason.
func Failed(reason string) Outcome {
	return Outcome{kind: ClaimFailed, reason: reason}
}

// Kind returns the outcome tag.
func (o Outcome) Kind() OutcomeKind { return o.kind }

// Record returns the claimed record; zero unless Kind is Claimed.
func (o Outcome) Record() Record { return o.record }

// Reason returns the failure reason; empty unless Kind is ClaimFailed.
func (o Outcome) Reason() string { return o.reason }

func (o Outcome) String() string {
	switch o.kind {
	case Claimed:
		return "claimed " + o.record.String()
	case ClaimFailed:
		return o.reason
	default:
		return o.kind.String()
	}
}
