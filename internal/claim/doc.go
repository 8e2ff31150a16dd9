// Package claim holds the two leaf steps of a poll: Select reads the next
// candidate row, Commit tries to take it with a conditional update.
//
// Outcome is the tagged result that drives the single terminal event of an
// activation: NoCandidate, Claimed(record) or ClaimFailed(reason).
package claim
