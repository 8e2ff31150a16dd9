package host

import "sync/atomic"

// Sequencer stamps store rows with a strictly increasing seq.
type Sequencer interface {
	Next() int64
}

// Clock is a monotonic logical clock. Submission order and event order are
// both read from seq, never from wall time.
//
// Thread-safety: Clock is safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClockAt creates a clock whose next value is start+1. Open uses it to
// resume after the highest seq already stored.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
