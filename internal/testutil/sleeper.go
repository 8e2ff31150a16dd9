package testutil

import (
	"context"
	"sync"
	"time"
)

// RecordingSleeper records requested suspensions and returns immediately.
//
// OnSleep, when set, runs before each suspension with the 1-based number of
// that suspension; a scenario uses it to change the table between polls. A
// non-nil error from OnSleep is returned from Sleep.
//
// Sleep honours cancellation: a cancelled context returns ctx.Err() both
// before and after the hook runs.
type RecordingSleeper struct {
	OnSleep func(n int) error

	mu    sync.Mutex
	calls []time.Duration
}

// Sleep records d and returns without waiting.
func (s *RecordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.calls = append(s.calls, d)
	n := len(s.calls)
	hook := s.OnSleep
	s.mu.Unlock()

	if hook != nil {
		if err := hook(n); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// Calls returns the durations passed to Sleep, in order.
func (s *RecordingSleeper) Calls() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.calls))
	copy(out, s.calls)
	return out
}

// Count returns how many times Sleep was called.
func (s *RecordingSleeper) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
