package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerSleeper_Waits(t *testing.T) {
	start := time.Now()
	assert.NoError(t, TimerSleeper{}.Sleep(context.Background(), 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestTimerSleeper_ZeroDuration(t *testing.T) {
	assert.NoError(t, TimerSleeper{}.Sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, TimerSleeper{}.Sleep(ctx, 0), context.Canceled)
}

func TestTimerSleeper_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := TimerSleeper{}.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Minute)
}
