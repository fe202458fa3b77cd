package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThrottleAllow(t *testing.T) {
	clock := newFakeClock()
	th := NewThrottle(100*time.Millisecond, clock)

	assert.True(t, th.Allow(), "first signal always clears the gate")
	assert.False(t, th.Allow())

	clock.Advance(50 * time.Millisecond)
	assert.False(t, th.Allow())

	clock.Advance(50 * time.Millisecond)
	assert.True(t, th.Allow())
	assert.False(t, th.Allow(), "acceptance re-arms the gate")
}

func TestDebouncerSettles(t *testing.T) {
	clock := newFakeClock()
	fired := 0
	d := NewDebouncer(150*time.Millisecond, clock, func() { fired++ })

	d.Signal()
	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, 0, fired)

	// A new signal restarts the delay.
	d.Signal()
	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, 0, fired)

	clock.Advance(50 * time.Millisecond)
	assert.Equal(t, 1, fired)

	// Idle afterwards until the next signal.
	clock.Advance(time.Second)
	assert.Equal(t, 1, fired)
}

func TestDebouncerStop(t *testing.T) {
	clock := newFakeClock()
	fired := 0
	d := NewDebouncer(150*time.Millisecond, clock, func() { fired++ })

	d.Signal()
	d.Stop()
	clock.Advance(time.Second)
	assert.Equal(t, 0, fired)

	d.Signal()
	clock.Advance(150 * time.Millisecond)
	assert.Equal(t, 1, fired)
}
