package timing

import (
	"sync/atomic"
	"time"
)

// Clock is a source of monotonic ticks.
type Clock interface {
	Now() Ticks
}

// MonotonicClock derives ticks from the Go runtime monotonic clock.
//
// The zero tick is never returned, so a zero value can be used
// as "never happened" by the consumers.
type MonotonicClock struct {
	origin time.Time
}

var _ Clock = (*MonotonicClock)(nil)

func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{
		origin: time.Now(),
	}
}

func (c *MonotonicClock) Now() Ticks {
	return Ticks(time.Since(c.origin).Nanoseconds()) + 1
}

// ManualClock is a Clock which only moves when told to. Safe for
// concurrent use.
type ManualClock struct {
	now atomic.Uint64
}

var _ Clock = (*ManualClock)(nil)

func NewManualClock(start Ticks) *ManualClock {
	c := &ManualClock{}
	c.now.Store(uint64(start))
	return c
}

func (c *ManualClock) Now() Ticks {
	return Ticks(c.now.Load())
}

// Set moves the clock to the given ticks (also backwards).
func (c *ManualClock) Set(t Ticks) {
	c.now.Store(uint64(t))
}

// Advance moves the clock forward by the given amount of seconds and
// returns the new value.
func (c *ManualClock) Advance(seconds float64) Ticks {
	return Ticks(c.now.Add(uint64(SecondsToTicks(seconds))))
}
