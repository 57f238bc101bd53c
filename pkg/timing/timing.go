// Package timing converts monotonic hardware ticks into seconds.
//
// Ticks are opaque: they are only meaningful relative to other ticks
// taken from the same clock within the same process run. Everything in
// this package is stateless and safe to call from any goroutine,
// including real-time audio callbacks.
package timing

import (
	"math"
)

// Ticks is a monotonic hardware timestamp.
type Ticks uint64

// Frequency is the amount of ticks per second.
const Frequency = 1_000_000_000

// TicksToSeconds converts an amount of ticks into seconds.
func TicksToSeconds(ticks Ticks) float64 {
	return float64(ticks) / Frequency
}

// SecondsToTicks converts seconds into ticks. Negative and NaN values
// are converted to zero.
func SecondsToTicks(seconds float64) Ticks {
	if !(seconds > 0) {
		return 0
	}
	ticks := seconds * Frequency
	if ticks >= math.MaxUint64 {
		return math.MaxUint64
	}
	return Ticks(math.Round(ticks))
}

// ElapsedSeconds returns the amount of seconds between "from" and "to".
//
// It never returns a negative value: if "to" is not after "from"
// (non-causal or equal timestamps) the result is zero.
func ElapsedSeconds(from, to Ticks) float64 {
	if to <= from {
		return 0
	}
	return TicksToSeconds(to - from)
}

// Add returns the ticks shifted by the given amount of seconds, saturating
// instead of overflowing.
func (t Ticks) Add(seconds float64) Ticks {
	if seconds < 0 {
		d := SecondsToTicks(-seconds)
		if d > t {
			return 0
		}
		return t - d
	}
	d := SecondsToTicks(seconds)
	if t > math.MaxUint64-d {
		return math.MaxUint64
	}
	return t + d
}

// Seconds is a shorthand for TicksToSeconds.
func (t Ticks) Seconds() float64 {
	return TicksToSeconds(t)
}
