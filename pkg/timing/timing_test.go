package timing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElapsedSeconds(t *testing.T) {
	for _, tc := range []struct {
		name     string
		from, to Ticks
		expected float64
	}{
		{"forward", 1_000_000_000, 3_500_000_000, 2.5},
		{"equal", 42, 42, 0},
		{"non-causal", 3_000_000_000, 1_000_000_000, 0},
		{"from zero", 0, 150_000_000, 0.15},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.expected, ElapsedSeconds(tc.from, tc.to), 1e-12)
		})
	}
}

func TestSecondsToTicks(t *testing.T) {
	assert.Equal(t, Ticks(200_000_000), SecondsToTicks(0.2))
	assert.Equal(t, Ticks(0), SecondsToTicks(-1))
	assert.Equal(t, Ticks(0), SecondsToTicks(math.NaN()))
	assert.InDelta(t, 0.2, TicksToSeconds(SecondsToTicks(0.2)), 1e-12)
}

func TestTicksAdd(t *testing.T) {
	assert.Equal(t, Ticks(1_200_000_000), Ticks(1_000_000_000).Add(0.2))
	assert.Equal(t, Ticks(800_000_000), Ticks(1_000_000_000).Add(-0.2))
	assert.Equal(t, Ticks(0), Ticks(100).Add(-1))
	assert.Equal(t, Ticks(math.MaxUint64), Ticks(math.MaxUint64-1).Add(1))
}

func TestClocks(t *testing.T) {
	mono := NewMonotonicClock()
	a := mono.Now()
	b := mono.Now()
	require.NotZero(t, a)
	require.GreaterOrEqual(t, b, a)

	manual := NewManualClock(10)
	assert.Equal(t, Ticks(10), manual.Now())
	assert.Equal(t, Ticks(10+500_000_000), manual.Advance(0.5))
	manual.Set(5)
	assert.Equal(t, Ticks(5), manual.Now())
}
