package seekpolicy

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/audiosync/pkg/timing"
)

func sec(s float64) timing.Ticks {
	return timing.SecondsToTicks(s)
}

func TestPolicy_BaseThreshold(t *testing.T) {
	p := New(DefaultConfig())
	d := p.Evaluate(10.30, 10.00, sec(1))
	require.True(t, d.ShouldSeek, spew.Sdump(d))
	require.True(t, d.Issue())
	assert.Equal(t, 0.15, d.Threshold)
	assert.Equal(t, 1, d.Direction)
	assert.Equal(t, 0, d.Streak)
	assert.Equal(t, 10.30, d.CompensatedTargetSeconds)

	p = New(DefaultConfig())
	d = p.Evaluate(10.10, 10.00, sec(1))
	assert.False(t, d.ShouldSeek, spew.Sdump(d))
}

func TestPolicy_TightensOnConsistentDrift(t *testing.T) {
	p := New(DefaultConfig())

	target := 10.0
	now := 1.0
	for i := 0; i < 4; i++ {
		d := p.Evaluate(target, target-0.3, sec(now))
		require.True(t, d.Issue(), "decision #%d: %s", i, spew.Sdump(d))
		target += 0.5
		now += 1
	}
	require.Equal(t, 3, p.State.Streak)

	d := p.Evaluate(target, target-0.10, sec(now))
	assert.Equal(t, 4, d.Streak)
	assert.InDelta(t, 0.08, d.Threshold, 1e-12)
	assert.True(t, d.ShouldSeek, spew.Sdump(d))

	// velocity 0.5 is not above 0.5, so the next tier is used
	assert.InDelta(t, target+0.02, d.CompensatedTargetSeconds, 1e-12)
}

func TestPolicy_FastDriftTightensFurther(t *testing.T) {
	p := New(DefaultConfig())

	target := 10.0
	now := 1.0
	var d Decision
	for i := 0; i < 5; i++ {
		d = p.Evaluate(target, target-0.3, sec(now))
		require.True(t, d.Issue())
		target += 1.5
		now += 1
	}
	d = p.Evaluate(target, target-0.06, sec(now))
	assert.InDelta(t, 0.08*0.7, d.Threshold, 1e-12)
	assert.True(t, d.ShouldSeek)
	assert.InDelta(t, target+0.03, d.CompensatedTargetSeconds, 1e-12)
}

func TestPolicy_LargeJumpWidensRegardlessOfStreak(t *testing.T) {
	p := New(DefaultConfig())
	p.State = DirectionalState{
		LastDirection:     1,
		Streak:            10,
		LastTargetSeconds: 5,
		HasLastTarget:     true,
	}
	d := p.Evaluate(13.0, 10.0, sec(100))
	assert.Equal(t, 0.25, d.Threshold)
	assert.True(t, d.ShouldSeek)
}

func TestPolicy_DirectionChangeResetsStreak(t *testing.T) {
	p := New(DefaultConfig())
	p.Evaluate(10.3, 10.0, sec(1))
	p.Evaluate(11.3, 11.0, sec(2))
	require.Equal(t, 1, p.State.Streak)

	d := p.Evaluate(11.7, 12.0, sec(3))
	assert.Equal(t, -1, d.Direction)
	assert.Equal(t, 0, d.Streak)
	assert.Equal(t, -1, p.State.LastDirection)
	assert.Equal(t, 0, p.State.Streak)

	p.Evaluate(12.0, 12.0, sec(4))
	assert.Equal(t, 0, p.State.LastDirection)
	assert.Equal(t, 0, p.State.Streak)
}

func TestPolicy_RateLimitSuppressesOnlyTheAction(t *testing.T) {
	p := New(DefaultConfig())
	d := p.Evaluate(10.3, 10.0, sec(1))
	require.True(t, d.Issue())

	d = p.Evaluate(11.3, 11.0, sec(1.2))
	assert.True(t, d.ShouldSeek)
	assert.True(t, d.RateLimited)
	assert.False(t, d.Issue())

	// bookkeeping happened
	assert.Equal(t, 11.3, p.State.LastTargetSeconds)
	assert.Equal(t, 1, p.State.LastDirection)
	assert.Equal(t, 1, p.State.Streak)
	assert.Equal(t, sec(1), p.State.LastIssuedTicks)

	d = p.Evaluate(12.3, 12.0, sec(1.5))
	assert.True(t, d.Issue())
	assert.Equal(t, 2, p.State.Streak)
	assert.Equal(t, sec(1.5), p.State.LastIssuedTicks)
}

func TestPolicy_StreakCountsEveryDecision(t *testing.T) {
	p := New(DefaultConfig())

	// in sync, but consistently slightly behind
	target := 20.0
	for i := 0; i < 4; i++ {
		d := p.Evaluate(target, target-0.06, sec(1+float64(i)*0.3))
		require.False(t, d.ShouldSeek, spew.Sdump(d))
		assert.Equal(t, i, d.Streak)
		target += 0.3
	}

	// the fifth forward decision: the streak is above 2, so 0.10s is enough
	d := p.Evaluate(target, target-0.10, sec(2.5))
	assert.Equal(t, 4, d.Streak)
	assert.InDelta(t, 0.08, d.Threshold, 1e-12)
	assert.True(t, d.Issue(), spew.Sdump(d))
}

func TestPolicy_Reset(t *testing.T) {
	p := New(DefaultConfig())
	p.Evaluate(10.3, 10.0, sec(1))
	p.Reset()
	assert.Equal(t, DirectionalState{}, p.State)
}

func TestNew_SortsPredictiveOffsets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PredictiveOffsets = []PredictiveOffset{
		{MinVelocity: 0.1, Offset: 0.015},
		{MinVelocity: 0.5, Offset: 0.03},
	}
	p := New(cfg)
	assert.Equal(t, 0.5, p.Config.PredictiveOffsets[0].MinVelocity)
	assert.Equal(t, 0.1, cfg.PredictiveOffsets[0].MinVelocity, "the caller's slice must not be modified")
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	cfg := DefaultConfig()
	cfg.PredictiveOffsets = append(cfg.PredictiveOffsets, PredictiveOffset{MinVelocity: -1})
	require.Error(t, cfg.Validate())
}

func BenchmarkPolicy_Evaluate(b *testing.B) {
	p := New(DefaultConfig())
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		p.Evaluate(float64(i)*0.5, float64(i)*0.5-0.2, timing.Ticks(i)*sec(0.6))
	}
}
