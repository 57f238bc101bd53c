// Package seekpolicy decides whether the local playback should be
// re-positioned to the reference-timeline estimate and where exactly to.
//
// The decision threshold adapts to the history of seek directions:
// it widens on large one-off jumps (to avoid overshooting and oscillating)
// and tightens while the playback keeps drifting the same way (to stay
// responsive). On top of the threshold there is an independent rate
// limit on issued seeks.
//
// Policy is not goroutine-safe, the owner serializes access.
package seekpolicy

import (
	"fmt"
	"math"
	"sort"

	"github.com/xaionaro-go/audiosync/pkg/timing"
)

// PredictiveOffset is added (signed by the seek direction) to the target
// of a seek if the seek velocity exceeds MinVelocity. It pre-corrects for
// the time it takes to issue and complete the seek itself.
type PredictiveOffset struct {
	MinVelocity float64
	Offset      float64
}

// Config contains the thresholds of the policy, all in seconds
// unless stated otherwise.
type Config struct {
	BaseThreshold float64

	// LargeJump: if the difference exceeds it, LargeJumpThreshold is used.
	LargeJump          float64
	LargeJumpThreshold float64

	// DriftThreshold is used when the streak exceeds DriftMinStreak and the
	// difference exceeds the drift floor of its direction.
	DriftMinStreak     int
	DriftThreshold     float64
	ForwardDriftFloor  float64
	BackwardDriftFloor float64

	// FastDriftFactor multiplies DriftThreshold if the seek velocity
	// exceeds FastDriftVelocity.
	FastDriftVelocity float64
	FastDriftFactor   float64

	// PredictiveOffsets are applied only if the streak exceeds
	// PredictiveMinStreak. The first entry (in the order of decreasing
	// MinVelocity) matching the velocity wins.
	PredictiveMinStreak int
	PredictiveOffsets   []PredictiveOffset

	// MinSeekSpacing is the minimal distance between two issued seeks.
	MinSeekSpacing float64
}

func DefaultConfig() Config {
	return Config{
		BaseThreshold:       0.15,
		LargeJump:           2.0,
		LargeJumpThreshold:  0.25,
		DriftMinStreak:      2,
		DriftThreshold:      0.08,
		ForwardDriftFloor:   0.05,
		BackwardDriftFloor:  0.05,
		FastDriftVelocity:   1.0,
		FastDriftFactor:     0.7,
		PredictiveMinStreak: 1,
		PredictiveOffsets: []PredictiveOffset{
			{MinVelocity: 0.5, Offset: 0.03},
			{MinVelocity: 0.25, Offset: 0.02},
			{MinVelocity: 0.1, Offset: 0.015},
		},
		MinSeekSpacing: 0.5,
	}
}

func (cfg Config) Validate() error {
	for _, v := range []struct {
		name  string
		value float64
	}{
		{"BaseThreshold", cfg.BaseThreshold},
		{"LargeJump", cfg.LargeJump},
		{"LargeJumpThreshold", cfg.LargeJumpThreshold},
		{"DriftThreshold", cfg.DriftThreshold},
		{"ForwardDriftFloor", cfg.ForwardDriftFloor},
		{"BackwardDriftFloor", cfg.BackwardDriftFloor},
		{"FastDriftVelocity", cfg.FastDriftVelocity},
		{"FastDriftFactor", cfg.FastDriftFactor},
		{"MinSeekSpacing", cfg.MinSeekSpacing},
	} {
		if !(v.value >= 0) {
			return fmt.Errorf("%s must be non-negative, got %v", v.name, v.value)
		}
	}
	if cfg.DriftMinStreak < 0 || cfg.PredictiveMinStreak < 0 {
		return fmt.Errorf("streak limits must be non-negative, got %d and %d", cfg.DriftMinStreak, cfg.PredictiveMinStreak)
	}
	for idx, o := range cfg.PredictiveOffsets {
		if !(o.MinVelocity >= 0) || !(o.Offset >= 0) {
			return fmt.Errorf("predictive offset #%d must be non-negative: %#+v", idx, o)
		}
	}
	return nil
}

// DirectionalState is the history the thresholds are derived from.
type DirectionalState struct {
	// LastDirection is -1, 0 or +1.
	LastDirection int

	// Streak is the count of consecutive evaluations in LastDirection
	// (not counting the first one), issued or not.
	Streak int

	LastTargetSeconds float64
	HasLastTarget     bool

	LastIssuedTicks timing.Ticks
}

// Decision is the outcome of a single evaluation.
type Decision struct {
	TargetSeconds  float64
	CurrentSeconds float64
	Diff           float64
	Direction      int
	Streak         int
	Velocity       float64
	Threshold      float64

	// ShouldSeek is the threshold decision.
	ShouldSeek bool

	// RateLimited is true if ShouldSeek is true, but the seek is
	// suppressed because of MinSeekSpacing.
	RateLimited bool

	// CompensatedTargetSeconds is where to seek to.
	CompensatedTargetSeconds float64
}

// Issue reports if the seek needs to be actually issued.
func (d Decision) Issue() bool {
	return d.ShouldSeek && !d.RateLimited
}

func (d Decision) String() string {
	switch {
	case d.Issue():
		return fmt.Sprintf("seek to %.3fs (diff %+.3fs > %.3fs, streak %d)", d.CompensatedTargetSeconds, d.Diff, d.Threshold, d.Streak)
	case d.RateLimited:
		return fmt.Sprintf("rate-limited seek (diff %+.3fs > %.3fs)", d.Diff, d.Threshold)
	default:
		return fmt.Sprintf("in sync (diff %+.3fs <= %.3fs)", d.Diff, d.Threshold)
	}
}

type Policy struct {
	Config Config
	State  DirectionalState
}

func New(cfg Config) *Policy {
	offsets := make([]PredictiveOffset, len(cfg.PredictiveOffsets))
	copy(offsets, cfg.PredictiveOffsets)
	sort.SliceStable(offsets, func(i, j int) bool {
		return offsets[i].MinVelocity > offsets[j].MinVelocity
	})
	cfg.PredictiveOffsets = offsets
	return &Policy{
		Config: cfg,
	}
}

// Reset forgets the directional history. The Config is kept.
func (p *Policy) Reset() {
	p.State = DirectionalState{}
}

// Evaluate decides whether to seek from currentSeconds to targetSeconds.
//
// The caller is expected to issue the seek iff Decision.Issue() is true:
// the policy accounts the seek as issued at "now" in that case.
func (p *Policy) Evaluate(
	targetSeconds float64,
	currentSeconds float64,
	now timing.Ticks,
) Decision {
	cfg := &p.Config
	s := &p.State

	d := Decision{
		TargetSeconds:  targetSeconds,
		CurrentSeconds: currentSeconds,
		Diff:           targetSeconds - currentSeconds,
	}
	absDiff := math.Abs(d.Diff)
	d.Direction = sign(d.Diff)
	if s.HasLastTarget {
		d.Velocity = math.Abs(targetSeconds - s.LastTargetSeconds)
	}
	if d.Direction != 0 && d.Direction == s.LastDirection {
		d.Streak = s.Streak + 1
	}

	d.Threshold = cfg.BaseThreshold
	switch {
	case absDiff > cfg.LargeJump:
		d.Threshold = cfg.LargeJumpThreshold
	case d.Streak > cfg.DriftMinStreak && absDiff > p.driftFloor(d.Direction):
		d.Threshold = cfg.DriftThreshold
		if d.Velocity > cfg.FastDriftVelocity {
			d.Threshold *= cfg.FastDriftFactor
		}
	}
	d.ShouldSeek = absDiff > d.Threshold

	d.CompensatedTargetSeconds = targetSeconds
	if d.ShouldSeek && d.Streak > cfg.PredictiveMinStreak {
		for _, o := range cfg.PredictiveOffsets {
			if d.Velocity > o.MinVelocity {
				d.CompensatedTargetSeconds += float64(d.Direction) * o.Offset
				break
			}
		}
	}

	// the rate limit suppresses only the action, the bookkeeping below happens anyway
	if d.ShouldSeek && s.LastIssuedTicks != 0 && timing.ElapsedSeconds(s.LastIssuedTicks, now) < cfg.MinSeekSpacing {
		d.RateLimited = true
	}

	s.LastDirection = d.Direction
	s.Streak = d.Streak
	if d.Issue() {
		s.LastIssuedTicks = now
	}
	s.LastTargetSeconds = targetSeconds
	s.HasLastTarget = true

	return d
}

func (p *Policy) driftFloor(direction int) float64 {
	if direction < 0 {
		return p.Config.BackwardDriftFloor
	}
	return p.Config.ForwardDriftFloor
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
