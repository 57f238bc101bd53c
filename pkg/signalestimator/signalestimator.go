// Package signalestimator estimates how reliably the captured source is
// producing fingerprint matches.
//
// The estimate is a confidence score in [0, 1] which rises on recognized
// matches and decays on failed matching attempts and on silence. A binary
// "source is far" status is derived from it.
//
// Estimator is not goroutine-safe, the owner serializes access.
package signalestimator

import (
	"context"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/audiosync/pkg/timing"
)

type Config struct {
	// InitialConfidence is the confidence of a fresh session.
	InitialConfidence float64
	// MatchIncrement is added on every actionable match.
	MatchIncrement float64
	// NoMatchDecrement is subtracted on every failed matching attempt.
	NoMatchDecrement float64
	// DecayStep is subtracted on a tick if no match was seen for DecayAfter seconds.
	DecayStep float64
	// DecayAfter is the amount of seconds without matches before the confidence starts decaying.
	DecayAfter float64
	// FarThreshold: the source is considered far while the confidence is below it.
	FarThreshold float64
	// RecoveryThreshold is the confidence required to signal that
	// a recovery from a far source is possible.
	RecoveryThreshold float64
}

func DefaultConfig() Config {
	return Config{
		InitialConfidence: 1.0,
		MatchIncrement:    0.2,
		NoMatchDecrement:  0.05,
		DecayStep:         0.1,
		DecayAfter:        5,
		FarThreshold:      0.2,
		RecoveryThreshold: 0.3,
	}
}

func (cfg Config) Validate() error {
	for _, v := range []struct {
		name  string
		value float64
	}{
		{"InitialConfidence", cfg.InitialConfidence},
		{"MatchIncrement", cfg.MatchIncrement},
		{"NoMatchDecrement", cfg.NoMatchDecrement},
		{"DecayStep", cfg.DecayStep},
		{"FarThreshold", cfg.FarThreshold},
		{"RecoveryThreshold", cfg.RecoveryThreshold},
	} {
		if !(v.value >= 0 && v.value <= 1) {
			return fmt.Errorf("%s must be within [0, 1], got %v", v.name, v.value)
		}
	}
	if !(cfg.DecayAfter >= 0) {
		return fmt.Errorf("DecayAfter must be a non-negative amount of seconds, got %v", cfg.DecayAfter)
	}
	if cfg.RecoveryThreshold < cfg.FarThreshold {
		return fmt.Errorf("RecoveryThreshold (%v) must not be lower than FarThreshold (%v)", cfg.RecoveryThreshold, cfg.FarThreshold)
	}
	return nil
}

type State struct {
	Confidence  float64
	IsSourceFar bool

	// LastMatchTicks is when the last actionable match was seen
	// (or when the session started).
	LastMatchTicks timing.Ticks

	// LastTickTicks is the latest "now" seen by Tick; a Tick which
	// is not strictly later does not decay again.
	LastTickTicks timing.Ticks

	// Recovering is set when the source became far and is cleared once
	// the recovery was signaled.
	Recovering bool
}

// Transition is an edge of the "source is far" status.
type Transition int

const (
	TransitionNone = Transition(iota)
	TransitionBecameFar
	TransitionBecameNear
)

func (t Transition) String() string {
	switch t {
	case TransitionNone:
		return "none"
	case TransitionBecameFar:
		return "became_far"
	case TransitionBecameNear:
		return "became_near"
	default:
		return fmt.Sprintf("unknown_transition_%d", int(t))
	}
}

type TickResult struct {
	Decayed    bool
	Transition Transition

	// RecoveryEligible is true exactly once after the source came back
	// from being far and the confidence exceeded RecoveryThreshold.
	RecoveryEligible bool
}

type Estimator struct {
	Config Config
	State  State
}

func New(cfg Config, now timing.Ticks) *Estimator {
	e := &Estimator{
		Config: cfg,
	}
	e.Reset(now)
	return e
}

// Reset returns the estimator to the state of a fresh session started at "now".
func (e *Estimator) Reset(now timing.Ticks) {
	e.State = State{
		Confidence:     clamp(e.Config.InitialConfidence),
		LastMatchTicks: now,
		LastTickTicks:  now,
	}
	e.State.IsSourceFar = e.State.Confidence < e.Config.FarThreshold
	e.State.Recovering = e.State.IsSourceFar
}

// OnActionableMatch raises the confidence.
func (e *Estimator) OnActionableMatch(now timing.Ticks) {
	e.State.Confidence = clamp(e.State.Confidence + e.Config.MatchIncrement)
	if now > e.State.LastMatchTicks {
		e.State.LastMatchTicks = now
	}
}

// OnNoMatch lowers the confidence.
func (e *Estimator) OnNoMatch() {
	e.State.Confidence = clamp(e.State.Confidence - e.Config.NoMatchDecrement)
}

// Tick applies the silence decay and recomputes the "source is far" status.
//
// Calling Tick repeatedly with the same "now" does not decay more than once.
func (e *Estimator) Tick(ctx context.Context, now timing.Ticks) TickResult {
	var result TickResult
	s := &e.State

	if now > s.LastTickTicks {
		s.LastTickTicks = now
		if timing.ElapsedSeconds(s.LastMatchTicks, now) > e.Config.DecayAfter {
			s.Confidence = clamp(s.Confidence - e.Config.DecayStep)
			result.Decayed = true
		}
	}

	wasFar := s.IsSourceFar
	s.IsSourceFar = s.Confidence < e.Config.FarThreshold
	switch {
	case !wasFar && s.IsSourceFar:
		result.Transition = TransitionBecameFar
		logger.Infof(ctx, "the source became far (confidence: %.2f)", s.Confidence)
	case wasFar && !s.IsSourceFar:
		result.Transition = TransitionBecameNear
		logger.Infof(ctx, "the source is near again (confidence: %.2f)", s.Confidence)
	}

	if s.IsSourceFar {
		s.Recovering = true
	} else if s.Recovering && s.Confidence > e.Config.RecoveryThreshold {
		s.Recovering = false
		result.RecoveryEligible = true
	}

	return result
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
