// Package matchgate filters a stream of fingerprint match timestamps
// down to the ones that are worth acting on.
//
// The matcher tends to report a burst of near-duplicate matches for one
// physical audio event, and a seek invalidates every match computed from
// audio captured before it. A Gate rejects both.
//
// Gate is not goroutine-safe: it is owned by a single controller which
// serializes access to it.
package matchgate

import (
	"fmt"

	"github.com/xaionaro-go/audiosync/pkg/timing"
)

// Config contains the suppression intervals, in seconds.
type Config struct {
	// MinMatchInterval is the minimal distance between two admitted matches.
	MinMatchInterval float64
	// IgnoreAfterSeek is the length of the window after issuing a seek
	// during which all matches are considered stale.
	IgnoreAfterSeek float64
	// SeekHysteresis is the minimal distance between the last issued
	// seek and an admitted match.
	SeekHysteresis float64
	// MinSeekCompletionInterval is the minimal distance between the last
	// completed seek and an admitted match.
	MinSeekCompletionInterval float64
}

func DefaultConfig() Config {
	return Config{
		MinMatchInterval:          0.15,
		IgnoreAfterSeek:           0.2,
		SeekHysteresis:            0.5,
		MinSeekCompletionInterval: 0.8,
	}
}

// Validate returns an error if any of the intervals is negative or not a number.
func (cfg Config) Validate() error {
	for _, v := range []struct {
		name  string
		value float64
	}{
		{"MinMatchInterval", cfg.MinMatchInterval},
		{"IgnoreAfterSeek", cfg.IgnoreAfterSeek},
		{"SeekHysteresis", cfg.SeekHysteresis},
		{"MinSeekCompletionInterval", cfg.MinSeekCompletionInterval},
	} {
		if !(v.value >= 0) {
			return fmt.Errorf("%s must be a non-negative amount of seconds, got %v", v.name, v.value)
		}
	}
	return nil
}

// Verdict is the outcome of an admission check.
type Verdict int

const (
	VerdictAdmitted = Verdict(iota)
	VerdictDuplicate
	VerdictIgnoreWindow
	VerdictSeekHysteresis
	VerdictSeekCompletionCooldown
)

func (v Verdict) String() string {
	switch v {
	case VerdictAdmitted:
		return "admitted"
	case VerdictDuplicate:
		return "duplicate"
	case VerdictIgnoreWindow:
		return "ignore_window"
	case VerdictSeekHysteresis:
		return "seek_hysteresis"
	case VerdictSeekCompletionCooldown:
		return "seek_completion_cooldown"
	default:
		return fmt.Sprintf("unknown_verdict_%d", int(v))
	}
}

// State is the mutable part of a Gate. Zero ticks mean "never".
type State struct {
	LastHandledMatchTicks   timing.Ticks
	IgnoreMatchesUntilTicks timing.Ticks
	LastSeekTicks           timing.Ticks
	LastSeekCompletionTicks timing.Ticks
}

type Gate struct {
	Config Config
	State  State
}

func New(cfg Config) *Gate {
	return &Gate{
		Config: cfg,
	}
}

// Reset returns the gate to the state of a fresh session. The Config is kept.
func (g *Gate) Reset() {
	g.State = State{}
}

// Check evaluates the admission policy without changing the state.
// The checks are evaluated in order and the first failing one wins.
func (g *Gate) Check(now timing.Ticks) Verdict {
	s := &g.State
	cfg := &g.Config
	if s.LastHandledMatchTicks != 0 && timing.ElapsedSeconds(s.LastHandledMatchTicks, now) < cfg.MinMatchInterval {
		return VerdictDuplicate
	}
	if now < s.IgnoreMatchesUntilTicks {
		return VerdictIgnoreWindow
	}
	if s.LastSeekTicks != 0 && timing.ElapsedSeconds(s.LastSeekTicks, now) < cfg.SeekHysteresis {
		return VerdictSeekHysteresis
	}
	if s.LastSeekCompletionTicks != 0 && timing.ElapsedSeconds(s.LastSeekCompletionTicks, now) < cfg.MinSeekCompletionInterval {
		return VerdictSeekCompletionCooldown
	}
	return VerdictAdmitted
}

// Admit checks a match captured at "now" and, if it is admitted,
// remembers it as the last handled match.
func (g *Gate) Admit(now timing.Ticks) (bool, Verdict) {
	v := g.Check(now)
	if v != VerdictAdmitted {
		return false, v
	}
	g.State.LastHandledMatchTicks = now
	return true, v
}

// OnSeekIssued opens the hysteresis and the ignore windows.
// Both only ever move forward.
func (g *Gate) OnSeekIssued(now timing.Ticks) {
	if now > g.State.LastSeekTicks {
		g.State.LastSeekTicks = now
	}
	ignoreUntil := now.Add(g.Config.IgnoreAfterSeek)
	if ignoreUntil > g.State.IgnoreMatchesUntilTicks {
		g.State.IgnoreMatchesUntilTicks = ignoreUntil
	}
}

// OnSeekCompleted opens the post-completion cooldown.
func (g *Gate) OnSeekCompleted(completedAt timing.Ticks) {
	if completedAt > g.State.LastSeekCompletionTicks {
		g.State.LastSeekCompletionTicks = completedAt
	}
}
