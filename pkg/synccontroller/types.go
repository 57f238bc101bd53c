package synccontroller

import (
	"fmt"
	"time"

	"github.com/xaionaro-go/audiosync/pkg/matchgate"
	"github.com/xaionaro-go/audiosync/pkg/seekpolicy"
	"github.com/xaionaro-go/audiosync/pkg/timing"
)

// SeekCommand is an instruction to re-position the playback.
type SeekCommand struct {
	TargetSeconds float64
	IssuedAtTicks timing.Ticks
	// Epoch is the session epoch the command was issued in; the
	// playback discards commands of any other epoch.
	Epoch uint64
}

// SeekCompletion reports that a SeekCommand took effect.
type SeekCompletion struct {
	Epoch            uint64
	IssuedAtTicks    timing.Ticks
	CompletedAtTicks timing.Ticks
}

// LatencySeconds is the time between issuing and completing the seek.
func (c SeekCompletion) LatencySeconds() float64 {
	return timing.ElapsedSeconds(c.IssuedAtTicks, c.CompletedAtTicks)
}

type SessionState int

const (
	SessionStateStopped = SessionState(iota)
	SessionStateStarting
	SessionStateListening
	SessionStatePaused
	SessionStateRecovering
)

func (s SessionState) String() string {
	switch s {
	case SessionStateStopped:
		return "stopped"
	case SessionStateStarting:
		return "starting"
	case SessionStateListening:
		return "listening"
	case SessionStatePaused:
		return "paused"
	case SessionStateRecovering:
		return "recovering"
	default:
		return fmt.Sprintf("unknown_state_%d", int(s))
	}
}

// IsActive is true if the session exists (even if the capture is paused).
func (s SessionState) IsActive() bool {
	switch s {
	case SessionStateListening, SessionStatePaused, SessionStateRecovering:
		return true
	default:
		return false
	}
}

// acceptsMatches is true if match outcomes are to be processed.
func (s SessionState) acceptsMatches() bool {
	return s == SessionStateListening || s == SessionStateRecovering
}

// CanTransitionTo reports if the transition is allowed. Any state may go to Stopped.
func (s SessionState) CanTransitionTo(next SessionState) bool {
	if next == SessionStateStopped {
		return true
	}
	switch s {
	case SessionStateStopped:
		return next == SessionStateStarting
	case SessionStateStarting:
		return next == SessionStateListening
	case SessionStateListening:
		return next == SessionStatePaused || next == SessionStateRecovering
	case SessionStatePaused:
		return next == SessionStateListening || next == SessionStateRecovering
	case SessionStateRecovering:
		return next == SessionStateListening || next == SessionStatePaused
	}
	return false
}

// Diagnostics is a snapshot of the controller for observation.
type Diagnostics struct {
	State       SessionState
	Epoch       uint64
	Confidence  float64
	IsSourceFar bool

	HasDecision  bool
	LastDecision seekpolicy.Decision
	LastVerdict  matchgate.Verdict

	MatchCount    uint64
	AdmittedCount uint64
	NoMatchCount  uint64
	SeekCount     uint64

	LastSeekLatency time.Duration
	CapturedBytes   uint64
}

func (d Diagnostics) String() string {
	decision := "none"
	if d.HasDecision {
		decision = d.LastDecision.String()
	}
	return fmt.Sprintf(
		"state=%s confidence=%.2f far=%t matches=%d admitted=%d no_matches=%d seeks=%d seek_latency=%v captured=%dB last_verdict=%s last_decision=%s",
		d.State, d.Confidence, d.IsSourceFar,
		d.MatchCount, d.AdmittedCount, d.NoMatchCount, d.SeekCount,
		d.LastSeekLatency, d.CapturedBytes, d.LastVerdict, decision,
	)
}
