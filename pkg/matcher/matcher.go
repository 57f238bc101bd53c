// Package matcher defines the contract of a fingerprint matching engine:
// it is fed with captured audio and asynchronously reports where in the
// reference recording the captured audio was found (or that it was not).
package matcher

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/xaionaro-go/audiosync/pkg/timing"
)

var (
	ErrEmptyCatalog  = errors.New("the catalog contains no audio")
	ErrLowConfidence = errors.New("the best candidate has too low confidence")
)

// Catalog is the reference recording to match against.
type Catalog struct {
	Name       string
	SampleRate uint32
	// Samples are mono float32 samples in [-1, 1].
	Samples []float32
}

func (c Catalog) Validate() error {
	if c.SampleRate == 0 {
		return fmt.Errorf("catalog %q: sample rate is not set", c.Name)
	}
	if len(c.Samples) == 0 {
		return fmt.Errorf("catalog %q: %w", c.Name, ErrEmptyCatalog)
	}
	return nil
}

// DurationSeconds returns the length of the reference recording.
func (c Catalog) DurationSeconds() float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// MatchEvent is a reported correspondence between captured audio and
// the reference recording.
type MatchEvent struct {
	// ReferenceOffsetSeconds is the position in the reference recording of
	// the last sample of the matched audio, i.e. at HardwareTimestamp. The
	// time passed since then is accounted by the consumer.
	ReferenceOffsetSeconds float64
	// HardwareTimestamp is the capture timestamp of the audio the match was computed from.
	HardwareTimestamp timing.Ticks
	// Confidence of the match in [0, 1], informational.
	Confidence float64
}

// NoMatchEvent is a failed matching attempt.
type NoMatchEvent struct {
	Reason error
}

// Listener receives the outcomes of matching. It is called from an
// unspecified goroutine; zero or more times per fed buffer.
type Listener interface {
	OnMatch(ctx context.Context, ev MatchEvent)
	OnNoMatch(ctx context.Context, ev NoMatchEvent)
}

// Session is a running matching session against a single catalog.
type Session interface {
	io.Closer

	// Feed hands a captured buffer to the matcher. It never blocks.
	Feed(samples []float32, hardwareTimestamp timing.Ticks)
}

type Matcher interface {
	StartSession(ctx context.Context, catalog Catalog, listener Listener) (Session, error)
}
