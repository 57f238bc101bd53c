package gccphat

import (
	"context"
	"fmt"
	"math"

	"github.com/xaionaro-go/audiosync/pkg/syncer"
)

// Reference is a reference track with a precomputed spectrum, for
// repeatedly locating short snippets of a fixed maximal length in it.
type Reference struct {
	Length        int
	MaxSnippetLen int
	Spectrum      []complex128
}

// NewReference precomputes the spectrum of "samples" sized so that
// snippets up to maxSnippetLen long can be correlated without wrapping.
func NewReference(samples []float64, maxSnippetLen int) (*Reference, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("the reference is empty")
	}
	if maxSnippetLen <= 0 {
		return nil, fmt.Errorf("the maximal snippet length must be positive, got %d", maxSnippetLen)
	}
	n := fftSize(len(samples), maxSnippetLen)
	return &Reference{
		Length:        len(samples),
		MaxSnippetLen: maxSnippetLen,
		Spectrum:      spectrum(samples, n),
	}, nil
}

// Locate returns where in the reference the snippet starts.
//
// The result is within [0, Length) unless the snippet does not overlap the
// reference, in which case a negative shift may be returned.
func (s *Syncer) Locate(
	ctx context.Context,
	ref *Reference,
	snippet []float64,
) (syncer.ShiftResult, error) {
	if len(snippet) > ref.MaxSnippetLen {
		return syncer.ShiftResult{}, fmt.Errorf("the snippet is too long: %d > %d", len(snippet), ref.MaxSnippetLen)
	}
	if err := ctx.Err(); err != nil {
		return syncer.ShiftResult{}, err
	}

	n := len(ref.Spectrum)
	peak, confidence, err := correlationPeak(ref.Spectrum, spectrum(snippet, n), s.sampleRate(), s.MinFreq, s.MaxFreq)
	if err != nil {
		return syncer.ShiftResult{}, fmt.Errorf("unable to cross-correlate: %w", err)
	}

	// peak k means snippet[t+k] ~ ref[t], so the snippet starts at -k (mod N)
	shift := math.Mod(float64(n)-peak, float64(n))
	if shift > float64(ref.Length) {
		shift -= float64(n)
	}
	return syncer.ShiftResult{
		Shift:      shift,
		Confidence: confidence,
	}, nil
}
