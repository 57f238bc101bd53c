// Package syncer defines one-shot estimators of the time shift between
// a reference recording and one or more comparison recordings.
package syncer

import (
	"context"
	"io"

	"github.com/xaionaro-go/audiosync/pkg/audio"
)

type ShiftResult struct {
	// Shift is the position of the comparison snippet within the reference,
	// in samples: comparison[0] corresponds to reference[Shift]. Positive
	// means the comparison is ahead of the reference.
	Shift float64
	// Confidence score (0..1).
	Confidence float64
}

type Syncer interface {
	io.Closer

	Encoding(ctx context.Context) (audio.Encoding, error)
	Channels(ctx context.Context) (audio.Channel, error)

	// CalculateShiftBetween returns the amount of samples that
	// needs to be shifted by, to get a comparison track synced
	// with the reference track. It also returns a confidence
	// score (0..1) for each result.
	CalculateShiftBetween(
		ctx context.Context,
		referenceTrack []byte,
		comparisonTracks ...[]byte,
	) ([]ShiftResult, error)
}
