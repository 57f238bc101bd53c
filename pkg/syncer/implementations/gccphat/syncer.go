// Package gccphat implements an audio synchronization algorithm using
// Generalized Cross-Correlation with Phase Transform (GCC-PHAT).
//
// The algorithm calculates the time delay between two signals by
// looking at their cross-correlation in the frequency domain. By
// normalizing the magnitude (the Phase Transform), it becomes
// robust against variations in volume and certain types of noise,
// focusing only on the phase information that indicates the delay.
package gccphat

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/audiosync/pkg/audio"
	"github.com/xaionaro-go/audiosync/pkg/syncer"
)

const (
	DefaultMinFreq = 100
	DefaultMaxFreq = 12000
)

type Syncer struct {
	EncodingValue audio.EncodingPCM
	ChannelsValue audio.Channel
	MinFreq       float64
	MaxFreq       float64
}

var _ syncer.Syncer = (*Syncer)(nil)

// NewSyncer initializes a new one-shot GCC-PHAT syncer.
func NewSyncer(
	encoding audio.Encoding,
	channels audio.Channel,
) (*Syncer, error) {
	if encoding == nil {
		return nil, fmt.Errorf("encoding is mandatory")
	}
	if channels <= 0 {
		return nil, fmt.Errorf("channels must be greater than 0: got %d", channels)
	}

	pcm, ok := encoding.(audio.EncodingPCM)
	if !ok || pcm.SampleRate == 0 {
		return nil, fmt.Errorf("sample rate is mandatory and could not be determined from encoding %T", encoding)
	}

	return &Syncer{
		EncodingValue: pcm,
		ChannelsValue: channels,
		// 100Hz..12kHz filters out low-frequency rumble and high-frequency digital noise.
		MinFreq: DefaultMinFreq,
		MaxFreq: DefaultMaxFreq,
	}, nil
}

func (s *Syncer) sampleRate() float64 {
	return float64(s.EncodingValue.SampleRate)
}

func (s *Syncer) Close() error {
	return nil
}

func (s *Syncer) Encoding(
	ctx context.Context,
) (audio.Encoding, error) {
	return s.EncodingValue, nil
}

func (s *Syncer) Channels(
	ctx context.Context,
) (audio.Channel, error) {
	return s.ChannelsValue, nil
}

func (s *Syncer) CalculateShiftBetween(
	ctx context.Context,
	referenceTrack []byte,
	comparisonTracks ...[]byte,
) ([]syncer.ShiftResult, error) {
	refSamples, err := ToSamples(s.EncodingValue, s.ChannelsValue, referenceTrack)
	if err != nil {
		return nil, fmt.Errorf("failed to convert reference track to samples: %w", err)
	}

	results := make([]syncer.ShiftResult, len(comparisonTracks))
	for i, comparisonTrack := range comparisonTracks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		compSamples, err := ToSamples(s.EncodingValue, s.ChannelsValue, comparisonTrack)
		if err != nil {
			return nil, fmt.Errorf("failed to convert comparison track %d to samples: %w", i, err)
		}

		n := fftSize(len(refSamples), len(compSamples))
		shift, confidence, err := CrossCorrelate(
			spectrum(refSamples, n),
			spectrum(compSamples, n),
			s.sampleRate(),
			s.MinFreq, s.MaxFreq,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to cross-correlate track %d: %w", i, err)
		}
		results[i] = syncer.ShiftResult{
			Shift:      shift,
			Confidence: confidence,
		}
	}
	return results, nil
}
