package track

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// DecodeFloat32 reads headerless mono little-endian float32 samples.
func DecodeFloat32(r io.Reader, sampleRate uint32) (*Track, error) {
	if sampleRate == 0 {
		return nil, fmt.Errorf("the sample rate of a raw track must be provided")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("unable to read: %w", err)
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("the length %d is not a multiple of 4", len(data))
	}
	samples := make([]float32, len(data)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return &Track{
		SampleRate: sampleRate,
		Samples:    samples,
	}, nil
}
