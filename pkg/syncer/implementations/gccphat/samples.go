package gccphat

import (
	"fmt"

	"github.com/xaionaro-go/audiosync/pkg/audio"
)

// ToSamples decodes interleaved PCM into mono float64 samples by
// averaging the channels.
func ToSamples(
	encoding audio.Encoding,
	channels audio.Channel,
	data []byte,
) ([]float64, error) {
	encPCM, ok := encoding.(audio.EncodingPCM)
	if !ok {
		return nil, fmt.Errorf("unsupported encoding type: %T", encoding)
	}
	if encPCM.SampleRate == 0 {
		return nil, fmt.Errorf("sample rate is mandatory")
	}
	if channels == 0 {
		return nil, fmt.Errorf("channels must be greater than 0")
	}

	sampleSize := int(encPCM.BytesPerSample())
	if sampleSize == 0 {
		return nil, fmt.Errorf("unsupported PCM format: %s", encPCM.PCMFormat)
	}
	frameSize := sampleSize * int(channels)
	if len(data)%frameSize != 0 {
		return nil, fmt.Errorf("the data length %d is not a multiple of the frame size %d", len(data), frameSize)
	}

	samples := make([]float64, len(data)/frameSize)
	for i := range samples {
		frame := data[i*frameSize : (i+1)*frameSize]
		var sum float64
		for ch := 0; ch < int(channels); ch++ {
			v, err := encPCM.PCMFormat.DecodeFloat64(frame[ch*sampleSize:])
			if err != nil {
				return nil, fmt.Errorf("unable to decode sample %d of channel %d: %w", i, ch, err)
			}
			sum += v
		}
		samples[i] = sum / float64(channels)
	}
	return samples, nil
}

// Float32ToFloat64 widens the samples.
func Float32ToFloat64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}
