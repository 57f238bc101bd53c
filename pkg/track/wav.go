package track

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavFormatPCM = 1

func DecodeWAV(r io.ReadSeeker) (*Track, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("not a valid WAV file")
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("unable to read the PCM data: %w", err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 || buf.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("invalid WAV format")
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(d.BitDepth)
	}
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, fmt.Errorf("unsupported bit depth: %d", bitDepth)
	}

	interleaved := make([]float32, len(buf.Data))
	scale := float32(int64(1) << (bitDepth - 1))
	for i, v := range buf.Data {
		if bitDepth == 8 {
			// 8-bit WAV is unsigned
			v -= 128
		}
		interleaved[i] = float32(v) / scale
	}

	return &Track{
		SampleRate: uint32(buf.Format.SampleRate),
		Samples:    downmix(interleaved, buf.Format.NumChannels),
	}, nil
}

// EncodeWAV writes the track as a mono WAV file with the given bit depth (8, 16, 24 or 32).
func EncodeWAV(w io.WriteSeeker, t *Track, bitDepth int) error {
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("unsupported bit depth: %d", bitDepth)
	}

	scale := float64(int64(1)<<(bitDepth-1)) - 1
	data := make([]int, len(t.Samples))
	for i, v := range t.Samples {
		s := int(float64(clamp(v)) * scale)
		if bitDepth == 8 {
			s += 128
		}
		data[i] = s
	}

	e := wav.NewEncoder(w, int(t.SampleRate), bitDepth, 1, wavFormatPCM)
	err := e.Write(&goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  int(t.SampleRate),
		},
		Data:           data,
		SourceBitDepth: bitDepth,
	})
	if err != nil {
		return fmt.Errorf("unable to write the samples: %w", err)
	}
	if err := e.Close(); err != nil {
		return fmt.Errorf("unable to finalize the WAV file: %w", err)
	}
	return nil
}

func clamp(v float32) float32 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	default:
		return v
	}
}
