package track

import (
	"fmt"
	"io"

	"github.com/jfreymuth/oggvorbis"
)

func DecodeOggVorbis(r io.Reader) (*Track, error) {
	samples, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("unable to decode Ogg Vorbis: %w", err)
	}
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return nil, fmt.Errorf("invalid Ogg Vorbis format: %#+v", *format)
	}
	return &Track{
		SampleRate: uint32(format.SampleRate),
		Samples:    downmix(samples, format.Channels),
	}, nil
}
