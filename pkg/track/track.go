// Package track decodes audio files into mono float32 sample buffers, used
// both as the local playback source and as the matching reference.
package track

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/audiosync/pkg/matcher"
)

// Track is a decoded mono recording.
type Track struct {
	Name       string
	SampleRate uint32
	Samples    []float32
}

func (t *Track) DurationSeconds() float64 {
	if t.SampleRate == 0 {
		return 0
	}
	return float64(len(t.Samples)) / float64(t.SampleRate)
}

// Catalog returns the track as a matching reference. The samples are shared.
func (t *Track) Catalog() matcher.Catalog {
	return matcher.Catalog{
		Name:       t.Name,
		SampleRate: t.SampleRate,
		Samples:    t.Samples,
	}
}

type LoadOptions struct {
	// RawSampleRate is the sample rate of headerless ".f32" files.
	RawSampleRate uint32
}

// Load decodes the file according to its extension:
// ".ogg"/".oga" (Ogg Vorbis), ".wav" and ".f32" (raw mono float32le).
func Load(
	ctx context.Context,
	path string,
	opts LoadOptions,
) (_ret *Track, _err error) {
	logger.Debugf(ctx, "Load(%q)", path)
	defer func() {
		if _ret != nil {
			logger.Debugf(ctx, "/Load(%q): %d Hz, %.3fs", path, _ret.SampleRate, _ret.DurationSeconds())
			return
		}
		logger.Debugf(ctx, "/Load(%q): %v", path, _err)
	}()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open '%s': %w", path, err)
	}
	defer f.Close()

	var t *Track
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".ogg", ".oga":
		t, err = DecodeOggVorbis(f)
	case ".wav":
		t, err = DecodeWAV(f)
	case ".f32":
		t, err = DecodeFloat32(f, opts.RawSampleRate)
	default:
		return nil, fmt.Errorf("unknown audio file extension '%s'", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to decode '%s': %w", path, err)
	}
	t.Name = filepath.Base(path)
	if len(t.Samples) == 0 {
		return nil, fmt.Errorf("'%s' contains no audio: %w", path, matcher.ErrEmptyCatalog)
	}
	return t, nil
}

// downmix averages interleaved channels into mono.
func downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	out := make([]float32, len(interleaved)/channels)
	for i := range out {
		var sum float32
		for _, v := range interleaved[i*channels : (i+1)*channels] {
			sum += v
		}
		out[i] = sum / float32(channels)
	}
	return out
}
