package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/iamcalledrob/circular"
	"github.com/xaionaro-go/audiosync/pkg/timing"
)

const bytesPerSample = 4

// framer is an io.Writer that slices a float32le mono byte stream
// into Frames of a fixed amount of samples.
type framer struct {
	clock          timing.Clock
	inputLatency   func() time.Duration
	handler        FrameHandler
	frameBytes     int
	bytesPerSecond float64

	buf      *circular.Buffer
	capacity int
	buffered int
	scratch  []byte
}

var _ io.Writer = (*framer)(nil)

func newFramer(
	clock timing.Clock,
	sampleRate uint32,
	frameSamples int,
	inputLatency func() time.Duration,
	handler FrameHandler,
) *framer {
	frameBytes := frameSamples * bytesPerSample
	capacity := 2 * frameBytes
	return &framer{
		clock:          clock,
		inputLatency:   inputLatency,
		handler:        handler,
		frameBytes:     frameBytes,
		bytesPerSecond: float64(sampleRate) * bytesPerSample,
		buf:            circular.NewBuffer(capacity),
		capacity:       capacity,
		scratch:        make([]byte, frameBytes),
	}
}

func (f *framer) Write(p []byte) (int, error) {
	now := f.clock.Now()
	latency := f.inputLatency().Seconds()

	written := 0
	for written < len(p) {
		end := min(len(p), written+f.capacity-f.buffered)
		n, err := f.buf.Write(p[written:end])
		if err != nil && !errors.Is(err, circular.ErrNoSpace) {
			return written, fmt.Errorf("unable to write to the circular buffer: %w", err)
		}
		if n <= 0 {
			return written, fmt.Errorf("unable to write to the circular buffer: no progress (buffered %d of %d)", f.buffered, f.capacity)
		}
		f.buffered += n
		written += n

		for f.buffered >= f.frameBytes {
			if err := f.readFrame(); err != nil {
				return written, err
			}
			f.buffered -= f.frameBytes

			// the bytes after this frame were captured later
			pendingSeconds := float64(f.buffered+len(p)-written) / f.bytesPerSecond
			f.handler.OnFrame(Frame{
				Samples:   decodeFloat32LE(f.scratch),
				Timestamp: now.Add(-(latency + pendingSeconds)),
			})
		}
	}
	return written, nil
}

func (f *framer) readFrame() error {
	received := 0
	for received < f.frameBytes {
		n, err := f.buf.Read(f.scratch[received:])
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("unable to read from the circular buffer: %w", err)
		}
		if n <= 0 {
			return fmt.Errorf("the circular buffer has fewer bytes than expected: %d < %d", received, f.frameBytes)
		}
		received += n
	}
	return nil
}

func decodeFloat32LE(b []byte) []float32 {
	samples := make([]float32, len(b)/bytesPerSample)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*bytesPerSample:]))
	}
	return samples
}
