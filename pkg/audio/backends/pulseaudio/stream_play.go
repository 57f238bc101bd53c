package pulseaudio

import (
	"fmt"
	"time"

	"github.com/jfreymuth/pulse"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
)

type PlayStream struct {
	*pulse.Client
	*pulse.PlaybackStream
	SampleRate       types.SampleRate
	RequestedLatency time.Duration
}

var (
	_ types.PlayStream      = (*PlayStream)(nil)
	_ types.LatencyReporter = (*PlayStream)(nil)
)

func newPlayStream(
	client *pulse.Client,
	pulseStream *pulse.PlaybackStream,
	sampleRate types.SampleRate,
	requestedLatency time.Duration,
) *PlayStream {
	return &PlayStream{
		Client:           client,
		PlaybackStream:   pulseStream,
		SampleRate:       sampleRate,
		RequestedLatency: requestedLatency,
	}
}

// Latency returns the duration of the server-side buffer.
func (stream *PlayStream) Latency() time.Duration {
	samples := stream.PlaybackStream.BufferSize()
	if samples <= 0 || stream.SampleRate == 0 {
		return stream.RequestedLatency
	}
	return time.Duration(samples) * time.Second / time.Duration(stream.SampleRate)
}

func (stream *PlayStream) Drain() error {
	stream.PlaybackStream.Drain()
	if stream.Error() != nil {
		return fmt.Errorf("an error occurred during playback: %w", stream.Error())
	}
	if stream.Underflow() {
		return fmt.Errorf("underflow")
	}
	return nil
}

func (stream *PlayStream) Close() (err error) {
	defer func() {
		r := recover()
		if r != nil {
			err = fmt.Errorf("got a panic: %v", r)
		}
	}()
	stream.PlaybackStream.Stop()
	stream.PlaybackStream.Close()
	stream.Client.Close()
	return
}
