package pulseaudio

import (
	"fmt"
	"time"

	"github.com/jfreymuth/pulse"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
)

type RecordStream struct {
	*pulse.Client
	*pulse.RecordStream
}

var (
	_ types.RecordStream    = (*RecordStream)(nil)
	_ types.LatencyReporter = (*RecordStream)(nil)
)

func newRecordStream(
	client *pulse.Client,
	pulseStream *pulse.RecordStream,
) *RecordStream {
	return &RecordStream{
		Client:       client,
		RecordStream: pulseStream,
	}
}

func (stream *RecordStream) Latency() time.Duration {
	return RecordLatency
}

func (stream *RecordStream) Err() error {
	if stream.Error() != nil {
		return fmt.Errorf("an error occurred during recording: %w", stream.Error())
	}
	return nil
}

func (stream *RecordStream) Close() (err error) {
	defer func() {
		r := recover()
		if r != nil {
			err = fmt.Errorf("got a panic: %v", r)
		}
	}()
	stream.RecordStream.Stop()
	stream.RecordStream.Close()
	stream.Client.Close()
	return
}
