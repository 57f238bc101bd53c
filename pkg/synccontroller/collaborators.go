package synccontroller

import (
	"context"

	"github.com/xaionaro-go/audiosync/pkg/capture"
)

// PositionSource reports where the local playback is. The position is of the
// audio being handed to the output device, like SeekCommand.TargetSeconds: the
// output latency is compensated by the controller.
type PositionSource interface {
	CurrentPositionSeconds() float64
	IsPaused() bool
}

// SeekSink accepts seek commands. Seek must not block: the completion
// is reported asynchronously.
type SeekSink interface {
	Seek(cmd SeekCommand)
}

type Playback interface {
	PositionSource
	SeekSink

	// SetSessionEpoch makes the playback discard commands of other epochs,
	// including the ones already accepted but not applied yet.
	SetSessionEpoch(epoch uint64)

	// Completions delivers a SeekCompletion per applied SeekCommand.
	Completions() <-chan SeekCompletion
}

type CapturePipeline interface {
	Start(ctx context.Context, handler capture.FrameHandler) error
	Stop() error
	IsRunning() bool
	InputLatencySeconds() float64
	OutputLatencySeconds() float64
	CapturedBytes() uint64
}
