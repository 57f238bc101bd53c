package capture

import (
	"github.com/xaionaro-go/audiosync/pkg/timing"
)

// Frame is a fixed-size chunk of captured mono audio.
type Frame struct {
	Samples []float32
	// Timestamp is the capture time of the last sample of the frame.
	Timestamp timing.Ticks
}

// FrameHandler receives frames on the capture goroutine; it must not block.
type FrameHandler interface {
	OnFrame(Frame)
}

type FrameHandlerFunc func(Frame)

func (fn FrameHandlerFunc) OnFrame(f Frame) {
	fn(f)
}
