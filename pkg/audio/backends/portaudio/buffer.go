package portaudio

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/xaionaro-go/audiosync/pkg/audio/types"
)

// sampleBuffer is a typed buffer handed to PortAudio together with a byte
// view of the same memory.
type sampleBuffer struct {
	Typed any
	Bytes []byte
}

func newSampleBufferOf[T any](itemsCount int) sampleBuffer {
	var sample T
	buf := make([]T, itemsCount)
	ptr := unsafe.SliceData(buf)
	return sampleBuffer{
		Typed: buf,
		Bytes: unsafe.Slice((*byte)(unsafe.Pointer(ptr)), len(buf)*int(unsafe.Sizeof(sample))),
	}
}

func newSampleBuffer(
	format types.PCMFormat,
	sampleRate types.SampleRate,
	channels types.Channel,
	duration time.Duration,
) (sampleBuffer, int, error) {
	framesPerBuffer := int(duration.Seconds() * float64(sampleRate))
	itemsCount := framesPerBuffer * int(channels)
	switch format {
	case types.PCMFormatU8:
		return newSampleBufferOf[uint8](itemsCount), framesPerBuffer, nil
	case types.PCMFormatS16LE:
		return newSampleBufferOf[int16](itemsCount), framesPerBuffer, nil
	case types.PCMFormatS32LE:
		return newSampleBufferOf[int32](itemsCount), framesPerBuffer, nil
	case types.PCMFormatFloat32LE:
		return newSampleBufferOf[float32](itemsCount), framesPerBuffer, nil
	default:
		return sampleBuffer{}, 0, fmt.Errorf("do not know how to start a stream for PCM format %s", format)
	}
}
