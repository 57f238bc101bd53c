package types

import (
	"io"
	"time"
)

type Stream interface {
	io.Closer
}

type PlayStream interface {
	Stream
	Drain() error
}

type RecordStream interface {
	Stream
}

// LatencyReporter is optionally implemented by streams that know
// how much delay the device path adds.
type LatencyReporter interface {
	Latency() time.Duration
}

// StreamLatency returns the latency reported by the stream, or
// "fallback" if the stream does not report any.
func StreamLatency(s Stream, fallback time.Duration) time.Duration {
	r, ok := s.(LatencyReporter)
	if !ok {
		return fallback
	}
	if l := r.Latency(); l > 0 {
		return l
	}
	return fallback
}
