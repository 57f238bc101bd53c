package oto

import (
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
)

const drainPollInterval = 10 * time.Millisecond

type Stream struct {
	Player *oto.Player
}

var (
	_ types.PlayStream      = (*Stream)(nil)
	_ types.LatencyReporter = (*Stream)(nil)
)

func newStream(player *oto.Player) *Stream {
	return &Stream{
		Player: player,
	}
}

// Latency returns the amount of audio buffered by the player but not yet played.
func (s *Stream) Latency() time.Duration {
	bytesPerSecond := int(SampleRate) * int(Channels) * int(Format.Size())
	return BufferSize + time.Duration(s.Player.BufferedSize())*time.Second/time.Duration(bytesPerSecond)
}

func (s *Stream) Drain() error {
	for s.Player.IsPlaying() {
		time.Sleep(drainPollInterval)
	}
	return s.Player.Err()
}

func (s *Stream) Close() error {
	return s.Player.Close()
}
