package audio

import (
	"context"
	"io"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/audiosync/pkg/audio/registry"
)

const BufferSize = 100 * time.Millisecond

type Player struct {
	PlayerPCM
}

func NewPlayer(playerPCM PlayerPCM) *Player {
	return &Player{
		PlayerPCM: playerPCM,
	}
}

var lastSuccessfulPlayerFactory lastSuccessful[registry.PlayerPCMFactory]

// NewPlayerAuto returns a player of the highest-priority backend that
// is reachable. If none is, it returns a player that discards everything.
func NewPlayerAuto(
	ctx context.Context,
) *Player {
	player, err := initFirstWorking(
		ctx,
		&lastSuccessfulPlayerFactory,
		registry.PlayerFactories(),
		func(f registry.PlayerPCMFactory) (PlayerPCM, error) {
			return f.NewPlayerPCM()
		},
	)
	if err != nil {
		logger.Infof(ctx, "was unable to initialize any PCM player: %v", err)
		return NewPlayer(PlayerPCMDummy{})
	}
	return NewPlayer(player)
}

func (a *Player) PlayPCM(
	ctx context.Context,
	sampleRate SampleRate,
	channels Channel,
	pcmFormat PCMFormat,
	bufferSize time.Duration,
	pcmReader io.Reader,
) (PlayStream, error) {
	logger.Debugf(ctx, "PlayPCM(%d, %d, %s, %v) via %T", sampleRate, channels, pcmFormat, bufferSize, a.PlayerPCM)
	return a.PlayerPCM.PlayPCM(
		ctx,
		sampleRate,
		channels,
		pcmFormat,
		bufferSize,
		pcmReader,
	)
}
