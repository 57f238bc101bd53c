package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/audiosync/pkg/audio"
	_ "github.com/xaionaro-go/audiosync/pkg/audio/backends/oto"
	_ "github.com/xaionaro-go/audiosync/pkg/audio/backends/portaudio"
	_ "github.com/xaionaro-go/audiosync/pkg/audio/backends/pulseaudio"
	"github.com/xaionaro-go/audiosync/pkg/playback"
	"github.com/xaionaro-go/audiosync/pkg/synccontroller"
	"github.com/xaionaro-go/audiosync/pkg/timing"
	"github.com/xaionaro-go/audiosync/pkg/track"
)

func main() {
	loggerLevel := logger.LevelDebug
	pflag.Var(&loggerLevel, "log-level", "Log level")
	start := pflag.Duration("start", 0, "position to start playing from")
	volume := pflag.Float64("volume", 1, "playback volume")
	rawSampleRate := pflag.Uint32("raw-sample-rate", 48000, "sample rate of headerless .f32 tracks")
	pflag.Parse()

	if pflag.NArg() != 1 {
		panic("expected exactly one positional argument: path to an .ogg, .wav or .f32 file")
	}

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	ctx, cancelFn := signal.NotifyContext(ctx, os.Interrupt)
	defer cancelFn()

	t, err := track.Load(ctx, pflag.Arg(0), track.LoadOptions{RawSampleRate: *rawSampleRate})
	assertNoError(err)

	clock := timing.NewMonotonicClock()
	player := audio.NewPlayerAuto(ctx)
	defer player.Close()

	cfg := playback.DefaultConfig()
	cfg.Volume = *volume
	engine, err := playback.New(ctx, cfg, player, clock, t)
	assertNoError(err)
	if *start > 0 {
		engine.Seek(synccontroller.SeekCommand{TargetSeconds: start.Seconds(), IssuedAtTicks: clock.Now()})
	}
	assertNoError(engine.Start(ctx))
	defer engine.Close()
	logger.Infof(ctx, "started (%s -> %T)", t.Name, player.PlayerPCM)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-engine.Done():
			time.Sleep(engine.OutputLatency())
			return
		case <-ticker.C:
			logger.Debugf(ctx, "position: %.3fs / %.3fs", engine.CurrentPositionSeconds(), engine.DurationSeconds())
		}
	}
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}
