package main

import (
	"context"
	"fmt"
	"math"
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
	"github.com/xaionaro-go/audiosync/pkg/timing"
	"github.com/xaionaro-go/audiosync/pkg/track"
)

func main() {
	loggerLevel := logger.LevelDebug
	pflag.Var(&loggerLevel, "log-level", "Log level")
	frequency := pflag.Float64("frequency", 440, "tone frequency in Hz")
	duration := pflag.Duration("duration", time.Second, "tone duration")
	sampleRate := pflag.Uint32("sample-rate", 48000, "sample rate")
	pflag.Parse()

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	p := audio.NewPlayerAuto(ctx)
	defer p.Close()
	fmt.Printf("using backend %T\n", p.PlayerPCM)

	engine, err := playback.New(ctx, playback.DefaultConfig(), p, timing.NewMonotonicClock(), tone(*frequency, *duration, *sampleRate))
	assertNoError(err)
	assertNoError(engine.Start(ctx))
	<-engine.Done()
	// let the device play out its buffer
	time.Sleep(engine.OutputLatency())
	assertNoError(engine.Close())
}

func tone(frequency float64, duration time.Duration, sampleRate uint32) *track.Track {
	samples := make([]float32, int(duration.Seconds()*float64(sampleRate)))
	fade := len(samples) / 20
	for i := range samples {
		gain := 0.5
		if i < fade {
			gain *= float64(i) / float64(fade)
		}
		if tail := len(samples) - 1 - i; tail < fade {
			gain *= float64(tail) / float64(fade)
		}
		samples[i] = float32(gain * math.Sin(2*math.Pi*frequency*float64(i)/float64(sampleRate)))
	}
	return &track.Track{Name: "beep", SampleRate: sampleRate, Samples: samples}
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}
