package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/audiosync/pkg/audio"
	_ "github.com/xaionaro-go/audiosync/pkg/audio/backends/portaudio"
	_ "github.com/xaionaro-go/audiosync/pkg/audio/backends/pulseaudio"
	"github.com/xaionaro-go/audiosync/pkg/capture"
	"github.com/xaionaro-go/audiosync/pkg/timing"
	"github.com/xaionaro-go/audiosync/pkg/track"
	"github.com/xaionaro-go/observability"
)

// record captures the microphone the same way audiosync does and
// saves it as a mono WAV file, e.g. to make a reference track.
func main() {
	loggerLevel := logger.LevelDebug
	pflag.Var(&loggerLevel, "log-level", "Log level")
	duration := pflag.Duration("duration", 10*time.Second, "how long to record")
	sampleRate := pflag.Uint32("sample-rate", 48000, "sample rate")
	bitDepth := pflag.Int("bit-depth", 16, "bit depth of the WAV file")
	pflag.Parse()

	if pflag.NArg() != 1 {
		panic("expected exactly one positional argument: path to the output WAV file")
	}

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	ctx, cancelFn := signal.NotifyContext(ctx, os.Interrupt)
	defer cancelFn()
	ctx, timeoutCancelFn := context.WithTimeout(ctx, *duration)
	defer timeoutCancelFn()

	logger.Infof(ctx, "starting...")
	recorder := audio.NewRecorderAuto(ctx)
	defer recorder.Close()

	cfg := capture.DefaultConfig()
	cfg.SampleRate = *sampleRate
	pipeline := capture.New(cfg, recorder, timing.NewMonotonicClock())

	var (
		locker  sync.Mutex
		samples []float32
	)
	assertNoError(pipeline.Start(ctx, capture.FrameHandlerFunc(func(f capture.Frame) {
		locker.Lock()
		defer locker.Unlock()
		samples = append(samples, f.Samples...)
	})))

	observability.Go(ctx, func() {
		logger.Tracef(ctx, "started the traffic count printer loop")
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				logger.Debugf(ctx, "captured: %d bytes (input latency: %.3fs)", pipeline.CapturedBytes(), pipeline.InputLatencySeconds())
			}
		}
	})

	<-ctx.Done()
	assertNoError(pipeline.Stop())

	f, err := os.Create(pflag.Arg(0))
	assertNoError(err)
	defer f.Close()

	locker.Lock()
	defer locker.Unlock()
	assertNoError(track.EncodeWAV(f, &track.Track{SampleRate: *sampleRate, Samples: samples}, *bitDepth))
	logger.Infof(ctx, "saved %d samples to '%s'", len(samples), pflag.Arg(0))
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}
