package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/audiosync/pkg/audio"
	_ "github.com/xaionaro-go/audiosync/pkg/audio/backends/oto"
	_ "github.com/xaionaro-go/audiosync/pkg/audio/backends/portaudio"
	_ "github.com/xaionaro-go/audiosync/pkg/audio/backends/pulseaudio"
	"github.com/xaionaro-go/audiosync/pkg/capture"
	"github.com/xaionaro-go/audiosync/pkg/config"
	"github.com/xaionaro-go/audiosync/pkg/matcher/implementations/gccphat"
	"github.com/xaionaro-go/audiosync/pkg/playback"
	"github.com/xaionaro-go/audiosync/pkg/synccontroller"
	"github.com/xaionaro-go/audiosync/pkg/timing"
	"github.com/xaionaro-go/audiosync/pkg/track"
	"github.com/xaionaro-go/observability"
)

func main() {
	loggerLevel := logger.LevelInfo
	pflag.Var(&loggerLevel, "log-level", "Log level")
	configPath := pflag.String("config", "", "path to a YAML config file")
	dumpConfig := pflag.Bool("dump-config", false, "print the effective config and exit")
	rawSampleRate := pflag.Uint32("raw-sample-rate", 48000, "sample rate of headerless .f32 tracks")
	volume := pflag.Float64("volume", -1, "playback volume (overrides the config if non-negative)")
	inputLatency := pflag.Duration("input-latency", 0, "capture latency (overrides the config and the device if non-zero)")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <track.ogg|track.wav|track.f32>\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		assertNoError(err)
	}
	if *volume >= 0 {
		cfg.Playback.Volume = *volume
	}
	if *inputLatency != 0 {
		cfg.Capture.InputLatency = config.Duration(*inputLatency)
	}
	assertNoError(cfg.Validate())

	if *dumpConfig {
		b, err := cfg.Bytes()
		assertNoError(err)
		os.Stdout.Write(b)
		return
	}

	if pflag.NArg() != 1 {
		pflag.Usage()
		os.Exit(2)
	}

	if *netPprofAddr != "" {
		observability.Go(ctx, func() { l.Error(http.ListenAndServe(*netPprofAddr, nil)) })
	}

	ctx, cancelFn := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancelFn()

	t, err := track.Load(ctx, pflag.Arg(0), track.LoadOptions{RawSampleRate: *rawSampleRate})
	assertNoError(err)

	clock := timing.NewMonotonicClock()

	player := audio.NewPlayerAuto(ctx)
	defer player.Close()
	engine, err := playback.New(ctx, cfg.PlaybackConfig(), player, clock, t)
	assertNoError(err)
	assertNoError(engine.Start(ctx))
	defer engine.Close()

	recorder := audio.NewRecorderAuto(ctx)
	defer recorder.Close()
	pipeline := capture.New(cfg.CaptureConfig(), recorder, clock)
	pipeline.OutputLatencyFunc = engine.OutputLatency

	m := gccphat.New(cfg.MatcherConfig(), cfg.Capture.SampleRate)

	controller, err := synccontroller.New(cfg.SyncController(), clock, m, pipeline, engine)
	assertNoError(err)

	logger.Infof(ctx, "starting (%T -> %T -> %T)", recorder.RecorderPCM, m, player.PlayerPCM)
	assertNoError(controller.Start(ctx, t.Catalog()))
	defer func() {
		if err := controller.Stop(context.WithoutCancel(ctx)); err != nil {
			logger.Errorf(ctx, "unable to stop: %v", err)
		}
	}()

	observability.Go(ctx, func() {
		printDiagnostics(ctx, controller.Subscribe(ctx))
	})
	observability.Go(ctx, func() {
		toggleListeningOnSignal(ctx, controller)
	})
	observability.Go(ctx, func() {
		if err := controller.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Errorf(ctx, "the sync loop failed: %v", err)
		}
	})

	select {
	case <-ctx.Done():
		logger.Infof(ctx, "interrupted")
	case <-engine.Done():
		logger.Infof(ctx, "the track is over")
	}
}

func printDiagnostics(ctx context.Context, ch <-chan synccontroller.Diagnostics) {
	var prevState synccontroller.SessionState
	for d := range ch {
		if d.State != prevState {
			logger.Infof(ctx, "session state: %s", d.State)
			prevState = d.State
		}
		logger.Debugf(ctx, "%s", d)
	}
}

// toggleListeningOnSignal pauses and resumes the capture on SIGUSR1.
func toggleListeningOnSignal(ctx context.Context, controller *synccontroller.Controller) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1)
	defer signal.Stop(sigCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigCh:
		}
		var err error
		if controller.State() == synccontroller.SessionStatePaused {
			err = controller.ResumeListening(ctx)
		} else {
			err = controller.PauseListening(ctx)
		}
		if err != nil {
			logger.Errorf(ctx, "unable to toggle listening: %v", err)
		}
	}
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}
