// Package capture records the microphone and delivers the audio as
// fixed-size timestamped frames.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/audiosync/pkg/audio"
	"github.com/xaionaro-go/audiosync/pkg/timing"
	"github.com/xaionaro-go/datacounter"
)

var (
	ErrAlreadyRunning = errors.New("the capture is already running")
)

type Config struct {
	SampleRate   uint32
	FrameSamples int
	// InputLatency overrides the latency reported by the recording stream if non-zero.
	InputLatency time.Duration
	// OutputLatency is used if no OutputLatencyFunc is set.
	OutputLatency time.Duration
}

func DefaultConfig() Config {
	return Config{
		SampleRate:   48000,
		FrameSamples: 512,
	}
}

func (cfg Config) Validate() error {
	if cfg.SampleRate == 0 {
		return fmt.Errorf("the sample rate must be positive")
	}
	if cfg.FrameSamples <= 0 {
		return fmt.Errorf("the frame size must be positive, got %d", cfg.FrameSamples)
	}
	if cfg.InputLatency < 0 || cfg.OutputLatency < 0 {
		return fmt.Errorf("latencies must be non-negative, got %v and %v", cfg.InputLatency, cfg.OutputLatency)
	}
	return nil
}

// Pipeline is safe for concurrent use.
type Pipeline struct {
	Config   Config
	Recorder audio.RecorderPCM
	Clock    timing.Clock

	// OutputLatencyFunc reports the latency of the playback path, if known.
	OutputLatencyFunc func() time.Duration

	locker        sync.Mutex
	stream        audio.RecordStream
	counter       *datacounter.WriterCounter
	capturedTotal uint64
	inputLatency  atomic.Int64
}

func New(
	cfg Config,
	recorder audio.RecorderPCM,
	clock timing.Clock,
) *Pipeline {
	return &Pipeline{
		Config:   cfg,
		Recorder: recorder,
		Clock:    clock,
	}
}

func (p *Pipeline) Start(
	ctx context.Context,
	handler FrameHandler,
) (_err error) {
	logger.Debugf(ctx, "Start")
	defer func() { logger.Debugf(ctx, "/Start: %v", _err) }()

	if err := p.Config.Validate(); err != nil {
		return fmt.Errorf("invalid capture config: %w", err)
	}

	p.locker.Lock()
	defer p.locker.Unlock()
	if p.stream != nil {
		return ErrAlreadyRunning
	}

	f := newFramer(p.Clock, p.Config.SampleRate, p.Config.FrameSamples, p.currentInputLatency, handler)
	counter := datacounter.NewWriterCounter(f)

	// the stream reports its latency only once it exists; until then the
	// configured (or zero) latency is used
	p.inputLatency.Store(int64(p.Config.InputLatency))
	stream, err := p.Recorder.RecordPCM(
		ctx,
		audio.SampleRate(p.Config.SampleRate),
		1,
		audio.PCMFormatFloat32LE,
		counter,
	)
	if err != nil {
		return fmt.Errorf("unable to start recording: %w", err)
	}
	if p.Config.InputLatency == 0 {
		p.inputLatency.Store(int64(audio.StreamLatency(stream, 0)))
	}
	logger.Debugf(ctx, "input latency: %v", p.currentInputLatency())

	p.stream = stream
	p.counter = counter
	return nil
}

func (p *Pipeline) currentInputLatency() time.Duration {
	return time.Duration(p.inputLatency.Load())
}

// Stop is a no-op if the capture is not running.
func (p *Pipeline) Stop() error {
	p.locker.Lock()
	stream, counter := p.stream, p.counter
	p.stream, p.counter = nil, nil
	if counter != nil {
		p.capturedTotal += counter.Count()
	}
	p.locker.Unlock()
	if stream == nil {
		return nil
	}

	// closing may wait for the device goroutine, which must not be blocked on us
	err := stream.Close()
	if err != nil {
		return fmt.Errorf("unable to close the recording stream: %w", err)
	}
	return nil
}

func (p *Pipeline) IsRunning() bool {
	p.locker.Lock()
	defer p.locker.Unlock()
	return p.stream != nil
}

func (p *Pipeline) InputLatencySeconds() float64 {
	return p.currentInputLatency().Seconds()
}

func (p *Pipeline) OutputLatencySeconds() float64 {
	if p.OutputLatencyFunc != nil {
		if l := p.OutputLatencyFunc(); l > 0 {
			return l.Seconds()
		}
	}
	return p.Config.OutputLatency.Seconds()
}

// CapturedBytes is the total amount of bytes received from the device
// since the Pipeline was created.
func (p *Pipeline) CapturedBytes() uint64 {
	p.locker.Lock()
	defer p.locker.Unlock()
	total := p.capturedTotal
	if p.counter != nil {
		total += p.counter.Count()
	}
	return total
}
