// Package playback plays a decoded track through an audio player and
// lets it be re-positioned on the fly.
//
// The Engine is the io.Reader the player pulls PCM from, so a seek takes
// effect on the next pull of the device. The jump is smoothed by
// synthesizing a short gap between the audio played before the seek and
// the audio at the new position.
package playback

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/audiosync/pkg/audio"
	"github.com/xaionaro-go/audiosync/pkg/interpolation"
	"github.com/xaionaro-go/audiosync/pkg/interpolation/fourier"
	"github.com/xaionaro-go/audiosync/pkg/synccontroller"
	"github.com/xaionaro-go/audiosync/pkg/timing"
	"github.com/xaionaro-go/audiosync/pkg/track"
)

var (
	ErrAlreadyPlaying = errors.New("the playback is already started")
	ErrNotPlaying     = errors.New("the playback is not started")
)

const (
	bytesPerSample = 4
	historyLength  = 2 * fourier.DefaultWindowSize
)

type Config struct {
	// BufferSize is the device buffer requested from the player.
	BufferSize time.Duration
	// SpliceDuration is the length of the synthesized gap at a seek.
	SpliceDuration time.Duration
	// Volume is the initial gain.
	Volume float64
	// CompletionsQueue is the capacity of the seek completions channel.
	CompletionsQueue int
}

func DefaultConfig() Config {
	return Config{
		BufferSize:       audio.BufferSize,
		SpliceDuration:   5 * time.Millisecond,
		Volume:           1,
		CompletionsQueue: 16,
	}
}

func (cfg Config) Validate() error {
	if cfg.BufferSize <= 0 {
		return fmt.Errorf("the buffer size must be positive, got %v", cfg.BufferSize)
	}
	if cfg.SpliceDuration < 0 {
		return fmt.Errorf("the splice duration must be non-negative, got %v", cfg.SpliceDuration)
	}
	if !(cfg.Volume >= 0) {
		return fmt.Errorf("the volume must be non-negative, got %v", cfg.Volume)
	}
	if cfg.CompletionsQueue <= 0 {
		return fmt.Errorf("the completions queue must be positive, got %d", cfg.CompletionsQueue)
	}
	return nil
}

type Engine struct {
	Config       Config
	Interpolator interpolation.Interpolator

	ctx        context.Context
	clock      timing.Clock
	player     audio.PlayerPCM
	sampleRate uint32
	samples    []float32

	locker      sync.Mutex
	stream      audio.PlayStream
	starting    bool
	latency     time.Duration
	cursor      int
	splice      []float64
	history     []float64
	epoch       uint64
	pending     *synccontroller.SeekCommand
	paused      bool
	volume      float64
	finished    bool
	doneCh      chan struct{}
	completions chan synccontroller.SeekCompletion
}

var (
	_ io.Reader               = (*Engine)(nil)
	_ synccontroller.Playback = (*Engine)(nil)
)

func New(
	ctx context.Context,
	cfg Config,
	player audio.PlayerPCM,
	clock timing.Clock,
	t *track.Track,
) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if t == nil || t.SampleRate == 0 || len(t.Samples) == 0 {
		return nil, fmt.Errorf("the track is empty")
	}
	return &Engine{
		Config:       cfg,
		Interpolator: fourier.New(),
		ctx:          ctx,
		clock:        clock,
		player:       player,
		sampleRate:   t.SampleRate,
		samples:      t.Samples,
		latency:      cfg.BufferSize,
		volume:       cfg.Volume,
		doneCh:       make(chan struct{}),
		completions:  make(chan synccontroller.SeekCompletion, cfg.CompletionsQueue),
	}, nil
}

// Start opens a mono float32 stream on the player and starts pulling the track.
func (e *Engine) Start(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Start")
	defer func() { logger.Debugf(ctx, "/Start: %v", _err) }()

	e.locker.Lock()
	if e.stream != nil || e.starting {
		e.locker.Unlock()
		return ErrAlreadyPlaying
	}
	e.starting = true
	e.locker.Unlock()

	// the player may pull from the engine before PlayPCM returns
	stream, err := e.player.PlayPCM(
		ctx,
		audio.SampleRate(e.sampleRate),
		1,
		audio.PCMFormatFloat32LE,
		e.Config.BufferSize,
		e,
	)

	e.locker.Lock()
	defer e.locker.Unlock()
	e.starting = false
	if err != nil {
		return fmt.Errorf("unable to start playing: %w", err)
	}
	e.stream = stream
	e.latency = audio.StreamLatency(stream, e.Config.BufferSize)
	logger.Debugf(ctx, "output latency: %v", e.latency)
	return nil
}

// Close stops the device stream.
func (e *Engine) Close() error {
	e.locker.Lock()
	stream := e.stream
	e.stream = nil
	e.locker.Unlock()

	if stream == nil {
		return ErrNotPlaying
	}
	return stream.Close()
}

// Read fills the buffer with mono float32le samples. It is called by the
// audio backend.
func (e *Engine) Read(p []byte) (int, error) {
	count := len(p) / bytesPerSample
	if count == 0 {
		return 0, io.ErrShortBuffer
	}

	e.locker.Lock()
	defer e.locker.Unlock()

	if e.pending != nil {
		e.applySeek(*e.pending)
		e.pending = nil
	}

	if e.paused {
		clear(p[:count*bytesPerSample])
		return count * bytesPerSample, nil
	}

	written := 0
	for written < count {
		var v float64
		switch {
		case len(e.splice) > 0:
			v = e.splice[0]
			e.splice = e.splice[1:]
		case e.cursor < len(e.samples):
			v = float64(e.samples[e.cursor])
			e.cursor++
		default:
			e.finish()
			if written == 0 {
				return 0, io.EOF
			}
			return written * bytesPerSample, nil
		}
		e.remember(v)
		binary.LittleEndian.PutUint32(
			p[written*bytesPerSample:],
			math.Float32bits(float32(clamp(v*e.volume))),
		)
		written++
	}
	return written * bytesPerSample, nil
}

// applySeek must be called with the locker held.
func (e *Engine) applySeek(cmd synccontroller.SeekCommand) {
	now := e.clock.Now()

	// the track kept moving while the command was waiting for the device
	target := cmd.TargetSeconds + timing.ElapsedSeconds(cmd.IssuedAtTicks, now)
	newCursor := e.secondsToSamples(target)

	spliceLen := min(
		e.secondsToSamples(e.Config.SpliceDuration.Seconds()),
		len(e.samples)-newCursor,
	)
	e.splice = nil
	if spliceLen > 0 && len(e.history) > 0 {
		after := e.samplesFloat64(newCursor+spliceLen, historyLength)
		e.splice = e.Interpolator.Interpolate(e.history, after, spliceLen)
		newCursor += spliceLen
	}
	e.cursor = newCursor
	if e.cursor < len(e.samples) {
		e.finished = false
	}

	logger.Debugf(e.ctx, "seeked to %.3fs (requested %.3fs)", float64(e.cursor)/float64(e.sampleRate), cmd.TargetSeconds)
	completion := synccontroller.SeekCompletion{
		Epoch:            cmd.Epoch,
		IssuedAtTicks:    cmd.IssuedAtTicks,
		CompletedAtTicks: now,
	}
	select {
	case e.completions <- completion:
	default:
		logger.Warnf(e.ctx, "the seek completions queue is full, dropping %#+v", completion)
	}
}

func (e *Engine) secondsToSamples(seconds float64) int {
	if !(seconds > 0) {
		return 0
	}
	idx := math.Round(seconds * float64(e.sampleRate))
	if idx >= float64(len(e.samples)) {
		return len(e.samples)
	}
	return int(idx)
}

func (e *Engine) samplesFloat64(from, count int) []float64 {
	to := min(from+count, len(e.samples))
	if from >= to {
		return nil
	}
	result := make([]float64, to-from)
	for i := range result {
		result[i] = float64(e.samples[from+i])
	}
	return result
}

func (e *Engine) remember(v float64) {
	if len(e.history) >= historyLength {
		copy(e.history, e.history[1:])
		e.history[len(e.history)-1] = v
		return
	}
	e.history = append(e.history, v)
}

func (e *Engine) finish() {
	if e.finished {
		return
	}
	e.finished = true
	logger.Debugf(e.ctx, "reached the end of the track")
	select {
	case <-e.doneCh:
	default:
		close(e.doneCh)
	}
}

// Done is closed when the end of the track was delivered to the device.
func (e *Engine) Done() <-chan struct{} {
	return e.doneCh
}

// CurrentPositionSeconds is the track position of the next sample handed
// to the device. It is the timeframe of SeekCommand.TargetSeconds; the audio
// being heard lags it by OutputLatency.
func (e *Engine) CurrentPositionSeconds() float64 {
	e.locker.Lock()
	defer e.locker.Unlock()
	return float64(e.cursor-len(e.splice)) / float64(e.sampleRate)
}

func (e *Engine) DurationSeconds() float64 {
	return float64(len(e.samples)) / float64(e.sampleRate)
}

// OutputLatency is the delay of the device path.
func (e *Engine) OutputLatency() time.Duration {
	e.locker.Lock()
	defer e.locker.Unlock()
	return e.latency
}

// Seek queues the command to be applied on the next device read. A newer
// command replaces a queued one. Commands of another session epoch are
// discarded.
func (e *Engine) Seek(cmd synccontroller.SeekCommand) {
	e.locker.Lock()
	defer e.locker.Unlock()
	if cmd.Epoch != e.epoch {
		logger.Tracef(e.ctx, "discarding a seek of epoch %d in epoch %d", cmd.Epoch, e.epoch)
		return
	}
	e.pending = &cmd
}

func (e *Engine) SetSessionEpoch(epoch uint64) {
	e.locker.Lock()
	defer e.locker.Unlock()
	e.epoch = epoch
	if e.pending != nil && e.pending.Epoch != epoch {
		logger.Tracef(e.ctx, "discarding the queued seek of epoch %d", e.pending.Epoch)
		e.pending = nil
	}
}

func (e *Engine) Completions() <-chan synccontroller.SeekCompletion {
	return e.completions
}

func (e *Engine) IsPaused() bool {
	e.locker.Lock()
	defer e.locker.Unlock()
	return e.paused
}

// Pause makes the engine deliver silence without moving along the track.
func (e *Engine) Pause() {
	e.locker.Lock()
	defer e.locker.Unlock()
	e.paused = true
}

func (e *Engine) Resume() {
	e.locker.Lock()
	defer e.locker.Unlock()
	e.paused = false
}

func (e *Engine) Volume() float64 {
	e.locker.Lock()
	defer e.locker.Unlock()
	return e.volume
}

func (e *Engine) SetVolume(v float64) error {
	if !(v >= 0) {
		return fmt.Errorf("the volume must be non-negative, got %v", v)
	}
	e.locker.Lock()
	defer e.locker.Unlock()
	e.volume = v
	return nil
}

func clamp(v float64) float64 {
	switch {
	case v < -1:
		return -1
	case v > 1:
		return 1
	default:
		return v
	}
}
