package gccphat

import (
	"context"
	"fmt"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/audiosync/pkg/matcher"
	syncer "github.com/xaionaro-go/audiosync/pkg/syncer/implementations/gccphat"
	"github.com/xaionaro-go/audiosync/pkg/timing"
	"github.com/xaionaro-go/observability"
)

type sessionParams struct {
	Config            Config
	CaptureSampleRate uint32
	WindowSamples     int
	HopSamples        int
	Syncer            *syncer.Syncer
	Reference         *syncer.Reference
	Listener          matcher.Listener
}

type job struct {
	Window    []float32
	Timestamp timing.Ticks
}

type Session struct {
	sessionParams

	ctx        context.Context
	cancelFunc context.CancelFunc
	jobs       chan job
	done       chan struct{}

	locker        sync.Mutex
	ring          []float32
	ringPos       int
	filled        int
	sinceLastJob  int
	lastTimestamp timing.Ticks
}

var _ matcher.Session = (*Session)(nil)

func newSession(ctx context.Context, params sessionParams) *Session {
	ctx, cancelFn := context.WithCancel(ctx)
	s := &Session{
		sessionParams: params,
		ctx:           ctx,
		cancelFunc:    cancelFn,
		jobs:          make(chan job, 1),
		done:          make(chan struct{}),
		ring:          make([]float32, params.WindowSamples),
	}
	observability.Go(ctx, func() {
		defer close(s.done)
		s.loop(ctx)
	})
	return s
}

// Feed appends the samples to the window. Once a hop worth of new audio is
// collected, the window is handed over to the correlation goroutine; if that
// one is still busy the window just keeps sliding.
func (s *Session) Feed(samples []float32, hardwareTimestamp timing.Ticks) {
	if s.ctx.Err() != nil {
		return
	}

	s.locker.Lock()
	defer s.locker.Unlock()

	for len(samples) > 0 {
		n := copy(s.ring[s.ringPos:], samples)
		samples = samples[n:]
		s.ringPos = (s.ringPos + n) % len(s.ring)
		s.filled = min(s.filled+n, len(s.ring))
		s.sinceLastJob += n
	}
	s.lastTimestamp = hardwareTimestamp

	if s.filled < len(s.ring) || s.sinceLastJob < s.HopSamples {
		return
	}

	window := make([]float32, 0, len(s.ring))
	window = append(window, s.ring[s.ringPos:]...)
	window = append(window, s.ring[:s.ringPos]...)
	select {
	case s.jobs <- job{Window: window, Timestamp: hardwareTimestamp}:
		s.sinceLastJob = 0
	default:
	}
}

func (s *Session) loop(ctx context.Context) {
	logger.Debugf(ctx, "matcher loop")
	defer logger.Debugf(ctx, "/matcher loop")

	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.jobs:
			s.process(ctx, j)
		}
	}
}

func (s *Session) process(ctx context.Context, j job) {
	analysisRate := float64(s.Config.AnalysisSampleRate)
	snippet := resample(j.Window, s.CaptureSampleRate, s.Config.AnalysisSampleRate)

	result, err := s.Syncer.Locate(ctx, s.Reference, snippet)
	if ctx.Err() != nil {
		return
	}
	switch {
	case err != nil:
		err = fmt.Errorf("unable to locate the captured audio: %w", err)
	case result.Confidence < s.Config.MinConfidence:
		err = fmt.Errorf("%w: %.3f < %.3f", matcher.ErrLowConfidence, result.Confidence, s.Config.MinConfidence)
	case result.Shift < -0.5 || result.Shift+float64(len(snippet)) > float64(s.Reference.Length)+0.5:
		err = fmt.Errorf("the candidate position %.1f is outside of the catalog", result.Shift)
	}
	if err != nil {
		logger.Tracef(ctx, "no match: %v", err)
		s.Listener.OnNoMatch(ctx, matcher.NoMatchEvent{Reason: err})
		return
	}

	ev := matcher.MatchEvent{
		ReferenceOffsetSeconds: (result.Shift + float64(len(snippet))) / analysisRate,
		HardwareTimestamp:      j.Timestamp,
		Confidence:             result.Confidence,
	}
	logger.Tracef(ctx, "match: %#+v", ev)
	s.Listener.OnMatch(ctx, ev)
}

// Close stops the session without waiting for an in-flight correlation;
// no events are reported after it returns, unless one is being delivered already.
func (s *Session) Close() error {
	s.cancelFunc()
	return nil
}

// Done is closed when the correlation goroutine exits.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
