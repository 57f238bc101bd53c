package playback

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/audiosync/pkg/capture"
	"github.com/xaionaro-go/audiosync/pkg/interpolation"
	"github.com/xaionaro-go/audiosync/pkg/matcher"
	"github.com/xaionaro-go/audiosync/pkg/synccontroller"
	"github.com/xaionaro-go/audiosync/pkg/timing"
)

type idleSession struct{}

func (idleSession) Feed([]float32, timing.Ticks) {}
func (idleSession) Close() error                 { return nil }

type idleMatcher struct{}

func (idleMatcher) StartSession(context.Context, matcher.Catalog, matcher.Listener) (matcher.Session, error) {
	return idleSession{}, nil
}

// engineCapture reports a fixed input latency and the output latency of the engine.
type engineCapture struct {
	engine       *Engine
	inputLatency float64
	running      bool
}

func (c *engineCapture) Start(context.Context, capture.FrameHandler) error {
	c.running = true
	return nil
}

func (c *engineCapture) Stop() error {
	c.running = false
	return nil
}

func (c *engineCapture) IsRunning() bool               { return c.running }
func (c *engineCapture) InputLatencySeconds() float64  { return c.inputLatency }
func (c *engineCapture) OutputLatencySeconds() float64 { return c.engine.OutputLatency().Seconds() }
func (c *engineCapture) CapturedBytes() uint64         { return 0 }

// closedLoop drives a real Engine and a real Controller on a manual clock.
// The device pulls 10ms of audio per step. The external source is at
// "sourceAhead" seconds relatively to what the engine plays.
type closedLoop struct {
	t            *testing.T
	ctx          context.Context
	clock        *timing.ManualClock
	player       *fakePlayer
	engine       *Engine
	controller   *synccontroller.Controller
	inputLatency float64
	overhead     float64
	startSeconds float64
	sourceAhead  float64
}

func newClosedLoop(t *testing.T) *closedLoop {
	ctx := context.Background()
	l := &closedLoop{
		t:            t,
		ctx:          ctx,
		clock:        timing.NewManualClock(timing.SecondsToTicks(10)),
		player:       &fakePlayer{latency: 100 * time.Millisecond},
		inputLatency: 0.05,
		startSeconds: 10,
	}

	tr := rampTrack(60)
	e, err := New(ctx, DefaultConfig(), l.player, l.clock, tr)
	require.NoError(t, err)
	e.Interpolator = interpolation.NewLinear()
	require.NoError(t, e.Start(ctx))
	l.engine = e

	cfg := synccontroller.DefaultConfig()
	l.overhead = cfg.ProcessingOverheadSeconds
	c, err := synccontroller.New(
		cfg,
		l.clock,
		idleMatcher{},
		&engineCapture{engine: e, inputLatency: l.inputLatency},
		e,
	)
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx, tr.Catalog()))
	l.controller = c
	return l
}

// heardSeconds is the position of the external source being heard at "at".
func (l *closedLoop) heardSeconds(at timing.Ticks) float64 {
	return at.Seconds() - l.startSeconds - l.engine.OutputLatency().Seconds() + l.sourceAhead
}

// runSeconds advances the simulation, reporting a match every second.
func (l *closedLoop) runSeconds(seconds int) {
	for sec := 0; sec < seconds; sec++ {
		for step := 0; step < 100; step++ {
			l.clock.Advance(0.01)
			readSamples(l.t, l.player.reader, testRate/100)
			for drained := false; !drained; {
				select {
				case completion := <-l.engine.Completions():
					l.controller.OnSeekCompleted(l.ctx, completion)
				default:
					drained = true
				}
			}
		}

		// the matched audio reached the microphone the input latency (plus
		// the processing time) before the match is delivered
		capturedAt := l.clock.Now().Add(-(l.inputLatency + l.overhead))
		l.controller.OnMatch(l.ctx, matcher.MatchEvent{
			ReferenceOffsetSeconds: l.heardSeconds(capturedAt),
			HardwareTimestamp:      capturedAt,
			Confidence:             0.5,
		})
	}
}

func TestEngine_ClosedLoopInSync(t *testing.T) {
	l := newClosedLoop(t)
	l.runSeconds(20)

	d := l.controller.Diagnostics()
	assert.Equal(t, uint64(20), d.AdmittedCount)
	assert.Zero(t, d.SeekCount, spew.Sdump(d.LastDecision))
	assert.InDelta(t, 0, d.LastDecision.Diff, 1e-6)
}

func TestEngine_ClosedLoopSettlesAfterJump(t *testing.T) {
	l := newClosedLoop(t)
	l.runSeconds(3)
	require.Zero(t, l.controller.Diagnostics().SeekCount)

	l.sourceAhead = 1
	l.runSeconds(1)
	d := l.controller.Diagnostics()
	require.Equal(t, uint64(1), d.SeekCount, spew.Sdump(d.LastDecision))
	assert.InDelta(t, 1, d.LastDecision.Diff, 1e-6)

	l.runSeconds(15)
	d = l.controller.Diagnostics()
	assert.Equal(t, uint64(1), d.SeekCount, spew.Sdump(d.LastDecision))
	// the 10ms step of the simulation bounds the residual error
	assert.Less(t, math.Abs(d.LastDecision.Diff), 0.05, spew.Sdump(d.LastDecision))
	assert.Greater(t, d.LastSeekLatency, time.Duration(0))
}
