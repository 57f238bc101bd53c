package synccontroller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/audiosync/pkg/capture"
	"github.com/xaionaro-go/audiosync/pkg/matcher"
	"github.com/xaionaro-go/audiosync/pkg/matchgate"
	"github.com/xaionaro-go/audiosync/pkg/timing"
)

type fakeSession struct {
	locker sync.Mutex
	fed    []timing.Ticks
	closed bool
}

func (s *fakeSession) Feed(samples []float32, ts timing.Ticks) {
	s.locker.Lock()
	defer s.locker.Unlock()
	s.fed = append(s.fed, ts)
}

func (s *fakeSession) Close() error {
	s.locker.Lock()
	defer s.locker.Unlock()
	s.closed = true
	return nil
}

type fakeMatcher struct {
	locker    sync.Mutex
	err       error
	sessions  []*fakeSession
	listeners []matcher.Listener
}

func (m *fakeMatcher) StartSession(
	ctx context.Context,
	catalog matcher.Catalog,
	listener matcher.Listener,
) (matcher.Session, error) {
	m.locker.Lock()
	defer m.locker.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	s := &fakeSession{}
	m.sessions = append(m.sessions, s)
	m.listeners = append(m.listeners, listener)
	return s, nil
}

func (m *fakeMatcher) lastListener() matcher.Listener {
	m.locker.Lock()
	defer m.locker.Unlock()
	return m.listeners[len(m.listeners)-1]
}

type fakeCapture struct {
	locker     sync.Mutex
	startErr   error
	running    bool
	startCount int
	handler    capture.FrameHandler
}

var _ CapturePipeline = (*fakeCapture)(nil)

func (c *fakeCapture) Start(ctx context.Context, handler capture.FrameHandler) error {
	c.locker.Lock()
	defer c.locker.Unlock()
	c.startCount++
	if c.startErr != nil {
		return c.startErr
	}
	c.running = true
	c.handler = handler
	return nil
}

func (c *fakeCapture) Stop() error {
	c.locker.Lock()
	defer c.locker.Unlock()
	c.running = false
	return nil
}

func (c *fakeCapture) IsRunning() bool {
	c.locker.Lock()
	defer c.locker.Unlock()
	return c.running
}

func (c *fakeCapture) InputLatencySeconds() float64  { return 0.03 }
func (c *fakeCapture) OutputLatencySeconds() float64 { return 0.05 }
func (c *fakeCapture) CapturedBytes() uint64         { return 4096 }

type fakePlayback struct {
	locker      sync.Mutex
	position    float64
	paused      bool
	epoch       uint64
	seeks       []SeekCommand
	completions chan SeekCompletion
}

var _ Playback = (*fakePlayback)(nil)

func newFakePlayback(position float64) *fakePlayback {
	return &fakePlayback{
		position:    position,
		completions: make(chan SeekCompletion, 10),
	}
}

func (p *fakePlayback) CurrentPositionSeconds() float64 {
	p.locker.Lock()
	defer p.locker.Unlock()
	return p.position
}

func (p *fakePlayback) IsPaused() bool {
	p.locker.Lock()
	defer p.locker.Unlock()
	return p.paused
}

func (p *fakePlayback) Seek(cmd SeekCommand) {
	p.locker.Lock()
	defer p.locker.Unlock()
	p.seeks = append(p.seeks, cmd)
}

func (p *fakePlayback) SetSessionEpoch(epoch uint64) {
	p.locker.Lock()
	defer p.locker.Unlock()
	p.epoch = epoch
}

func (p *fakePlayback) Completions() <-chan SeekCompletion {
	return p.completions
}

func (p *fakePlayback) Seeks() []SeekCommand {
	p.locker.Lock()
	defer p.locker.Unlock()
	return append([]SeekCommand(nil), p.seeks...)
}

type testEnv struct {
	clock      *timing.ManualClock
	matcher    *fakeMatcher
	capture    *fakeCapture
	playback   *fakePlayback
	controller *Controller
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	env := &testEnv{
		clock:    timing.NewManualClock(timing.SecondsToTicks(100)),
		matcher:  &fakeMatcher{},
		capture:  &fakeCapture{},
		playback: newFakePlayback(10),
	}
	c, err := New(cfg, env.clock, env.matcher, env.capture, env.playback)
	require.NoError(t, err)
	env.controller = c
	return env
}

func testCatalog() matcher.Catalog {
	return matcher.Catalog{
		Name:       "test",
		SampleRate: 8000,
		Samples:    make([]float32, 8000),
	}
}

func (env *testEnv) match(offset float64) matcher.MatchEvent {
	return matcher.MatchEvent{
		ReferenceOffsetSeconds: offset,
		HardwareTimestamp:      env.clock.Now(),
		Confidence:             0.5,
	}
}

func TestController_SeekOnLargeDifference(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultConfig())
	c := env.controller

	require.NoError(t, c.Start(ctx, testCatalog()))
	require.Equal(t, SessionStateListening, c.State())
	require.Equal(t, uint64(1), env.playback.epoch)

	// 12.0 + 0.03 + 0.05 + 0.02 of round trip against the position of 10.0
	env.controller.OnMatch(ctx, env.match(12.0))

	seeks := env.playback.Seeks()
	require.Len(t, seeks, 1)
	assert.InDelta(t, 12.1, seeks[0].TargetSeconds, 1e-9)
	assert.Equal(t, env.clock.Now(), seeks[0].IssuedAtTicks)
	assert.Equal(t, uint64(1), seeks[0].Epoch)

	d := c.Diagnostics()
	assert.Equal(t, uint64(1), d.MatchCount)
	assert.Equal(t, uint64(1), d.AdmittedCount)
	assert.Equal(t, uint64(1), d.SeekCount)
	assert.True(t, d.HasDecision)
	assert.Equal(t, uint64(4096), d.CapturedBytes)

	// a duplicate
	env.clock.Advance(0.1)
	c.OnMatch(ctx, env.match(12.1))
	assert.Equal(t, matchgate.VerdictDuplicate, c.Diagnostics().LastVerdict)

	// within the hysteresis of the issued seek
	env.clock.Advance(0.2)
	c.OnMatch(ctx, env.match(12.3))
	assert.Equal(t, matchgate.VerdictSeekHysteresis, c.Diagnostics().LastVerdict)
	require.Len(t, env.playback.Seeks(), 1)
}

func TestController_InSync(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultConfig())
	env.playback.position = 12.05
	require.NoError(t, env.controller.Start(ctx, testCatalog()))

	env.controller.OnMatch(ctx, env.match(12.0))
	assert.Empty(t, env.playback.Seeks())
	d := env.controller.Diagnostics()
	assert.Equal(t, uint64(1), d.AdmittedCount)
	assert.False(t, d.LastDecision.ShouldSeek, spew.Sdump(d.LastDecision))
}

func TestController_PausedPlayback(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Estimator.InitialConfidence = 0.5
	env := newTestEnv(t, cfg)
	env.playback.paused = true
	require.NoError(t, env.controller.Start(ctx, testCatalog()))

	env.controller.OnMatch(ctx, env.match(30))
	assert.Empty(t, env.playback.Seeks())
	d := env.controller.Diagnostics()
	assert.False(t, d.HasDecision)
	assert.InDelta(t, 0.7, d.Confidence, 1e-9)
}

func TestController_NoMatch(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultConfig())
	require.NoError(t, env.controller.Start(ctx, testCatalog()))

	env.matcher.lastListener().OnNoMatch(ctx, matcher.NoMatchEvent{Reason: matcher.ErrLowConfidence})
	d := env.controller.Diagnostics()
	assert.Equal(t, uint64(1), d.NoMatchCount)
	assert.InDelta(t, 0.95, d.Confidence, 1e-9)
}

func TestController_SeekCompletion(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultConfig())
	c := env.controller
	require.NoError(t, c.Start(ctx, testCatalog()))

	c.OnMatch(ctx, env.match(12.0))
	seeks := env.playback.Seeks()
	require.Len(t, seeks, 1)

	c.OnSeekCompleted(ctx, SeekCompletion{
		Epoch:            seeks[0].Epoch + 100,
		IssuedAtTicks:    seeks[0].IssuedAtTicks,
		CompletedAtTicks: seeks[0].IssuedAtTicks.Add(0.25),
	})
	assert.Zero(t, c.Diagnostics().LastSeekLatency)

	c.OnSeekCompleted(ctx, SeekCompletion{
		Epoch:            seeks[0].Epoch,
		IssuedAtTicks:    seeks[0].IssuedAtTicks,
		CompletedAtTicks: seeks[0].IssuedAtTicks.Add(0.25),
	})
	assert.Equal(t, 250*time.Millisecond, c.Diagnostics().LastSeekLatency)

	// past the hysteresis, but within the completion cooldown
	env.clock.Advance(0.9)
	c.OnMatch(ctx, env.match(13.0))
	assert.Equal(t, matchgate.VerdictSeekCompletionCooldown, c.Diagnostics().LastVerdict)

	env.clock.Advance(0.2)
	c.OnMatch(ctx, env.match(13.2))
	assert.Equal(t, matchgate.VerdictAdmitted, c.Diagnostics().LastVerdict)
}

func TestController_FramesGoToTheSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultConfig())
	require.NoError(t, env.controller.Start(ctx, testCatalog()))

	env.capture.handler.OnFrame(capture.Frame{Samples: make([]float32, 4), Timestamp: 42})
	session := env.matcher.sessions[0]
	assert.Equal(t, []timing.Ticks{42}, session.fed)

	require.NoError(t, env.controller.Stop(ctx))
	assert.True(t, session.closed)
	env.capture.handler.OnFrame(capture.Frame{Samples: make([]float32, 4), Timestamp: 43})
	assert.Equal(t, []timing.Ticks{42}, session.fed)
}

func TestController_StartFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid_catalog", func(t *testing.T) {
		env := newTestEnv(t, DefaultConfig())
		err := env.controller.Start(ctx, matcher.Catalog{Name: "empty", SampleRate: 8000})
		require.ErrorIs(t, err, matcher.ErrEmptyCatalog)
		assert.Equal(t, SessionStateStopped, env.controller.State())
		assert.Empty(t, env.matcher.sessions)
	})

	t.Run("matcher", func(t *testing.T) {
		env := newTestEnv(t, DefaultConfig())
		env.matcher.err = errors.New("no fingerprints")
		require.Error(t, env.controller.Start(ctx, testCatalog()))
		assert.Equal(t, SessionStateStopped, env.controller.State())
		assert.Equal(t, 0, env.capture.startCount)
	})

	t.Run("capture", func(t *testing.T) {
		env := newTestEnv(t, DefaultConfig())
		env.capture.startErr = errors.New("no microphone")
		err := env.controller.Start(ctx, testCatalog())
		require.ErrorIs(t, err, ErrCaptureStartFailed)
		assert.Equal(t, SessionStateStopped, env.controller.State())
		require.Len(t, env.matcher.sessions, 1)
		assert.True(t, env.matcher.sessions[0].closed)
		assert.Equal(t, uint64(2), env.playback.epoch)

		// the caller decides to retry
		env.capture.startErr = nil
		require.NoError(t, env.controller.Start(ctx, testCatalog()))
		assert.Equal(t, SessionStateListening, env.controller.State())
	})
}

func TestController_StartStop(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultConfig())
	c := env.controller

	require.ErrorIs(t, c.Stop(ctx), ErrNotStarted)
	require.NoError(t, c.Start(ctx, testCatalog()))
	require.ErrorIs(t, c.Start(ctx, testCatalog()), ErrAlreadyStarted)
	oldListener := env.matcher.lastListener()

	require.NoError(t, c.Stop(ctx))
	assert.False(t, env.capture.IsRunning())
	assert.Equal(t, uint64(2), env.playback.epoch)

	c.OnMatch(ctx, env.match(50))
	assert.Empty(t, env.playback.Seeks())

	require.NoError(t, c.Start(ctx, testCatalog()))
	assert.Equal(t, uint64(3), env.playback.epoch)

	// a late event of the previous session
	oldListener.OnMatch(ctx, env.match(50))
	assert.Empty(t, env.playback.Seeks())
	assert.Zero(t, c.Diagnostics().MatchCount)

	env.matcher.lastListener().OnMatch(ctx, env.match(50))
	seeks := env.playback.Seeks()
	require.Len(t, seeks, 1)
	assert.Equal(t, uint64(3), seeks[0].Epoch)
}

func TestController_PauseResumeListening(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultConfig())
	c := env.controller

	require.ErrorIs(t, c.PauseListening(ctx), ErrInvalidTransition)
	require.NoError(t, c.Start(ctx, testCatalog()))
	require.ErrorIs(t, c.ResumeListening(ctx), ErrInvalidTransition)

	require.NoError(t, c.PauseListening(ctx))
	assert.Equal(t, SessionStatePaused, c.State())
	assert.False(t, env.capture.IsRunning())

	c.OnMatch(ctx, env.match(50))
	assert.Zero(t, c.Diagnostics().MatchCount)

	require.NoError(t, c.ResumeListening(ctx))
	assert.Equal(t, SessionStateListening, c.State())
	assert.True(t, env.capture.IsRunning())

	require.NoError(t, c.PauseListening(ctx))
	env.capture.startErr = errors.New("the device is gone")
	require.ErrorIs(t, c.ResumeListening(ctx), ErrCaptureStartFailed)
	assert.Equal(t, SessionStateStopped, c.State())
}

func TestController_FarSourceAndRecovery(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Estimator.InitialConfidence = 0.25
	env := newTestEnv(t, cfg)
	env.playback.position = 12.1
	c := env.controller
	require.NoError(t, c.Start(ctx, testCatalog()))

	c.Tick(ctx)
	assert.Equal(t, SessionStateListening, c.State())

	env.clock.Advance(6)
	c.Tick(ctx)
	d := c.Diagnostics()
	assert.Equal(t, SessionStateRecovering, d.State)
	assert.True(t, d.IsSourceFar)
	assert.InDelta(t, 0.15, d.Confidence, 1e-9)

	// repeated ticks at the same time are idempotent
	c.Tick(ctx)
	assert.InDelta(t, 0.15, c.Diagnostics().Confidence, 1e-9)

	// the capture died meanwhile; the recovery re-acquires it
	require.NoError(t, env.capture.Stop())
	startCount := env.capture.startCount

	c.OnMatch(ctx, env.match(12.0))
	assert.Equal(t, SessionStateRecovering, c.State())
	c.Tick(ctx)
	d = c.Diagnostics()
	assert.Equal(t, SessionStateListening, d.State, spew.Sdump(d))
	assert.False(t, d.IsSourceFar)
	assert.True(t, env.capture.IsRunning())
	assert.Equal(t, startCount+1, env.capture.startCount)
}

func TestController_FailedRecoveryIsNotFatal(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Estimator.InitialConfidence = 0.15
	env := newTestEnv(t, cfg)
	env.playback.position = 12.1
	c := env.controller
	require.NoError(t, c.Start(ctx, testCatalog()))

	c.Tick(ctx)
	require.Equal(t, SessionStateRecovering, c.State())

	require.NoError(t, env.capture.Stop())
	env.capture.startErr = errors.New("busy")
	c.OnMatch(ctx, env.match(12.0))
	c.Tick(ctx)
	assert.Equal(t, SessionStateRecovering, c.State())
	assert.False(t, env.capture.IsRunning())
}

func TestController_ConcurrentStopAndMatches(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultConfig())
	c := env.controller
	require.NoError(t, c.Start(ctx, testCatalog()))
	listener := env.matcher.lastListener()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ev := env.match(float64(i*100 + j))
				listener.OnMatch(ctx, ev)
				listener.OnNoMatch(ctx, matcher.NoMatchEvent{Reason: matcher.ErrLowConfidence})
				env.capture.handler.OnFrame(capture.Frame{Timestamp: ev.HardwareTimestamp})
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 100; j++ {
			env.clock.Advance(0.01)
			c.Tick(ctx)
		}
		assert.NoError(t, c.Stop(ctx))
	}()
	wg.Wait()

	assert.Equal(t, SessionStateStopped, c.State())
	for _, seek := range env.playback.Seeks() {
		assert.Equal(t, uint64(1), seek.Epoch)
	}
}

func TestController_Subscribe(t *testing.T) {
	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()
	env := newTestEnv(t, DefaultConfig())
	c := env.controller

	ch := c.Subscribe(ctx)
	d := <-ch
	assert.Equal(t, SessionStateStopped, d.State)

	require.NoError(t, c.Start(ctx, testCatalog()))
	c.OnNoMatch(ctx, matcher.NoMatchEvent{Reason: matcher.ErrLowConfidence})

	// only the latest snapshot is kept
	d = <-ch
	assert.Equal(t, SessionStateListening, d.State)
	assert.Equal(t, uint64(1), d.NoMatchCount)

	cancelFn()
	require.Eventually(t, func() bool {
		_, ok := <-ch
		return !ok
	}, time.Second, time.Millisecond)
}

func TestController_Run(t *testing.T) {
	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()
	cfg := DefaultConfig()
	cfg.TickInterval = time.Millisecond
	env := newTestEnv(t, cfg)
	c := env.controller
	require.NoError(t, c.Start(ctx, testCatalog()))

	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	issuedAt := env.clock.Now()
	env.playback.completions <- SeekCompletion{
		Epoch:            1,
		IssuedAtTicks:    issuedAt,
		CompletedAtTicks: issuedAt.Add(0.1),
	}
	require.Eventually(t, func() bool {
		return c.Diagnostics().LastSeekLatency == 100*time.Millisecond
	}, time.Second, time.Millisecond)

	cancelFn()
	require.ErrorIs(t, <-errCh, context.Canceled)
}

func TestSessionState_Transitions(t *testing.T) {
	all := []SessionState{
		SessionStateStopped,
		SessionStateStarting,
		SessionStateListening,
		SessionStatePaused,
		SessionStateRecovering,
	}
	allowed := map[SessionState][]SessionState{
		SessionStateStopped:    {SessionStateStopped, SessionStateStarting},
		SessionStateStarting:   {SessionStateStopped, SessionStateListening},
		SessionStateListening:  {SessionStateStopped, SessionStatePaused, SessionStateRecovering},
		SessionStatePaused:     {SessionStateStopped, SessionStateListening, SessionStateRecovering},
		SessionStateRecovering: {SessionStateStopped, SessionStateListening, SessionStatePaused},
	}
	for _, from := range all {
		for _, to := range all {
			expected := false
			for _, s := range allowed[from] {
				if s == to {
					expected = true
				}
			}
			assert.Equal(t, expected, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
	assert.Equal(t, "unknown_state_42", SessionState(42).String())
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.TickInterval = 0
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Gate.SeekHysteresis = -1
	require.Error(t, cfg.Validate())

	_, err := New(cfg, timing.NewManualClock(1), &fakeMatcher{}, &fakeCapture{}, newFakePlayback(0))
	require.Error(t, err)
}
