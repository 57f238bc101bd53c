// Package synccontroller keeps the local playback aligned with an
// external audio source heard through the microphone.
//
// The Controller consumes match outcomes of a matcher session, filters
// them through a matchgate.Gate, tracks the reachability of the source
// with a signalestimator.Estimator and issues seeks to the playback as
// decided by a seekpolicy.Policy.
//
// All the mutable state is guarded by a single mutex; the capture path
// never takes it: captured frames go directly to the current matcher
// session, which is published through an atomic pointer.
package synccontroller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/audiosync/pkg/capture"
	"github.com/xaionaro-go/audiosync/pkg/matcher"
	"github.com/xaionaro-go/audiosync/pkg/matchgate"
	"github.com/xaionaro-go/audiosync/pkg/seekpolicy"
	"github.com/xaionaro-go/audiosync/pkg/signalestimator"
	"github.com/xaionaro-go/audiosync/pkg/timing"
	"github.com/xaionaro-go/observability"
)

var (
	ErrAlreadyStarted     = errors.New("the session is already started")
	ErrNotStarted         = errors.New("the session is not started")
	ErrInvalidTransition  = errors.New("invalid session state transition")
	ErrCaptureStartFailed = errors.New("unable to start the capture")
)

type matcherSession struct {
	matcher.Session
	epoch uint64
}

type Controller struct {
	Config Config

	clock    timing.Clock
	matcher  matcher.Matcher
	capture  CapturePipeline
	playback Playback

	// session is read by the capture goroutine without taking the locker
	session atomic.Pointer[matcherSession]

	locker        sync.Mutex
	gate          *matchgate.Gate
	estimator     *signalestimator.Estimator
	policy        *seekpolicy.Policy
	state         SessionState
	epoch         uint64
	sessionCtx    context.Context
	sessionCancel context.CancelFunc
	diag          Diagnostics
	subscribers   map[chan Diagnostics]struct{}
}

// New validates the config and wires the collaborators together.
func New(
	cfg Config,
	clock timing.Clock,
	m matcher.Matcher,
	capturePipeline CapturePipeline,
	playback Playback,
) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil || m == nil || capturePipeline == nil || playback == nil {
		return nil, fmt.Errorf("all the collaborators are required")
	}

	now := clock.Now()
	return &Controller{
		Config:      cfg,
		clock:       clock,
		matcher:     m,
		capture:     capturePipeline,
		playback:    playback,
		gate:        matchgate.New(cfg.Gate),
		estimator:   signalestimator.New(cfg.Estimator, now),
		policy:      seekpolicy.New(cfg.Policy),
		subscribers: map[chan Diagnostics]struct{}{},
	}, nil
}

// Start resets the gate, the estimator and the policy, then starts a
// matcher session against the catalog and the capture. If the capture
// cannot be started, the session is torn down and the error is returned.
func (c *Controller) Start(
	ctx context.Context,
	catalog matcher.Catalog,
) (_err error) {
	logger.Debugf(ctx, "Start(%q)", catalog.Name)
	defer func() { logger.Debugf(ctx, "/Start(%q): %v", catalog.Name, _err) }()

	c.locker.Lock()
	defer c.locker.Unlock()

	if c.state != SessionStateStopped {
		return fmt.Errorf("%w (state: %s)", ErrAlreadyStarted, c.state)
	}
	if err := catalog.Validate(); err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}

	c.setState(ctx, SessionStateStarting)
	c.epoch++
	epoch := c.epoch
	c.playback.SetSessionEpoch(epoch)

	now := c.clock.Now()
	c.gate.Reset()
	c.estimator.Reset(now)
	c.policy.Reset()
	c.diag = Diagnostics{}

	// the session must outlive the caller's context, only Stop ends it
	c.sessionCtx, c.sessionCancel = context.WithCancel(context.WithoutCancel(ctx))

	session, err := c.matcher.StartSession(c.sessionCtx, catalog, &sessionListener{
		controller: c,
		epoch:      epoch,
	})
	if err != nil {
		c.teardown(ctx)
		return fmt.Errorf("unable to start a matcher session: %w", err)
	}
	c.session.Store(&matcherSession{Session: session, epoch: epoch})

	if err := c.capture.Start(c.sessionCtx, capture.FrameHandlerFunc(c.onFrame)); err != nil {
		if tErr := c.teardown(ctx); tErr != nil {
			logger.Errorf(ctx, "unable to tear down the session: %v", tErr)
		}
		return fmt.Errorf("%w: %w", ErrCaptureStartFailed, err)
	}

	c.setState(ctx, SessionStateListening)
	return nil
}

// Stop tears down the capture and the matcher session. The configuration
// is kept for the next Start. Seeks issued before Stop are discarded by
// the playback.
func (c *Controller) Stop(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Stop")
	defer func() { logger.Debugf(ctx, "/Stop: %v", _err) }()

	c.locker.Lock()
	defer c.locker.Unlock()

	if c.state == SessionStateStopped {
		return ErrNotStarted
	}
	return c.teardown(ctx)
}

// teardown must be called with the locker held.
func (c *Controller) teardown(ctx context.Context) error {
	var mErr *multierror.Error

	c.epoch++
	c.playback.SetSessionEpoch(c.epoch)

	if err := c.capture.Stop(); err != nil {
		mErr = multierror.Append(mErr, fmt.Errorf("unable to stop the capture: %w", err))
	}
	if session := c.session.Swap(nil); session != nil {
		if err := session.Close(); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to close the matcher session: %w", err))
		}
	}
	if c.sessionCancel != nil {
		c.sessionCancel()
		c.sessionCancel = nil
	}

	c.setState(ctx, SessionStateStopped)
	return mErr.ErrorOrNil()
}

// PauseListening stops the capture but keeps the session.
func (c *Controller) PauseListening(ctx context.Context) error {
	c.locker.Lock()
	defer c.locker.Unlock()

	if !c.state.CanTransitionTo(SessionStatePaused) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.state, SessionStatePaused)
	}
	if err := c.capture.Stop(); err != nil {
		return fmt.Errorf("unable to stop the capture: %w", err)
	}
	c.setState(ctx, SessionStatePaused)
	return nil
}

// ResumeListening re-acquires the capture. If that fails, the whole session
// is torn down and the error is returned.
func (c *Controller) ResumeListening(ctx context.Context) error {
	c.locker.Lock()
	defer c.locker.Unlock()

	if c.state != SessionStatePaused {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.state, SessionStateListening)
	}
	if err := c.capture.Start(c.sessionCtx, capture.FrameHandlerFunc(c.onFrame)); err != nil {
		if tErr := c.teardown(ctx); tErr != nil {
			logger.Errorf(ctx, "unable to tear down the session: %v", tErr)
		}
		return fmt.Errorf("%w: %w", ErrCaptureStartFailed, err)
	}
	if c.estimator.State.IsSourceFar {
		c.setState(ctx, SessionStateRecovering)
	} else {
		c.setState(ctx, SessionStateListening)
	}
	return nil
}

// onFrame is called on the capture goroutine.
func (c *Controller) onFrame(f capture.Frame) {
	if session := c.session.Load(); session != nil {
		session.Feed(f.Samples, f.Timestamp)
	}
}

// OnMatch handles a match of the current session.
func (c *Controller) OnMatch(ctx context.Context, ev matcher.MatchEvent) {
	c.locker.Lock()
	defer c.locker.Unlock()
	c.onMatch(ctx, c.epoch, ev)
}

// OnNoMatch handles a failed matching attempt of the current session.
func (c *Controller) OnNoMatch(ctx context.Context, ev matcher.NoMatchEvent) {
	c.locker.Lock()
	defer c.locker.Unlock()
	c.onNoMatch(ctx, c.epoch, ev)
}

func (c *Controller) onMatch(ctx context.Context, epoch uint64, ev matcher.MatchEvent) {
	if epoch != c.epoch || !c.state.acceptsMatches() {
		logger.Tracef(ctx, "ignoring a match of epoch %d in epoch %d (state: %s)", epoch, c.epoch, c.state)
		return
	}
	defer c.publish()

	c.diag.MatchCount++
	admitted, verdict := c.gate.Admit(ev.HardwareTimestamp)
	c.diag.LastVerdict = verdict
	if !admitted {
		logger.Tracef(ctx, "rejected a match at %.3fs: %s", ev.ReferenceOffsetSeconds, verdict)
		return
	}
	c.diag.AdmittedCount++

	now := c.clock.Now()
	defer c.estimator.OnActionableMatch(now)

	if c.playback.IsPaused() {
		logger.Tracef(ctx, "the playback is paused, not seeking")
		return
	}

	target := ev.ReferenceOffsetSeconds + c.roundTripLatencySeconds()
	d := c.policy.Evaluate(target, c.playback.CurrentPositionSeconds(), now)
	c.diag.HasDecision = true
	c.diag.LastDecision = d
	if !d.Issue() {
		logger.Tracef(ctx, "%s", d)
		return
	}

	cmd := SeekCommand{
		TargetSeconds: d.CompensatedTargetSeconds,
		IssuedAtTicks: now,
		Epoch:         c.epoch,
	}
	c.gate.OnSeekIssued(now)
	c.diag.SeekCount++
	logger.Debugf(ctx, "%s", d)
	c.playback.Seek(cmd)
}

func (c *Controller) onNoMatch(ctx context.Context, epoch uint64, ev matcher.NoMatchEvent) {
	if epoch != c.epoch || !c.state.acceptsMatches() {
		return
	}
	logger.Tracef(ctx, "no match: %v", ev.Reason)
	c.diag.NoMatchCount++
	c.estimator.OnNoMatch()
	c.publish()
}

func (c *Controller) roundTripLatencySeconds() float64 {
	return c.capture.InputLatencySeconds() + c.capture.OutputLatencySeconds() + c.Config.ProcessingOverheadSeconds
}

// OnSeekCompleted opens the post-seek cooldown of the gate and records
// the seek latency. Completions of other epochs are ignored.
func (c *Controller) OnSeekCompleted(ctx context.Context, completion SeekCompletion) {
	c.locker.Lock()
	defer c.locker.Unlock()

	if completion.Epoch != c.epoch || c.state == SessionStateStopped {
		logger.Tracef(ctx, "ignoring a seek completion of epoch %d in epoch %d", completion.Epoch, c.epoch)
		return
	}
	c.gate.OnSeekCompleted(completion.CompletedAtTicks)
	c.diag.LastSeekLatency = time.Duration(completion.LatencySeconds() * float64(time.Second))
	logger.Debugf(ctx, "seek completed in %v", c.diag.LastSeekLatency)
	c.publish()
}

// Tick decays the confidence and handles the transitions of the source
// reachability. It is idempotent for the same clock value.
func (c *Controller) Tick(ctx context.Context) {
	c.locker.Lock()
	defer c.locker.Unlock()

	if !c.state.IsActive() {
		return
	}
	defer c.publish()

	result := c.estimator.Tick(ctx, c.clock.Now())
	if result.Transition == signalestimator.TransitionBecameFar {
		logger.Infof(ctx, "lost the source, waiting for it to come back")
	}
	if c.estimator.State.IsSourceFar && c.state == SessionStateListening {
		c.setState(ctx, SessionStateRecovering)
	}
	if !result.RecoveryEligible || c.state == SessionStatePaused {
		return
	}

	if !c.capture.IsRunning() {
		logger.Infof(ctx, "the source is reachable again, resuming the capture")
		if err := c.capture.Start(c.sessionCtx, capture.FrameHandlerFunc(c.onFrame)); err != nil {
			logger.Errorf(ctx, "unable to resume the capture: %v", err)
			return
		}
	}
	if c.state != SessionStateListening {
		c.setState(ctx, SessionStateListening)
	}
}

// Run drives Tick periodically and forwards seek completions of the
// playback until the context is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	logger.Debugf(ctx, "Run")
	defer logger.Debugf(ctx, "/Run")

	ticker := time.NewTicker(c.Config.TickInterval)
	defer ticker.Stop()
	completions := c.playback.Completions()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Tick(ctx)
		case completion, ok := <-completions:
			if !ok {
				completions = nil
				continue
			}
			c.OnSeekCompleted(ctx, completion)
		}
	}
}

// State returns the current session state.
func (c *Controller) State() SessionState {
	c.locker.Lock()
	defer c.locker.Unlock()
	return c.state
}

// setState must be called with the locker held. Invalid transitions are
// a programming error, they are logged and ignored.
func (c *Controller) setState(ctx context.Context, next SessionState) {
	if c.state == next {
		return
	}
	if !c.state.CanTransitionTo(next) {
		logger.Errorf(ctx, "internal error: invalid transition %s -> %s", c.state, next)
		return
	}
	logger.Debugf(ctx, "session state: %s -> %s", c.state, next)
	c.state = next
	c.publish()
}

// Diagnostics returns a snapshot of the controller.
func (c *Controller) Diagnostics() Diagnostics {
	c.locker.Lock()
	defer c.locker.Unlock()
	return c.diagnostics()
}

func (c *Controller) diagnostics() Diagnostics {
	d := c.diag
	d.State = c.state
	d.Epoch = c.epoch
	d.Confidence = c.estimator.State.Confidence
	d.IsSourceFar = c.estimator.State.IsSourceFar
	d.CapturedBytes = c.capture.CapturedBytes()
	return d
}

// Subscribe returns a channel receiving a Diagnostics snapshot on every
// change. A slow subscriber gets only the latest snapshot. The channel
// is closed when the context is cancelled.
func (c *Controller) Subscribe(ctx context.Context) <-chan Diagnostics {
	ch := make(chan Diagnostics, 1)

	c.locker.Lock()
	c.subscribers[ch] = struct{}{}
	ch <- c.diagnostics()
	c.locker.Unlock()

	observability.Go(ctx, func() {
		<-ctx.Done()
		c.locker.Lock()
		defer c.locker.Unlock()
		delete(c.subscribers, ch)
		close(ch)
	})
	return ch
}

// publish must be called with the locker held.
func (c *Controller) publish() {
	if len(c.subscribers) == 0 {
		return
	}
	d := c.diagnostics()
	for ch := range c.subscribers {
		select {
		case ch <- d:
			continue
		default:
		}
		// drop the stale snapshot; only publish writes and it holds the locker
		select {
		case <-ch:
		default:
		}
		ch <- d
	}
}

type sessionListener struct {
	controller *Controller
	epoch      uint64
}

var _ matcher.Listener = (*sessionListener)(nil)

func (l *sessionListener) OnMatch(ctx context.Context, ev matcher.MatchEvent) {
	l.controller.locker.Lock()
	defer l.controller.locker.Unlock()
	l.controller.onMatch(ctx, l.epoch, ev)
}

func (l *sessionListener) OnNoMatch(ctx context.Context, ev matcher.NoMatchEvent) {
	l.controller.locker.Lock()
	defer l.controller.locker.Unlock()
	l.controller.onNoMatch(ctx, l.epoch, ev)
}
