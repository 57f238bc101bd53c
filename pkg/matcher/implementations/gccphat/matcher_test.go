package gccphat

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/audiosync/pkg/matcher"
	"github.com/xaionaro-go/audiosync/pkg/timing"
)

const testRate = 8000

type collectingListener struct {
	locker    sync.Mutex
	matches   []matcher.MatchEvent
	noMatches []matcher.NoMatchEvent
	events    chan struct{}
}

func newCollectingListener() *collectingListener {
	return &collectingListener{events: make(chan struct{}, 1000)}
}

func (l *collectingListener) OnMatch(_ context.Context, ev matcher.MatchEvent) {
	l.locker.Lock()
	l.matches = append(l.matches, ev)
	l.locker.Unlock()
	l.events <- struct{}{}
}

func (l *collectingListener) OnNoMatch(_ context.Context, ev matcher.NoMatchEvent) {
	l.locker.Lock()
	l.noMatches = append(l.noMatches, ev)
	l.locker.Unlock()
	l.events <- struct{}{}
}

func (l *collectingListener) waitEvents(t *testing.T, count int) {
	for i := 0; i < count; i++ {
		select {
		case <-l.events:
		case <-time.After(10 * time.Second):
			t.Fatalf("timed out waiting for the event #%d", i)
		}
	}
}

func noiseCatalog(seconds int) matcher.Catalog {
	rng := rand.New(rand.NewSource(42))
	samples := make([]float32, seconds*testRate)
	for i := range samples {
		samples[i] = float32(rng.Float64()*2 - 1)
	}
	return matcher.Catalog{Name: "noise", SampleRate: testRate, Samples: samples}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.WindowSeconds = 1
	cfg.HopSeconds = 0.5
	return cfg
}

// feedFrom feeds the catalog from the given position, one frame at a time,
// waiting for the correlation after each completed hop. The timestamp of a
// frame is 100s plus the catalog position of its end.
func feedFrom(
	t *testing.T,
	session matcher.Session,
	listener *collectingListener,
	samples []float32,
	startSample int,
	frames int,
) {
	const frameSamples = 400 // hop is exactly 10 frames
	for i := 0; i < frames; i++ {
		begin := startSample + i*frameSamples
		frame := samples[begin : begin+frameSamples]
		end := begin + frameSamples
		session.Feed(frame, timing.SecondsToTicks(100+float64(end)/testRate))
		if fed := (i + 1) * frameSamples; fed >= testRate && (fed-testRate)%(testRate/2) == 0 {
			listener.waitEvents(t, 1)
		}
	}
}

func TestSession_Match(t *testing.T) {
	ctx := context.Background()
	catalog := noiseCatalog(6)
	listener := newCollectingListener()

	session, err := New(testConfig(), testRate).StartSession(ctx, catalog, listener)
	require.NoError(t, err)
	defer session.Close()

	feedFrom(t, session, listener, catalog.Samples, 2*testRate, 40)

	listener.locker.Lock()
	defer listener.locker.Unlock()
	require.Empty(t, listener.noMatches, spew.Sdump(listener.noMatches))
	// windows are complete after 20 frames, then every 10 frames
	require.Len(t, listener.matches, 3)
	for _, ev := range listener.matches {
		expected := ev.HardwareTimestamp.Seconds() - 100
		assert.InDelta(t, expected, ev.ReferenceOffsetSeconds, 1e-3, spew.Sdump(ev))
		assert.GreaterOrEqual(t, ev.Confidence, testConfig().MinConfidence)
	}
	assert.InDelta(t, 3.0, listener.matches[0].ReferenceOffsetSeconds, 1e-3)
}

func TestSession_ResampledCapture(t *testing.T) {
	ctx := context.Background()
	catalog := noiseCatalog(6)

	// the same audio captured at twice the rate
	captured := make([]float32, len(catalog.Samples)*2)
	for i := range captured {
		captured[i] = catalog.Samples[i/2]
	}

	listener := newCollectingListener()
	m := New(testConfig(), 2*testRate)
	session, err := m.StartSession(ctx, catalog, listener)
	require.NoError(t, err)
	defer session.Close()

	session.Feed(captured[4*testRate:8*testRate], timing.SecondsToTicks(50))
	listener.waitEvents(t, 1)

	listener.locker.Lock()
	defer listener.locker.Unlock()
	require.Len(t, listener.matches, 1, spew.Sdump(listener.noMatches))
	// the offset is of the last captured sample, regardless of when the match is delivered
	assert.InDelta(t, 4.0, listener.matches[0].ReferenceOffsetSeconds, 2e-3)
	assert.Equal(t, timing.SecondsToTicks(50), listener.matches[0].HardwareTimestamp)
}

func TestSession_NoMatch(t *testing.T) {
	ctx := context.Background()
	listener := newCollectingListener()
	session, err := New(testConfig(), testRate).StartSession(ctx, noiseCatalog(3), listener)
	require.NoError(t, err)
	defer session.Close()

	session.Feed(make([]float32, testRate), timing.SecondsToTicks(1))
	listener.waitEvents(t, 1)

	listener.locker.Lock()
	defer listener.locker.Unlock()
	require.Empty(t, listener.matches)
	require.Len(t, listener.noMatches, 1)
	assert.True(t, errors.Is(listener.noMatches[0].Reason, matcher.ErrLowConfidence), spew.Sdump(listener.noMatches))
}

func TestSession_Close(t *testing.T) {
	ctx := context.Background()
	listener := newCollectingListener()
	session, err := New(testConfig(), testRate).StartSession(ctx, noiseCatalog(3), listener)
	require.NoError(t, err)

	require.NoError(t, session.Close())
	<-session.(*Session).Done()

	session.Feed(noiseCatalog(3).Samples, timing.SecondsToTicks(1))
	select {
	case <-listener.events:
		t.Fatal("received an event after Close")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMatcher_StartSessionErrors(t *testing.T) {
	ctx := context.Background()
	listener := newCollectingListener()

	_, err := New(testConfig(), testRate).StartSession(ctx, matcher.Catalog{SampleRate: testRate}, listener)
	assert.ErrorIs(t, err, matcher.ErrEmptyCatalog)

	_, err = New(testConfig(), 0).StartSession(ctx, noiseCatalog(1), listener)
	assert.Error(t, err)

	cfg := testConfig()
	cfg.HopSeconds = 0
	_, err = New(cfg, testRate).StartSession(ctx, noiseCatalog(1), listener)
	assert.Error(t, err)
}

func TestResample(t *testing.T) {
	assert.Equal(t, []float64{1, 2}, resample([]float32{1, 2}, 10, 10))
	assert.Equal(t, []float64{1.5, 3.5}, resample([]float32{1, 2, 3, 4}, 20, 10))
	assert.Equal(t, []float64{0, 0.5, 1, 1}, resample([]float32{0, 1}, 10, 20))
}
