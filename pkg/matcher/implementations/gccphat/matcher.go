// Package gccphat implements a matcher which locates the captured audio in
// the catalog recording by GCC-PHAT cross-correlation.
package gccphat

import (
	"context"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/audiosync/pkg/audio"
	"github.com/xaionaro-go/audiosync/pkg/matcher"
	syncer "github.com/xaionaro-go/audiosync/pkg/syncer/implementations/gccphat"
)

type Matcher struct {
	Config            Config
	CaptureSampleRate uint32
}

var _ matcher.Matcher = (*Matcher)(nil)

// New returns a matcher for audio captured at captureSampleRate.
func New(cfg Config, captureSampleRate uint32) *Matcher {
	return &Matcher{
		Config:            cfg,
		CaptureSampleRate: captureSampleRate,
	}
}

func (m *Matcher) StartSession(
	ctx context.Context,
	catalog matcher.Catalog,
	listener matcher.Listener,
) (_ matcher.Session, _err error) {
	logger.Debugf(ctx, "StartSession(%q)", catalog.Name)
	defer func() { logger.Debugf(ctx, "/StartSession(%q): %v", catalog.Name, _err) }()

	if err := m.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid matcher config: %w", err)
	}
	if m.CaptureSampleRate == 0 {
		return nil, fmt.Errorf("the capture sample rate is not set")
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}

	windowSamples := int(m.Config.WindowSeconds * float64(m.CaptureSampleRate))
	hopSamples := int(m.Config.HopSeconds * float64(m.CaptureSampleRate))
	if windowSamples <= 0 || hopSamples <= 0 {
		return nil, fmt.Errorf("the window (%d samples) and the hop (%d samples) are too short", windowSamples, hopSamples)
	}

	analysisRate := m.Config.AnalysisSampleRate
	refSamples := resample(catalog.Samples, catalog.SampleRate, analysisRate)
	maxSnippetLen := int(m.Config.WindowSeconds*float64(analysisRate)) + 1
	ref, err := syncer.NewReference(refSamples, maxSnippetLen)
	if err != nil {
		return nil, fmt.Errorf("unable to prepare the catalog %q: %w", catalog.Name, err)
	}

	s, err := syncer.NewSyncer(audio.EncodingPCM{
		PCMFormat:  audio.PCMFormatFloat64LE,
		SampleRate: audio.SampleRate(analysisRate),
	}, 1)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the correlator: %w", err)
	}
	s.MinFreq = m.Config.MinFreq
	s.MaxFreq = m.Config.MaxFreq

	return newSession(ctx, sessionParams{
		Config:            m.Config,
		CaptureSampleRate: m.CaptureSampleRate,
		WindowSamples:     windowSamples,
		HopSamples:        hopSamples,
		Syncer:            s,
		Reference:         ref,
		Listener:          listener,
	}), nil
}
