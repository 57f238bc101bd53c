// Package config is the YAML configuration of audiosync.
//
// Every field has a default (see Default) and a file needs to mention
// only what it changes.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/xaionaro-go/audiosync/pkg/capture"
	"github.com/xaionaro-go/audiosync/pkg/matcher/implementations/gccphat"
	"github.com/xaionaro-go/audiosync/pkg/matchgate"
	"github.com/xaionaro-go/audiosync/pkg/playback"
	"github.com/xaionaro-go/audiosync/pkg/seekpolicy"
	"github.com/xaionaro-go/audiosync/pkg/signalestimator"
	"github.com/xaionaro-go/audiosync/pkg/synccontroller"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Gate       Gate       `yaml:"gate"`
	Signal     Signal     `yaml:"signal"`
	SeekPolicy SeekPolicy `yaml:"seek_policy"`
	Controller Controller `yaml:"controller"`
	Capture    Capture    `yaml:"capture"`
	Matcher    Matcher    `yaml:"matcher"`
	Playback   Playback   `yaml:"playback"`
}

type Gate struct {
	MinMatchInterval          Duration `yaml:"min_match_interval"`
	IgnoreAfterSeek           Duration `yaml:"ignore_after_seek"`
	SeekHysteresis            Duration `yaml:"seek_hysteresis"`
	MinSeekCompletionInterval Duration `yaml:"min_seek_completion_interval"`
}

type Signal struct {
	InitialConfidence float64  `yaml:"initial_confidence"`
	MatchIncrement    float64  `yaml:"match_increment"`
	NoMatchDecrement  float64  `yaml:"no_match_decrement"`
	DecayStep         float64  `yaml:"decay_step"`
	DecayAfter        Duration `yaml:"decay_after"`
	FarThreshold      float64  `yaml:"far_threshold"`
	RecoveryThreshold float64  `yaml:"recovery_threshold"`
}

type PredictiveOffset struct {
	MinVelocity float64  `yaml:"min_velocity"`
	Offset      Duration `yaml:"offset"`
}

type SeekPolicy struct {
	BaseThreshold       Duration           `yaml:"base_threshold"`
	LargeJump           Duration           `yaml:"large_jump"`
	LargeJumpThreshold  Duration           `yaml:"large_jump_threshold"`
	DriftMinStreak      int                `yaml:"drift_min_streak"`
	DriftThreshold      Duration           `yaml:"drift_threshold"`
	ForwardDriftFloor   Duration           `yaml:"forward_drift_floor"`
	BackwardDriftFloor  Duration           `yaml:"backward_drift_floor"`
	FastDriftVelocity   float64            `yaml:"fast_drift_velocity"`
	FastDriftFactor     float64            `yaml:"fast_drift_factor"`
	PredictiveMinStreak int                `yaml:"predictive_min_streak"`
	PredictiveOffsets   []PredictiveOffset `yaml:"predictive_offsets"`
	MinSeekSpacing      Duration           `yaml:"min_seek_spacing"`
}

type Controller struct {
	ProcessingOverhead Duration `yaml:"processing_overhead"`
	TickInterval       Duration `yaml:"tick_interval"`
}

type Capture struct {
	SampleRate   uint32   `yaml:"sample_rate"`
	FrameSamples int      `yaml:"frame_samples"`
	InputLatency Duration `yaml:"input_latency"`
	// OutputLatency is used only if the playback does not report one.
	OutputLatency Duration `yaml:"output_latency"`
}

type Matcher struct {
	Window             Duration `yaml:"window"`
	Hop                Duration `yaml:"hop"`
	AnalysisSampleRate uint32   `yaml:"analysis_sample_rate"`
	MinConfidence      float64  `yaml:"min_confidence"`
	MinFreq            float64  `yaml:"min_freq"`
	MaxFreq            float64  `yaml:"max_freq"`
}

type Playback struct {
	BufferSize     Duration `yaml:"buffer_size"`
	SpliceDuration Duration `yaml:"splice_duration"`
	Volume         float64  `yaml:"volume"`
}

func seconds(v float64) Duration {
	return Duration(time.Duration(math.Round(v * float64(time.Second))))
}

// Default returns the configuration built from the defaults of every component.
func Default() *Config {
	gate := matchgate.DefaultConfig()
	signal := signalestimator.DefaultConfig()
	policy := seekpolicy.DefaultConfig()
	controller := synccontroller.DefaultConfig()
	captureCfg := capture.DefaultConfig()
	matcherCfg := gccphat.DefaultConfig()
	playbackCfg := playback.DefaultConfig()

	offsets := make([]PredictiveOffset, 0, len(policy.PredictiveOffsets))
	for _, o := range policy.PredictiveOffsets {
		offsets = append(offsets, PredictiveOffset{
			MinVelocity: o.MinVelocity,
			Offset:      seconds(o.Offset),
		})
	}

	return &Config{
		Gate: Gate{
			MinMatchInterval:          seconds(gate.MinMatchInterval),
			IgnoreAfterSeek:           seconds(gate.IgnoreAfterSeek),
			SeekHysteresis:            seconds(gate.SeekHysteresis),
			MinSeekCompletionInterval: seconds(gate.MinSeekCompletionInterval),
		},
		Signal: Signal{
			InitialConfidence: signal.InitialConfidence,
			MatchIncrement:    signal.MatchIncrement,
			NoMatchDecrement:  signal.NoMatchDecrement,
			DecayStep:         signal.DecayStep,
			DecayAfter:        seconds(signal.DecayAfter),
			FarThreshold:      signal.FarThreshold,
			RecoveryThreshold: signal.RecoveryThreshold,
		},
		SeekPolicy: SeekPolicy{
			BaseThreshold:       seconds(policy.BaseThreshold),
			LargeJump:           seconds(policy.LargeJump),
			LargeJumpThreshold:  seconds(policy.LargeJumpThreshold),
			DriftMinStreak:      policy.DriftMinStreak,
			DriftThreshold:      seconds(policy.DriftThreshold),
			ForwardDriftFloor:   seconds(policy.ForwardDriftFloor),
			BackwardDriftFloor:  seconds(policy.BackwardDriftFloor),
			FastDriftVelocity:   policy.FastDriftVelocity,
			FastDriftFactor:     policy.FastDriftFactor,
			PredictiveMinStreak: policy.PredictiveMinStreak,
			PredictiveOffsets:   offsets,
			MinSeekSpacing:      seconds(policy.MinSeekSpacing),
		},
		Controller: Controller{
			ProcessingOverhead: seconds(controller.ProcessingOverheadSeconds),
			TickInterval:       Duration(controller.TickInterval),
		},
		Capture: Capture{
			SampleRate:    captureCfg.SampleRate,
			FrameSamples:  captureCfg.FrameSamples,
			InputLatency:  Duration(captureCfg.InputLatency),
			OutputLatency: Duration(captureCfg.OutputLatency),
		},
		Matcher: Matcher{
			Window:             seconds(matcherCfg.WindowSeconds),
			Hop:                seconds(matcherCfg.HopSeconds),
			AnalysisSampleRate: matcherCfg.AnalysisSampleRate,
			MinConfidence:      matcherCfg.MinConfidence,
			MinFreq:            matcherCfg.MinFreq,
			MaxFreq:            matcherCfg.MaxFreq,
		},
		Playback: Playback{
			BufferSize:     Duration(playbackCfg.BufferSize),
			SpliceDuration: Duration(playbackCfg.SpliceDuration),
			Volume:         playbackCfg.Volume,
		},
	}
}

// Load reads the YAML file at the path on top of Default.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open the config '%s': %w", path, err)
	}
	defer f.Close()

	cfg, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("unable to load the config '%s': %w", path, err)
	}
	return cfg, nil
}

// Read parses YAML on top of Default. Unknown fields are an error.
func Read(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Bytes returns the configuration as YAML.
func (cfg *Config) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("unable to encode the config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("unable to finalize the config: %w", err)
	}
	return buf.Bytes(), nil
}

// Validate checks the configuration of every component; all the errors wrap ErrInvalid.
func (cfg *Config) Validate() error {
	for _, check := range []struct {
		name string
		fn   func() error
	}{
		{"controller", cfg.SyncController().Validate},
		{"capture", cfg.CaptureConfig().Validate},
		{"matcher", cfg.MatcherConfig().Validate},
		{"playback", cfg.PlaybackConfig().Validate},
	} {
		if err := check.fn(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalid, check.name, err)
		}
	}
	if cfg.Matcher.Hop > cfg.Matcher.Window {
		return fmt.Errorf("%w: matcher: the hop (%v) is longer than the window (%v)", ErrInvalid, cfg.Matcher.Hop, cfg.Matcher.Window)
	}
	return nil
}

func (cfg *Config) SyncController() synccontroller.Config {
	offsets := make([]seekpolicy.PredictiveOffset, 0, len(cfg.SeekPolicy.PredictiveOffsets))
	for _, o := range cfg.SeekPolicy.PredictiveOffsets {
		offsets = append(offsets, seekpolicy.PredictiveOffset{
			MinVelocity: o.MinVelocity,
			Offset:      o.Offset.Seconds(),
		})
	}
	return synccontroller.Config{
		Gate: matchgate.Config{
			MinMatchInterval:          cfg.Gate.MinMatchInterval.Seconds(),
			IgnoreAfterSeek:           cfg.Gate.IgnoreAfterSeek.Seconds(),
			SeekHysteresis:            cfg.Gate.SeekHysteresis.Seconds(),
			MinSeekCompletionInterval: cfg.Gate.MinSeekCompletionInterval.Seconds(),
		},
		Estimator: signalestimator.Config{
			InitialConfidence: cfg.Signal.InitialConfidence,
			MatchIncrement:    cfg.Signal.MatchIncrement,
			NoMatchDecrement:  cfg.Signal.NoMatchDecrement,
			DecayStep:         cfg.Signal.DecayStep,
			DecayAfter:        cfg.Signal.DecayAfter.Seconds(),
			FarThreshold:      cfg.Signal.FarThreshold,
			RecoveryThreshold: cfg.Signal.RecoveryThreshold,
		},
		Policy: seekpolicy.Config{
			BaseThreshold:       cfg.SeekPolicy.BaseThreshold.Seconds(),
			LargeJump:           cfg.SeekPolicy.LargeJump.Seconds(),
			LargeJumpThreshold:  cfg.SeekPolicy.LargeJumpThreshold.Seconds(),
			DriftMinStreak:      cfg.SeekPolicy.DriftMinStreak,
			DriftThreshold:      cfg.SeekPolicy.DriftThreshold.Seconds(),
			ForwardDriftFloor:   cfg.SeekPolicy.ForwardDriftFloor.Seconds(),
			BackwardDriftFloor:  cfg.SeekPolicy.BackwardDriftFloor.Seconds(),
			FastDriftVelocity:   cfg.SeekPolicy.FastDriftVelocity,
			FastDriftFactor:     cfg.SeekPolicy.FastDriftFactor,
			PredictiveMinStreak: cfg.SeekPolicy.PredictiveMinStreak,
			PredictiveOffsets:   offsets,
			MinSeekSpacing:      cfg.SeekPolicy.MinSeekSpacing.Seconds(),
		},
		ProcessingOverheadSeconds: cfg.Controller.ProcessingOverhead.Seconds(),
		TickInterval:              cfg.Controller.TickInterval.Duration(),
	}
}

func (cfg *Config) CaptureConfig() capture.Config {
	return capture.Config{
		SampleRate:    cfg.Capture.SampleRate,
		FrameSamples:  cfg.Capture.FrameSamples,
		InputLatency:  cfg.Capture.InputLatency.Duration(),
		OutputLatency: cfg.Capture.OutputLatency.Duration(),
	}
}

func (cfg *Config) MatcherConfig() gccphat.Config {
	return gccphat.Config{
		WindowSeconds:      cfg.Matcher.Window.Seconds(),
		HopSeconds:         cfg.Matcher.Hop.Seconds(),
		AnalysisSampleRate: cfg.Matcher.AnalysisSampleRate,
		MinConfidence:      cfg.Matcher.MinConfidence,
		MinFreq:            cfg.Matcher.MinFreq,
		MaxFreq:            cfg.Matcher.MaxFreq,
	}
}

func (cfg *Config) PlaybackConfig() playback.Config {
	c := playback.DefaultConfig()
	c.BufferSize = cfg.Playback.BufferSize.Duration()
	c.SpliceDuration = cfg.Playback.SpliceDuration.Duration()
	c.Volume = cfg.Playback.Volume
	return c
}
