package gccphat

import (
	"fmt"
)

type Config struct {
	// WindowSeconds is the length of captured audio correlated at once.
	WindowSeconds float64
	// HopSeconds is how much new audio triggers the next correlation.
	HopSeconds float64
	// AnalysisSampleRate is the rate both the catalog and the captured
	// audio are resampled to before correlating.
	AnalysisSampleRate uint32
	// MinConfidence is the lowest confidence reported as a match.
	MinConfidence float64
	MinFreq       float64
	MaxFreq       float64
}

func DefaultConfig() Config {
	return Config{
		WindowSeconds:      1.5,
		HopSeconds:         0.5,
		AnalysisSampleRate: 8000,
		MinConfidence:      0.05,
		MinFreq:            100,
		MaxFreq:            3800,
	}
}

func (cfg Config) Validate() error {
	if !(cfg.WindowSeconds > 0) || !(cfg.HopSeconds > 0) {
		return fmt.Errorf("the window and the hop must be positive, got %v and %v", cfg.WindowSeconds, cfg.HopSeconds)
	}
	if cfg.AnalysisSampleRate == 0 {
		return fmt.Errorf("the analysis sample rate must be positive")
	}
	if !(cfg.MinConfidence >= 0 && cfg.MinConfidence <= 1) {
		return fmt.Errorf("the minimal confidence must be within [0, 1], got %v", cfg.MinConfidence)
	}
	if cfg.MaxFreq != 0 && cfg.MaxFreq <= cfg.MinFreq {
		return fmt.Errorf("the frequency band is empty: [%v, %v]", cfg.MinFreq, cfg.MaxFreq)
	}
	return nil
}
