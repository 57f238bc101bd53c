package synccontroller

import (
	"fmt"
	"time"

	"github.com/xaionaro-go/audiosync/pkg/matchgate"
	"github.com/xaionaro-go/audiosync/pkg/seekpolicy"
	"github.com/xaionaro-go/audiosync/pkg/signalestimator"
)

type Config struct {
	Gate      matchgate.Config
	Estimator signalestimator.Config
	Policy    seekpolicy.Config

	// ProcessingOverheadSeconds is added to the hardware latencies
	// to get the round-trip latency.
	ProcessingOverheadSeconds float64

	// TickInterval is the period of the signal decay and recovery checks.
	TickInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Gate:                      matchgate.DefaultConfig(),
		Estimator:                 signalestimator.DefaultConfig(),
		Policy:                    seekpolicy.DefaultConfig(),
		ProcessingOverheadSeconds: 0.02,
		TickInterval:              2 * time.Second,
	}
}

func (cfg Config) Validate() error {
	if err := cfg.Gate.Validate(); err != nil {
		return fmt.Errorf("invalid match gate config: %w", err)
	}
	if err := cfg.Estimator.Validate(); err != nil {
		return fmt.Errorf("invalid signal estimator config: %w", err)
	}
	if err := cfg.Policy.Validate(); err != nil {
		return fmt.Errorf("invalid seek policy config: %w", err)
	}
	if !(cfg.ProcessingOverheadSeconds >= 0) {
		return fmt.Errorf("the processing overhead must be non-negative, got %v", cfg.ProcessingOverheadSeconds)
	}
	if cfg.TickInterval <= 0 {
		return fmt.Errorf("the tick interval must be positive, got %v", cfg.TickInterval)
	}
	return nil
}
