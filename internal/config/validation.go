package config

import (
	"fmt"
	"strings"

	"reitloop/internal/logger"
	"reitloop/internal/scheduler"
	"reitloop/internal/types"
)

func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	if err := c.Features.validate(); err != nil {
		return err
	}
	if err := c.Training.validate(); err != nil {
		return err
	}
	if err := c.Sweep.validate(); err != nil {
		return err
	}
	return nil
}

func (a *AppConfig) validate() error {
	if _, err := logger.ParseLevel(a.LogLevel); err != nil {
		return fmt.Errorf("app.log_level: %w", err)
	}
	switch logger.Format(strings.ToLower(strings.TrimSpace(a.LogFormat))) {
	case logger.FormatText, logger.FormatJSON:
	default:
		return fmt.Errorf("app.log_format must be text or json, got %q", a.LogFormat)
	}
	return nil
}

func (s *StoreConfig) validate() error {
	if strings.TrimSpace(s.Path) == "" {
		return fmt.Errorf("store.path is required")
	}
	return nil
}

func (f *FeaturesConfig) validate() error {
	if f.LookbackDays <= 0 {
		return fmt.Errorf("features.lookback_days must be > 0")
	}
	if f.MarketLookback < 0 {
		return fmt.Errorf("features.market_lookback must be >= 0")
	}
	if f.BreakerThreshold <= 0 {
		return fmt.Errorf("features.breaker_threshold must be > 0")
	}
	if f.BreakerTimeoutSeconds <= 0 {
		return fmt.Errorf("features.breaker_timeout_seconds must be > 0")
	}
	return nil
}

func (t *TrainingConfig) validate() error {
	mode, err := types.ParseTrainingMode(t.Mode)
	if err != nil {
		return fmt.Errorf("training.mode: %w", err)
	}
	t.Mode = string(mode)
	if t.Epochs <= 0 {
		return fmt.Errorf("training.epochs must be > 0")
	}
	if t.Patience < 0 {
		return fmt.Errorf("training.patience must be >= 0")
	}
	if t.MinDelta < 0 {
		return fmt.Errorf("training.min_delta must be >= 0")
	}
	if t.LearningRate <= 0 {
		return fmt.Errorf("training.learning_rate must be > 0")
	}
	if t.WindowDays <= 0 {
		return fmt.Errorf("training.window_days must be > 0")
	}
	for i, u := range t.HiddenUnits {
		if u <= 0 {
			return fmt.Errorf("training.hidden_units[%d] must be > 0", i)
		}
	}
	switch t.Activation {
	case "relu", "linear", "sigmoid", "tanh":
	default:
		return fmt.Errorf("training.activation %q is not supported", t.Activation)
	}
	if strings.TrimSpace(t.ArtifactDir) == "" {
		return fmt.Errorf("training.artifact_dir is required")
	}
	return nil
}

func (s *SweepConfig) validate() error {
	if !s.Enabled {
		return nil
	}
	if _, ok := scheduler.ParseIntervalDuration(s.Interval); !ok {
		return fmt.Errorf("sweep.interval %q is invalid", s.Interval)
	}
	return nil
}
