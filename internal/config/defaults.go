package config

import "strings"

const (
	defaultAppEnv            = "dev"
	defaultAppLogLevel       = "info"
	defaultAppLogFormat      = "text"
	defaultAppHTTPAddr       = ":9991"
	defaultAppLogPath        = "data/logs/reitloop.log"
	defaultStorePath         = "data/reitloop.db"
	defaultLookbackDays      = 7
	defaultSeedWeightsPath   = "configs/weights.yaml"
	defaultMarketLookback    = 60
	defaultBreakerThreshold  = 5
	defaultBreakerTimeoutSec = 60
	defaultTrainingMode      = "full"
	defaultEpochs            = 100
	defaultPatience          = 10
	defaultMinDelta          = 1e-4
	defaultLearningRate      = 0.01
	defaultWindowDays        = 90
	defaultActivation        = "relu"
	defaultOptimizer         = "sgd"
	defaultLoss              = "mse"
	defaultArtifactDir       = "data/models"
	defaultBaseVersion       = "v1.0.0"
	defaultSweepInterval     = "1h"
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Features.applyDefaults(keys)
	c.Training.applyDefaults(keys)
	c.Versioning.applyDefaults(keys)
	c.Sweep.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("store.path", &s.Path, defaultStorePath),
	)
}

func (f *FeaturesConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		intFieldDefault("features.lookback_days", &f.LookbackDays, defaultLookbackDays),
		stringFieldDefault("features.seed_weights_path", &f.SeedWeightsPath, defaultSeedWeightsPath),
		intFieldDefault("features.market_lookback", &f.MarketLookback, defaultMarketLookback),
		intFieldDefault("features.breaker_threshold", &f.BreakerThreshold, defaultBreakerThreshold),
		intFieldDefault("features.breaker_timeout_seconds", &f.BreakerTimeoutSeconds, defaultBreakerTimeoutSec),
	)
}

func (t *TrainingConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("training.mode", &t.Mode, defaultTrainingMode),
		intFieldDefault("training.epochs", &t.Epochs, defaultEpochs),
		intFieldDefault("training.patience", &t.Patience, defaultPatience),
		fieldDefault{
			key:   "training.min_delta",
			need:  func() bool { return t.MinDelta <= 0 },
			apply: func() { t.MinDelta = defaultMinDelta },
		},
		fieldDefault{
			key:   "training.learning_rate",
			need:  func() bool { return t.LearningRate <= 0 },
			apply: func() { t.LearningRate = defaultLearningRate },
		},
		intFieldDefault("training.window_days", &t.WindowDays, defaultWindowDays),
		fieldDefault{
			key:   "training.hidden_units",
			need:  func() bool { return len(t.HiddenUnits) == 0 },
			apply: func() { t.HiddenUnits = []int{16, 8} },
		},
		stringFieldDefault("training.activation", &t.Activation, defaultActivation),
		stringFieldDefault("training.optimizer", &t.Optimizer, defaultOptimizer),
		stringFieldDefault("training.loss", &t.Loss, defaultLoss),
		fieldDefault{
			key:   "training.metrics",
			need:  func() bool { return len(t.Metrics) == 0 },
			apply: func() { t.Metrics = []string{"mse", "mae"} },
		},
		stringFieldDefault("training.artifact_dir", &t.ArtifactDir, defaultArtifactDir),
	)
	t.Mode = strings.ToLower(strings.TrimSpace(t.Mode))
	t.Activation = strings.ToLower(strings.TrimSpace(t.Activation))
}

func (v *VersioningConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("versioning.base_version", &v.BaseVersion, defaultBaseVersion),
	)
}

func (s *SweepConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		boolFieldDefault("sweep.enabled", &s.Enabled, true),
		stringFieldDefault("sweep.interval", &s.Interval, defaultSweepInterval),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
