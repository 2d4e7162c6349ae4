package config

import (
	"strings"
	"time"
)

// Config 是 reitloop 的主配置载体。
type Config struct {
	App        AppConfig        `toml:"app"`
	Store      StoreConfig      `toml:"store"`
	Features   FeaturesConfig   `toml:"features"`
	Training   TrainingConfig   `toml:"training"`
	Versioning VersioningConfig `toml:"versioning"`
	Sweep      SweepConfig      `toml:"sweep"`
}

type AppConfig struct {
	Env       string `toml:"env"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	HTTPAddr  string `toml:"http_addr"`
	LogPath   string `toml:"log_path"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type FeaturesConfig struct {
	LookbackDays          int    `toml:"lookback_days"`
	SeedWeightsPath       string `toml:"seed_weights_path"`
	MarketLookback        int    `toml:"market_lookback"`
	BreakerThreshold      int    `toml:"breaker_threshold"`
	BreakerTimeoutSeconds int    `toml:"breaker_timeout_seconds"`
}

func (f FeaturesConfig) Lookback() time.Duration {
	return time.Duration(f.LookbackDays) * 24 * time.Hour
}

func (f FeaturesConfig) BreakerTimeout() time.Duration {
	return time.Duration(f.BreakerTimeoutSeconds) * time.Second
}

// TrainingConfig 描述重训练参数；seed 为 0 时使用当前时间作为随机种子。
type TrainingConfig struct {
	Mode         string   `toml:"mode"`
	Epochs       int      `toml:"epochs"`
	Patience     int      `toml:"patience"`
	MinDelta     float64  `toml:"min_delta"`
	LearningRate float64  `toml:"learning_rate"`
	WindowDays   int      `toml:"window_days"`
	HiddenUnits  []int    `toml:"hidden_units"`
	Activation   string   `toml:"activation"`
	Optimizer    string   `toml:"optimizer"`
	Loss         string   `toml:"loss"`
	Metrics      []string `toml:"metrics"`
	ArtifactDir  string   `toml:"artifact_dir"`
	Seed         int64    `toml:"seed"`
}

type VersioningConfig struct {
	BaseVersion string `toml:"base_version"`
}

type SweepConfig struct {
	Enabled        bool   `toml:"enabled"`
	Interval       string `toml:"interval"`
	RunImmediately bool   `toml:"run_immediately"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则：仅在未显式设置时生效。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
