package app

import (
	"context"
	"errors"
	"fmt"

	"reitloop/internal/accuracy"
	"reitloop/internal/config"
	"reitloop/internal/features"
	"reitloop/internal/feedback"
	"reitloop/internal/logger"
	"reitloop/internal/metrics"
	"reitloop/internal/pkg/circuit"
	"reitloop/internal/retrain"
	"reitloop/internal/scheduler"
	"reitloop/internal/store"
	"reitloop/internal/store/gormstore"
	"reitloop/internal/training"
	"reitloop/internal/training/mlp"
	apihttp "reitloop/internal/transport/http/api"
	"reitloop/internal/types"
	"reitloop/internal/versioning"
	"reitloop/internal/weights"
)

type AppBuilder struct {
	cfg *config.Config

	storeFn   func(path string) (store.Store, error)
	seedsFn   func(path string) (weights.SeedSource, error)
	trainerFn func() training.Trainer

	prices       features.PriceFeed
	fundamentals features.FundamentalFeed
}

type AppBuilderOption func(*AppBuilder)

// WithStore 替换默认的 SQLite 存储，主要用于测试。
func WithStore(fn func(path string) (store.Store, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.storeFn = fn }
}

// WithFeeds 注入行情与基本面数据源；未注入时特征提取使用占位采样。
func WithFeeds(prices features.PriceFeed, fundamentals features.FundamentalFeed) AppBuilderOption {
	return func(b *AppBuilder) {
		b.prices = prices
		b.fundamentals = fundamentals
	}
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:       cfg,
		storeFn:   openStore,
		seedsFn:   loadSeeds,
		trainerFn: func() training.Trainer { return mlp.NewTrainer() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func openStore(path string) (store.Store, error) {
	return gormstore.NewGormStore(path)
}

func loadSeeds(path string) (weights.SeedSource, error) {
	reg, err := weights.NewRegistry(path)
	if err != nil {
		return nil, err
	}
	reg.OnChange(func(s weights.Snapshot) {
		logger.Infof("weight seeds reloaded version=%d agents=%d", s.Version, len(s.Seeds))
	})
	return reg, nil
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	st, err := b.storeFn(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	logger.Infof("✓ store opened at %s", cfg.Store.Path)

	seeds, err := b.seedsFn(cfg.Features.SeedWeightsPath)
	if err != nil {
		logger.Warnf("weight seeds unavailable (%v), using even defaults", err)
		seeds = nil
	}

	m := metrics.New()
	versions := versioning.NewManager(st, cfg.Versioning.BaseVersion)
	evaluator := accuracy.NewEvaluator(st)
	extractor := features.NewExtractor(st, features.Options{
		Lookback:         cfg.Features.Lookback(),
		MarketLookback:   cfg.Features.MarketLookback,
		BreakerThreshold: cfg.Features.BreakerThreshold,
		BreakerTimeout:   cfg.Features.BreakerTimeout(),
		Prices:           b.prices,
		Fundamentals:     b.fundamentals,
	})
	extractor.Breaker().SetStateChangeHandler(func(name string, from, to circuit.State) {
		logger.Warnf("circuit %s: %s -> %s", name, from, to)
	})

	loop := feedback.NewLoop(feedback.Deps{
		Recorder:     accuracy.NewRecorder(st),
		Evaluator:    evaluator,
		Trigger:      retrain.NewTrigger(evaluator, nil),
		Features:     extractor,
		Weights:      weights.NewOptimizer(st, seeds),
		Orchestrator: training.NewOrchestrator(st, b.trainerFn(), versions),
		Versions:     versions,
		Repo:         st,
		Metrics:      m,
	}, feedback.Config{
		FeatureLookback: cfg.Features.Lookback(),
		Training:        TrainingConfig(cfg.Training),
	})

	server, err := apihttp.NewServer(apihttp.ServerConfig{
		Addr:    cfg.App.HTTPAddr,
		Service: loop,
		Metrics: m,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var sweep *scheduler.AlignedScheduler
	if cfg.Sweep.Enabled {
		interval, ok := scheduler.ParseIntervalDuration(cfg.Sweep.Interval)
		if !ok {
			_ = st.Close()
			return nil, fmt.Errorf("invalid sweep interval %q", cfg.Sweep.Interval)
		}
		sweep = scheduler.NewAlignedScheduler("sweep", interval, 0)
		sweep.RunImmediately = cfg.Sweep.RunImmediately
	}

	return &App{
		cfg:     cfg,
		store:   st,
		loop:    loop,
		http:    server,
		sweep:   sweep,
		metrics: m,
		Summary: buildSummary(ctx, cfg, versions, seeds),
	}, nil
}

// TrainingConfig maps the training section onto an orchestrator config.
func TrainingConfig(c config.TrainingConfig) training.Config {
	layers := make([]training.LayerSpec, 0, len(c.HiddenUnits))
	for _, u := range c.HiddenUnits {
		layers = append(layers, training.LayerSpec{Units: u, Activation: c.Activation})
	}
	return training.Config{
		Mode:         types.TrainingMode(c.Mode),
		Epochs:       c.Epochs,
		Patience:     c.Patience,
		MinDelta:     c.MinDelta,
		LearningRate: c.LearningRate,
		WindowDays:   c.WindowDays,
		Topology: training.Topology{
			Layers:    layers,
			Optimizer: c.Optimizer,
			Loss:      c.Loss,
			Metrics:   c.Metrics,
		},
		ArtifactDir: c.ArtifactDir,
		Seed:        c.Seed,
	}
}

func buildSummary(ctx context.Context, cfg *config.Config, versions *versioning.Manager, seeds weights.SeedSource) *StartupSummary {
	s := &StartupSummary{
		Env:       cfg.App.Env,
		StorePath: cfg.Store.Path,
		HTTPAddr:  cfg.App.HTTPAddr,
		Training: TrainingSummary{
			Mode:         cfg.Training.Mode,
			Epochs:       cfg.Training.Epochs,
			Patience:     cfg.Training.Patience,
			LearningRate: cfg.Training.LearningRate,
			WindowDays:   cfg.Training.WindowDays,
			HiddenUnits:  cfg.Training.HiddenUnits,
			ArtifactDir:  cfg.Training.ArtifactDir,
		},
		Sweep: SweepSummary{
			Enabled:        cfg.Sweep.Enabled,
			Interval:       cfg.Sweep.Interval,
			RunImmediately: cfg.Sweep.RunImmediately,
		},
		Active: make(map[types.ModelType]string),
		Seeds:  make(map[types.AgentType][]types.WeightConfig),
	}
	for _, agent := range types.AllAgentTypes() {
		mt := types.ModelTypeFor(agent)
		v, err := versions.Active(ctx, mt)
		switch {
		case err == nil:
			s.Active[mt] = v.Version
		case !errors.Is(err, versioning.ErrVersionNotFound):
			logger.Warnf("lookup active %s failed: %v", mt, err)
		}
		if seeds != nil {
			s.Seeds[agent] = seeds.Seeds(agent)
		} else {
			s.Seeds[agent] = weights.DefaultSeeds(agent)
		}
	}
	return s
}
