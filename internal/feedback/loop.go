// Package feedback coordinates the prediction feedback loop: predictions are
// recorded, reconciled against actual values, checked against the rolling
// accuracy window and, when the window degrades, retrained and republished.
//
// Retrain, publish and rollback for one model type are serialized by the
// Loop. A retrain requested while another is running for the same model type
// is skipped with ErrRetrainInFlight.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"reitloop/internal/accuracy"
	"reitloop/internal/features"
	"reitloop/internal/logger"
	"reitloop/internal/metrics"
	"reitloop/internal/retrain"
	"reitloop/internal/store"
	"reitloop/internal/training"
	"reitloop/internal/types"
	"reitloop/internal/versioning"
	"reitloop/internal/weights"
)

var (
	ErrRetrainInFlight = errors.New("retrain already in flight")
	ErrTrainingFailed  = errors.New("training run failed")
)

// FeatureSource 为重训练提供特征向量。
type FeatureSource interface {
	Extract(ctx context.Context, req features.ExtractRequest) ([]types.FeatureVector, features.ExtractionReport)
}

// WeightTuner 根据一批特征调整智能体权重。
type WeightTuner interface {
	Current(ctx context.Context, agent types.AgentType) ([]types.WeightConfig, error)
	Optimize(ctx context.Context, agent types.AgentType, vectors []types.FeatureVector) (weights.OptimizeResult, error)
}

// Trainer 执行一次训练直到终态。
type Trainer interface {
	Run(ctx context.Context, agent types.AgentType, cfg training.Config) (types.TrainingRun, error)
}

// Versions 是闭环使用的版本管理接口。
type Versions interface {
	Active(ctx context.Context, modelType types.ModelType) (types.ModelVersion, error)
	List(ctx context.Context, modelType types.ModelType) ([]types.ModelVersion, error)
	Rollback(ctx context.Context, modelType types.ModelType, target string) (types.ModelVersion, error)
}

// Repository 是闭环对外暴露的只读存储接口。
type Repository interface {
	GetPrediction(ctx context.Context, id string) (types.PredictionRecord, error)
	DistinctActualizedPairs(ctx context.Context, since time.Time) ([]store.AgentVersion, error)
	GetRun(ctx context.Context, id string) (types.TrainingRun, error)
	ListRuns(ctx context.Context, modelType types.ModelType, limit int) ([]types.TrainingRun, error)
}

// Config 描述重训练参数。
type Config struct {
	FeatureLookback time.Duration
	Training        training.Config
}

// Deps 聚合闭环依赖的各个组件。
type Deps struct {
	Recorder     *accuracy.Recorder
	Evaluator    *accuracy.Evaluator
	Trigger      *retrain.Trigger
	Features     FeatureSource
	Weights      WeightTuner
	Orchestrator Trainer
	Versions     Versions
	Repo         Repository
	Metrics      *metrics.Metrics
}

// RetrainOutcome 汇总一次重训练的全部产出。
type RetrainOutcome struct {
	Reason  string                    `json:"reason"`
	Run     types.TrainingRun         `json:"run"`
	Version *types.ModelVersion       `json:"version,omitempty"`
	Weights []types.WeightConfig      `json:"weights,omitempty"`
	Report  features.ExtractionReport `json:"extraction"`
}

// SweepResult 记录一次巡检的全部判定。
type SweepResult struct {
	StartedAt time.Time          `json:"started_at"`
	Decisions []retrain.Decision `json:"decisions"`
	Retrained []types.AgentType  `json:"retrained,omitempty"`
}

type Loop struct {
	recorder     *accuracy.Recorder
	evaluator    *accuracy.Evaluator
	trigger      *retrain.Trigger
	features     FeatureSource
	weights      WeightTuner
	orchestrator Trainer
	versions     Versions
	repo         Repository
	metrics      *metrics.Metrics
	cfg          Config

	locks *keyedMutex
	now   func() time.Time
	log   *slog.Logger
}

// NewLoop 将闭环注册为 evaluator 的回填后检查器以及 trigger 的重训练执行者。
func NewLoop(deps Deps, cfg Config) *Loop {
	l := &Loop{
		recorder:     deps.Recorder,
		evaluator:    deps.Evaluator,
		trigger:      deps.Trigger,
		features:     deps.Features,
		weights:      deps.Weights,
		orchestrator: deps.Orchestrator,
		versions:     deps.Versions,
		repo:         deps.Repo,
		metrics:      deps.Metrics,
		cfg:          cfg,
		locks:        newKeyedMutex(),
		now:          time.Now,
		log:          logger.With("feedback"),
	}
	if l.evaluator != nil {
		l.evaluator.SetChecker(l)
	}
	if l.trigger != nil {
		l.trigger.SetRetrainer(l)
	}
	return l
}

func (l *Loop) RecordPrediction(ctx context.Context, p accuracy.NewPrediction) (types.PredictionRecord, error) {
	return l.recorder.Record(ctx, p)
}

func (l *Loop) Prediction(ctx context.Context, id string) (types.PredictionRecord, error) {
	return l.repo.GetPrediction(ctx, id)
}

// Actualize 回填预测的实际值。重训练检查在返回前完成，检查失败只记录日志不返回。
func (l *Loop) Actualize(ctx context.Context, id string, actual float64, actualRange *types.Range) (types.PredictionRecord, error) {
	rec, err := l.evaluator.Actualize(ctx, id, actual, actualRange)
	if err != nil {
		return rec, err
	}
	l.metrics.ObserveActualization(string(rec.AgentType), rec.Actual.IsAccurate)
	return rec, nil
}

// OnActualized 实现 accuracy.Checker。这里触发的重训练不受调用方 ctx 取消影响，
// HTTP 客户端断开不会导致训练失败。
func (l *Loop) OnActualized(ctx context.Context, agent types.AgentType, version string) error {
	_, _, err := l.review(context.WithoutCancel(ctx), agent, version)
	return err
}

// Window 返回截至当前的滚动准确率窗口。
func (l *Loop) Window(ctx context.Context, agent types.AgentType, version string) (accuracy.RollingWindow, error) {
	return l.evaluator.Window(ctx, agent, version, l.now())
}

// Check 只返回 trigger 的判定，不触发重训练。
func (l *Loop) Check(ctx context.Context, agent types.AgentType, version string) (retrain.Decision, error) {
	d, err := l.trigger.Check(ctx, agent, version)
	if err == nil {
		l.metrics.ObserveDecision(string(agent), string(d.Action))
	}
	return d, err
}

// review decides for one (agent, version) pair. Only the active version, or
// any version while the model type has none, may start a retrain; older
// versions are checked but never retrained from.
func (l *Loop) review(ctx context.Context, agent types.AgentType, version string) (d retrain.Decision, current bool, err error) {
	current, err = l.isCurrent(ctx, agent, version)
	if err != nil {
		return d, false, err
	}
	if current {
		d, err = l.trigger.Evaluate(ctx, agent, version)
	} else {
		d, err = l.trigger.Check(ctx, agent, version)
		if err == nil && d.Action == retrain.ActionRetrain {
			l.log.Debug("retrain skipped for inactive version", "agent", agent, "version", version)
		}
	}
	if d.Action != "" {
		l.metrics.ObserveDecision(string(agent), string(d.Action))
	}
	return d, current, err
}

func (l *Loop) isCurrent(ctx context.Context, agent types.AgentType, version string) (bool, error) {
	active, err := l.versions.Active(ctx, types.ModelTypeFor(agent))
	switch {
	case err == nil:
		return active.Version == version, nil
	case errors.Is(err, versioning.ErrVersionNotFound):
		return true, nil
	default:
		return false, fmt.Errorf("lookup active version: %w", err)
	}
}

// Retrain implements retrain.Retrainer.
func (l *Loop) Retrain(ctx context.Context, agent types.AgentType, reason string) error {
	_, err := l.RetrainAgent(ctx, agent, reason)
	return err
}

// RetrainAgent extracts features, tunes weights, trains and publishes a new
// version for the agent's model type. Weight tuning is best-effort.
func (l *Loop) RetrainAgent(ctx context.Context, agent types.AgentType, reason string) (RetrainOutcome, error) {
	if !agent.Valid() {
		return RetrainOutcome{}, fmt.Errorf("unknown agent type %q", agent)
	}
	mt := types.ModelTypeFor(agent)
	if !l.locks.TryLock(mt) {
		return RetrainOutcome{}, fmt.Errorf("%w: %s", ErrRetrainInFlight, mt)
	}
	defer l.locks.Unlock(mt)

	out := RetrainOutcome{Reason: reason}
	l.log.Info("retrain started", "agent", agent, "reason", reason)

	vectors, report := l.features.Extract(ctx, features.ExtractRequest{Lookback: l.cfg.FeatureLookback})
	out.Report = report
	for _, se := range report.Errors {
		l.metrics.ObserveExtractionError(se.Step)
	}
	if len(report.Errors) > 0 {
		l.log.Warn("feature extraction degraded", "agent", agent, "errors", len(report.Errors))
	}

	res, err := l.weights.Optimize(ctx, agent, vectors)
	if err != nil {
		l.log.Warn("weight optimization skipped", "agent", agent, "error", err)
	} else {
		out.Weights = res.Weights
		if res.PersistErr != nil {
			l.log.Warn("weight persistence incomplete", "agent", agent, "error", res.PersistErr)
		}
	}

	run, err := l.orchestrator.Run(ctx, agent, l.cfg.Training)
	out.Run = run
	if run.Status != "" {
		l.metrics.ObserveRun(string(mt), string(run.Status), run.EpochsRun)
	}
	if err != nil {
		return out, fmt.Errorf("training run %s: %w", mt, err)
	}
	if run.Status == types.StatusFailed {
		return out, fmt.Errorf("%w: %s: %s", ErrTrainingFailed, mt, run.ErrorMessage)
	}

	v, err := l.versions.Active(ctx, mt)
	if err != nil {
		return out, fmt.Errorf("lookup published version: %w", err)
	}
	out.Version = &v
	l.log.Info("retrain finished", "agent", agent, "version", v.Version,
		"epochs", run.EpochsRun, "best_epoch", run.BestEpoch, "early_stopped", run.EarlyStopped)
	return out, nil
}

// Rollback 重新激活目标版本，会等待同一模型类型的重训练结束。
func (l *Loop) Rollback(ctx context.Context, modelType types.ModelType, target string) (types.ModelVersion, error) {
	if _, ok := types.AgentForModelType(modelType); !ok {
		return types.ModelVersion{}, fmt.Errorf("%w: unknown model type %s", versioning.ErrVersionNotFound, modelType)
	}
	l.locks.Lock(modelType)
	defer l.locks.Unlock(modelType)
	return l.versions.Rollback(ctx, modelType, target)
}

func (l *Loop) Versions(ctx context.Context, modelType types.ModelType) ([]types.ModelVersion, error) {
	return l.versions.List(ctx, modelType)
}

func (l *Loop) Runs(ctx context.Context, modelType types.ModelType, limit int) ([]types.TrainingRun, error) {
	return l.repo.ListRuns(ctx, modelType, limit)
}

func (l *Loop) TrainingRun(ctx context.Context, id string) (types.TrainingRun, error) {
	return l.repo.GetRun(ctx, id)
}

func (l *Loop) Weights(ctx context.Context, agent types.AgentType) ([]types.WeightConfig, error) {
	return l.weights.Current(ctx, agent)
}

func (l *Loop) Extract(ctx context.Context, req features.ExtractRequest) ([]types.FeatureVector, features.ExtractionReport) {
	if req.Lookback <= 0 {
		req.Lookback = l.cfg.FeatureLookback
	}
	vectors, report := l.features.Extract(ctx, req)
	for _, se := range report.Errors {
		l.metrics.ObserveExtractionError(se.Step)
	}
	return vectors, report
}

// Sweep reviews every (agent, version) pair actualized within the rolling
// window. An agent retrains at most once per sweep. Skipped in-flight
// retrains are not errors.
func (l *Loop) Sweep(ctx context.Context) (SweepResult, error) {
	now := l.now()
	res := SweepResult{StartedAt: now}
	pairs, err := l.repo.DistinctActualizedPairs(ctx, now.AddDate(0, 0, -retrain.WindowDays))
	if err != nil {
		return res, fmt.Errorf("list actualized pairs: %w", err)
	}

	var errs []error
	retrained := make(map[types.AgentType]bool)
	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if retrained[p.AgentType] {
			continue
		}
		d, current, err := l.review(ctx, p.AgentType, p.ModelVersion)
		if d.Action != "" {
			res.Decisions = append(res.Decisions, d)
		}
		if current && d.Action == retrain.ActionRetrain {
			retrained[p.AgentType] = true
			if err == nil {
				res.Retrained = append(res.Retrained, p.AgentType)
			}
		}
		if err != nil && !errors.Is(err, ErrRetrainInFlight) {
			errs = append(errs, fmt.Errorf("%s/%s: %w", p.AgentType, p.ModelVersion, err))
		}
	}
	l.log.Info("sweep finished", "pairs", len(pairs), "decisions", len(res.Decisions), "retrained", len(res.Retrained))
	return res, errors.Join(errs...)
}
