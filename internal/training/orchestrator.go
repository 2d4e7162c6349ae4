// Package training runs bounded retraining with early stopping and hands
// successful models to the version manager.
package training

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"reitloop/internal/logger"
	"reitloop/internal/store"
	"reitloop/internal/types"
	"reitloop/internal/versioning"

	"github.com/google/uuid"
)

var ErrNoSamples = errors.New("no actualized samples in training window")

// fineTuneRateFactor scales the learning rate in fine_tune mode.
const fineTuneRateFactor = 0.1

// Config controls one training run.
type Config struct {
	Mode         types.TrainingMode
	Epochs       int
	Patience     int
	MinDelta     float64
	LearningRate float64
	WindowDays   int
	// Topology.Layers lists hidden layers; the trainer sizes the output.
	Topology    Topology
	ArtifactDir string
	Seed        int64
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = types.ModeFull
	}
	if c.Epochs <= 0 {
		c.Epochs = 100
	}
	if c.Patience < 0 {
		c.Patience = 0
	}
	if c.LearningRate <= 0 {
		c.LearningRate = 0.01
	}
	if c.WindowDays <= 0 {
		c.WindowDays = 90
	}
	if len(c.Topology.Layers) == 0 {
		c.Topology.Layers = []LayerSpec{{Units: 16, Activation: "relu"}, {Units: 8, Activation: "relu"}}
	}
	if c.Topology.Optimizer == "" {
		c.Topology.Optimizer = "sgd"
	}
	if c.Topology.Loss == "" {
		c.Topology.Loss = "mse"
	}
	if c.ArtifactDir == "" {
		c.ArtifactDir = filepath.Join("data", "models")
	}
	return c
}

// ArtifactPath is where the model of a version is saved.
func ArtifactPath(dir string, modelType types.ModelType, version string) string {
	return filepath.Join(dir, string(modelType), version+".json")
}

// Repository is the storage the orchestrator needs.
type Repository interface {
	ListPredictions(ctx context.Context, q store.PredictionQuery) ([]types.PredictionRecord, error)
	store.TrainingRunRepository
}

// Versions names, locates and publishes model versions.
type Versions interface {
	NextVersion(ctx context.Context, modelType types.ModelType) (string, error)
	Active(ctx context.Context, modelType types.ModelType) (types.ModelVersion, error)
	Publish(ctx context.Context, req versioning.PublishRequest) (types.ModelVersion, error)
}

type Orchestrator struct {
	repo     Repository
	trainer  Trainer
	versions Versions
	now      func() time.Time
	newID    func() string
	log      *slog.Logger
}

func NewOrchestrator(repo Repository, trainer Trainer, versions Versions) *Orchestrator {
	return &Orchestrator{
		repo:     repo,
		trainer:  trainer,
		versions: versions,
		now:      time.Now,
		newID:    uuid.NewString,
		log:      logger.With("orchestrator"),
	}
}

// versionConfig is the serialized config stored on a published version.
type versionConfig struct {
	Mode         types.TrainingMode `json:"mode"`
	Epochs       int                `json:"epochs"`
	EpochsRun    int                `json:"epochs_run"`
	BestEpoch    int                `json:"best_epoch"`
	Patience     int                `json:"patience"`
	MinDelta     float64            `json:"min_delta"`
	LearningRate float64            `json:"learning_rate"`
	WindowDays   int                `json:"window_days"`
	Topology     Topology           `json:"topology"`
	Features     []string           `json:"features"`
	Scaler       Scaler             `json:"scaler"`
	Artifact     string             `json:"artifact"`
}

type trained struct {
	model       Model
	dataset     Dataset
	windowStart time.Time
	windowEnd   time.Time
}

// Run executes one training run for the agent's model type and returns the
// run in its terminal state. Training failures are recorded on the run; the
// returned error covers run persistence and publishing only.
func (o *Orchestrator) Run(ctx context.Context, agent types.AgentType, cfg Config) (types.TrainingRun, error) {
	cfg = cfg.withDefaults()
	mt := types.ModelTypeFor(agent)
	run := types.TrainingRun{
		ID:           o.newID(),
		ModelType:    mt,
		Mode:         cfg.Mode,
		Epochs:       cfg.Epochs,
		LearningRate: cfg.LearningRate,
		Status:       types.StatusRunning,
		FeatureCount: types.FeatureWidth,
		StartedAt:    o.now(),
	}
	if cfg.Mode == types.ModeFineTune {
		run.LearningRate = cfg.LearningRate * fineTuneRateFactor
	}
	if err := o.repo.InsertRun(ctx, run); err != nil {
		return run, fmt.Errorf("insert training run: %w", err)
	}
	o.log.Info("training started", "run", run.ID, "model_type", mt, "mode", run.Mode, "epochs", run.Epochs)

	res, err := o.train(ctx, agent, cfg, &run)
	if err != nil {
		return o.fail(ctx, run, err)
	}

	version, err := o.versions.NextVersion(ctx, mt)
	if err != nil {
		return o.fail(ctx, run, fmt.Errorf("next version: %w", err))
	}
	artifact := ArtifactPath(cfg.ArtifactDir, mt, version)
	if err := os.MkdirAll(filepath.Dir(artifact), 0o755); err != nil {
		return o.fail(ctx, run, fmt.Errorf("artifact dir: %w", err))
	}
	if err := res.model.Save(artifact); err != nil {
		return o.fail(ctx, run, fmt.Errorf("save artifact: %w", err))
	}

	run.ModelVersion = version
	if err := run.Succeed(o.now()); err != nil {
		return run, err
	}
	if err := o.repo.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
		return run, fmt.Errorf("update training run: %w", err)
	}
	o.log.Info("training finished", "run", run.ID, "version", version, "epochs_run", run.EpochsRun,
		"best_epoch", run.BestEpoch, "final_loss", run.FinalLoss, "early_stopped", run.EarlyStopped)

	raw, err := json.Marshal(versionConfig{
		Mode:         run.Mode,
		Epochs:       cfg.Epochs,
		EpochsRun:    run.EpochsRun,
		BestEpoch:    run.BestEpoch,
		Patience:     cfg.Patience,
		MinDelta:     cfg.MinDelta,
		LearningRate: run.LearningRate,
		WindowDays:   cfg.WindowDays,
		Topology:     cfg.Topology,
		Features:     types.FeatureNames(),
		Scaler:       res.dataset.Scaler,
		Artifact:     artifact,
	})
	if err != nil {
		return run, fmt.Errorf("encode version config: %w", err)
	}
	_, err = o.versions.Publish(ctx, versioning.PublishRequest{
		ModelType:     mt,
		Version:       version,
		TrainingRunID: run.ID,
		Metrics:       *run.Metrics,
		Config:        raw,
		WindowStart:   res.windowStart,
		WindowEnd:     res.windowEnd,
	})
	if err != nil {
		return run, o.unpublished(ctx, &run, artifact, fmt.Errorf("publish %s %s: %w", mt, version, err))
	}
	return run, nil
}

// unpublished 在发布失败后解除训练记录与版本号的关联并删除模型文件，训练状态仍为 success。
func (o *Orchestrator) unpublished(ctx context.Context, run *types.TrainingRun, artifact string, cause error) error {
	o.log.Error("publish failed, discarding artifact", "run", run.ID, "version", run.ModelVersion, "error", cause)
	errs := []error{cause}
	if err := os.Remove(artifact); err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, fmt.Errorf("remove artifact: %w", err))
	}
	run.ModelVersion = ""
	if err := o.repo.UpdateRun(context.WithoutCancel(ctx), *run); err != nil {
		errs = append(errs, fmt.Errorf("update training run: %w", err))
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) train(ctx context.Context, agent types.AgentType, cfg Config, run *types.TrainingRun) (res trained, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("training panicked: %v", r)
		}
	}()

	res.windowEnd = run.StartedAt
	res.windowStart = res.windowEnd.AddDate(0, 0, -cfg.WindowDays)
	recs, err := o.repo.ListPredictions(ctx, store.PredictionQuery{
		AgentType:      agent,
		ActualizedOnly: true,
		TimeField:      store.ByActualizedAt,
		Since:          res.windowStart,
		Until:          res.windowEnd,
	})
	if err != nil {
		return res, fmt.Errorf("fetch training data: %w", err)
	}
	res.dataset = BuildDataset(recs)
	run.SampleCount = res.dataset.Len()
	if res.dataset.Len() == 0 {
		return res, ErrNoSamples
	}

	res.model, err = o.initModel(ctx, cfg, run)
	if err != nil {
		return res, err
	}

	stopper := EarlyStopper{Patience: cfg.Patience, MinDelta: cfg.MinDelta}
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		loss, err := res.model.TrainEpoch(res.dataset.Inputs, res.dataset.Outputs, run.LearningRate)
		if err != nil {
			return res, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return res, fmt.Errorf("epoch %d: non-finite loss", epoch)
		}
		run.LossCurve = append(run.LossCurve, loss)
		run.EpochsRun = epoch
		run.FinalLoss = loss
		if stopper.Observe(loss) {
			run.EarlyStopped = true
			break
		}
	}
	run.BestEpoch = stopper.BestEpoch()

	out, err := res.model.Predict(res.dataset.Inputs)
	if err != nil {
		return res, fmt.Errorf("predict: %w", err)
	}
	if len(out) != res.dataset.Len() {
		return res, fmt.Errorf("predict returned %d rows for %d samples", len(out), res.dataset.Len())
	}
	predicted := make([]float64, len(out))
	for i, row := range out {
		if len(row) == 0 {
			return res, fmt.Errorf("predict returned an empty row")
		}
		predicted[i] = res.dataset.Scaler.Unscale(row[0])
	}
	metrics := ComputeMetrics(predicted, res.dataset.Actuals)
	run.Metrics = &metrics

	if extra, err := res.model.Evaluate(res.dataset.Inputs, res.dataset.Outputs); err == nil {
		o.log.Debug("model evaluation", "run", run.ID, "metrics", extra)
	}
	return res, nil
}

// initModel builds the starting model. Incremental and fine-tune runs
// continue from the active version's artifact and fall back to a fresh
// model when it cannot be loaded.
func (o *Orchestrator) initModel(ctx context.Context, cfg Config, run *types.TrainingRun) (Model, error) {
	if run.Mode != types.ModeFull {
		active, err := o.versions.Active(ctx, run.ModelType)
		if err == nil {
			m, loadErr := o.trainer.Load(ArtifactPath(cfg.ArtifactDir, run.ModelType, active.Version))
			if loadErr == nil {
				return m, nil
			}
			err = loadErr
		}
		o.log.Warn("no usable active artifact, training from scratch", "run", run.ID, "mode", run.Mode, "error", err)
		run.Mode = types.ModeFull
		run.LearningRate = cfg.LearningRate
	}
	m, err := o.trainer.New(types.FeatureWidth, 1, cfg.Topology, cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("build model: %w", err)
	}
	return m, nil
}

func (o *Orchestrator) fail(ctx context.Context, run types.TrainingRun, cause error) (types.TrainingRun, error) {
	if err := run.Fail(o.now(), cause); err != nil {
		return run, err
	}
	o.log.Warn("training failed", "run", run.ID, "model_type", run.ModelType, "error", cause)
	if err := o.repo.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
		return run, fmt.Errorf("update training run: %w", err)
	}
	return run, nil
}
