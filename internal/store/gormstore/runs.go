package gormstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"reitloop/internal/store"
	"reitloop/internal/store/model"
	"reitloop/internal/types"
)

const defaultRunLimit = 50

func (s *GormStore) InsertRun(ctx context.Context, run types.TrainingRun) error {
	if err := s.ready(); err != nil {
		return err
	}
	m, err := newTrainingRunModel(run)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

func (s *GormStore) UpdateRun(ctx context.Context, run types.TrainingRun) error {
	if err := s.ready(); err != nil {
		return err
	}
	m, err := newTrainingRunModel(run)
	if err != nil {
		return err
	}
	updates := map[string]interface{}{
		"model_version": m.ModelVersion,
		"mode":          m.Mode,
		"epochs":        m.Epochs,
		"learning_rate": m.LearningRate,
		"status":        m.Status,
		"best_epoch":    m.BestEpoch,
		"epochs_run":    m.EpochsRun,
		"final_loss":    m.FinalLoss,
		"early_stopped": m.EarlyStopped,
		"sample_count":  m.SampleCount,
		"feature_count": m.FeatureCount,
		"loss_curve":    m.LossCurve,
		"metrics_json":  m.MetricsJSON,
		"ended_at":      m.EndedAt,
		"error_message": m.ErrorMessage,
	}
	res := s.db.WithContext(ctx).Model(&model.TrainingRunModel{}).Where("id = ?", m.ID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *GormStore) GetRun(ctx context.Context, id string) (types.TrainingRun, error) {
	if err := s.ready(); err != nil {
		return types.TrainingRun{}, err
	}
	var m model.TrainingRunModel
	if err := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)).Take(&m).Error; err != nil {
		return types.TrainingRun{}, translate(err)
	}
	return trainingRunToType(m), nil
}

func (s *GormStore) ListRuns(ctx context.Context, modelType types.ModelType, limit int) ([]types.TrainingRun, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultRunLimit
	}
	query := s.db.WithContext(ctx).Model(&model.TrainingRunModel{})
	if modelType != "" {
		query = query.Where("model_type = ?", string(modelType))
	}
	var models []model.TrainingRunModel
	if err := query.Order("started_at DESC, id DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]types.TrainingRun, 0, len(models))
	for _, m := range models {
		out = append(out, trainingRunToType(m))
	}
	return out, nil
}

func newTrainingRunModel(run types.TrainingRun) (model.TrainingRunModel, error) {
	if strings.TrimSpace(run.ID) == "" {
		return model.TrainingRunModel{}, fmt.Errorf("training run id is required")
	}
	curve := run.LossCurve
	if curve == nil {
		curve = []float64{}
	}
	lossCurve, err := toJSON(curve)
	if err != nil {
		return model.TrainingRunModel{}, fmt.Errorf("encode loss curve: %w", err)
	}
	metrics, err := toJSON(run.Metrics)
	if err != nil {
		return model.TrainingRunModel{}, fmt.Errorf("encode metrics: %w", err)
	}
	return model.TrainingRunModel{
		ID:           run.ID,
		ModelType:    string(run.ModelType),
		ModelVersion: run.ModelVersion,
		Mode:         string(run.Mode),
		Epochs:       run.Epochs,
		LearningRate: run.LearningRate,
		Status:       string(run.Status),
		BestEpoch:    run.BestEpoch,
		EpochsRun:    run.EpochsRun,
		FinalLoss:    run.FinalLoss,
		EarlyStopped: run.EarlyStopped,
		SampleCount:  run.SampleCount,
		FeatureCount: run.FeatureCount,
		LossCurve:    lossCurve,
		MetricsJSON:  metrics,
		StartedAt:    model.FormatTime(run.StartedAt),
		EndedAt:      model.FormatTimePtr(run.EndedAt),
		ErrorMessage: run.ErrorMessage,
	}, nil
}

func trainingRunToType(m model.TrainingRunModel) types.TrainingRun {
	run := types.TrainingRun{
		ID:           m.ID,
		ModelType:    types.ModelType(m.ModelType),
		ModelVersion: m.ModelVersion,
		Mode:         types.TrainingMode(m.Mode),
		Epochs:       m.Epochs,
		LearningRate: m.LearningRate,
		Status:       types.TrainingStatus(m.Status),
		BestEpoch:    m.BestEpoch,
		EpochsRun:    m.EpochsRun,
		FinalLoss:    m.FinalLoss,
		EarlyStopped: m.EarlyStopped,
		SampleCount:  m.SampleCount,
		FeatureCount: m.FeatureCount,
		StartedAt:    model.ParseTime(m.StartedAt),
		EndedAt:      model.ParseTimePtr(m.EndedAt),
		ErrorMessage: m.ErrorMessage,
	}
	if len(m.LossCurve) > 0 {
		_ = json.Unmarshal(m.LossCurve, &run.LossCurve)
	}
	if len(m.MetricsJSON) > 0 && string(m.MetricsJSON) != "null" && string(m.MetricsJSON) != "{}" {
		var metrics types.ModelMetrics
		if err := json.Unmarshal(m.MetricsJSON, &metrics); err == nil {
			run.Metrics = &metrics
		}
	}
	return run
}
