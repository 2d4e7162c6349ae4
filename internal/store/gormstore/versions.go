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

func (s *GormStore) InsertVersion(ctx context.Context, v types.ModelVersion) error {
	if err := s.ready(); err != nil {
		return err
	}
	m, err := newModelVersionModel(v)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

func (s *GormStore) GetVersion(ctx context.Context, modelType types.ModelType, version string) (types.ModelVersion, error) {
	if err := s.ready(); err != nil {
		return types.ModelVersion{}, err
	}
	var m model.ModelVersionModel
	err := s.db.WithContext(ctx).
		Where("model_type = ? AND version = ?", string(modelType), strings.TrimSpace(version)).
		Take(&m).Error
	if err != nil {
		return types.ModelVersion{}, translate(err)
	}
	return modelVersionToType(m), nil
}

func (s *GormStore) ActiveVersion(ctx context.Context, modelType types.ModelType) (types.ModelVersion, error) {
	if err := s.ready(); err != nil {
		return types.ModelVersion{}, err
	}
	var m model.ModelVersionModel
	err := s.db.WithContext(ctx).
		Where("model_type = ? AND active = ?", string(modelType), true).
		Take(&m).Error
	if err != nil {
		return types.ModelVersion{}, translate(err)
	}
	return modelVersionToType(m), nil
}

func (s *GormStore) ListVersions(ctx context.Context, modelType types.ModelType) ([]types.ModelVersion, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var models []model.ModelVersionModel
	err := s.db.WithContext(ctx).
		Where("model_type = ?", string(modelType)).
		Order("id DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.ModelVersion, 0, len(models))
	for _, m := range models {
		out = append(out, modelVersionToType(m))
	}
	return out, nil
}

func (s *GormStore) SetVersionState(ctx context.Context, modelType types.ModelType, version string, state store.VersionState) error {
	if err := s.ready(); err != nil {
		return err
	}
	updates := map[string]interface{}{
		"active":     state.Active,
		"deprecated": state.Deprecated,
	}
	if state.Active {
		updates["activated_at"] = model.FormatTime(state.At)
	} else if !state.At.IsZero() {
		updates["deactivated_at"] = model.FormatTime(state.At)
	}
	res := s.db.WithContext(ctx).Model(&model.ModelVersionModel{}).
		Where("model_type = ? AND version = ?", string(modelType), strings.TrimSpace(version)).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func newModelVersionModel(v types.ModelVersion) (model.ModelVersionModel, error) {
	weights, err := toJSON(v.Weights)
	if err != nil {
		return model.ModelVersionModel{}, fmt.Errorf("encode weights: %w", err)
	}
	cfg := []byte(v.Config)
	if len(cfg) == 0 {
		cfg = []byte("{}")
	}
	return model.ModelVersionModel{
		ModelType:     string(v.ModelType),
		Version:       strings.TrimSpace(v.Version),
		ConfigJSON:    cfg,
		WeightsJSON:   weights,
		WindowStart:   model.FormatTime(v.WindowStart),
		WindowEnd:     model.FormatTime(v.WindowEnd),
		Accuracy:      v.Metrics.Accuracy,
		Precision:     v.Metrics.Precision,
		Recall:        v.Metrics.Recall,
		F1:            v.Metrics.F1,
		MSE:           v.Metrics.MSE,
		RMSE:          v.Metrics.RMSE,
		Active:        v.Active,
		Deprecated:    v.Deprecated,
		TrainingRunID: v.TrainingRunID,
		CreatedAt:     model.FormatTime(v.CreatedAt),
		ActivatedAt:   model.FormatTimePtr(v.ActivatedAt),
		DeactivatedAt: model.FormatTimePtr(v.DeactivatedAt),
	}, nil
}

func modelVersionToType(m model.ModelVersionModel) types.ModelVersion {
	v := types.ModelVersion{
		ModelType:   types.ModelType(m.ModelType),
		Version:     m.Version,
		Config:      json.RawMessage(jsonBytesToString(m.ConfigJSON)),
		WindowStart: model.ParseTime(m.WindowStart),
		WindowEnd:   model.ParseTime(m.WindowEnd),
		Metrics: types.ModelMetrics{
			Accuracy:  m.Accuracy,
			Precision: m.Precision,
			Recall:    m.Recall,
			F1:        m.F1,
			MSE:       m.MSE,
			RMSE:      m.RMSE,
		},
		Active:        m.Active,
		Deprecated:    m.Deprecated,
		TrainingRunID: m.TrainingRunID,
		CreatedAt:     model.ParseTime(m.CreatedAt),
		ActivatedAt:   model.ParseTimePtr(m.ActivatedAt),
		DeactivatedAt: model.ParseTimePtr(m.DeactivatedAt),
	}
	if len(m.WeightsJSON) > 0 {
		var weights map[string]float64
		if err := json.Unmarshal(m.WeightsJSON, &weights); err == nil {
			v.Weights = weights
		}
	}
	return v
}
