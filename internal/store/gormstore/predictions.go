package gormstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"reitloop/internal/store"
	"reitloop/internal/store/model"
	"reitloop/internal/types"
)

func (s *GormStore) InsertPrediction(ctx context.Context, rec types.PredictionRecord) error {
	if err := s.ready(); err != nil {
		return err
	}
	m, err := newPredictionModel(rec)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

func (s *GormStore) GetPrediction(ctx context.Context, id string) (types.PredictionRecord, error) {
	if err := s.ready(); err != nil {
		return types.PredictionRecord{}, err
	}
	var m model.PredictionModel
	if err := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)).Take(&m).Error; err != nil {
		return types.PredictionRecord{}, translate(err)
	}
	return predictionModelToRecord(m), nil
}

func (s *GormStore) ActualizePrediction(ctx context.Context, id string, act types.Actualization) error {
	if err := s.ready(); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	payload := map[string]interface{}{
		"actual_value":    act.ActualValue,
		"actual_min":      nil,
		"actual_max":      nil,
		"accuracy_score":  act.AccuracyScore,
		"error_magnitude": act.ErrorMagnitude,
		"is_accurate":     act.IsAccurate,
		"actualized_at":   model.FormatTime(act.ActualizedAt),
	}
	if act.ActualRange != nil {
		payload["actual_min"] = act.ActualRange.Min
		payload["actual_max"] = act.ActualRange.Max
	}
	res := s.db.WithContext(ctx).Model(&model.PredictionModel{}).
		Where("id = ? AND actualized_at IS NULL", id).
		Updates(payload)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.PredictionModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return store.ErrNotFound
	}
	return store.ErrConflict
}

func (s *GormStore) ListPredictions(ctx context.Context, q store.PredictionQuery) ([]types.PredictionRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	query := s.db.WithContext(ctx).Model(&model.PredictionModel{})
	if q.AgentType != "" {
		query = query.Where("agent_type = ?", string(q.AgentType))
	}
	if v := strings.TrimSpace(q.ModelVersion); v != "" {
		query = query.Where("model_version = ?", v)
	}
	if e := strings.TrimSpace(q.EntityCode); e != "" {
		query = query.Where("entity_code = ?", e)
	}
	if q.ActualizedOnly {
		query = query.Where("actualized_at IS NOT NULL")
	}
	field := q.TimeField
	switch field {
	case store.ByCreatedAt, store.ByActualizedAt:
	case "":
		field = store.ByCreatedAt
	default:
		return nil, fmt.Errorf("unsupported time field %q", field)
	}
	if !q.Since.IsZero() {
		query = query.Where(string(field)+" >= ?", model.FormatTime(q.Since))
	}
	if !q.Until.IsZero() {
		query = query.Where(string(field)+" <= ?", model.FormatTime(q.Until))
	}
	order := string(field) + " ASC, id ASC"
	if q.Descending {
		order = string(field) + " DESC, id DESC"
	}
	query = query.Order(order)
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	var models []model.PredictionModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]types.PredictionRecord, 0, len(models))
	for _, m := range models {
		out = append(out, predictionModelToRecord(m))
	}
	return out, nil
}

func (s *GormStore) DistinctActualizedPairs(ctx context.Context, since time.Time) ([]store.AgentVersion, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var rows []struct {
		AgentType    string
		ModelVersion string
	}
	err := s.db.WithContext(ctx).Model(&model.PredictionModel{}).
		Select("DISTINCT agent_type, model_version").
		Where("actualized_at IS NOT NULL AND actualized_at >= ?", model.FormatTime(since)).
		Order("agent_type ASC, model_version ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]store.AgentVersion, 0, len(rows))
	for _, r := range rows {
		out = append(out, store.AgentVersion{AgentType: types.AgentType(r.AgentType), ModelVersion: r.ModelVersion})
	}
	return out, nil
}

func newPredictionModel(rec types.PredictionRecord) (model.PredictionModel, error) {
	features, err := toJSON(rec.InputFeatures)
	if err != nil {
		return model.PredictionModel{}, fmt.Errorf("encode input features: %w", err)
	}
	m := model.PredictionModel{
		ID:             rec.ID,
		AgentType:      string(rec.AgentType),
		ModelVersion:   strings.TrimSpace(rec.ModelVersion),
		EntityCode:     strings.TrimSpace(rec.EntityCode),
		TargetDate:     model.FormatTime(rec.TargetDate),
		PredictedValue: rec.PredictedValue,
		Confidence:     rec.Confidence,
		InputFeatures:  features,
		CreatedAt:      model.FormatTime(rec.CreatedAt),
	}
	if rec.PredictedRange != nil {
		m.PredictedMin = ptrFloat(rec.PredictedRange.Min)
		m.PredictedMax = ptrFloat(rec.PredictedRange.Max)
	}
	if act := rec.Actual; act != nil {
		m.ActualValue = ptrFloat(act.ActualValue)
		if act.ActualRange != nil {
			m.ActualMin = ptrFloat(act.ActualRange.Min)
			m.ActualMax = ptrFloat(act.ActualRange.Max)
		}
		m.AccuracyScore = ptrFloat(act.AccuracyScore)
		m.ErrorMagnitude = ptrFloat(act.ErrorMagnitude)
		m.IsAccurate = ptrBool(act.IsAccurate)
		m.ActualizedAt = model.FormatTimePtr(&act.ActualizedAt)
	}
	return m, nil
}

func predictionModelToRecord(m model.PredictionModel) types.PredictionRecord {
	rec := types.PredictionRecord{
		ID:             m.ID,
		AgentType:      types.AgentType(m.AgentType),
		EntityCode:     m.EntityCode,
		TargetDate:     model.ParseTime(m.TargetDate),
		PredictedValue: m.PredictedValue,
		Confidence:     m.Confidence,
		ModelVersion:   m.ModelVersion,
		CreatedAt:      model.ParseTime(m.CreatedAt),
	}
	if m.PredictedMin != nil && m.PredictedMax != nil {
		rec.PredictedRange = &types.Range{Min: *m.PredictedMin, Max: *m.PredictedMax}
	}
	if len(m.InputFeatures) > 0 {
		var features map[string]any
		if err := json.Unmarshal(m.InputFeatures, &features); err == nil && len(features) > 0 {
			rec.InputFeatures = features
		}
	}
	if at := model.ParseTimePtr(m.ActualizedAt); at != nil && m.ActualValue != nil {
		act := &types.Actualization{
			ActualValue:    *m.ActualValue,
			AccuracyScore:  valOrZero(m.AccuracyScore),
			ErrorMagnitude: valOrZero(m.ErrorMagnitude),
			IsAccurate:     m.IsAccurate != nil && *m.IsAccurate,
			ActualizedAt:   *at,
		}
		if m.ActualMin != nil && m.ActualMax != nil {
			act.ActualRange = &types.Range{Min: *m.ActualMin, Max: *m.ActualMax}
		}
		rec.Actual = act
	}
	return rec
}
