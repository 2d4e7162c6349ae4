package gormstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"reitloop/internal/store/model"
	"reitloop/internal/types"

	"gorm.io/gorm/clause"
)

func (s *GormStore) ListWeights(ctx context.Context, agent types.AgentType) ([]types.WeightConfig, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var models []model.WeightConfigModel
	err := s.db.WithContext(ctx).
		Where("agent_type = ?", string(agent)).
		Order("weight_name ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.WeightConfig, 0, len(models))
	for _, m := range models {
		out = append(out, types.WeightConfig{
			AgentType:   types.AgentType(m.AgentType),
			Name:        m.WeightName,
			Value:       m.WeightValue,
			Description: m.Description,
			Source:      types.WeightSource(m.Source),
			UpdatedAt:   model.ParseTime(m.UpdatedAt),
		})
	}
	return out, nil
}

func (s *GormStore) UpsertWeight(ctx context.Context, w types.WeightConfig) error {
	if err := s.ready(); err != nil {
		return err
	}
	name := strings.TrimSpace(w.Name)
	if name == "" || w.AgentType == "" {
		return fmt.Errorf("weight config requires agent and name")
	}
	updated := w.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	m := model.WeightConfigModel{
		AgentType:   string(w.AgentType),
		WeightName:  name,
		WeightValue: w.Value,
		Description: w.Description,
		Source:      string(w.Source),
		UpdatedAt:   model.FormatTime(updated),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "agent_type"}, {Name: "weight_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"weight_value", "description", "source", "updated_at"}),
	}).Create(&m).Error
}
