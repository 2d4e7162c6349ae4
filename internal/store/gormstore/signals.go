package gormstore

import (
	"context"
	"strings"
	"time"

	"reitloop/internal/store/model"
	"reitloop/internal/types"
)

func (s *GormStore) ListPolicyImpacts(ctx context.Context, since time.Time, entity string) ([]types.PolicyImpact, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	query := s.db.WithContext(ctx).Where("observed_at >= ?", model.FormatTime(since))
	if e := strings.TrimSpace(entity); e != "" {
		query = query.Where("entity_code = ?", e)
	}
	var models []model.PolicyImpactModel
	if err := query.Order("observed_at ASC, id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]types.PolicyImpact, 0, len(models))
	for _, m := range models {
		out = append(out, types.PolicyImpact{
			ID:         m.ID,
			PolicyID:   m.PolicyID,
			EntityCode: m.EntityCode,
			Strength:   m.Strength,
			Confidence: m.Confidence,
			ObservedAt: model.ParseTime(m.ObservedAt),
		})
	}
	return out, nil
}

func (s *GormStore) ListSentimentEvents(ctx context.Context, since time.Time, entity string) ([]types.SentimentEvent, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	query := s.db.WithContext(ctx).Where("observed_at >= ?", model.FormatTime(since))
	if e := strings.TrimSpace(entity); e != "" {
		query = query.Where("entity_code = ?", e)
	}
	var models []model.SentimentEventModel
	if err := query.Order("observed_at ASC, id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]types.SentimentEvent, 0, len(models))
	for _, m := range models {
		out = append(out, types.SentimentEvent{
			ID:         m.ID,
			EntityCode: m.EntityCode,
			Headline:   m.Headline,
			Score:      m.Score,
			ObservedAt: model.ParseTime(m.ObservedAt),
		})
	}
	return out, nil
}

func (s *GormStore) InsertPolicyImpact(ctx context.Context, p types.PolicyImpact) error {
	if err := s.ready(); err != nil {
		return err
	}
	m := model.PolicyImpactModel{
		PolicyID:   p.PolicyID,
		EntityCode: strings.TrimSpace(p.EntityCode),
		Strength:   p.Strength,
		Confidence: p.Confidence,
		ObservedAt: model.FormatTime(p.ObservedAt),
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

func (s *GormStore) InsertSentimentEvent(ctx context.Context, e types.SentimentEvent) error {
	if err := s.ready(); err != nil {
		return err
	}
	m := model.SentimentEventModel{
		EntityCode: strings.TrimSpace(e.EntityCode),
		Headline:   e.Headline,
		Score:      e.Score,
		ObservedAt: model.FormatTime(e.ObservedAt),
	}
	return s.db.WithContext(ctx).Create(&m).Error
}
