package accuracy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"reitloop/internal/store"
	"reitloop/internal/types"

	"github.com/google/uuid"
)

// NewPrediction is the caller-supplied part of a prediction record.
type NewPrediction struct {
	AgentType      types.AgentType `json:"agent_type"`
	EntityCode     string          `json:"entity_code"`
	TargetDate     time.Time       `json:"target_date"`
	PredictedValue float64         `json:"predicted_value"`
	PredictedRange *types.Range    `json:"predicted_range,omitempty"`
	Confidence     float64         `json:"confidence"`
	ModelVersion   string          `json:"model_version"`
	InputFeatures  map[string]any  `json:"input_features,omitempty"`
}

func (p NewPrediction) validate() error {
	if !p.AgentType.Valid() {
		return fmt.Errorf("%w: unknown agent type %q", ErrInvalidPrediction, p.AgentType)
	}
	if strings.TrimSpace(p.EntityCode) == "" {
		return fmt.Errorf("%w: entity code is required", ErrInvalidPrediction)
	}
	if strings.TrimSpace(p.ModelVersion) == "" {
		return fmt.Errorf("%w: model version is required", ErrInvalidPrediction)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("%w: confidence %.4f outside [0,1]", ErrInvalidPrediction, p.Confidence)
	}
	if p.PredictedRange != nil && !p.PredictedRange.Valid() {
		return fmt.Errorf("%w: predicted range min > max", ErrInvalidPrediction)
	}
	return nil
}

// Recorder 负责持久化新的预测记录。
type Recorder struct {
	repo  store.PredictionRepository
	now   func() time.Time
	newID func() string
}

func NewRecorder(repo store.PredictionRepository) *Recorder {
	return &Recorder{
		repo:  repo,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Record validates and inserts a prediction, returning the stored record.
func (r *Recorder) Record(ctx context.Context, p NewPrediction) (types.PredictionRecord, error) {
	if err := p.validate(); err != nil {
		return types.PredictionRecord{}, err
	}
	now := r.now()
	target := p.TargetDate
	if target.IsZero() {
		target = now
	}
	rec := types.PredictionRecord{
		ID:             r.newID(),
		AgentType:      p.AgentType,
		EntityCode:     strings.TrimSpace(p.EntityCode),
		TargetDate:     target,
		PredictedValue: p.PredictedValue,
		PredictedRange: p.PredictedRange,
		Confidence:     p.Confidence,
		ModelVersion:   strings.TrimSpace(p.ModelVersion),
		InputFeatures:  p.InputFeatures,
		CreatedAt:      now,
	}
	if err := r.repo.InsertPrediction(ctx, rec); err != nil {
		return types.PredictionRecord{}, fmt.Errorf("insert prediction: %w", err)
	}
	return rec, nil
}
