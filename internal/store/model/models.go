package model

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// TimeLayout is a fixed-width ISO-8601 UTC layout. Fixed width keeps
// lexicographic order equal to time order, so range filters and ORDER BY
// work directly on the stored strings.
const TimeLayout = "2006-01-02T15:04:05.000Z"

func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

func FormatTimePtr(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := FormatTime(*t)
	return &s
}

func ParseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		if t, err = time.Parse(time.RFC3339Nano, s); err != nil {
			return time.Time{}
		}
	}
	return t.UTC()
}

func ParseTimePtr(s *string) *time.Time {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	t := ParseTime(*s)
	if t.IsZero() {
		return nil
	}
	return &t
}

type PredictionModel struct {
	ID             string         `gorm:"column:id;primaryKey;size:36"`
	AgentType      string         `gorm:"column:agent_type;index:idx_prediction_window,priority:1"`
	ModelVersion   string         `gorm:"column:model_version;index:idx_prediction_window,priority:2"`
	EntityCode     string         `gorm:"column:entity_code;index"`
	TargetDate     string         `gorm:"column:target_date"`
	PredictedValue float64        `gorm:"column:predicted_value"`
	PredictedMin   *float64       `gorm:"column:predicted_min"`
	PredictedMax   *float64       `gorm:"column:predicted_max"`
	Confidence     float64        `gorm:"column:confidence"`
	InputFeatures  datatypes.JSON `gorm:"column:input_features;type:TEXT"`
	ActualValue    *float64       `gorm:"column:actual_value"`
	ActualMin      *float64       `gorm:"column:actual_min"`
	ActualMax      *float64       `gorm:"column:actual_max"`
	AccuracyScore  *float64       `gorm:"column:accuracy_score"`
	ErrorMagnitude *float64       `gorm:"column:error_magnitude"`
	IsAccurate     *bool          `gorm:"column:is_accurate"`
	ActualizedAt   *string        `gorm:"column:actualized_at;index:idx_prediction_window,priority:3"`
	CreatedAt      string         `gorm:"column:created_at;index"`
}

func (PredictionModel) TableName() string { return "predictions" }

type WeightConfigModel struct {
	ID          int64   `gorm:"column:id;primaryKey"`
	AgentType   string  `gorm:"column:agent_type;uniqueIndex:ux_weight_config,priority:1"`
	WeightName  string  `gorm:"column:weight_name;uniqueIndex:ux_weight_config,priority:2"`
	WeightValue float64 `gorm:"column:weight_value"`
	Description string  `gorm:"column:description"`
	Source      string  `gorm:"column:source"`
	UpdatedAt   string  `gorm:"column:updated_at"`
}

func (WeightConfigModel) TableName() string { return "weight_configs" }

type ModelVersionModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	ModelType     string         `gorm:"column:model_type;uniqueIndex:ux_model_version,priority:1"`
	Version       string         `gorm:"column:version;uniqueIndex:ux_model_version,priority:2"`
	ConfigJSON    datatypes.JSON `gorm:"column:config_json;type:TEXT"`
	WeightsJSON   datatypes.JSON `gorm:"column:weights_json;type:TEXT"`
	WindowStart   string         `gorm:"column:window_start"`
	WindowEnd     string         `gorm:"column:window_end"`
	Accuracy      float64        `gorm:"column:accuracy"`
	Precision     float64        `gorm:"column:precision_score"`
	Recall        float64        `gorm:"column:recall"`
	F1            float64        `gorm:"column:f1"`
	MSE           float64        `gorm:"column:mse"`
	RMSE          float64        `gorm:"column:rmse"`
	Active        bool           `gorm:"column:active"`
	Deprecated    bool           `gorm:"column:deprecated"`
	TrainingRunID string         `gorm:"column:training_run_id"`
	CreatedAt     string         `gorm:"column:created_at;index"`
	ActivatedAt   *string        `gorm:"column:activated_at"`
	DeactivatedAt *string        `gorm:"column:deactivated_at"`
}

func (ModelVersionModel) TableName() string { return "model_versions" }

type TrainingRunModel struct {
	ID           string         `gorm:"column:id;primaryKey;size:36"`
	ModelType    string         `gorm:"column:model_type;index:idx_training_run_type,priority:1"`
	ModelVersion string         `gorm:"column:model_version"`
	Mode         string         `gorm:"column:mode"`
	Epochs       int            `gorm:"column:epochs"`
	LearningRate float64        `gorm:"column:learning_rate"`
	Status       string         `gorm:"column:status"`
	BestEpoch    int            `gorm:"column:best_epoch"`
	EpochsRun    int            `gorm:"column:epochs_run"`
	FinalLoss    float64        `gorm:"column:final_loss"`
	EarlyStopped bool           `gorm:"column:early_stopped"`
	SampleCount  int            `gorm:"column:sample_count"`
	FeatureCount int            `gorm:"column:feature_count"`
	LossCurve    datatypes.JSON `gorm:"column:loss_curve;type:TEXT"`
	MetricsJSON  datatypes.JSON `gorm:"column:metrics_json;type:TEXT"`
	StartedAt    string         `gorm:"column:started_at;index:idx_training_run_type,priority:2"`
	EndedAt      *string        `gorm:"column:ended_at"`
	ErrorMessage string         `gorm:"column:error_message"`
}

func (TrainingRunModel) TableName() string { return "training_runs" }

type PolicyImpactModel struct {
	ID         int64   `gorm:"column:id;primaryKey"`
	PolicyID   string  `gorm:"column:policy_id"`
	EntityCode string  `gorm:"column:entity_code;index"`
	Strength   float64 `gorm:"column:strength"`
	Confidence float64 `gorm:"column:confidence"`
	ObservedAt string  `gorm:"column:observed_at;index"`
}

func (PolicyImpactModel) TableName() string { return "policy_impacts" }

type SentimentEventModel struct {
	ID         int64   `gorm:"column:id;primaryKey"`
	EntityCode string  `gorm:"column:entity_code;index"`
	Headline   string  `gorm:"column:headline"`
	Score      float64 `gorm:"column:score"`
	ObservedAt string  `gorm:"column:observed_at;index"`
}

func (SentimentEventModel) TableName() string { return "sentiment_events" }
