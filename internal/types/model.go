package types

import (
	"encoding/json"
	"time"
)

// ModelMetrics are the evaluation figures attached to a model version.
type ModelMetrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	MSE       float64 `json:"mse"`
	RMSE      float64 `json:"rmse"`
}

// ModelVersion is an immutable snapshot of a trained model. Only the
// lifecycle flags and their timestamps change after creation.
type ModelVersion struct {
	ModelType     ModelType          `json:"model_type"`
	Version       string             `json:"version"`
	Config        json.RawMessage    `json:"config,omitempty"`
	Weights       map[string]float64 `json:"weights,omitempty"`
	WindowStart   time.Time          `json:"training_window_start"`
	WindowEnd     time.Time          `json:"training_window_end"`
	Metrics       ModelMetrics       `json:"metrics"`
	Active        bool               `json:"active"`
	Deprecated    bool               `json:"deprecated"`
	TrainingRunID string             `json:"training_run_id,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	ActivatedAt   *time.Time         `json:"activated_at,omitempty"`
	DeactivatedAt *time.Time         `json:"deactivated_at,omitempty"`
}
