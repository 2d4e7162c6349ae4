package types

import "time"

// Range is an inclusive numeric interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r Range) Valid() bool { return r.Min <= r.Max }

// Contains reports whether v lies within [Min, Max].
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Actualization groups every field written when ground truth arrives. A
// prediction either has one or it does not; partial actualization cannot be
// represented.
type Actualization struct {
	ActualValue    float64   `json:"actual_value"`
	ActualRange    *Range    `json:"actual_range,omitempty"`
	AccuracyScore  float64   `json:"accuracy_score"`
	ErrorMagnitude float64   `json:"error_magnitude"`
	IsAccurate     bool      `json:"is_accurate"`
	ActualizedAt   time.Time `json:"actualized_at"`
}

// PredictionRecord is an agent's prediction plus its eventual outcome.
type PredictionRecord struct {
	ID             string         `json:"id"`
	AgentType      AgentType      `json:"agent_type"`
	EntityCode     string         `json:"entity_code"`
	TargetDate     time.Time      `json:"target_date"`
	PredictedValue float64        `json:"predicted_value"`
	PredictedRange *Range         `json:"predicted_range,omitempty"`
	Confidence     float64        `json:"confidence"`
	ModelVersion   string         `json:"model_version"`
	InputFeatures  map[string]any `json:"input_features,omitempty"`
	Actual         *Actualization `json:"actual,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

func (p PredictionRecord) Actualized() bool { return p.Actual != nil }
