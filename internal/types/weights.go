package types

import "time"

// WeightSource records where a weight value came from.
type WeightSource string

const (
	WeightManual  WeightSource = "manual"
	WeightAuto    WeightSource = "auto"
	WeightLearned WeightSource = "learned"
)

// WeightConfig is one named weight of an agent. Identity is (AgentType, Name).
type WeightConfig struct {
	AgentType   AgentType    `json:"agent_type"`
	Name        string       `json:"weight_name"`
	Value       float64      `json:"weight_value"`
	Description string       `json:"description,omitempty"`
	Source      WeightSource `json:"source"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// WeightMap indexes weights by name.
func WeightMap(weights []WeightConfig) map[string]float64 {
	out := make(map[string]float64, len(weights))
	for _, w := range weights {
		out[w.Name] = w.Value
	}
	return out
}
