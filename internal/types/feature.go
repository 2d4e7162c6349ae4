package types

import "time"

// Canonical feature names. They double as weight names and as keys of a
// prediction's input feature snapshot.
const (
	FeaturePolicyImpact  = "policy_impact"
	FeatureNewsSentiment = "news_sentiment"
	FeatureMarketTrend   = "market_trend"
	FeatureFundamental   = "fundamental"
)

// FeatureNames returns the feature names in vector order.
func FeatureNames() []string {
	return []string{FeaturePolicyImpact, FeatureNewsSentiment, FeatureMarketTrend, FeatureFundamental}
}

// FeatureWidth is the fixed column count of every training input matrix.
const FeatureWidth = 4

// FeatureVector is the per-entity signal snapshot produced by one extraction.
type FeatureVector struct {
	EntityCode    string  `json:"entity_code"`
	PolicyImpact  float64 `json:"policy_impact"`
	NewsSentiment float64 `json:"news_sentiment"`
	MarketTrend   float64 `json:"market_trend"`
	Fundamental   float64 `json:"fundamental"`
}

// Values returns the signals in FeatureNames order.
func (f FeatureVector) Values() []float64 {
	return []float64{f.PolicyImpact, f.NewsSentiment, f.MarketTrend, f.Fundamental}
}

// Snapshot renders the vector as a prediction input snapshot.
func (f FeatureVector) Snapshot() map[string]any {
	return map[string]any{
		FeaturePolicyImpact:  f.PolicyImpact,
		FeatureNewsSentiment: f.NewsSentiment,
		FeatureMarketTrend:   f.MarketTrend,
		FeatureFundamental:   f.Fundamental,
	}
}

// PolicyImpact is an edge from a policy document to an affected entity.
type PolicyImpact struct {
	ID         int64     `json:"id"`
	PolicyID   string    `json:"policy_id"`
	EntityCode string    `json:"entity_code"`
	Strength   float64   `json:"strength"`
	Confidence float64   `json:"confidence"`
	ObservedAt time.Time `json:"observed_at"`
}

// Weighted is the impact contribution used for aggregation.
func (p PolicyImpact) Weighted() float64 {
	return p.Strength * p.Confidence
}

// SentimentEvent is one scored news item about an entity.
type SentimentEvent struct {
	ID         int64     `json:"id"`
	EntityCode string    `json:"entity_code"`
	Headline   string    `json:"headline,omitempty"`
	Score      float64   `json:"score"`
	ObservedAt time.Time `json:"observed_at"`
}

// PricePoint is one close observation from a market feed.
type PricePoint struct {
	At    time.Time `json:"at"`
	Close float64   `json:"close"`
}
