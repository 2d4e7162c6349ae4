package accuracy

import (
	"math"

	"reitloop/internal/types"
)

const (
	// Above this confidence a close miss still counts as accurate.
	confidenceGate = 0.7
	// Minimum score for a confident prediction to count as accurate.
	scoreGate = 0.8
)

// Score returns the accuracy score in [0,1] and the absolute error.
//
// The relative error is |predicted-actual| / |actual|, capped at 1. When the
// actual value is zero the relative error is 0 for an exact hit and 1
// otherwise.
func Score(predicted, actual float64) (score, magnitude float64) {
	magnitude = math.Abs(predicted - actual)
	var rel float64
	switch {
	case actual == 0 && magnitude == 0:
		rel = 0
	case actual == 0:
		rel = 1
	default:
		rel = magnitude / math.Abs(actual)
	}
	if rel > 1 || math.IsNaN(rel) {
		rel = 1
	}
	return 1 - rel, magnitude
}

// IsAccurate applies the accuracy rule: the actual lands in the predicted
// range, or the prediction was confident and scored well.
func IsAccurate(predictedRange *types.Range, confidence, actual, score float64) bool {
	if predictedRange != nil && predictedRange.Contains(actual) {
		return true
	}
	return confidence > confidenceGate && score > scoreGate
}
