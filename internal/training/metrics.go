package training

import (
	"math"

	"reitloop/internal/accuracy"
	"reitloop/internal/types"
)

// ComputeMetrics scores de-scaled predictions against actual values. The
// classification metrics use "above the batch mean actual" as the label.
func ComputeMetrics(predicted, actual []float64) types.ModelMetrics {
	n := len(actual)
	if n == 0 || len(predicted) != n {
		return types.ModelMetrics{}
	}
	var mean float64
	for _, a := range actual {
		mean += a
	}
	mean /= float64(n)

	var (
		sqErr, scoreSum float64
		tp, fp, fn      int
	)
	for i := range actual {
		d := predicted[i] - actual[i]
		sqErr += d * d
		score, _ := accuracy.Score(predicted[i], actual[i])
		scoreSum += score

		wantUp := actual[i] > mean
		gotUp := predicted[i] > mean
		switch {
		case gotUp && wantUp:
			tp++
		case gotUp && !wantUp:
			fp++
		case !gotUp && wantUp:
			fn++
		}
	}
	m := types.ModelMetrics{
		MSE:      sqErr / float64(n),
		Accuracy: scoreSum / float64(n),
	}
	m.RMSE = math.Sqrt(m.MSE)
	if tp+fp > 0 {
		m.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		m.Recall = float64(tp) / float64(tp+fn)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m
}
