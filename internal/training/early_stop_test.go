package training

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func runStopper(s *EarlyStopper, losses []float64) int {
	for i, l := range losses {
		if s.Observe(l) {
			return i + 1
		}
	}
	return len(losses)
}

func TestEarlyStopper(t *testing.T) {
	t.Run("stops patience epochs after best", func(t *testing.T) {
		s := &EarlyStopper{Patience: 2}
		stopped := runStopper(s, []float64{3, 2, 1, 1.5, 1.2, 0.1})
		assert.Equal(t, 5, stopped)
		assert.Equal(t, 3, s.BestEpoch())
		assert.Equal(t, 1.0, s.BestLoss())
	})

	t.Run("ties do not reset", func(t *testing.T) {
		s := &EarlyStopper{Patience: 2}
		stopped := runStopper(s, []float64{1, 1, 1, 0.5})
		assert.Equal(t, 3, stopped)
		assert.Equal(t, 1, s.BestEpoch())
	})

	t.Run("min delta", func(t *testing.T) {
		s := &EarlyStopper{Patience: 2, MinDelta: 0.1}
		stopped := runStopper(s, []float64{1, 0.95, 0.92, 0.5})
		assert.Equal(t, 3, stopped)
	})

	t.Run("zero patience never stops", func(t *testing.T) {
		s := &EarlyStopper{}
		assert.Equal(t, 4, runStopper(s, []float64{1, 2, 3, 4}))
		assert.Equal(t, 1, s.BestEpoch())
	})
}

func TestBuildDatasetAndMetrics(t *testing.T) {
	ds := BuildDataset(nil)
	assert.Equal(t, 0, ds.Len())

	s := Scaler{Min: 10, Max: 20}
	assert.Equal(t, 0.5, s.Scale(15))
	assert.Equal(t, 15.0, s.Unscale(0.5))
	assert.Equal(t, 0.5, Scaler{Min: 3, Max: 3}.Scale(3))

	m := ComputeMetrics([]float64{10, 20}, []float64{10, 20})
	assert.Equal(t, 0.0, m.MSE)
	assert.Equal(t, 1.0, m.Accuracy)
	assert.Equal(t, 1.0, m.Precision)
	assert.Equal(t, 1.0, m.Recall)
	assert.Equal(t, 1.0, m.F1)
}
