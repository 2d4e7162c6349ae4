package mlp

import (
	"path/filepath"
	"testing"

	"reitloop/internal/training"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearData() ([][]float64, [][]float64) {
	var in, out [][]float64
	for i := 0; i < 20; i++ {
		x := float64(i) / 20
		in = append(in, []float64{x, 1 - x, 0, 0})
		out = append(out, []float64{0.2 + 0.6*x})
	}
	return in, out
}

func TestNetwork_LearnsSimpleMapping(t *testing.T) {
	topo := training.Topology{Layers: []training.LayerSpec{{Units: 8, Activation: "relu"}}, Metrics: []string{"mse", "mae"}}
	m, err := NewTrainer().New(4, 1, topo, 42)
	require.NoError(t, err)

	in, out := linearData()
	first, err := m.TrainEpoch(in, out, 0.1)
	require.NoError(t, err)
	var last float64
	for i := 0; i < 300; i++ {
		last, err = m.TrainEpoch(in, out, 0.1)
		require.NoError(t, err)
	}
	assert.Less(t, last, first)
	assert.Less(t, last, 0.02)

	metrics, err := m.Evaluate(in, out)
	require.NoError(t, err)
	assert.Contains(t, metrics, "mse")
	assert.Contains(t, metrics, "mae")
}

func TestNetwork_SaveLoadRoundTrip(t *testing.T) {
	m, err := NewTrainer().New(4, 1, training.Topology{Layers: []training.LayerSpec{{Units: 4, Activation: "tanh"}}}, 7)
	require.NoError(t, err)
	in, out := linearData()
	_, err = m.TrainEpoch(in, out, 0.05)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, m.Save(path))

	loaded, err := NewTrainer().Load(path)
	require.NoError(t, err)

	want, err := m.Predict(in)
	require.NoError(t, err)
	got, err := loaded.Predict(in)
	require.NoError(t, err)
	for i := range want {
		assert.InDelta(t, want[i][0], got[i][0], 1e-12)
	}
}

func TestNetwork_Validation(t *testing.T) {
	_, err := NewTrainer().New(4, 1, training.Topology{Optimizer: "adam"}, 1)
	assert.Error(t, err)

	_, err = NewTrainer().New(4, 1, training.Topology{Layers: []training.LayerSpec{{Units: 0}}}, 1)
	assert.Error(t, err)

	m, err := NewTrainer().New(4, 1, training.Topology{}, 1)
	require.NoError(t, err)
	_, err = m.TrainEpoch([][]float64{{1, 2}}, [][]float64{{1}}, 0.1)
	assert.Error(t, err)

	_, err = NewTrainer().Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
