package visual

import (
	"errors"
	"testing"

	rtypes "reitloop/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLossChartHTML(t *testing.T) {
	run := rtypes.TrainingRun{
		ID:           "2f1c9a7e-0000-4000-8000-000000000000",
		ModelType:    "news_model",
		ModelVersion: "v1.0.3",
		Mode:         rtypes.ModeFull,
		Status:       rtypes.StatusSuccess,
		Epochs:       100,
		EpochsRun:    6,
		BestEpoch:    3,
		EarlyStopped: true,
		FinalLoss:    0.65,
		LossCurve:    []float64{1, 0.8, 0.6, 0.7, 0.6, 0.65},
	}
	html, err := LossChartHTML(run)
	require.NoError(t, err)
	body := string(html)
	assert.Contains(t, body, "news_model v1.0.3")
	assert.Contains(t, body, "best so far")
	assert.Contains(t, body, "early stopped")
}

func TestLossChartHTML_EmptyCurve(t *testing.T) {
	_, err := LossChartHTML(rtypes.TrainingRun{ID: "x"})
	assert.True(t, errors.Is(err, ErrEmptyCurve))
}

func TestBestSoFar(t *testing.T) {
	assert.Equal(t, []float64{1, 0.8, 0.6, 0.6, 0.6, 0.6}, bestSoFar([]float64{1, 0.8, 0.6, 0.7, 0.6, 0.65}))
}

func TestDescribe(t *testing.T) {
	got := Describe(rtypes.TrainingRun{Mode: rtypes.ModeFineTune, Status: rtypes.StatusFailed, Epochs: 10})
	assert.Equal(t, "fine_tune | failed | epochs 0/10 | best 0", got)
}
