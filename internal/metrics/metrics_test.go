package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Observe(t *testing.T) {
	m := New()
	m.ObserveActualization("news", true)
	m.ObserveActualization("news", true)
	m.ObserveDecision("news", "retrain")
	m.ObserveRun("news_model", "success", 12)
	m.ObserveExtractionError("market_trend")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Actualizations.WithLabelValues("news", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RetrainDecisions.WithLabelValues("news", "retrain")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TrainingRuns.WithLabelValues("news_model", "success")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.TrainingEpochs))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.ObserveDecision("x", "y") })
}
