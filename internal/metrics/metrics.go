// Package metrics exposes the feedback loop's Prometheus instruments.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Registry *prometheus.Registry

	Actualizations   *prometheus.CounterVec
	RetrainDecisions *prometheus.CounterVec
	TrainingRuns     *prometheus.CounterVec
	TrainingEpochs   prometheus.Histogram
	ExtractionErrors *prometheus.CounterVec
}

// New 在独立的 registry 上注册全部指标。
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		Actualizations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reitloop_actualizations_total",
				Help: "Predictions reconciled against actual values",
			},
			[]string{"agent", "accurate"},
		),
		RetrainDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reitloop_retrain_decisions_total",
				Help: "Retraining trigger decisions",
			},
			[]string{"agent", "action"},
		),
		TrainingRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reitloop_training_runs_total",
				Help: "Training runs by terminal status",
			},
			[]string{"model_type", "status"},
		),
		TrainingEpochs: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reitloop_training_epochs",
				Help:    "Epochs executed per training run",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
			},
		),
		ExtractionErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reitloop_feature_extraction_errors_total",
				Help: "Absorbed feature extraction sub-step failures",
			},
			[]string{"step"},
		),
	}
}

// Observe* 方法对 nil 安全，组件可在未注入指标时运行。

func (m *Metrics) ObserveActualization(agent string, accurate bool) {
	if m == nil {
		return
	}
	m.Actualizations.WithLabelValues(agent, strconv.FormatBool(accurate)).Inc()
}

func (m *Metrics) ObserveDecision(agent, action string) {
	if m == nil {
		return
	}
	m.RetrainDecisions.WithLabelValues(agent, action).Inc()
}

func (m *Metrics) ObserveRun(modelType, status string, epochs int) {
	if m == nil {
		return
	}
	m.TrainingRuns.WithLabelValues(modelType, status).Inc()
	if epochs > 0 {
		m.TrainingEpochs.Observe(float64(epochs))
	}
}

func (m *Metrics) ObserveExtractionError(step string) {
	if m == nil {
		return
	}
	m.ExtractionErrors.WithLabelValues(step).Inc()
}
