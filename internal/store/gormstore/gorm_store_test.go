package gormstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"reitloop/internal/store"
	"reitloop/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	s, err := NewGormStore(filepath.Join(t.TempDir(), "data", "reitloop.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func samplePrediction(id string, created time.Time) types.PredictionRecord {
	return types.PredictionRecord{
		ID:             id,
		AgentType:      types.AgentValuation,
		EntityCode:     "508001",
		TargetDate:     created.Add(24 * time.Hour),
		PredictedValue: 10,
		PredictedRange: &types.Range{Min: 8, Max: 12},
		Confidence:     0.9,
		ModelVersion:   "v1.0.0",
		InputFeatures:  map[string]any{types.FeaturePolicyImpact: 0.4},
		CreatedAt:      created,
	}
}

func TestGormStore_PredictionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, s.InsertPrediction(ctx, samplePrediction("p-1", now)))

	got, err := s.GetPrediction(ctx, "p-1")
	require.NoError(t, err)
	assert.False(t, got.Actualized())
	assert.Equal(t, types.AgentValuation, got.AgentType)
	require.NotNil(t, got.PredictedRange)
	assert.Equal(t, 12.0, got.PredictedRange.Max)
	assert.InDelta(t, 0.4, got.InputFeatures[types.FeaturePolicyImpact], 1e-9)
	assert.True(t, got.CreatedAt.Equal(now))

	act := types.Actualization{
		ActualValue:    11,
		AccuracyScore:  0.909,
		ErrorMagnitude: 1,
		IsAccurate:     true,
		ActualizedAt:   now.Add(48 * time.Hour),
	}
	require.NoError(t, s.ActualizePrediction(ctx, "p-1", act))

	got, err = s.GetPrediction(ctx, "p-1")
	require.NoError(t, err)
	require.True(t, got.Actualized())
	assert.Equal(t, 11.0, got.Actual.ActualValue)
	assert.True(t, got.Actual.IsAccurate)
	assert.Nil(t, got.Actual.ActualRange)

	t.Run("second actualization conflicts", func(t *testing.T) {
		err := s.ActualizePrediction(ctx, "p-1", act)
		assert.ErrorIs(t, err, store.ErrConflict)
	})

	t.Run("missing prediction", func(t *testing.T) {
		_, err := s.GetPrediction(ctx, "nope")
		assert.ErrorIs(t, err, store.ErrNotFound)
		err = s.ActualizePrediction(ctx, "nope", act)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestGormStore_ListPredictions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		rec := samplePrediction(id, base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, s.InsertPrediction(ctx, rec))
	}
	other := samplePrediction("d", base)
	other.AgentType = types.AgentRisk
	require.NoError(t, s.InsertPrediction(ctx, other))

	require.NoError(t, s.ActualizePrediction(ctx, "a", types.Actualization{ActualValue: 9, ActualizedAt: base.Add(10 * time.Hour)}))
	require.NoError(t, s.ActualizePrediction(ctx, "c", types.Actualization{ActualValue: 9, ActualizedAt: base.Add(20 * time.Hour)}))

	t.Run("actualized only within window", func(t *testing.T) {
		recs, err := s.ListPredictions(ctx, store.PredictionQuery{
			AgentType:      types.AgentValuation,
			ModelVersion:   "v1.0.0",
			ActualizedOnly: true,
			TimeField:      store.ByActualizedAt,
			Since:          base.Add(15 * time.Hour),
		})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "c", recs[0].ID)
	})

	t.Run("descending with limit", func(t *testing.T) {
		recs, err := s.ListPredictions(ctx, store.PredictionQuery{
			AgentType:  types.AgentValuation,
			Descending: true,
			Limit:      2,
		})
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "c", recs[0].ID)
		assert.Equal(t, "b", recs[1].ID)
	})

	t.Run("distinct pairs", func(t *testing.T) {
		pairs, err := s.DistinctActualizedPairs(ctx, base)
		require.NoError(t, err)
		assert.Equal(t, []store.AgentVersion{{AgentType: types.AgentValuation, ModelVersion: "v1.0.0"}}, pairs)
	})
}

func TestGormStore_UpsertWeight(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	w := types.WeightConfig{AgentType: types.AgentPolicy, Name: types.FeaturePolicyImpact, Value: 0.5, Source: types.WeightManual}
	require.NoError(t, s.UpsertWeight(ctx, w))
	w.Value = 0.3
	w.Source = types.WeightAuto
	require.NoError(t, s.UpsertWeight(ctx, w))

	weights, err := s.ListWeights(ctx, types.AgentPolicy)
	require.NoError(t, err)
	require.Len(t, weights, 1)
	assert.Equal(t, 0.3, weights[0].Value)
	assert.Equal(t, types.WeightAuto, weights[0].Source)
}

func TestGormStore_SingleActiveVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mt := types.ModelTypeFor(types.AgentNews)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.InsertVersion(ctx, types.ModelVersion{ModelType: mt, Version: "v1.0.0", Active: true, CreatedAt: now, ActivatedAt: &now}))

	// A second active row for the same model type violates the partial index.
	err := s.InsertVersion(ctx, types.ModelVersion{ModelType: mt, Version: "v1.0.1", Active: true, CreatedAt: now})
	assert.Error(t, err)

	require.NoError(t, s.InsertVersion(ctx, types.ModelVersion{ModelType: mt, Version: "v1.0.1", CreatedAt: now, Weights: map[string]float64{"x": 1}}))
	require.NoError(t, s.SetVersionState(ctx, mt, "v1.0.0", store.VersionState{Deprecated: true, At: now}))
	require.NoError(t, s.SetVersionState(ctx, mt, "v1.0.1", store.VersionState{Active: true, At: now}))

	active, err := s.ActiveVersion(ctx, mt)
	require.NoError(t, err)
	assert.Equal(t, "v1.0.1", active.Version)
	assert.Equal(t, 1.0, active.Weights["x"])

	versions, err := s.ListVersions(ctx, mt)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "v1.0.1", versions[0].Version)
	assert.True(t, versions[1].Deprecated)
	assert.NotNil(t, versions[1].DeactivatedAt)

	err = s.SetVersionState(ctx, mt, "v9.9.9", store.VersionState{Active: true, At: now})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.ActiveVersion(ctx, types.ModelTypeFor(types.AgentRisk))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGormStore_TrainingRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	run := types.TrainingRun{
		ID:        "run-1",
		ModelType: "valuation_model",
		Mode:      types.ModeFull,
		Epochs:    10,
		Status:    types.StatusRunning,
		StartedAt: start,
	}
	require.NoError(t, s.InsertRun(ctx, run))

	run.LossCurve = []float64{0.5, 0.4}
	run.Metrics = &types.ModelMetrics{MSE: 0.4}
	require.NoError(t, run.Succeed(start.Add(time.Minute)))
	require.NoError(t, s.UpdateRun(ctx, run))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, got.Status)
	assert.Equal(t, []float64{0.5, 0.4}, got.LossCurve)
	require.NotNil(t, got.Metrics)
	assert.Equal(t, 0.4, got.Metrics.MSE)
	require.NotNil(t, got.EndedAt)

	later := run
	later.ID = "run-2"
	later.StartedAt = start.Add(time.Hour)
	later.Metrics = nil
	require.NoError(t, s.InsertRun(ctx, later))

	runs, err := s.ListRuns(ctx, "valuation_model", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Nil(t, runs[0].Metrics)

	err = s.UpdateRun(ctx, types.TrainingRun{ID: "missing"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGormStore_Signals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.InsertPolicyImpact(ctx, types.PolicyImpact{PolicyID: "pol-1", EntityCode: "508001", Strength: 0.8, Confidence: 0.5, ObservedAt: now}))
	require.NoError(t, s.InsertPolicyImpact(ctx, types.PolicyImpact{PolicyID: "pol-0", EntityCode: "508001", Strength: 0.1, Confidence: 1, ObservedAt: now.Add(-30 * 24 * time.Hour)}))
	require.NoError(t, s.InsertSentimentEvent(ctx, types.SentimentEvent{EntityCode: "508002", Score: -0.2, ObservedAt: now}))

	impacts, err := s.ListPolicyImpacts(ctx, now.Add(-7*24*time.Hour), "")
	require.NoError(t, err)
	require.Len(t, impacts, 1)
	assert.Equal(t, "pol-1", impacts[0].PolicyID)

	events, err := s.ListSentimentEvents(ctx, now.Add(-time.Hour), "508001")
	require.NoError(t, err)
	assert.Empty(t, events)
}
