package accuracy

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"reitloop/internal/store"
	"reitloop/internal/store/gormstore"
	"reitloop/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPredictionRepo struct {
	mock.Mock
}

func (m *MockPredictionRepo) InsertPrediction(ctx context.Context, rec types.PredictionRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockPredictionRepo) GetPrediction(ctx context.Context, id string) (types.PredictionRecord, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(types.PredictionRecord), args.Error(1)
}

func (m *MockPredictionRepo) ActualizePrediction(ctx context.Context, id string, act types.Actualization) error {
	args := m.Called(ctx, id, act)
	return args.Error(0)
}

func (m *MockPredictionRepo) ListPredictions(ctx context.Context, q store.PredictionQuery) ([]types.PredictionRecord, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.PredictionRecord), args.Error(1)
}

func (m *MockPredictionRepo) DistinctActualizedPairs(ctx context.Context, since time.Time) ([]store.AgentVersion, error) {
	args := m.Called(ctx, since)
	return args.Get(0).([]store.AgentVersion), args.Error(1)
}

type MockChecker struct {
	mock.Mock
}

func (m *MockChecker) OnActualized(ctx context.Context, agent types.AgentType, version string) error {
	args := m.Called(ctx, agent, version)
	return args.Error(0)
}

func TestScore(t *testing.T) {
	cases := []struct {
		name      string
		predicted float64
		actual    float64
		score     float64
		magnitude float64
	}{
		{"close miss", 10, 11, 1 - 1.0/11, 1},
		{"exact", 5, 5, 1, 0},
		{"far off floors at zero", 30, 10, 0, 20},
		{"negative actual", -9, -10, 0.9, 1},
		{"zero actual exact", 0, 0, 1, 0},
		{"zero actual miss", 10, 0, 0, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			score, magnitude := Score(tc.predicted, tc.actual)
			assert.InDelta(t, tc.score, score, 1e-9)
			assert.InDelta(t, tc.magnitude, magnitude, 1e-9)
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 1.0)
		})
	}
}

func TestIsAccurate(t *testing.T) {
	r := &types.Range{Min: 8, Max: 12}
	assert.True(t, IsAccurate(r, 0.1, 12, 0), "range bounds are inclusive")
	assert.False(t, IsAccurate(r, 0.7, 13, 0.9), "confidence gate is strict")
	assert.True(t, IsAccurate(nil, 0.71, 13, 0.81))
	assert.False(t, IsAccurate(nil, 0.9, 13, 0.8), "score gate is strict")
}

func newStore(t *testing.T) *gormstore.GormStore {
	t.Helper()
	s, err := gormstore.NewGormStore(filepath.Join(t.TempDir(), "acc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func scenarioPrediction() NewPrediction {
	return NewPrediction{
		AgentType:      types.AgentValuation,
		EntityCode:     "508001",
		PredictedValue: 10,
		PredictedRange: &types.Range{Min: 8, Max: 12},
		Confidence:     0.9,
		ModelVersion:   "v1.0.0",
	}
}

func TestEvaluator_ScenarioInRange(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	rec, err := NewRecorder(s).Record(ctx, scenarioPrediction())
	require.NoError(t, err)

	checker := new(MockChecker)
	checker.On("OnActualized", mock.Anything, types.AgentValuation, "v1.0.0").Return(nil).Once()
	ev := NewEvaluator(s)
	ev.SetChecker(checker)

	got, err := ev.Actualize(ctx, rec.ID, 11, nil)
	require.NoError(t, err)
	require.NotNil(t, got.Actual)
	assert.InDelta(t, 0.909, got.Actual.AccuracyScore, 1e-3)
	assert.True(t, got.Actual.IsAccurate)
	assert.Equal(t, 1.0, got.Actual.ErrorMagnitude)
	checker.AssertExpectations(t)

	stored, err := s.GetPrediction(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, stored.Actualized())
	assert.InDelta(t, got.Actual.AccuracyScore, stored.Actual.AccuracyScore, 1e-12)

	t.Run("second actualization is rejected", func(t *testing.T) {
		_, err := ev.Actualize(ctx, rec.ID, 12, nil)
		assert.ErrorIs(t, err, ErrAlreadyActualized)
		checker.AssertNumberOfCalls(t, "OnActualized", 1)
	})
}

func TestEvaluator_ScenarioZeroActual(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	rec, err := NewRecorder(s).Record(ctx, scenarioPrediction())
	require.NoError(t, err)

	got, err := NewEvaluator(s).Actualize(ctx, rec.ID, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.Actual.AccuracyScore)
	assert.Equal(t, 10.0, got.Actual.ErrorMagnitude)
	assert.False(t, got.Actual.IsAccurate)
}

func TestEvaluator_PropagatesStoreFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk gone")

	t.Run("fetch failure", func(t *testing.T) {
		repo := new(MockPredictionRepo)
		repo.On("GetPrediction", mock.Anything, "p-1").Return(types.PredictionRecord{}, boom)
		_, err := NewEvaluator(repo).Actualize(ctx, "p-1", 10, nil)
		assert.ErrorIs(t, err, boom)
		repo.AssertNotCalled(t, "ActualizePrediction", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("update failure skips the checker", func(t *testing.T) {
		repo := new(MockPredictionRepo)
		repo.On("GetPrediction", mock.Anything, "p-1").Return(types.PredictionRecord{ID: "p-1", PredictedValue: 10}, nil)
		repo.On("ActualizePrediction", mock.Anything, "p-1", mock.Anything).Return(boom)
		checker := new(MockChecker)
		ev := NewEvaluator(repo)
		ev.SetChecker(checker)
		_, err := ev.Actualize(ctx, "p-1", 10, nil)
		assert.ErrorIs(t, err, boom)
		checker.AssertNotCalled(t, "OnActualized", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("checker failure does not fail the actualization", func(t *testing.T) {
		repo := new(MockPredictionRepo)
		repo.On("GetPrediction", mock.Anything, "p-1").Return(types.PredictionRecord{ID: "p-1", AgentType: types.AgentNews, ModelVersion: "v1", PredictedValue: 10}, nil)
		repo.On("ActualizePrediction", mock.Anything, "p-1", mock.Anything).Return(nil)
		checker := new(MockChecker)
		checker.On("OnActualized", mock.Anything, types.AgentNews, "v1").Return(boom)
		ev := NewEvaluator(repo)
		ev.SetChecker(checker)
		rec, err := ev.Actualize(ctx, "p-1", 10, nil)
		assert.NoError(t, err)
		assert.True(t, rec.Actualized())
	})
}

func TestRecorder_Validation(t *testing.T) {
	repo := new(MockPredictionRepo)
	r := NewRecorder(repo)
	ctx := context.Background()

	bad := scenarioPrediction()
	bad.Confidence = 1.2
	_, err := r.Record(ctx, bad)
	assert.ErrorIs(t, err, ErrInvalidPrediction)

	bad = scenarioPrediction()
	bad.AgentType = "oracle"
	_, err = r.Record(ctx, bad)
	assert.ErrorIs(t, err, ErrInvalidPrediction)

	bad = scenarioPrediction()
	bad.PredictedRange = &types.Range{Min: 3, Max: 1}
	_, err = r.Record(ctx, bad)
	assert.ErrorIs(t, err, ErrInvalidPrediction)

	repo.AssertNotCalled(t, "InsertPrediction", mock.Anything, mock.Anything)
}

func TestEvaluator_Window(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	recs := []types.PredictionRecord{
		{Actual: &types.Actualization{AccuracyScore: 1, IsAccurate: true}},
		{Actual: &types.Actualization{AccuracyScore: 0.5}},
	}
	repo := new(MockPredictionRepo)
	repo.On("ListPredictions", mock.Anything, mock.MatchedBy(func(q store.PredictionQuery) bool {
		return q.ActualizedOnly && q.TimeField == store.ByActualizedAt &&
			q.Since.Equal(now.AddDate(0, 0, -WindowDays)) && q.Until.Equal(now)
	})).Return(recs, nil)

	w, err := NewEvaluator(repo).Window(context.Background(), types.AgentRisk, "v2", now)
	require.NoError(t, err)
	assert.Equal(t, 2, w.Samples)
	assert.InDelta(t, 0.75, w.MeanAccuracy, 1e-12)
	assert.InDelta(t, 0.5, w.AccurateRate, 1e-12)
	assert.Equal(t, "v2", w.ModelVersion)
}
