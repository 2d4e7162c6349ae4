package weights

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"reitloop/internal/store/gormstore"
	"reitloop/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockWeightRepo struct {
	mock.Mock
}

func (m *MockWeightRepo) ListWeights(ctx context.Context, agent types.AgentType) ([]types.WeightConfig, error) {
	args := m.Called(ctx, agent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.WeightConfig), args.Error(1)
}

func (m *MockWeightRepo) UpsertWeight(ctx context.Context, w types.WeightConfig) error {
	args := m.Called(ctx, w)
	return args.Error(0)
}

func batch() []types.FeatureVector {
	return []types.FeatureVector{
		{EntityCode: "a", PolicyImpact: 0.9, NewsSentiment: 0.1, MarketTrend: 0.2, Fundamental: 0.5},
		{EntityCode: "b", PolicyImpact: 0.1, NewsSentiment: 0.2, MarketTrend: -0.4, Fundamental: 0.5},
		{EntityCode: "c", PolicyImpact: 0.5, NewsSentiment: 0.3, MarketTrend: 0.8, Fundamental: 0.5},
	}
}

func sum(ws []types.WeightConfig) float64 {
	var s float64
	for _, w := range ws {
		s += w.Value
	}
	return s
}

func TestImportance(t *testing.T) {
	imp := Importance(batch())
	var total float64
	for _, v := range imp {
		total += v
	}
	assert.InDelta(t, 1.0, total, 1e-12)
	assert.Equal(t, 0.0, imp[types.FeatureFundamental])
	assert.Greater(t, imp[types.FeatureMarketTrend], imp[types.FeaturePolicyImpact])

	flat := Importance([]types.FeatureVector{{PolicyImpact: 1}, {PolicyImpact: 1}})
	for name, v := range flat {
		assert.Equal(t, 0.0, v, name)
	}
}

func TestRenormalize(t *testing.T) {
	ws := []types.WeightConfig{{Name: "a", Value: 0.1}, {Name: "b", Value: 0.1}, {Name: "c", Value: 0.1}}
	Renormalize(ws)
	assert.InDelta(t, 1.0, sum(ws), 1e-12)
	assert.InDelta(t, 1.0/3, ws[1].Value, 1e-9)

	zero := []types.WeightConfig{{Name: "a"}, {Name: "b"}}
	Renormalize(zero)
	assert.Equal(t, 0.0, sum(zero))
}

func TestOptimizer_BlendsAndPersists(t *testing.T) {
	s, err := gormstore.NewGormStore(filepath.Join(t.TempDir(), "w.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	extra := types.WeightConfig{AgentType: types.AgentNews, Name: "analyst_bias", Value: 0.2, Source: types.WeightManual}
	require.NoError(t, s.UpsertWeight(ctx, extra))
	for _, seed := range DefaultSeeds(types.AgentNews) {
		seed.Value = 0.2
		require.NoError(t, s.UpsertWeight(ctx, seed))
	}

	res, err := NewOptimizer(s, nil).Optimize(ctx, types.AgentNews, batch())
	require.NoError(t, err)
	require.NoError(t, res.PersistErr)
	require.Len(t, res.Weights, 5)
	assert.InDelta(t, 1.0, sum(res.Weights), 1e-9)

	stored, err := s.ListWeights(ctx, types.AgentNews)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sum(stored), 1e-9)
	byName := types.WeightMap(stored)
	for _, w := range stored {
		assert.Equal(t, types.WeightAuto, w.Source)
	}
	// The unmatched name keeps its blended share: 0.2 before renormalization.
	assert.Greater(t, byName["analyst_bias"], byName[types.FeatureFundamental])
}

func TestOptimizer_ZeroVarianceKeepsWeights(t *testing.T) {
	current := []types.WeightConfig{
		{AgentType: types.AgentValuation, Name: types.FeaturePolicyImpact, Value: 0.4},
		{AgentType: types.AgentValuation, Name: types.FeatureNewsSentiment, Value: 0.3},
		{AgentType: types.AgentValuation, Name: types.FeatureMarketTrend, Value: 0.2},
		{AgentType: types.AgentValuation, Name: types.FeatureFundamental, Value: 0.1},
	}
	repo := new(MockWeightRepo)
	repo.On("ListWeights", mock.Anything, types.AgentValuation).Return(current, nil)
	repo.On("UpsertWeight", mock.Anything, mock.Anything).Return(nil)

	flat := []types.FeatureVector{
		{EntityCode: "a", PolicyImpact: 0.3, NewsSentiment: 0.1, MarketTrend: -0.2, Fundamental: 0.5},
		{EntityCode: "b", PolicyImpact: 0.3, NewsSentiment: 0.1, MarketTrend: -0.2, Fundamental: 0.5},
	}
	res, err := NewOptimizer(repo, nil).Optimize(context.Background(), types.AgentValuation, flat)
	require.NoError(t, err)
	for name, imp := range res.Importance {
		assert.Equal(t, 0.0, imp, name)
	}
	// Every weight is scaled by the same 0.7, so renormalizing restores it.
	got := types.WeightMap(res.Weights)
	for _, w := range current {
		assert.InDelta(t, w.Value, got[w.Name], 1e-9, w.Name)
	}
	assert.InDelta(t, 1.0, sum(res.Weights), 1e-12)
	repo.AssertNumberOfCalls(t, "UpsertWeight", 4)
}

func TestOptimizer_SeedsEmptyAgent(t *testing.T) {
	repo := new(MockWeightRepo)
	repo.On("ListWeights", mock.Anything, types.AgentRisk).Return([]types.WeightConfig{}, nil)
	repo.On("UpsertWeight", mock.Anything, mock.MatchedBy(func(w types.WeightConfig) bool { return w.Source == types.WeightManual })).Return(nil).Times(4)

	res, err := NewOptimizer(repo, nil).Optimize(context.Background(), types.AgentRisk, nil)
	require.NoError(t, err)
	assert.Len(t, res.Weights, 4)
	assert.InDelta(t, 1.0, sum(res.Weights), 1e-12)
	repo.AssertExpectations(t)
}

func TestOptimizer_PersistenceIsBestEffort(t *testing.T) {
	current := DefaultSeeds(types.AgentPolicy)
	repo := new(MockWeightRepo)
	repo.On("ListWeights", mock.Anything, types.AgentPolicy).Return(current, nil)
	repo.On("UpsertWeight", mock.Anything, mock.MatchedBy(func(w types.WeightConfig) bool { return w.Name == types.FeatureMarketTrend })).Return(errors.New("disk full"))
	repo.On("UpsertWeight", mock.Anything, mock.Anything).Return(nil)

	res, err := NewOptimizer(repo, nil).Optimize(context.Background(), types.AgentPolicy, batch())
	require.NoError(t, err)
	require.Error(t, res.PersistErr)
	assert.Contains(t, res.PersistErr.Error(), types.FeatureMarketTrend)
	assert.InDelta(t, 1.0, sum(res.Weights), 1e-9)
	repo.AssertNumberOfCalls(t, "UpsertWeight", 4)
}

func TestOptimizer_ListFailure(t *testing.T) {
	repo := new(MockWeightRepo)
	repo.On("ListWeights", mock.Anything, types.AgentPolicy).Return(nil, errors.New("locked"))
	_, err := NewOptimizer(repo, nil).Optimize(context.Background(), types.AgentPolicy, batch())
	assert.Error(t, err)
	repo.AssertNotCalled(t, "UpsertWeight", mock.Anything, mock.Anything)
}
