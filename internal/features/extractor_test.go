package features

import (
	"context"
	"errors"
	"testing"
	"time"

	"reitloop/internal/pkg/circuit"
	"reitloop/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSignals struct {
	mock.Mock
}

func (m *MockSignals) ListPolicyImpacts(ctx context.Context, since time.Time, entity string) ([]types.PolicyImpact, error) {
	args := m.Called(ctx, since, entity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.PolicyImpact), args.Error(1)
}

func (m *MockSignals) ListSentimentEvents(ctx context.Context, since time.Time, entity string) ([]types.SentimentEvent, error) {
	args := m.Called(ctx, since, entity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.SentimentEvent), args.Error(1)
}

type MockPriceFeed struct {
	mock.Mock
}

func (m *MockPriceFeed) Closes(ctx context.Context, entity string, limit int) ([]types.PricePoint, error) {
	args := m.Called(ctx, entity, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.PricePoint), args.Error(1)
}

func constSampler(v float64) Sampler { return func() float64 { return v } }

func rising(n int) []types.PricePoint {
	out := make([]types.PricePoint, n)
	for i := range out {
		out[i] = types.PricePoint{Close: 100 * (1 + 0.01*float64(i))}
	}
	return out
}

func TestExtractor_Aggregates(t *testing.T) {
	signals := new(MockSignals)
	signals.On("ListPolicyImpacts", mock.Anything, mock.Anything, "").Return([]types.PolicyImpact{
		{EntityCode: "508001", Strength: 0.9, Confidence: 0.5},
		{EntityCode: "508001", Strength: 0.6, Confidence: 1.0},
		{EntityCode: "508002", Strength: 0.2, Confidence: 0.5},
	}, nil)
	signals.On("ListSentimentEvents", mock.Anything, mock.Anything, "").Return([]types.SentimentEvent{
		{EntityCode: "508001", Score: 1.0},
		{EntityCode: "508001", Score: 0.0},
		{EntityCode: "508001", Score: 0.5},
		{EntityCode: "508003", Score: -0.4},
	}, nil)

	ex := NewExtractor(signals, Options{Sampler: constSampler(0.25)})
	vecs, report := ex.Extract(context.Background(), ExtractRequest{})

	require.Len(t, vecs, 3)
	assert.Equal(t, []string{"508001", "508002", "508003"}, []string{vecs[0].EntityCode, vecs[1].EntityCode, vecs[2].EntityCode})
	assert.InDelta(t, 0.6, vecs[0].PolicyImpact, 1e-12)
	// True mean, independent of event order.
	assert.InDelta(t, 0.5, vecs[0].NewsSentiment, 1e-12)
	assert.Equal(t, 0.0, vecs[1].NewsSentiment)
	assert.Equal(t, 0.0, vecs[2].PolicyImpact)
	assert.Equal(t, 0.25, vecs[0].MarketTrend)
	assert.Equal(t, 0.25, vecs[2].Fundamental)
	assert.Equal(t, 6, report.Placeholders)
	assert.Empty(t, report.Errors)
}

func TestExtractor_AbsorbsSubStepFailures(t *testing.T) {
	signals := new(MockSignals)
	signals.On("ListPolicyImpacts", mock.Anything, mock.Anything, "508001").Return(nil, errors.New("table locked"))
	signals.On("ListSentimentEvents", mock.Anything, mock.Anything, "508001").Return([]types.SentimentEvent{
		{EntityCode: "508001", Score: 0.3},
	}, nil)

	vecs, report := NewExtractor(signals, Options{Sampler: constSampler(0)}).Extract(context.Background(), ExtractRequest{Entity: "508001"})
	require.Len(t, vecs, 1)
	assert.Equal(t, 0.0, vecs[0].PolicyImpact)
	assert.InDelta(t, 0.3, vecs[0].NewsSentiment, 1e-12)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, StepPolicyImpact, report.Errors[0].Step)
}

func TestExtractor_MarketTrendFromFeed(t *testing.T) {
	signals := new(MockSignals)
	signals.On("ListPolicyImpacts", mock.Anything, mock.Anything, mock.Anything).Return([]types.PolicyImpact{{EntityCode: "a-up", Strength: 1, Confidence: 1}, {EntityCode: "b-down", Strength: 1, Confidence: 1}}, nil)
	signals.On("ListSentimentEvents", mock.Anything, mock.Anything, mock.Anything).Return([]types.SentimentEvent{}, nil)

	prices := new(MockPriceFeed)
	prices.On("Closes", mock.Anything, "a-up", 60).Return(rising(40), nil)
	prices.On("Closes", mock.Anything, "b-down", 60).Return(nil, errors.New("feed down"))

	ex := NewExtractor(signals, Options{Prices: prices, Sampler: constSampler(-0.5), BreakerThreshold: 1, BreakerTimeout: time.Hour})
	ex.Breaker().SetStateChangeHandler(func(string, circuit.State, circuit.State) {})
	vecs, report := ex.Extract(context.Background(), ExtractRequest{})

	require.Len(t, vecs, 2)
	up, down := vecs[0], vecs[1]
	assert.Greater(t, up.MarketTrend, 0.0)
	assert.LessOrEqual(t, up.MarketTrend, 1.0)
	assert.Equal(t, -0.5, down.MarketTrend)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, StepMarketTrend, report.Errors[0].Step)
	assert.Equal(t, circuit.StateOpen, ex.Breaker().State())

	// With the breaker open the feed is not consulted again.
	_, report = ex.Extract(context.Background(), ExtractRequest{})
	prices.AssertNumberOfCalls(t, "Closes", 2)
	assert.Len(t, report.Errors, 2)
}

func TestTrendSignal(t *testing.T) {
	_, err := TrendSignal([]float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrTooFewPoints)

	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 - float64(i)
	}
	v, err := TrendSignal(closes)
	require.NoError(t, err)
	assert.Less(t, v, 0.0)
	assert.GreaterOrEqual(t, v, -1.0)

	flat := make([]float64, 30)
	for i := range flat {
		flat[i] = 50
	}
	v, err = TrendSignal(flat)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)
}
