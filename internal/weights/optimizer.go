// Package weights adapts per-agent weights to the variance of recent
// features and serves default weight seeds.
package weights

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"reitloop/internal/logger"
	"reitloop/internal/store"
	"reitloop/internal/types"

	"github.com/shopspring/decimal"
)

// SmoothingFactor 是新重要性混入权重的比例。
const SmoothingFactor = 0.3

// renormPlaces 限定归一化权重的小数精度。
const renormPlaces = 12

// OptimizeResult carries the computed weights even when some writes failed.
type OptimizeResult struct {
	Weights    []types.WeightConfig `json:"weights"`
	Importance map[string]float64   `json:"importance"`
	// PersistErr joins every failed weight write.
	PersistErr error `json:"-"`
}

type Optimizer struct {
	repo  store.WeightRepository
	seeds SeedSource
	now   func() time.Time
	log   *slog.Logger
}

// NewOptimizer builds an optimizer. A nil seed source falls back to even
// weights over the canonical features.
func NewOptimizer(repo store.WeightRepository, seeds SeedSource) *Optimizer {
	if seeds == nil {
		seeds = defaultSeeds{}
	}
	return &Optimizer{
		repo:  repo,
		seeds: seeds,
		now:   time.Now,
		log:   logger.With("weights"),
	}
}

// Current returns the agent's stored weights, seeding them first when none
// exist.
func (o *Optimizer) Current(ctx context.Context, agent types.AgentType) ([]types.WeightConfig, error) {
	current, seedErr, err := o.load(ctx, agent)
	if seedErr != nil {
		o.log.Warn("weight seeding incomplete", "agent", agent, "error", seedErr)
	}
	return current, err
}

func (o *Optimizer) load(ctx context.Context, agent types.AgentType) (weights []types.WeightConfig, seedErr, err error) {
	current, err := o.repo.ListWeights(ctx, agent)
	if err != nil {
		return nil, nil, fmt.Errorf("list weights: %w", err)
	}
	if len(current) > 0 {
		return current, nil, nil
	}
	seeds := o.seeds.Seeds(agent)
	now := o.now()
	var errs []error
	for i := range seeds {
		seeds[i].AgentType = agent
		seeds[i].Source = types.WeightManual
		seeds[i].UpdatedAt = now
		if err := o.repo.UpsertWeight(ctx, seeds[i]); err != nil {
			errs = append(errs, fmt.Errorf("seed %s: %w", seeds[i].Name, err))
		}
	}
	return seeds, errors.Join(errs...), nil
}

// Optimize blends feature importance into the agent's weights, renormalizes
// them to sum to 1 and persists them. Persistence is best-effort.
func (o *Optimizer) Optimize(ctx context.Context, agent types.AgentType, features []types.FeatureVector) (OptimizeResult, error) {
	current, seedErr, err := o.load(ctx, agent)
	if err != nil {
		return OptimizeResult{}, err
	}
	if len(features) == 0 {
		return OptimizeResult{Weights: current, PersistErr: seedErr}, nil
	}

	importance := Importance(features)
	blended := make([]types.WeightConfig, len(current))
	copy(blended, current)
	for i := range blended {
		if imp, ok := importance[blended[i].Name]; ok {
			blended[i].Value = (1-SmoothingFactor)*blended[i].Value + SmoothingFactor*imp
		}
	}
	Renormalize(blended)

	now := o.now()
	errs := []error{seedErr}
	for i := range blended {
		blended[i].AgentType = agent
		blended[i].Source = types.WeightAuto
		blended[i].UpdatedAt = now
		if err := o.repo.UpsertWeight(ctx, blended[i]); err != nil {
			errs = append(errs, fmt.Errorf("persist %s: %w", blended[i].Name, err))
		}
	}
	res := OptimizeResult{Weights: blended, Importance: importance, PersistErr: errors.Join(errs...)}
	if res.PersistErr != nil {
		o.log.Warn("weight persistence incomplete", "agent", agent, "error", res.PersistErr)
	}
	return res, nil
}

// Importance is each feature's population variance over the batch divided
// by the total variance. With zero total variance every importance is 0.
func Importance(features []types.FeatureVector) map[string]float64 {
	names := types.FeatureNames()
	out := make(map[string]float64, len(names))
	if len(features) == 0 {
		for _, name := range names {
			out[name] = 0
		}
		return out
	}
	rows := make([][]float64, len(features))
	for i, f := range features {
		rows[i] = f.Values()
	}
	variances := make([]float64, len(names))
	n := float64(len(rows))
	for col := range names {
		var mean float64
		for _, row := range rows {
			mean += row[col]
		}
		mean /= n
		var ss float64
		for _, row := range rows {
			d := row[col] - mean
			ss += d * d
		}
		variances[col] = ss / n
	}
	var total float64
	for _, v := range variances {
		total += v
	}
	for col, name := range names {
		if total == 0 {
			out[name] = 0
			continue
		}
		out[name] = variances[col] / total
	}
	return out
}

// Renormalize scales weights in place so they sum to exactly 1 in decimal
// arithmetic. The rounding residual goes to the largest weight. A zero sum
// leaves the values untouched.
func Renormalize(weights []types.WeightConfig) {
	if len(weights) == 0 {
		return
	}
	sum := decimal.Zero
	for _, w := range weights {
		sum = sum.Add(decimal.NewFromFloat(w.Value))
	}
	if sum.IsZero() {
		return
	}
	one := decimal.NewFromInt(1)
	scaled := make([]decimal.Decimal, len(weights))
	acc := decimal.Zero
	largest := 0
	for i, w := range weights {
		scaled[i] = decimal.NewFromFloat(w.Value).DivRound(sum, renormPlaces)
		acc = acc.Add(scaled[i])
		if scaled[i].GreaterThan(scaled[largest]) {
			largest = i
		}
	}
	scaled[largest] = scaled[largest].Add(one.Sub(acc))
	for i := range weights {
		weights[i].Value = scaled[i].InexactFloat64()
	}
}
