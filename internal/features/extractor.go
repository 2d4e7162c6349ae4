// Package features builds per-entity feature vectors from policy impacts,
// news sentiment, market prices and fundamentals.
package features

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"reitloop/internal/logger"
	"reitloop/internal/pkg/circuit"
	"reitloop/internal/types"

	"golang.org/x/sync/errgroup"
)

// 提取报告中使用的步骤名
const (
	StepPolicyImpact  = "policy_impact"
	StepSentiment     = "news_sentiment"
	StepMarketTrend   = "market_trend"
	StepFundamental   = "fundamental"
	defaultLookback   = 7 * 24 * time.Hour
	defaultMarketSpan = 60
)

// Signals is the store surface the extractor reads.
type Signals interface {
	ListPolicyImpacts(ctx context.Context, since time.Time, entity string) ([]types.PolicyImpact, error)
	ListSentimentEvents(ctx context.Context, since time.Time, entity string) ([]types.SentimentEvent, error)
}

// PriceFeed 返回标的最近最多 limit 个收盘价，按时间升序。
type PriceFeed interface {
	Closes(ctx context.Context, entity string, limit int) ([]types.PricePoint, error)
}

// FundamentalFeed 给出标的基本面评分，范围 [-1,1]。
type FundamentalFeed interface {
	Fundamental(ctx context.Context, entity string) (float64, error)
}

// Sampler 为缺少数据源的信号生成占位值。
type Sampler func() float64

func uniformSampler() float64 { return rand.Float64()*2 - 1 }

type ExtractRequest struct {
	// Entity restricts extraction to one entity code when set.
	Entity   string        `json:"entity,omitempty"`
	Lookback time.Duration `json:"lookback,omitempty"`
}

// StepError is one absorbed sub-step failure.
type StepError struct {
	Step   string `json:"step"`
	Entity string `json:"entity,omitempty"`
	Error  string `json:"error"`
}

// ExtractionReport describes how complete an extraction was.
type ExtractionReport struct {
	Since        time.Time   `json:"since"`
	Entities     int         `json:"entities"`
	Placeholders int         `json:"placeholders"`
	Errors       []StepError `json:"errors,omitempty"`
}

func (r *ExtractionReport) add(step, entity string, err error) {
	r.Errors = append(r.Errors, StepError{Step: step, Entity: entity, Error: err.Error()})
}

// Options configures an Extractor.
type Options struct {
	Lookback         time.Duration
	MarketLookback   int
	BreakerThreshold int
	BreakerTimeout   time.Duration
	Prices           PriceFeed
	Fundamentals     FundamentalFeed
	Sampler          Sampler
}

type Extractor struct {
	signals        Signals
	prices         PriceFeed
	fundamentals   FundamentalFeed
	breaker        *circuit.Breaker
	sample         Sampler
	lookback       time.Duration
	marketLookback int
	now            func() time.Time
	log            *slog.Logger
}

func NewExtractor(signals Signals, opts Options) *Extractor {
	if opts.Lookback <= 0 {
		opts.Lookback = defaultLookback
	}
	if opts.MarketLookback < MinTrendPoints {
		opts.MarketLookback = defaultMarketSpan
	}
	if opts.BreakerThreshold <= 0 {
		opts.BreakerThreshold = 5
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = time.Minute
	}
	if opts.Sampler == nil {
		opts.Sampler = uniformSampler
	}
	return &Extractor{
		signals:        signals,
		prices:         opts.Prices,
		fundamentals:   opts.Fundamentals,
		breaker:        circuit.New("price_feed", opts.BreakerThreshold, opts.BreakerTimeout),
		sample:         opts.Sampler,
		lookback:       opts.Lookback,
		marketLookback: opts.MarketLookback,
		now:            time.Now,
		log:            logger.With("features"),
	}
}

// Breaker 返回行情数据源的熔断器。
func (e *Extractor) Breaker() *circuit.Breaker { return e.breaker }

type aggregate struct {
	impact       float64
	hasImpact    bool
	sentimentSum float64
	sentimentN   int
}

// Extract returns one vector per entity observed in the lookback window,
// sorted by entity code. Sub-step failures are absorbed into the report.
func (e *Extractor) Extract(ctx context.Context, req ExtractRequest) ([]types.FeatureVector, ExtractionReport) {
	lookback := req.Lookback
	if lookback <= 0 {
		lookback = e.lookback
	}
	entity := strings.TrimSpace(req.Entity)
	report := ExtractionReport{Since: e.now().Add(-lookback)}

	var (
		mu      sync.Mutex
		impacts []types.PolicyImpact
		events  []types.SentimentEvent
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		got, err := e.signals.ListPolicyImpacts(gctx, report.Since, entity)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			report.add(StepPolicyImpact, entity, err)
			return nil
		}
		impacts = got
		return nil
	})
	g.Go(func() error {
		got, err := e.signals.ListSentimentEvents(gctx, report.Since, entity)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			report.add(StepSentiment, entity, err)
			return nil
		}
		events = got
		return nil
	})
	_ = g.Wait()

	aggs := make(map[string]*aggregate)
	get := func(code string) *aggregate {
		a, ok := aggs[code]
		if !ok {
			a = &aggregate{}
			aggs[code] = a
		}
		return a
	}
	for _, p := range impacts {
		a := get(p.EntityCode)
		if w := p.Weighted(); !a.hasImpact || w > a.impact {
			a.impact = w
			a.hasImpact = true
		}
	}
	for _, ev := range events {
		a := get(ev.EntityCode)
		a.sentimentSum += ev.Score
		a.sentimentN++
	}

	codes := make([]string, 0, len(aggs))
	for code := range aggs {
		if strings.TrimSpace(code) == "" {
			continue
		}
		codes = append(codes, code)
	}
	sort.Strings(codes)

	out := make([]types.FeatureVector, 0, len(codes))
	for _, code := range codes {
		a := aggs[code]
		vec := types.FeatureVector{EntityCode: code, PolicyImpact: a.impact}
		if a.sentimentN > 0 {
			vec.NewsSentiment = a.sentimentSum / float64(a.sentimentN)
		}
		vec.MarketTrend = e.marketTrend(ctx, code, &report)
		vec.Fundamental = e.fundamental(ctx, code, &report)
		out = append(out, vec)
	}
	report.Entities = len(out)
	if len(report.Errors) > 0 {
		e.log.Warn("feature extraction degraded", "entities", report.Entities, "errors", len(report.Errors))
	}
	return out, report
}

func (e *Extractor) placeholder(report *ExtractionReport) float64 {
	report.Placeholders++
	return clamp(e.sample(), -1, 1)
}

func (e *Extractor) marketTrend(ctx context.Context, entity string, report *ExtractionReport) float64 {
	if e.prices == nil {
		return e.placeholder(report)
	}
	var closes []float64
	err := e.breaker.Do(func() error {
		points, err := e.prices.Closes(ctx, entity, e.marketLookback)
		if err != nil {
			return err
		}
		closes = make([]float64, 0, len(points))
		for _, p := range points {
			closes = append(closes, p.Close)
		}
		return nil
	})
	if err != nil {
		report.add(StepMarketTrend, entity, err)
		return e.placeholder(report)
	}
	v, err := TrendSignal(closes)
	if err != nil {
		report.add(StepMarketTrend, entity, err)
		return e.placeholder(report)
	}
	return v
}

func (e *Extractor) fundamental(ctx context.Context, entity string, report *ExtractionReport) float64 {
	if e.fundamentals == nil {
		return e.placeholder(report)
	}
	v, err := e.fundamentals.Fundamental(ctx, entity)
	if err != nil {
		report.add(StepFundamental, entity, fmt.Errorf("fundamental feed: %w", err))
		return e.placeholder(report)
	}
	return clamp(v, -1, 1)
}
