package accuracy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"reitloop/internal/logger"
	"reitloop/internal/store"
	"reitloop/internal/types"
)

// WindowDays is the trailing span of the rolling accuracy window.
const WindowDays = 30

var (
	ErrAlreadyActualized = errors.New("prediction already actualized")
	ErrInvalidPrediction = errors.New("invalid prediction")
)

// Checker is notified after an actualization has been persisted.
type Checker interface {
	OnActualized(ctx context.Context, agent types.AgentType, modelVersion string) error
}

// RollingWindow summarizes the actualized predictions of one (agent, version)
// pair over a time span.
type RollingWindow struct {
	AgentType    types.AgentType `json:"agent_type"`
	ModelVersion string          `json:"model_version"`
	Samples      int             `json:"samples"`
	Accurate     int             `json:"accurate"`
	MeanAccuracy float64         `json:"mean_accuracy"`
	AccurateRate float64         `json:"accurate_rate"`
	From         time.Time       `json:"from"`
	To           time.Time       `json:"to"`
}

// Evaluator reconciles predictions against ground truth.
type Evaluator struct {
	repo    store.PredictionRepository
	checker Checker
	now     func() time.Time
	log     *slog.Logger
}

func NewEvaluator(repo store.PredictionRepository) *Evaluator {
	return &Evaluator{
		repo: repo,
		now:  time.Now,
		log:  logger.With("evaluator"),
	}
}

// SetChecker installs the hook called after every successful actualization.
func (e *Evaluator) SetChecker(c Checker) {
	e.checker = c
}

// Actualize scores the prediction against the actual value and persists the
// outcome. Fetch and update failures are returned to the caller.
func (e *Evaluator) Actualize(ctx context.Context, id string, actual float64, actualRange *types.Range) (types.PredictionRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return types.PredictionRecord{}, fmt.Errorf("%w: prediction id is required", ErrInvalidPrediction)
	}
	if actualRange != nil && !actualRange.Valid() {
		return types.PredictionRecord{}, fmt.Errorf("%w: actual range min > max", ErrInvalidPrediction)
	}
	rec, err := e.repo.GetPrediction(ctx, id)
	if err != nil {
		return types.PredictionRecord{}, fmt.Errorf("fetch prediction %s: %w", id, err)
	}
	if rec.Actualized() {
		return rec, ErrAlreadyActualized
	}

	score, magnitude := Score(rec.PredictedValue, actual)
	act := types.Actualization{
		ActualValue:    actual,
		ActualRange:    actualRange,
		AccuracyScore:  score,
		ErrorMagnitude: magnitude,
		IsAccurate:     IsAccurate(rec.PredictedRange, rec.Confidence, actual, score),
		ActualizedAt:   e.now(),
	}
	if err := e.repo.ActualizePrediction(ctx, id, act); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return rec, ErrAlreadyActualized
		}
		return types.PredictionRecord{}, fmt.Errorf("update prediction %s: %w", id, err)
	}
	rec.Actual = &act

	if e.checker != nil {
		if err := e.checker.OnActualized(ctx, rec.AgentType, rec.ModelVersion); err != nil {
			e.log.Warn("post-actualization check failed",
				"agent", rec.AgentType, "version", rec.ModelVersion, "error", err)
		}
	}
	return rec, nil
}

// Window summarizes the trailing WindowDays of actualizations ending at now.
func (e *Evaluator) Window(ctx context.Context, agent types.AgentType, version string, now time.Time) (RollingWindow, error) {
	if now.IsZero() {
		now = e.now()
	}
	from := now.AddDate(0, 0, -WindowDays)
	recs, err := e.repo.ListPredictions(ctx, store.PredictionQuery{
		AgentType:      agent,
		ModelVersion:   version,
		ActualizedOnly: true,
		TimeField:      store.ByActualizedAt,
		Since:          from,
		Until:          now,
	})
	if err != nil {
		return RollingWindow{}, fmt.Errorf("list actualized predictions: %w", err)
	}
	w := Summarize(recs)
	w.AgentType = agent
	w.ModelVersion = version
	w.From = from
	w.To = now
	return w, nil
}

// Summarize folds actualized records into window statistics. Records without
// an actualization are ignored.
func Summarize(recs []types.PredictionRecord) RollingWindow {
	var (
		w   RollingWindow
		sum float64
	)
	for _, rec := range recs {
		if rec.Actual == nil {
			continue
		}
		w.Samples++
		sum += rec.Actual.AccuracyScore
		if rec.Actual.IsAccurate {
			w.Accurate++
		}
	}
	if w.Samples > 0 {
		w.MeanAccuracy = sum / float64(w.Samples)
		w.AccurateRate = float64(w.Accurate) / float64(w.Samples)
	}
	return w
}
