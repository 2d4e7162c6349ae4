// Package retrain decides from the rolling accuracy window whether a model
// version needs retraining.
package retrain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"reitloop/internal/accuracy"
	"reitloop/internal/logger"
	"reitloop/internal/types"
)

// The window span, sample floor and threshold are fixed.
const (
	WindowDays        = accuracy.WindowDays
	MinSamples        = 10
	AccuracyThreshold = 0.75
)

type Action string

const (
	ActionNone             Action = "none"
	ActionInsufficientData Action = "insufficient_data"
	ActionRetrain          Action = "retrain"
)

// Decision 是一次检查的结果。
type Decision struct {
	AgentType    types.AgentType        `json:"agent_type"`
	ModelVersion string                 `json:"model_version"`
	Action       Action                 `json:"action"`
	Reason       string                 `json:"reason"`
	Window       accuracy.RollingWindow `json:"window"`
	CheckedAt    time.Time              `json:"checked_at"`
}

// WindowReader 提供滚动准确率窗口。
type WindowReader interface {
	Window(ctx context.Context, agent types.AgentType, version string, now time.Time) (accuracy.RollingWindow, error)
}

// Retrainer 为智能体发起重训练。
type Retrainer interface {
	Retrain(ctx context.Context, agent types.AgentType, reason string) error
}

type Trigger struct {
	windows   WindowReader
	retrainer Retrainer
	now       func() time.Time
	log       *slog.Logger
}

func NewTrigger(windows WindowReader, retrainer Retrainer) *Trigger {
	return &Trigger{
		windows:   windows,
		retrainer: retrainer,
		now:       time.Now,
		log:       logger.With("trigger"),
	}
}

// WithClock 替换计算窗口边界所用的时钟。
func (t *Trigger) WithClock(now func() time.Time) *Trigger {
	if now != nil {
		t.now = now
	}
	return t
}

// SetRetrainer 设置重训练委托。
func (t *Trigger) SetRetrainer(r Retrainer) {
	t.retrainer = r
}

// Check reads the window and decides. It has no side effects.
func (t *Trigger) Check(ctx context.Context, agent types.AgentType, version string) (Decision, error) {
	now := t.now()
	w, err := t.windows.Window(ctx, agent, version, now)
	if err != nil {
		return Decision{}, fmt.Errorf("read accuracy window: %w", err)
	}
	return Decide(agent, version, w, now), nil
}

// Decide applies the retrain rule to a window summary. Both the mean score
// and the accurate rate must reach the threshold; exactly at the threshold
// is acceptable.
func Decide(agent types.AgentType, version string, w accuracy.RollingWindow, now time.Time) Decision {
	d := Decision{
		AgentType:    agent,
		ModelVersion: version,
		Window:       w,
		CheckedAt:    now,
	}
	switch {
	case w.Samples < MinSamples:
		d.Action = ActionInsufficientData
		d.Reason = fmt.Sprintf("%d samples in window, need %d", w.Samples, MinSamples)
	case w.MeanAccuracy < AccuracyThreshold:
		d.Action = ActionRetrain
		d.Reason = fmt.Sprintf("mean accuracy %.4f below %.2f", w.MeanAccuracy, AccuracyThreshold)
	case w.AccurateRate < AccuracyThreshold:
		d.Action = ActionRetrain
		d.Reason = fmt.Sprintf("accurate rate %.4f below %.2f", w.AccurateRate, AccuracyThreshold)
	default:
		d.Action = ActionNone
		d.Reason = fmt.Sprintf("mean accuracy %.4f, accurate rate %.4f", w.MeanAccuracy, w.AccurateRate)
	}
	return d
}

// Evaluate runs Check and, on a retrain decision, hands off to the
// retrainer. The retrainer's error is returned with the decision.
func (t *Trigger) Evaluate(ctx context.Context, agent types.AgentType, version string) (Decision, error) {
	d, err := t.Check(ctx, agent, version)
	if err != nil {
		return d, err
	}
	t.log.Debug("retrain check", "agent", agent, "version", version, "action", d.Action, "samples", d.Window.Samples)
	if d.Action != ActionRetrain || t.retrainer == nil {
		return d, nil
	}
	t.log.Info("retrain triggered", "agent", agent, "version", version, "reason", d.Reason)
	if err := t.retrainer.Retrain(ctx, agent, d.Reason); err != nil {
		return d, fmt.Errorf("retrain %s: %w", agent, err)
	}
	return d, nil
}

// OnActualized lets the trigger act as the evaluator's post-write hook.
func (t *Trigger) OnActualized(ctx context.Context, agent types.AgentType, version string) error {
	_, err := t.Evaluate(ctx, agent, version)
	return err
}
