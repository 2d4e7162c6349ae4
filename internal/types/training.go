package types

import (
	"fmt"
	"strings"
	"time"
)

// TrainingMode selects how a run treats the currently active model.
type TrainingMode string

const (
	ModeFull        TrainingMode = "full"
	ModeIncremental TrainingMode = "incremental"
	ModeFineTune    TrainingMode = "fine_tune"
)

func ParseTrainingMode(raw string) (TrainingMode, error) {
	switch m := TrainingMode(strings.ToLower(strings.TrimSpace(raw))); m {
	case "":
		return ModeFull, nil
	case ModeFull, ModeIncremental, ModeFineTune:
		return m, nil
	case "fine-tune", "finetune":
		return ModeFineTune, nil
	default:
		return "", fmt.Errorf("unknown training mode %q", raw)
	}
}

type TrainingStatus string

const (
	StatusRunning TrainingStatus = "running"
	StatusSuccess TrainingStatus = "success"
	StatusFailed  TrainingStatus = "failed"
)

func (s TrainingStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// TrainingRun tracks one retrain attempt. running -> success | failed.
type TrainingRun struct {
	ID           string         `json:"id"`
	ModelType    ModelType      `json:"model_type"`
	ModelVersion string         `json:"model_version,omitempty"`
	Mode         TrainingMode   `json:"mode"`
	Epochs       int            `json:"epochs"`
	LearningRate float64        `json:"learning_rate"`
	Status       TrainingStatus `json:"status"`
	BestEpoch    int            `json:"best_epoch"`
	EpochsRun    int            `json:"epochs_run"`
	FinalLoss    float64        `json:"final_loss"`
	EarlyStopped bool           `json:"early_stopped"`
	SampleCount  int            `json:"sample_count"`
	FeatureCount int            `json:"feature_count"`
	LossCurve    []float64      `json:"loss_curve,omitempty"`
	Metrics      *ModelMetrics  `json:"metrics,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	EndedAt      *time.Time     `json:"ended_at,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// Succeed moves a running run to success.
func (r *TrainingRun) Succeed(at time.Time) error {
	if r.Status.Terminal() {
		return fmt.Errorf("training run %s already %s", r.ID, r.Status)
	}
	r.Status = StatusSuccess
	r.EndedAt = &at
	return nil
}

// Fail moves a running run to failed with the given cause.
func (r *TrainingRun) Fail(at time.Time, cause error) error {
	if r.Status.Terminal() {
		return fmt.Errorf("training run %s already %s", r.ID, r.Status)
	}
	r.Status = StatusFailed
	r.EndedAt = &at
	if cause != nil {
		r.ErrorMessage = cause.Error()
	}
	return nil
}
