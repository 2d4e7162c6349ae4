package store

import (
	"context"
	"errors"
	"time"

	"reitloop/internal/types"
)

var (
	// ErrNotFound 表示按主键查询未命中任何记录。
	ErrNotFound = errors.New("store: record not found")
	// ErrConflict is returned when a guarded write matched no row because the
	// guard no longer holds (e.g. the prediction was already actualized).
	ErrConflict = errors.New("store: conflicting write")
)

// TimeField 指定 PredictionQuery 的时间范围作用于哪个时间戳。
type TimeField string

const (
	ByCreatedAt    TimeField = "created_at"
	ByActualizedAt TimeField = "actualized_at"
)

// PredictionQuery 是 ListPredictions 的过滤条件，零值表示不过滤。
type PredictionQuery struct {
	AgentType      types.AgentType
	ModelVersion   string
	EntityCode     string
	ActualizedOnly bool
	TimeField      TimeField
	Since          time.Time
	Until          time.Time
	Descending     bool
	Limit          int
}

// AgentVersion is an (agent, model version) pair with actualized predictions.
type AgentVersion struct {
	AgentType    types.AgentType
	ModelVersion string
}

// PredictionRepository is the durable record of predictions and outcomes.
type PredictionRepository interface {
	InsertPrediction(ctx context.Context, rec types.PredictionRecord) error
	GetPrediction(ctx context.Context, id string) (types.PredictionRecord, error)
	// ActualizePrediction writes every actual-side field in one statement.
	// It returns ErrConflict when the record is already actualized.
	ActualizePrediction(ctx context.Context, id string, act types.Actualization) error
	ListPredictions(ctx context.Context, q PredictionQuery) ([]types.PredictionRecord, error)
	DistinctActualizedPairs(ctx context.Context, since time.Time) ([]AgentVersion, error)
}

// WeightRepository stores per-agent weight configurations.
type WeightRepository interface {
	ListWeights(ctx context.Context, agent types.AgentType) ([]types.WeightConfig, error)
	// UpsertWeight inserts or replaces the row keyed by (agent, name).
	UpsertWeight(ctx context.Context, w types.WeightConfig) error
}

// ModelVersionRepository stores model version history.
type ModelVersionRepository interface {
	InsertVersion(ctx context.Context, v types.ModelVersion) error
	GetVersion(ctx context.Context, modelType types.ModelType, version string) (types.ModelVersion, error)
	ActiveVersion(ctx context.Context, modelType types.ModelType) (types.ModelVersion, error)
	// ListVersions returns versions newest first.
	ListVersions(ctx context.Context, modelType types.ModelType) ([]types.ModelVersion, error)
	SetVersionState(ctx context.Context, modelType types.ModelType, version string, state VersionState) error
}

// VersionState 是模型版本中可变的生命周期字段。
type VersionState struct {
	Active     bool
	Deprecated bool
	At         time.Time
}

// TrainingRunRepository stores training runs.
type TrainingRunRepository interface {
	InsertRun(ctx context.Context, run types.TrainingRun) error
	UpdateRun(ctx context.Context, run types.TrainingRun) error
	GetRun(ctx context.Context, id string) (types.TrainingRun, error)
	// ListRuns returns runs newest first. An empty model type lists all.
	ListRuns(ctx context.Context, modelType types.ModelType, limit int) ([]types.TrainingRun, error)
}

// SignalRepository exposes raw domain signals for feature extraction.
type SignalRepository interface {
	ListPolicyImpacts(ctx context.Context, since time.Time, entity string) ([]types.PolicyImpact, error)
	ListSentimentEvents(ctx context.Context, since time.Time, entity string) ([]types.SentimentEvent, error)
	InsertPolicyImpact(ctx context.Context, p types.PolicyImpact) error
	InsertSentimentEvent(ctx context.Context, e types.SentimentEvent) error
}

// Store 将所有仓储接口聚合在同一个连接之上。
type Store interface {
	PredictionRepository
	WeightRepository
	ModelVersionRepository
	TrainingRunRepository
	SignalRepository
	Close() error
}
