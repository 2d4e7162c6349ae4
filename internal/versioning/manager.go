// Package versioning manages the lifecycle of model versions: publish,
// rollback and patch bumps. At most one version per model type is active.
//
// Publish and Rollback issue sequential writes; callers must serialize them
// per model type.
package versioning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"reitloop/internal/logger"
	"reitloop/internal/store"
	"reitloop/internal/types"
)

var (
	ErrVersionNotFound = errors.New("model version not found")
	ErrVersionExists   = errors.New("model version already exists")
	ErrMalformed       = errors.New("malformed version string")
)

const DefaultBaseVersion = "v1.0.0"

// PublishRequest describes a newly trained version.
type PublishRequest struct {
	ModelType     types.ModelType
	Version       string
	TrainingRunID string
	Metrics       types.ModelMetrics
	Config        json.RawMessage
	WindowStart   time.Time
	WindowEnd     time.Time
}

// Repository is the storage the manager needs.
type Repository interface {
	store.ModelVersionRepository
	ListWeights(ctx context.Context, agent types.AgentType) ([]types.WeightConfig, error)
}

type Manager struct {
	repo        Repository
	baseVersion string
	now         func() time.Time
	log         *slog.Logger
}

func NewManager(repo Repository, baseVersion string) *Manager {
	baseVersion = strings.TrimSpace(baseVersion)
	if baseVersion == "" {
		baseVersion = DefaultBaseVersion
	}
	return &Manager{
		repo:        repo,
		baseVersion: baseVersion,
		now:         time.Now,
		log:         logger.With("versions"),
	}
}

// Publish deactivates and deprecates the current active version, snapshots
// the agent's weights and inserts the new version as active.
func (m *Manager) Publish(ctx context.Context, req PublishRequest) (types.ModelVersion, error) {
	if req.ModelType == "" {
		return types.ModelVersion{}, fmt.Errorf("publish: model type is required")
	}
	if _, err := parseVersion(req.Version); err != nil {
		return types.ModelVersion{}, err
	}
	if _, err := m.repo.GetVersion(ctx, req.ModelType, req.Version); err == nil {
		return types.ModelVersion{}, fmt.Errorf("%w: %s %s", ErrVersionExists, req.ModelType, req.Version)
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.ModelVersion{}, fmt.Errorf("lookup version: %w", err)
	}

	snapshot, err := m.weightSnapshot(ctx, req.ModelType)
	if err != nil {
		return types.ModelVersion{}, err
	}

	now := m.now()
	current, err := m.repo.ActiveVersion(ctx, req.ModelType)
	switch {
	case err == nil:
		if err := m.repo.SetVersionState(ctx, req.ModelType, current.Version, store.VersionState{Deprecated: true, At: now}); err != nil {
			return types.ModelVersion{}, fmt.Errorf("deactivate %s: %w", current.Version, err)
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		return types.ModelVersion{}, fmt.Errorf("lookup active version: %w", err)
	}

	cfg := req.Config
	if len(cfg) == 0 {
		cfg = json.RawMessage("{}")
	}
	v := types.ModelVersion{
		ModelType:     req.ModelType,
		Version:       req.Version,
		Config:        cfg,
		Weights:       snapshot,
		WindowStart:   req.WindowStart,
		WindowEnd:     req.WindowEnd,
		Metrics:       req.Metrics,
		Active:        true,
		TrainingRunID: req.TrainingRunID,
		CreatedAt:     now,
		ActivatedAt:   &now,
	}
	if err := m.repo.InsertVersion(ctx, v); err != nil {
		err = fmt.Errorf("insert version %s: %w", req.Version, err)
		return types.ModelVersion{}, errors.Join(err, m.restore(ctx, req.ModelType, current))
	}
	m.log.Info("model version published", "model_type", req.ModelType, "version", req.Version, "previous", current.Version)
	return v, nil
}

// Rollback makes target the active version. Rolling back to the version that
// is already active does nothing.
func (m *Manager) Rollback(ctx context.Context, modelType types.ModelType, target string) (types.ModelVersion, error) {
	target = strings.TrimSpace(target)
	tv, err := m.repo.GetVersion(ctx, modelType, target)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.ModelVersion{}, fmt.Errorf("%w: %s %s", ErrVersionNotFound, modelType, target)
		}
		return types.ModelVersion{}, err
	}
	if tv.Active {
		return tv, nil
	}

	now := m.now()
	current, err := m.repo.ActiveVersion(ctx, modelType)
	switch {
	case err == nil:
		if err := m.repo.SetVersionState(ctx, modelType, current.Version, store.VersionState{Deprecated: true, At: now}); err != nil {
			return types.ModelVersion{}, fmt.Errorf("deactivate %s: %w", current.Version, err)
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		return types.ModelVersion{}, fmt.Errorf("lookup active version: %w", err)
	}
	if err := m.repo.SetVersionState(ctx, modelType, target, store.VersionState{Active: true, At: now}); err != nil {
		err = fmt.Errorf("activate %s: %w", target, err)
		return types.ModelVersion{}, errors.Join(err, m.restore(ctx, modelType, current))
	}
	tv.Active = true
	tv.Deprecated = false
	tv.ActivatedAt = &now
	m.log.Info("model version rolled back", "model_type", modelType, "version", target, "previous", current.Version)
	return tv, nil
}

// restore 在发布或回滚的第二次写入失败后重新激活 prev；prev 为零值表示此前没有 active 版本。
func (m *Manager) restore(ctx context.Context, modelType types.ModelType, prev types.ModelVersion) error {
	if prev.Version == "" {
		return nil
	}
	at := m.now()
	if prev.ActivatedAt != nil {
		at = *prev.ActivatedAt
	}
	err := m.repo.SetVersionState(ctx, modelType, prev.Version, store.VersionState{Active: true, Deprecated: prev.Deprecated, At: at})
	if err != nil {
		m.log.Error("restore active version failed", "model_type", modelType, "version", prev.Version, "error", err)
		return fmt.Errorf("restore %s: %w", prev.Version, err)
	}
	m.log.Warn("previous version restored", "model_type", modelType, "version", prev.Version)
	return nil
}

// NextVersion bumps the patch of the newest known version, or returns the
// base version when the model type has none.
func (m *Manager) NextVersion(ctx context.Context, modelType types.ModelType) (string, error) {
	versions, err := m.repo.ListVersions(ctx, modelType)
	if err != nil {
		return "", fmt.Errorf("list versions: %w", err)
	}
	var newest *semver
	for _, v := range versions {
		sv, err := parseVersion(v.Version)
		if err != nil {
			continue
		}
		if newest == nil || sv.greater(*newest) {
			cp := sv
			newest = &cp
		}
	}
	if newest == nil {
		return m.baseVersion, nil
	}
	newest.patch++
	return newest.String(), nil
}

func (m *Manager) List(ctx context.Context, modelType types.ModelType) ([]types.ModelVersion, error) {
	return m.repo.ListVersions(ctx, modelType)
}

// Active returns the active version, or ErrVersionNotFound.
func (m *Manager) Active(ctx context.Context, modelType types.ModelType) (types.ModelVersion, error) {
	v, err := m.repo.ActiveVersion(ctx, modelType)
	if errors.Is(err, store.ErrNotFound) {
		return v, fmt.Errorf("%w: no active %s", ErrVersionNotFound, modelType)
	}
	return v, err
}

func (m *Manager) weightSnapshot(ctx context.Context, modelType types.ModelType) (map[string]float64, error) {
	agent, ok := types.AgentForModelType(modelType)
	if !ok {
		return map[string]float64{}, nil
	}
	weights, err := m.repo.ListWeights(ctx, agent)
	if err != nil {
		return nil, fmt.Errorf("snapshot weights: %w", err)
	}
	return types.WeightMap(weights), nil
}

// BumpPatch increments the patch component of a vMAJOR.MINOR.PATCH string.
func BumpPatch(version string) (string, error) {
	sv, err := parseVersion(version)
	if err != nil {
		return "", err
	}
	sv.patch++
	return sv.String(), nil
}

type semver struct {
	major, minor, patch int
}

func (s semver) String() string {
	return fmt.Sprintf("v%d.%d.%d", s.major, s.minor, s.patch)
}

func (s semver) greater(o semver) bool {
	if s.major != o.major {
		return s.major > o.major
	}
	if s.minor != o.minor {
		return s.minor > o.minor
	}
	return s.patch > o.patch
}

func parseVersion(raw string) (semver, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "v") {
		return semver{}, fmt.Errorf("%w: %q", ErrMalformed, raw)
	}
	parts := strings.Split(trimmed[1:], ".")
	if len(parts) != 3 {
		return semver{}, fmt.Errorf("%w: %q", ErrMalformed, raw)
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || strings.HasPrefix(p, "+") {
			return semver{}, fmt.Errorf("%w: %q", ErrMalformed, raw)
		}
		nums[i] = n
	}
	return semver{major: nums[0], minor: nums[1], patch: nums[2]}, nil
}
