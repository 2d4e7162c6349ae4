// Package apihttp exposes the prediction feedback loop over HTTP.
package apihttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"reitloop/internal/accuracy"
	"reitloop/internal/features"
	"reitloop/internal/feedback"
	"reitloop/internal/logger"
	"reitloop/internal/retrain"
	"reitloop/internal/store"
	"reitloop/internal/types"
	"reitloop/internal/versioning"
	"reitloop/internal/visual"

	"github.com/gin-gonic/gin"
)

// Service is the loop surface served by the router.
type Service interface {
	RecordPrediction(ctx context.Context, p accuracy.NewPrediction) (types.PredictionRecord, error)
	Prediction(ctx context.Context, id string) (types.PredictionRecord, error)
	Actualize(ctx context.Context, id string, actual float64, actualRange *types.Range) (types.PredictionRecord, error)
	Window(ctx context.Context, agent types.AgentType, version string) (accuracy.RollingWindow, error)
	Check(ctx context.Context, agent types.AgentType, version string) (retrain.Decision, error)
	RetrainAgent(ctx context.Context, agent types.AgentType, reason string) (feedback.RetrainOutcome, error)
	Versions(ctx context.Context, modelType types.ModelType) ([]types.ModelVersion, error)
	Rollback(ctx context.Context, modelType types.ModelType, target string) (types.ModelVersion, error)
	Runs(ctx context.Context, modelType types.ModelType, limit int) ([]types.TrainingRun, error)
	TrainingRun(ctx context.Context, id string) (types.TrainingRun, error)
	Weights(ctx context.Context, agent types.AgentType) ([]types.WeightConfig, error)
	Extract(ctx context.Context, req features.ExtractRequest) ([]types.FeatureVector, features.ExtractionReport)
}

var _ Service = (*feedback.Loop)(nil)

var errBadRequest = errors.New("bad request")

const maxRunsLimit = 500

type Router struct {
	svc Service
}

func NewRouter(svc Service) *Router {
	return &Router{svc: svc}
}

// Register 在 group 上挂载 API 路由。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.POST("/predictions", r.handleRecordPrediction)
	group.GET("/predictions/:id", r.handleGetPrediction)
	group.POST("/predictions/:id/actual", r.handleActualize)
	group.GET("/accuracy/:agent/:version", r.handleWindow)
	group.GET("/retrain/:agent/:version", r.handleCheck)
	group.POST("/retrain/:agent", r.handleRetrain)
	group.GET("/models/:type/versions", r.handleVersions)
	group.POST("/models/:type/rollback", r.handleRollback)
	group.GET("/training/runs", r.handleRuns)
	group.GET("/training/runs/:id", r.handleRun)
	group.GET("/training/runs/:id/chart", r.handleRunChart)
	group.GET("/weights/:agent", r.handleWeights)
	group.POST("/features/extract", r.handleExtract)
}

type rangeBody struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (b *rangeBody) toRange() *types.Range {
	if b == nil {
		return nil
	}
	return &types.Range{Min: b.Min, Max: b.Max}
}

type predictionBody struct {
	AgentType      string         `json:"agent_type" binding:"required"`
	EntityCode     string         `json:"entity_code" binding:"required"`
	TargetDate     string         `json:"target_date"`
	PredictedValue *float64       `json:"predicted_value" binding:"required"`
	PredictedRange *rangeBody     `json:"predicted_range"`
	Confidence     float64        `json:"confidence"`
	ModelVersion   string         `json:"model_version" binding:"required"`
	InputFeatures  map[string]any `json:"input_features"`
}

func (r *Router) handleRecordPrediction(c *gin.Context) {
	var body predictionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	agent, err := types.ParseAgentType(body.AgentType)
	if err != nil {
		writeError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	target, err := parseDate(body.TargetDate)
	if err != nil {
		writeError(c, err)
		return
	}
	rec, err := r.svc.RecordPrediction(c.Request.Context(), accuracy.NewPrediction{
		AgentType:      agent,
		EntityCode:     body.EntityCode,
		TargetDate:     target,
		PredictedValue: *body.PredictedValue,
		PredictedRange: body.PredictedRange.toRange(),
		Confidence:     body.Confidence,
		ModelVersion:   body.ModelVersion,
		InputFeatures:  body.InputFeatures,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (r *Router) handleGetPrediction(c *gin.Context) {
	rec, err := r.svc.Prediction(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type actualBody struct {
	ActualValue *float64   `json:"actual_value" binding:"required"`
	ActualRange *rangeBody `json:"actual_range"`
}

func (r *Router) handleActualize(c *gin.Context) {
	var body actualBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	rec, err := r.svc.Actualize(c.Request.Context(), c.Param("id"), *body.ActualValue, body.ActualRange.toRange())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (r *Router) handleWindow(c *gin.Context) {
	agent, ok := agentParam(c)
	if !ok {
		return
	}
	w, err := r.svc.Window(c.Request.Context(), agent, c.Param("version"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (r *Router) handleCheck(c *gin.Context) {
	agent, ok := agentParam(c)
	if !ok {
		return
	}
	d, err := r.svc.Check(c.Request.Context(), agent, c.Param("version"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

type retrainBody struct {
	Reason string `json:"reason"`
}

func (r *Router) handleRetrain(c *gin.Context) {
	agent, ok := agentParam(c)
	if !ok {
		return
	}
	var body retrainBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			writeError(c, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
	}
	if strings.TrimSpace(body.Reason) == "" {
		body.Reason = "manual"
	}
	out, err := r.svc.RetrainAgent(c.Request.Context(), agent, body.Reason)
	if err != nil {
		logger.Warnf("[api] retrain %s failed ip=%s err=%v", agent, c.ClientIP(), err)
		if errors.Is(err, feedback.ErrTrainingFailed) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "outcome": out})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (r *Router) handleVersions(c *gin.Context) {
	versions, err := r.svc.Versions(c.Request.Context(), types.ModelType(c.Param("type")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

type rollbackBody struct {
	Version string `json:"version" binding:"required"`
}

func (r *Router) handleRollback(c *gin.Context) {
	var body rollbackBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	v, err := r.svc.Rollback(c.Request.Context(), types.ModelType(c.Param("type")), body.Version)
	if err != nil {
		writeError(c, err)
		return
	}
	logger.Infof("[api] rollback %s -> %s ip=%s", c.Param("type"), v.Version, c.ClientIP())
	c.JSON(http.StatusOK, v)
}

func (r *Router) handleRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 {
		limit = 50
	}
	if limit > maxRunsLimit {
		limit = maxRunsLimit
	}
	runs, err := r.svc.Runs(c.Request.Context(), types.ModelType(strings.TrimSpace(c.Query("model_type"))), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (r *Router) handleRun(c *gin.Context) {
	run, err := r.svc.TrainingRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (r *Router) handleRunChart(c *gin.Context) {
	run, err := r.svc.TrainingRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if strings.EqualFold(c.Query("format"), "png") {
		img, err := visual.LossChartPNG(c.Request.Context(), run)
		if err != nil {
			if errors.Is(err, visual.ErrEmptyCurve) {
				writeError(c, fmt.Errorf("%w: %v", errBadRequest, err))
				return
			}
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", img.Filename))
		c.Data(http.StatusOK, "image/png", img.Bytes)
		return
	}
	html, err := visual.LossChartHTML(run)
	if err != nil {
		writeError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

func (r *Router) handleWeights(c *gin.Context) {
	agent, ok := agentParam(c)
	if !ok {
		return
	}
	ws, err := r.svc.Weights(c.Request.Context(), agent)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent_type": agent, "weights": ws})
}

type extractBody struct {
	Entity       string `json:"entity"`
	LookbackDays int    `json:"lookback_days"`
}

func (r *Router) handleExtract(c *gin.Context) {
	var body extractBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			writeError(c, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
	}
	if body.LookbackDays < 0 {
		writeError(c, fmt.Errorf("%w: lookback_days must not be negative", errBadRequest))
		return
	}
	vectors, report := r.svc.Extract(c.Request.Context(), features.ExtractRequest{
		Entity:   strings.TrimSpace(body.Entity),
		Lookback: time.Duration(body.LookbackDays) * 24 * time.Hour,
	})
	c.JSON(http.StatusOK, gin.H{"vectors": vectors, "report": report})
}

func agentParam(c *gin.Context) (types.AgentType, bool) {
	agent, err := types.ParseAgentType(c.Param("agent"))
	if err != nil {
		writeError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return "", false
	}
	return agent, true
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: target_date %q is not RFC3339 or YYYY-MM-DD", errBadRequest, raw)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, accuracy.ErrInvalidPrediction),
		errors.Is(err, versioning.ErrMalformed):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, versioning.ErrVersionNotFound):
		return http.StatusNotFound
	case errors.Is(err, accuracy.ErrAlreadyActualized), errors.Is(err, feedback.ErrRetrainInFlight),
		errors.Is(err, versioning.ErrVersionExists):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Errorf("[api] %s %s failed ip=%s err=%v", c.Request.Method, c.FullPath(), c.ClientIP(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
