package app

import (
	"context"
	"fmt"

	"reitloop/internal/config"
	"reitloop/internal/feedback"
	"reitloop/internal/logger"
	"reitloop/internal/metrics"
	"reitloop/internal/scheduler"
	"reitloop/internal/store"
	apihttp "reitloop/internal/transport/http/api"

	"golang.org/x/sync/errgroup"
)

// App 持有反馈闭环及其外围服务：HTTP 接口与定时巡检。
type App struct {
	cfg     *config.Config
	store   store.Store
	loop    *feedback.Loop
	http    *apihttp.Server
	sweep   *scheduler.AlignedScheduler
	metrics *metrics.Metrics
	Summary *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	return buildAppWithWire(context.Background(), cfg)
}

// Run 阻塞运行 HTTP 服务与定时巡检，直到 ctx 取消或服务出错。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil || a.loop == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()

	if a.Summary != nil {
		logger.InfoBlock(a.Summary.Render())
	}

	group, ctx := errgroup.WithContext(ctx)
	if a.http != nil {
		group.Go(func() error {
			if err := a.http.Start(ctx); err != nil {
				return fmt.Errorf("http server error: %w", err)
			}
			return nil
		})
	}
	if a.sweep != nil {
		group.Go(func() error {
			a.sweep.Start(ctx, a.runSweep)
			return nil
		})
	}
	return group.Wait()
}

func (a *App) runSweep(ctx context.Context) {
	res, err := a.loop.Sweep(ctx)
	if err != nil {
		logger.Errorf("sweep finished with errors: %v", err)
	}
	logger.Infof("sweep at %s: %d decisions, retrained %v",
		res.StartedAt.Format("2006-01-02 15:04:05"), len(res.Decisions), res.Retrained)
}

// Loop 暴露反馈闭环，供嵌入方与测试使用。
func (a *App) Loop() *feedback.Loop {
	if a == nil {
		return nil
	}
	return a.loop
}

func (a *App) Close() {
	if a == nil || a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		logger.Warnf("close store: %v", err)
	}
	a.store = nil
}
