// Package scheduler runs a task on wall-clock aligned intervals.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"reitloop/internal/logger"
)

// Task 表示一次调度执行，调度器停止时其 ctx 会被取消。
type Task func(ctx context.Context)

// AlignedScheduler 在 Interval 的整数倍（UTC）加 Offset 的时刻触发。
type AlignedScheduler struct {
	Name           string
	Interval       time.Duration
	Offset         time.Duration
	RunImmediately bool

	nowFn func() time.Time
	log   *slog.Logger
}

func NewAlignedScheduler(name string, interval, offset time.Duration) *AlignedScheduler {
	return &AlignedScheduler{
		Name:     name,
		Interval: interval,
		Offset:   offset,
		nowFn:    time.Now,
		log:      logger.With("scheduler").With("name", name),
	}
}

// Start 阻塞运行直到 ctx 结束。任务不会重叠执行，慢任务只会推迟下一次唤醒。
func (s *AlignedScheduler) Start(ctx context.Context, task Task) {
	if s == nil {
		return
	}
	if s.log == nil {
		s.log = logger.With("scheduler").With("name", s.Name)
	}
	if task == nil {
		s.log.Warn("task is nil, exit")
		return
	}
	if s.Interval <= 0 {
		s.log.Warn("invalid interval, exit", "interval", s.Interval)
		return
	}
	if s.Offset < 0 {
		s.log.Warn("negative offset, clamp to 0", "offset", s.Offset)
		s.Offset = 0
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	startAt := s.nowFn().UTC()
	s.log.Info("started",
		"interval", s.Interval, "offset", s.Offset,
		"run_immediately", s.RunImmediately, "at", startAt.Format(time.RFC3339))

	if s.RunImmediately && ctx.Err() == nil {
		task(ctx)
	}

	for {
		now := s.nowFn().UTC()
		wakeAt, wait := s.nextTimes(now)
		s.log.Debug("next run", "at", wakeAt.Format(time.RFC3339),
			"in", wait.Truncate(time.Second), "uptime", now.Sub(startAt).Truncate(time.Second))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("ctx done, exit")
			return
		case <-timer.C:
		}
		task(ctx)
	}
}

// nextTimes 返回严格晚于 now 的下一个对齐唤醒时刻。
func (s *AlignedScheduler) nextTimes(now time.Time) (wakeAt time.Time, wait time.Duration) {
	now = now.UTC()
	wakeAt = now.Truncate(s.Interval).Add(s.Offset % s.Interval)
	for !wakeAt.After(now) {
		wakeAt = wakeAt.Add(s.Interval)
	}
	return wakeAt, wakeAt.Sub(now)
}
