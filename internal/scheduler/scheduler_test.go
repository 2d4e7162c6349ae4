package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntervalDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"15m", 15 * time.Minute, true},
		{" 1H ", time.Hour, true},
		{"1d", 24 * time.Hour, true},
		{"2w", 14 * 24 * time.Hour, true},
		{"90s", 90 * time.Second, true},
		{"1h30m", 90 * time.Minute, true},
		{"0h", 0, false},
		{"-5m", 0, false},
		{"", 0, false},
		{"soon", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := ParseIntervalDuration(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAlignedScheduler_NextTimes(t *testing.T) {
	s := NewAlignedScheduler("sweep", time.Hour, 5*time.Minute)
	now := time.Date(2026, 3, 1, 10, 20, 0, 0, time.UTC)

	wakeAt, wait := s.nextTimes(now)
	assert.Equal(t, time.Date(2026, 3, 1, 11, 5, 0, 0, time.UTC), wakeAt)
	assert.Equal(t, 45*time.Minute, wait)

	early := time.Date(2026, 3, 1, 10, 2, 0, 0, time.UTC)
	wakeAt, _ = s.nextTimes(early)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC), wakeAt)

	exact := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	wakeAt, _ = s.nextTimes(exact)
	assert.Equal(t, time.Date(2026, 3, 1, 11, 5, 0, 0, time.UTC), wakeAt)
}

func TestAlignedScheduler_RunsUntilCancelled(t *testing.T) {
	s := NewAlignedScheduler("test", 10*time.Millisecond, 0)
	s.RunImmediately = true

	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32
	done := make(chan struct{})
	go func() {
		s.Start(ctx, func(context.Context) { runs.Add(1) })
		close(done)
	}()

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestAlignedScheduler_InvalidIntervalReturns(t *testing.T) {
	s := NewAlignedScheduler("bad", 0, 0)
	called := false
	s.Start(context.Background(), func(context.Context) { called = true })
	assert.False(t, called)
}
