package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanindex/internal/errors"
)

func fastConfig() Config {
	return Config{
		Interval: 20 * time.Millisecond,
		Tick:     2 * time.Millisecond,
		Backoff:  20 * time.Millisecond,
	}
}

func TestScheduler_RunsCyclesPeriodically(t *testing.T) {
	// Given: a scheduler with a short interval
	var runs atomic.Int32
	s := NewScheduler(fastConfig(), func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	// When
	s.Start(context.Background())
	defer s.Stop()

	// Then: cycles keep coming
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	st := s.Status()
	assert.True(t, st.Running)
	assert.GreaterOrEqual(t, st.Cycles, 3)
	assert.Zero(t, st.Failures)
	assert.NotEmpty(t, st.LastCycleID)
}

func TestScheduler_FirstCycleWaitsForInterval(t *testing.T) {
	var runs atomic.Int32
	cfg := fastConfig()
	cfg.Interval = time.Hour
	s := NewScheduler(cfg, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	s.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	assert.Zero(t, runs.Load())
}

func TestScheduler_StartTwiceIsNoop(t *testing.T) {
	var runs atomic.Int32
	cfg := fastConfig()
	cfg.Interval = time.Hour
	s := NewScheduler(cfg, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	s.Start(context.Background())
	s.Start(context.Background())
	s.Trigger()

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 2*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
	s.Stop()
}

func TestScheduler_TriggerRunsEarly(t *testing.T) {
	// Given: an interval far in the future
	cfg := fastConfig()
	cfg.Interval = time.Hour
	done := make(chan struct{}, 1)
	s := NewScheduler(cfg, func(ctx context.Context) error {
		done <- struct{}{}
		return nil
	})
	s.Start(context.Background())
	defer s.Stop()

	// When
	s.Trigger()

	// Then
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("triggered cycle did not run")
	}
}

func TestScheduler_TriggerCoalesces(t *testing.T) {
	// Given: a scheduler that is not running, so nothing drains triggers
	s := NewScheduler(fastConfig(), func(ctx context.Context) error { return nil })

	// When / Then: only the first trigger is queued
	assert.True(t, s.Trigger())
	assert.False(t, s.Trigger())
}

func TestScheduler_FailedCycleBacksOffAndContinues(t *testing.T) {
	// Given: a cycle that fails twice, then succeeds
	var runs atomic.Int32
	s := NewScheduler(fastConfig(), func(ctx context.Context) error {
		if runs.Add(1) <= 2 {
			return errors.New("embedding provider unreachable")
		}
		return nil
	})

	// When
	s.Start(context.Background())
	defer s.Stop()

	// Then: the loop survives and the last error clears on success
	require.Eventually(t, func() bool { return s.Status().Cycles >= 3 }, 2*time.Second, 5*time.Millisecond)
	st := s.Status()
	assert.Equal(t, 2, st.Failures)
	assert.Empty(t, st.LastError)
}

func TestScheduler_PanicIsRecovered(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler(fastConfig(), func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			panic("boom")
		}
		return nil
	})

	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, s.Running())
	assert.GreaterOrEqual(t, s.Status().Failures, 1)
}

func TestScheduler_CycleErrorIsScheduledCycleError(t *testing.T) {
	s := NewScheduler(fastConfig(), func(ctx context.Context) error {
		return errors.New("disk full")
	})

	err := s.runCycle(context.Background())

	require.ErrorIs(t, err, amerrors.ErrCycleFailed)
	assert.Contains(t, err.Error(), "disk full")
	assert.Contains(t, s.Status().LastError, "disk full")
}

func TestScheduler_TriggerDuringBackoffIsDropped(t *testing.T) {
	// Given: a first cycle that fails and a long backoff
	cfg := fastConfig()
	cfg.Interval = time.Hour
	cfg.Backoff = time.Hour
	var runs atomic.Int32
	s := NewScheduler(cfg, func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("unreachable")
	})
	s.Start(context.Background())
	defer s.Stop()

	s.Trigger()
	require.Eventually(t, func() bool { return s.Status().Failures == 1 }, time.Second, 2*time.Millisecond)

	// When: triggered again while backing off
	s.Trigger()
	time.Sleep(30 * time.Millisecond)

	// Then
	assert.Equal(t, int32(1), runs.Load())
}

func TestScheduler_StopCancelsRunningCycle(t *testing.T) {
	// Given: a cycle that blocks until cancelled
	started := make(chan struct{})
	var cancelled atomic.Bool
	cfg := fastConfig()
	cfg.Interval = time.Hour
	s := NewScheduler(cfg, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	})
	s.Start(context.Background())
	s.Trigger()
	<-started

	// When
	s.Stop()

	// Then: Stop returned after the cycle observed cancellation
	assert.True(t, cancelled.Load())
	assert.False(t, s.Running())
	st := s.Status()
	assert.False(t, st.Running)
	assert.Zero(t, st.Failures)
}

func TestScheduler_ParentContextCancellation(t *testing.T) {
	s := NewScheduler(fastConfig(), func(ctx context.Context) error { return nil })
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	cancel()

	require.Eventually(t, func() bool { return !s.Running() }, time.Second, 2*time.Millisecond)
	s.Stop()
}

func TestScheduler_RestartAfterStop(t *testing.T) {
	var runs atomic.Int32
	cfg := fastConfig()
	cfg.Interval = time.Hour
	s := NewScheduler(cfg, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	s.Start(context.Background())
	s.Stop()
	s.Stop()
	s.Start(context.Background())
	defer s.Stop()
	s.Trigger()

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 2*time.Millisecond)
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}.withDefaults()

	assert.Equal(t, DefaultInterval, cfg.Interval)
	assert.Equal(t, DefaultTick, cfg.Tick)
	assert.Equal(t, DefaultBackoff, cfg.Backoff)

	short := Config{Interval: time.Millisecond}.withDefaults()
	assert.Equal(t, time.Millisecond, short.Tick)
}

func TestStatus_LastDuration(t *testing.T) {
	start := time.Now()
	st := Status{LastStarted: start, LastFinished: start.Add(3 * time.Second)}
	assert.Equal(t, 3*time.Second, st.LastDuration())

	st.InCycle = true
	assert.Zero(t, st.LastDuration())
}
