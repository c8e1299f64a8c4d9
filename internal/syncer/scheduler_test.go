package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingRunner counts runs and holds each one until release is closed.
type blockingRunner struct {
	mu       sync.Mutex
	release  chan struct{}
	started  chan string
	calls    atomic.Int32
	active   atomic.Int32
	overlaps atomic.Int32
	finished atomic.Int32
	err      error
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{
		release: make(chan struct{}),
		started: make(chan string, 16),
	}
}

func (r *blockingRunner) SyncAll(_ context.Context, trigger string) (*RunResult, error) {
	r.calls.Add(1)
	if r.active.Add(1) > 1 {
		r.overlaps.Add(1)
	}
	defer r.active.Add(-1)

	select {
	case r.started <- trigger:
	default:
	}

	r.mu.Lock()
	release := r.release
	r.mu.Unlock()
	<-release

	r.finished.Add(1)
	return &RunResult{Trigger: trigger, Succeeded: 1}, r.err
}

func (r *blockingRunner) unblock() {
	r.mu.Lock()
	defer r.mu.Unlock()
	close(r.release)
}

func waitStarted(t *testing.T, r *blockingRunner) string {
	t.Helper()
	select {
	case trigger := <-r.started:
		return trigger
	case <-time.After(2 * time.Second):
		t.Fatal("run did not start")
		return ""
	}
}

func TestScheduler_DropsTriggersWhileRunning(t *testing.T) {
	runner := newBlockingRunner()
	s := NewScheduler(SchedulerConfig{Interval: time.Hour}, runner)
	defer s.Stop()

	require.True(t, s.TriggerSync(TriggerManual))
	assert.Equal(t, TriggerManual, waitStarted(t, runner))
	assert.True(t, s.Running())

	assert.False(t, s.TriggerSync(TriggerManual))
	_, err := s.RunNow(context.Background(), TriggerCLI)
	assert.ErrorIs(t, err, ErrRunInProgress)

	runner.unblock()
	require.Eventually(t, func() bool { return !s.Running() }, 2*time.Second, 10*time.Millisecond)

	assert.EqualValues(t, 1, runner.calls.Load())
	assert.Zero(t, runner.overlaps.Load())
}

func TestScheduler_TicksNeverOverlap(t *testing.T) {
	runner := newBlockingRunner()
	s := NewScheduler(SchedulerConfig{Interval: 10 * time.Millisecond}, runner)

	s.Start(context.Background())
	waitStarted(t, runner)

	// Many ticks elapse while the first run is held.
	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 1, runner.calls.Load())

	runner.unblock()
	s.Stop()
	assert.Zero(t, runner.overlaps.Load())
}

func TestScheduler_StopWaitsForInFlightRun(t *testing.T) {
	runner := newBlockingRunner()
	s := NewScheduler(SchedulerConfig{Interval: 20 * time.Millisecond, RunOnStart: true}, runner)

	s.Start(context.Background())
	assert.Equal(t, TriggerStartup, waitStarted(t, runner))

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned before the in-flight run finished")
	case <-time.After(100 * time.Millisecond):
	}

	runner.unblock()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	assert.EqualValues(t, 1, runner.finished.Load())

	calls := runner.calls.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, calls, runner.calls.Load(), "no ticks after Stop")
	assert.False(t, s.TriggerSync(TriggerManual))
}

func TestScheduler_RunNowAfterStop(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig(), newBlockingRunner())
	s.Stop()
	s.Stop()

	_, err := s.RunNow(context.Background(), TriggerCLI)
	assert.ErrorIs(t, err, ErrSchedulerStopped)
}

func TestScheduler_RunNowRecordsStatus(t *testing.T) {
	runner := newBlockingRunner()
	runner.err = errors.New("store unavailable")
	runner.unblock()

	s := NewScheduler(SchedulerConfig{Interval: time.Minute}, runner)
	defer s.Stop()

	result, err := s.RunNow(context.Background(), TriggerCLI)
	require.Error(t, err)
	require.NotNil(t, result)

	status := s.Status()
	assert.False(t, status.Running)
	assert.Equal(t, "1m0s", status.Interval)
	require.NotNil(t, status.LastRun)
	assert.Equal(t, TriggerCLI, status.LastRun.Trigger)
	assert.Equal(t, "store unavailable", status.LastError)
	assert.Nil(t, status.NextTickAt)
}
