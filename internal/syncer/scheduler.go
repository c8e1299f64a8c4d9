package syncer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Trigger names.
const (
	TriggerSchedule = "schedule"
	TriggerStartup  = "startup"
	TriggerManual   = "manual"
	TriggerCLI      = "cli"
)

// Runner performs one sync run.
type Runner interface {
	SyncAll(ctx context.Context, trigger string) (*RunResult, error)
}

// SchedulerConfig contains scheduler configuration.
type SchedulerConfig struct {
	Interval   time.Duration
	RunOnStart bool
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:   5 * time.Minute,
		RunOnStart: true,
	}
}

// Status describes the scheduler state.
type Status struct {
	Running    bool       `json:"running"`
	Interval   string     `json:"interval"`
	LastRun    *RunResult `json:"last_run,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	NextTickAt *time.Time `json:"next_tick_at,omitempty"`
}

// Scheduler triggers runs periodically and on demand. At most one run is active at a
// time: a trigger that arrives while a run is in flight is dropped.
type Scheduler struct {
	config SchedulerConfig
	runner Runner

	running atomic.Bool
	runs    sync.WaitGroup

	mu        sync.RWMutex
	lastRun   *RunResult
	lastError string
	nextTick  *time.Time

	// lifecycle orders run registration against Stop.
	lifecycle sync.Mutex
	stopCh    chan struct{}
	stopOnce  sync.Once
	loopDone  chan struct{}
	started   atomic.Bool
}

// NewScheduler creates a new scheduler.
func NewScheduler(config SchedulerConfig, runner Runner) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultSchedulerConfig().Interval
	}
	return &Scheduler{
		config:   config,
		runner:   runner,
		stopCh:   make(chan struct{}),
		loopDone: make(chan struct{}),
	}
}

// Start launches the ticker loop. ctx only bounds the loop; runs themselves are detached
// and are not cancelled when ctx ends.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}

	slog.Info("starting sync scheduler",
		"interval", s.config.Interval,
		"run_on_start", s.config.RunOnStart,
	)

	if s.config.RunOnStart {
		s.TriggerSync(TriggerStartup)
	}

	go s.loop(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()
	s.setNextTick(time.Now().Add(s.config.Interval))

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.setNextTick(time.Now().Add(s.config.Interval))
			s.TriggerSync(TriggerSchedule)
		}
	}
}

// TriggerSync starts a run in the background unless one is already active.
// It reports whether a run was started.
func (s *Scheduler) TriggerSync(trigger string) bool {
	if err := s.acquire(trigger); err != nil {
		slog.Debug("sync trigger dropped", "trigger", trigger, "reason", err)
		return false
	}

	go func() {
		defer s.runs.Done()
		defer s.running.Store(false)
		s.execute(context.Background(), trigger)
	}()
	return true
}

// RunNow runs synchronously on the caller's goroutine. It fails with ErrRunInProgress
// while another run is active and with ErrSchedulerStopped after Stop.
func (s *Scheduler) RunNow(ctx context.Context, trigger string) (*RunResult, error) {
	if err := s.acquire(trigger); err != nil {
		return nil, err
	}
	defer s.runs.Done()
	defer s.running.Store(false)

	return s.execute(ctx, trigger)
}

// acquire claims the run slot and registers the run with Stop.
func (s *Scheduler) acquire(trigger string) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.isStopped() {
		return ErrSchedulerStopped
	}
	if !s.running.CompareAndSwap(false, true) {
		triggersDropped.WithLabelValues(trigger).Inc()
		return ErrRunInProgress
	}
	s.runs.Add(1)
	return nil
}

func (s *Scheduler) execute(ctx context.Context, trigger string) (*RunResult, error) {
	result, err := s.runner.SyncAll(ctx, trigger)
	if err != nil {
		slog.Error("sync run failed", "trigger", trigger, "error", err)
	}

	s.mu.Lock()
	if result != nil {
		s.lastRun = result
	}
	s.lastError = ""
	if err != nil {
		s.lastError = err.Error()
	}
	s.mu.Unlock()

	return result, err
}

// Running reports whether a run is in flight.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := Status{
		Running:   s.running.Load(),
		Interval:  s.config.Interval.String(),
		LastRun:   s.lastRun,
		LastError: s.lastError,
	}
	if s.nextTick != nil && !s.isStopped() {
		next := *s.nextTick
		status.NextTickAt = &next
	}
	return status
}

// Stop prevents future ticks and triggers, then waits for the in-flight run to finish.
// It is safe to call more than once and from a signal handler goroutine.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.lifecycle.Lock()
		close(s.stopCh)
		s.lifecycle.Unlock()

		if s.started.Load() {
			<-s.loopDone
		}
		s.runs.Wait()
		slog.Info("sync scheduler stopped")
	})
}

func (s *Scheduler) isStopped() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

func (s *Scheduler) setNextTick(t time.Time) {
	s.mu.Lock()
	s.nextTick = &t
	s.mu.Unlock()
}
