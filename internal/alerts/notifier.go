package alerts

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bissquit/incident-radar/internal/syncer"
)

// Sender delivers a rendered alert.
type Sender interface {
	Send(ctx context.Context, subject, body string) error
}

// Config configures a Notifier.
type Config struct {
	// Threshold is the retry count at which a source is reported as failing.
	Threshold      int
	QueueSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
}

// DefaultConfig returns default notifier configuration.
func DefaultConfig() Config {
	return Config{
		Threshold:      5,
		QueueSize:      64,
		MaxAttempts:    3,
		InitialBackoff: time.Second,
	}
}

// Notifier turns run results into alerts. A source is reported once when its retry count
// reaches the threshold and once more when it next syncs successfully. Delivery happens on
// a background worker so a slow webhook never delays a run.
type Notifier struct {
	config Config
	sender Sender
	queue  chan Alert

	mu       sync.Mutex
	alerting map[string]bool
	closed   bool

	stopOnce sync.Once
	done     chan struct{}
}

// NewNotifier creates a Notifier. Call Start to begin delivery.
func NewNotifier(sender Sender, config Config) *Notifier {
	defaults := DefaultConfig()
	if config.Threshold <= 0 {
		config.Threshold = defaults.Threshold
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}

	return &Notifier{
		config:   config,
		sender:   sender,
		queue:    make(chan Alert, config.QueueSize),
		alerting: make(map[string]bool),
		done:     make(chan struct{}),
	}
}

// OnRunComplete inspects every source outcome of a run and enqueues alerts for sources
// whose health changed. It matches the orchestrator's run hook signature. Sources an
// aborted run never started carry no outcome and are ignored.
func (n *Notifier) OnRunComplete(_ context.Context, result *syncer.RunResult) {
	for _, src := range result.Sources {
		if src.Skipped {
			continue
		}
		if alert, ok := n.transition(src, result.FinishedAt); ok {
			n.enqueue(alert)
		}
	}
}

func (n *Notifier) transition(src syncer.SourceResult, at time.Time) (Alert, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	alert := Alert{
		DataSourceID: src.DataSourceID,
		Name:         src.Name,
		Type:         src.Type,
		ErrorKind:    string(src.ErrorKind),
		Error:        src.Error,
		RetryCount:   src.RetryCount,
		At:           at,
	}

	switch {
	case !src.Success && src.RetryCount >= n.config.Threshold && !n.alerting[src.DataSourceID]:
		n.alerting[src.DataSourceID] = true
		alert.Kind = KindFailing
		return alert, true
	case src.Success && n.alerting[src.DataSourceID]:
		delete(n.alerting, src.DataSourceID)
		alert.Kind = KindRecovered
		return alert, true
	}
	return Alert{}, false
}

func (n *Notifier) enqueue(alert Alert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}

	select {
	case n.queue <- alert:
	default:
		alertsDropped.Inc()
		slog.Warn("alert queue full, dropping alert",
			"data_source_id", alert.DataSourceID,
			"kind", alert.Kind,
		)
	}
}

// Start launches the delivery worker. It runs until ctx ends or Stop is called.
func (n *Notifier) Start(ctx context.Context) {
	go n.run(ctx)
}

// Stop delivers what is already queued and stops the worker. Start must have been called.
func (n *Notifier) Stop() {
	n.stopOnce.Do(func() {
		n.mu.Lock()
		n.closed = true
		close(n.queue)
		n.mu.Unlock()
		<-n.done
	})
}

func (n *Notifier) run(ctx context.Context) {
	defer close(n.done)

	for alert := range n.queue {
		n.deliver(ctx, alert)
	}
}

func (n *Notifier) deliver(ctx context.Context, alert Alert) {
	logger := slog.With("data_source_id", alert.DataSourceID, "kind", alert.Kind)

	subject, body, err := Render(alert)
	if err != nil {
		alertsSent.WithLabelValues(string(alert.Kind), "render_error").Inc()
		logger.Error("failed to render alert", "error", err)
		return
	}

	backoff := n.config.InitialBackoff
	for attempt := 1; ; attempt++ {
		err = n.sender.Send(ctx, subject, body)
		if err == nil {
			alertsSent.WithLabelValues(string(alert.Kind), "sent").Inc()
			logger.Info("alert sent", "attempt", attempt)
			return
		}

		var sendErr *SendError
		retryable := errors.As(err, &sendErr) && sendErr.Retryable
		if !retryable || attempt >= n.config.MaxAttempts {
			alertsSent.WithLabelValues(string(alert.Kind), "failed").Inc()
			logger.Error("failed to send alert", "attempt", attempt, "error", err)
			return
		}

		logger.Warn("alert delivery failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			alertsSent.WithLabelValues(string(alert.Kind), "failed").Inc()
			return
		case <-timer.C:
		}
		backoff *= 2
	}
}
