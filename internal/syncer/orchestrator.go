// Package syncer drives data source synchronization: the orchestrator performs one pass
// over every active data source, and the scheduler decides when passes run.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bissquit/incident-radar/internal/connectors"
	"github.com/bissquit/incident-radar/internal/domain"
	"github.com/bissquit/incident-radar/internal/pkg/ctxlog"
	"github.com/bissquit/incident-radar/internal/store"
	"golang.org/x/sync/errgroup"
)

// Sync stages, used in logs and results.
const (
	StageConnect    = "connect"
	StageIncidents  = "incidents"
	StageUpdates    = "updates"
	StageComponents = "components"
	StageStore      = "store"
	StageMetrics    = "metrics"
)

// Repository is the part of store.Repository the orchestrator writes through.
type Repository interface {
	ListActiveDataSources(ctx context.Context) ([]domain.DataSource, error)
	UpsertIncident(ctx context.Context, incident *domain.Incident) error
	AppendIncidentUpdates(ctx context.Context, incidentID string, updates []domain.IncidentUpdate) (int, error)
	UpsertComponent(ctx context.Context, component *domain.ServiceComponent) error
	UpsertMetric(ctx context.Context, metric *domain.DailyMetric) error
	RecordSyncOutcome(ctx context.Context, dataSourceID string, at time.Time, failure *store.SyncFailure) (int, error)
}

// ConnectorFactory builds the connector for a data source.
type ConnectorFactory interface {
	Create(ds domain.DataSource) (connectors.Connector, error)
}

// Publisher receives sync lifecycle events. Publish must not block.
type Publisher interface {
	Publish(event domain.SyncEvent)
}

// Config configures an Orchestrator.
type Config struct {
	// Concurrency bounds how many data sources sync in parallel.
	Concurrency int
	// RetryAlertThreshold is the retry count from which failures are logged as persistent.
	RetryAlertThreshold int
	// SystemID identifies this process in system_sync events.
	SystemID string
}

// DefaultConfig returns default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:         4,
		RetryAlertThreshold: 5,
		SystemID:            "incident-radar",
	}
}

// SourceResult is the outcome of syncing one data source.
type SourceResult struct {
	DataSourceID string               `json:"data_source_id"`
	Name         string               `json:"name"`
	Type         domain.ConnectorType `json:"type"`
	Success      bool                 `json:"success"`
	Skipped      bool                 `json:"skipped,omitempty"`
	Stage        string               `json:"stage,omitempty"`
	Error        string               `json:"error,omitempty"`
	ErrorKind    connectors.ErrorKind `json:"error_kind,omitempty"`
	Incidents    int                  `json:"incidents"`
	Updates      int                  `json:"updates"`
	Components   int                  `json:"components"`
	RetryCount   int                  `json:"retry_count"`
	Duration     time.Duration        `json:"duration"`
}

// RunResult is the outcome of one orchestrator run.
type RunResult struct {
	Trigger    string         `json:"trigger"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Sources    []SourceResult `json:"sources"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	Aborted    bool           `json:"aborted"`
}

// Orchestrator performs sync runs. One value is shared by the scheduler and the
// on-demand trigger.
type Orchestrator struct {
	repo      Repository
	factory   ConnectorFactory
	publisher Publisher
	config    Config
	now       func() time.Time

	locks keyedMutex

	hooksMu sync.RWMutex
	hooks   []func(ctx context.Context, result *RunResult)
}

// NewOrchestrator creates an Orchestrator. publisher may be nil.
func NewOrchestrator(repo Repository, factory ConnectorFactory, publisher Publisher, config Config) *Orchestrator {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &Orchestrator{
		repo:      repo,
		factory:   factory,
		publisher: publisher,
		config:    config,
		now:       time.Now,
		locks:     keyedMutex{locks: make(map[string]*refMutex)},
	}
}

// OnRunComplete registers fn to be called after every run that got as far as listing
// data sources, aborted or not. Aborted runs carry Aborted and may hold skipped sources.
func (o *Orchestrator) OnRunComplete(fn func(ctx context.Context, result *RunResult)) {
	o.hooksMu.Lock()
	defer o.hooksMu.Unlock()
	o.hooks = append(o.hooks, fn)
}

// SyncAll syncs every active data source. Per-source failures are recorded on the source
// and never returned; an error is returned only when the store itself fails. Sources
// already in flight then finish and record their own outcome, sources not yet started
// are skipped without touching their state.
func (o *Orchestrator) SyncAll(ctx context.Context, trigger string) (*RunResult, error) {
	ctx, logger := ctxlog.With(ctx, "trigger", trigger)
	result := &RunResult{Trigger: trigger, StartedAt: o.now()}
	o.publisher.Publish(domain.NewSyncStartedEvent(result.StartedAt, trigger))

	sources, err := o.repo.ListActiveDataSources(ctx)
	if err != nil {
		result.Aborted = true
		result.FinishedAt = o.now()
		recordRun("aborted", result.FinishedAt.Sub(result.StartedAt))
		return result, fmt.Errorf("list active data sources: %w", err)
	}

	logger.Info("sync run started", "data_sources", len(sources))

	results := make([]SourceResult, len(sources))
	var aborted atomic.Bool
	var g errgroup.Group
	g.SetLimit(o.config.Concurrency)

	for i, ds := range sources {
		g.Go(func() error {
			if aborted.Load() {
				results[i] = SourceResult{DataSourceID: ds.ID, Name: ds.Name, Type: ds.Type, Skipped: true, Error: "run aborted"}
				return nil
			}
			res, err := o.syncSource(ctx, ds)
			results[i] = res
			if err != nil {
				aborted.Store(true)
			}
			return err
		})
	}
	runErr := g.Wait()

	result.Sources = results
	result.FinishedAt = o.now()
	for _, res := range results {
		if res.Success {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	duration := result.FinishedAt.Sub(result.StartedAt)
	if runErr != nil {
		result.Aborted = true
		recordRun("aborted", duration)
		logger.Error("sync run aborted", "error", runErr)
		o.runHooks(ctx, result)
		return result, runErr
	}

	outcome := "ok"
	if result.Failed > 0 {
		outcome = "partial"
	}
	recordRun(outcome, duration)

	o.publisher.Publish(domain.NewSystemSyncEvent(result.FinishedAt, o.config.SystemID, result.Succeeded, result.Failed))
	logger.Info("sync run finished",
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"duration", duration,
	)

	o.runHooks(ctx, result)
	return result, nil
}

func (o *Orchestrator) runHooks(ctx context.Context, result *RunResult) {
	o.hooksMu.RLock()
	hooks := o.hooks
	o.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook(ctx, result)
	}
}

// syncSource syncs one data source and records the outcome on it. The returned error is
// non-nil only when the outcome itself could not be stored.
func (o *Orchestrator) syncSource(ctx context.Context, ds domain.DataSource) (SourceResult, error) {
	o.locks.Lock(ds.ID)
	defer o.locks.Unlock(ds.ID)

	ctx, logger := ctxlog.With(ctx,
		"data_source_id", ds.ID,
		"data_source", ds.Name,
		"connector", ds.Type,
	)

	start := o.now()
	res := SourceResult{DataSourceID: ds.ID, Name: ds.Name, Type: ds.Type}

	stage, err := o.collect(ctx, ds, &res)

	var failure *store.SyncFailure
	if err != nil {
		res.Stage = stage
		res.Error = err.Error()
		res.ErrorKind = connectors.KindOf(err)
		failure = &store.SyncFailure{Message: res.Error, Kind: string(res.ErrorKind)}
	} else {
		res.Success = true
	}

	// A caller giving up says nothing about the vendor, so the source keeps its state.
	if res.ErrorKind == connectors.KindCanceled && ctx.Err() != nil {
		res.Duration = o.now().Sub(start)
		logger.Warn("data source sync canceled", "stage", stage)
		return res, nil
	}

	at := o.now()
	retryCount, recErr := o.repo.RecordSyncOutcome(ctx, ds.ID, at, failure)
	res.Duration = at.Sub(start)
	if recErr != nil {
		res.Success = false
		if res.Error == "" {
			res.Stage = StageStore
			res.Error = recErr.Error()
			res.ErrorKind = connectors.KindStorage
		}
		return res, fmt.Errorf("record sync outcome for %q: %w", ds.Name, recErr)
	}
	res.RetryCount = retryCount

	if err != nil {
		logger.Error("data source sync failed",
			"stage", stage,
			"error_kind", res.ErrorKind,
			"retry_count", retryCount,
			"error", err,
		)
		if o.config.RetryAlertThreshold > 0 && retryCount >= o.config.RetryAlertThreshold {
			logger.Warn("data source persistently failing", "retry_count", retryCount)
		}
	} else {
		logger.Debug("data source synced",
			"incidents", res.Incidents,
			"updates", res.Updates,
			"components", res.Components,
			"duration", res.Duration,
		)
	}

	recordSource(res)
	o.publisher.Publish(domain.NewDataSourceSyncEvent(at, ds.ID, res.Success, string(res.ErrorKind)))

	return res, nil
}

// collect fetches and stores everything for one data source, returning the stage that failed.
// A panicking connector is converted into a failure of that source.
func (o *Orchestrator) collect(ctx context.Context, ds domain.DataSource, res *SourceResult) (stage string, err error) {
	stage = StageConnect
	defer func() {
		if r := recover(); r != nil {
			err = connectors.NewError(connectors.KindParse, stage, fmt.Errorf("connector panicked: %v", r))
		}
	}()

	conn, err := o.factory.Create(ds)
	if err != nil {
		return stage, err
	}

	stage = StageIncidents
	incidents, err := conn.FetchIncidents(ctx)
	if err != nil {
		return stage, connectors.Classify("fetch incidents", err)
	}

	stage = StageComponents
	components, err := conn.FetchComponents(ctx)
	if err != nil {
		return stage, connectors.Classify("fetch components", err)
	}

	now := o.now()
	for i := range incidents {
		inc := &incidents[i]
		inc.DataSourceID = ds.ID
		inc.Normalize(now)

		stage = StageStore
		if err := o.repo.UpsertIncident(ctx, inc); err != nil {
			return stage, connectors.NewError(connectors.KindStorage, "upsert incident "+inc.ExternalID, err)
		}
		res.Incidents++

		updates := inc.Updates
		if updates == nil && !inc.Status.IsResolved() {
			stage = StageUpdates
			updates, err = conn.FetchIncidentUpdates(ctx, inc.ExternalID)
			if err != nil {
				return stage, connectors.Classify("fetch updates for incident "+inc.ExternalID, err)
			}
		}
		if len(updates) == 0 {
			continue
		}

		stage = StageStore
		inserted, err := o.repo.AppendIncidentUpdates(ctx, inc.ID, updates)
		if err != nil {
			return stage, connectors.NewError(connectors.KindStorage, "append updates for incident "+inc.ExternalID, err)
		}
		res.Updates += inserted
	}

	stage = StageStore
	for i := range components {
		c := &components[i]
		c.DataSourceID = ds.ID
		if err := o.repo.UpsertComponent(ctx, c); err != nil {
			return stage, connectors.NewError(connectors.KindStorage, "upsert component "+c.ExternalID, err)
		}
		res.Components++
	}

	stage = StageMetrics
	metric := BuildDailyMetric(ds.ID, now, incidents, components)
	if err := o.repo.UpsertMetric(ctx, &metric); err != nil {
		return stage, connectors.NewError(connectors.KindStorage, "upsert daily metric", err)
	}

	return "", nil
}

// BuildDailyMetric aggregates one source's current records for the UTC day of now.
// Mean time to resolve covers incidents resolved on that day.
func BuildDailyMetric(dataSourceID string, now time.Time, incidents []domain.Incident, components []domain.ServiceComponent) domain.DailyMetric {
	day := domain.MetricDate(now)
	metric := domain.DailyMetric{
		Date:           day,
		DataSourceID:   dataSourceID,
		IncidentCount:  len(incidents),
		ComponentCount: len(components),
	}

	var resolvedToday int
	var totalResolve time.Duration
	for _, inc := range incidents {
		if !inc.Status.IsResolved() {
			metric.OpenIncidentCount++
			continue
		}
		metric.ResolvedIncidentCount++
		if inc.ResolvedAt != nil && domain.MetricDate(*inc.ResolvedAt).Equal(day) && !inc.ResolvedAt.Before(inc.StartedAt) {
			resolvedToday++
			totalResolve += inc.ResolvedAt.Sub(inc.StartedAt)
		}
	}
	if resolvedToday > 0 {
		metric.MeanTimeToResolveSecs = totalResolve.Seconds() / float64(resolvedToday)
	}

	for _, c := range components {
		if c.Status.IsDegraded() {
			metric.DegradedComponents++
		}
	}

	return metric
}

// keyedMutex serializes work per data source id. An entry lives only while someone
// holds or waits for it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()
	m.Lock()
}

func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	m := k.locks[key]
	m.refs--
	if m.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
	m.Unlock()
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

type noopPublisher struct{}

func (noopPublisher) Publish(domain.SyncEvent) {}
