// Package incidents serves the aggregated incident, component and metric data read-only.
package incidents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bissquit/incident-radar/internal/domain"
	"github.com/bissquit/incident-radar/internal/pkg/cache"
	"github.com/bissquit/incident-radar/internal/pkg/ctxlog"
	"github.com/bissquit/incident-radar/internal/pkg/metrics"
	"github.com/bissquit/incident-radar/internal/store"
)

// cachePrefix namespaces every cached list query.
const cachePrefix = "incidents:"

// DefaultCacheTTL bounds staleness when a run never invalidates the cache.
const DefaultCacheTTL = time.Minute

// ErrIncidentNotFound is returned for unknown incidents and incidents of inactive sources.
var ErrIncidentNotFound = store.ErrIncidentNotFound

// Reader is the read side of store.Repository.
type Reader interface {
	GetDataSource(ctx context.Context, id string) (*domain.DataSource, error)
	ListIncidents(ctx context.Context, filter store.IncidentFilter) ([]domain.Incident, error)
	GetIncident(ctx context.Context, id string) (*domain.Incident, error)
	ListIncidentUpdates(ctx context.Context, incidentID string) ([]domain.IncidentUpdate, error)
	ListComponents(ctx context.Context, filter store.ComponentFilter) ([]domain.ServiceComponent, error)
	ListMetrics(ctx context.Context, filter store.MetricFilter) ([]domain.DailyMetric, error)
}

// Service answers incident queries, caching list results.
type Service struct {
	repo  Reader
	cache cache.Cache
	ttl   time.Duration
}

// NewService creates a Service. c may be nil to disable caching.
func NewService(repo Reader, c cache.Cache, ttl time.Duration) *Service {
	if c == nil {
		c = cache.Noop{}
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Service{repo: repo, cache: c, ttl: ttl}
}

// ListIncidents returns incidents matching filter, newest first.
func (s *Service) ListIncidents(ctx context.Context, filter store.IncidentFilter) ([]domain.Incident, error) {
	filter.Limit = store.NormalizeLimit(filter.Limit)
	key := cachePrefix + filterKey(filter)
	logger := ctxlog.FromContext(ctx)

	raw, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.CacheRequests.WithLabelValues("error").Inc()
		logger.Warn("incident cache read failed", "error", err)
	case ok:
		var cached []domain.Incident
		if err := json.Unmarshal(raw, &cached); err == nil {
			metrics.CacheRequests.WithLabelValues("hit").Inc()
			return cached, nil
		}
		metrics.CacheRequests.WithLabelValues("error").Inc()
	default:
		metrics.CacheRequests.WithLabelValues("miss").Inc()
	}

	list, err := s.repo.ListIncidents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}

	if encoded, err := json.Marshal(list); err == nil {
		if err := s.cache.Set(ctx, key, encoded, s.ttl); err != nil {
			logger.Warn("incident cache write failed", "error", err)
		}
	}
	return list, nil
}

// GetIncident returns an incident of an active data source.
func (s *Service) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	inc, err := s.repo.GetIncident(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get incident: %w", err)
	}

	ds, err := s.repo.GetDataSource(ctx, inc.DataSourceID)
	if errors.Is(err, store.ErrDataSourceNotFound) {
		return nil, ErrIncidentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get data source: %w", err)
	}
	if !ds.IsActive {
		return nil, ErrIncidentNotFound
	}
	return inc, nil
}

// ListUpdates returns the timeline of an incident, newest first.
func (s *Service) ListUpdates(ctx context.Context, incidentID string) ([]domain.IncidentUpdate, error) {
	if _, err := s.GetIncident(ctx, incidentID); err != nil {
		return nil, err
	}
	updates, err := s.repo.ListIncidentUpdates(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list incident updates: %w", err)
	}
	return updates, nil
}

// ListComponents returns vendor components.
func (s *Service) ListComponents(ctx context.Context, filter store.ComponentFilter) ([]domain.ServiceComponent, error) {
	components, err := s.repo.ListComponents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list components: %w", err)
	}
	return components, nil
}

// ListDailyMetrics returns daily metrics, newest day first.
func (s *Service) ListDailyMetrics(ctx context.Context, filter store.MetricFilter) ([]domain.DailyMetric, error) {
	list, err := s.repo.ListMetrics(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list daily metrics: %w", err)
	}
	return list, nil
}

// Invalidate drops every cached list. It runs after each sync run and each data source change.
func (s *Service) Invalidate(ctx context.Context) {
	if err := s.cache.DeletePrefix(ctx, cachePrefix); err != nil {
		ctxlog.FromContext(ctx).Warn("incident cache invalidation failed", "error", err)
	}
}

func filterKey(f store.IncidentFilter) string {
	var b strings.Builder
	if f.Status != nil {
		b.WriteString("status=" + string(*f.Status) + ";")
	}
	if f.Severity != nil {
		b.WriteString("severity=" + string(*f.Severity) + ";")
	}
	if f.DataSourceID != "" {
		b.WriteString("ds=" + f.DataSourceID + ";")
	}
	if f.ActiveOnly {
		b.WriteString("active;")
	}
	b.WriteString("limit=" + strconv.Itoa(f.Limit) + ";offset=" + strconv.Itoa(f.Offset))
	return b.String()
}
