// Package memory provides an in-process implementation of store.Repository
// for development and tests.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/bissquit/incident-radar/internal/domain"
	"github.com/bissquit/incident-radar/internal/store"
	"github.com/google/uuid"
)

type naturalKey struct {
	dataSourceID string
	externalID   string
}

type metricKey struct {
	date         time.Time
	dataSourceID string
}

// Store keeps everything in maps guarded by one mutex, which makes every upsert atomic.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	dataSources map[string]domain.DataSource
	incidents   map[naturalKey]domain.Incident
	incidentIDs map[string]naturalKey
	updates     map[string][]domain.IncidentUpdate
	components  map[naturalKey]domain.ServiceComponent
	metrics     map[metricKey]domain.DailyMetric
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		now:         time.Now,
		dataSources: make(map[string]domain.DataSource),
		incidents:   make(map[naturalKey]domain.Incident),
		incidentIDs: make(map[string]naturalKey),
		updates:     make(map[string][]domain.IncidentUpdate),
		components:  make(map[naturalKey]domain.ServiceComponent),
		metrics:     make(map[metricKey]domain.DailyMetric),
	}
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error {
	return nil
}

// ListActiveDataSources returns data sources with IsActive set, ordered by name.
func (s *Store) ListActiveDataSources(_ context.Context) ([]domain.DataSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.DataSource, 0, len(s.dataSources))
	for _, ds := range s.dataSources {
		if ds.IsActive {
			result = append(result, copyDataSource(ds))
		}
	}
	sortDataSources(result)
	return result, nil
}

// ListDataSources returns all data sources ordered by name.
func (s *Store) ListDataSources(_ context.Context) ([]domain.DataSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.DataSource, 0, len(s.dataSources))
	for _, ds := range s.dataSources {
		result = append(result, copyDataSource(ds))
	}
	sortDataSources(result)
	return result, nil
}

// GetDataSource returns a data source by id.
func (s *Store) GetDataSource(_ context.Context, id string) (*domain.DataSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ds, ok := s.dataSources[id]
	if !ok {
		return nil, store.ErrDataSourceNotFound
	}
	ds = copyDataSource(ds)
	return &ds, nil
}

// CreateDataSource inserts ds and fills its ID and timestamps.
func (s *Store) CreateDataSource(_ context.Context, ds *domain.DataSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findByNameLocked(ds.Name) != "" {
		return store.ErrDataSourceExists
	}

	now := s.now()
	ds.ID = uuid.NewString()
	ds.CreatedAt = now
	ds.UpdatedAt = now
	ds.RetryCount = 0
	s.dataSources[ds.ID] = copyDataSource(*ds)
	return nil
}

// UpdateDataSource overwrites the configuration fields of an existing data source.
func (s *Store) UpdateDataSource(_ context.Context, ds *domain.DataSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.dataSources[ds.ID]
	if !ok {
		return store.ErrDataSourceNotFound
	}
	if other := s.findByNameLocked(ds.Name); other != "" && other != ds.ID {
		return store.ErrDataSourceExists
	}

	existing.Name = ds.Name
	existing.Type = ds.Type
	existing.BaseURL = ds.BaseURL
	existing.APIKey = ds.APIKey
	existing.IsActive = ds.IsActive
	existing.UpdatedAt = s.now()
	s.dataSources[ds.ID] = existing

	*ds = copyDataSource(existing)
	return nil
}

// EnsureDataSource inserts ds or updates the configuration of the same-named source.
func (s *Store) EnsureDataSource(ctx context.Context, ds *domain.DataSource) (bool, error) {
	s.mu.RLock()
	id := s.findByNameLocked(ds.Name)
	s.mu.RUnlock()

	if id == "" {
		if err := s.CreateDataSource(ctx, ds); err != nil {
			return false, err
		}
		return true, nil
	}

	ds.ID = id
	return false, s.UpdateDataSource(ctx, ds)
}

// RecordSyncOutcome stamps the result of one attempt.
func (s *Store) RecordSyncOutcome(_ context.Context, dataSourceID string, at time.Time, failure *store.SyncFailure) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds, ok := s.dataSources[dataSourceID]
	if !ok {
		return 0, store.ErrDataSourceNotFound
	}

	ds.LastAttemptAt = &at
	if failure == nil {
		ds.LastSyncAt = &at
		ds.LastError = nil
		ds.LastErrorKind = nil
		ds.RetryCount = 0
	} else {
		msg, kind := failure.Message, failure.Kind
		ds.LastError = &msg
		ds.LastErrorKind = &kind
		ds.RetryCount++
	}
	ds.UpdatedAt = s.now()
	s.dataSources[dataSourceID] = ds

	return ds.RetryCount, nil
}

// UpsertIncident inserts or merges an incident on (DataSourceID, ExternalID).
func (s *Store) UpsertIncident(_ context.Context, incident *domain.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.dataSources[incident.DataSourceID]; !ok {
		return fmt.Errorf("upsert incident: %w", store.ErrDataSourceNotFound)
	}

	key := naturalKey{dataSourceID: incident.DataSourceID, externalID: incident.ExternalID}
	now := s.now()

	if existing, ok := s.incidents[key]; ok {
		incident.ID = existing.ID
		incident.CreatedAt = existing.CreatedAt
	} else {
		incident.ID = uuid.NewString()
		incident.CreatedAt = now
		s.incidentIDs[incident.ID] = key
	}
	incident.SyncedAt = now

	stored := copyIncident(*incident)
	stored.Updates = nil
	s.incidents[key] = stored
	return nil
}

// AppendIncidentUpdates stores updates whose ExternalID is new for the incident.
func (s *Store) AppendIncidentUpdates(_ context.Context, incidentID string, updates []domain.IncidentUpdate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.incidentIDs[incidentID]; !ok {
		return 0, store.ErrIncidentNotFound
	}

	existing := s.updates[incidentID]
	seen := make(map[string]struct{}, len(existing))
	for _, u := range existing {
		seen[u.ExternalID] = struct{}{}
	}

	inserted := 0
	for _, u := range updates {
		if _, ok := seen[u.ExternalID]; ok {
			continue
		}
		seen[u.ExternalID] = struct{}{}
		u.ID = uuid.NewString()
		u.IncidentID = incidentID
		existing = append(existing, u)
		inserted++
	}
	s.updates[incidentID] = existing
	return inserted, nil
}

// UpsertComponent inserts or merges a component on (DataSourceID, ExternalID).
func (s *Store) UpsertComponent(_ context.Context, component *domain.ServiceComponent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.dataSources[component.DataSourceID]; !ok {
		return fmt.Errorf("upsert component: %w", store.ErrDataSourceNotFound)
	}

	key := naturalKey{dataSourceID: component.DataSourceID, externalID: component.ExternalID}
	now := s.now()

	if existing, ok := s.components[key]; ok {
		component.ID = existing.ID
		component.CreatedAt = existing.CreatedAt
	} else {
		component.ID = uuid.NewString()
		component.CreatedAt = now
	}
	if component.UpdatedAt.IsZero() {
		component.UpdatedAt = now
	}
	component.SyncedAt = now

	s.components[key] = *component
	return nil
}

// UpsertMetric inserts or overwrites the metric for (Date, DataSourceID).
func (s *Store) UpsertMetric(_ context.Context, metric *domain.DailyMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.dataSources[metric.DataSourceID]; !ok {
		return fmt.Errorf("upsert metric: %w", store.ErrDataSourceNotFound)
	}

	metric.Date = domain.MetricDate(metric.Date)
	metric.SyncedAt = s.now()
	s.metrics[metricKey{date: metric.Date, dataSourceID: metric.DataSourceID}] = *metric
	return nil
}

// ListIncidents returns incidents of active sources, newest first.
func (s *Store) ListIncidents(_ context.Context, filter store.IncidentFilter) ([]domain.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Incident, 0)
	for _, inc := range s.incidents {
		ds, ok := s.dataSources[inc.DataSourceID]
		if !ok || !ds.IsActive {
			continue
		}
		if filter.ActiveOnly && inc.Status.IsResolved() {
			continue
		}
		if filter.Status != nil && inc.Status != *filter.Status {
			continue
		}
		if filter.Severity != nil && inc.Severity != *filter.Severity {
			continue
		}
		if filter.DataSourceID != "" && inc.DataSourceID != filter.DataSourceID {
			continue
		}
		result = append(result, copyIncident(inc))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].StartedAt.After(result[j].StartedAt)
		}
		return result[i].ID < result[j].ID
	})

	return paginate(result, filter.Offset, store.NormalizeLimit(filter.Limit)), nil
}

// GetIncident returns an incident by id regardless of its source's state.
func (s *Store) GetIncident(_ context.Context, id string) (*domain.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.incidentIDs[id]
	if !ok {
		return nil, store.ErrIncidentNotFound
	}
	inc := copyIncident(s.incidents[key])
	return &inc, nil
}

// ListIncidentUpdates returns an incident's timeline, newest first.
func (s *Store) ListIncidentUpdates(_ context.Context, incidentID string) ([]domain.IncidentUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.incidentIDs[incidentID]; !ok {
		return nil, store.ErrIncidentNotFound
	}

	result := slices.Clone(s.updates[incidentID])
	if result == nil {
		result = []domain.IncidentUpdate{}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// ListComponents returns components ordered by source, group and position.
func (s *Store) ListComponents(_ context.Context, filter store.ComponentFilter) ([]domain.ServiceComponent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ServiceComponent, 0, len(s.components))
	for _, c := range s.components {
		if filter.DataSourceID != "" && c.DataSourceID != filter.DataSourceID {
			continue
		}
		result = append(result, c)
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.DataSourceID != b.DataSourceID {
			return a.DataSourceID < b.DataSourceID
		}
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		return a.Name < b.Name
	})
	return result, nil
}

// ListMetrics returns daily metrics, newest day first.
func (s *Store) ListMetrics(_ context.Context, filter store.MetricFilter) ([]domain.DailyMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.DailyMetric, 0)
	for _, m := range s.metrics {
		if filter.DataSourceID != "" && m.DataSourceID != filter.DataSourceID {
			continue
		}
		if !filter.From.IsZero() && m.Date.Before(domain.MetricDate(filter.From)) {
			continue
		}
		if !filter.To.IsZero() && m.Date.After(domain.MetricDate(filter.To)) {
			continue
		}
		result = append(result, m)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.After(result[j].Date)
		}
		return result[i].DataSourceID < result[j].DataSourceID
	})
	return result, nil
}

func (s *Store) findByNameLocked(name string) string {
	for id, ds := range s.dataSources {
		if ds.Name == name {
			return id
		}
	}
	return ""
}

func sortDataSources(list []domain.DataSource) {
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return items[:0]
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}

func copyDataSource(ds domain.DataSource) domain.DataSource {
	if ds.LastSyncAt != nil {
		t := *ds.LastSyncAt
		ds.LastSyncAt = &t
	}
	if ds.LastAttemptAt != nil {
		t := *ds.LastAttemptAt
		ds.LastAttemptAt = &t
	}
	if ds.LastError != nil {
		s := *ds.LastError
		ds.LastError = &s
	}
	if ds.LastErrorKind != nil {
		s := *ds.LastErrorKind
		ds.LastErrorKind = &s
	}
	return ds
}

func copyIncident(inc domain.Incident) domain.Incident {
	inc.AffectedServices = slices.Clone(inc.AffectedServices)
	inc.Tags = slices.Clone(inc.Tags)
	inc.Metadata = maps.Clone(inc.Metadata)
	if inc.ResolvedAt != nil {
		t := *inc.ResolvedAt
		inc.ResolvedAt = &t
	}
	return inc
}
