// Package store defines the persistence contract of the aggregation pipeline.
// Implementations live in the postgres and memory subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/bissquit/incident-radar/internal/domain"
)

// Store errors.
var (
	ErrDataSourceNotFound = errors.New("data source not found")
	ErrDataSourceExists   = errors.New("data source with this name already exists")
	ErrIncidentNotFound   = errors.New("incident not found")
)

// Default and maximum page sizes for list queries.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// SyncFailure describes a failed sync attempt. A nil *SyncFailure means success.
type SyncFailure struct {
	Message string
	Kind    string
}

// IncidentFilter narrows incident list queries. Incidents of inactive data sources are
// always excluded; ActiveOnly additionally excludes resolved incidents.
type IncidentFilter struct {
	Status       *domain.IncidentStatus
	Severity     *domain.Severity
	DataSourceID string
	ActiveOnly   bool
	Limit        int
	Offset       int
}

// ComponentFilter narrows component list queries.
type ComponentFilter struct {
	DataSourceID string
}

// MetricFilter narrows daily metric queries. Zero bounds are open.
type MetricFilter struct {
	DataSourceID string
	From         time.Time
	To           time.Time
}

// Repository is implemented by every storage backend.
//
// Upserts are atomic per composite key: concurrent writers for the same
// (DataSourceID, ExternalID) never produce two rows.
type Repository interface {
	Ping(ctx context.Context) error

	ListActiveDataSources(ctx context.Context) ([]domain.DataSource, error)
	ListDataSources(ctx context.Context) ([]domain.DataSource, error)
	GetDataSource(ctx context.Context, id string) (*domain.DataSource, error)
	CreateDataSource(ctx context.Context, ds *domain.DataSource) error
	UpdateDataSource(ctx context.Context, ds *domain.DataSource) error
	// EnsureDataSource inserts ds or, when a source with the same name exists, overwrites its
	// configuration fields. Sync bookkeeping is left untouched.
	EnsureDataSource(ctx context.Context, ds *domain.DataSource) (created bool, err error)
	// RecordSyncOutcome stamps the result of one sync attempt and returns the new retry count.
	RecordSyncOutcome(ctx context.Context, dataSourceID string, at time.Time, failure *SyncFailure) (int, error)

	UpsertIncident(ctx context.Context, incident *domain.Incident) error
	// AppendIncidentUpdates inserts updates not seen before and returns how many were new.
	AppendIncidentUpdates(ctx context.Context, incidentID string, updates []domain.IncidentUpdate) (int, error)
	UpsertComponent(ctx context.Context, component *domain.ServiceComponent) error
	UpsertMetric(ctx context.Context, metric *domain.DailyMetric) error

	ListIncidents(ctx context.Context, filter IncidentFilter) ([]domain.Incident, error)
	GetIncident(ctx context.Context, id string) (*domain.Incident, error)
	ListIncidentUpdates(ctx context.Context, incidentID string) ([]domain.IncidentUpdate, error)
	ListComponents(ctx context.Context, filter ComponentFilter) ([]domain.ServiceComponent, error)
	ListMetrics(ctx context.Context, filter MetricFilter) ([]domain.DailyMetric, error)
}

// NormalizeLimit clamps a requested page size into [1, MaxLimit].
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
