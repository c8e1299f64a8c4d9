package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bissquit/incident-radar/internal/domain"
	"github.com/bissquit/incident-radar/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSource(t *testing.T, s *Store, name string, active bool) domain.DataSource {
	t.Helper()
	ds := domain.DataSource{Name: name, Type: domain.ConnectorStatuspage, BaseURL: "https://" + name, IsActive: active}
	require.NoError(t, s.CreateDataSource(context.Background(), &ds))
	return ds
}

func TestUpsertIncident_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New()
	ds := newSource(t, s, "vendor", true)

	first := domain.Incident{ExternalID: "abc", DataSourceID: ds.ID, Title: "DB outage", Status: domain.IncidentStatusInvestigating, Severity: domain.SeverityHigh}
	require.NoError(t, s.UpsertIncident(ctx, &first))

	second := domain.Incident{ExternalID: "abc", DataSourceID: ds.ID, Title: "DB outage (resolved)", Status: domain.IncidentStatusResolved, Severity: domain.SeverityHigh}
	require.NoError(t, s.UpsertIncident(ctx, &second))

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	list, err := s.ListIncidents(ctx, store.IncidentFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "DB outage (resolved)", list[0].Title)
	assert.Equal(t, domain.IncidentStatusResolved, list[0].Status)
}

func TestUpsertIncident_ConcurrentSameKey(t *testing.T) {
	ctx := context.Background()
	s := New()
	ds := newSource(t, s, "vendor", true)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inc := domain.Incident{ExternalID: "same", DataSourceID: ds.ID, Status: domain.IncidentStatusInvestigating, Severity: domain.SeverityLow}
			assert.NoError(t, s.UpsertIncident(ctx, &inc))
		}()
	}
	wg.Wait()

	list, err := s.ListIncidents(ctx, store.IncidentFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestUpsertIncident_UnknownSource(t *testing.T) {
	s := New()
	inc := domain.Incident{ExternalID: "x", DataSourceID: "missing"}
	err := s.UpsertIncident(context.Background(), &inc)
	assert.ErrorIs(t, err, store.ErrDataSourceNotFound)
}

func TestListIncidents_Filters(t *testing.T) {
	ctx := context.Background()
	s := New()
	active := newSource(t, s, "active", true)
	inactive := newSource(t, s, "inactive", false)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, inc := range []domain.Incident{
		{ExternalID: "1", DataSourceID: active.ID, Status: domain.IncidentStatusInvestigating, Severity: domain.SeverityCritical},
		{ExternalID: "2", DataSourceID: active.ID, Status: domain.IncidentStatusResolved, Severity: domain.SeverityLow},
		{ExternalID: "3", DataSourceID: inactive.ID, Status: domain.IncidentStatusInvestigating, Severity: domain.SeverityCritical},
	} {
		inc.StartedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.UpsertIncident(ctx, &inc))
	}

	all, err := s.ListIncidents(ctx, store.IncidentFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "2", all[0].ExternalID, "newest first")

	open, err := s.ListIncidents(ctx, store.IncidentFilter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "1", open[0].ExternalID)

	critical := domain.SeverityCritical
	bySeverity, err := s.ListIncidents(ctx, store.IncidentFilter{Severity: &critical})
	require.NoError(t, err)
	require.Len(t, bySeverity, 1)
	assert.Equal(t, active.ID, bySeverity[0].DataSourceID)

	resolved := domain.IncidentStatusResolved
	byStatus, err := s.ListIncidents(ctx, store.IncidentFilter{Status: &resolved})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)

	paged, err := s.ListIncidents(ctx, store.IncidentFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "1", paged[0].ExternalID)
}

func TestAppendIncidentUpdates_SkipsSeen(t *testing.T) {
	ctx := context.Background()
	s := New()
	ds := newSource(t, s, "vendor", true)
	inc := domain.Incident{ExternalID: "abc", DataSourceID: ds.ID, Status: domain.IncidentStatusInvestigating, Severity: domain.SeverityLow}
	require.NoError(t, s.UpsertIncident(ctx, &inc))

	updates := []domain.IncidentUpdate{
		{ExternalID: "u1", Message: "first", CreatedAt: time.Unix(100, 0)},
		{ExternalID: "u2", Message: "second", CreatedAt: time.Unix(200, 0)},
	}
	n, err := s.AppendIncidentUpdates(ctx, inc.ID, updates)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.AppendIncidentUpdates(ctx, inc.ID, append(updates, domain.IncidentUpdate{ExternalID: "u3", CreatedAt: time.Unix(300, 0)}))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err := s.ListIncidentUpdates(ctx, inc.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "u3", list[0].ExternalID)
	assert.Equal(t, inc.ID, list[0].IncidentID)

	_, err = s.AppendIncidentUpdates(ctx, "missing", updates)
	assert.ErrorIs(t, err, store.ErrIncidentNotFound)
}

func TestRecordSyncOutcome(t *testing.T) {
	ctx := context.Background()
	s := New()
	ds := newSource(t, s, "vendor", true)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	count, err := s.RecordSyncOutcome(ctx, ds.ID, at, &store.SyncFailure{Message: "boom", Kind: "network"})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = s.RecordSyncOutcome(ctx, ds.ID, at.Add(time.Minute), &store.SyncFailure{Message: "boom again", Kind: "timeout"})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	got, err := s.GetDataSource(ctx, ds.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "boom again", *got.LastError)
	assert.Equal(t, "timeout", *got.LastErrorKind)
	assert.Nil(t, got.LastSyncAt)
	assert.False(t, got.IsHealthy())

	count, err = s.RecordSyncOutcome(ctx, ds.ID, at.Add(2*time.Minute), nil)
	require.NoError(t, err)
	assert.Zero(t, count)

	got, err = s.GetDataSource(ctx, ds.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LastError)
	assert.Nil(t, got.LastErrorKind)
	require.NotNil(t, got.LastSyncAt)
	assert.Equal(t, at.Add(2*time.Minute), *got.LastSyncAt)
	assert.True(t, got.IsHealthy())

	_, err = s.RecordSyncOutcome(ctx, "missing", at, nil)
	assert.ErrorIs(t, err, store.ErrDataSourceNotFound)
}

func TestEnsureDataSource_KeepsRuntimeFields(t *testing.T) {
	ctx := context.Background()
	s := New()

	ds := domain.DataSource{Name: "vendor", Type: domain.ConnectorStatuspage, BaseURL: "https://a", IsActive: true}
	created, err := s.EnsureDataSource(ctx, &ds)
	require.NoError(t, err)
	assert.True(t, created)

	_, err = s.RecordSyncOutcome(ctx, ds.ID, time.Now(), &store.SyncFailure{Message: "x", Kind: "network"})
	require.NoError(t, err)

	again := domain.DataSource{Name: "vendor", Type: domain.ConnectorCachet, BaseURL: "https://b", IsActive: false}
	created, err = s.EnsureDataSource(ctx, &again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, ds.ID, again.ID)

	got, err := s.GetDataSource(ctx, ds.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectorCachet, got.Type)
	assert.Equal(t, "https://b", got.BaseURL)
	assert.False(t, got.IsActive)
	assert.Equal(t, 1, got.RetryCount)

	active, err := s.ListActiveDataSources(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestCreateDataSource_DuplicateName(t *testing.T) {
	s := New()
	newSource(t, s, "vendor", true)

	ds := domain.DataSource{Name: "vendor"}
	assert.ErrorIs(t, s.CreateDataSource(context.Background(), &ds), store.ErrDataSourceExists)
}

func TestUpsertComponentAndMetric(t *testing.T) {
	ctx := context.Background()
	s := New()
	ds := newSource(t, s, "vendor", true)

	c := domain.ServiceComponent{ExternalID: "c1", DataSourceID: ds.ID, Name: "API", Status: domain.ComponentStatusOperational}
	require.NoError(t, s.UpsertComponent(ctx, &c))
	c2 := domain.ServiceComponent{ExternalID: "c1", DataSourceID: ds.ID, Name: "API", Status: domain.ComponentStatusMajorOutage}
	require.NoError(t, s.UpsertComponent(ctx, &c2))
	assert.Equal(t, c.ID, c2.ID)

	components, err := s.ListComponents(ctx, store.ComponentFilter{DataSourceID: ds.ID})
	require.NoError(t, err)
	require.Len(t, components, 1)
	assert.Equal(t, domain.ComponentStatusMajorOutage, components[0].Status)

	day := time.Date(2024, 5, 1, 15, 30, 0, 0, time.UTC)
	require.NoError(t, s.UpsertMetric(ctx, &domain.DailyMetric{Date: day, DataSourceID: ds.ID, IncidentCount: 1}))
	require.NoError(t, s.UpsertMetric(ctx, &domain.DailyMetric{Date: day.Add(time.Hour), DataSourceID: ds.ID, IncidentCount: 3}))

	metrics, err := s.ListMetrics(ctx, store.MetricFilter{DataSourceID: ds.ID})
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Equal(t, 3, metrics[0].IncidentCount)
	assert.Equal(t, domain.MetricDate(day), metrics[0].Date)
}
