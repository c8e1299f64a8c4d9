package gcp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bissquit/incident-radar/internal/connectors"
	"github.com/bissquit/incident-radar/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feed = `[
  {
    "id": "inc-open",
    "number": "1234",
    "begin": "2024-03-01T10:00:00+00:00",
    "modified": "2024-03-01T11:00:00+00:00",
    "external_desc": "Compute Engine errors",
    "status_impact": "SERVICE_DISRUPTION",
    "severity": "medium",
    "uri": "incidents/inc-open",
    "affected_products": [{"title": "Compute Engine", "id": "p-gce"}],
    "most_recent_update": {"status": "SERVICE_DISRUPTION", "text": "mitigation in progress"},
    "updates": [
      {"created": "2024-03-01T10:00:00+00:00", "status": "SERVICE_DISRUPTION", "text": "investigating"},
      {"created": "2024-03-01T11:00:00+00:00", "status": "SERVICE_DISRUPTION", "text": "mitigation in progress"}
    ]
  },
  {
    "id": "inc-closed",
    "begin": "2024-02-01T10:00:00+00:00",
    "modified": "2024-02-01T12:00:00+00:00",
    "end": "2024-02-01T12:00:00+00:00",
    "external_desc": "Cloud SQL outage",
    "status_impact": "SERVICE_OUTAGE",
    "severity": "high",
    "affected_products": [{"title": "Cloud SQL", "id": "p-sql"}],
    "most_recent_update": {"status": "AVAILABLE", "text": "resolved"},
    "updates": []
  }
]`

const products = `{"products":[{"title":"Compute Engine","id":"p-gce"},{"title":"Cloud SQL","id":"p-sql"},{"title":"BigQuery","id":"p-bq"}]}`

func newTestConnector(t *testing.T, incidents string) *Connector {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(incidentsPath, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(incidents))
	})
	mux.HandleFunc(productsPath, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(products))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return New(domain.DataSource{ID: "ds-gcp", BaseURL: server.URL}, connectors.Options{})
}

func TestFetchIncidents(t *testing.T) {
	c := newTestConnector(t, feed)

	incidents, err := c.FetchIncidents(context.Background())
	require.NoError(t, err)
	require.Len(t, incidents, 2)

	open := incidents[0]
	assert.Equal(t, "inc-open", open.ExternalID)
	assert.Equal(t, domain.IncidentStatusInvestigating, open.Status)
	assert.Equal(t, domain.SeverityMedium, open.Severity)
	assert.Equal(t, "mitigation in progress", open.Description)
	assert.Equal(t, []string{"Compute Engine"}, open.AffectedServices)
	assert.Nil(t, open.ResolvedAt)
	require.Len(t, open.Updates, 2)
	assert.Equal(t, "mitigation in progress", open.Updates[0].Message, "newest first")
	assert.NotEqual(t, open.Updates[0].ExternalID, open.Updates[1].ExternalID)

	closed := incidents[1]
	assert.Equal(t, domain.IncidentStatusResolved, closed.Status)
	assert.Equal(t, domain.SeverityCritical, closed.Severity)
	require.NotNil(t, closed.ResolvedAt)
	assert.Equal(t, time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC), closed.ResolvedAt.UTC())
	assert.NotNil(t, closed.Updates)
}

func TestFetchIncidents_StableUpdateIDs(t *testing.T) {
	c := newTestConnector(t, feed)

	first, err := c.FetchIncidents(context.Background())
	require.NoError(t, err)
	second, err := c.FetchIncidents(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first[0].Updates[0].ExternalID, second[0].Updates[0].ExternalID)
}

func TestFetchIncidents_NotArray(t *testing.T) {
	c := newTestConnector(t, `{"incidents": []}`)

	_, err := c.FetchIncidents(context.Background())
	require.Error(t, err)
	assert.Equal(t, connectors.KindParse, connectors.KindOf(err))
}

func TestFetchIncidents_InvalidJSON(t *testing.T) {
	c := newTestConnector(t, `[{"id": `)

	_, err := c.FetchIncidents(context.Background())
	require.Error(t, err)
	assert.Equal(t, connectors.KindParse, connectors.KindOf(err))
}

func TestFetchIncidents_BadTime(t *testing.T) {
	c := newTestConnector(t, `[{"id":"x","begin":"last tuesday"}]`)

	_, err := c.FetchIncidents(context.Background())
	require.Error(t, err)
	assert.Equal(t, connectors.KindParse, connectors.KindOf(err))
}

func TestFetchComponents(t *testing.T) {
	c := newTestConnector(t, feed)

	components, err := c.FetchComponents(context.Background())
	require.NoError(t, err)
	require.Len(t, components, 3)

	byID := map[string]domain.ServiceComponent{}
	for _, comp := range components {
		byID[comp.ExternalID] = comp
	}
	assert.Equal(t, domain.ComponentStatusPartialOutage, byID["p-gce"].Status)
	assert.Equal(t, domain.ComponentStatusOperational, byID["p-sql"].Status, "closed incidents do not count")
	assert.Equal(t, domain.ComponentStatusOperational, byID["p-bq"].Status)
	assert.Equal(t, "BigQuery", byID["p-bq"].Name)
}

func TestFetchIncidentUpdates(t *testing.T) {
	c := newTestConnector(t, feed)

	updates, err := c.FetchIncidentUpdates(context.Background(), "inc-open")
	require.NoError(t, err)
	assert.Len(t, updates, 2)

	updates, err = c.FetchIncidentUpdates(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, updates)
}

func TestMapping_IsTotal(t *testing.T) {
	c := New(domain.DataSource{BaseURL: "http://localhost"}, connectors.Options{})

	for _, raw := range []string{"", "AVAILABLE", "SERVICE_INFORMATION", "SERVICE_OUTAGE", "high", "LOW", "unknown"} {
		assert.True(t, c.MapStatus(raw).IsValid(), raw)
		assert.True(t, c.MapSeverity(raw).IsValid(), raw)
	}
	assert.Equal(t, domain.IncidentStatusResolved, c.MapStatus("AVAILABLE"))
	assert.Equal(t, domain.IncidentStatusMonitoring, c.MapStatus("SERVICE_INFORMATION"))
	assert.Equal(t, domain.SeverityLow, c.MapSeverity("LOW"))
	assert.Equal(t, connectors.FallbackSeverity, c.MapSeverity("unknown"))
}
