package domain

import "time"

// DailyMetric aggregates one data source's state for one UTC day.
// It is keyed on (Date, DataSourceID) and overwritten by every successful sync that day.
type DailyMetric struct {
	Date                  time.Time `json:"date"`
	DataSourceID          string    `json:"data_source_id"`
	IncidentCount         int       `json:"incident_count"`
	OpenIncidentCount     int       `json:"open_incident_count"`
	ResolvedIncidentCount int       `json:"resolved_incident_count"`
	ComponentCount        int       `json:"component_count"`
	DegradedComponents    int       `json:"degraded_components"`
	MeanTimeToResolveSecs float64   `json:"mean_time_to_resolve_seconds"`
	SyncedAt              time.Time `json:"synced_at"`
}

// MetricDate truncates t to the UTC day it belongs to.
func MetricDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
