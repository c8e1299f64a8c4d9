package gcp

import (
	"github.com/bissquit/incident-radar/internal/connectors"
	"github.com/bissquit/incident-radar/internal/domain"
)

var statusMap = map[string]domain.IncidentStatus{
	"available":           domain.IncidentStatusResolved,
	"service_information": domain.IncidentStatusMonitoring,
	"service_disruption":  domain.IncidentStatusInvestigating,
	"service_outage":      domain.IncidentStatusInvestigating,
}

var severityMap = map[string]domain.Severity{
	"service_outage": domain.SeverityCritical,
	"critical":       domain.SeverityCritical,
	"high":           domain.SeverityHigh,
	"medium":         domain.SeverityMedium,
	"low":            domain.SeverityLow,
}

var componentStatusMap = map[string]domain.ComponentStatus{
	"service_outage":      domain.ComponentStatusMajorOutage,
	"service_disruption":  domain.ComponentStatusPartialOutage,
	"service_information": domain.ComponentStatusDegraded,
}

// MapStatus maps the status of an incident's most recent update.
func (c *Connector) MapStatus(raw string) domain.IncidentStatus {
	if s, ok := statusMap[connectors.Normalize(raw)]; ok {
		return s
	}
	return connectors.FallbackStatus
}

// MapSeverity maps an incident severity, or SERVICE_OUTAGE impact.
func (c *Connector) MapSeverity(raw string) domain.Severity {
	if s, ok := severityMap[connectors.Normalize(raw)]; ok {
		return s
	}
	return connectors.FallbackSeverity
}

func mapComponentStatus(impact string) domain.ComponentStatus {
	if s, ok := componentStatusMap[connectors.Normalize(impact)]; ok {
		return s
	}
	return domain.ComponentStatusDegraded
}

// worse reports whether a is a more severe component state than b.
func worse(a, b domain.ComponentStatus) bool {
	rank := map[domain.ComponentStatus]int{
		domain.ComponentStatusOperational:   0,
		domain.ComponentStatusMaintenance:   1,
		domain.ComponentStatusDegraded:      2,
		domain.ComponentStatusPartialOutage: 3,
		domain.ComponentStatusMajorOutage:   4,
	}
	return rank[a] > rank[b]
}
