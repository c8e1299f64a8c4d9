package statuspage

import (
	"github.com/bissquit/incident-radar/internal/connectors"
	"github.com/bissquit/incident-radar/internal/domain"
)

var statusMap = map[string]domain.IncidentStatus{
	"investigating": domain.IncidentStatusInvestigating,
	"identified":    domain.IncidentStatusIdentified,
	"monitoring":    domain.IncidentStatusMonitoring,
	"resolved":      domain.IncidentStatusResolved,
	"postmortem":    domain.IncidentStatusResolved,
	"scheduled":     domain.IncidentStatusIdentified,
	"in_progress":   domain.IncidentStatusIdentified,
	"verifying":     domain.IncidentStatusMonitoring,
	"completed":     domain.IncidentStatusResolved,
}

var severityMap = map[string]domain.Severity{
	"critical":    domain.SeverityCritical,
	"major":       domain.SeverityHigh,
	"minor":       domain.SeverityMedium,
	"none":        domain.SeverityLow,
	"maintenance": domain.SeverityLow,
}

var componentStatusMap = map[string]domain.ComponentStatus{
	"operational":          domain.ComponentStatusOperational,
	"degraded_performance": domain.ComponentStatusDegraded,
	"partial_outage":       domain.ComponentStatusPartialOutage,
	"major_outage":         domain.ComponentStatusMajorOutage,
	"under_maintenance":    domain.ComponentStatusMaintenance,
}

// MapStatus maps a Statuspage incident status.
func (c *Connector) MapStatus(raw string) domain.IncidentStatus {
	if s, ok := statusMap[connectors.Normalize(raw)]; ok {
		return s
	}
	return connectors.FallbackStatus
}

// MapSeverity maps a Statuspage impact.
func (c *Connector) MapSeverity(raw string) domain.Severity {
	if s, ok := severityMap[connectors.Normalize(raw)]; ok {
		return s
	}
	return connectors.FallbackSeverity
}

func mapComponentStatus(raw string) domain.ComponentStatus {
	if s, ok := componentStatusMap[connectors.Normalize(raw)]; ok {
		return s
	}
	return domain.ComponentStatusDegraded
}
