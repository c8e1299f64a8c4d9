package cachet

import (
	"github.com/bissquit/incident-radar/internal/connectors"
	"github.com/bissquit/incident-radar/internal/domain"
)

// Incident statuses arrive as integers (0-4) or, from the human readable fields, as words.
var statusMap = map[string]domain.IncidentStatus{
	"0":             domain.IncidentStatusIdentified,
	"scheduled":     domain.IncidentStatusIdentified,
	"1":             domain.IncidentStatusInvestigating,
	"investigating": domain.IncidentStatusInvestigating,
	"2":             domain.IncidentStatusIdentified,
	"identified":    domain.IncidentStatusIdentified,
	"3":             domain.IncidentStatusMonitoring,
	"watching":      domain.IncidentStatusMonitoring,
	"monitoring":    domain.IncidentStatusMonitoring,
	"4":             domain.IncidentStatusResolved,
	"fixed":         domain.IncidentStatusResolved,
	"resolved":      domain.IncidentStatusResolved,
}

// Severity follows the status of the affected component.
var severityMap = map[string]domain.Severity{
	"4":                  domain.SeverityCritical,
	"major_outage":       domain.SeverityCritical,
	"3":                  domain.SeverityHigh,
	"partial_outage":     domain.SeverityHigh,
	"2":                  domain.SeverityMedium,
	"performance_issues": domain.SeverityMedium,
	"1":                  domain.SeverityLow,
	"operational":        domain.SeverityLow,
}

var componentStatusMap = map[flexInt]domain.ComponentStatus{
	1: domain.ComponentStatusOperational,
	2: domain.ComponentStatusDegraded,
	3: domain.ComponentStatusPartialOutage,
	4: domain.ComponentStatusMajorOutage,
}

// MapStatus maps a Cachet incident status.
func (c *Connector) MapStatus(raw string) domain.IncidentStatus {
	if s, ok := statusMap[connectors.Normalize(raw)]; ok {
		return s
	}
	return connectors.FallbackStatus
}

// MapSeverity maps a Cachet component status.
func (c *Connector) MapSeverity(raw string) domain.Severity {
	if s, ok := severityMap[connectors.Normalize(raw)]; ok {
		return s
	}
	return connectors.FallbackSeverity
}

func mapComponentStatus(raw flexInt) domain.ComponentStatus {
	if s, ok := componentStatusMap[raw]; ok {
		return s
	}
	return domain.ComponentStatusDegraded
}
