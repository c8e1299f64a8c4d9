package domain

import "time"

// ComponentStatus represents the operational status of a vendor component.
type ComponentStatus string

// Component statuses.
const (
	ComponentStatusOperational   ComponentStatus = "operational"
	ComponentStatusDegraded      ComponentStatus = "degraded"
	ComponentStatusPartialOutage ComponentStatus = "partial_outage"
	ComponentStatusMajorOutage   ComponentStatus = "major_outage"
	ComponentStatusMaintenance   ComponentStatus = "maintenance"
)

// IsValid checks if the component status is valid.
func (s ComponentStatus) IsValid() bool {
	switch s {
	case ComponentStatusOperational, ComponentStatusDegraded,
		ComponentStatusPartialOutage, ComponentStatusMajorOutage,
		ComponentStatusMaintenance:
		return true
	}
	return false
}

// IsDegraded returns true when the component is not fully operational.
// Planned maintenance does not count as degradation.
func (s ComponentStatus) IsDegraded() bool {
	return s == ComponentStatusDegraded ||
		s == ComponentStatusPartialOutage ||
		s == ComponentStatusMajorOutage
}

// ServiceComponent is one vendor component, identified by (ExternalID, DataSourceID).
type ServiceComponent struct {
	ID           string          `json:"id"`
	ExternalID   string          `json:"external_id"`
	DataSourceID string          `json:"data_source_id"`
	Name         string          `json:"name"`
	Status       ComponentStatus `json:"status"`
	Group        string          `json:"group"`
	Position     int             `json:"position"`
	UpdatedAt    time.Time       `json:"updated_at"`
	CreatedAt    time.Time       `json:"created_at"`
	SyncedAt     time.Time       `json:"synced_at"`
}
