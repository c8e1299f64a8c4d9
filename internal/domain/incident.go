// Package domain holds the canonical records every connector normalizes into.
package domain

import (
	"slices"
	"time"
)

// IncidentStatus represents the canonical lifecycle state of an incident.
type IncidentStatus string

// Incident statuses.
const (
	IncidentStatusInvestigating IncidentStatus = "investigating"
	IncidentStatusIdentified    IncidentStatus = "identified"
	IncidentStatusMonitoring    IncidentStatus = "monitoring"
	IncidentStatusResolved      IncidentStatus = "resolved"
)

// IsValid checks if the status belongs to the canonical vocabulary.
func (s IncidentStatus) IsValid() bool {
	switch s {
	case IncidentStatusInvestigating, IncidentStatusIdentified,
		IncidentStatusMonitoring, IncidentStatusResolved:
		return true
	}
	return false
}

// IsResolved returns true for the terminal status.
func (s IncidentStatus) IsResolved() bool {
	return s == IncidentStatusResolved
}

// Severity represents the canonical severity of an incident.
type Severity string

// Severity levels.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// IsValid checks if the severity belongs to the canonical vocabulary.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Incident is one vendor incident, identified by (ExternalID, DataSourceID).
type Incident struct {
	ID               string           `json:"id"`
	ExternalID       string           `json:"external_id"`
	DataSourceID     string           `json:"data_source_id"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	Status           IncidentStatus   `json:"status"`
	Severity         Severity         `json:"severity"`
	Impact           string           `json:"impact"`
	StartedAt        time.Time        `json:"started_at"`
	ResolvedAt       *time.Time       `json:"resolved_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	AffectedServices []string         `json:"affected_services"`
	Tags             []string         `json:"tags"`
	Metadata         map[string]any   `json:"metadata"`
	CreatedAt        time.Time        `json:"created_at"`
	SyncedAt         time.Time        `json:"synced_at"`
	Updates          []IncidentUpdate `json:"-"`
}

// Normalize makes the incident consistent before it is persisted:
// resolved incidents always carry ResolvedAt, open ones never do,
// tags become a sorted set and nil collections become empty.
func (i *Incident) Normalize(now time.Time) {
	if i.Status.IsResolved() {
		if i.ResolvedAt == nil {
			resolvedAt := i.UpdatedAt
			if resolvedAt.IsZero() {
				resolvedAt = now
			}
			i.ResolvedAt = &resolvedAt
		}
	} else {
		i.ResolvedAt = nil
	}

	if i.StartedAt.IsZero() {
		i.StartedAt = now
	}
	if i.UpdatedAt.IsZero() {
		i.UpdatedAt = i.StartedAt
	}

	if i.AffectedServices == nil {
		i.AffectedServices = make([]string, 0)
	}

	tags := make([]string, 0, len(i.Tags))
	for _, tag := range i.Tags {
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	slices.Sort(tags)
	i.Tags = slices.Compact(tags)

	if i.Metadata == nil {
		i.Metadata = make(map[string]any)
	}
}

// IncidentUpdate is one entry of an incident's append-only timeline.
type IncidentUpdate struct {
	ID         string         `json:"id"`
	IncidentID string         `json:"incident_id"`
	ExternalID string         `json:"external_id"`
	Status     IncidentStatus `json:"status"`
	Message    string         `json:"message"`
	CreatedAt  time.Time      `json:"created_at"`
}
