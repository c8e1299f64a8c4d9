// Package connectors defines the contract every vendor adapter implements
// and the shared plumbing (HTTP client, error kinds, string folding) they build on.
package connectors

import (
	"context"

	"github.com/bissquit/incident-radar/internal/domain"
)

// Connector normalizes one vendor's status API into canonical records.
// Implementations are bound to a single data source and never swallow errors:
// transport, timeout and payload failures are returned to the caller.
type Connector interface {
	// FetchIncidents returns the incidents the vendor currently reports.
	// Vendors that embed the update timeline fill Incident.Updates (non-nil).
	FetchIncidents(ctx context.Context) ([]domain.Incident, error)

	// FetchComponents returns the vendor's components.
	FetchComponents(ctx context.Context) ([]domain.ServiceComponent, error)

	// FetchIncidentUpdates returns the timeline of one incident by its vendor id.
	FetchIncidentUpdates(ctx context.Context, externalIncidentID string) ([]domain.IncidentUpdate, error)

	// MapStatus maps any raw vendor status into the canonical vocabulary. Never fails.
	MapStatus(raw string) domain.IncidentStatus

	// MapSeverity maps any raw vendor impact into the canonical vocabulary. Never fails.
	MapSeverity(raw string) domain.Severity
}

// Options carries process-wide settings every connector's HTTP client receives.
type Options struct {
	UserAgent         string
	RequestsPerSecond float64
}

// Fallbacks used by every MapStatus/MapSeverity for values they do not recognize.
const (
	FallbackStatus   = domain.IncidentStatusInvestigating
	FallbackSeverity = domain.SeverityMedium
)

// MetadataRawStatus is the metadata key holding the vendor's untranslated status.
const MetadataRawStatus = "raw_status"
