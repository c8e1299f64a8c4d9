package domain

import "time"

// ConnectorType identifies the vendor API a data source speaks.
type ConnectorType string

// Supported connector types.
const (
	ConnectorStatuspage ConnectorType = "statuspage"
	ConnectorCachet     ConnectorType = "cachet"
	ConnectorGCP        ConnectorType = "gcp"
)

// DataSource is one configured external status-page endpoint.
// Only the orchestrator mutates LastSyncAt, LastError, LastErrorKind and RetryCount.
type DataSource struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Type          ConnectorType `json:"type"`
	BaseURL       string        `json:"base_url"`
	APIKey        string        `json:"-"`
	IsActive      bool          `json:"is_active"`
	LastSyncAt    *time.Time    `json:"last_sync_at"`
	LastAttemptAt *time.Time    `json:"last_attempt_at"`
	LastError     *string       `json:"last_error"`
	LastErrorKind *string       `json:"last_error_kind"`
	RetryCount    int           `json:"retry_count"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// IsHealthy reports whether the last attempt succeeded.
func (d *DataSource) IsHealthy() bool {
	return d.LastError == nil
}
