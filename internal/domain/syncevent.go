package domain

import "time"

// SyncEventType is the wire name of a sync lifecycle event.
type SyncEventType string

// Sync lifecycle events.
const (
	SyncEventStarted        SyncEventType = "sync_started"
	SyncEventDataSourceSync SyncEventType = "data_source_sync"
	SyncEventSystemSync     SyncEventType = "system_sync"
)

// SyncEvent is pushed to real-time subscribers. Data always contains "timestamp".
type SyncEvent struct {
	Type      SyncEventType  `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"-"`
}

// NewSyncStartedEvent builds the event emitted when a run begins.
func NewSyncStartedEvent(at time.Time, trigger string) SyncEvent {
	return SyncEvent{
		Type:      SyncEventStarted,
		Timestamp: at,
		Data: map[string]any{
			"timestamp": at.UTC().Format(time.RFC3339),
			"trigger":   trigger,
		},
	}
}

// NewDataSourceSyncEvent builds the event emitted when one data source finished.
func NewDataSourceSyncEvent(at time.Time, dataSourceID string, success bool, errKind string) SyncEvent {
	data := map[string]any{
		"dataSourceId": dataSourceID,
		"timestamp":    at.UTC().Format(time.RFC3339),
		"success":      success,
	}
	if errKind != "" {
		data["errorKind"] = errKind
	}
	return SyncEvent{Type: SyncEventDataSourceSync, Timestamp: at, Data: data}
}

// NewSystemSyncEvent builds the event emitted when a whole run finished.
func NewSystemSyncEvent(at time.Time, systemID string, succeeded, failed int) SyncEvent {
	return SyncEvent{
		Type:      SyncEventSystemSync,
		Timestamp: at,
		Data: map[string]any{
			"systemId":  systemID,
			"timestamp": at.UTC().Format(time.RFC3339),
			"succeeded": succeeded,
			"failed":    failed,
		},
	}
}
