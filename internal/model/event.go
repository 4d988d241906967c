// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventSnapshotPublished   EventType = "SNAPSHOT_PUBLISHED"
	EventRefreshFailed       EventType = "REFRESH_FAILED"
	EventSessionConnected    EventType = "SESSION_CONNECTED"
	EventSessionDisconnected EventType = "SESSION_DISCONNECTED"
	EventToolDataWritten     EventType = "TOOL_DATA_WRITTEN"
)

// AdapterEvent represents an event of the adapter
type AdapterEvent struct {
	ID        uuid.UUID  `json:"id"`
	EventType EventType  `json:"event_type"`
	MachineID string     `json:"machine_id"`
	Data      JSONObject `json:"data"`
	Timestamp time.Time  `json:"timestamp"`
	Source    string     `json:"source"`
	Severity  string     `json:"severity"` // INFO, WARNING, ERROR
}

// NewAdapterEvent creates an event stamped with a fresh id and the current time
func NewAdapterEvent(eventType EventType, machineID, severity string, data JSONObject) AdapterEvent {
	return AdapterEvent{
		ID:        uuid.New(),
		EventType: eventType,
		MachineID: machineID,
		Data:      data,
		Timestamp: time.Now(),
		Source:    "makino-adapter",
		Severity:  severity,
	}
}
