// Package domain contains the types shared by the sync and monitor modules.
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents the kind of domain change carried by a sync event.
type EventType string

// Event types.
const (
	EventTypeEnrollmentCreated EventType = "enrollment.created"
	EventTypeEnrollmentUpdated EventType = "enrollment.updated"
	EventTypeEnrollmentDeleted EventType = "enrollment.deleted"
	EventTypeProfileUpdated    EventType = "profile.updated"
	EventTypeProgressUpdated   EventType = "progress.updated"
	EventTypeUserCreated       EventType = "user.created"
	EventTypeUserUpdated       EventType = "user.updated"
)

// EventTypes lists every supported event type.
var EventTypes = []EventType{
	EventTypeEnrollmentCreated,
	EventTypeEnrollmentUpdated,
	EventTypeEnrollmentDeleted,
	EventTypeProfileUpdated,
	EventTypeProgressUpdated,
	EventTypeUserCreated,
	EventTypeUserUpdated,
}

// IsValid checks if the event type is supported.
func (t EventType) IsValid() bool {
	return t.ResourceType() != ""
}

// ResourceType returns the resource type the event describes.
func (t EventType) ResourceType() ResourceType {
	switch t {
	case EventTypeEnrollmentCreated, EventTypeEnrollmentUpdated, EventTypeEnrollmentDeleted:
		return ResourceTypeEnrollment
	case EventTypeProfileUpdated:
		return ResourceTypeProfile
	case EventTypeProgressUpdated:
		return ResourceTypeProgress
	case EventTypeUserCreated, EventTypeUserUpdated:
		return ResourceTypeUser
	default:
		return ""
	}
}

// IsDeletion reports whether the event describes a removed resource.
func (t EventType) IsDeletion() bool {
	return t == EventTypeEnrollmentDeleted
}

// ResourceType identifies the kind of domain entity an event describes.
type ResourceType string

// Resource types.
const (
	ResourceTypeEnrollment ResourceType = "enrollment"
	ResourceTypeProfile    ResourceType = "profile"
	ResourceTypeProgress   ResourceType = "progress"
	ResourceTypeUser       ResourceType = "user"
)

// EventStatus represents the delivery status of a sync event.
type EventStatus string

// Event statuses.
const (
	EventStatusPending    EventStatus = "pending"
	EventStatusProcessing EventStatus = "processing"
	EventStatusCompleted  EventStatus = "completed"
	EventStatusFailed     EventStatus = "failed"
)

// SyncEvent is a domain change to be propagated to webhook subscribers.
type SyncEvent struct {
	ID           string          `json:"id"`
	Type         EventType       `json:"type"`
	ResourceID   string          `json:"resourceId"`
	ResourceType ResourceType    `json:"resourceType"`
	Data         json.RawMessage `json:"data"`
	Timestamp    time.Time       `json:"timestamp"`
	RetryCount   int             `json:"retryCount"`
	Status       EventStatus     `json:"status"`
}

// NewSyncEvent builds a pending event for a resource snapshot emitted at ts.
func NewSyncEvent(eventType EventType, resourceID string, data json.RawMessage, ts time.Time) *SyncEvent {
	ts = ts.UTC()
	return &SyncEvent{
		ID:           SyncEventID(eventType, resourceID, ts),
		Type:         eventType,
		ResourceID:   resourceID,
		ResourceType: eventType.ResourceType(),
		Data:         data,
		Timestamp:    ts,
		Status:       EventStatusPending,
	}
}

// SyncEventID derives an event id from type, resource id and emission time.
func SyncEventID(eventType EventType, resourceID string, ts time.Time) string {
	return fmt.Sprintf("%s-%s-%d", eventType, resourceID, ts.UnixNano())
}

// SyncFailure is the audit record of an event that could not be delivered.
type SyncFailure struct {
	ID            string       `json:"id"`
	EventID       string       `json:"event_id"`
	EventType     EventType    `json:"event_type"`
	ResourceID    string       `json:"resource_id"`
	ResourceType  ResourceType `json:"resource_type"`
	Error         string       `json:"error"`
	Attempts      int          `json:"attempts"`
	FirstFailedAt time.Time    `json:"first_failed_at"`
	LastFailedAt  time.Time    `json:"last_failed_at"`
	Resolved      bool         `json:"resolved"`
	ResolvedAt    *time.Time   `json:"resolved_at"`
	CreatedAt     time.Time    `json:"created_at"`
}

// SyncOutcome is the result recorded for a single dispatch.
type SyncOutcome string

// Sync outcomes.
const (
	SyncOutcomeSuccess  SyncOutcome = "success"
	SyncOutcomeFailure  SyncOutcome = "failure"
	SyncOutcomeRecovery SyncOutcome = "recovery"
)

// SyncLog is one entry of the delivery trail.
type SyncLog struct {
	ID           string       `json:"id"`
	EventID      string       `json:"event_id"`
	EventType    EventType    `json:"event_type"`
	ResourceID   string       `json:"resource_id"`
	ResourceType ResourceType `json:"resource_type"`
	Outcome      SyncOutcome  `json:"outcome"`
	Attempt      int          `json:"attempt"`
	Error        string       `json:"error,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}
