package domain

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventType_ResourceType(t *testing.T) {
	tests := []struct {
		eventType EventType
		expected  ResourceType
	}{
		{EventTypeEnrollmentCreated, ResourceTypeEnrollment},
		{EventTypeEnrollmentUpdated, ResourceTypeEnrollment},
		{EventTypeEnrollmentDeleted, ResourceTypeEnrollment},
		{EventTypeProfileUpdated, ResourceTypeProfile},
		{EventTypeProgressUpdated, ResourceTypeProgress},
		{EventTypeUserCreated, ResourceTypeUser},
		{EventTypeUserUpdated, ResourceTypeUser},
		{EventType("course.created"), ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.eventType.ResourceType())
			assert.Equal(t, tt.expected != "", tt.eventType.IsValid())
		})
	}
}

func TestEventTypes_AllValid(t *testing.T) {
	for _, et := range EventTypes {
		assert.True(t, et.IsValid(), et)
	}
}

func TestNewSyncEvent(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 42, time.FixedZone("X", 3600))
	event := NewSyncEvent(EventTypeEnrollmentCreated, "enr-1", json.RawMessage(`{"id":"enr-1"}`), ts)

	assert.Equal(t, "enrollment.created-enr-1-"+strconv.FormatInt(ts.UnixNano(), 10), event.ID)
	assert.Equal(t, ResourceTypeEnrollment, event.ResourceType)
	assert.Equal(t, EventStatusPending, event.Status)
	assert.Equal(t, 0, event.RetryCount)
	assert.Equal(t, time.UTC, event.Timestamp.Location())
}

func TestSyncEvent_WireFormat(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	event := NewSyncEvent(EventTypeProgressUpdated, "p-7", json.RawMessage(`{"percent":40}`), ts)

	body, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))

	assert.Equal(t, event.ID, decoded["id"])
	assert.Equal(t, "progress.updated", decoded["type"])
	assert.Equal(t, "p-7", decoded["resourceId"])
	assert.Equal(t, "progress", decoded["resourceType"])
	assert.Equal(t, map[string]any{"percent": float64(40)}, decoded["data"])
	assert.Equal(t, "2026-03-01T10:00:00Z", decoded["timestamp"])
	assert.Equal(t, float64(0), decoded["retryCount"])
	assert.Equal(t, "pending", decoded["status"])
}
