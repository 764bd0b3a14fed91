// Package eventsync propagates domain changes to webhook subscribers with bounded retries.
package eventsync

import (
	"context"
	"encoding/json"

	"github.com/bissquit/course-sync/internal/domain"
)

// ResourceFinder loads the current snapshot of a domain resource.
// Implementations return ErrResourceNotFound when the resource does not exist.
type ResourceFinder interface {
	FindByID(ctx context.Context, resourceType domain.ResourceType, id string) (json.RawMessage, error)
}

// Observer is notified about dispatch outcomes. It must not block dispatch
// for long; implementations record outcomes and return.
type Observer interface {
	// RecordAttempt is called after every dispatch; err is nil on success.
	RecordAttempt(ctx context.Context, event *domain.SyncEvent, err error)
	// AlertOnCriticalFailure is called once an event is evicted.
	AlertOnCriticalFailure(ctx context.Context, event *domain.SyncEvent, err error)
	// LogRecovery is called when an event that failed before is delivered.
	LogRecovery(ctx context.Context, event *domain.SyncEvent) error
}

// FailureLookup returns the audit record of an evicted event.
type FailureLookup interface {
	GetFailure(ctx context.Context, eventID string) (*domain.SyncFailure, error)
}

type nopObserver struct{}

func (nopObserver) RecordAttempt(context.Context, *domain.SyncEvent, error)          {}
func (nopObserver) AlertOnCriticalFailure(context.Context, *domain.SyncEvent, error) {}
func (nopObserver) LogRecovery(context.Context, *domain.SyncEvent) error             { return nil }
