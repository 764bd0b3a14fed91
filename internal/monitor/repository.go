// Package monitor keeps the audit trail of sync deliveries and reports sync health.
package monitor

import (
	"context"
	"time"

	"github.com/bissquit/course-sync/internal/domain"
)

// FailureFilter narrows ListFailures.
type FailureFilter struct {
	Since          *time.Time
	Until          *time.Time
	UnresolvedOnly bool
	Limit          int
}

// OutcomeCounts holds dispatch outcome totals for a time range.
type OutcomeCounts struct {
	Successes int
	Failures  int
}

// Repository is the append-only audit trail store.
type Repository interface {
	AppendLog(ctx context.Context, log *domain.SyncLog) error
	CreateFailure(ctx context.Context, failure *domain.SyncFailure) error
	// ResolveFailures marks unresolved failures of the event resolved and returns how many changed.
	ResolveFailures(ctx context.Context, eventID string, at time.Time) (int64, error)
	GetFailureByEventID(ctx context.Context, eventID string) (*domain.SyncFailure, error)
	ListFailures(ctx context.Context, filter FailureFilter) ([]domain.SyncFailure, error)
	// FirstFailureAt returns the time of the earliest failure log of the event.
	FirstFailureAt(ctx context.Context, eventID string) (time.Time, bool, error)
	CountOutcomes(ctx context.Context, since time.Time) (OutcomeCounts, error)
}
