// Package postgres provides PostgreSQL implementation of the sync audit trail.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bissquit/course-sync/internal/domain"
	"github.com/bissquit/course-sync/internal/monitor"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements monitor.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// AppendLog inserts a delivery trail entry.
func (r *Repository) AppendLog(ctx context.Context, log *domain.SyncLog) error {
	query := `
		INSERT INTO sync_logs (id, event_id, event_type, resource_id, resource_type, outcome, attempt, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
	`
	_, err := r.db.Exec(ctx, query,
		log.ID,
		log.EventID,
		log.EventType,
		log.ResourceID,
		log.ResourceType,
		log.Outcome,
		log.Attempt,
		log.Error,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sync log: %w", err)
	}
	return nil
}

// CreateFailure inserts a failure record.
func (r *Repository) CreateFailure(ctx context.Context, failure *domain.SyncFailure) error {
	query := `
		INSERT INTO sync_failures (id, event_id, event_type, resource_id, resource_type, error, attempts,
			first_failed_at, last_failed_at, resolved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Exec(ctx, query,
		failure.ID,
		failure.EventID,
		failure.EventType,
		failure.ResourceID,
		failure.ResourceType,
		failure.Error,
		failure.Attempts,
		failure.FirstFailedAt,
		failure.LastFailedAt,
		failure.Resolved,
		failure.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sync failure: %w", err)
	}
	return nil
}

// ResolveFailures marks every unresolved failure of the event resolved.
func (r *Repository) ResolveFailures(ctx context.Context, eventID string, at time.Time) (int64, error) {
	query := `
		UPDATE sync_failures
		SET resolved = TRUE, resolved_at = $2
		WHERE event_id = $1 AND resolved = FALSE
	`
	tag, err := r.db.Exec(ctx, query, eventID, at)
	if err != nil {
		return 0, fmt.Errorf("resolve sync failures: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetFailureByEventID returns the latest failure record of the event.
func (r *Repository) GetFailureByEventID(ctx context.Context, eventID string) (*domain.SyncFailure, error) {
	query := `
		SELECT id, event_id, event_type, resource_id, resource_type, error, attempts,
			first_failed_at, last_failed_at, resolved, resolved_at, created_at
		FROM sync_failures
		WHERE event_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	failure, err := scanFailure(r.db.QueryRow(ctx, query, eventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, monitor.ErrFailureNotFound
		}
		return nil, fmt.Errorf("get sync failure: %w", err)
	}
	return failure, nil
}

// ListFailures returns failure records ordered by last failure, newest first.
func (r *Repository) ListFailures(ctx context.Context, filter monitor.FailureFilter) ([]domain.SyncFailure, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.Since != nil {
		args = append(args, *filter.Since)
		conditions = append(conditions, fmt.Sprintf("last_failed_at >= $%d", len(args)))
	}
	if filter.Until != nil {
		args = append(args, *filter.Until)
		conditions = append(conditions, fmt.Sprintf("last_failed_at <= $%d", len(args)))
	}
	if filter.UnresolvedOnly {
		conditions = append(conditions, "resolved = FALSE")
	}

	query := `
		SELECT id, event_id, event_type, resource_id, resource_type, error, attempts,
			first_failed_at, last_failed_at, resolved, resolved_at, created_at
		FROM sync_failures
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY last_failed_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sync failures: %w", err)
	}
	defer rows.Close()

	failures := make([]domain.SyncFailure, 0)
	for rows.Next() {
		failure, err := scanFailure(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sync failure: %w", err)
		}
		failures = append(failures, *failure)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync failures: %w", err)
	}
	return failures, nil
}

// FirstFailureAt returns the earliest failure log time of the event.
func (r *Repository) FirstFailureAt(ctx context.Context, eventID string) (time.Time, bool, error) {
	query := `
		SELECT MIN(created_at)
		FROM sync_logs
		WHERE event_id = $1 AND outcome = $2
	`
	var first *time.Time
	if err := r.db.QueryRow(ctx, query, eventID, domain.SyncOutcomeFailure).Scan(&first); err != nil {
		return time.Time{}, false, fmt.Errorf("get first failure: %w", err)
	}
	if first == nil {
		return time.Time{}, false, nil
	}
	return *first, true, nil
}

// CountOutcomes counts success and failure log entries created since the given time.
func (r *Repository) CountOutcomes(ctx context.Context, since time.Time) (monitor.OutcomeCounts, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE outcome = 'success'),
			COUNT(*) FILTER (WHERE outcome = 'failure')
		FROM sync_logs
		WHERE created_at >= $1
	`
	var counts monitor.OutcomeCounts
	if err := r.db.QueryRow(ctx, query, since).Scan(&counts.Successes, &counts.Failures); err != nil {
		return monitor.OutcomeCounts{}, fmt.Errorf("count sync outcomes: %w", err)
	}
	return counts, nil
}

func scanFailure(row pgx.Row) (*domain.SyncFailure, error) {
	var f domain.SyncFailure
	err := row.Scan(
		&f.ID,
		&f.EventID,
		&f.EventType,
		&f.ResourceID,
		&f.ResourceType,
		&f.Error,
		&f.Attempts,
		&f.FirstFailedAt,
		&f.LastFailedAt,
		&f.Resolved,
		&f.ResolvedAt,
		&f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
