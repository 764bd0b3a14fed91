// Package postgres provides PostgreSQL lookups of resources described by sync events.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bissquit/course-sync/internal/domain"
	"github.com/bissquit/course-sync/internal/eventsync"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// resourceTables maps each resource type to the table holding it.
var resourceTables = map[domain.ResourceType]string{
	domain.ResourceTypeEnrollment: "enrollments",
	domain.ResourceTypeProfile:    "user_profiles",
	domain.ResourceTypeProgress:   "course_progress",
	domain.ResourceTypeUser:       "users",
}

// Repository implements eventsync.ResourceFinder using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// FindByID returns the row of the resource as a JSON object.
func (r *Repository) FindByID(ctx context.Context, resourceType domain.ResourceType, id string) (json.RawMessage, error) {
	table, ok := resourceTables[resourceType]
	if !ok {
		return nil, fmt.Errorf("unknown resource type %q", resourceType)
	}

	// table comes from resourceTables, never from input
	query := fmt.Sprintf(`SELECT row_to_json(t) FROM %s t WHERE t.id::text = $1`, table)

	var data []byte
	if err := r.db.QueryRow(ctx, query, id).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eventsync.ErrResourceNotFound
		}
		return nil, fmt.Errorf("find %s: %w", resourceType, err)
	}
	return json.RawMessage(data), nil
}
