package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"github.com/V4T54L/marketplace-pulse/internal/domain"
)

// EventRepository implements domain.EventStore on the events table.
type EventRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewEventRepository creates a new PostgreSQL event store.
func NewEventRepository(db *sql.DB, logger *slog.Logger) *EventRepository {
	return &EventRepository{db: db, logger: logger.With("component", "event_repository")}
}

// SaveEvent inserts the event. A conflicting id is a redelivery and reports
// inserted=false.
func (r *EventRepository) SaveEvent(ctx context.Context, event domain.StoredEvent) (bool, error) {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return false, fmt.Errorf("failed to marshal event metadata: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO events (id, event_type, entity_type, entity_id, user_id, user_role, organization_id, metadata, occurred_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		event.ID,
		event.EventType,
		event.EntityType,
		event.EntityID,
		event.UserID,
		event.UserRole,
		event.OrganizationID,
		metadata,
		event.OccurredAt.UTC(),
		event.CreatedAt.UTC(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListEvents returns events with created_at in [from, to), oldest first.
func (r *EventRepository) ListEvents(ctx context.Context, from, to time.Time) ([]domain.StoredEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_type, entity_type, entity_id, user_id, user_role, organization_id, metadata, occurred_at, created_at
		FROM events
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.StoredEvent
	for rows.Next() {
		var (
			e        domain.StoredEvent
			metadata []byte
		)
		if err := rows.Scan(&e.ID, &e.EventType, &e.EntityType, &e.EntityID, &e.UserID, &e.UserRole, &e.OrganizationID, &metadata, &e.OccurredAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			r.logger.Warn("skipping event with unreadable metadata", "event_id", e.ID, "error", err)
			continue
		}
		e.OccurredAt = e.OccurredAt.UTC()
		e.CreatedAt = e.CreatedAt.UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}
