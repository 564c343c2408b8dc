package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/V4T54L/marketplace-pulse/internal/domain"
)

// PresenceSnapshotRepository keeps the periodic presence totals. Timelines are
// not persisted; they are reconstructible from consecutive snapshots.
type PresenceSnapshotRepository struct {
	db *sql.DB
}

func NewPresenceSnapshotRepository(db *sql.DB) *PresenceSnapshotRepository {
	return &PresenceSnapshotRepository{db: db}
}

func (r *PresenceSnapshotRepository) SaveSnapshot(ctx context.Context, s domain.PresenceSnapshot) error {
	byApp, err := json.Marshal(s.ByApp)
	if err != nil {
		return fmt.Errorf("failed to marshal app breakdown: %w", err)
	}
	byRole, err := json.Marshal(s.ByRole)
	if err != nil {
		return fmt.Errorf("failed to marshal role breakdown: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO presence_snapshots (captured_at, total_online, authenticated, anonymous, by_app, by_role)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.GeneratedAt.UTC(), s.TotalOnline, s.Authenticated, s.Anonymous, byApp, byRole,
	)
	return err
}
