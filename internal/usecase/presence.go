package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/V4T54L/marketplace-pulse/internal/domain"
)

const (
	minSessionIDLen = 8
	maxSessionIDLen = 64
	maxPageLen      = 512
)

// PresenceConfig holds the presence windows.
type PresenceConfig struct {
	StaleAfter      time.Duration
	SessionTTL      time.Duration
	TimelineTTL     time.Duration
	TimelineMinutes int
}

// DefaultPresenceConfig is a two minute staleness window over a 30 minute chart.
func DefaultPresenceConfig() PresenceConfig {
	return PresenceConfig{
		StaleAfter:      2 * time.Minute,
		SessionTTL:      120 * time.Second,
		TimelineTTL:     2 * time.Hour,
		TimelineMinutes: 30,
	}
}

// PresenceUseCase tracks who is online from heartbeats.
type PresenceUseCase struct {
	store     domain.PresenceStore
	snapshots domain.PresenceSnapshotRepository
	cfg       PresenceConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewPresenceUseCase creates the presence tracker. snapshots may be nil when
// the caller never persists snapshots.
func NewPresenceUseCase(store domain.PresenceStore, snapshots domain.PresenceSnapshotRepository, cfg PresenceConfig, logger *slog.Logger) *PresenceUseCase {
	return &PresenceUseCase{
		store:     store,
		snapshots: snapshots,
		cfg:       cfg,
		logger:    logger.With("component", "presence"),
		now:       time.Now,
	}
}

// WithClock overrides the time source.
func (uc *PresenceUseCase) WithClock(now func() time.Time) *PresenceUseCase {
	uc.now = now
	return uc
}

// ValidateHeartbeat checks a heartbeat and sets its user type from the
// presence of a user id.
func ValidateHeartbeat(hb *domain.Heartbeat) error {
	if n := len(hb.SessionID); n < minSessionIDLen || n > maxSessionIDLen {
		return fmt.Errorf("%w: session_id must be %d-%d characters", domain.ErrInvalidHeartbeat, minSessionIDLen, maxSessionIDLen)
	}
	if !slices.Contains(domain.PresenceApps, hb.App) {
		return fmt.Errorf("%w: unknown app %q", domain.ErrInvalidHeartbeat, hb.App)
	}
	if len(hb.Page) > maxPageLen {
		return fmt.Errorf("%w: page longer than %d characters", domain.ErrInvalidHeartbeat, maxPageLen)
	}
	if hb.Status != domain.StatusActive && hb.Status != domain.StatusIdle {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidHeartbeat, hb.Status)
	}
	if hb.UserID != "" {
		hb.UserType = domain.RoleRecruiter
	} else {
		hb.UserType = domain.RoleAnonymous
	}
	return nil
}

// RecordHeartbeat validates and records a heartbeat.
func (uc *PresenceUseCase) RecordHeartbeat(ctx context.Context, hb domain.Heartbeat) error {
	if err := ValidateHeartbeat(&hb); err != nil {
		return err
	}

	session := domain.PresenceSession{
		SessionID: hb.SessionID,
		App:       hb.App,
		Page:      hb.Page,
		Status:    hb.Status,
		UserID:    hb.UserID,
		UserType:  hb.UserType,
		LastSeen:  uc.now().UTC(),
	}
	ttl := domain.PresenceTTL{Session: uc.cfg.SessionTTL, Timeline: uc.cfg.TimelineTTL}
	if err := uc.store.RecordHeartbeat(ctx, session, ttl); err != nil {
		return fmt.Errorf("record heartbeat: %w", err)
	}
	return nil
}

// GetSnapshot computes the current presence view.
func (uc *PresenceUseCase) GetSnapshot(ctx context.Context) (domain.PresenceSnapshot, error) {
	now := uc.now().UTC()
	cutoff := now.Add(-uc.cfg.StaleAfter)

	if err := uc.store.PruneOnline(ctx, cutoff); err != nil {
		return domain.PresenceSnapshot{}, fmt.Errorf("prune online set: %w", err)
	}
	ids, err := uc.store.OnlineSessionIDs(ctx, cutoff)
	if err != nil {
		return domain.PresenceSnapshot{}, fmt.Errorf("read online set: %w", err)
	}

	snap := domain.PresenceSnapshot{
		GeneratedAt: now,
		TotalOnline: len(ids),
		ByApp:       make(map[string]int, len(domain.PresenceApps)),
		ByRole:      make(map[string]int, len(domain.PresenceRoles)),
	}

	if len(ids) > 0 {
		sessions, err := uc.store.Sessions(ctx, ids)
		if err != nil {
			return domain.PresenceSnapshot{}, fmt.Errorf("read session metadata: %w", err)
		}
		// Sessions whose metadata expired ahead of their online score are
		// counted in TotalOnline only.
		for _, s := range sessions {
			snap.ByApp[s.App]++
			snap.ByRole[s.UserType]++
			if s.UserID != "" {
				snap.Authenticated++
			} else {
				snap.Anonymous++
			}
		}
	}

	minutes := timelineMinutes(now, uc.cfg.TimelineMinutes)
	counts, err := uc.store.TimelineCounts(ctx, domain.TimelineQuery{
		Minutes: minutes,
		Apps:    domain.PresenceApps,
		Roles:   domain.PresenceRoles,
	})
	if err != nil {
		return domain.PresenceSnapshot{}, fmt.Errorf("read presence timeline: %w", err)
	}

	snap.Timeline = points(minutes, counts.Global)
	snap.TimelineByApp = make(map[string][]domain.TimelinePoint, len(counts.ByApp))
	for app, c := range counts.ByApp {
		snap.TimelineByApp[app] = points(minutes, c)
	}
	snap.TimelineByRole = make(map[string][]domain.TimelinePoint, len(counts.ByRole))
	for role, c := range counts.ByRole {
		snap.TimelineByRole[role] = points(minutes, c)
	}
	return snap, nil
}

// PersistSnapshot computes a snapshot and stores it durably.
func (uc *PresenceUseCase) PersistSnapshot(ctx context.Context) error {
	if uc.snapshots == nil {
		return fmt.Errorf("presence snapshot repository not configured")
	}
	snap, err := uc.GetSnapshot(ctx)
	if err != nil {
		return err
	}
	if err := uc.snapshots.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("save presence snapshot: %w", err)
	}
	uc.logger.Info("persisted presence snapshot", "total_online", snap.TotalOnline, "authenticated", snap.Authenticated)
	return nil
}

// timelineMinutes returns the last n minute starts, oldest first, ending
// with the current minute.
func timelineMinutes(now time.Time, n int) []time.Time {
	current := now.Truncate(time.Minute)
	out := make([]time.Time, n)
	for i := 0; i < n; i++ {
		out[i] = current.Add(-time.Duration(n-1-i) * time.Minute)
	}
	return out
}

func points(minutes []time.Time, counts []int64) []domain.TimelinePoint {
	out := make([]domain.TimelinePoint, len(minutes))
	for i, m := range minutes {
		out[i] = domain.TimelinePoint{Minute: m}
		if i < len(counts) {
			out[i].Count = counts[i]
		}
	}
	return out
}
