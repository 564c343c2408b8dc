package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/V4T54L/marketplace-pulse/internal/domain"
	"github.com/V4T54L/marketplace-pulse/internal/domain/mocks"
)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newPresenceFixture() (*PresenceUseCase, *mocks.FakePresenceStore, *mocks.MockPresenceSnapshotRepository, *testClock) {
	clock := &testClock{t: time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)}
	store := mocks.NewFakePresenceStore(clock.Now)
	snapshots := &mocks.MockPresenceSnapshotRepository{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	uc := NewPresenceUseCase(store, snapshots, DefaultPresenceConfig(), logger).WithClock(clock.Now)
	return uc, store, snapshots, clock
}

func heartbeat(session, app, userID string) domain.Heartbeat {
	return domain.Heartbeat{SessionID: session, App: app, Page: "/dashboard", Status: domain.StatusActive, UserID: userID}
}

func TestPresenceUseCase_Staleness(t *testing.T) {
	t.Run("Session silent past the window is not online", func(t *testing.T) {
		uc, store, _, clock := newPresenceFixture()
		if err := uc.RecordHeartbeat(context.Background(), heartbeat("session-0001", domain.AppPortal, "u-1")); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		clock.Advance(150 * time.Second)
		snap, err := uc.GetSnapshot(context.Background())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if snap.TotalOnline != 0 {
			t.Errorf("expected 0 online, got %d", snap.TotalOnline)
		}
		if store.OnlineSetSize() != 0 {
			t.Errorf("expected stale entries pruned, %d remain", store.OnlineSetSize())
		}
	})

	t.Run("Renewed session stays online", func(t *testing.T) {
		uc, _, _, clock := newPresenceFixture()
		hb := heartbeat("session-0002", domain.AppCandidate, "")
		if err := uc.RecordHeartbeat(context.Background(), hb); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		clock.Advance(60 * time.Second)
		if err := uc.RecordHeartbeat(context.Background(), hb); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		clock.Advance(30 * time.Second)
		snap, err := uc.GetSnapshot(context.Background())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if snap.TotalOnline != 1 || snap.Anonymous != 1 {
			t.Errorf("expected one anonymous session online, got %+v", snap)
		}
		if snap.ByApp[domain.AppCandidate] != 1 || snap.ByRole[domain.RoleAnonymous] != 1 {
			t.Errorf("unexpected breakdown: apps=%v roles=%v", snap.ByApp, snap.ByRole)
		}
	})

	t.Run("Session with expired metadata is still counted", func(t *testing.T) {
		uc, store, _, _ := newPresenceFixture()
		for _, id := range []string{"session-a001", "session-a002"} {
			if err := uc.RecordHeartbeat(context.Background(), heartbeat(id, domain.AppPortal, "u-"+id)); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		}
		store.ExpireSession("session-a002")

		snap, err := uc.GetSnapshot(context.Background())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if snap.TotalOnline != 2 {
			t.Errorf("expected total 2, got %d", snap.TotalOnline)
		}
		if snap.Authenticated != 1 || snap.ByApp[domain.AppPortal] != 1 {
			t.Errorf("expected breakdown to cover only the session with metadata, got %+v", snap)
		}
	})
}

func TestPresenceUseCase_Timeline(t *testing.T) {
	uc, _, _, clock := newPresenceFixture()
	ctx := context.Background()

	if err := uc.RecordHeartbeat(ctx, heartbeat("session-t001", domain.AppPortal, "u-1")); err != nil {
		t.Fatal(err)
	}
	// Same session twice in one minute counts once.
	clock.Advance(20 * time.Second)
	if err := uc.RecordHeartbeat(ctx, heartbeat("session-t001", domain.AppPortal, "u-1")); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Minute)
	if err := uc.RecordHeartbeat(ctx, heartbeat("session-t002", domain.AppCorporate, "")); err != nil {
		t.Fatal(err)
	}

	snap, err := uc.GetSnapshot(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(snap.Timeline) != 30 {
		t.Fatalf("expected 30 timeline points, got %d", len(snap.Timeline))
	}
	for i := 1; i < len(snap.Timeline); i++ {
		if !snap.Timeline[i].Minute.After(snap.Timeline[i-1].Minute) {
			t.Fatal("timeline is not oldest first")
		}
	}

	last, prev := snap.Timeline[29], snap.Timeline[28]
	if last.Count != 1 || prev.Count != 1 {
		t.Errorf("expected one distinct session in each of the last two minutes, got %d and %d", prev.Count, last.Count)
	}
	if got := snap.TimelineByApp[domain.AppCorporate][29].Count; got != 1 {
		t.Errorf("expected corporate count 1 in current minute, got %d", got)
	}
	if got := snap.TimelineByRole[domain.RoleRecruiter][28].Count; got != 1 {
		t.Errorf("expected recruiter count 1 in previous minute, got %d", got)
	}
	if got := snap.TimelineByRole[domain.RoleAdmin][29].Count; got != 0 {
		t.Errorf("expected zero admin sessions, got %d", got)
	}
}

func TestValidateHeartbeat(t *testing.T) {
	valid := func() domain.Heartbeat { return heartbeat("session-v001", domain.AppPortal, "") }

	testCases := []struct {
		name   string
		mutate func(*domain.Heartbeat)
	}{
		{"Short session id", func(h *domain.Heartbeat) { h.SessionID = "abc" }},
		{"Long session id", func(h *domain.Heartbeat) { h.SessionID = strings.Repeat("s", 65) }},
		{"Unknown app", func(h *domain.Heartbeat) { h.App = "mobile" }},
		{"Page too long", func(h *domain.Heartbeat) { h.Page = "/" + strings.Repeat("p", 512) }},
		{"Unknown status", func(h *domain.Heartbeat) { h.Status = "away" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			hb := valid()
			tc.mutate(&hb)
			err := ValidateHeartbeat(&hb)
			if !errors.Is(err, domain.ErrInvalidHeartbeat) {
				t.Errorf("expected ErrInvalidHeartbeat, got %v", err)
			}
		})
	}

	t.Run("Defaults user type", func(t *testing.T) {
		anon := valid()
		if err := ValidateHeartbeat(&anon); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if anon.UserType != domain.RoleAnonymous {
			t.Errorf("expected anonymous, got %q", anon.UserType)
		}

		known := valid()
		known.UserID = "u-9"
		if err := ValidateHeartbeat(&known); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if known.UserType != domain.RoleRecruiter {
			t.Errorf("expected recruiter, got %q", known.UserType)
		}
	})

	t.Run("Caller supplied user type is overridden", func(t *testing.T) {
		hb := valid()
		hb.UserType = domain.RoleAdmin
		if err := ValidateHeartbeat(&hb); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if hb.UserType != domain.RoleAnonymous {
			t.Errorf("expected anonymous, got %q", hb.UserType)
		}
	})

	t.Run("Invalid heartbeat is not recorded", func(t *testing.T) {
		uc, store, _, _ := newPresenceFixture()
		hb := valid()
		hb.App = "unknown"
		if err := uc.RecordHeartbeat(context.Background(), hb); !errors.Is(err, domain.ErrInvalidHeartbeat) {
			t.Fatalf("expected ErrInvalidHeartbeat, got %v", err)
		}
		if store.OnlineSetSize() != 0 {
			t.Error("invalid heartbeat reached the store")
		}
	})
}

func TestPresenceUseCase_PersistSnapshot(t *testing.T) {
	t.Run("Saves the computed snapshot", func(t *testing.T) {
		uc, _, snapshots, _ := newPresenceFixture()
		if err := uc.RecordHeartbeat(context.Background(), heartbeat("session-p001", domain.AppPortal, "u-1")); err != nil {
			t.Fatal(err)
		}
		if err := uc.PersistSnapshot(context.Background()); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(snapshots.Saved) != 1 || snapshots.Saved[0].TotalOnline != 1 {
			t.Errorf("unexpected saved snapshots: %+v", snapshots.Saved)
		}
	})

	t.Run("Store read failure is returned", func(t *testing.T) {
		uc, store, snapshots, _ := newPresenceFixture()
		store.ReadErr = errors.New("redis unavailable")
		if err := uc.PersistSnapshot(context.Background()); err == nil {
			t.Fatal("expected an error, got nil")
		}
		if len(snapshots.Saved) != 0 {
			t.Error("nothing should be saved when the read fails")
		}
	})
}
