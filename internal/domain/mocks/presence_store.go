package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/V4T54L/marketplace-pulse/internal/domain"
)

type expiringSession struct {
	session   domain.PresenceSession
	expiresAt time.Time
}

type expiringSet struct {
	members   map[string]struct{}
	expiresAt time.Time
}

// FakePresenceStore mimics the TTL semantics of the Redis presence store
// against an injectable clock.
type FakePresenceStore struct {
	mu       sync.Mutex
	Now      func() time.Time
	online   map[string]time.Time
	sessions map[string]expiringSession
	buckets  map[string]*expiringSet

	RecordErr error
	ReadErr   error
}

func NewFakePresenceStore(now func() time.Time) *FakePresenceStore {
	return &FakePresenceStore{
		Now:      now,
		online:   make(map[string]time.Time),
		sessions: make(map[string]expiringSession),
		buckets:  make(map[string]*expiringSet),
	}
}

func bucketName(kind, dim string, minute time.Time) string {
	return kind + ":" + dim + ":" + minute.UTC().Format("200601021504")
}

func (f *FakePresenceStore) RecordHeartbeat(ctx context.Context, s domain.PresenceSession, ttl domain.PresenceTTL) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RecordErr != nil {
		return f.RecordErr
	}
	now := f.Now()
	f.online[s.SessionID] = s.LastSeen
	f.sessions[s.SessionID] = expiringSession{session: s, expiresAt: now.Add(ttl.Session)}

	minute := s.LastSeen.Truncate(time.Minute)
	for _, name := range []string{
		bucketName("global", "", minute),
		bucketName("app", s.App, minute),
		bucketName("role", s.UserType, minute),
	} {
		b := f.buckets[name]
		if b == nil || !now.Before(b.expiresAt) {
			b = &expiringSet{members: make(map[string]struct{})}
			f.buckets[name] = b
		}
		b.members[s.SessionID] = struct{}{}
		b.expiresAt = now.Add(ttl.Timeline)
	}
	return nil
}

func (f *FakePresenceStore) PruneOnline(ctx context.Context, cutoff time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadErr != nil {
		return f.ReadErr
	}
	for id, seen := range f.online {
		if seen.Before(cutoff) {
			delete(f.online, id)
		}
	}
	return nil
}

func (f *FakePresenceStore) OnlineSessionIDs(ctx context.Context, since time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadErr != nil {
		return nil, f.ReadErr
	}
	var ids []string
	for id, seen := range f.online {
		if !seen.Before(since) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *FakePresenceStore) Sessions(ctx context.Context, ids []string) (map[string]domain.PresenceSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadErr != nil {
		return nil, f.ReadErr
	}
	now := f.Now()
	out := make(map[string]domain.PresenceSession, len(ids))
	for _, id := range ids {
		if s, ok := f.sessions[id]; ok && now.Before(s.expiresAt) {
			out[id] = s.session
		}
	}
	return out, nil
}

func (f *FakePresenceStore) TimelineCounts(ctx context.Context, q domain.TimelineQuery) (domain.TimelineCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadErr != nil {
		return domain.TimelineCounts{}, f.ReadErr
	}
	now := f.Now()
	card := func(name string) int64 {
		b := f.buckets[name]
		if b == nil || !now.Before(b.expiresAt) {
			return 0
		}
		return int64(len(b.members))
	}

	out := domain.TimelineCounts{
		Global: make([]int64, len(q.Minutes)),
		ByApp:  make(map[string][]int64, len(q.Apps)),
		ByRole: make(map[string][]int64, len(q.Roles)),
	}
	for _, app := range q.Apps {
		out.ByApp[app] = make([]int64, len(q.Minutes))
	}
	for _, role := range q.Roles {
		out.ByRole[role] = make([]int64, len(q.Minutes))
	}
	for i, m := range q.Minutes {
		out.Global[i] = card(bucketName("global", "", m))
		for _, app := range q.Apps {
			out.ByApp[app][i] = card(bucketName("app", app, m))
		}
		for _, role := range q.Roles {
			out.ByRole[role][i] = card(bucketName("role", role, m))
		}
	}
	return out, nil
}

// ExpireSession drops a session's metadata while leaving its online score,
// reproducing the window where metadata TTL has lapsed first.
func (f *FakePresenceStore) ExpireSession(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
}

// OnlineSetSize reports how many entries remain in the online set.
func (f *FakePresenceStore) OnlineSetSize() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.online)
}
