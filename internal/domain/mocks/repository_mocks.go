package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/V4T54L/marketplace-pulse/internal/domain"
)

// MockEventStore is an in-memory domain.EventStore.
type MockEventStore struct {
	mu     sync.Mutex
	Events []domain.StoredEvent
	// SaveErr fails every save, or only the first FailSaves saves when FailSaves > 0.
	SaveErr   error
	FailSaves int
	SaveCalls int
	ListErr   error
}

func (m *MockEventStore) SaveEvent(ctx context.Context, event domain.StoredEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCalls++
	if m.SaveErr != nil && (m.FailSaves == 0 || m.SaveCalls <= m.FailSaves) {
		return false, m.SaveErr
	}
	for _, e := range m.Events {
		if e.ID == event.ID {
			return false, nil
		}
	}
	m.Events = append(m.Events, event)
	return true, nil
}

func (m *MockEventStore) ListEvents(ctx context.Context, from, to time.Time) ([]domain.StoredEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var out []domain.StoredEvent
	for _, e := range m.Events {
		if !e.CreatedAt.Before(from) && e.CreatedAt.Before(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

// MockMetricRepository is an in-memory domain.MetricRepository keyed by the natural key.
type MockMetricRepository struct {
	mu      sync.Mutex
	Rows    map[domain.TimeBucket]map[domain.MetricKey]domain.Metric
	Upserts int
	// UpsertErrFor fails upserts of these metric types.
	UpsertErrFor map[string]error
	ListErr      error
}

func NewMockMetricRepository() *MockMetricRepository {
	return &MockMetricRepository{Rows: make(map[domain.TimeBucket]map[domain.MetricKey]domain.Metric)}
}

func (m *MockMetricRepository) LatestTimeValue(ctx context.Context, bucket domain.TimeBucket) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest time.Time
	found := false
	for k := range m.Rows[bucket] {
		if !found || k.TimeValue.After(latest) {
			latest = k.TimeValue
			found = true
		}
	}
	return latest, found, nil
}

func (m *MockMetricRepository) ListMetrics(ctx context.Context, bucket domain.TimeBucket, from, to time.Time) ([]domain.Metric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var out []domain.Metric
	for k, v := range m.Rows[bucket] {
		if !k.TimeValue.Before(from) && k.TimeValue.Before(to) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimeValue.Before(out[j].TimeValue) })
	return out, nil
}

func (m *MockMetricRepository) UpsertMetric(ctx context.Context, metric domain.Metric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.UpsertErrFor[metric.MetricType]; err != nil {
		return err
	}
	if m.Rows == nil {
		m.Rows = make(map[domain.TimeBucket]map[domain.MetricKey]domain.Metric)
	}
	if m.Rows[metric.Bucket] == nil {
		m.Rows[metric.Bucket] = make(map[domain.MetricKey]domain.Metric)
	}
	m.Rows[metric.Bucket][metric.MetricKey] = metric
	m.Upserts++
	return nil
}

// Get returns a stored row.
func (m *MockMetricRepository) Get(bucket domain.TimeBucket, key domain.MetricKey) (domain.Metric, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.Rows[bucket][key]
	return v, ok
}

// Snapshot copies every row of a bucket.
func (m *MockMetricRepository) Snapshot(bucket domain.TimeBucket) map[domain.MetricKey]domain.Metric {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[domain.MetricKey]domain.Metric, len(m.Rows[bucket]))
	for k, v := range m.Rows[bucket] {
		out[k] = v
	}
	return out
}

// MockLiveCounter records increments.
type MockLiveCounter struct {
	mu     sync.Mutex
	Counts map[string]int
	Err    error
}

func (m *MockLiveCounter) Increment(ctx context.Context, metricType string, hour time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if m.Counts == nil {
		m.Counts = make(map[string]int)
	}
	m.Counts[metricType]++
	return nil
}

// MockCacheStore records deleted patterns.
type MockCacheStore struct {
	mu       sync.Mutex
	Patterns []string
	Err      error
}

func (m *MockCacheStore) DeletePattern(ctx context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	m.Patterns = append(m.Patterns, pattern)
	return 1, nil
}

// MockDashboardChannel records published payloads per channel and fans them
// out to subscribers.
type MockDashboardChannel struct {
	mu        sync.Mutex
	Published map[string][][]byte
	Err       error
	subs      map[string][]chan []byte
}

func (m *MockDashboardChannel) Publish(ctx context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if m.Published == nil {
		m.Published = make(map[string][][]byte)
	}
	m.Published[channel] = append(m.Published[channel], payload)
	for _, ch := range m.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

func (m *MockDashboardChannel) Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, nil, m.Err
	}
	if m.subs == nil {
		m.subs = make(map[string][]chan []byte)
	}
	ch := make(chan []byte, 16)
	m.subs[channel] = append(m.subs[channel], ch)
	return ch, func() error { return nil }, nil
}

// Subscribers reports how many subscriptions a channel has.
func (m *MockDashboardChannel) Subscribers(channel string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[channel])
}

// MockHealthSource returns canned sub-query results.
type MockHealthSource struct {
	Placements         domain.PlacementStats
	Applications       int64
	ActiveRecruiters   int64
	ActiveJobs         int64
	FraudSignals       int64
	DisputedPlacements int64

	PlacementErr   error
	ApplicationErr error

	mu    sync.Mutex
	Calls []string
}

func (m *MockHealthSource) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, name)
}

func (m *MockHealthSource) PlacementStats(ctx context.Context, from, to time.Time) (domain.PlacementStats, error) {
	m.record("placements")
	return m.Placements, m.PlacementErr
}

func (m *MockHealthSource) ApplicationCount(ctx context.Context, from, to time.Time) (int64, error) {
	m.record("applications")
	return m.Applications, m.ApplicationErr
}

func (m *MockHealthSource) ActiveRecruiterCount(ctx context.Context, from, to time.Time) (int64, error) {
	m.record("recruiters")
	return m.ActiveRecruiters, nil
}

func (m *MockHealthSource) ActiveJobCount(ctx context.Context) (int64, error) {
	m.record("jobs")
	return m.ActiveJobs, nil
}

func (m *MockHealthSource) FraudSignalCount(ctx context.Context, from, to time.Time) (int64, error) {
	m.record("fraud")
	return m.FraudSignals, nil
}

func (m *MockHealthSource) DisputedPlacementCount(ctx context.Context, from, to time.Time) (int64, error) {
	m.record("disputes")
	return m.DisputedPlacements, nil
}

// MockHealthRepository stores snapshots by date.
type MockHealthRepository struct {
	mu        sync.Mutex
	Snapshots map[time.Time]domain.MarketplaceHealthSnapshot
	Err       error
}

func (m *MockHealthRepository) UpsertSnapshot(ctx context.Context, snapshot domain.MarketplaceHealthSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if m.Snapshots == nil {
		m.Snapshots = make(map[time.Time]domain.MarketplaceHealthSnapshot)
	}
	m.Snapshots[snapshot.MetricDate] = snapshot
	return nil
}

// MockPresenceSnapshotRepository records saved snapshots.
type MockPresenceSnapshotRepository struct {
	mu    sync.Mutex
	Saved []domain.PresenceSnapshot
	Err   error
}

func (m *MockPresenceSnapshotRepository) SaveSnapshot(ctx context.Context, snapshot domain.PresenceSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Saved = append(m.Saved, snapshot)
	return nil
}

// MockAPIKeyRepository accepts a fixed set of keys.
type MockAPIKeyRepository struct {
	Keys map[string]bool
	Err  error
}

func (m *MockAPIKeyRepository) IsValid(ctx context.Context, key string) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	return m.Keys[key], nil
}
