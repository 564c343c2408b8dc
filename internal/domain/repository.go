package domain

import (
	"context"
	"time"
)

// EventStore is the append-only log of consumed events.
type EventStore interface {
	// SaveEvent appends an event. inserted is false when an event with the
	// same ID already exists.
	SaveEvent(ctx context.Context, event StoredEvent) (inserted bool, err error)

	// ListEvents returns events with created_at in [from, to).
	ListEvents(ctx context.Context, from, to time.Time) ([]StoredEvent, error)
}

// MetricRepository persists aggregated metrics, one table per bucket.
type MetricRepository interface {
	// LatestTimeValue returns the newest time_value stored for the bucket.
	// ok is false when the table is empty.
	LatestTimeValue(ctx context.Context, bucket TimeBucket) (t time.Time, ok bool, err error)

	// ListMetrics returns rows of the bucket with time_value in [from, to).
	ListMetrics(ctx context.Context, bucket TimeBucket, from, to time.Time) ([]Metric, error)

	// UpsertMetric inserts the row or overwrites value and metadata on key conflict.
	UpsertMetric(ctx context.Context, metric Metric) error
}

// LiveCounter keeps approximate current-hour counts ahead of the hourly rollup.
type LiveCounter interface {
	Increment(ctx context.Context, metricType string, hour time.Time) error
}

// HealthSource answers the sub-queries behind the daily marketplace health row.
type HealthSource interface {
	PlacementStats(ctx context.Context, from, to time.Time) (PlacementStats, error)
	ApplicationCount(ctx context.Context, from, to time.Time) (int64, error)
	ActiveRecruiterCount(ctx context.Context, from, to time.Time) (int64, error)
	ActiveJobCount(ctx context.Context) (int64, error)
	FraudSignalCount(ctx context.Context, from, to time.Time) (int64, error)
	DisputedPlacementCount(ctx context.Context, from, to time.Time) (int64, error)
}

// HealthRepository persists daily health snapshots keyed on metric date.
type HealthRepository interface {
	UpsertSnapshot(ctx context.Context, snapshot MarketplaceHealthSnapshot) error
}

// CacheStore deletes derived cache entries.
type CacheStore interface {
	// DeletePattern removes every key matching a glob-style pattern and
	// returns how many were removed.
	DeletePattern(ctx context.Context, pattern string) (int64, error)
}

// DashboardChannel publishes real-time dashboard notifications.
type DashboardChannel interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// DashboardSubscriber relays notifications published on a channel.
type DashboardSubscriber interface {
	// Subscribe returns a stream of payloads and a function that ends the subscription.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error, error)
}

// PresenceStore holds ephemeral presence state in a TTL-capable store.
type PresenceStore interface {
	// RecordHeartbeat atomically renews the online score, the session metadata
	// and the session's membership in the current minute's timeline buckets.
	RecordHeartbeat(ctx context.Context, session PresenceSession, ttl PresenceTTL) error

	// PruneOnline removes online-set entries last seen before cutoff.
	PruneOnline(ctx context.Context, cutoff time.Time) error

	// OnlineSessionIDs returns sessions last seen at or after since.
	OnlineSessionIDs(ctx context.Context, since time.Time) ([]string, error)

	// Sessions fetches metadata; ids without live metadata are absent from the result.
	Sessions(ctx context.Context, ids []string) (map[string]PresenceSession, error)

	// TimelineCounts reads bucket cardinalities in a single round trip.
	TimelineCounts(ctx context.Context, q TimelineQuery) (TimelineCounts, error)
}

// PresenceSnapshotRepository persists periodic presence snapshots.
type PresenceSnapshotRepository interface {
	SaveSnapshot(ctx context.Context, snapshot PresenceSnapshot) error
}

// APIKeyRepository defines the interface for validating API keys.
type APIKeyRepository interface {
	// IsValid checks if the provided API key is valid and active.
	// Implementations should handle caching to reduce database load.
	IsValid(ctx context.Context, key string) (bool, error)
}

// MetadataRedactor scrubs sensitive fields from event metadata in place.
type MetadataRedactor interface {
	Redact(metadata map[string]any) (redacted bool)
}
