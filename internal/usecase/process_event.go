package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/V4T54L/marketplace-pulse/internal/domain"
)

const (
	defaultRetryCount   = 3
	defaultRetryBackoff = 200 * time.Millisecond
)

// ProcessResult describes what happened to one message.
type ProcessResult struct {
	EventType         string
	Duplicate         bool
	CacheFailures     int
	DashboardFailures int
}

// ProcessEventUseCase handles one broker message: it stores the event, bumps
// the live counter, invalidates caches and notifies dashboards.
type ProcessEventUseCase struct {
	events    domain.EventStore
	counters  domain.LiveCounter
	cache     *CacheInvalidator
	dashboard *DashboardPublisher
	redactor  domain.MetadataRedactor
	logger    *slog.Logger
	now       func() time.Time

	retries int
	backoff time.Duration
}

// NewProcessEventUseCase creates the consumer's message handler. redactor may be nil.
func NewProcessEventUseCase(
	events domain.EventStore,
	counters domain.LiveCounter,
	cache *CacheInvalidator,
	dashboard *DashboardPublisher,
	redactor domain.MetadataRedactor,
	logger *slog.Logger,
) *ProcessEventUseCase {
	return &ProcessEventUseCase{
		events:    events,
		counters:  counters,
		cache:     cache,
		dashboard: dashboard,
		redactor:  redactor,
		logger:    logger.With("component", "event_processor"),
		now:       time.Now,
		retries:   defaultRetryCount,
		backoff:   defaultRetryBackoff,
	}
}

// WithRetry sets how many times a failed store write is attempted before the
// message is rejected.
func (uc *ProcessEventUseCase) WithRetry(attempts int, backoff time.Duration) *ProcessEventUseCase {
	if attempts < 1 {
		attempts = 1
	}
	uc.retries = attempts
	uc.backoff = backoff
	return uc
}

// Handle processes a message. A returned error means the message must be
// rejected without requeue; errors.Is(err, domain.ErrMalformedEvent) tells
// a poison message apart from a failed write.
func (uc *ProcessEventUseCase) Handle(ctx context.Context, msg domain.Message) (ProcessResult, error) {
	event, err := domain.ParseDomainEvent(msg.Body)
	if err != nil {
		uc.logger.Warn("discarding malformed message", "message_id", msg.ID, "routing_key", msg.RoutingKey, "error", err)
		return ProcessResult{}, err
	}
	res := ProcessResult{EventType: event.EventType}

	now := uc.now()
	stored := event.ToStoredEvent(domain.EventID(msg.ID, msg.Body), now)
	if uc.redactor != nil {
		uc.redactor.Redact(stored.Metadata)
	}

	inserted, err := uc.saveWithRetry(ctx, stored)
	if err != nil {
		uc.logger.Error("failed to store event", "event_id", stored.ID, "event_type", event.EventType, "error", err)
		return res, fmt.Errorf("store event %s: %w", stored.ID, err)
	}
	if !inserted {
		// Redelivery of a message already applied; counters and side
		// effects already ran for it.
		res.Duplicate = true
		uc.logger.Debug("duplicate event delivery", "event_id", stored.ID, "event_type", event.EventType)
		return res, nil
	}

	if metricType, ok := liveCounterTypes[event.EventType]; ok {
		if err := uc.counters.Increment(ctx, metricType, domain.BucketHour.Truncate(stored.CreatedAt)); err != nil {
			uc.logger.Error("failed to update live counter", "event_id", stored.ID, "metric_type", metricType, "error", err)
			return res, fmt.Errorf("increment live counter %s: %w", metricType, err)
		}
	}

	plan, failed := uc.cache.Invalidate(ctx, event.EventType, event.Payload)
	res.CacheFailures = failed

	res.DashboardFailures = uc.dashboard.PublishEvent(ctx, event, Charts(plan))

	uc.logger.Debug("processed event",
		"event_id", stored.ID,
		"event_type", event.EventType,
		"cache_failures", res.CacheFailures,
		"dashboard_failures", res.DashboardFailures,
	)
	return res, nil
}

func (uc *ProcessEventUseCase) saveWithRetry(ctx context.Context, event domain.StoredEvent) (bool, error) {
	var lastErr error
	for i := 0; i < uc.retries; i++ {
		inserted, err := uc.events.SaveEvent(ctx, event)
		if err == nil {
			return inserted, nil
		}
		lastErr = err
		if i == uc.retries-1 {
			break
		}
		uc.logger.Warn("failed to store event, retrying", "event_id", event.ID, "attempt", i+1, "error", err)
		select {
		case <-time.After(uc.backoff):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return false, lastErr
}
