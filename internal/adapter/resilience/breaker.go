// Package resilience wraps the consumer's non-critical Redis side effects in
// circuit breakers.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/V4T54L/marketplace-pulse/internal/adapter/metrics"
	"github.com/V4T54L/marketplace-pulse/internal/domain"
)

// BreakerConfig tunes a breaker. It trips after FailureThreshold consecutive
// failures and probes again after OpenTimeout.
type BreakerConfig struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
	Interval         time.Duration
}

func newBreaker[T any](name string, cfg BreakerConfig, m *metrics.PipelineMetrics, logger *slog.Logger) *gobreaker.CircuitBreaker[T] {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// A caller giving up is not a sign of an unhealthy backend.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			if m != nil {
				m.BreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	}
	if m != nil {
		m.BreakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))
	}
	return gobreaker.NewCircuitBreaker[T](settings)
}

// IsOpen reports whether err came from a breaker refusing the call.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// CacheStore wraps a domain.CacheStore with a breaker.
type CacheStore struct {
	next domain.CacheStore
	cb   *gobreaker.CircuitBreaker[int64]
}

func NewCacheStore(next domain.CacheStore, cfg BreakerConfig, m *metrics.PipelineMetrics, logger *slog.Logger) *CacheStore {
	return &CacheStore{next: next, cb: newBreaker[int64]("cache", cfg, m, logger)}
}

func (c *CacheStore) DeletePattern(ctx context.Context, pattern string) (int64, error) {
	return c.cb.Execute(func() (int64, error) {
		return c.next.DeletePattern(ctx, pattern)
	})
}

// State exposes the breaker state for health checks.
func (c *CacheStore) State() gobreaker.State { return c.cb.State() }

// DashboardChannel wraps a domain.DashboardChannel with a breaker.
type DashboardChannel struct {
	next domain.DashboardChannel
	cb   *gobreaker.CircuitBreaker[struct{}]
}

func NewDashboardChannel(next domain.DashboardChannel, cfg BreakerConfig, m *metrics.PipelineMetrics, logger *slog.Logger) *DashboardChannel {
	return &DashboardChannel{next: next, cb: newBreaker[struct{}]("dashboard", cfg, m, logger)}
}

func (d *DashboardChannel) Publish(ctx context.Context, channel string, payload []byte) error {
	_, err := d.cb.Execute(func() (struct{}, error) {
		return struct{}{}, d.next.Publish(ctx, channel, payload)
	})
	return err
}

func (d *DashboardChannel) State() gobreaker.State { return d.cb.State() }
