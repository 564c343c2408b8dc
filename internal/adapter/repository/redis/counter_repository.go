package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const liveMetricsTTL = 48 * time.Hour

// CounterRepository implements domain.LiveCounter as one hash per hour,
// field = metric type.
type CounterRepository struct {
	client *redis.Client
}

func NewCounterRepository(client *redis.Client) *CounterRepository {
	return &CounterRepository{client: client}
}

func (r *CounterRepository) Increment(ctx context.Context, metricType string, hour time.Time) error {
	key := liveMetricsKey(hour)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, metricType, 1)
		pipe.Expire(ctx, key, liveMetricsTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to increment live counter: %w", err)
	}
	return nil
}

// Counts returns the live counters of an hour.
func (r *CounterRepository) Counts(ctx context.Context, hour time.Time) (map[string]int64, error) {
	raw, err := r.client.HGetAll(ctx, liveMetricsKey(hour)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read live counters: %w", err)
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			out[k] = n
		}
	}
	return out, nil
}
