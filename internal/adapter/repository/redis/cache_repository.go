package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 500

// CacheRepository implements domain.CacheStore. Deletion walks the keyspace
// with SCAN and removes keys with UNLINK in batches.
type CacheRepository struct {
	client *redis.Client
}

func NewCacheRepository(client *redis.Client) *CacheRepository {
	return &CacheRepository{client: client}
}

func (r *CacheRepository) DeletePattern(ctx context.Context, pattern string) (int64, error) {
	var (
		deleted int64
		batch   = make([]string, 0, scanBatch)
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := r.client.Unlink(ctx, batch...).Result()
		if err != nil {
			return err
		}
		deleted += n
		batch = batch[:0]
		return nil
	}

	iter := r.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return deleted, fmt.Errorf("failed to unlink keys for %q: %w", pattern, err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("failed to scan keys for %q: %w", pattern, err)
	}
	if err := flush(); err != nil {
		return deleted, fmt.Errorf("failed to unlink keys for %q: %w", pattern, err)
	}
	return deleted, nil
}
