package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/V4T54L/marketplace-pulse/internal/adapter/metrics"
)

type cacheEntry struct {
	isValid   bool
	expiresAt time.Time
}

// APIKeyRepository implements the domain.APIKeyRepository interface using PostgreSQL
// as the source of truth and an in-memory, time-based cache. Keys are stored
// as SHA-256 hashes.
type APIKeyRepository struct {
	db       *sql.DB
	logger   *slog.Logger
	cache    map[string]cacheEntry
	mu       sync.RWMutex
	cacheTTL time.Duration
	metrics  *metrics.PipelineMetrics
}

// NewAPIKeyRepository creates a new instance of the PostgreSQL API key repository.
func NewAPIKeyRepository(db *sql.DB, logger *slog.Logger, cacheTTL time.Duration, m *metrics.PipelineMetrics) *APIKeyRepository {
	return &APIKeyRepository{
		db:       db,
		logger:   logger.With("component", "apikey_repository"),
		cache:    make(map[string]cacheEntry),
		cacheTTL: cacheTTL,
		metrics:  m,
	}
}

// HashKey returns the stored form of an API key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// IsValid checks if an API key is valid. It first checks a local cache and falls
// back to the database if the key is not found or the cache entry has expired.
func (r *APIKeyRepository) IsValid(ctx context.Context, key string) (bool, error) {
	hash := HashKey(key)

	r.mu.RLock()
	entry, found := r.cache[hash]
	r.mu.RUnlock()

	if found && time.Now().Before(entry.expiresAt) {
		if r.metrics != nil {
			r.metrics.APIKeyCacheHits.Inc()
		}
		return entry.isValid, nil
	}

	if r.metrics != nil {
		r.metrics.APIKeyCacheMisses.Inc()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another goroutine may have refreshed the entry while we waited.
	entry, found = r.cache[hash]
	if found && time.Now().Before(entry.expiresAt) {
		return entry.isValid, nil
	}

	var isValid bool
	query := `SELECT EXISTS(SELECT 1 FROM api_keys WHERE key_hash = $1 AND is_active = true AND (expires_at IS NULL OR expires_at > NOW()))`
	if err := r.db.QueryRowContext(ctx, query, hash).Scan(&isValid); err != nil {
		r.logger.Error("failed to validate API key in database", "error", err)
		// Errors are not cached; the next request retries the database.
		return false, err
	}

	r.cache[hash] = cacheEntry{
		isValid:   isValid,
		expiresAt: time.Now().Add(r.cacheTTL),
	}
	return isValid, nil
}
