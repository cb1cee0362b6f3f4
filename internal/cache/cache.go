// Package cache provides the typed TTL caches used by topic classification
// and QA similarity lookups. Entries carry an embedding-model tag and a
// hit counter; expiry is checked at read time by the backing store.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tutor-agent/backend/internal/metrics"
	"github.com/tutor-agent/backend/internal/storage/models"
	"github.com/tutor-agent/backend/internal/storage/sqlite"
)

type Store interface {
	CacheGet(ctx context.Context, bucket, key string) (*models.CacheEntry, bool, error)
	CachePut(ctx context.Context, bucket, key string, value []byte, embeddingModel string, ttl time.Duration) error
	CacheDelete(ctx context.Context, bucket, key string) error
}

// TypedCache serializes values of type T into one cache bucket.
type TypedCache[T any] struct {
	store  Store
	bucket string
	ttl    time.Duration
}

func NewTypedCache[T any](store Store, bucket string, ttl time.Duration) *TypedCache[T] {
	return &TypedCache[T]{store: store, bucket: bucket, ttl: ttl}
}

// Get returns the cached value and its hit count (after counting this hit).
// An entry tagged with a different embedding model than requested is
// invalidated and reported as a miss. Pass model "" to skip the model check.
func (c *TypedCache[T]) Get(ctx context.Context, key, model string) (T, int, bool, error) {
	var zero T

	entry, ok, err := c.store.CacheGet(ctx, c.bucket, key)
	if err != nil || !ok {
		metrics.CacheMisses.WithLabelValues(c.bucket).Inc()
		return zero, 0, false, err
	}

	if model != "" && entry.EmbeddingModel != "" && entry.EmbeddingModel != model {
		c.store.CacheDelete(ctx, c.bucket, key)
		metrics.CacheMisses.WithLabelValues(c.bucket).Inc()
		return zero, 0, false, nil
	}

	var value T
	if err := json.Unmarshal(entry.Value, &value); err != nil {
		// Corrupt payload: drop it and treat as miss.
		c.store.CacheDelete(ctx, c.bucket, key)
		metrics.CacheMisses.WithLabelValues(c.bucket).Inc()
		return zero, 0, false, nil
	}

	metrics.CacheHits.WithLabelValues(c.bucket).Inc()
	return value, entry.HitCount, true, nil
}

func (c *TypedCache[T]) Put(ctx context.Context, key, model string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return c.store.CachePut(ctx, c.bucket, key, data, model, c.ttl)
}

// ClassificationKey builds the (session_id, query_hash) composite key for
// the classification cache.
func ClassificationKey(sessionID, queryHash string) string {
	return sessionID + ":" + queryHash
}

// Buckets re-exported so callers need not import the storage driver.
const (
	BucketClassification = sqlite.BucketClassification
	BucketQASimilarity   = sqlite.BucketQASimilarity
)
