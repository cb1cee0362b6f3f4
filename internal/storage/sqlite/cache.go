package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tutor-agent/backend/internal/storage/models"
	"github.com/tutor-agent/backend/pkg/logger"
)

// Cache buckets map to dedicated tables, created lazily on first use so a
// fresh database needs no migration step before serving.
const (
	BucketClassification = "classification_cache"
	BucketQASimilarity   = "qa_similarity_cache"
)

var validBuckets = map[string]bool{
	BucketClassification: true,
	BucketQASimilarity:   true,
}

func (c *Client) ensureCacheTable(ctx context.Context, bucket string) error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		embedding_model TEXT,
		expires_at INTEGER NOT NULL,
		hit_count INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_%s_expires ON %s(expires_at);
	`, bucket, bucket, bucket)

	_, err := c.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to create cache table %s: %w", bucket, err)
	}
	return nil
}

// CacheGet returns the live entry for key, counting the hit. Expired entries
// are deleted and reported as a miss. A missing table is created and treated
// as a miss rather than an error.
func (c *Client) CacheGet(ctx context.Context, bucket, key string) (*models.CacheEntry, bool, error) {
	if !validBuckets[bucket] {
		return nil, false, fmt.Errorf("unknown cache bucket: %s", bucket)
	}

	query := fmt.Sprintf(
		`SELECT value, embedding_model, expires_at, hit_count FROM %s WHERE key = ?`, bucket)

	var entry models.CacheEntry
	var model sql.NullString
	var expiresAt int64

	err := c.db.QueryRowContext(ctx, query, key).Scan(&entry.Value, &model, &expiresAt, &entry.HitCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		if isMissingTable(err) {
			if createErr := c.ensureCacheTable(ctx, bucket); createErr != nil {
				logger.Warn("Failed to create missing cache table", zap.Error(createErr))
			}
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cache: %w", err)
	}

	entry.Key = key
	entry.EmbeddingModel = model.String
	entry.ExpiresAt = time.Unix(expiresAt, 0)

	if time.Now().After(entry.ExpiresAt) {
		c.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, bucket), key)
		return nil, false, nil
	}

	entry.HitCount++
	c.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET hit_count = hit_count + 1 WHERE key = ?`, bucket), key)

	return &entry, true, nil
}

// CachePut upserts an entry. Concurrent writers for the same key are
// last-writer-wins, which is harmless for these caches.
func (c *Client) CachePut(ctx context.Context, bucket, key string, value []byte, embeddingModel string, ttl time.Duration) error {
	if !validBuckets[bucket] {
		return fmt.Errorf("unknown cache bucket: %s", bucket)
	}

	now := time.Now()
	query := fmt.Sprintf(`
		INSERT INTO %s (key, value, embedding_model, expires_at, hit_count, created_at)
		VALUES (?, ?, ?, ?, 0, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			embedding_model = excluded.embedding_model,
			expires_at = excluded.expires_at,
			hit_count = 0,
			created_at = excluded.created_at
	`, bucket)

	_, err := c.db.ExecContext(ctx, query, key, value, embeddingModel, now.Add(ttl).Unix(), now.Unix())
	if err != nil {
		if isMissingTable(err) {
			if createErr := c.ensureCacheTable(ctx, bucket); createErr != nil {
				return createErr
			}
			_, err = c.db.ExecContext(ctx, query, key, value, embeddingModel, now.Add(ttl).Unix(), now.Unix())
		}
		if err != nil {
			return fmt.Errorf("failed to write cache: %w", err)
		}
	}

	return nil
}

func (c *Client) CacheDelete(ctx context.Context, bucket, key string) error {
	if !validBuckets[bucket] {
		return fmt.Errorf("unknown cache bucket: %s", bucket)
	}

	_, err := c.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, bucket), key)
	if err != nil && !isMissingTable(err) {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}
