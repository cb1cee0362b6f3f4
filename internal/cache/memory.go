package cache

import (
	"context"
	"sync"
	"time"

	"github.com/tutor-agent/backend/internal/storage/models"
)

// MemoryStore is an in-process Store used when no database is configured
// and as a test double. Semantics mirror the SQLite store: expiry checked
// on read, hit counting, last-writer-wins upserts.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]map[string]*models.CacheEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]map[string]*models.CacheEntry)}
}

func (m *MemoryStore) CacheGet(ctx context.Context, bucket, key string) (*models.CacheEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, ok := m.buckets[bucket]
	if !ok {
		return nil, false, nil
	}

	entry, ok := entries[key]
	if !ok {
		return nil, false, nil
	}

	if time.Now().After(entry.ExpiresAt) {
		delete(entries, key)
		return nil, false, nil
	}

	entry.HitCount++
	copied := *entry
	return &copied, true, nil
}

func (m *MemoryStore) CachePut(ctx context.Context, bucket, key string, value []byte, embeddingModel string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, ok := m.buckets[bucket]
	if !ok {
		entries = make(map[string]*models.CacheEntry)
		m.buckets[bucket] = entries
	}

	now := time.Now()
	entries[key] = &models.CacheEntry{
		Key:            key,
		Value:          append([]byte(nil), value...),
		EmbeddingModel: embeddingModel,
		ExpiresAt:      now.Add(ttl),
		CreatedAt:      now,
	}
	return nil
}

func (m *MemoryStore) CacheDelete(ctx context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entries, ok := m.buckets[bucket]; ok {
		delete(entries, key)
	}
	return nil
}
