// Package cache provides caching for ranking results and gene summaries.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/allegro/bigcache/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Config contains cache configuration.
type Config struct {
	ResultCacheSizeMB int
	ResultTTL         time.Duration
	SummaryCacheSize  int
}

// Manager manages result and gene summary caches.
type Manager struct {
	resultCache  *bigcache.BigCache
	summaryCache *lru.Cache[string, []byte]
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	resultCacheConfig := bigcache.Config{
		Shards:             1024,
		LifeWindow:         cfg.ResultTTL,
		CleanWindow:        cfg.ResultTTL / 2,
		MaxEntriesInWindow: 10000,
		MaxEntrySize:       1024 * 1024, // 1MB per serialized result set
		HardMaxCacheSize:   cfg.ResultCacheSizeMB,
		Verbose:            false,
	}

	resultCache, err := bigcache.New(context.Background(), resultCacheConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}

	summaryCache, err := lru.New[string, []byte](cfg.SummaryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create summary cache: %w", err)
	}

	return &Manager{
		resultCache:  resultCache,
		summaryCache: summaryCache,
	}, nil
}

// GetResult retrieves a serialized ranking result from cache.
func (m *Manager) GetResult(key string) ([]byte, bool) {
	data, err := m.resultCache.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetResult stores a serialized ranking result in cache.
func (m *Manager) SetResult(key string, data []byte) error {
	return m.resultCache.Set(key, data)
}

// GetSummary retrieves a gene summary from cache.
func (m *Manager) GetSummary(key string) ([]byte, bool) {
	return m.summaryCache.Get(key)
}

// SetSummary stores a gene summary in cache.
func (m *Manager) SetSummary(key string, data []byte) {
	m.summaryCache.Add(key, data)
}

// ResultKey generates a deterministic cache key for a ranking request.
// Params are hashed with map keys sorted so equivalent requests share
// one entry.
func ResultKey(datasetID string, params map[string]interface{}) string {
	h := sha256.New()
	h.Write([]byte("rank:" + datasetID))

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, _ := json.Marshal(params[k])
		h.Write([]byte(k + "="))
		h.Write(v)
	}
	return "rank:" + datasetID + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}

// SummaryKey generates a cache key for a gene summary.
func SummaryKey(datasetID, gene string, useRaw bool) string {
	return fmt.Sprintf("summary:%s:%s:%t", datasetID, gene, useRaw)
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	return map[string]interface{}{
		"result_cache_len":  m.resultCache.Len(),
		"result_cache_cap":  m.resultCache.Capacity(),
		"summary_cache_len": m.summaryCache.Len(),
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	return m.resultCache.Close()
}
