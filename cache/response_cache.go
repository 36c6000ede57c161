package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ResponseCache maps (question, model identity, sampling parameters) to a
// previously generated answer. Entries expire after a TTL and are purged
// lazily on lookup; when the cache is full, an insert evicts the single
// entry with the oldest insertion timestamp. One mutex guards the whole
// structure: this cache is not a throughput-critical path.
type ResponseCache struct {
	mu       sync.Mutex
	entries  map[string]*cachedResponse
	capacity int
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

type cachedResponse struct {
	response string
	storedAt time.Time
}

func New(capacity int, ttl time.Duration, logger *zap.Logger) *ResponseCache {
	if capacity <= 0 {
		capacity = 100
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ResponseCache{
		entries:  make(map[string]*cachedResponse),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
	}
}

// Get returns the cached answer for the given lookup tuple. An expired
// entry is removed and reported as a miss, never served stale. A failed key
// computation also degrades to a miss: the cache must never block the
// normal query path.
func (c *ResponseCache) Get(question, model string, params map[string]any) (string, bool) {
	key, err := cacheKey(question, model, params)
	if err != nil {
		c.logger.Warn("Response cache key computation failed, treating as miss", zap.Error(err))
		return "", false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		delete(c.entries, key)
		return "", false
	}
	return entry.response, true
}

// Put stores an answer under the lookup tuple, evicting the oldest entry
// when at capacity.
func (c *ResponseCache) Put(question, model string, params map[string]any, response string) {
	key, err := cacheKey(question, model, params)
	if err != nil {
		c.logger.Warn("Response cache key computation failed, skipping store", zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.capacity {
		c.evictOldestLocked()
	}
	c.entries[key] = &cachedResponse{response: response, storedAt: c.now()}
}

// Len returns the number of entries currently held, expired or not.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ResponseCache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.storedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.storedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// cacheKey derives a deterministic digest of the lookup tuple. The params
// mapping is serialized through encoding/json, which writes map keys in
// sorted order, so key derivation is order-independent.
func cacheKey(question, model string, params map[string]any) (string, error) {
	payload := map[string]any{
		"question": question,
		"model":    model,
		"params":   params,
	}
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}
