package embed

import (
	"context"
	"sync"
	"time"

	"github.com/dealscout/backend/internal/domain"
)

// cacheItem is a single cached vector with expiration.
type cacheItem struct {
	vector     []float32
	expiration time.Time
}

// CachedEmbedder wraps an Embedder with a thread-safe in-memory TTL cache
// keyed by the input text, so repeated queries and re-ingested records do
// not hit the embedding backend again.
type CachedEmbedder struct {
	inner domain.Embedder
	ttl   time.Duration

	mutex sync.RWMutex
	data  map[string]cacheItem
}

// NewCachedEmbedder wraps inner with a TTL cache. A zero TTL defaults to
// one hour.
func NewCachedEmbedder(inner domain.Embedder, ttl time.Duration) *CachedEmbedder {
	if ttl == 0 {
		ttl = time.Hour
	}
	cache := &CachedEmbedder{
		inner: inner,
		ttl:   ttl,
		data:  make(map[string]cacheItem),
	}

	// Remove expired entries periodically so long-running servers do not
	// accumulate every ingested product text forever.
	go cache.cleanupExpired()

	return cache
}

// Embed returns the cached vector when present and unexpired, otherwise
// delegates to the wrapped embedder and stores the result.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mutex.RLock()
	item, exists := c.data[text]
	c.mutex.RUnlock()

	if exists && time.Now().Before(item.expiration) {
		return item.vector, nil
	}

	vector, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.mutex.Lock()
	c.data[text] = cacheItem{vector: vector, expiration: time.Now().Add(c.ttl)}
	c.mutex.Unlock()

	return vector, nil
}

// Dimension reports the wrapped embedder's dimensionality.
func (c *CachedEmbedder) Dimension() int { return c.inner.Dimension() }

// Size returns the current number of cached vectors.
func (c *CachedEmbedder) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.data)
}

func (c *CachedEmbedder) cleanupExpired() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.mutex.Lock()
		now := time.Now()
		for key, item := range c.data {
			if now.After(item.expiration) {
				delete(c.data, key)
			}
		}
		c.mutex.Unlock()
	}
}
