package openai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/couchcryptid/coastal-risk-service/internal/domain"
	"github.com/couchcryptid/coastal-risk-service/internal/observability"
)

// CachedAnalyzer wraps a VisionAnalyzer with an in-memory LRU cache keyed by
// the image contents, so reruns on unchanged imagery skip the model call.
type CachedAnalyzer struct {
	inner   domain.VisionAnalyzer
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedAnalyzer creates a cache decorator around an analyzer.
func NewCachedAnalyzer(inner domain.VisionAnalyzer, maxEntries int, metrics *observability.Metrics) *CachedAnalyzer {
	return &CachedAnalyzer{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedAnalyzer) AnalyzeVegetation(ctx context.Context, before, after domain.Image) (domain.VisionReport, error) {
	key := imagePairKey(before, after)
	if report, ok := c.cache.get(key); ok {
		c.metrics.VisionCache.WithLabelValues("hit").Inc()
		return report, nil
	}
	c.metrics.VisionCache.WithLabelValues("miss").Inc()

	report, err := c.inner.AnalyzeVegetation(ctx, before, after)
	if err != nil {
		return report, err
	}
	c.cache.put(key, report)
	return report, nil
}

func imagePairKey(before, after domain.Image) string {
	h := sha256.New()
	h.Write(before.Data)
	h.Write([]byte{0})
	h.Write(after.Data)
	return hex.EncodeToString(h.Sum(nil))
}

// lruCache is a simple thread-safe LRU cache for VisionReports.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value domain.VisionReport
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (domain.VisionReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.VisionReport{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value domain.VisionReport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.unlink(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.unlink(c.tail)
}
