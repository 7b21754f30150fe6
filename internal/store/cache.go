package store

import (
	"context"
	"sync"

	"github.com/couchcryptid/road-rainfall-speed/internal/domain"
	"github.com/couchcryptid/road-rainfall-speed/internal/observability"
)

// RecordReader is the read side of a record store.
type RecordReader interface {
	LoadRecord(ctx context.Context, road string) (domain.RoadModelRecord, error)
	ListRoads(ctx context.Context) ([]string, error)
}

// CachedStore wraps a RecordReader with an in-memory LRU cache keyed by
// normalised road. Entries are never invalidated: the model directory is not
// rewritten while a server reads it.
type CachedStore struct {
	inner   RecordReader
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedStore creates a cache decorator around a record reader.
func NewCachedStore(inner RecordReader, maxEntries int, metrics *observability.Metrics) *CachedStore {
	return &CachedStore{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedStore) LoadRecord(ctx context.Context, road string) (domain.RoadModelRecord, error) {
	key := domain.NormalizeRoad(road)
	if rec, ok := c.cache.get(key); ok {
		c.metrics.RecordCache.WithLabelValues("hit").Inc()
		return rec, nil
	}
	c.metrics.RecordCache.WithLabelValues("miss").Inc()

	rec, err := c.inner.LoadRecord(ctx, key)
	if err != nil {
		return rec, err
	}
	// Only cache modeled roads so a record written after startup is picked up.
	if !rec.IsEmpty() {
		c.cache.put(key, rec)
	}
	return rec, nil
}

func (c *CachedStore) ListRoads(ctx context.Context) ([]string, error) {
	return c.inner.ListRoads(ctx)
}

// lruCache is a simple thread-safe LRU cache of road records.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value domain.RoadModelRecord
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (domain.RoadModelRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.RoadModelRecord{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value domain.RoadModelRecord) {
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

func (c *lruCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
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

func (c *lruCache) remove(e *entry) {
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
	c.remove(c.tail)
}
