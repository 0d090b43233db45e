package geo

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"sync"

	"github.com/couchcryptid/tank-siting/internal/domain"
)

// CachedCalculator wraps a Calculator with an in-memory LRU cache. Sessions
// re-run stages and every boundary merge recomputes all located tanks, so
// identical (boundary, point) queries repeat often.
type CachedCalculator struct {
	inner Calculator
	cache *lruCache
}

// NewCachedCalculator creates a cache decorator around a calculator.
func NewCachedCalculator(inner Calculator, maxEntries int) *CachedCalculator {
	return &CachedCalculator{
		inner: inner,
		cache: newLRUCache(maxEntries),
	}
}

// Distance implements Calculator. Only successful results are cached; a
// failing ring is re-validated (and re-repaired) on every call.
func (c *CachedCalculator) Distance(point domain.Coordinate, boundary []domain.Coordinate) (BoundaryResult, error) {
	key := cacheKey(point, boundary)
	if result, ok := c.cache.get(key); ok {
		return result, nil
	}
	result, err := c.inner.Distance(point, boundary)
	if err != nil {
		return result, err
	}
	c.cache.put(key, result)
	return result, nil
}

// cacheKey fingerprints the query: the point at full precision plus an FNV
// hash over the ring's raw coordinate bits.
func cacheKey(point domain.Coordinate, boundary []domain.Coordinate) string {
	h := fnv.New64a()
	var buf [16]byte
	for _, v := range boundary {
		binary.LittleEndian.PutUint64(buf[:8], math.Float64bits(v.Lon))
		binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(v.Lat))
		h.Write(buf[:])
	}
	return fmt.Sprintf("%x|%x|%x", h.Sum64(), math.Float64bits(point.Lon), math.Float64bits(point.Lat))
}

// lruCache is a simple thread-safe LRU cache for boundary results.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value BoundaryResult
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (BoundaryResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return BoundaryResult{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value BoundaryResult) {
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
