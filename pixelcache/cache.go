package pixelcache

import (
	"container/list"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rawforge/develop/errkind"
	"github.com/rawforge/develop/operator"
)

// listNode wraps a *container/list.Element so Entry can carry a typed
// back-reference without importing container/list into entry.go's public
// surface.
type listNode struct{ el *list.Element }

// Cache is the bounded Key -> Entry mapping, LRU-ordered via
// container/list and bounded by aggregate bytes, exactly generalizing
// scene/cache.go's LayerCache to refcounted, lockable entries.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*Entry
	lru     *list.List
	size    int64
	maxSize int64

	hits, misses, evictions atomic.Uint64
}

// New creates a pixel cache bounded to maxBytes of aggregate buffer size.
func New(maxBytes int64) *Cache {
	return &Cache{
		entries: make(map[Key]*Entry),
		lru:     list.New(),
		maxSize: maxBytes,
	}
}

// Lookup returns the live entry for key, moving it to the front of the LRU
// order, or (nil, false) on a miss.
func (c *Cache) Lookup(key Key) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.lru.MoveToFront(e.lruNode.el)
	c.hits.Add(1)
	return e, true
}

// Insert stores buf under key tagged with pipelineType. EXPORT and
// THUMBNAIL pipelines never populate the cache (§4.B sizing rule); Insert
// is a no-op for them. Replaces any existing entry under key. The
// returned entry starts at refcount 0; callers that need to hold a live
// reference across further work must Ref(entry, +1) themselves.
//
// If buf cannot be made to fit within maxSize even after evicting every
// refcount-0 entry, Insert does not insert buf and returns
// ErrResourceExhausted (§7 ResourceExhausted): the caller is expected to
// release further low-priority entries (ReleaseLowPriority) and retry once.
func (c *Cache) Insert(key Key, pipelineType PipelineType, buf *operator.Buffer) (*Entry, error) {
	if !pipelineType.Cacheable() {
		return &Entry{key: key, pipelineType: pipelineType, buf: buf, byteSize: bufferByteSize(buf)}, nil
	}

	size := bufferByteSize(buf)

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		c.lru.Remove(existing.lruNode.el)
		c.size -= existing.byteSize
		delete(c.entries, key)
	}

	if c.maxSize > 0 {
		c.evictUntilLocked(c.maxSize - size)
		if c.size+size > c.maxSize {
			return nil, ErrResourceExhausted
		}
	}

	e := &Entry{key: key, pipelineType: pipelineType, buf: buf, byteSize: size}
	el := c.lru.PushFront(e)
	e.lruNode = &listNode{el: el}
	c.entries[key] = e
	c.size += size
	return e, nil
}

// ReleaseLowPriority evicts every refcount-0 entry tagged Preview, the
// lower-priority pipeline type, regardless of LRU order. Called by an
// executor that just saw ErrResourceExhausted, before its one retry.
// Returns the number of bytes reclaimed.
func (c *Cache) ReleaseLowPriority() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var reclaimed int64
	for key, e := range c.entries {
		if e.pipelineType != Preview || e.refcount.Load() > 0 {
			continue
		}
		c.lru.Remove(e.lruNode.el)
		c.size -= e.byteSize
		reclaimed += e.byteSize
		delete(c.entries, key)
		c.evictions.Add(1)
	}
	return reclaimed
}

// Ref adjusts an entry's refcount by delta (+1 or -1). An entry with
// refcount > 0 is never evicted.
func (c *Cache) Ref(e *Entry, delta int32) {
	e.refcount.Add(delta)
}

// RdLock acquires e's read lock; callers must release it with RdUnlock.
func (e *Entry) RdLock()   { e.mu.RLock() }
func (e *Entry) RdUnlock() { e.mu.RUnlock() }

// WrLock acquires e's write lock, also marking it dirty; callers must
// release it with WrUnlock.
func (e *Entry) WrLock() {
	e.mu.Lock()
	e.dirty.Store(true)
}
func (e *Entry) WrUnlock() { e.mu.Unlock() }

// Remove evicts key unconditionally, regardless of refcount. Used for
// explicit cache-entry invalidation (e.g. IntegrityViolation escalation).
func (c *Cache) Remove(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.lru.Remove(e.lruNode.el)
	c.size -= e.byteSize
	delete(c.entries, key)
	c.evictions.Add(1)
	return true
}

// Flush removes every entry tagged with pipelineType. Raster masks are
// cleared alongside the pixel cache on flush by the caller (§4.G).
func (c *Cache) Flush(pipelineType PipelineType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, e := range c.entries {
		if e.pipelineType != pipelineType {
			continue
		}
		c.lru.Remove(e.lruNode.el)
		c.size -= e.byteSize
		delete(c.entries, key)
		removed++
	}
	c.evictions.Add(uint64(removed))
	return removed
}

// GetEntryFromData reverse-looks-up the entry currently wrapping buf,
// taking a read lock before returning it; the caller must release it with
// RdUnlock. Returns (nil, false) if no cached entry wraps buf.
func (c *Cache) GetEntryFromData(buf *operator.Buffer) (*Entry, bool) {
	c.mu.Lock()
	var found *Entry
	for _, e := range c.entries {
		if e.buf == buf {
			found = e
			break
		}
	}
	c.mu.Unlock()
	if found == nil {
		return nil, false
	}
	found.RdLock()
	return found, true
}

// evictUntilLocked evicts LRU-tail, refcount-0 entries until the cache is
// at or below targetSize. Caller must hold c.mu.
func (c *Cache) evictUntilLocked(targetSize int64) {
	if targetSize < 0 {
		targetSize = 0
	}
	el := c.lru.Back()
	for c.size > targetSize && el != nil {
		e := el.Value.(*Entry)
		prev := el.Prev()
		if e.refcount.Load() > 0 {
			el = prev
			continue
		}
		c.lru.Remove(el)
		c.size -= e.byteSize
		delete(c.entries, e.key)
		c.evictions.Add(1)
		el = prev
	}
}

// Stats reports cache hit/miss/eviction counters and current aggregate
// size.
type Stats struct {
	Hits, Misses, Evictions uint64
	Size, MaxSize           int64
	Entries                 int
}

// Stats returns a snapshot of the cache's counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.size,
		MaxSize:   c.maxSize,
		Entries:   len(c.entries),
	}
}

// ErrResourceExhausted is returned by Insert when the cache could not back
// a buffer within its byte budget even after evicting every evictable
// entry (§7 ResourceExhausted).
var ErrResourceExhausted = fmt.Errorf("pixelcache: %w", errkind.ErrResourceExhausted)
