package metacache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Mode selects which lock a Get/TryGet acquires.
type Mode int

const (
	// ReadMode acquires the entry's RLock.
	ReadMode Mode = iota
	// WriteMode acquires the entry's Lock.
	WriteMode
)

// ReleaseMode controls what Release does with a write-acquired handle.
type ReleaseMode int

const (
	// Safe schedules write-back to both the relational store and the sidecar.
	Safe ReleaseMode = iota
	// Relaxed schedules write-back to the relational store only.
	Relaxed
	// Minimal releases the lock only, discarding any pending write.
	Minimal
)

// SeedOutcome reports what Seed did with a record.
type SeedOutcome int

const (
	SeedInserted SeedOutcome = iota
	SeedPresent
	SeedFailed
)

type entry struct {
	mu       sync.RWMutex
	refcount atomic.Int32
	dirty    atomic.Bool
	record   *Record
	node     *lruNode
}

// Handle is a live reference to a cached record, held under either a read
// or write lock until Release is called.
type Handle struct {
	id     ImageID
	mode   Mode
	e      *entry
	c      *Cache
	record *Record // the entry's live record pointer, in both modes
}

// Record returns the handle's record. Under WriteMode the caller may mutate
// the returned pointer's fields directly; under ReadMode it must not.
func (h *Handle) Record() *Record { return h.record }

// lruNode is a doubly-linked LRU list node, generalizing the source's
// generic internal/cache/lru.go to this package's ImageID key.
type lruNode struct {
	key        ImageID
	prev, next *lruNode
}

type lruList struct {
	head, tail *lruNode
	len        int
}

func (l *lruList) PushFront(key ImageID) *lruNode {
	n := &lruNode{key: key}
	if l.head == nil {
		l.head, l.tail = n, n
	} else {
		n.next = l.head
		l.head.prev = n
		l.head = n
	}
	l.len++
	return n
}

func (l *lruList) MoveToFront(n *lruNode) {
	if n == nil || n == l.head {
		return
	}
	l.unlink(n)
	n.prev = nil
	n.next = l.head
	if l.head != nil {
		l.head.prev = n
	}
	l.head = n
	if l.tail == nil {
		l.tail = n
	}
	l.len++
}

func (l *lruList) Remove(n *lruNode) {
	if n == nil {
		return
	}
	l.unlink(n)
}

func (l *lruList) unlink(n *lruNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next = nil, nil
	l.len--
}

// Cache is the bounded imgId -> ImageRecord mapping (§4.A). Eviction is
// strict LRU among refcount-0 entries; dirty entries write back to the
// store and the sidecar (whatever the last ReleaseMode was) before their
// memory is reclaimed.
type Cache struct {
	mu         sync.Mutex
	entries    map[ImageID]*entry
	lru        lruList
	maxEntries int
	store      Store
	sidecar    Sidecar

	hits, misses, evictions atomic.Uint64
}

// New creates a metadata cache bounded to maxEntries, backed by store and
// sidecar. sidecar may be nil if no on-disk sidecar writer is configured.
func New(store Store, sidecar Sidecar, maxEntries int) *Cache {
	return &Cache{
		entries:    make(map[ImageID]*entry),
		maxEntries: maxEntries,
		store:      store,
		sidecar:    sidecar,
	}
}

func normalizeRecordText(r *Record) {
	r.Filename = norm.NFC.String(r.Filename)
	r.FullPath = norm.NFC.String(r.FullPath)
	r.Folder = norm.NFC.String(r.Folder)
	r.Maker = norm.NFC.String(r.Maker)
	r.Model = norm.NFC.String(r.Model)
	r.Lens = norm.NFC.String(r.Lens)
}

// Get blocks until the entry for id is available under the requested lock,
// loading from the store on first access. A negative id returns a freshly
// zero-initialized record for an in-progress import, not cached.
func (c *Cache) Get(ctx context.Context, id ImageID, mode Mode) (*Handle, error) {
	if id < 0 {
		return c.freshHandle(id, mode), nil
	}

	e, loaded, err := c.acquireEntry(ctx, id, false)
	if err != nil {
		return nil, err
	}
	_ = loaded
	return c.lockHandle(id, e, mode), nil
}

// TryGet is the non-blocking variant of Get: it never performs store I/O
// and never waits on lock contention; it only returns entries already
// resident and immediately lockable.
func (c *Cache) TryGet(id ImageID, mode Mode) (*Handle, bool) {
	c.mu.Lock()
	e, ok := c.entries[id]
	if ok {
		c.lru.MoveToFront(e.node)
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	c.mu.Unlock()
	if !ok {
		return nil, false
	}

	locked := false
	if mode == WriteMode {
		locked = e.mu.TryLock()
	} else {
		locked = e.mu.TryRLock()
	}
	if !locked {
		return nil, false
	}
	e.refcount.Add(1)
	return &Handle{id: id, mode: mode, e: e, c: c, record: e.record}, true
}

// GetReload reloads id from the store unconditionally, bypassing any
// cached copy, before returning a handle under the requested lock.
func (c *Cache) GetReload(ctx context.Context, id ImageID, mode Mode) (*Handle, error) {
	if id < 0 {
		return c.freshHandle(id, mode), nil
	}
	e, _, err := c.acquireEntry(ctx, id, true)
	if err != nil {
		return nil, err
	}
	return c.lockHandle(id, e, mode), nil
}

func (c *Cache) freshHandle(id ImageID, mode Mode) *Handle {
	e := &entry{record: &Record{ID: id}}
	if mode == WriteMode {
		e.mu.Lock()
	} else {
		e.mu.RLock()
	}
	e.refcount.Add(1)
	return &Handle{id: id, mode: mode, e: e, c: nil, record: e.record}
}

func (c *Cache) acquireEntry(ctx context.Context, id ImageID, forceReload bool) (*entry, bool, error) {
	c.mu.Lock()
	e, ok := c.entries[id]
	if ok && !forceReload {
		c.lru.MoveToFront(e.node)
		c.hits.Add(1)
		c.mu.Unlock()
		return e, true, nil
	}
	c.misses.Add(1)
	c.mu.Unlock()

	if c.store == nil {
		return nil, false, fmt.Errorf("metacache: no store configured to load id %d", id)
	}
	rec, err := c.store.Load(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("metacache: load id %d: %w", id, err)
	}
	normalizeRecordText(rec)

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[id]; ok && !forceReload {
		c.lru.MoveToFront(existing.node)
		return existing, true, nil
	}
	if existing, ok := c.entries[id]; ok {
		c.lru.Remove(existing.node)
	}
	ne := &entry{record: rec}
	ne.node = c.lru.PushFront(id)
	c.entries[id] = ne
	c.evictLocked()
	return ne, false, nil
}

func (c *Cache) lockHandle(id ImageID, e *entry, mode Mode) *Handle {
	if mode == WriteMode {
		e.mu.Lock()
	} else {
		e.mu.RLock()
	}
	e.refcount.Add(1)
	return &Handle{id: id, mode: mode, e: e, c: c, record: e.record}
}

// Seed inserts a fully-formed record without touching the store.
func (c *Cache) Seed(r *Record) SeedOutcome {
	if r == nil || r.ID <= 0 {
		return SeedFailed
	}
	normalizeRecordText(r)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[r.ID]; ok {
		return SeedPresent
	}
	ne := &entry{record: r.clone()}
	ne.node = c.lru.PushFront(r.ID)
	c.entries[r.ID] = ne
	c.evictLocked()
	return SeedInserted
}

// Release drops the handle's lock. Under WriteMode, writeMode selects what
// write-back (if any) is scheduled.
func (h *Handle) Release(ctx context.Context, writeMode ReleaseMode) error {
	defer func() {
		if h.mode == WriteMode {
			h.e.mu.Unlock()
		} else {
			h.e.mu.RUnlock()
		}
		h.e.refcount.Add(-1)
	}()

	if h.mode != WriteMode || h.c == nil {
		return nil
	}
	switch writeMode {
	case Minimal:
		return nil
	case Relaxed:
		h.e.dirty.Store(true)
		return h.c.writeBack(ctx, h.e, false)
	default: // Safe
		h.e.dirty.Store(true)
		return h.c.writeBack(ctx, h.e, true)
	}
}

func (c *Cache) writeBack(ctx context.Context, e *entry, withSidecar bool) error {
	if c.store == nil {
		return fmt.Errorf("metacache: no store configured for write-back")
	}
	if err := c.store.Save(ctx, e.record); err != nil {
		return fmt.Errorf("metacache: save id %d: %w", e.record.ID, err)
	}
	e.dirty.Store(false)
	if withSidecar && c.sidecar != nil {
		if err := c.sidecar.Write(ctx, e.record, nil); err != nil {
			return fmt.Errorf("metacache: sidecar write id %d: %w", e.record.ID, err)
		}
	}
	return nil
}

// Remove removes the entry for id from the cache (not a store deletion).
func (c *Cache) Remove(id ImageID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return false
	}
	c.lru.Remove(e.node)
	delete(c.entries, id)
	return true
}

func (c *Cache) stamp(ctx context.Context, id ImageID, set func(r *Record, t time.Time)) error {
	h, err := c.Get(ctx, id, WriteMode)
	if err != nil {
		return err
	}
	set(h.Record(), time.Now())
	return h.Release(ctx, Safe)
}

// SetExportTimestamp write-locks id and stamps its export time.
func (c *Cache) SetExportTimestamp(ctx context.Context, id ImageID) error {
	return c.stamp(ctx, id, func(r *Record, t time.Time) { r.ExportedAt = t })
}

// SetPrintTimestamp write-locks id and stamps its print time.
func (c *Cache) SetPrintTimestamp(ctx context.Context, id ImageID) error {
	return c.stamp(ctx, id, func(r *Record, t time.Time) { r.PrintedAt = t })
}

// SetChangeTimestamp write-locks id and stamps its change time.
func (c *Cache) SetChangeTimestamp(ctx context.Context, id ImageID) error {
	return c.stamp(ctx, id, func(r *Record, t time.Time) { r.ChangedAt = t })
}

// evictLocked evicts refcount-0 entries from the LRU tail until the cache
// is at or under maxEntries. Caller must hold c.mu. Dirty entries are
// written back to the store before their memory is reclaimed, per the
// cache's durability invariant. A maxEntries of 0 means unlimited.
func (c *Cache) evictLocked() {
	if c.maxEntries <= 0 {
		return
	}
	for len(c.entries) > c.maxEntries {
		n := c.lru.tail
		for n != nil && c.entries[n.key].refcount.Load() > 0 {
			n = n.prev
		}
		if n == nil {
			return
		}
		evicted := c.entries[n.key]
		if evicted.dirty.Load() {
			if err := c.writeBack(context.Background(), evicted, true); err != nil {
				slog.Error("metacache: write-back on eviction failed", "id", n.key, "error", err)
			}
		}
		c.lru.Remove(n)
		delete(c.entries, n.key)
		c.evictions.Add(1)
	}
}

// Stats reports cache hit/miss/eviction counters.
type Stats struct {
	Hits, Misses, Evictions uint64
	Len                     int
}

// Stats returns a snapshot of the cache's counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	n := len(c.entries)
	c.mu.Unlock()
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Len:       n,
	}
}
