package pixelcache

import (
	"sync"
	"sync/atomic"

	"github.com/rawforge/develop/operator"
)

// Entry is one cached intermediate buffer. Unlike the source's LayerCache
// entries, Entry carries its own RWMutex and refcount: multiple executor
// stages may hold a live reference to the same buffer while it is eligible
// for (but not undergoing) eviction.
type Entry struct {
	mu       sync.RWMutex
	refcount atomic.Int32
	dirty    atomic.Bool

	key          Key
	pipelineType PipelineType
	buf          *operator.Buffer
	byteSize     int64

	lruNode *listNode
}

// Buffer returns the cached buffer. Callers must hold a read or write lock
// (via RdLock/WrLock) before accessing its Data.
func (e *Entry) Buffer() *operator.Buffer { return e.buf }

// Refcount returns the entry's current reference count.
func (e *Entry) Refcount() int32 { return e.refcount.Load() }

func bufferByteSize(buf *operator.Buffer) int64 {
	if buf == nil {
		return 0
	}
	return int64(len(buf.Data)) * 4
}
