package imgsrc

import (
	"sync"

	"github.com/rawforge/develop/operator"
)

// Pool is a thread-safe pool of reusable operator.Buffer instances, bucketed
// by width/height so same-sized tiles and mipmap levels can be recycled
// instead of reallocated on every pipeline run. Generalizes the source's
// image buffer pool (internal/image/pool.go) from 8-bit display pixmaps to
// the linear float32 buffers a develop pipeline passes between operators.
type Pool struct {
	mu      sync.Mutex
	buckets map[poolKey][]*operator.Buffer
	maxSize int
}

type poolKey struct {
	width, height int
}

// NewPool creates a pool retaining at most maxPerBucket buffers per
// width/height bucket. A maxPerBucket of 0 means unlimited.
func NewPool(maxPerBucket int) *Pool {
	return &Pool{buckets: make(map[poolKey][]*operator.Buffer), maxSize: maxPerBucket}
}

// Get returns a buffer sized width x height, zeroed, either recycled from
// the pool or freshly allocated.
func (p *Pool) Get(width, height int) *operator.Buffer {
	key := poolKey{width, height}
	stride := width * 4

	p.mu.Lock()
	bucket := p.buckets[key]
	if len(bucket) > 0 {
		buf := bucket[len(bucket)-1]
		p.buckets[key] = bucket[:len(bucket)-1]
		p.mu.Unlock()
		clear(buf.Data)
		return buf
	}
	p.mu.Unlock()

	return &operator.Buffer{
		Width:  width,
		Height: height,
		Stride: stride,
		Data:   make([]float32, stride*height),
	}
}

// Put returns buf to the pool for reuse. Buffers beyond the bucket's
// capacity are dropped for the garbage collector to reclaim.
func (p *Pool) Put(buf *operator.Buffer) {
	if buf == nil {
		return
	}
	key := poolKey{buf.Width, buf.Height}

	p.mu.Lock()
	defer p.mu.Unlock()
	bucket := p.buckets[key]
	if p.maxSize > 0 && len(bucket) >= p.maxSize {
		return
	}
	p.buckets[key] = append(bucket, buf)
}

var defaultPool = NewPool(8)

// GetFromDefault retrieves a buffer from the package-level default pool.
func GetFromDefault(width, height int) *operator.Buffer { return defaultPool.Get(width, height) }

// PutToDefault returns a buffer to the package-level default pool.
func PutToDefault(buf *operator.Buffer) { defaultPool.Put(buf) }
