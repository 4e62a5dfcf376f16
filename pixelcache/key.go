// Package pixelcache implements the content-addressed store of intermediate
// pipeline image buffers (§4.B Pixel Cache): a mapping PixelCacheKey ->
// CacheEntry(ImageBuffer) bounded by aggregate bytes, with refcounted,
// RW-locked entries. Generalizes the source's scene/cache.go LayerCache
// from single-use display pixmaps to buffers multiple pipeline stages can
// hold live references to simultaneously.
package pixelcache

import "hash/fnv"

// PipelineType tags which kind of pipeline produced a cached buffer.
// EXPORT and THUMBNAIL renders never populate the cache (§4.B sizing
// rule); PREVIEW and FULL do.
type PipelineType int

const (
	Preview PipelineType = iota
	Full
	Thumbnail
	Export
)

// Cacheable reports whether buffers produced by a pipeline of this type
// are allowed to enter the cache at all.
func (t PipelineType) Cacheable() bool {
	return t == Preview || t == Full
}

// Key is the 64-bit rolling hash identifying one cached buffer: operator
// identity, parameters, blend parameters, enabled state, ROI, and the
// upstream key all fold into it, so any upstream change changes every
// downstream key too.
type Key uint64

// RootKey seeds a hash chain for a pipeline run tagged with pipelineType.
func RootKey(pipelineType PipelineType) Key {
	h := fnv.New64a()
	_, _ = h.Write([]byte{byte(pipelineType)})
	return Key(h.Sum64())
}

// Fold extends upstream with one piece's identity/params/blend/enabled/ROI,
// producing that piece's own cache key. ROI is folded via the stable byte
// form the caller supplies (the pipeline encodes X, Y, Width and Height;
// Scale is not part of it).
func (upstream Key) Fold(opName string, multiPriority int, enabled bool, params, blend []byte, roiBytes []byte) Key {
	h := fnv.New64a()
	var buf [8]byte
	putU64(buf[:], uint64(upstream))
	_, _ = h.Write(buf[:])
	_, _ = h.Write([]byte(opName))
	putU64(buf[:], uint64(int64(multiPriority)))
	_, _ = h.Write(buf[:])
	if enabled {
		_, _ = h.Write([]byte{1})
	} else {
		_, _ = h.Write([]byte{0})
	}
	_, _ = h.Write(params)
	_, _ = h.Write(blend)
	_, _ = h.Write(roiBytes)
	return Key(h.Sum64())
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
