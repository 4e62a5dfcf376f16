package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/rawforge/develop/operator"
	"github.com/rawforge/develop/pixelcache"
)

// Pipeline is one end-to-end render target: a pipeline type, its piece
// graph, and the rendering state the executor mutates (§3 Pipeline).
type Pipeline struct {
	ImageID int64
	Type    PipelineType

	InputWidth, InputHeight         int
	ProcessedWidth, ProcessedHeight int

	Graph *Graph

	status     atomic.Int32
	shutdown   atomic.Bool
	running    atomic.Bool
	processing atomic.Bool

	backbufMu     sync.Mutex
	backbuf       *operator.Buffer
	backbufHash   pixelcache.Key
	outputBackbuf *operator.Buffer

	timeoutMicros atomic.Int64

	reentry     atomic.Bool
	reentryHash atomic.Uint64

	flushCacheRequested atomic.Bool

	lastHistoryHash atomic.Uint64
	lastROI         ROI

	roiMu        sync.Mutex
	requestedROI ROI

	pendingChange atomic.Int32 // ChangeSet of the next wake, -1 if none
}

// New creates an idle pipeline of the given type for imageID.
func New(imageID int64, t PipelineType) *Pipeline {
	p := &Pipeline{ImageID: imageID, Type: t, Graph: NewGraph()}
	p.status.Store(int32(Undef))
	p.pendingChange.Store(-1)
	return p
}

// Status returns the pipeline's current rendering status.
func (p *Pipeline) Status() Status { return Status(p.status.Load()) }

// SetStatus sets the pipeline's rendering status.
func (p *Pipeline) SetStatus(s Status) { p.status.Store(int32(s)) }

// MarkDirty sets status=DIRTY and records change as the pending change for
// the next wake, also flipping the shutdown kill-switch so any in-flight
// render on this pipeline unwinds promptly.
func (p *Pipeline) MarkDirty(change ChangeSet) {
	p.pendingChange.Store(int32(change))
	p.status.Store(int32(Dirty))
	p.shutdown.Store(true)
}

// PendingChange returns the change set recorded by the most recent
// MarkDirty, or (0, false) if none is pending.
func (p *Pipeline) PendingChange() (ChangeSet, bool) {
	v := p.pendingChange.Load()
	if v < 0 {
		return 0, false
	}
	return ChangeSet(v), true
}

// clearPendingChange resets the pending change marker once the executor
// has consumed it.
func (p *Pipeline) clearPendingChange() { p.pendingChange.Store(-1) }

// Shutdown reports whether the kill-switch is currently set.
func (p *Pipeline) Shutdown() bool { return p.shutdown.Load() }

// SetShutdown sets or clears the kill-switch.
func (p *Pipeline) SetShutdown(v bool) { p.shutdown.Store(v) }

// Running reports whether the executor's outer loop is alive.
func (p *Pipeline) Running() bool { return p.running.Load() }

// Processing reports whether a render is currently in flight.
func (p *Pipeline) Processing() bool { return p.processing.Load() }

// SetTimeoutMicros sets the coalescing timeout consulted at the top of the
// executor's outer loop.
func (p *Pipeline) SetTimeoutMicros(v int64) { p.timeoutMicros.Store(v) }

// TimeoutMicros returns and clears the coalescing timeout.
func (p *Pipeline) TimeoutMicros() int64 {
	return p.timeoutMicros.Swap(0)
}

// SetReentry records a re-entry request tagged with hash; the setter is
// later the only party allowed to clear it by presenting the same hash.
func (p *Pipeline) SetReentry(hash uint64) {
	p.reentryHash.Store(hash)
	p.reentry.Store(true)
}

// ReentryPending reports whether a re-entry is currently set, and the hash
// that set it.
func (p *Pipeline) ReentryPending() (uint64, bool) {
	return p.reentryHash.Load(), p.reentry.Load()
}

// ClearReentry clears a pending re-entry only if hash matches the one that
// set it. Returns true if cleared.
func (p *Pipeline) ClearReentry(hash uint64) bool {
	if !p.reentry.Load() || p.reentryHash.Load() != hash {
		return false
	}
	p.reentry.Store(false)
	return true
}

// ForceResetReentry unconditionally clears a pending re-entry, used when
// the ROI changes between iterations and the original setter's identifying
// hash is no longer valid.
func (p *Pipeline) ForceResetReentry() { p.reentry.Store(false) }

// RequestFlushCache marks that the next wake should flush this pipeline's
// cache entries before resyncing (a full-rebuild request).
func (p *Pipeline) RequestFlushCache() { p.flushCacheRequested.Store(true) }

// consumeFlushCacheRequest reports and clears the flush-cache request.
func (p *Pipeline) consumeFlushCacheRequest() bool {
	return p.flushCacheRequested.Swap(false)
}

// LastHistoryHash returns the history hash this pipeline last resynced
// against.
func (p *Pipeline) LastHistoryHash() uint64 { return p.lastHistoryHash.Load() }

// SetLastHistoryHash records the history hash this pipeline has resynced
// against.
func (p *Pipeline) SetLastHistoryHash(h uint64) { p.lastHistoryHash.Store(h) }

// Backbuf returns the pipeline's last rendered buffer and its cache key
// under the backbuf mutex.
func (p *Pipeline) Backbuf() (*operator.Buffer, pixelcache.Key) {
	p.backbufMu.Lock()
	defer p.backbufMu.Unlock()
	return p.backbuf, p.backbufHash
}

// setBackbuf stores buf as the newly rendered backbuf under the backbuf
// mutex, then copies it into output_backbuf (reallocating on dimension
// change), matching step (k) of the executor state machine.
func (p *Pipeline) setBackbuf(buf *operator.Buffer, key pixelcache.Key) {
	p.backbufMu.Lock()
	defer p.backbufMu.Unlock()
	p.backbuf = buf
	p.backbufHash = key
	if p.outputBackbuf == nil || p.outputBackbuf.Width != buf.Width || p.outputBackbuf.Height != buf.Height {
		p.outputBackbuf = &operator.Buffer{Width: buf.Width, Height: buf.Height, Stride: buf.Stride, Data: make([]float32, len(buf.Data))}
	}
	copy(p.outputBackbuf.Data, buf.Data)
}

// OutputBackbuf returns the pipeline's display copy under the backbuf
// mutex.
func (p *Pipeline) OutputBackbuf() *operator.Buffer {
	p.backbufMu.Lock()
	defer p.backbufMu.Unlock()
	return p.outputBackbuf
}

// SetRequestedROI records the output ROI the controller wants this
// pipeline to produce (viewport size, zoom, pan, in the processed-image
// coordinate space). Read by the executor's next ROI planning pass.
func (p *Pipeline) SetRequestedROI(r ROI) {
	p.roiMu.Lock()
	p.requestedROI = r
	p.roiMu.Unlock()
}

// RequestedROI returns the most recently requested output ROI.
func (p *Pipeline) RequestedROI() ROI {
	p.roiMu.Lock()
	defer p.roiMu.Unlock()
	return p.requestedROI
}
