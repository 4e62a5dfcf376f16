package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rawforge/develop/accel"
	"github.com/rawforge/develop/config"
	"github.com/rawforge/develop/errkind"
	"github.com/rawforge/develop/mask"
	"github.com/rawforge/develop/operator"
	"github.com/rawforge/develop/pixelcache"
	"github.com/rawforge/develop/signalbus"
)

// FinishedEvent is the payload published on a pipeline's finished topic
// (§4.E step k / §4.H develop-ui-pipe-finished, develop-preview-pipe-finished).
type FinishedEvent struct {
	ImageID int64
	Type    PipelineType
	Status  Status
	Err     error
}

// ExecutorDeps bundles an Executor's collaborators so none of them are
// package-level globals (Design Notes, "Mutable-global state"); a
// develop.Controller constructs one set per pipeline.
type ExecutorDeps struct {
	Registry   *operator.Registry
	PixelCache *pixelcache.Cache
	MaskPool   *mask.Pool
	History    HistoryReader
	Input      InputSource
	Bus        *signalbus.Bus
	Config     config.Config

	// Buffers recycles output buffers across runs; may be nil, in which
	// case the executor allocates a fresh buffer per piece.
	Buffers BufferAllocator

	// Threadsafe serializes FULL-pipeline runs against a shared
	// heavyweight resource (e.g. a single GPU device queue), mirroring
	// the source's process-wide pipeline_threadsafe mutex (§5). The same
	// *sync.Mutex instance must be shared across a controller's main and
	// preview executors.
	Threadsafe *sync.Mutex

	// ActiveModule reports the name of the module currently under
	// interactive GUI edit, or "" if none (§4.D active-module override).
	// May be nil.
	ActiveModule func() string
}

// Executor drives one Pipeline end-to-end on its own long-lived goroutine
// (§4.E Pipeline Executor).
type Executor struct {
	pl   *Pipeline
	deps ExecutorDeps

	busyMu sync.Mutex
	exit   atomic.Bool
	done   chan struct{}
}

// NewExecutor creates an Executor driving pl. Run must be started on its
// own goroutine.
func NewExecutor(pl *Pipeline, deps ExecutorDeps) *Executor {
	return &Executor{pl: pl, deps: deps, done: make(chan struct{})}
}

// Pipeline returns the pipeline this executor drives.
func (e *Executor) Pipeline() *Pipeline { return e.pl }

// Exit signals the outer loop to stop after its current iteration. It does
// not itself abort a render in progress; pair with pl.SetShutdown(true) for
// an immediate stop.
func (e *Executor) Exit() { e.exit.Store(true) }

// Done returns a channel closed once Run's outer loop has returned.
func (e *Executor) Done() <-chan struct{} { return e.done }

// Run is the executor's outer loop: infinite, exits only when Exit has been
// called or ctx is done (§4.E "exits only when the controller's global
// exit flag is set").
func (e *Executor) Run(ctx context.Context) {
	e.pl.running.Store(true)
	defer func() {
		e.pl.running.Store(false)
		close(e.done)
	}()

	for !e.exit.Load() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t := e.pl.TimeoutMicros(); t > 0 {
			time.Sleep(time.Duration(t) * time.Microsecond)
		}

		reentryCount := 0
		for e.pl.Status() == Dirty && reentryCount < e.deps.Config.MaxReentriesPerWake {
			reentered := e.iterate(ctx)
			if e.exit.Load() {
				return
			}
			e.sleep(ctx, e.deps.Config.ExecutorIdleSleepMillis)
			if !reentered {
				break
			}
			reentryCount++
			e.pl.SetStatus(Dirty)
		}

		if e.exit.Load() {
			return
		}
		e.sleep(ctx, e.deps.Config.ExecutorOuterSleepMillis)
	}
}

func (e *Executor) sleep(ctx context.Context, millis int) {
	if millis <= 0 {
		return
	}
	t := time.NewTimer(time.Duration(millis) * time.Millisecond)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// iterate runs one pass of the inner state machine, §4.E steps a-k. It
// returns true if a re-entry was captured during this pass, telling Run to
// bump the re-entry counter and loop again without waiting for a fresh
// DIRTY transition.
func (e *Executor) iterate(ctx context.Context) bool {
	p := e.pl

	e.busyMu.Lock()
	p.processing.Store(true)
	defer func() {
		p.processing.Store(false)
		e.busyMu.Unlock()
	}()

	p.SetShutdown(false) // step b

	change, hasChange := p.PendingChange()
	p.clearPendingChange()
	reentryHash, reentryWasSet := p.ReentryPending()
	fullRebuild := hasChange && (change == ChangeSynch || change == ChangeRemove)

	if reentryWasSet || p.consumeFlushCacheRequest() || fullRebuild { // step c
		e.deps.PixelCache.Flush(p.Type)
	}
	if reentryWasSet {
		p.ClearReentry(reentryHash) // this wake's re-run consumes the request
	}

	e.deps.History.RLock() // step d
	items := e.deps.History.Active()
	histHash := e.deps.History.Hash()
	var graphErr error
	if fullRebuild || p.Graph.Gen() == 0 {
		graphErr = p.Graph.Rebuild(items, e.deps.Registry)
	} else {
		graphErr = p.Graph.Resync(items, e.deps.Registry)
	}
	e.deps.History.RUnlock()
	p.SetLastHistoryHash(histHash)

	if graphErr != nil {
		p.SetStatus(Invalid)
		return false
	}

	pieces := p.Graph.Pieces()

	inputROI := operator.ROI{Width: p.InputWidth, Height: p.InputHeight, Scale: 1}
	PlanForward(pieces, inputROI) // step e (forward pass)
	requested := p.RequestedROI()
	PlanBackward(pieces, requested) // step e (backward pass)

	roiChanged := requested != p.lastROI
	p.lastROI = requested
	if roiChanged {
		p.ForceResetReentry()
	}

	if p.Shutdown() { // step f
		return false
	}

	p.SetStatus(Undef) // step g

	if p.Type == Full && e.deps.Threadsafe != nil {
		e.deps.Threadsafe.Lock()
	}
	outcome, outBuf, outKey, reentryCaptured, runErr := e.runPieces(ctx, p, pieces) // step h
	if p.Type == Full && e.deps.Threadsafe != nil {
		e.deps.Threadsafe.Unlock()
	}

	switch outcome {
	case outcomeInputUnavailable:
		// §7 InputUnavailable: skip silently, no finished signal, retry
		// on the next wake.
		p.SetStatus(Dirty)
		return false
	case outcomeAborted:
		// §7 AbortedByShutdown: iteration discarded with no diagnostic;
		// status was already set to DIRTY by whoever set the kill-switch.
		return false
	case outcomeFailed:
		p.SetStatus(Invalid)
		e.publishFinished(runErr)
		return false
	case outcomeResourceExhausted:
		// §7 ResourceExhausted: the one retry already happened inside
		// runPieces (ReleaseLowPriority then a second Insert); if it still
		// didn't fit, surface the failure same as any other operator error.
		p.SetStatus(Invalid)
		e.publishFinished(runErr)
		return false
	}

	if reentryCaptured { // step i
		p.SetReentry(uint64(outKey))
		return true
	}

	if outBuf != nil && p.Status() == Undef { // step j
		p.SetStatus(Valid)
	} else if p.Status() == Undef {
		p.SetStatus(Dirty)
	}

	p.setBackbuf(outBuf, outKey) // step k
	e.publishFinished(nil)
	return false
}

type runOutcome int

const (
	outcomeDone runOutcome = iota
	outcomeAborted
	outcomeFailed
	outcomeInputUnavailable
	outcomeResourceExhausted
)

// runPieces walks pieces first to last, consulting and populating the
// pixel cache, and returns the final output buffer (§4.E step h). A single
// shutdown poll happens between pieces, plus one before each piece runs.
func (e *Executor) runPieces(ctx context.Context, p *Pipeline, pieces []*Piece) (outcome runOutcome, out *operator.Buffer, key pixelcache.Key, reentry bool, err error) {
	in, _, ierr := e.deps.Input.Input(ctx, p.ImageID, p.Type, p.RequestedROI())
	if ierr != nil {
		return outcomeInputUnavailable, nil, 0, false, fmt.Errorf("pipeline: input unavailable: %w", errkind.ErrInputUnavailable)
	}
	if in == nil || in.Width <= 0 || in.Height <= 0 {
		return outcomeInputUnavailable, nil, 0, false, fmt.Errorf("pipeline: degenerate input buffer: %w", errkind.ErrInputUnavailable)
	}

	var maskTable *mask.Table
	if e.deps.MaskPool != nil {
		maskTable = e.deps.MaskPool.Acquire()
		defer e.deps.MaskPool.Release(maskTable)
	}

	cur := in
	key = pixelcache.RootKey(p.Type)
	missingMask := false

	for i, piece := range pieces {
		if p.Shutdown() {
			return outcomeAborted, nil, 0, false, errkind.ErrAbortedByShutdown
		}
		if !piece.Enabled {
			continue
		}

		key = piece.ComputeGlobalHash(key)

		var pieceOut *operator.Buffer
		fromCache := false
		if p.Type.Cacheable() {
			if entry, ok := e.deps.PixelCache.Lookup(key); ok {
				e.deps.PixelCache.Ref(entry, 1)
				entry.RdLock()
				pieceOut = entry.Buffer()
				entry.RdUnlock()
				e.deps.PixelCache.Ref(entry, -1)
				fromCache = true
			}
		}

		if !fromCache {
			pieceOut = e.allocBuffer(piece.RoiOut)

			opCtx := ctx
			if maskTable != nil {
				opCtx = mask.WithAccessor(ctx, maskTable, &missingMask)
			}

			res := e.processOne(opCtx, piece, cur, pieceOut, piece.RoiIn, piece.RoiOut)
			if res.Outcome != operator.Done {
				if p.Shutdown() {
					return outcomeAborted, nil, 0, false, errkind.ErrAbortedByShutdown
				}
				e.deps.PixelCache.Remove(key)
				return outcomeFailed, nil, 0, false, fmt.Errorf("pipeline: piece %d (%s): %w", i, piece.ModuleName, errkind.ErrOperatorFailure)
			}

			if pieceOut == nil || pieceOut.Width <= 0 || pieceOut.Height <= 0 {
				return outcomeFailed, nil, 0, false, fmt.Errorf("pipeline: piece %d (%s) produced empty output: %w", i, piece.ModuleName, errkind.ErrOperatorFailure)
			}

			if p.Type.Cacheable() {
				if _, ierr := e.deps.PixelCache.Insert(key, p.Type, pieceOut); ierr != nil {
					// §7 ResourceExhausted: release low-priority (preview)
					// entries and retry exactly once before giving up.
					e.deps.PixelCache.ReleaseLowPriority()
					if _, ierr = e.deps.PixelCache.Insert(key, p.Type, pieceOut); ierr != nil {
						return outcomeResourceExhausted, nil, 0, false, fmt.Errorf("pipeline: piece %d (%s): %w", i, piece.ModuleName, errkind.ErrResourceExhausted)
					}
				}
			}
		}

		if p.Shutdown() { // step h's inter-piece poll
			return outcomeAborted, nil, 0, false, errkind.ErrAbortedByShutdown
		}

		cur = pieceOut
	}

	return outcomeDone, cur, key, missingMask, nil
}

// processOne runs one piece's transform: GPU offload first when an
// accelerator is registered and willing, its own tiled variant next, the
// plain Process callback last (§4.E "per-piece GPU offload").
func (e *Executor) processOne(ctx context.Context, piece *Piece, in, out *operator.Buffer, roiIn, roiOut operator.ROI) operator.Result {
	opPiece := toOperatorPiece(piece)

	if a := accel.Accelerator(); a != nil && a.CanAccelerate(opPiece, roiOut) {
		res, aerr := a.ProcessTile(ctx, opPiece, in, out, roiIn, roiOut)
		if aerr == nil {
			return res
		}
		if !errors.Is(aerr, accel.ErrFallbackToCPU) {
			return operator.Result{Outcome: operator.Failed, Err: aerr}
		}
	}

	if res, ok := piece.Op.ProcessTiled(ctx, opPiece, in, out, roiIn, roiOut); ok {
		return res
	}
	return piece.Op.Process(ctx, opPiece, in, out, roiIn, roiOut)
}

func (e *Executor) allocBuffer(roi operator.ROI) *operator.Buffer {
	w, h := roi.Width, roi.Height
	if w <= 0 {
		w = 1
	}
	if h <= 0 {
		h = 1
	}
	if e.deps.Buffers != nil {
		return e.deps.Buffers.Get(w, h)
	}
	return &operator.Buffer{Width: w, Height: h, Stride: w * 4, Data: make([]float32, w*h*4)}
}

func (e *Executor) publishFinished(err error) {
	if e.deps.Bus == nil {
		return
	}
	topic := signalbus.TopicDevelopUIPipeFinished
	if e.pl.Type == Preview {
		topic = signalbus.TopicDevelopPreviewPipeFinished
	}
	e.deps.Bus.Publish(topic, FinishedEvent{
		ImageID: e.pl.ImageID,
		Type:    e.pl.Type,
		Status:  e.pl.Status(),
		Err:     err,
	})
}
