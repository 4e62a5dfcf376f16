package develop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rawforge/develop/errkind"
	"github.com/rawforge/develop/history"
	"github.com/rawforge/develop/imgsrc"
	"github.com/rawforge/develop/mask"
	"github.com/rawforge/develop/metacache"
	"github.com/rawforge/develop/operator"
	"github.com/rawforge/develop/pipeline"
	"github.com/rawforge/develop/signalbus"
	"github.com/rawforge/develop/undo"
)

// ROIState is the controller's view-dependent rendering window: viewport
// size, zoom center/scale, the natural fit-to-viewport scale, and the
// device pixel density used to compute it (§4.F ROI descriptor).
type ROIState struct {
	ViewportW, ViewportH     int
	ZoomCenterX, ZoomCenterY float64
	// ZoomScale is the user-requested display scale. Zero means "fit to
	// viewport" (NaturalScale).
	ZoomScale    float64
	NaturalScale float64
	DevicePPD    float64
}

// Proxies is a bag of GUI-supplied callback hooks the controller invokes at
// well-defined points, mirroring the source's darkroom proxy-function
// table. Every field may be left nil.
type Proxies struct {
	// ModuleGroupVisible reports whether name's containing group is
	// currently shown in the GUI; consulted by the module list builder.
	ModuleGroupVisible func(name string) bool
	// MaskListChanged is invoked after the controller's mask catalog changes.
	MaskListChanged func()
}

// historyReader adapts a Controller's history list and its guarding lock
// to pipeline.HistoryReader, so neither RLock/RUnlock nor Active/Hash
// pollute Controller's own method set.
type historyReader struct {
	mu   *sync.RWMutex
	list *history.List
}

func (h *historyReader) RLock()                 { h.mu.RLock() }
func (h *historyReader) RUnlock()               { h.mu.RUnlock() }
func (h *historyReader) Active() []history.Item { return h.list.Active() }
func (h *historyReader) Hash() uint64           { return h.list.Hash() }

// Controller owns one open image's develop state: its edit history, its
// derived module-instance list, its two render pipelines and their
// executors, and its view-dependent ROI (§4.F Pipeline Controller).
type Controller struct {
	engine *Engine

	imageID int64

	historyMu sync.RWMutex
	history   *history.List
	hr        *historyReader

	modulesMu sync.RWMutex
	modules   []*ModuleInstance

	masksMu sync.RWMutex
	masks   []ModuleMask

	activeMu     sync.RWMutex
	activeModule string

	roiMu sync.Mutex
	roi   ROIState

	mipmapMu sync.Mutex
	mipmap   *imgsrc.MipmapChain

	mainPl    *pipeline.Pipeline
	previewPl *pipeline.Pipeline
	main      *pipeline.Executor
	preview   *pipeline.Executor

	// mainMasks and previewMasks are each executor's own raster-mask table
	// pool (§4.G): one per pipeline, never shared, since mask.Pool is not
	// itself safe for concurrent use from the two executor goroutines.
	mainMasks    *mask.Pool
	previewMasks *mask.Pool

	// Proxies is the GUI hook bag; callers may set its fields directly
	// before Start.
	Proxies Proxies
}

// ModuleMask is a persisted mask shape attached to a module instance,
// distinct from the per-run mask.Table side-channel the executor
// publishes to during a single pipeline render.
type ModuleMask struct {
	ModuleName    string
	MultiPriority int
	MaskID        int
}

// NewController creates a Controller bound to engine, with empty history
// and two idle pipelines (one FULL, one Preview) not yet driven by a
// running executor; call Start to launch their goroutines.
func NewController(engine *Engine) *Controller {
	c := &Controller{
		engine:  engine,
		history: history.New(),
		roi:     ROIState{DevicePPD: 1},
	}
	c.hr = &historyReader{mu: &c.historyMu, list: c.history}

	c.mainPl = pipeline.New(0, pipeline.Full)
	c.previewPl = pipeline.New(0, pipeline.Preview)

	c.mainMasks = mask.NewPool()
	c.previewMasks = mask.NewPool()

	c.main = pipeline.NewExecutor(c.mainPl, c.executorDeps(c.mainMasks))
	c.preview = pipeline.NewExecutor(c.previewPl, c.executorDeps(c.previewMasks))

	return c
}

func (c *Controller) executorDeps(masks *mask.Pool) pipeline.ExecutorDeps {
	return pipeline.ExecutorDeps{
		Registry:     c.engine.Registry,
		PixelCache:   c.engine.Pixels,
		MaskPool:     masks,
		History:      c.hr,
		Input:        c,
		Bus:          c.engine.Bus,
		Config:       c.engine.Config,
		Buffers:      c.engine.bufferPool,
		Threadsafe:   &c.engine.threadsafe,
		ActiveModule: c.ActiveModule,
	}
}

// Start launches the main and preview executor goroutines, bound to ctx.
func (c *Controller) Start(ctx context.Context) {
	go c.main.Run(ctx)
	go c.preview.Run(ctx)
}

// Stop signals both executors to exit and blocks until they have.
func (c *Controller) Stop() {
	c.main.Exit()
	c.preview.Exit()
	c.mainPl.SetShutdown(true)
	c.previewPl.SetShutdown(true)
	<-c.main.Done()
	<-c.preview.Done()
}

// ActiveModule returns the name of the module currently under interactive
// GUI edit, or "" if none.
func (c *Controller) ActiveModule() string {
	c.activeMu.RLock()
	defer c.activeMu.RUnlock()
	return c.activeModule
}

// SetActiveModule records which module is currently under interactive GUI
// edit (§4.D active-module override). The override applies to the
// coordinate transforms (pipeline.DistortTransform, used by
// RoiToInputSpace); the executor's ROI planning passes do not consult it.
func (c *Controller) SetActiveModule(name string) {
	c.activeMu.Lock()
	c.activeModule = name
	c.activeMu.Unlock()
}

// Input implements pipeline.InputSource: FULL/EXPORT/THUMBNAIL pipelines
// read level 0 of the loaded image's mipmap chain; PREVIEW reads the level
// closest to the requested display scale (§6 mipmap collaborator).
func (c *Controller) Input(ctx context.Context, imageID int64, t pipeline.PipelineType, requested operator.ROI) (*operator.Buffer, operator.ROI, error) {
	c.mipmapMu.Lock()
	chain := c.mipmap
	c.mipmapMu.Unlock()

	if chain == nil {
		return nil, operator.ROI{}, fmt.Errorf("develop: no source loaded for image %d: %w", imageID, errkind.ErrInputUnavailable)
	}

	var buf *operator.Buffer
	if t == pipeline.Preview {
		buf = chain.LevelForScale(requested.Scale)
		if buf != nil && requested.Width > 0 && requested.Height > 0 {
			// The nearest mip level rarely lands exactly on the requested
			// display size (zoom is a continuous ratio, mip levels are
			// powers of two); resample the rest of the way.
			buf = imgsrc.Resize(buf, requested.Width, requested.Height)
		}
	} else {
		buf = chain.Level(0)
	}
	if buf == nil {
		return nil, operator.ROI{}, fmt.Errorf("develop: mipmap level unavailable for image %d: %w", imageID, errkind.ErrInputUnavailable)
	}
	return buf, operator.ROI{Width: buf.Width, Height: buf.Height, Scale: 1}, nil
}

// LoadImage decodes id through the engine's source, builds its mipmap
// chain, seeds both pipelines' dimensions, rebuilds the module-instance
// list from an empty history, and kicks off a first full render of both
// pipelines (§4.F load_image).
func (c *Controller) LoadImage(ctx context.Context, id int64) error {
	if c.engine.Source == nil {
		return fmt.Errorf("develop: no image source configured: %w", errkind.ErrInputUnavailable)
	}

	buf, err := c.engine.Source.Decode(imgsrc.Handle{ImageID: id})
	if err != nil {
		return fmt.Errorf("develop: decode image %d: %w", id, err)
	}
	chain := imgsrc.Generate(buf, nil)
	if chain == nil {
		return fmt.Errorf("develop: empty source buffer for image %d", id)
	}

	outW, outH := buf.Width, buf.Height
	if rec, err := c.engine.Meta.Get(ctx, metacache.ImageID(id), metacache.ReadMode); err == nil {
		r := rec.Record()
		if r.OutputWidth > 0 && r.OutputHeight > 0 {
			outW, outH = r.OutputWidth, r.OutputHeight
		}
		_ = rec.Release(ctx, metacache.Minimal)
	}

	c.mipmapMu.Lock()
	if c.mipmap != nil {
		c.mipmap.Release()
	}
	c.mipmap = chain
	c.mipmapMu.Unlock()

	c.historyMu.Lock()
	c.imageID = id
	c.history = history.New()
	c.hr.list = c.history
	c.mainPl.ImageID, c.previewPl.ImageID = id, id
	c.mainPl.InputWidth, c.mainPl.InputHeight = buf.Width, buf.Height
	c.previewPl.InputWidth, c.previewPl.InputHeight = buf.Width, buf.Height
	c.mainPl.ProcessedWidth, c.mainPl.ProcessedHeight = outW, outH
	c.previewPl.ProcessedWidth, c.previewPl.ProcessedHeight = outW, outH
	c.rebuildModulesLocked()
	c.historyMu.Unlock()

	c.masksMu.Lock()
	c.masks = nil
	c.masksMu.Unlock()

	c.previewPl.SetRequestedROI(operator.ROI{Width: outW, Height: outH, Scale: 1})

	c.roiMu.Lock()
	c.roi.NaturalScale = pipeline.NaturalScale(c.roi.ViewportW, c.roi.ViewportH, outW, outH, nonZero(c.roi.DevicePPD))
	mainROI := c.computeMainROILocked()
	c.roiMu.Unlock()
	c.mainPl.SetRequestedROI(mainROI)

	c.engine.Bus.Publish(signalbus.TopicDevelopImageChanged, id)

	c.ProcessAll()
	return nil
}

// MainStatus returns the main pipeline's current rendering status.
func (c *Controller) MainStatus() pipeline.Status { return c.mainPl.Status() }

// PreviewStatus returns the preview pipeline's current rendering status.
func (c *Controller) PreviewStatus() pipeline.Status { return c.previewPl.Status() }

// MainBackbuf returns the main pipeline's last rendered display buffer.
func (c *Controller) MainBackbuf() *operator.Buffer { return c.mainPl.OutputBackbuf() }

// PreviewBackbuf returns the preview pipeline's last rendered display buffer.
func (c *Controller) PreviewBackbuf() *operator.Buffer { return c.previewPl.OutputBackbuf() }

// HistoryLen returns the total number of retained history items, including
// any redo tail.
func (c *Controller) HistoryLen() int {
	c.historyMu.RLock()
	defer c.historyMu.RUnlock()
	return c.history.Len()
}

// HistoryEnd returns the history's active-tail boundary.
func (c *Controller) HistoryEnd() int {
	c.historyMu.RLock()
	defer c.historyMu.RUnlock()
	return c.history.End()
}

func nonZero(v float64) float64 {
	if v <= 0 {
		return 1
	}
	return v
}

// ProcessAll gives the preview pipeline a head start (§4.F
// PreviewHeadStartMillis) then marks both pipelines dirty for a full
// resync, matching a fresh image load or history replace.
func (c *Controller) ProcessAll() {
	c.previewPl.SetTimeoutMicros(0)
	c.mainPl.SetTimeoutMicros(int64(c.engine.Config.PreviewHeadStartMillis) * 1000)
	c.previewPl.MarkDirty(pipeline.ChangeSynch)
	c.mainPl.MarkDirty(pipeline.ChangeSynch)
}

// UpdateMain marks the main pipeline dirty for an incremental top-change
// resync (a piece's parameters changed but the piece list did not).
func (c *Controller) UpdateMain() { c.mainPl.MarkDirty(pipeline.ChangeTopChanged) }

// UpdatePreview is UpdateMain for the preview pipeline.
func (c *Controller) UpdatePreview() { c.previewPl.MarkDirty(pipeline.ChangeTopChanged) }

// UpdateAll marks both pipelines dirty for an incremental resync.
func (c *Controller) UpdateAll() { c.UpdateMain(); c.UpdatePreview() }

// ResyncMain marks the main pipeline dirty for a full graph resync (the
// piece list itself changed: a module was added, removed, or reordered).
func (c *Controller) ResyncMain() { c.mainPl.MarkDirty(pipeline.ChangeSynch) }

// ResyncPreview is ResyncMain for the preview pipeline.
func (c *Controller) ResyncPreview() { c.previewPl.MarkDirty(pipeline.ChangeSynch) }

// ResyncAll marks both pipelines dirty for a full graph resync.
func (c *Controller) ResyncAll() { c.ResyncMain(); c.ResyncPreview() }

// ResetAll flushes both pipelines' pixel cache entries and forces a full
// recompute, used after a change that invalidates cached results without
// changing the history hash (e.g. a raw-decoder setting).
func (c *Controller) ResetAll() {
	c.mainPl.RequestFlushCache()
	c.previewPl.RequestFlushCache()
	c.ResyncAll()
}

// RefreshMain queues a main pipeline update; full additionally flushes its
// pixel cache entries first, forcing every piece to recompute rather than
// reuse a cached result.
func (c *Controller) RefreshMain(full bool) {
	if full {
		c.mainPl.RequestFlushCache()
	}
	c.ResyncMain()
}

// RefreshPreview is RefreshMain for the preview pipeline.
func (c *Controller) RefreshPreview(full bool) {
	if full {
		c.previewPl.RequestFlushCache()
	}
	c.ResyncPreview()
}

// SetViewport records the GUI's current canvas size and device pixel
// density, recomputes NaturalScale, and requests a new main-pipeline ROI
// (§4.F ROI descriptor; preview is unaffected since it always renders the
// whole processed image).
func (c *Controller) SetViewport(w, h int, devicePPD float64) {
	c.roiMu.Lock()
	c.roi.ViewportW, c.roi.ViewportH = w, h
	c.roi.DevicePPD = nonZero(devicePPD)
	c.roi.NaturalScale = pipeline.NaturalScale(w, h, c.mainPl.ProcessedWidth, c.mainPl.ProcessedHeight, c.roi.DevicePPD)
	roi := c.computeMainROILocked()
	c.roiMu.Unlock()

	c.mainPl.SetRequestedROI(roi)
	c.mainPl.MarkDirty(pipeline.ChangeZoomed)
}

// ChangeZoomTo sets the main pipeline's display scale (clamped to the
// engine's configured zoom bounds) and pan center, then requests the
// resulting ROI. The preview pipeline is never zoomed.
func (c *Controller) ChangeZoomTo(scale, centerX, centerY float64) {
	c.roiMu.Lock()
	c.roi.ZoomScale = pipeline.ClampZoom(scale, c.roi.NaturalScale, c.engine.Config)
	c.roi.ZoomCenterX, c.roi.ZoomCenterY = centerX, centerY
	roi := c.computeMainROILocked()
	c.roiMu.Unlock()

	c.mainPl.SetRequestedROI(roi)
	c.mainPl.MarkDirty(pipeline.ChangeZoomed)
}

// ZoomFit resets the main pipeline's zoom to fit-to-viewport.
func (c *Controller) ZoomFit() { c.ChangeZoomTo(0, 0.5, 0.5) }

// computeMainROILocked must be called with roiMu held. It derives the
// requested output ROI from the current zoom scale (or NaturalScale, when
// ZoomScale is unset) and the processed image dimensions.
func (c *Controller) computeMainROILocked() operator.ROI {
	scale := c.roi.ZoomScale
	if scale <= 0 {
		scale = c.roi.NaturalScale
	}
	if scale <= 0 {
		scale = 1
	}
	outW := int(float64(c.mainPl.ProcessedWidth) * scale)
	outH := int(float64(c.mainPl.ProcessedHeight) * scale)
	if outW < 1 {
		outW = 1
	}
	if outH < 1 {
		outH = 1
	}
	return operator.ROI{Width: outW, Height: outH, Scale: scale}
}

// Undo moves the history's active-tail boundary back by one item and
// resyncs both pipelines. Returns false if there is nothing to undo.
func (c *Controller) Undo() bool {
	c.historyMu.Lock()
	if c.history.End() == 0 {
		c.historyMu.Unlock()
		return false
	}
	c.history.SetEnd(c.history.End() - 1)
	c.rebuildModulesLocked()
	c.historyMu.Unlock()

	c.engine.Bus.Publish(signalbus.TopicDevelopHistoryChanged, c.imageID)
	c.ResyncAll()
	return true
}

// Redo moves the history's active-tail boundary forward by one item and
// resyncs both pipelines. Returns false if there is nothing to redo.
func (c *Controller) Redo() bool {
	c.historyMu.Lock()
	if c.history.End() >= c.history.Len() {
		c.historyMu.Unlock()
		return false
	}
	c.history.SetEnd(c.history.End() + 1)
	c.rebuildModulesLocked()
	c.historyMu.Unlock()

	c.engine.Bus.Publish(signalbus.TopicDevelopHistoryChanged, c.imageID)
	c.ResyncAll()
	return true
}

// AppendHistory commits a new edit (a parameter change, a toggle, a
// duplication) as the next history item, under the history write lock,
// then resyncs both pipelines. This is the single entry point through
// which GUI parameter edits reach the pipeline graph.
func (c *Controller) AppendHistory(it history.Item) int {
	c.engine.Bus.Publish(signalbus.TopicDevelopHistoryWillChange, c.imageID)

	c.historyMu.Lock()
	idx := c.history.Append(it)
	c.rebuildModulesLocked()
	c.historyMu.Unlock()

	c.engine.Bus.Publish(signalbus.TopicDevelopHistoryChanged, c.imageID)
	c.ResyncAll()
	return idx
}

// SetRating sets id's star rating as a RATINGS-kind undo group, recording
// a before/after delta replayed by writing back through the metadata
// cache, then stamps the record's change timestamp (§4.I Undo Groups).
func (c *Controller) SetRating(ctx context.Context, id int32, rating int) error {
	metaID := metacache.ImageID(id)

	h, err := c.engine.Meta.Get(ctx, metaID, metacache.WriteMode)
	if err != nil {
		return fmt.Errorf("develop: set rating for image %d: %w", id, err)
	}
	before := h.Record().Flags.Rating()
	h.Record().Flags = h.Record().Flags.WithRating(rating)
	h.Record().ChangedAt = time.Now()
	if err := h.Release(ctx, metacache.Safe); err != nil {
		return fmt.Errorf("develop: release rating write for image %d: %w", id, err)
	}

	replay := func(dir undo.Direction, beforeVal, afterVal any) {
		val := afterVal.(int)
		if dir == undo.UndoDirection {
			val = beforeVal.(int)
		}
		hh, err := c.engine.Meta.Get(context.Background(), metaID, metacache.WriteMode)
		if err != nil {
			return
		}
		hh.Record().Flags = hh.Record().Flags.WithRating(val)
		_ = hh.Release(context.Background(), metacache.Safe)
	}
	c.engine.Undo.Record(undo.Ratings, before, rating, replay)

	c.engine.Bus.Publish(signalbus.TopicTagChanged, id)
	return nil
}
