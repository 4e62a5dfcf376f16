package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/rawforge/develop/config"
	"github.com/rawforge/develop/history"
	"github.com/rawforge/develop/mask"
	"github.com/rawforge/develop/operator"
	"github.com/rawforge/develop/pixelcache"
	"github.com/rawforge/develop/signalbus"
)

// identityOp is a minimal operator.Op that copies its input to its output
// unchanged, optionally calling a hook at the start of Process and/or
// looking up a mask that was never published (forcing a re-entry).
type identityOp struct {
	name       string
	onProcess  func()
	lookupMiss bool
}

func (o *identityOp) Name() string                { return o.name }
func (o *identityOp) ParamsSize() int             { return 0 }
func (o *identityOp) DefaultParams() []byte       { return nil }
func (o *identityOp) Flags() operator.Flags       { return 0 }
func (o *identityOp) ModifyRoiOut(p *operator.Piece, roiIn operator.ROI) operator.ROI { return roiIn }
func (o *identityOp) ModifyRoiIn(p *operator.Piece, roiOut operator.ROI) operator.ROI { return roiOut }
func (o *identityOp) DistortTransform(p *operator.Piece, pts []operator.Point) []operator.Point {
	return pts
}
func (o *identityOp) DistortBacktransform(p *operator.Piece, pts []operator.Point) []operator.Point {
	return pts
}

func (o *identityOp) Process(ctx context.Context, p *operator.Piece, in, out *operator.Buffer, roiIn, roiOut operator.ROI) operator.Result {
	if o.onProcess != nil {
		o.onProcess()
	}
	if o.lookupMiss {
		if a := mask.AccessorFromContext(ctx); a != nil {
			a.Lookup(mask.Ref{SourceOp: "nobody", MaskID: 0})
		}
	}
	copy(out.Data, in.Data)
	return operator.Result{Outcome: operator.Done}
}

func (o *identityOp) ProcessTiled(ctx context.Context, p *operator.Piece, in, out *operator.Buffer, roiIn, roiOut operator.ROI) (operator.Result, bool) {
	return operator.Result{}, false
}

func (o *identityOp) CommitParams(p *operator.Piece, params, blend []byte) error { return nil }

// fakeHistory is a minimal HistoryReader over a fixed item list, guarded by
// an RWMutex the same way develop.Controller guards its real one.
type fakeHistory struct {
	mu    sync.RWMutex
	items []history.Item
}

func (h *fakeHistory) RLock()   { h.mu.RLock() }
func (h *fakeHistory) RUnlock() { h.mu.RUnlock() }
func (h *fakeHistory) Active() []history.Item {
	out := make([]history.Item, len(h.items))
	copy(out, h.items)
	return out
}
func (h *fakeHistory) Hash() uint64 {
	l := history.New()
	for _, it := range h.items {
		l.Append(it)
	}
	return l.Hash()
}

// fakeInput always serves the same fixed-size buffer.
type fakeInput struct {
	w, h int
}

func (f *fakeInput) Input(ctx context.Context, imageID int64, t PipelineType, requested operator.ROI) (*operator.Buffer, operator.ROI, error) {
	buf := &operator.Buffer{Width: f.w, Height: f.h, Stride: f.w * 4, Data: make([]float32, f.w*f.h*4)}
	for i := range buf.Data {
		buf.Data[i] = 1
	}
	return buf, operator.ROI{Width: f.w, Height: f.h, Scale: 1}, nil
}

func newTestRegistry(ops ...operator.Op) *operator.Registry {
	r := operator.NewRegistry()
	for _, op := range ops {
		op := op
		_ = r.Register(op.Name(), func() operator.Op { return op })
	}
	return r
}

func newTestExecutor(t *testing.T, registry *operator.Registry, items []history.Item, withMasks bool) (*Executor, *Pipeline) {
	t.Helper()
	p := New(1, Full)
	p.InputWidth, p.InputHeight = 4, 4
	p.ProcessedWidth, p.ProcessedHeight = 4, 4
	p.SetRequestedROI(operator.ROI{Width: 4, Height: 4, Scale: 1})

	deps := ExecutorDeps{
		Registry:   registry,
		PixelCache: pixelcache.New(1 << 20),
		History:    &fakeHistory{items: items},
		Input:      &fakeInput{w: 4, h: 4},
		Bus:        signalbus.New(),
		Config:     config.Default(),
	}
	if withMasks {
		deps.MaskPool = mask.NewPool()
	}
	return NewExecutor(p, deps), p
}

func TestExecutorProducesOutputAndPublishesFinished(t *testing.T) {
	op := &identityOp{name: "exposure"}
	registry := newTestRegistry(op)
	items := []history.Item{{ModuleName: "exposure", Enabled: true}}
	e, p := newTestExecutor(t, registry, items, false)

	var finished FinishedEvent
	got := false
	e.deps.Bus.Subscribe(signalbus.TopicDevelopUIPipeFinished, func(payload any) {
		finished = payload.(FinishedEvent)
		got = true
	})

	p.MarkDirty(ChangeSynch)
	e.iterate(context.Background())

	if p.Status() != Valid {
		t.Fatalf("Status() = %v, want Valid", p.Status())
	}
	if !got {
		t.Fatal("expected a develop-ui-pipe-finished event")
	}
	if finished.Err != nil {
		t.Fatalf("FinishedEvent.Err = %v, want nil", finished.Err)
	}
	buf, _ := p.Backbuf()
	if buf == nil || buf.Width != 4 || buf.Height != 4 {
		t.Fatalf("Backbuf() = %+v, want a 4x4 buffer", buf)
	}
}

func TestExecutorGlobalHashChainsFromUpstream(t *testing.T) {
	opA := &identityOp{name: "a"}
	opB := &identityOp{name: "b"}
	registry := newTestRegistry(opA, opB)
	items := []history.Item{
		{ModuleName: "a", Enabled: true, Params: []byte{1}},
		{ModuleName: "b", Enabled: true, Params: []byte{9}},
	}
	e, p := newTestExecutor(t, registry, items, false)
	p.MarkDirty(ChangeSynch)
	e.iterate(context.Background())

	pieces := p.Graph.Pieces()
	if len(pieces) != 2 {
		t.Fatalf("len(Pieces()) = %d, want 2", len(pieces))
	}
	rootA := pixelcache.RootKey(p.Type)
	if pieces[0].GlobalHash == rootA {
		t.Fatal("expected piece 0's global hash to differ from the bare root key")
	}

	// Changing piece 0's params must change piece 1's global hash too, even
	// though piece 1's own params are untouched (§3 hash-chaining invariant).
	itemsChanged := []history.Item{
		{ModuleName: "a", Enabled: true, Params: []byte{2}},
		{ModuleName: "b", Enabled: true, Params: []byte{9}},
	}
	e2, p2 := newTestExecutor(t, registry, itemsChanged, false)
	p2.MarkDirty(ChangeSynch)
	e2.iterate(context.Background())

	pieces2 := p2.Graph.Pieces()
	if pieces[1].GlobalHash == pieces2[1].GlobalHash {
		t.Fatal("expected piece 1's global hash to change when piece 0's params changed")
	}
}

func TestExecutorAbortsOnMidRunShutdown(t *testing.T) {
	var pl *Pipeline
	opA := &identityOp{name: "a", onProcess: func() { pl.SetShutdown(true) }}
	opB := &identityOp{name: "b"}
	registry := newTestRegistry(opA, opB)
	items := []history.Item{
		{ModuleName: "a", Enabled: true},
		{ModuleName: "b", Enabled: true},
	}
	e, p := newTestExecutor(t, registry, items, false)
	pl = p

	got := false
	e.deps.Bus.Subscribe(signalbus.TopicDevelopUIPipeFinished, func(payload any) { got = true })

	p.MarkDirty(ChangeSynch)
	e.iterate(context.Background())

	if got {
		t.Fatal("expected no finished event to be published on an aborted run")
	}
	if buf, _ := p.Backbuf(); buf != nil {
		t.Fatal("expected no backbuf to be set on an aborted run")
	}
}

func TestExecutorReentryRequiresMatchingHashToClear(t *testing.T) {
	op := &identityOp{name: "spot", lookupMiss: true}
	registry := newTestRegistry(op)
	items := []history.Item{{ModuleName: "spot", Enabled: true}}
	e, p := newTestExecutor(t, registry, items, true)

	p.MarkDirty(ChangeSynch)
	reentered := e.iterate(context.Background())
	if !reentered {
		t.Fatal("expected iterate to report a re-entry when a piece's mask lookup misses")
	}
	hash, pending := p.ReentryPending()
	if !pending {
		t.Fatal("expected a pending re-entry after a missed mask lookup")
	}
	if p.ClearReentry(hash + 1) {
		t.Fatal("expected ClearReentry to refuse a mismatched hash")
	}
	if !p.ClearReentry(hash) {
		t.Fatal("expected ClearReentry to succeed with the matching hash")
	}
}

func TestExecutorReentryBoundedPerWake(t *testing.T) {
	op := &identityOp{name: "spot", lookupMiss: true}
	registry := newTestRegistry(op)
	items := []history.Item{{ModuleName: "spot", Enabled: true}}
	e, p := newTestExecutor(t, registry, items, true)
	e.deps.Config.MaxReentriesPerWake = 2

	// Mirror Run's bounded inner loop directly, without its timing, to
	// check the re-entry count never exceeds the configured bound within
	// one wake (§8 property 5).
	p.MarkDirty(ChangeSynch)
	reentryCount := 0
	for p.Status() == Dirty && reentryCount < e.deps.Config.MaxReentriesPerWake {
		reentered := e.iterate(context.Background())
		if !reentered {
			break
		}
		reentryCount++
		p.SetStatus(Dirty)
	}

	if reentryCount != e.deps.Config.MaxReentriesPerWake {
		t.Fatalf("reentryCount = %d, want %d (operator always misses its mask lookup)", reentryCount, e.deps.Config.MaxReentriesPerWake)
	}
}

func TestExecutorRunExitsPromptly(t *testing.T) {
	op := &identityOp{name: "exposure"}
	registry := newTestRegistry(op)
	items := []history.Item{{ModuleName: "exposure", Enabled: true}}
	e, p := newTestExecutor(t, registry, items, false)
	e.deps.Config.ExecutorOuterSleepMillis = 1
	e.deps.Config.ExecutorIdleSleepMillis = 1

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.MarkDirty(ChangeSynch)
	go e.Run(ctx)

	e.Exit()
	<-e.Done()

	if p.Running() {
		t.Fatal("expected Running() to be false once Done() has closed")
	}
}
