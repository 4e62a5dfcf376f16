package mask

import (
	"testing"

	"github.com/rawforge/develop/operator"
)

func TestPublishLookupRoundTrip(t *testing.T) {
	pool := NewPool()
	tbl := pool.Acquire()

	buf := &Buffer{Width: 2, Height: 2, Data: []float32{1, 0, 0, 1}}
	tbl.Publish("sharpen", 0, buf)

	got, ok := tbl.Lookup(Ref{SourceOp: "sharpen", MaskID: 0})
	if !ok || got != buf {
		t.Fatalf("Lookup = %v,%v, want the published buffer", got, ok)
	}
}

func TestLookupMissingMaskReportsFalse(t *testing.T) {
	pool := NewPool()
	tbl := pool.Acquire()
	tbl.Publish("exposure", 0, &Buffer{Width: 1, Height: 1, Data: []float32{1}})

	if _, ok := tbl.Lookup(Ref{SourceOp: "exposure", MaskID: 1}); ok {
		t.Fatal("expected lookup of an unpublished mask id to fail")
	}
	if _, ok := tbl.Lookup(Ref{SourceOp: "contrast", MaskID: 0}); ok {
		t.Fatal("expected lookup against an unpublishing source op to fail")
	}
}

func TestResetClearsAllPublishedMasks(t *testing.T) {
	pool := NewPool()
	tbl := pool.Acquire()
	tbl.Publish("sharpen", 0, &Buffer{Width: 1, Height: 1})
	tbl.Reset()
	if _, ok := tbl.Lookup(Ref{SourceOp: "sharpen", MaskID: 0}); ok {
		t.Fatal("expected Reset to clear previously published masks")
	}
}

func TestPoolReleaseThenAcquireReusesTable(t *testing.T) {
	pool := NewPool()
	tbl := pool.Acquire()
	tbl.Publish("sharpen", 0, &Buffer{Width: 1, Height: 1})
	pool.Release(tbl)

	reused := pool.Acquire()
	if reused != tbl {
		t.Fatal("expected Acquire to reuse the released table")
	}
	if _, ok := reused.Lookup(Ref{SourceOp: "sharpen", MaskID: 0}); ok {
		t.Fatal("expected reused table to be reset")
	}
}

func TestBufferFromOperatorExtractsAlpha(t *testing.T) {
	buf := &operator.Buffer{
		Width: 2, Height: 1, Stride: 8,
		Data: []float32{0, 0, 0, 0.25, 0, 0, 0, 0.75},
	}
	mb := BufferFromOperator(buf)
	if mb.Width != 2 || mb.Height != 1 {
		t.Fatalf("unexpected shape: %+v", mb)
	}
	if mb.Data[0] != 0.25 || mb.Data[1] != 0.75 {
		t.Fatalf("Data = %v, want [0.25 0.75]", mb.Data)
	}
}
