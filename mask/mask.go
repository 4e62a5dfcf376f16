// Package mask implements the raster mask side-channel (§4.G Raster Mask
// Channel): per-invocation float mask buffers published by a pipeline op
// and looked up by downstream ops via (source module, mask id).
package mask

import "github.com/rawforge/develop/operator"

// Ref identifies a mask published by an upstream piece.
type Ref struct {
	SourceOp string
	MaskID   int
}

// Buffer is a single-channel float mask, same pixel grid convention as
// operator.Buffer but one float per pixel instead of four.
type Buffer struct {
	Width, Height int
	Data          []float32
}

// Table is the per-invocation maskId -> Buffer side-table one piece
// publishes during a single pipeline run. Adapted from the source's
// scene/layer.go LayerState: acquired from a Pool, reset and returned at
// the end of a run rather than freed.
type Table struct {
	bySourceOp map[string]map[int]*Buffer
}

func newTable() *Table {
	return &Table{bySourceOp: make(map[string]map[int]*Buffer)}
}

// Publish records buf as the mask sourceOp produced under maskID during
// the current pipeline run.
func (t *Table) Publish(sourceOp string, maskID int, buf *Buffer) {
	m, ok := t.bySourceOp[sourceOp]
	if !ok {
		m = make(map[int]*Buffer)
		t.bySourceOp[sourceOp] = m
	}
	m[maskID] = buf
}

// Lookup retrieves the mask a downstream piece asked for via ref. The
// second return value is false (an IntegrityViolation, §7) when sourceOp
// never published that mask id this run.
func (t *Table) Lookup(ref Ref) (*Buffer, bool) {
	m, ok := t.bySourceOp[ref.SourceOp]
	if !ok {
		return nil, false
	}
	buf, ok := m[ref.MaskID]
	return buf, ok
}

// Reset clears every published mask, preparing the table for reuse by the
// next pipeline run.
func (t *Table) Reset() {
	for k := range t.bySourceOp {
		delete(t.bySourceOp, k)
	}
}

// Pool recycles Tables across pipeline runs instead of allocating a fresh
// map set on every wake.
type Pool struct {
	tables []*Table
}

// NewPool creates an empty table pool.
func NewPool() *Pool { return &Pool{} }

// Acquire returns a reset, ready-to-use table from the pool or a new one.
func (p *Pool) Acquire() *Table {
	n := len(p.tables)
	if n == 0 {
		return newTable()
	}
	t := p.tables[n-1]
	p.tables = p.tables[:n-1]
	return t
}

// Release resets t and returns it to the pool.
func (p *Pool) Release(t *Table) {
	if t == nil {
		return
	}
	t.Reset()
	p.tables = append(p.tables, t)
}

// BufferFromOperator adapts an operator.Buffer's alpha channel into a
// single-channel mask.Buffer, used when an operator publishes a mask
// derived from its own RGBA output.
func BufferFromOperator(buf *operator.Buffer) *Buffer {
	if buf == nil {
		return nil
	}
	out := &Buffer{Width: buf.Width, Height: buf.Height, Data: make([]float32, buf.Width*buf.Height)}
	for y := 0; y < buf.Height; y++ {
		for x := 0; x < buf.Width; x++ {
			out.Data[y*buf.Width+x] = buf.Data[y*buf.Stride+x*4+3]
		}
	}
	return out
}
