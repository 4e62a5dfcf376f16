package pipeline

import (
	"fmt"

	"github.com/rawforge/develop/history"
	"github.com/rawforge/develop/operator"
)

// Graph is the ordered list of pieces a pipeline walks (§4.C Pipeline
// Graph). Pieces are built from the active history prefix.
type Graph struct {
	pieces []*Piece
	gen    uint32
}

// NewGraph creates an empty graph.
func NewGraph() *Graph { return &Graph{} }

// Pieces returns the current piece list in iop_order.
func (g *Graph) Pieces() []*Piece { return g.pieces }

// Gen returns the graph's rebuild generation counter.
func (g *Graph) Gen() uint32 { return g.gen }

// Rebuild clears the graph and recreates one piece per active history
// item, in ascending iop_order, instantiating each operator from registry.
func (g *Graph) Rebuild(items []history.Item, registry *operator.Registry) error {
	pieces := make([]*Piece, 0, len(items))
	for i, it := range items {
		op, err := registry.New(it.ModuleName)
		if err != nil {
			return fmt.Errorf("pipeline: rebuild piece %d: %w", i, err)
		}
		p := &Piece{
			Op:            op,
			ModuleName:    it.ModuleName,
			MultiPriority: it.MultiPriority,
			IopOrder:      float64(i),
			Enabled:       it.Enabled,
			Params:        it.Params,
			Blend:         it.Blend,
		}
		p.ComputeParamsHash()
		pieces = append(pieces, p)
	}
	g.pieces = pieces
	g.gen++
	return nil
}

// Resync walks items (the current active history prefix) and updates
// existing pieces' params/enabled/blend state in place where a piece for
// the same (ModuleName, MultiPriority) already exists, in order; it
// appends pieces for newly added items and drops trailing pieces no
// longer referenced. Unlike Rebuild, matching pieces keep their Op
// instance (and therefore any per-invocation UserData) and do not bump
// Gen, since existing PieceHandles remain valid.
func (g *Graph) Resync(items []history.Item, registry *operator.Registry) error {
	next := make([]*Piece, 0, len(items))
	for i, it := range items {
		var p *Piece
		if i < len(g.pieces) && g.pieces[i].ModuleName == it.ModuleName && g.pieces[i].MultiPriority == it.MultiPriority {
			p = g.pieces[i]
		} else {
			op, err := registry.New(it.ModuleName)
			if err != nil {
				return fmt.Errorf("pipeline: resync piece %d: %w", i, err)
			}
			p = &Piece{Op: op, ModuleName: it.ModuleName, MultiPriority: it.MultiPriority}
		}
		p.IopOrder = float64(i)
		p.Enabled = it.Enabled
		p.Params = it.Params
		p.Blend = it.Blend
		p.ComputeParamsHash()
		next = append(next, p)
	}
	g.pieces = next
	return nil
}

// RemoveByModuleName drops every piece whose ModuleName matches name and
// bumps Gen, invalidating any held PieceHandle.
func (g *Graph) RemoveByModuleName(name string) int {
	kept := g.pieces[:0:0]
	removed := 0
	for _, p := range g.pieces {
		if p.ModuleName == name {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	g.pieces = kept
	if removed > 0 {
		g.gen++
	}
	return removed
}

// Lookup resolves a handle to its piece, returning false if the handle's
// generation is stale or its index is out of range.
func (g *Graph) Lookup(h PieceHandle) (*Piece, bool) {
	if h.Gen != g.gen || h.Index < 0 || h.Index >= len(g.pieces) {
		return nil, false
	}
	return g.pieces[h.Index], true
}
