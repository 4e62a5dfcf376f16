package pipeline

import (
	"hash/fnv"

	"github.com/rawforge/develop/operator"
	"github.com/rawforge/develop/pixelcache"
)

// Piece is one module instance in a pipeline's stack (§3 PipelineOp).
type Piece struct {
	Op operator.Op

	ModuleName    string
	MultiPriority int
	MultiName     string
	IopOrder      float64
	Enabled       bool

	Params []byte
	Blend  []byte

	UserData any

	RoiIn, RoiOut operator.ROI

	ParamsHash uint64
	GlobalHash pixelcache.Key
	MaskHash   uint64
}

// PieceHandle references a piece by position plus the graph generation it
// was taken from, so a holder can detect that a full rebuild invalidated
// its index.
type PieceHandle struct {
	Index int
	Gen   uint32
}

// ComputeParamsHash hashes the piece's identity, params, blend, and enabled
// state (§3 PipelineOp invariant: params_hash is over params+blend+enabled+
// identity).
func (p *Piece) ComputeParamsHash() uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(p.ModuleName))
	_, _ = h.Write([]byte{byte(p.MultiPriority), byte(p.MultiPriority >> 8)})
	if p.Enabled {
		_, _ = h.Write([]byte{1})
	} else {
		_, _ = h.Write([]byte{0})
	}
	_, _ = h.Write(p.Params)
	_, _ = h.Write(p.Blend)
	p.ParamsHash = h.Sum64()
	return p.ParamsHash
}

// roiBytes produces a stable byte encoding of an ROI for hash folding.
func roiBytes(r operator.ROI) []byte {
	return []byte{
		byte(r.X), byte(r.X >> 8), byte(r.X >> 16), byte(r.X >> 24),
		byte(r.Y), byte(r.Y >> 8), byte(r.Y >> 16), byte(r.Y >> 24),
		byte(r.Width), byte(r.Width >> 8), byte(r.Width >> 16), byte(r.Width >> 24),
		byte(r.Height), byte(r.Height >> 8), byte(r.Height >> 16), byte(r.Height >> 24),
	}
}

// ComputeGlobalHash folds upstream's global hash with this piece's own
// params_hash and ROI (§3 PipelineOp invariant: global_hash of piece k is a
// pure function of (global_hash of k-1, params_hash of k, ROI of k)).
func (p *Piece) ComputeGlobalHash(upstream pixelcache.Key) pixelcache.Key {
	p.GlobalHash = upstream.Fold(p.ModuleName, p.MultiPriority, p.Enabled, p.Params, p.Blend, roiBytes(p.RoiOut))
	return p.GlobalHash
}
