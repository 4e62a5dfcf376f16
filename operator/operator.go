// Package operator defines the closed capability set that an image-processing
// module (an "operator") implements, and a stable-name registry for them.
//
// Operators are treated as black-box transforms: the develop pipeline never
// knows what an operator computes, only that it exposes this vtable. This
// mirrors the source's dynamic dispatch over a closed set of operator
// callbacks (Design Notes, "Dynamic dispatch over operators").
package operator

import "context"

// Outcome is the control-flow signal an operator run resolves to. Abort is
// not an error — it is the cooperative kill-switch doing its job (Design
// Notes, "Exceptions / long-running loops").
type Outcome int

const (
	// Done indicates the operator completed its work normally.
	Done Outcome = iota
	// Aborted indicates the operator observed the kill-switch and unwound.
	Aborted
	// Failed indicates the operator hit a runtime error unrelated to the
	// kill-switch.
	Failed
)

// String returns a human-readable outcome name.
func (o Outcome) String() string {
	switch o {
	case Done:
		return "Done"
	case Aborted:
		return "Aborted"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Result is the return value of a single operator invocation.
type Result struct {
	Outcome Outcome
	Err     error // set only when Outcome == Failed
}

// Flags is a bit-set of module capability/behavior flags.
type Flags uint32

const (
	// FlagOneInstance means only one instance of this operator may exist
	// per pipeline (duplication is disallowed).
	FlagOneInstance Flags = 1 << iota
	// FlagNoMaskBlend means this operator does not support per-pixel
	// blend masks.
	FlagNoMaskBlend
	// FlagDeprecated marks an operator kept only for history compatibility;
	// it may still run but should not be offered for new use.
	FlagDeprecated
)

// Has reports whether all bits in want are set.
func (f Flags) Has(want Flags) bool { return f&want == want }

// Direction selects which way a coordinate-space transform runs.
type Direction int

const (
	// Forward maps input-space coordinates to output-space.
	Forward Direction = iota
	// Backward maps output-space coordinates back to input-space.
	Backward
)

// Point is a 2D coordinate in some buffer's pixel space.
type Point struct {
	X, Y float64
}

// ROI is the region-of-interest an operator is asked to read or produce.
// Duplicated here (rather than imported from package pipeline) to avoid an
// import cycle: pipeline imports operator to drive operators, so operator
// cannot import pipeline back.
type ROI struct {
	X, Y          int
	Width, Height int
	Scale         float64
}

// Buffer is the minimal pixel-buffer shape an operator reads and writes.
// Pipelines work in linear float32 RGBA regardless of the source format.
type Buffer struct {
	Width, Height int
	Stride        int // floats per row (>= Width*4)
	Data          []float32
}

// Piece is the per-pipeline, per-module instantiation passed to every
// operator callback. It carries only what an operator is allowed to read;
// the pipeline owns hashing, caching and ROI bookkeeping around it.
type Piece struct {
	ModuleName    string
	MultiPriority int
	Enabled       bool
	Params        []byte
	Blend         []byte
	UserData      any // per-invocation scratch data, lifecycle tied to the pipeline run
}

// Op is the capability set an operator implementation exposes. It is a
// closed set by design: the pipeline never calls anything on an operator
// beyond this interface.
type Op interface {
	// Name returns the stable, unique operator name used as its registry key.
	Name() string

	// ParamsSize returns the byte length of the hashable parameter prefix.
	ParamsSize() int

	// DefaultParams returns a fresh copy of this operator's default parameters.
	DefaultParams() []byte

	// Flags returns this operator's capability/behavior bit-set.
	Flags() Flags

	// ModifyRoiOut computes the output ROI this operator would produce given
	// an input ROI (distortion/cropping operators change dimensions).
	ModifyRoiOut(piece *Piece, roiIn ROI) ROI

	// ModifyRoiIn computes the input ROI needed to produce a requested
	// output ROI.
	ModifyRoiIn(piece *Piece, roiOut ROI) ROI

	// DistortTransform warps points from input-space to output-space.
	DistortTransform(piece *Piece, pts []Point) []Point

	// DistortBacktransform warps points from output-space back to
	// input-space, the inverse of DistortTransform.
	DistortBacktransform(piece *Piece, pts []Point) []Point

	// Process runs the operator's main transform. It must poll ctx.Done()
	// at safe suspension points and return Aborted promptly when it fires.
	// The executor passes its run context, which is cancelled when the
	// executor stops; it is not tied to the pipeline's shutdown kill-switch,
	// which the executor polls itself before and after each piece.
	Process(ctx context.Context, piece *Piece, in, out *Buffer, roiIn, roiOut ROI) Result

	// ProcessTiled is an optional tiled/accelerated variant. The second
	// return value reports whether this operator implements it; when false,
	// the executor always uses Process.
	ProcessTiled(ctx context.Context, piece *Piece, in, out *Buffer, roiIn, roiOut ROI) (Result, bool)

	// CommitParams validates and stores newly-edited parameters onto piece,
	// e.g. recomputing any derived per-invocation data.
	CommitParams(piece *Piece, params, blend []byte) error
}
