package main

import (
	"context"
	"math"

	"github.com/rawforge/develop/operator"
)

// registerDemoModules wires the three canned-history modules devctl runs:
// exposure (brightness multiply), contrast (pivot around mid-gray), and
// sharpen (unsharp-mask-style boost against a box-blurred copy of the same
// buffer). Each reads its single float32 parameter from the history item's
// 4-byte Params slice.
func registerDemoModules(r *operator.Registry) {
	_ = r.Register("exposure", func() operator.Op { return &exposureOp{} })
	_ = r.Register("contrast", func() operator.Op { return &contrastOp{} })
	_ = r.Register("sharpen", func() operator.Op { return &sharpenOp{} })
}

func decodeFloatParam(p []byte) float32 {
	if len(p) < 4 {
		return 0
	}
	bits := uint32(p[0]) | uint32(p[1])<<8 | uint32(p[2])<<16 | uint32(p[3])<<24
	return float32(bits) / 1e6
}

// passROI is the ROI/distortion behavior shared by every demo module: none
// of them change framing or geometry, only pixel values.
type passROI struct{}

func (passROI) ModifyRoiOut(p *operator.Piece, roiIn operator.ROI) operator.ROI { return roiIn }
func (passROI) ModifyRoiIn(p *operator.Piece, roiOut operator.ROI) operator.ROI { return roiOut }
func (passROI) DistortTransform(p *operator.Piece, pts []operator.Point) []operator.Point {
	return pts
}
func (passROI) DistortBacktransform(p *operator.Piece, pts []operator.Point) []operator.Point {
	return pts
}
func (passROI) ProcessTiled(ctx context.Context, p *operator.Piece, in, out *operator.Buffer, roiIn, roiOut operator.ROI) (operator.Result, bool) {
	return operator.Result{}, false
}
func (passROI) CommitParams(p *operator.Piece, params, blend []byte) error { return nil }
func (passROI) ParamsSize() int                                           { return 4 }
func (passROI) DefaultParams() []byte                                     { return []byte{0, 0, 0, 0} }
func (passROI) Flags() operator.Flags                                     { return 0 }

type exposureOp struct{ passROI }

func (exposureOp) Name() string { return "exposure" }

func (exposureOp) Process(ctx context.Context, p *operator.Piece, in, out *operator.Buffer, roiIn, roiOut operator.ROI) operator.Result {
	gain := float32(math.Pow(2, float64(decodeFloatParam(p.Params))))
	for i := 0; i < len(in.Data); i += 4 {
		for c := 0; c < 3; c++ {
			out.Data[i+c] = clamp01(in.Data[i+c] * gain)
		}
		out.Data[i+3] = in.Data[i+3]
	}
	return operator.Result{Outcome: operator.Done}
}

type contrastOp struct{ passROI }

func (contrastOp) Name() string { return "contrast" }

func (contrastOp) Process(ctx context.Context, p *operator.Piece, in, out *operator.Buffer, roiIn, roiOut operator.ROI) operator.Result {
	amount := decodeFloatParam(p.Params)
	for i := 0; i < len(in.Data); i += 4 {
		for c := 0; c < 3; c++ {
			out.Data[i+c] = clamp01((in.Data[i+c]-0.5)*amount + 0.5)
		}
		out.Data[i+3] = in.Data[i+3]
	}
	return operator.Result{Outcome: operator.Done}
}

type sharpenOp struct{ passROI }

func (sharpenOp) Name() string { return "sharpen" }

func (sharpenOp) Process(ctx context.Context, p *operator.Piece, in, out *operator.Buffer, roiIn, roiOut operator.ROI) operator.Result {
	amount := decodeFloatParam(p.Params)
	w, h := in.Width, in.Height
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			for c := 0; c < 3; c++ {
				blur := boxBlurSample(in, x, y, c)
				out.Data[i+c] = clamp01(in.Data[i+c] + (in.Data[i+c]-blur)*amount)
			}
			out.Data[i+3] = in.Data[i+3]
		}
	}
	return operator.Result{Outcome: operator.Done}
}

// boxBlurSample averages the 3x3 neighborhood of (x, y) in channel c,
// clamping at the buffer edges.
func boxBlurSample(buf *operator.Buffer, x, y, c int) float32 {
	var sum float32
	n := 0
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			nx, ny := x+dx, y+dy
			if nx < 0 || ny < 0 || nx >= buf.Width || ny >= buf.Height {
				continue
			}
			sum += buf.Data[(ny*buf.Width+nx)*4+c]
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float32(n)
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
