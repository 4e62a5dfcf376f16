package pipeline

import (
	"github.com/rawforge/develop/config"
	"github.com/rawforge/develop/operator"
)

// ROI is an alias for operator.ROI: the pipeline package does not need a
// distinct type, only the convenience of naming it in its own vocabulary.
type ROI = operator.ROI

// PlanForward runs the forward ROI pass: given the input buffer's ROI,
// asks each enabled piece in order what ROI it will emit, and records it
// as that piece's RoiOut (and the next piece's RoiIn).
func PlanForward(pieces []*Piece, input ROI) {
	cur := input
	for _, p := range pieces {
		p.RoiIn = cur
		if !p.Enabled {
			p.RoiOut = cur
			continue
		}
		p.RoiOut = p.Op.ModifyRoiOut(toOperatorPiece(p), cur)
		cur = p.RoiOut
	}
}

// PlanBackward runs the backward ROI pass: given the final requested
// output ROI, walks pieces from last to first computing the RoiIn each one
// needs to produce its already-known RoiOut.
func PlanBackward(pieces []*Piece, requested ROI) {
	cur := requested
	for i := len(pieces) - 1; i >= 0; i-- {
		p := pieces[i]
		p.RoiOut = cur
		if !p.Enabled {
			p.RoiIn = cur
			cur = p.RoiIn
			continue
		}
		p.RoiIn = p.Op.ModifyRoiIn(toOperatorPiece(p), cur)
		cur = p.RoiIn
	}
}

func toOperatorPiece(p *Piece) *operator.Piece {
	return &operator.Piece{
		ModuleName:    p.ModuleName,
		MultiPriority: p.MultiPriority,
		Enabled:       p.Enabled,
		Params:        p.Params,
		Blend:         p.Blend,
		UserData:      p.UserData,
	}
}

// NaturalScale computes the scale that maps the fully processed image to
// the viewport: min(viewport_w/processed_w, viewport_h/processed_h, 1) *
// devicePPD.
func NaturalScale(viewportW, viewportH, processedW, processedH int, devicePPD float64) float64 {
	if processedW <= 0 || processedH <= 0 {
		return 0
	}
	fitW := float64(viewportW) / float64(processedW)
	fitH := float64(viewportH) / float64(processedH)
	fit := fitW
	if fitH < fit {
		fit = fitH
	}
	if fit > 1 {
		fit = 1
	}
	return fit * devicePPD
}

// ClampZoom bounds a requested display scale between the config's
// fit-to-viewport floor (naturalScale * ZoomMinFitRatio) and its
// device-pixel ceiling (ZoomMaxPixelRatio).
func ClampZoom(scale, naturalScale float64, cfg config.Config) float64 {
	min := naturalScale * cfg.ZoomMinFitRatio
	max := cfg.ZoomMaxPixelRatio
	if scale < min {
		return min
	}
	if scale > max {
		return max
	}
	return scale
}

// ActiveDisablesCurrent reports whether piece p's own distortion should be
// suppressed because it is the module currently being interactively
// edited: the live preview shows the image as if the active module were
// still at its pre-edit identity transform.
func ActiveDisablesCurrent(activeModuleName string, p *Piece) bool {
	return activeModuleName != "" && p.ModuleName == activeModuleName
}

// DistortTransform walks pieces applying each enabled (and not currently
// suppressed) piece's DistortTransform, forward or backward depending on
// dir. activeModuleName may be empty if no module is being interactively
// edited.
func DistortTransform(pieces []*Piece, pts []operator.Point, dir operator.Direction, activeModuleName string) []operator.Point {
	out := append([]operator.Point(nil), pts...)

	apply := func(p *Piece) {
		if !p.Enabled || ActiveDisablesCurrent(activeModuleName, p) {
			return
		}
		op := toOperatorPiece(p)
		if dir == operator.Forward {
			out = p.Op.DistortTransform(op, out)
		} else {
			out = p.Op.DistortBacktransform(op, out)
		}
	}

	if dir == operator.Forward {
		for _, p := range pieces {
			apply(p)
		}
	} else {
		for i := len(pieces) - 1; i >= 0; i-- {
			apply(pieces[i])
		}
	}
	return out
}
