package develop

import (
	"github.com/rawforge/develop/operator"
	"github.com/rawforge/develop/pipeline"
)

// RoiToInputSpace maps a point p in the main pipeline's processed/display
// space back to input-raster space, by chaining every enabled piece's
// inverse DistortTransform (§4.F coordinate mapping). A module currently
// under interactive edit (ActiveModule) contributes no distortion of its
// own, matching the ROI planner's active-module override.
func (c *Controller) RoiToInputSpace(p operator.Point) operator.Point {
	pieces := c.mainPl.Graph.Pieces()
	pts := pipeline.DistortTransform(pieces, []operator.Point{p}, operator.Backward, c.ActiveModule())
	if len(pts) == 0 {
		return p
	}
	return pts[0]
}

// RoiDeltaToInputSpace maps a display-space delta d, anchored at center,
// back into input-raster space by differencing two independently
// inverse-transformed points. Used to convert a mouse-drag delta into the
// raw-pixel delta a crop or spot-removal tool needs.
func (c *Controller) RoiDeltaToInputSpace(d, center operator.Point) operator.Point {
	a := c.RoiToInputSpace(center)
	b := c.RoiToInputSpace(operator.Point{X: center.X + d.X, Y: center.Y + d.Y})
	return operator.Point{X: b.X - a.X, Y: b.Y - a.Y}
}
