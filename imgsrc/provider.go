// Package imgsrc provides the full-resolution image source a pipeline reads
// from: a decode/provider abstraction plus the mipmap chain and pooling
// support the ROI planner and preview path use (§6 Component Collaborators).
package imgsrc

import "github.com/rawforge/develop/operator"

// Handle identifies one decoded source image.
type Handle struct {
	ImageID  int64
	Revision uint32 // bumped whenever the on-disk source or its orientation changes
}

// Provider decodes a raw or rendered source image into a linear float32 RGBA
// buffer. Implementations wrap the actual raw-decoder/codec; this package
// only defines the shape a pipeline depends on.
type Provider interface {
	// Decode returns the full-resolution buffer for handle. Callers must
	// not mutate the returned buffer's Data in place; treat it as
	// immutable and copy before writing.
	Decode(handle Handle) (*operator.Buffer, error)

	// Dimensions returns the full-resolution width/height without
	// decoding pixel data, when known cheaply (e.g. from a sidecar or
	// cached metadata record).
	Dimensions(handle Handle) (width, height int, ok bool)
}
