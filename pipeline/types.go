// Package pipeline implements the per-image develop pipeline: its piece
// graph (§4.C), ROI planner (§4.D), and executor state machine (§4.E).
package pipeline

import "github.com/rawforge/develop/pixelcache"

// PipelineType tags which kind of render a pipeline produces. Reuses
// pixelcache's enum directly since the pixel cache's sizing rule (EXPORT
// and THUMBNAIL never cache intermediates) is keyed on the same type.
type PipelineType = pixelcache.PipelineType

const (
	Preview   = pixelcache.Preview
	Full      = pixelcache.Full
	Thumbnail = pixelcache.Thumbnail
	Export    = pixelcache.Export
)

// Status is a pipeline's rendering status.
type Status int32

const (
	Dirty Status = iota
	Undef
	Valid
	Invalid
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case Dirty:
		return "Dirty"
	case Undef:
		return "Undef"
	case Valid:
		return "Valid"
	case Invalid:
		return "Invalid"
	default:
		return "Unknown"
	}
}

// ChangeSet is the kind of pending change a pipeline carries into its next
// wake. The executor distinguishes two cases only: ChangeSynch and
// ChangeRemove force a full Graph.Rebuild (and flush this pipeline type's
// pixel cache entries); every other change, ChangeTopChanged and
// ChangeZoomed included, runs Graph.Resync over the whole active prefix.
// There is no separate top-only or ROI-only path.
type ChangeSet int

const (
	// ChangeTopChanged means only the most recent history item changed.
	ChangeTopChanged ChangeSet = iota
	// ChangeRemove means a module was removed from the stack; a full
	// rebuild is required.
	ChangeRemove
	// ChangeSynch means the full history prefix must be resynced.
	ChangeSynch
	// ChangeZoomed means only the ROI changed; the executor still resyncs
	// the piece list against the history.
	ChangeZoomed
)
