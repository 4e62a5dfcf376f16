// Package config holds the develop engine's typed configuration.
//
// The source system reads these values from a process-wide key/value store
// with typed getters. Here they are a plain struct: every field has a
// documented default and a valid range, and unknown options are simply a
// compile error rather than a runtime lookup failure.
package config

import "fmt"

// Config holds every tuneable the develop engine consults.
type Config struct {
	// MaxPixelCacheBytes bounds the aggregate size of the pixel cache (§4.B).
	MaxPixelCacheBytes int64

	// MaxMetadataEntries bounds the number of resident ImageRecord entries (§4.A).
	MaxMetadataEntries int

	// PreviewHeadStartMillis is how long ProcessAll delays the main pipeline
	// so the preview pipeline gets a head start. Heuristic, not an invariant (§9).
	PreviewHeadStartMillis int

	// PipelineTimeoutCoalesceMillis is a tuneable for coalescing bursts of
	// pipeline updates. Nothing in this module reads it: a pipeline's
	// timeout_micros is set only by ProcessAll's preview head start.
	PipelineTimeoutCoalesceMillis int

	// ExecutorIdleSleepMillis is the cooperative back-off between executor
	// iterations once a render completes (§4.E step l).
	ExecutorIdleSleepMillis int

	// ExecutorOuterSleepMillis is the outer-loop idle sleep when status is
	// not DIRTY and no re-entry is pending.
	ExecutorOuterSleepMillis int

	// MaxReentriesPerWake caps re-entries per executor wake (§4.E, §8 property 5).
	MaxReentriesPerWake int

	// ZoomMaxPixelRatio is the maximum allowed pixel-size multiple relative
	// to a device pixel (policy, not invariant, per §9).
	ZoomMaxPixelRatio float64

	// ZoomMinFitRatio is the minimum zoom relative to fit-to-viewport
	// (policy, not invariant, per §9).
	ZoomMinFitRatio float64

	// SidecarWriteDebounceMillis is a tuneable for coalescing sidecar writes
	// triggered by rapid metadata mutation. Only Validate reads it; the
	// metadata cache writes sidecars synchronously, without debouncing.
	SidecarWriteDebounceMillis int
}

// Default returns the baked-in default configuration.
func Default() Config {
	return Config{
		MaxPixelCacheBytes:            512 * 1024 * 1024,
		MaxMetadataEntries:            2048,
		PreviewHeadStartMillis:        150,
		PipelineTimeoutCoalesceMillis: 0,
		ExecutorIdleSleepMillis:       250,
		ExecutorOuterSleepMillis:      100,
		MaxReentriesPerWake:           2,
		ZoomMaxPixelRatio:             16.0,
		ZoomMinFitRatio:               1.0 / 3.0,
		SidecarWriteDebounceMillis:    750,
	}
}

// Validate checks that every field is within its documented range.
// Out-of-range configuration is a programmer error, not a runtime condition
// to recover from; callers are expected to call Validate once at startup.
func Validate(c Config) error {
	if c.MaxPixelCacheBytes <= 0 {
		return fmt.Errorf("config: MaxPixelCacheBytes must be positive, got %d", c.MaxPixelCacheBytes)
	}
	if c.MaxMetadataEntries <= 0 {
		return fmt.Errorf("config: MaxMetadataEntries must be positive, got %d", c.MaxMetadataEntries)
	}
	if c.PreviewHeadStartMillis < 0 {
		return fmt.Errorf("config: PreviewHeadStartMillis must be non-negative, got %d", c.PreviewHeadStartMillis)
	}
	if c.ExecutorIdleSleepMillis < 0 || c.ExecutorOuterSleepMillis < 0 {
		return fmt.Errorf("config: executor sleep durations must be non-negative")
	}
	if c.MaxReentriesPerWake < 0 {
		return fmt.Errorf("config: MaxReentriesPerWake must be non-negative, got %d", c.MaxReentriesPerWake)
	}
	if c.ZoomMaxPixelRatio <= 0 {
		return fmt.Errorf("config: ZoomMaxPixelRatio must be positive, got %f", c.ZoomMaxPixelRatio)
	}
	if c.ZoomMinFitRatio <= 0 || c.ZoomMinFitRatio > 1 {
		return fmt.Errorf("config: ZoomMinFitRatio must be in (0,1], got %f", c.ZoomMinFitRatio)
	}
	if c.SidecarWriteDebounceMillis < 0 {
		return fmt.Errorf("config: SidecarWriteDebounceMillis must be non-negative, got %d", c.SidecarWriteDebounceMillis)
	}
	return nil
}
