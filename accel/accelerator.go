// Package accel provides the optional GPU-offload registry a pipeline
// executor consults per piece before falling back to CPU (§4.E, grounding
// the GPU Non-goal). Generalizes the teacher's single-slot
// accelerator.go/GPUAccelerator registry from vector-graphics operations to
// develop-pipeline tile processing.
package accel

import (
	"context"
	"errors"
	"sync"

	"github.com/rawforge/develop/operator"
)

// ErrFallbackToCPU indicates the accelerator cannot handle this piece or
// tile; the caller should transparently fall back to CPU processing.
var ErrFallbackToCPU = errors.New("accel: falling back to CPU processing")

// Accelerator is an optional GPU acceleration provider for pipeline
// pieces. At most one is registered process-wide at a time.
type Accelerator interface {
	// Name returns the accelerator's identifying name (e.g. "wgpu").
	Name() string

	// Init acquires GPU resources. Called once during registration.
	Init() error

	// Close releases GPU resources.
	Close()

	// CanAccelerate is a fast capability check the executor uses to skip
	// GPU entirely for operators or ROIs it cannot handle.
	CanAccelerate(piece *operator.Piece, roi operator.ROI) bool

	// ProcessTile runs one piece's transform on the GPU. Returns
	// ErrFallbackToCPU if this specific invocation cannot be accelerated
	// despite CanAccelerate's earlier fast check.
	ProcessTile(ctx context.Context, piece *operator.Piece, in, out *operator.Buffer, roiIn, roiOut operator.ROI) (operator.Result, error)
}

var (
	mu   sync.RWMutex
	inst Accelerator
)

// RegisterAccelerator registers a as the process-wide GPU accelerator,
// calling its Init method. Only one accelerator can be registered at a
// time; registering a new one closes and replaces the previous.
func RegisterAccelerator(a Accelerator) error {
	if a == nil {
		return errors.New("accel: accelerator must not be nil")
	}
	if err := a.Init(); err != nil {
		return err
	}
	mu.Lock()
	old := inst
	inst = a
	mu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

// Accelerator returns the currently registered accelerator, or nil if none.
func Accelerator() Accelerator {
	mu.RLock()
	a := inst
	mu.RUnlock()
	return a
}

// CloseAccelerator shuts down and clears the process-wide accelerator.
// Idempotent; safe to call when none is registered.
func CloseAccelerator() {
	mu.Lock()
	a := inst
	inst = nil
	mu.Unlock()
	if a != nil {
		a.Close()
	}
}
