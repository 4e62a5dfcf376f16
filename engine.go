// Package develop implements the non-destructive develop engine: a pixel
// cache and metadata cache shared by two concurrent render pipelines
// (full-resolution and preview), driven by per-pipeline executors and
// coordinated through a signal bus, an append-only edit history, and a
// typed undo manager.
//
// Everywhere the source treats a collaborator as a process-wide global
// (Design Notes, "Mutable-global state"), this package instead threads an
// explicit *Engine through its constructors.
package develop

import (
	"context"
	"fmt"
	"sync"

	"github.com/rawforge/develop/config"
	"github.com/rawforge/develop/imgsrc"
	"github.com/rawforge/develop/metacache"
	"github.com/rawforge/develop/operator"
	"github.com/rawforge/develop/pixelcache"
	"github.com/rawforge/develop/signalbus"
	"github.com/rawforge/develop/undo"
)

// Engine bundles the collaborators every Controller shares: configuration,
// the operator registry, the metadata and pixel caches, the signal bus, the
// undo manager, and the full-resolution image source. One Engine typically
// backs an entire process; any number of Controllers (one per open image)
// may share it.
type Engine struct {
	Config   config.Config
	Registry *operator.Registry
	Meta     *metacache.Cache
	Pixels   *pixelcache.Cache
	Bus      *signalbus.Bus
	Undo     *undo.Manager
	Source   imgsrc.Provider

	bufferPool *imgsrc.Pool

	// threadsafe serializes FULL-pipeline runs against a shared
	// heavyweight resource, mirroring the source's process-wide
	// pipeline_threadsafe mutex (§5). Shared by every Controller's main
	// executor built from this Engine.
	threadsafe sync.Mutex
}

// NewEngine constructs an Engine from opts, applying config.Default() and a
// fresh empty operator.Registry unless overridden. Wires a first-priority
// subscriber on signalbus.TopicImageInfoChanged that force-reloads the
// affected entry out of the metadata cache, matching the source's
// mimic_image_cache invalidation hook (§4.A).
func NewEngine(opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := config.Validate(o.cfg); err != nil {
		return nil, fmt.Errorf("develop: %w", err)
	}
	if o.registry == nil {
		o.registry = operator.NewRegistry()
	}

	meta := metacache.New(o.store, o.sidecar, o.cfg.MaxMetadataEntries)
	bus := signalbus.New()
	bus.MustSubscribeFirst(signalbus.TopicImageInfoChanged, func(payload any) {
		id, ok := payload.(metacache.ImageID)
		if !ok {
			return
		}
		h, err := meta.GetReload(context.Background(), id, metacache.ReadMode)
		if err != nil {
			Logger().Warn("develop: metadata reload after image-info-changed failed", "image_id", id, "error", err)
			return
		}
		_ = h.Release(context.Background(), metacache.Minimal)
	})

	e := &Engine{
		Config:     o.cfg,
		Registry:   o.registry,
		Meta:       meta,
		Pixels:     pixelcache.New(o.cfg.MaxPixelCacheBytes),
		Bus:        bus,
		Undo:       undo.NewManager(),
		Source:     o.source,
		bufferPool: imgsrc.NewPool(8),
	}
	bus.Publish(signalbus.TopicDevelopInitialize, e)
	return e, nil
}
