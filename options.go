package develop

import (
	"github.com/rawforge/develop/config"
	"github.com/rawforge/develop/imgsrc"
	"github.com/rawforge/develop/metacache"
	"github.com/rawforge/develop/operator"
)

// Option configures an Engine at construction time.
type Option func(*engineOptions)

type engineOptions struct {
	cfg      config.Config
	registry *operator.Registry
	store    metacache.Store
	sidecar  metacache.Sidecar
	source   imgsrc.Provider
}

func defaultOptions() engineOptions {
	return engineOptions{cfg: config.Default()}
}

// WithConfig overrides the engine's default configuration.
func WithConfig(cfg config.Config) Option {
	return func(o *engineOptions) { o.cfg = cfg }
}

// WithRegistry supplies a pre-populated operator registry. If omitted, an
// empty registry is created; history items referencing unregistered
// operators fail to resync until they are registered.
func WithRegistry(r *operator.Registry) Option {
	return func(o *engineOptions) { o.registry = r }
}

// WithStore configures the relational-store collaborator the metadata
// cache loads from and writes back to.
func WithStore(s metacache.Store) Option {
	return func(o *engineOptions) { o.store = s }
}

// WithSidecar configures the on-disk sidecar collaborator the metadata
// cache writes history/tags/ratings to alongside the relational store.
func WithSidecar(s metacache.Sidecar) Option {
	return func(o *engineOptions) { o.sidecar = s }
}

// WithSource configures the full-resolution image decode collaborator.
func WithSource(p imgsrc.Provider) Option {
	return func(o *engineOptions) { o.source = p }
}
