package metacache

import (
	"context"

	"github.com/rawforge/develop/history"
)

// Store is the relational-store contract the metadata cache loads from and
// writes back to (§6 External Interfaces). Implementations own the actual
// SQL/KV backing; this package only depends on the contract.
type Store interface {
	Load(ctx context.Context, id ImageID) (*Record, error)
	Save(ctx context.Context, r *Record) error
	Delete(ctx context.Context, id ImageID) error
}

// Sidecar is the on-disk sidecar contract: a text/XML-ish per-image file
// holding history, tags, and ratings alongside the relational record.
type Sidecar interface {
	Write(ctx context.Context, r *Record, hist []history.Item) error
	Read(ctx context.Context, path string) (*Record, []history.Item, error)
}
