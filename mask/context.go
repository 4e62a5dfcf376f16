package mask

import "context"

type accessorKey struct{}

// Accessor is the handle an operator's Process call uses to reach the
// current run's mask side-channel (§4.G): publish its own output masks and
// look up an upstream piece's. Reached via context rather than a Process
// parameter because operator.Op's signature is a closed, already-fixed
// capability set (Design Notes, "Dynamic dispatch over operators").
type Accessor struct {
	table   *Table
	missing *bool
}

// WithAccessor attaches an Accessor wrapping table to ctx. missing is set
// to true by Lookup if the requested mask was never published this run,
// letting the executor decide whether to request a re-entry.
func WithAccessor(ctx context.Context, table *Table, missing *bool) context.Context {
	return context.WithValue(ctx, accessorKey{}, &Accessor{table: table, missing: missing})
}

// AccessorFromContext retrieves the Accessor WithAccessor attached to ctx,
// or nil if none was attached (e.g. a pipeline type that never wires masks).
func AccessorFromContext(ctx context.Context) *Accessor {
	a, _ := ctx.Value(accessorKey{}).(*Accessor)
	return a
}

// Publish records buf as sourceOp's output under maskID for the rest of
// this pipeline run.
func (a *Accessor) Publish(sourceOp string, maskID int, buf *Buffer) {
	a.table.Publish(sourceOp, maskID, buf)
}

// Lookup retrieves the mask ref identifies. When sourceOp never published
// that mask id this run, Lookup flags the run's missing marker (an
// IntegrityViolation, §7) and returns (nil, false); the caller must not
// treat this as fatal on its own, the executor decides how to react.
func (a *Accessor) Lookup(ref Ref) (*Buffer, bool) {
	buf, ok := a.table.Lookup(ref)
	if !ok && a.missing != nil {
		*a.missing = true
	}
	return buf, ok
}
