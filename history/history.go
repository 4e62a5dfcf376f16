// Package history implements the append-only edit history that a develop
// pipeline resyncs against (§3 History).
package history

import "hash/fnv"

// Item is one entry in the history list: a snapshot of one module's
// parameters at the moment the user committed a change.
type Item struct {
	ModuleName    string
	MultiPriority int
	Params        []byte
	Blend         []byte
	Enabled       bool
}

// clone returns a deep copy so callers mutating a returned Item cannot
// corrupt the list's own storage.
func (it Item) clone() Item {
	out := it
	if it.Params != nil {
		out.Params = append([]byte(nil), it.Params...)
	}
	if it.Blend != nil {
		out.Blend = append([]byte(nil), it.Blend...)
	}
	return out
}

// List is the append-only history for one open image. End marks the active
// tail (everything at index >= End is undo-scrubbed-away but retained for
// redo). List is not safe for concurrent use by itself; callers
// (develop.Controller) serialize access with their own history RW lock.
type List struct {
	items []Item
	end   int
}

// New creates an empty history list.
func New() *List {
	return &List{}
}

// Append adds a new item at the end of the active prefix, discarding any
// redo tail beyond End, and advances End. Returns the new item's index.
func (l *List) Append(it Item) int {
	l.items = append(l.items[:l.end], it.clone())
	l.end = len(l.items)
	return l.end - 1
}

// InsertAfter splices it into the active prefix immediately after active
// index pos (pos == -1 inserts at the very front), discarding any redo
// tail beyond End exactly as Append does, then advances End. Returns the
// new item's index. Used by module duplication (§4.F S3), which must land
// the new instance adjacent to its base rather than at the stack's end.
func (l *List) InsertAfter(pos int, it Item) int {
	l.items = l.items[:l.end]
	if pos < -1 {
		pos = -1
	}
	if pos >= len(l.items) {
		pos = len(l.items) - 1
	}
	at := pos + 1

	items := make([]Item, 0, len(l.items)+1)
	items = append(items, l.items[:at]...)
	items = append(items, it.clone())
	items = append(items, l.items[at:]...)

	l.items = items
	l.end = len(l.items)
	return at
}

// Len returns the total number of retained items, including any redo tail.
func (l *List) Len() int { return len(l.items) }

// End returns the active-tail boundary: items [0, End) are in effect.
func (l *List) End() int { return l.end }

// SetEnd moves the active-tail boundary, implementing undo (End decreases)
// and redo (End increases, up to Len()).
func (l *List) SetEnd(end int) {
	if end < 0 {
		end = 0
	}
	if end > len(l.items) {
		end = len(l.items)
	}
	l.end = end
}

// Active returns a copy of the active prefix [0, End).
func (l *List) Active() []Item {
	out := make([]Item, l.end)
	for i := 0; i < l.end; i++ {
		out[i] = l.items[i].clone()
	}
	return out
}

// At returns the item at index i (including the redo tail), and whether it exists.
func (l *List) At(i int) (Item, bool) {
	if i < 0 || i >= len(l.items) {
		return Item{}, false
	}
	return l.items[i].clone(), true
}

// RemoveRefs deletes every item referencing moduleName from the whole list,
// redo tail included, shifting later items down and decrementing End by the
// number removed from the active prefix (§4.F module removal). Returns the
// total number removed.
func (l *List) RemoveRefs(moduleName string) int {
	kept := l.items[:0:0]
	removed := 0
	newEnd := l.end
	for i, it := range l.items {
		if it.ModuleName == moduleName {
			removed++
			if i < l.end {
				newEnd--
			}
			continue
		}
		kept = append(kept, it)
	}
	l.items = kept
	l.end = newEnd
	return removed
}

// Hash summarizes the active prefix [0, End) as a 64-bit rolling FNV-1a
// hash. Any mutation of the active prefix changes this value; it is the
// single value a pipeline compares against last_history_hash to decide
// whether a resync is needed.
func (l *List) Hash() uint64 {
	h := fnv.New64a()
	for i := 0; i < l.end; i++ {
		it := l.items[i]
		_, _ = h.Write([]byte(it.ModuleName))
		_, _ = h.Write([]byte{byte(it.MultiPriority), byte(it.MultiPriority >> 8)})
		if it.Enabled {
			_, _ = h.Write([]byte{1})
		} else {
			_, _ = h.Write([]byte{0})
		}
		_, _ = h.Write(it.Params)
		_, _ = h.Write(it.Blend)
	}
	return h.Sum64()
}
