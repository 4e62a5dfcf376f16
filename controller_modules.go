package develop

import (
	"fmt"

	"github.com/rawforge/develop/history"
	"github.com/rawforge/develop/operator"
	"github.com/rawforge/develop/signalbus"
)

// ModuleInstance is one entry in the controller's derived module list: the
// (name, multi_priority) identity of an active operator instance, its
// display name, its position among the image's stacked modules, and the
// capability flags its operator reports (§4.F module duplication/removal).
// Unlike a pipeline.Piece, a ModuleInstance has no Op, Params, or ROI of
// its own; it is bookkeeping the controller uses to assign priorities and
// names before ever touching a pipeline graph.
type ModuleInstance struct {
	Name          string
	MultiPriority int
	MultiName     string
	IopOrder      float64
	Enabled       bool
	Flags         operator.Flags
}

// rebuildModulesLocked recomputes the controller's module-instance list
// from the active history prefix. Callers must hold historyMu. Unlike
// pipeline.Graph.Rebuild, this never instantiates an Op beyond a throwaway
// call to read its Flags, since the list exists purely for the
// duplication/removal/reorder bookkeeping below.
func (c *Controller) rebuildModulesLocked() {
	items := c.history.Active()
	mods := make([]*ModuleInstance, 0, len(items))
	for i, it := range items {
		flags := c.moduleFlags(it.ModuleName)
		mods = append(mods, &ModuleInstance{
			Name:          it.ModuleName,
			MultiPriority: it.MultiPriority,
			MultiName:     fmt.Sprintf("%s %d", it.ModuleName, it.MultiPriority),
			IopOrder:      float64(i),
			Enabled:       it.Enabled,
			Flags:         flags,
		})
	}

	c.modulesMu.Lock()
	c.modules = mods
	c.modulesMu.Unlock()
}

func (c *Controller) moduleFlags(name string) operator.Flags {
	op, err := c.engine.Registry.New(name)
	if err != nil {
		return 0
	}
	return op.Flags()
}

// Modules returns a snapshot of the controller's current module-instance
// list, ordered by iop_order.
func (c *Controller) Modules() []ModuleInstance {
	c.modulesMu.RLock()
	defer c.modulesMu.RUnlock()
	out := make([]ModuleInstance, len(c.modules))
	for i, m := range c.modules {
		out[i] = *m
	}
	return out
}

// findModuleLocked must be called with modulesMu held for reading.
func (c *Controller) findModuleLocked(name string, priority int) *ModuleInstance {
	for _, m := range c.modules {
		if m.Name == name && m.MultiPriority == priority {
			return m
		}
	}
	return nil
}

// lastIndexOfNameLocked returns the highest index (== iop_order position)
// among c.modules held by name, or -1 if name has no active instance.
// Must be called with modulesMu held for reading.
func (c *Controller) lastIndexOfNameLocked(name string) int {
	last := -1
	for i, m := range c.modules {
		if m.Name == name {
			last = i
		}
	}
	return last
}

// DuplicateModule creates a new instance of the operator registered under
// name: multi_priority is (the highest existing priority for name) + 1,
// multi_name is made collision-free, and the new instance is committed to
// history immediately after the existing instance with the highest
// iop_order for name (or at the end of the stack, if name has no existing
// instance), using the operator's own default parameters (§4.F module
// duplication).
func (c *Controller) DuplicateModule(name string) (*ModuleInstance, error) {
	if !c.engine.Registry.Has(name) {
		return nil, fmt.Errorf("develop: unknown module %q", name)
	}
	op, err := c.engine.Registry.New(name)
	if err != nil {
		return nil, fmt.Errorf("develop: instantiate module %q: %w", name, err)
	}

	c.engine.Bus.Publish(signalbus.TopicDevelopHistoryWillChange, c.imageID)

	c.historyMu.Lock()
	defer c.historyMu.Unlock()

	c.modulesMu.RLock()
	maxPriority := -1
	for _, m := range c.modules {
		if m.Name == name && m.MultiPriority > maxPriority {
			maxPriority = m.MultiPriority
		}
	}
	afterIdx := c.lastIndexOfNameLocked(name)
	if afterIdx < 0 {
		afterIdx = len(c.modules) - 1 // no existing instance: land at the end of the stack
	}
	c.modulesMu.RUnlock()

	priority := maxPriority + 1

	it := history.Item{
		ModuleName:    name,
		MultiPriority: priority,
		Params:        op.DefaultParams(),
		Enabled:       true,
	}
	c.history.InsertAfter(afterIdx, it)
	c.rebuildModulesLocked()

	c.engine.Bus.Publish(signalbus.TopicDevelopHistoryChanged, c.imageID)

	inst := c.findModuleLocked(name, priority)
	if inst == nil {
		return nil, fmt.Errorf("develop: duplicated module %q vanished from its own instance list", name)
	}
	out := *inst

	c.ResyncAll()
	return &out, nil
}

// RemoveModule purges every history item referencing name under the
// history write lock, adjusting the active-tail boundary accordingly,
// drops its pieces from both pipeline graphs on their next resync, and
// publishes develop-module-remove (§4.F module removal). Returns the
// number of history items removed; zero means name was not referenced.
func (c *Controller) RemoveModule(name string) (int, error) {
	c.historyMu.Lock()
	removed := c.history.RemoveRefs(name)
	if removed > 0 {
		c.rebuildModulesLocked()
	}
	c.historyMu.Unlock()

	if removed == 0 {
		return 0, fmt.Errorf("develop: module %q not referenced in history", name)
	}

	c.engine.Bus.Publish(signalbus.TopicDevelopModuleRemove, ModuleRemovedEvent{ImageID: c.imageID, Name: name})
	c.ResyncAll()
	return removed, nil
}

// ModuleRemovedEvent is the payload published on
// signalbus.TopicDevelopModuleRemove.
type ModuleRemovedEvent struct {
	ImageID int64
	Name    string
}

// CanReorder reports whether instance a may be moved adjacent to instance
// b in iop_order: false for a module moving past itself, and false for two
// instances of a FlagOneInstance operator (which can never have more than
// one active instance to begin with) (§4.F reorder predicate).
func (c *Controller) CanReorder(a, b *ModuleInstance) bool {
	if a == nil || b == nil {
		return false
	}
	if a.Name == b.Name && a.MultiPriority == b.MultiPriority {
		return false
	}
	if a.Name == b.Name && a.Flags.Has(operator.FlagOneInstance) {
		return false
	}
	return true
}
