package develop

// Masks returns a snapshot of the controller's persisted mask catalog: the
// raster/parametric mask shapes attached to module instances, distinct
// from the ephemeral per-run mask.Table side-channel the executor
// publishes to during a single pipeline render (§4.G vs. §4.F mask list).
func (c *Controller) Masks() []ModuleMask {
	c.masksMu.RLock()
	defer c.masksMu.RUnlock()
	out := make([]ModuleMask, len(c.masks))
	copy(out, c.masks)
	return out
}

// AddMask attaches a new mask shape to the given module instance and
// notifies Proxies.MaskListChanged, if set.
func (c *Controller) AddMask(m ModuleMask) {
	c.masksMu.Lock()
	c.masks = append(c.masks, m)
	c.masksMu.Unlock()

	if c.Proxies.MaskListChanged != nil {
		c.Proxies.MaskListChanged()
	}
}

// RemoveMask drops every mask shape attached to (moduleName, priority)
// matching maskID, notifying Proxies.MaskListChanged if any were removed.
func (c *Controller) RemoveMask(moduleName string, priority, maskID int) int {
	c.masksMu.Lock()
	kept := c.masks[:0:0]
	removed := 0
	for _, m := range c.masks {
		if m.ModuleName == moduleName && m.MultiPriority == priority && m.MaskID == maskID {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	c.masks = kept
	c.masksMu.Unlock()

	if removed > 0 && c.Proxies.MaskListChanged != nil {
		c.Proxies.MaskListChanged()
	}
	return removed
}
