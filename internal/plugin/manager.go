package plugin

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Container owns every activated plugin of the process. It grows as loading
// passes activate plugins and only shrinks on reload or shutdown.
type Container struct {
	mu      sync.RWMutex
	plugins []*Activated
}

// NewContainer creates an empty plugin container.
func NewContainer() *Container {
	return &Container{}
}

// Add registers an activated plugin.
func (c *Container) Add(a *Activated) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plugins = append(c.plugins, a)
}

// Plugins returns all plugins ordered by (Order, Name).
func (c *Container) Plugins() []*Activated {
	c.mu.RLock()
	out := slices.Clone(c.plugins)
	c.mu.RUnlock()

	slices.SortStableFunc(out, compare)
	return out
}

// Initialized returns the plugins that completed initialization, in order.
func (c *Container) Initialized() []Plugin {
	var out []Plugin
	for _, a := range c.Plugins() {
		if a.State == StateInitialized {
			out = append(out, a.Plugin)
		}
	}
	return out
}

// Get returns the first plugin, in container order, with the given name.
func (c *Container) Get(name string) (*Activated, bool) {
	for _, a := range c.Plugins() {
		if a.Plugin.Name() == name {
			return a, true
		}
	}
	return nil, false
}

// Len returns the number of plugins held.
func (c *Container) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.plugins)
}

// RemoveModule shuts down and drops every plugin loaded from module.
func (c *Container) RemoveModule(ctx context.Context, module string) error {
	c.mu.Lock()
	var removed []*Activated
	kept := c.plugins[:0]
	for _, a := range c.plugins {
		if a.Module == module {
			removed = append(removed, a)
			continue
		}
		kept = append(kept, a)
	}
	c.plugins = kept
	c.mu.Unlock()

	slices.SortStableFunc(removed, compare)
	return shutdown(ctx, removed)
}

// ShutdownAll shuts every plugin down in reverse initialization order and
// empties the container.
func (c *Container) ShutdownAll(ctx context.Context) error {
	all := c.Plugins()

	c.mu.Lock()
	c.plugins = nil
	c.mu.Unlock()

	return shutdown(ctx, all)
}

func shutdown(ctx context.Context, ordered []*Activated) error {
	var errs []error
	for i := len(ordered) - 1; i >= 0; i-- {
		a := ordered[i]
		if a.State != StateInitialized {
			continue
		}
		if err := a.Plugin.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("plugin %q: %w", a.Plugin.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

func compare(a, b *Activated) int {
	switch {
	case Less(a, b):
		return -1
	case Less(b, a):
		return 1
	}
	return 0
}
