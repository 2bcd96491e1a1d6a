// Package static is the loading backend for plugin modules compiled into the
// host binary. Modules are registered under a plugin base name and resolve
// to "builtin://<name>" paths.
package static

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goatkit/serverboot/internal/plugin"
	"github.com/goatkit/serverboot/internal/plugin/module"
)

// Scheme prefixes paths served by a Catalog.
const Scheme = "builtin://"

// Catalog holds built-in modules. Open shares one module per declared module
// name, so two base names declaring the same module get the same handle and
// the loader isolates the second one.
type Catalog struct {
	mu        sync.RWMutex
	manifests map[string]func() plugin.Manifest
	shared    map[string]*catalogModule
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		manifests: make(map[string]func() plugin.Manifest),
		shared:    make(map[string]*catalogModule),
	}
}

// Register adds a module under a plugin base name.
func (c *Catalog) Register(name string, manifest func() plugin.Manifest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manifests[name] = manifest
}

// Names returns the registered base names.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.manifests))
	for name := range c.manifests {
		out = append(out, name)
	}
	return out
}

func (c *Catalog) Kind() string { return module.KindStatic }

// Resolve implements module.Opener. The directory is ignored.
func (c *Catalog) Resolve(_ string, name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.manifests[name]; !ok {
		return "", false
	}
	return Scheme + name, true
}

// Open implements module.Opener.
func (c *Catalog) Open(_ context.Context, path string) (module.Module, error) {
	m, err := c.manifest(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.shared[m.Module]; ok {
		return existing, nil
	}
	mod := &catalogModule{manifest: m}
	c.shared[m.Module] = mod
	return mod, nil
}

// OpenIsolated implements module.Opener.
func (c *Catalog) OpenIsolated(_ context.Context, path string) (module.Module, error) {
	m, err := c.manifest(path)
	if err != nil {
		return nil, err
	}
	return &catalogModule{manifest: m}, nil
}

func (c *Catalog) manifest(path string) (plugin.Manifest, error) {
	name, ok := strings.CutPrefix(path, Scheme)
	if !ok {
		return plugin.Manifest{}, fmt.Errorf("%w: %s is not a built-in path", module.ErrBadFormat, path)
	}

	c.mu.RLock()
	fn, ok := c.manifests[name]
	c.mu.RUnlock()
	if !ok {
		return plugin.Manifest{}, fmt.Errorf("%w: %s", module.ErrNotFound, path)
	}

	m := fn()
	if m.Module == "" {
		m.Module = name
	}
	return m, nil
}

type catalogModule struct {
	manifest plugin.Manifest
}

func (m *catalogModule) Name() string             { return m.manifest.Module }
func (m *catalogModule) Types() []plugin.TypeSpec { return m.manifest.Types }

// Close is a no-op; built-in modules live as long as the process.
func (m *catalogModule) Close() error { return nil }

var _ module.Opener = (*Catalog)(nil)
