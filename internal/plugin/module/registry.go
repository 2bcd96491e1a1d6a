package module

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Registry caches loaded modules by plugin base name. Each name is loaded at
// most once per Registry lifetime unless it is evicted.
type Registry struct {
	loader *Loader
	logger *slog.Logger

	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]entry
}

type entry struct {
	loaded *Loaded
	err    error // recoverable failure marker
}

// NewRegistry creates a registry in front of loader.
func NewRegistry(loader *Loader, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		loader:  loader,
		logger:  logger,
		entries: make(map[string]entry),
	}
}

// Resolve returns the module for a plugin base name, loading it on first
// request. Recoverable failures are cached and returned again on later
// requests without retrying. Fatal failures are not cached.
func (r *Registry) Resolve(ctx context.Context, name string) (*Loaded, error) {
	if e, ok := r.lookup(name); ok {
		return e.loaded, e.err
	}

	v, err, _ := r.group.Do(name, func() (any, error) {
		if e, ok := r.lookup(name); ok {
			return e.loaded, e.err
		}

		loaded, err := r.load(ctx, name)
		switch {
		case err == nil:
			r.store(name, entry{loaded: loaded})
		case IsRecoverable(err):
			r.logger.Error("Plugin module could not be loaded", "plugin", name, "error", err)
			r.store(name, entry{err: err})
		}
		return loaded, err
	})
	loaded, _ := v.(*Loaded)
	return loaded, err
}

func (r *Registry) load(ctx context.Context, name string) (*Loaded, error) {
	d, err := r.loader.Describe(name)
	if err != nil {
		return nil, r.loader.fatal(Descriptor{Name: name, Path: name}, err)
	}
	return r.loader.Load(ctx, d)
}

// Modules returns every successfully loaded module, sorted by base name.
func (r *Registry) Modules() []*Loaded {
	r.mu.RLock()
	out := make([]*Loaded, 0, len(r.entries))
	for _, e := range r.entries {
		if e.loaded != nil {
			out = append(out, e.loaded)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Evict drops a name from the cache and closes its module, so the next
// Resolve loads the file again.
func (r *Registry) Evict(name string) error {
	r.mu.Lock()
	e, ok := r.entries[name]
	delete(r.entries, name)
	r.mu.Unlock()

	if !ok || e.loaded == nil {
		return nil
	}
	return r.loader.Release(e.loaded)
}

// Close releases every cached module.
func (r *Registry) Close() error {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]entry)
	r.mu.Unlock()

	var errs []error
	for _, e := range entries {
		if e.loaded != nil {
			if err := r.loader.Release(e.loaded); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) lookup(name string) (entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

func (r *Registry) store(name string, e entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = e
}
