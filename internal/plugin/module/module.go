// Package module loads plugin binaries and caches them by plugin base name.
//
// A plugin is configured by its base name. The Loader asks each backend
// (Opener) in turn whether it can resolve the name inside the plugin
// directory, opens the first match and checks that no other base name has
// already claimed the module's declared name. The Registry sits in front of
// the Loader and guarantees each base name is loaded at most once.
package module

import (
	"context"
	"errors"

	"github.com/goatkit/serverboot/internal/plugin"
)

// Backend kinds.
const (
	KindStatic     = "static"
	KindNative     = "native"
	KindExecutable = "executable"
)

var (
	// ErrBadFormat marks a file that is not a loadable plugin module. The
	// plugin is skipped.
	ErrBadFormat = errors.New("not a valid plugin module")

	// ErrUntrusted marks a module whose signature could not be verified.
	// The plugin is skipped.
	ErrUntrusted = errors.New("plugin signature not trusted")

	// ErrNotFound is returned when no backend can resolve a plugin name.
	ErrNotFound = errors.New("plugin module not found")
)

// Module is an opened plugin binary.
type Module interface {
	// Name is the module name the binary declares for itself.
	Name() string

	// Types lists the exported types, plugins and helpers alike.
	Types() []plugin.TypeSpec

	Close() error
}

// Opener is a loading backend.
type Opener interface {
	Kind() string

	// Resolve maps a plugin base name to the path this backend would open.
	Resolve(dir, name string) (path string, ok bool)

	// Open loads the module at path. Backends may hand back a module that
	// was already opened under the same declared name; closing such a
	// handle must not affect the earlier holder.
	Open(ctx context.Context, path string) (Module, error)

	// OpenIsolated loads the module at path into a fresh context, never
	// sharing state with earlier loads.
	OpenIsolated(ctx context.Context, path string) (Module, error)
}

// Verifier checks a module file before it is opened.
type Verifier interface {
	Verify(path string) error
}

// Descriptor identifies a plugin binary on disk.
type Descriptor struct {
	Name string // base name as configured
	Path string
	Kind string
}

// Loaded is a module opened for one base name.
type Loaded struct {
	Descriptor Descriptor
	Module     Module

	// Isolated is set when the module was force-loaded into its own context
	// because its declared name was already claimed by another plugin.
	Isolated bool
}

// Name returns the plugin base name the module was loaded for.
func (l *Loaded) Name() string {
	return l.Descriptor.Name
}

// IsRecoverable reports whether err only skips the plugin.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrBadFormat) || errors.Is(err, ErrUntrusted)
}
