// Package native is the loading backend for Go plugin shared objects.
//
// A module is a file "<name>.so" built with -buildmode=plugin that exports a
// variable named Manifest of type plugin.Manifest, or a function Manifest
// returning one. The Go runtime maps each shared object once per plugin
// package path and never unloads it. Two files never share code, so an
// isolated load reopens the same file and hands out a module value of its
// own.
package native

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goatkit/serverboot/internal/plugin"
	"github.com/goatkit/serverboot/internal/plugin/binfmt"
	"github.com/goatkit/serverboot/internal/plugin/module"
)

// Ext is the file extension of native plugin modules.
const Ext = ".so"

// ErrUnsupported is returned on platforms without Go plugin support.
var ErrUnsupported = errors.New("native plugins are not supported on this platform")

// Opener opens native plugin modules.
type Opener struct{}

// NewOpener creates a native backend.
func NewOpener() *Opener {
	return &Opener{}
}

func (o *Opener) Kind() string { return module.KindNative }

// Resolve implements module.Opener.
func (o *Opener) Resolve(dir, name string) (string, bool) {
	path := filepath.Join(dir, name+Ext)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}

// Open implements module.Opener.
func (o *Opener) Open(_ context.Context, path string) (module.Module, error) {
	format, err := binfmt.Detect(path)
	if err != nil {
		if errors.Is(err, binfmt.ErrUnknownFormat) {
			return nil, fmt.Errorf("%w: %v", module.ErrBadFormat, err)
		}
		return nil, err
	}
	if !format.Object() {
		return nil, fmt.Errorf("%w: %s is a %s, not a shared object", module.ErrBadFormat, filepath.Base(path), format)
	}
	m, err := open(path)
	if err != nil {
		return nil, err
	}
	return &nativeModule{manifest: m, path: path}, nil
}

// OpenIsolated implements module.Opener. The runtime hands back the plugin
// it already mapped for path; the returned module is still a distinct value,
// so closing it never affects another plugin's module.
func (o *Opener) OpenIsolated(ctx context.Context, path string) (module.Module, error) {
	m, err := o.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("isolate %s: %w", filepath.Base(path), err)
	}
	return m, nil
}

// manifestFrom converts a looked-up Manifest symbol.
func manifestFrom(sym any) (plugin.Manifest, error) {
	switch v := sym.(type) {
	case *plugin.Manifest:
		return *v, nil
	case **plugin.Manifest:
		if *v != nil {
			return **v, nil
		}
	case func() plugin.Manifest:
		return v(), nil
	case *func() plugin.Manifest:
		return (*v)(), nil
	}
	return plugin.Manifest{}, fmt.Errorf("%w: symbol %s has type %T", module.ErrBadFormat, plugin.ManifestSymbol, sym)
}

type nativeModule struct {
	manifest plugin.Manifest
	path     string
}

func (m *nativeModule) Name() string             { return m.manifest.Module }
func (m *nativeModule) Types() []plugin.TypeSpec { return m.manifest.Types }

// Close is a no-op. The code stays mapped; Go cannot unload plugins.
func (m *nativeModule) Close() error {
	return nil
}

var _ module.Opener = (*Opener)(nil)
