//go:build linux || darwin || freebsd

package native

import (
	"fmt"
	goplugin "plugin"

	"github.com/goatkit/serverboot/internal/plugin"
	"github.com/goatkit/serverboot/internal/plugin/module"
)

func open(path string) (plugin.Manifest, error) {
	p, err := goplugin.Open(path)
	if err != nil {
		return plugin.Manifest{}, err
	}

	sym, err := p.Lookup(plugin.ManifestSymbol)
	if err != nil {
		return plugin.Manifest{}, fmt.Errorf("%w: %v", module.ErrBadFormat, err)
	}
	m, err := manifestFrom(sym)
	if err != nil {
		return plugin.Manifest{}, err
	}
	if m.Module == "" {
		return plugin.Manifest{}, fmt.Errorf("%w: manifest declares no module name", module.ErrBadFormat)
	}
	return m, nil
}
