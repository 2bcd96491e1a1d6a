//go:build !(linux || darwin || freebsd)

package native

import (
	"github.com/goatkit/serverboot/internal/plugin"
)

func open(string) (plugin.Manifest, error) {
	return plugin.Manifest{}, ErrUnsupported
}
