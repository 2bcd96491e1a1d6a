// Twin declares the same module name as the Greeter example plugin. It only
// exists to be built next to it in tests.
package main

import (
	"context"

	"github.com/goatkit/serverboot/pkg/plugin"
)

type Twin struct {
	host plugin.Host
}

func (t *Twin) Name() string    { return "Twin" }
func (t *Twin) Version() string { return "0.1.0" }
func (t *Twin) Author() string  { return "serverboot" }
func (t *Twin) Order() int      { return 0 }

func (t *Twin) Initialize(ctx context.Context) error {
	return t.host.Command(ctx, "say twin")
}

func (t *Twin) Shutdown(context.Context) error { return nil }

var Manifest = plugin.Manifest{
	Module: "Greeter",
	Types: []plugin.TypeSpec{{
		Name:       "main.Twin",
		Plugin:     true,
		APIVersion: plugin.Targets(2, 1),
		New: func(host plugin.Host) (plugin.Plugin, error) {
			return &Twin{host: host}, nil
		},
	}},
}

func main() {}
