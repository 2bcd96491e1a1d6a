// Greeter is an example native plugin module.
//
// Build: go build -buildmode=plugin -o plugins/Greeter.so ./plugins/greeter
//
// It welcomes the world on the server console and registers a helper type
// without an API annotation, which the host leaves alone.
package main

import (
	"context"
	"fmt"

	"github.com/goatkit/serverboot/pkg/plugin"
)

// Greeter says hello once the server is about to initialize.
type Greeter struct {
	host plugin.Host
}

// NewGreeter is the plugin factory.
func NewGreeter(host plugin.Host) (plugin.Plugin, error) {
	return &Greeter{host: host}, nil
}

func (g *Greeter) Name() string    { return "Greeter" }
func (g *Greeter) Version() string { return "1.2.0" }
func (g *Greeter) Author() string  { return "serverboot" }
func (g *Greeter) Order() int      { return 10 }

// Initialize implements plugin.Plugin.
func (g *Greeter) Initialize(ctx context.Context) error {
	return g.host.Command(ctx, greeting(g.host.Info()))
}

// Shutdown implements plugin.Plugin.
func (g *Greeter) Shutdown(ctx context.Context) error {
	g.host.Log(ctx, "verbose", "Greeter stopped", nil)
	return nil
}

func greeting(info plugin.HostInfo) string {
	if info.World == "" {
		return "say Welcome!"
	}
	return fmt.Sprintf("say Welcome to %s!", info.World)
}

// Manifest is looked up by the host when Greeter.so is opened.
var Manifest = plugin.Manifest{
	Module: "Greeter",
	Types: []plugin.TypeSpec{
		{
			Name:       "main.Greeter",
			Plugin:     true,
			APIVersion: plugin.Targets(2, 1),
			New:        NewGreeter,
		},
		{
			Name:   "main.MessageFormat",
			Plugin: false,
		},
	},
}

func main() {}
