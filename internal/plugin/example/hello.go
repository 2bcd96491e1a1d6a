// Package example provides a built-in plugin module used by tests and as a
// reference for plugin authors. Real plugins ship as shared objects or
// executables; this one is registered in the static catalog.
package example

import (
	"context"
	"fmt"

	"github.com/goatkit/serverboot/pkg/plugin"
)

// ModuleName is the declared module name of the example module.
const ModuleName = "Hello"

// HelloPlugin greets the server console once it is initialized.
type HelloPlugin struct {
	host     plugin.Host
	greeting string
	order    int
}

// NewHelloPlugin is the plugin factory.
func NewHelloPlugin(host plugin.Host) (plugin.Plugin, error) {
	if host == nil {
		return nil, fmt.Errorf("hello: host handle is required")
	}
	return &HelloPlugin{host: host, greeting: "Hello from serverboot"}, nil
}

func (p *HelloPlugin) Name() string    { return "Hello" }
func (p *HelloPlugin) Version() string { return "1.0.0" }
func (p *HelloPlugin) Author() string  { return "serverboot" }
func (p *HelloPlugin) Order() int      { return p.order }

// Initialize implements plugin.Plugin.
func (p *HelloPlugin) Initialize(ctx context.Context) error {
	info := p.host.Info()
	p.host.Log(ctx, "info", "Hello plugin initialized", map[string]any{
		"world": info.World,
		"port":  info.Port,
	})
	return p.host.Command(ctx, "say "+p.greeting)
}

// Shutdown implements plugin.Plugin.
func (p *HelloPlugin) Shutdown(ctx context.Context) error {
	p.host.Log(ctx, "info", "Hello plugin shutting down", nil)
	return nil
}

// Manifest describes the example module. GreetingFormatter is a helper type
// without an API annotation, so the host never activates it.
func Manifest() plugin.Manifest {
	return plugin.Manifest{
		Module: ModuleName,
		Types: []plugin.TypeSpec{
			{
				Name:       "github.com/goatkit/serverboot/internal/plugin/example.HelloPlugin",
				Plugin:     true,
				APIVersion: plugin.Targets(2, 1),
				New:        NewHelloPlugin,
			},
			{
				Name:   "github.com/goatkit/serverboot/internal/plugin/example.GreetingFormatter",
				Plugin: true,
				New:    NewHelloPlugin,
			},
		},
	}
}
