// Example out-of-process plugin module for serverboot.
//
// Build: go build -o plugins/Announcer ./internal/plugin/grpc/example
//
// Add "Announcer" to the plugins list of the server configuration. The host
// launches the executable, reads its manifest over RPC and constructs the
// Announcer plugin inside this process.
package main

import (
	"context"
	"fmt"

	"github.com/goatkit/serverboot/pkg/plugin"
	"github.com/goatkit/serverboot/pkg/plugin/rpcplugin"
)

// Announcer tells the console which world is being hosted.
type Announcer struct {
	host plugin.Host
}

// NewAnnouncer is the plugin factory.
func NewAnnouncer(host plugin.Host) (plugin.Plugin, error) {
	return &Announcer{host: host}, nil
}

func (a *Announcer) Name() string    { return "Announcer" }
func (a *Announcer) Version() string { return "1.0.0" }
func (a *Announcer) Author() string  { return "serverboot" }
func (a *Announcer) Order() int      { return -1 }

// Initialize announces the world on the console.
func (a *Announcer) Initialize(ctx context.Context) error {
	info := a.host.Info()
	a.host.Log(ctx, "info", "announcing world", map[string]any{"world": info.World})
	return a.host.Command(ctx, announcement(info))
}

// Shutdown implements plugin.Plugin.
func (a *Announcer) Shutdown(ctx context.Context) error {
	a.host.Log(ctx, "info", "announcer stopped", nil)
	return nil
}

func announcement(info plugin.HostInfo) string {
	world := info.World
	if world == "" {
		world = "a new world"
	}
	return fmt.Sprintf("say Now hosting %s on port %d (max %d players)", world, info.Port, info.MaxPlayers)
}

// Manifest describes the module. The legacy type targets an older API
// revision and is skipped by the host with a warning.
func Manifest() plugin.Manifest {
	return plugin.Manifest{
		Module: "Announcer",
		Types: []plugin.TypeSpec{
			{
				Name:       "main.Announcer",
				Plugin:     true,
				APIVersion: plugin.Targets(2, 1),
				New:        NewAnnouncer,
			},
			{
				Name:       "main.LegacyAnnouncer",
				Plugin:     true,
				APIVersion: plugin.Targets(1, 0),
				New:        NewAnnouncer,
			},
		},
	}
}

func main() {
	rpcplugin.Serve(Manifest())
}
