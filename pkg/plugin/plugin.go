// Package plugin defines the contract between serverboot and its plugins.
//
// A plugin module (a Go shared object, an out-of-process executable, or a
// module compiled into the host) exposes a Manifest: its declared module
// name plus the list of types it exports. Types that implement the plugin
// capability carry a Factory, which the host calls with its Host handle to
// construct an instance. The host only activates types annotated with an
// APIVersion matching its own major.minor.
package plugin

import (
	"context"
)

// Plugin is the capability every activatable type must provide.
type Plugin interface {
	// Name is the display name, also the tiebreaker for initialization order.
	Name() string
	Version() string
	Author() string

	// Order is the initialization priority. Lower values initialize first.
	Order() int

	// Initialize is called once, in (Order, Name) order, after every plugin
	// of the loading pass has been constructed.
	Initialize(ctx context.Context) error

	// Shutdown is called when the host tears the plugin container down.
	Shutdown(ctx context.Context) error
}

// Factory constructs a plugin instance bound to the running host.
type Factory func(host Host) (Plugin, error)

// Host is the handle of the running game server passed to every factory.
type Host interface {
	// Info describes the server the plugin is running inside.
	Info() HostInfo

	// Command writes a console command line to the server core.
	Command(ctx context.Context, line string) error

	// Log writes a diagnostic through the host's log sink.
	// Level is one of "verbose", "info", "warning", "error".
	Log(ctx context.Context, level, message string, fields map[string]any)
}

// HostInfo is the static description of the host handed to plugins.
type HostInfo struct {
	APIVersion APIVersion `json:"api_version"`
	World      string     `json:"world,omitempty"`
	Address    string     `json:"address"`
	Port       int        `json:"port"`
	MaxPlayers int        `json:"max_players"`
	Locale     string     `json:"locale"`
	Args       []string   `json:"args,omitempty"`
}
