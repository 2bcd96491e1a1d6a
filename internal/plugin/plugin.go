// Package plugin re-exports the public plugin types from pkg/plugin and holds
// the host-side plugin records: activated plugins, the container that owns
// them, and the fatal error type of a loading pass.
package plugin

import (
	"fmt"
	"time"

	pkgplugin "github.com/goatkit/serverboot/pkg/plugin"
)

type Plugin = pkgplugin.Plugin
type Factory = pkgplugin.Factory
type Host = pkgplugin.Host
type HostInfo = pkgplugin.HostInfo
type Manifest = pkgplugin.Manifest
type TypeSpec = pkgplugin.TypeSpec
type APIVersion = pkgplugin.APIVersion

// ManifestSymbol is the symbol native modules export their manifest under.
const ManifestSymbol = pkgplugin.ManifestSymbol

var (
	Targets         = pkgplugin.Targets
	ParseAPIVersion = pkgplugin.ParseAPIVersion
)

// HostAPIVersion is the server API revision this host implements. Plugin
// types must target the same major.minor to be activated.
var HostAPIVersion = APIVersion{Major: 2, Minor: 1, Build: 0}

// State is a plugin's position in the load lifecycle.
type State int

const (
	StateDiscovered State = iota
	StateVersionChecked
	StateActivated
	StateInitialized
	StateSkipped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateVersionChecked:
		return "version-checked"
	case StateActivated:
		return "activated"
	case StateInitialized:
		return "initialized"
	case StateSkipped:
		return "skipped"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Activated is a constructed plugin instance and its bookkeeping.
type Activated struct {
	Plugin   Plugin
	TypeName string // fully-qualified type the instance was built from
	Module   string // plugin base name the type was loaded from

	// Elapsed accumulates construction and initialization time.
	Elapsed time.Duration
	State   State
}

// Less orders activated plugins by (Order, Name).
func Less(a, b *Activated) bool {
	if oa, ob := a.Plugin.Order(), b.Plugin.Order(); oa != ob {
		return oa < ob
	}
	return a.Plugin.Name() < b.Plugin.Name()
}
