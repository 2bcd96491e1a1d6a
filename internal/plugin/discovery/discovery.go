// Package discovery selects the activatable plugin types of a loaded module.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/goatkit/serverboot/internal/logging"
	"github.com/goatkit/serverboot/internal/plugin"
	"github.com/goatkit/serverboot/internal/plugin/module"
)

// Candidate is a plugin type that passed every filter.
type Candidate struct {
	Type   plugin.TypeSpec
	Module *module.Loaded
}

// Name returns the fully-qualified type name.
func (c Candidate) Name() string {
	return c.Type.Name
}

// Options configures a Filter.
type Options struct {
	// HostVersion defaults to plugin.HostAPIVersion.
	HostVersion plugin.APIVersion

	// IgnoreVersion disables API version enforcement.
	IgnoreVersion bool

	Logger *slog.Logger
}

// Filter picks plugin types out of loaded modules.
type Filter struct {
	host          plugin.APIVersion
	ignoreVersion bool
	logger        *slog.Logger
}

// New creates a Filter.
func New(opts Options) *Filter {
	if opts.HostVersion == (plugin.APIVersion{}) {
		opts.HostVersion = plugin.HostAPIVersion
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Filter{host: opts.HostVersion, ignoreVersion: opts.IgnoreVersion, logger: opts.Logger}
}

// Verdict is the filter's decision about one exported type.
type Verdict string

const (
	Eligible        Verdict = "eligible"
	NotPlugin       Verdict = "not a plugin"
	Unannotated     Verdict = "no api version"
	VersionMismatch Verdict = "api version mismatch"
)

// Classify decides whether t can be activated. A type is eligible when it
// implements the plugin capability, is public, can be constructed and
// carries an API version annotation matching the host's major.minor.
func (f *Filter) Classify(t plugin.TypeSpec) Verdict {
	switch {
	case !t.Plugin || t.Internal || !t.Constructible():
		return NotPlugin
	case t.APIVersion == nil:
		return Unannotated
	case !f.ignoreVersion && !t.APIVersion.Compatible(f.host):
		return VersionMismatch
	}
	return Eligible
}

// Discover returns the module's eligible plugin types in declaration order.
// Naming warnings are emitted once per module, and only when it has at
// least one eligible type.
func (f *Filter) Discover(loaded *module.Loaded) []Candidate {
	var out []Candidate
	for _, t := range loaded.Module.Types() {
		switch f.Classify(t) {
		case NotPlugin:
			continue
		case Unannotated:
			f.logger.Log(context.Background(), logging.LevelVerbose, "Type has no API version annotation, skipped",
				"plugin", loaded.Name(), "type", t.Name)
			continue
		case VersionMismatch:
			f.logger.Warn(fmt.Sprintf("Plugin %q is designed for a different Server API version (%s) and was ignored.", t.Name, t.APIVersion.Short()),
				"plugin", loaded.Name(),
				"type", t.Name,
				"version", t.APIVersion.Short(),
				"host_version", f.host.Short(),
			)
			continue
		}
		out = append(out, Candidate{Type: t, Module: loaded})
	}

	if len(out) > 0 {
		f.checkNaming(loaded)
	}
	return out
}

func (f *Filter) checkNaming(loaded *module.Loaded) {
	base := loaded.Name()
	if declared := loaded.Module.Name(); declared != base {
		f.logger.Warn(fmt.Sprintf("Plugin module name %q is inconsistent with plugin file name %q", declared, base),
			"plugin", base, "module", declared)
	}
	if !isASCII(base) {
		f.logger.Warn(fmt.Sprintf("Plugin name %q contains non-ascii character(s)", base),
			"plugin", base)
	}
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
