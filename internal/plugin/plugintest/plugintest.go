// Package plugintest provides scripted plugins, hosts and modules for tests.
package plugintest

import (
	"context"
	"sync"

	"github.com/goatkit/serverboot/pkg/plugin"
)

// Journal records the order of lifecycle calls across plugins.
type Journal struct {
	mu    sync.Mutex
	calls []string
}

func (j *Journal) add(call string) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, call)
}

// Calls returns the recorded calls, e.g. "init:Alpha", "shutdown:Alpha".
func (j *Journal) Calls() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.calls...)
}

// Plugin is a scripted plugin.
type Plugin struct {
	PluginName    string
	PluginVersion string
	PluginAuthor  string
	Priority      int

	InitErr     error
	InitPanic   any
	ShutdownErr error
	Journal     *Journal

	Host        plugin.Host
	Initialized bool
}

func (p *Plugin) Name() string    { return p.PluginName }
func (p *Plugin) Version() string { return p.PluginVersion }
func (p *Plugin) Author() string  { return p.PluginAuthor }
func (p *Plugin) Order() int      { return p.Priority }

func (p *Plugin) Initialize(context.Context) error {
	p.Journal.add("init:" + p.PluginName)
	if p.InitPanic != nil {
		panic(p.InitPanic)
	}
	if p.InitErr != nil {
		return p.InitErr
	}
	p.Initialized = true
	return nil
}

func (p *Plugin) Shutdown(context.Context) error {
	p.Journal.add("shutdown:" + p.PluginName)
	return p.ShutdownErr
}

// Type returns an annotated, constructible type spec whose factory builds p.
func Type(name string, p *Plugin) plugin.TypeSpec {
	return plugin.TypeSpec{
		Name:       name,
		Plugin:     true,
		APIVersion: plugin.Targets(2, 1),
		New: func(host plugin.Host) (plugin.Plugin, error) {
			p.Host = host
			p.Journal.add("new:" + p.PluginName)
			return p, nil
		},
	}
}

// Host is a recording plugin.Host.
type Host struct {
	HostInfo plugin.HostInfo

	mu       sync.Mutex
	commands []string
	logs     []string
}

func (h *Host) Info() plugin.HostInfo { return h.HostInfo }

func (h *Host) Command(_ context.Context, line string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands = append(h.commands, line)
	return nil
}

func (h *Host) Log(_ context.Context, _, message string, _ map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logs = append(h.logs, message)
}

// Commands returns the console commands sent so far.
func (h *Host) Commands() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.commands...)
}

// Logs returns the messages logged so far.
func (h *Host) Logs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.logs...)
}

var _ plugin.Host = (*Host)(nil)

// Module is an in-memory plugin module.
type Module struct {
	ModuleName string
	Specs      []plugin.TypeSpec

	mu     sync.Mutex
	closed bool
}

func (m *Module) Name() string             { return m.ModuleName }
func (m *Module) Types() []plugin.TypeSpec { return m.Specs }

func (m *Module) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *Module) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
