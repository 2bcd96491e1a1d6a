// Package grpc is the loading backend for out-of-process plugin modules,
// using HashiCorp go-plugin.
//
// A module is an executable in the plugin directory that calls
// rpcplugin.Serve. Each open launches a new process, so modules opened from
// different files never share state. Plugins call back into the host
// (console commands, logging) over the go-plugin broker.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"

	"github.com/goatkit/serverboot/internal/plugin"
	"github.com/goatkit/serverboot/internal/plugin/binfmt"
	"github.com/goatkit/serverboot/internal/plugin/module"
	"github.com/goatkit/serverboot/pkg/plugin/rpcplugin"
)

// PluginMap is the map of plugin types we support.
var PluginMap = map[string]goplugin.Plugin{
	rpcplugin.PluginName: &rpcplugin.ModulePlugin{},
}

// Options configures the executable backend.
type Options struct {
	// LogOutput receives the plugin processes' own log lines.
	LogOutput io.Writer
	LogLevel  string
}

// Opener launches plugin executables.
type Opener struct {
	opts Options
}

// NewOpener creates an executable backend.
func NewOpener(opts Options) *Opener {
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}
	if opts.LogLevel == "" {
		opts.LogLevel = "info"
	}
	return &Opener{opts: opts}
}

func (o *Opener) Kind() string { return module.KindExecutable }

// Resolve implements module.Opener. On Windows the ".exe" suffix is implied.
func (o *Opener) Resolve(dir, name string) (string, bool) {
	path := filepath.Join(dir, name)
	if runtime.GOOS == "windows" && !strings.EqualFold(filepath.Ext(path), ".exe") {
		path += ".exe"
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0 {
		return "", false
	}
	return path, true
}

// Open implements module.Opener.
func (o *Opener) Open(ctx context.Context, path string) (module.Module, error) {
	return o.launch(ctx, path)
}

// OpenIsolated implements module.Opener. Every launch is already isolated.
func (o *Opener) OpenIsolated(ctx context.Context, path string) (module.Module, error) {
	return o.launch(ctx, path)
}

func (o *Opener) launch(_ context.Context, path string) (*remoteModule, error) {
	// Interpreter scripts are launched like binaries; the handshake decides.
	if _, err := binfmt.Detect(path); err != nil {
		if errors.Is(err, binfmt.ErrUnknownFormat) {
			return nil, fmt.Errorf("%w: %v", module.ErrBadFormat, err)
		}
		return nil, err
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "plugin." + name,
		Output: o.opts.LogOutput,
		Level:  hclog.LevelFromString(o.opts.LogLevel),
	})

	cmd := exec.Command(path)
	applyProcessSandbox(cmd)

	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig: rpcplugin.Handshake,
		Plugins:         PluginMap,
		Cmd:             cmd,
		Logger:          logger,
		AllowedProtocols: []goplugin.Protocol{
			goplugin.ProtocolNetRPC,
		},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		// The file runs but does not speak the module protocol.
		return nil, fmt.Errorf("%w: handshake with %s failed: %v", module.ErrBadFormat, filepath.Base(path), err)
	}

	raw, err := rpcClient.Dispense(rpcplugin.PluginName)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to dispense module: %w", err)
	}

	impl, ok := raw.(*rpcplugin.ModuleClient)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("unexpected module client type %T", raw)
	}

	manifest, err := impl.Manifest()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to read module manifest: %w", err)
	}
	if manifest.Module == "" {
		client.Kill()
		return nil, fmt.Errorf("%w: manifest declares no module name", module.ErrBadFormat)
	}

	m := &remoteModule{client: client, impl: impl, name: manifest.Module}
	for _, t := range manifest.Types {
		spec := plugin.TypeSpec{
			Name:       t.Name,
			Plugin:     t.Plugin,
			Internal:   t.Internal,
			Abstract:   t.Abstract,
			APIVersion: t.APIVersion,
		}
		if !t.Abstract {
			spec.New = m.factory(t.Name)
		}
		m.types = append(m.types, spec)
	}
	return m, nil
}

// remoteModule is a module running in a plugin process.
type remoteModule struct {
	client *goplugin.Client
	impl   *rpcplugin.ModuleClient
	name   string
	types  []plugin.TypeSpec
}

func (m *remoteModule) Name() string             { return m.name }
func (m *remoteModule) Types() []plugin.TypeSpec { return m.types }

// Close kills the plugin process.
func (m *remoteModule) Close() error {
	m.client.Kill()
	return nil
}

// factory builds instances inside the plugin process. The host handle is
// served on a fresh broker stream for every instance.
func (m *remoteModule) factory(typeName string) plugin.Factory {
	return func(host plugin.Host) (plugin.Plugin, error) {
		broker := m.impl.Broker()
		id := broker.NextId()
		go broker.AcceptAndServe(id, &HostRPCServer{Host: host})

		resp, err := m.impl.New(rpcplugin.NewRequest{
			Type:     typeName,
			Host:     host.Info(),
			BrokerID: id,
		})
		if err != nil {
			return nil, err
		}
		return &remotePlugin{
			impl:     m.impl,
			instance: resp.Instance,
			name:     resp.Name,
			version:  resp.Version,
			author:   resp.Author,
			order:    resp.Order,
		}, nil
	}
}

// remotePlugin is a plugin instance living in a plugin process.
type remotePlugin struct {
	impl     *rpcplugin.ModuleClient
	instance uint32

	name    string
	version string
	author  string
	order   int
}

func (p *remotePlugin) Name() string    { return p.name }
func (p *remotePlugin) Version() string { return p.version }
func (p *remotePlugin) Author() string  { return p.author }
func (p *remotePlugin) Order() int      { return p.order }

func (p *remotePlugin) Initialize(context.Context) error {
	return p.impl.Initialize(p.instance)
}

func (p *remotePlugin) Shutdown(context.Context) error {
	return p.impl.Shutdown(p.instance)
}

var _ module.Opener = (*Opener)(nil)
