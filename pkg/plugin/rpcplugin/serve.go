// Package rpcplugin serves a plugin module as a separate process.
//
// The host launches the executable through HashiCorp go-plugin and talks to
// it over net/rpc. Plugin executables only need to call Serve:
//
//	func main() {
//	    rpcplugin.Serve(plugin.Manifest{
//	        Module: "greeter",
//	        Types: []plugin.TypeSpec{{
//	            Name:       "example.com/greeter.Greeter",
//	            Plugin:     true,
//	            APIVersion: plugin.Targets(2, 1),
//	            New:        NewGreeter,
//	        }},
//	    })
//	}
package rpcplugin

import (
	"context"
	"fmt"
	"net/rpc"
	"sync"
	"sync/atomic"

	goplugin "github.com/hashicorp/go-plugin"

	"github.com/goatkit/serverboot/pkg/plugin"
)

// Handshake is shared by the host and plugin executables.
var Handshake = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "SERVERBOOT_PLUGIN",
	MagicCookieValue: "serverboot-module-v1",
}

// PluginName is the key the module is dispensed under.
const PluginName = "module"

// Serve runs the plugin side of the protocol until the host disconnects.
func Serve(m plugin.Manifest) {
	goplugin.Serve(&goplugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]goplugin.Plugin{
			PluginName: &ModulePlugin{Manifest: m},
		},
	})
}

// ModulePlugin is the go-plugin.Plugin implementation for plugin modules.
type ModulePlugin struct {
	Manifest plugin.Manifest
}

// Server returns the RPC server for the module (plugin side).
func (p *ModulePlugin) Server(b *goplugin.MuxBroker) (interface{}, error) {
	return newModuleServer(p.Manifest, b), nil
}

// Client returns the RPC client for the module (host side).
func (p *ModulePlugin) Client(b *goplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &ModuleClient{client: c, broker: b}, nil
}

// TypeInfo is the wire form of plugin.TypeSpec.
type TypeInfo struct {
	Name       string
	Plugin     bool
	Internal   bool
	Abstract   bool
	APIVersion *plugin.APIVersion
}

// ManifestResponse is the reply of Plugin.Manifest.
type ManifestResponse struct {
	Module string
	Types  []TypeInfo
}

// NewRequest asks the module to construct an instance of Type.
type NewRequest struct {
	Type     string
	Host     plugin.HostInfo
	BrokerID uint32
}

// NewResponse carries the handle and properties of a constructed instance.
type NewResponse struct {
	Instance uint32
	Name     string
	Version  string
	Author   string
	Order    int
	Error    string
}

// InstanceRequest addresses one constructed instance.
type InstanceRequest struct {
	Instance uint32
}

// ErrorResponse carries an error raised inside the plugin process.
type ErrorResponse struct {
	Error string
}

// ModuleServer is the RPC server implementation (plugin side).
type ModuleServer struct {
	manifest plugin.Manifest
	broker   *goplugin.MuxBroker

	nextID    atomic.Uint32
	mu        sync.Mutex
	instances map[uint32]plugin.Plugin
	hosts     map[uint32]*HostClient
}

func newModuleServer(m plugin.Manifest, b *goplugin.MuxBroker) *ModuleServer {
	return &ModuleServer{
		manifest:  m,
		broker:    b,
		instances: make(map[uint32]plugin.Plugin),
		hosts:     make(map[uint32]*HostClient),
	}
}

func (s *ModuleServer) Manifest(_ interface{}, resp *ManifestResponse) error {
	resp.Module = s.manifest.Module
	resp.Types = make([]TypeInfo, 0, len(s.manifest.Types))
	for _, t := range s.manifest.Types {
		resp.Types = append(resp.Types, TypeInfo{
			Name:       t.Name,
			Plugin:     t.Plugin,
			Internal:   t.Internal,
			Abstract:   !t.Constructible(),
			APIVersion: t.APIVersion,
		})
	}
	return nil
}

func (s *ModuleServer) New(req NewRequest, resp *NewResponse) error {
	spec, ok := s.lookup(req.Type)
	if !ok || !spec.Constructible() {
		resp.Error = fmt.Sprintf("type %q cannot be constructed", req.Type)
		return nil
	}

	host, err := s.host(req)
	if err != nil {
		resp.Error = err.Error()
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			resp.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	p, err := spec.New(host)
	if err != nil {
		resp.Error = err.Error()
		return nil
	}
	if p == nil {
		resp.Error = "factory returned no instance"
		return nil
	}

	id := s.nextID.Add(1)
	s.mu.Lock()
	s.instances[id] = p
	s.mu.Unlock()

	resp.Instance = id
	resp.Name = p.Name()
	resp.Version = p.Version()
	resp.Author = p.Author()
	resp.Order = p.Order()
	return nil
}

func (s *ModuleServer) Initialize(req InstanceRequest, resp *ErrorResponse) error {
	return s.invoke(req.Instance, resp, func(p plugin.Plugin) error {
		return p.Initialize(context.Background())
	})
}

func (s *ModuleServer) Shutdown(req InstanceRequest, resp *ErrorResponse) error {
	err := s.invoke(req.Instance, resp, func(p plugin.Plugin) error {
		return p.Shutdown(context.Background())
	})
	s.mu.Lock()
	delete(s.instances, req.Instance)
	s.mu.Unlock()
	return err
}

func (s *ModuleServer) invoke(id uint32, resp *ErrorResponse, fn func(plugin.Plugin) error) error {
	s.mu.Lock()
	p, ok := s.instances[id]
	s.mu.Unlock()
	if !ok {
		resp.Error = fmt.Sprintf("instance %d not found", id)
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			resp.Error = fmt.Sprintf("panic: %v", r)
		}
	}()
	if err := fn(p); err != nil {
		resp.Error = err.Error()
	}
	return nil
}

func (s *ModuleServer) lookup(name string) (plugin.TypeSpec, bool) {
	for _, t := range s.manifest.Types {
		if t.Name == name {
			return t, true
		}
	}
	return plugin.TypeSpec{}, false
}

// host returns the callback client for the broker stream the host opened.
func (s *ModuleServer) host(req NewRequest) (*HostClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.hosts[req.BrokerID]; ok {
		return h, nil
	}
	conn, err := s.broker.Dial(req.BrokerID)
	if err != nil {
		return nil, fmt.Errorf("dial host: %w", err)
	}
	h := NewHostClient(rpc.NewClient(conn), req.Host)
	s.hosts[req.BrokerID] = h
	return h, nil
}
