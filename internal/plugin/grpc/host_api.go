package grpc

import (
	"context"

	"github.com/goatkit/serverboot/internal/plugin"
	"github.com/goatkit/serverboot/pkg/plugin/rpcplugin"
)

// HostRPCServer exposes a plugin.Host to a plugin process.
// This runs on the host side and handles plugin callbacks.
type HostRPCServer struct {
	Host plugin.Host
}

// Command forwards a console command from the plugin.
func (s *HostRPCServer) Command(req rpcplugin.CommandRequest, resp *rpcplugin.ErrorResponse) error {
	if err := s.Host.Command(context.Background(), req.Line); err != nil {
		resp.Error = err.Error()
	}
	return nil
}

// Log forwards a diagnostic from the plugin.
func (s *HostRPCServer) Log(req rpcplugin.LogRequest, resp *rpcplugin.ErrorResponse) error {
	var fields map[string]any
	if len(req.Fields) > 0 {
		fields = make(map[string]any, len(req.Fields))
		for k, v := range req.Fields {
			fields[k] = v
		}
	}
	s.Host.Log(context.Background(), req.Level, req.Message, fields)
	return nil
}
