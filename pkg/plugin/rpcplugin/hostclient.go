package rpcplugin

import (
	"context"
	"errors"
	"fmt"
	"net/rpc"

	"github.com/goatkit/serverboot/pkg/plugin"
)

// CommandRequest forwards a console command to the host.
type CommandRequest struct {
	Line string
}

// LogRequest forwards a diagnostic to the host's log sink.
type LogRequest struct {
	Level   string
	Message string
	Fields  map[string]string
}

// HostClient implements plugin.Host by calling back into the host process.
type HostClient struct {
	client *rpc.Client
	info   plugin.HostInfo
}

// NewHostClient creates a host handle for plugin-to-host RPC calls.
func NewHostClient(client *rpc.Client, info plugin.HostInfo) *HostClient {
	return &HostClient{client: client, info: info}
}

func (c *HostClient) Info() plugin.HostInfo {
	return c.info
}

func (c *HostClient) Command(_ context.Context, line string) error {
	var resp ErrorResponse
	if err := c.client.Call("Plugin.Command", CommandRequest{Line: line}, &resp); err != nil {
		return fmt.Errorf("host rpc: %w", err)
	}
	if resp.Error != "" {
		return errors.New(resp.Error)
	}
	return nil
}

func (c *HostClient) Log(_ context.Context, level, message string, fields map[string]any) {
	req := LogRequest{Level: level, Message: message}
	if len(fields) > 0 {
		// gob cannot carry arbitrary values, flatten them
		req.Fields = make(map[string]string, len(fields))
		for k, v := range fields {
			req.Fields[k] = fmt.Sprint(v)
		}
	}
	var resp ErrorResponse
	c.client.Call("Plugin.Log", req, &resp) //nolint:errcheck
}

var _ plugin.Host = (*HostClient)(nil)
