package rpcplugin

import (
	"errors"
	"net/rpc"

	goplugin "github.com/hashicorp/go-plugin"
)

// ModuleClient is the RPC client implementation (host side).
type ModuleClient struct {
	client *rpc.Client
	broker *goplugin.MuxBroker
}

// Broker exposes the multiplexer used for host callbacks.
func (c *ModuleClient) Broker() *goplugin.MuxBroker {
	return c.broker
}

func (c *ModuleClient) Manifest() (*ManifestResponse, error) {
	var resp ManifestResponse
	if err := c.client.Call("Plugin.Manifest", new(interface{}), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *ModuleClient) New(req NewRequest) (*NewResponse, error) {
	var resp NewResponse
	if err := c.client.Call("Plugin.New", req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}
	return &resp, nil
}

func (c *ModuleClient) Initialize(instance uint32) error {
	return c.call("Plugin.Initialize", instance)
}

func (c *ModuleClient) Shutdown(instance uint32) error {
	return c.call("Plugin.Shutdown", instance)
}

func (c *ModuleClient) call(method string, instance uint32) error {
	var resp ErrorResponse
	if err := c.client.Call(method, InstanceRequest{Instance: instance}, &resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return errors.New(resp.Error)
	}
	return nil
}
