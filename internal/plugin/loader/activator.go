package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goatkit/serverboot/internal/plugin"
	"github.com/goatkit/serverboot/internal/plugin/discovery"
)

// Activator constructs plugin instances.
type Activator struct {
	logger   *slog.Logger
	policies map[string]plugin.HostPolicy
}

// ActivatorOption configures an Activator.
type ActivatorOption func(*Activator)

// WithHostPolicies sets per-plugin host policies, keyed by plugin base name.
func WithHostPolicies(policies map[string]plugin.HostPolicy) ActivatorOption {
	return func(a *Activator) {
		a.policies = policies
	}
}

// NewActivator creates an Activator.
func NewActivator(logger *slog.Logger, opts ...ActivatorOption) *Activator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Activator{logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ErrBlocked is returned by Activate for plugins whose host policy blocks
// them. It is not fatal.
var ErrBlocked = errors.New("blocked by host policy")

// Activate calls the candidate's factory with a host handle scoped to the
// new instance and records how long construction took. Apart from
// ErrBlocked, every failure, panics and nil instances included, is fatal.
func (a *Activator) Activate(ctx context.Context, c discovery.Candidate, host plugin.Host) (*plugin.Activated, error) {
	policy := a.policies[c.Module.Name()]
	if policy.Blocked {
		return nil, fmt.Errorf("plugin %q: %w", c.Module.Name(), ErrBlocked)
	}
	scoped := plugin.NewScopedHost(host, c.Name(), policy)

	start := time.Now()
	p, err := construct(c.Type.New, scoped)
	elapsed := time.Since(start)
	if err != nil {
		return nil, &plugin.FatalError{Stage: plugin.StageConstruct, Subject: c.Name(), Err: err}
	}
	scoped.Rename(p.Name())

	a.logger.Log(ctx, slogVerbose, "Plugin constructed",
		"plugin", p.Name(),
		"type", c.Name(),
		"elapsed", elapsed,
	)
	return &plugin.Activated{
		Plugin:   p,
		TypeName: c.Name(),
		Module:   c.Module.Name(),
		Elapsed:  elapsed,
		State:    plugin.StateActivated,
	}, nil
}

var errNoInstance = errors.New("factory returned no instance")

func construct(factory plugin.Factory, host plugin.Host) (p plugin.Plugin, err error) {
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	if factory == nil {
		return nil, errNoInstance
	}
	p, err = factory(host)
	if err == nil && p == nil {
		err = errNoInstance
	}
	return p, err
}
