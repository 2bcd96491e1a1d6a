// Package loader runs plugin loading passes: resolve each configured plugin
// module, pick its plugin types, construct them with the host handle and
// initialize them in order.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goatkit/serverboot/internal/plugin"
	"github.com/goatkit/serverboot/internal/plugin/discovery"
	"github.com/goatkit/serverboot/internal/plugin/module"
)

// Pass is the outcome of one loading pass.
type Pass struct {
	ID string

	// Activated holds the plugins of this pass in initialization order.
	Activated []*plugin.Activated

	// Skipped lists plugin names whose module could not be used or whose
	// plugins are all blocked.
	Skipped []string

	// Outcomes records where every plugin type the pass looked at ended up,
	// in the order they were reached. Modules that failed to load appear
	// with an empty Type.
	Outcomes []Outcome

	Elapsed time.Duration
}

// Outcome is the state one plugin type, or one unusable module, reached.
type Outcome struct {
	Plugin string // plugin base name
	Type   string
	State  plugin.State
	Reason string
}

func (p *Pass) record(name, typeName string, state plugin.State, reason string) int {
	p.Outcomes = append(p.Outcomes, Outcome{Plugin: name, Type: typeName, State: state, Reason: reason})
	return len(p.Outcomes) - 1
}

// Loader runs loading passes against a registry and collects the plugins
// into a container.
type Loader struct {
	registry  *module.Registry
	container *plugin.Container
	host      plugin.Host
	logger    *slog.Logger

	ignoreVersion bool
	hostVersion   plugin.APIVersion
	policies      map[string]plugin.HostPolicy
	reporter      TimingReporter

	filter    *discovery.Filter
	activator *Activator
	sequencer *Sequencer

	mu     sync.Mutex // serializes passes
	active map[string]bool
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithIgnoreVersion disables API version enforcement.
func WithIgnoreVersion(ignore bool) LoaderOption {
	return func(l *Loader) {
		l.ignoreVersion = ignore
	}
}

// WithHostVersion overrides the API version plugins are checked against.
func WithHostVersion(v plugin.APIVersion) LoaderOption {
	return func(l *Loader) {
		l.hostVersion = v
	}
}

// WithTimingReporter sets where plugin and pass timings go.
func WithTimingReporter(r TimingReporter) LoaderOption {
	return func(l *Loader) {
		l.reporter = r
	}
}

// WithPolicies sets per-plugin host policies keyed by plugin base name.
func WithPolicies(policies map[string]plugin.HostPolicy) LoaderOption {
	return func(l *Loader) {
		l.policies = policies
	}
}

// NewLoader creates a loader. Plugins are handed host, scoped per instance.
func NewLoader(registry *module.Registry, container *plugin.Container, host plugin.Host, logger *slog.Logger, opts ...LoaderOption) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{
		registry:  registry,
		container: container,
		host:      host,
		logger:    logger,
		active:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.filter = discovery.New(discovery.Options{
		HostVersion:   l.hostVersion,
		IgnoreVersion: l.ignoreVersion,
		Logger:        logger,
	})
	l.activator = NewActivator(logger, WithHostPolicies(l.policies))
	l.sequencer = NewSequencer(logger, l.reporter)
	return l
}

// Container returns the container plugins are collected into.
func (l *Loader) Container() *plugin.Container {
	return l.container
}

// Run loads the named plugins in configuration order. Names whose plugins
// are already active are skipped. A fatal error aborts the pass: plugins
// activated before it stay in the container, in whatever state they reached.
func (l *Loader) Run(ctx context.Context, names []string) (*Pass, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pass := &Pass{ID: uuid.NewString()}
	logger := l.logger.With("pass", pass.ID)
	start := time.Now()
	defer func() {
		pass.Elapsed = time.Since(start)
	}()

	logger.Log(ctx, slogVerbose, "Loading plugins", "count", len(names))

	var batch []*plugin.Activated
	outcomes := make(map[*plugin.Activated]int)
	for _, name := range names {
		if l.active[name] {
			logger.Log(ctx, slogVerbose, "Plugin already active, skipped", "plugin", name)
			continue
		}

		loaded, err := l.registry.Resolve(ctx, name)
		if err != nil {
			if plugin.IsFatal(err) {
				pass.record(name, "", plugin.StateFailed, err.Error())
				return pass, err
			}
			pass.Skipped = append(pass.Skipped, name)
			pass.record(name, "", plugin.StateSkipped, err.Error())
			continue
		}

		checked := l.check(pass, loaded)
		blocked := 0
		candidates := l.filter.Discover(loaded)
		for _, c := range candidates {
			i := checked[c.Name()]
			a, err := l.activator.Activate(ctx, c, l.host)
			switch {
			case errors.Is(err, ErrBlocked):
				logger.Warn(fmt.Sprintf("Plugin %q is blocked by host policy and was not activated", c.Name()),
					"plugin", name, "type", c.Name())
				pass.Outcomes[i].State, pass.Outcomes[i].Reason = plugin.StateSkipped, ErrBlocked.Error()
				blocked++
				continue
			case err != nil:
				pass.Outcomes[i].State, pass.Outcomes[i].Reason = plugin.StateFailed, err.Error()
				return pass, err
			}
			pass.Outcomes[i].State = a.State
			outcomes[a] = i
			l.container.Add(a)
			batch = append(batch, a)
		}
		if blocked > 0 && blocked == len(candidates) {
			pass.Skipped = append(pass.Skipped, name)
		}
		l.active[name] = true
	}

	pass.Activated = Order(batch)
	initErr := l.sequencer.InitializeAll(ctx, batch)
	for a, i := range outcomes {
		pass.Outcomes[i].State = a.State
		if a.State == plugin.StateFailed {
			pass.Outcomes[i].Reason = initErr.Error()
		}
	}
	if initErr != nil {
		return pass, initErr
	}

	if l.reporter != nil {
		l.reporter.PassCompleted(pass.ID, len(batch), time.Since(start))
	}
	logger.Info("Plugins loaded",
		"plugins", len(batch),
		"skipped", len(pass.Skipped),
		"elapsed", time.Since(start),
	)
	return pass, nil
}

// check records every plugin type of loaded as discovered and moves it on to
// version-checked or skipped. It returns the outcome index of each type
// that may be activated.
func (l *Loader) check(pass *Pass, loaded *module.Loaded) map[string]int {
	eligible := make(map[string]int)
	for _, t := range loaded.Module.Types() {
		verdict := l.filter.Classify(t)
		if verdict == discovery.NotPlugin {
			continue
		}
		i := pass.record(loaded.Name(), t.Name, plugin.StateDiscovered, "")
		if verdict != discovery.Eligible {
			pass.Outcomes[i].State = plugin.StateSkipped
			pass.Outcomes[i].Reason = string(verdict)
			continue
		}
		pass.Outcomes[i].State = plugin.StateVersionChecked
		eligible[t.Name] = i
	}
	return eligible
}

// Unload shuts down the plugins of a module and evicts it from the
// registry, so the next pass loads the file again.
func (l *Loader) Unload(ctx context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.unload(ctx, name)
}

func (l *Loader) unload(ctx context.Context, name string) error {
	delete(l.active, name)
	shutdownErr := l.container.RemoveModule(ctx, name)
	if err := l.registry.Evict(name); err != nil {
		return fmt.Errorf("evict %s: %w", name, err)
	}
	return shutdownErr
}

// Reload unloads a module and runs a pass for it alone.
func (l *Loader) Reload(ctx context.Context, name string) (*Pass, error) {
	l.mu.Lock()
	err := l.unload(ctx, name)
	l.mu.Unlock()
	if err != nil {
		l.logger.Warn("Plugin shutdown before reload failed", "plugin", name, "error", err)
	}
	return l.Run(ctx, []string{name})
}

// Shutdown shuts every plugin down and closes all modules.
func (l *Loader) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.active = make(map[string]bool)
	shutdownErr := l.container.ShutdownAll(ctx)
	if err := l.registry.Close(); err != nil {
		return fmt.Errorf("close modules: %w", err)
	}
	return shutdownErr
}
