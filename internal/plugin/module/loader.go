package module

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/goatkit/serverboot/internal/plugin"
)

// Loader resolves plugin names to files and opens them.
type Loader struct {
	dir      string
	openers  []Opener
	verifier Verifier
	logger   *slog.Logger

	mu     sync.Mutex
	owners map[string]string // declared module name -> base name
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithVerifier checks every file-based module before it is opened.
func WithVerifier(v Verifier) LoaderOption {
	return func(l *Loader) {
		l.verifier = v
	}
}

// WithLogger sets the diagnostics sink.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// NewLoader creates a loader for dir. Openers are consulted in order.
func NewLoader(dir string, openers []Opener, opts ...LoaderOption) *Loader {
	l := &Loader{
		dir:     dir,
		openers: openers,
		logger:  slog.Default(),
		owners:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dir returns the plugin directory.
func (l *Loader) Dir() string {
	return l.dir
}

// Describe resolves a plugin base name through the backends.
func (l *Loader) Describe(name string) (Descriptor, error) {
	for _, op := range l.openers {
		if path, ok := op.Resolve(l.dir, name); ok {
			return Descriptor{Name: name, Path: path, Kind: op.Kind()}, nil
		}
	}
	return Descriptor{}, fmt.Errorf("%w: %s in %s", ErrNotFound, name, l.dir)
}

// Load opens the module described by d. Recoverable failures wrap
// ErrBadFormat or ErrUntrusted; everything else is a *plugin.FatalError.
func (l *Loader) Load(ctx context.Context, d Descriptor) (*Loaded, error) {
	op := l.opener(d.Kind)
	if op == nil {
		return nil, l.fatal(d, fmt.Errorf("no backend for kind %q", d.Kind))
	}

	if l.verifier != nil && d.Kind != KindStatic {
		if err := l.verifier.Verify(d.Path); err != nil {
			return nil, fmt.Errorf("%s: %w: %v", d.Name, ErrUntrusted, err)
		}
	}

	m, err := op.Open(ctx, d.Path)
	if err != nil {
		return nil, l.classify(d, err)
	}

	owner, claimed := l.claim(m.Name(), d.Name)
	if !claimed {
		return &Loaded{Descriptor: d, Module: m}, nil
	}

	l.logger.Warn(fmt.Sprintf("Plugin %q shares the same module name with %q, using isolated loading", d.Name, owner),
		"plugin", d.Name,
		"owner", owner,
		"module", m.Name(),
	)
	if err := m.Close(); err != nil {
		l.logger.Warn("Failed to close module before isolated load",
			"plugin", d.Name,
			"module", m.Name(),
			"error", err,
		)
	}

	iso, err := op.OpenIsolated(ctx, d.Path)
	if err != nil {
		return nil, l.classify(d, err)
	}
	return &Loaded{Descriptor: d, Module: iso, Isolated: true}, nil
}

// Release forgets a loaded module and closes it.
func (l *Loader) Release(loaded *Loaded) error {
	if loaded == nil {
		return nil
	}
	if !loaded.Isolated {
		l.mu.Lock()
		if l.owners[loaded.Module.Name()] == loaded.Name() {
			delete(l.owners, loaded.Module.Name())
		}
		l.mu.Unlock()
	}
	return loaded.Module.Close()
}

// claim records base as owner of the declared module name. It returns the
// existing owner and true if a different base name already holds it.
func (l *Loader) claim(declared, base string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	owner, ok := l.owners[declared]
	if !ok {
		l.owners[declared] = base
		return "", false
	}
	if owner == base {
		return "", false
	}
	return owner, true
}

func (l *Loader) opener(kind string) Opener {
	for _, op := range l.openers {
		if op.Kind() == kind {
			return op
		}
	}
	return nil
}

func (l *Loader) classify(d Descriptor, err error) error {
	if IsRecoverable(err) {
		return fmt.Errorf("%s: %w", d.Name, err)
	}
	return l.fatal(d, err)
}

func (l *Loader) fatal(d Descriptor, err error) error {
	return &plugin.FatalError{Stage: plugin.StageLoad, Subject: filepath.Base(d.Path), Err: err}
}
