package loader

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/goatkit/serverboot/internal/logging"
	"github.com/goatkit/serverboot/internal/plugin"
)

const slogVerbose = logging.LevelVerbose

// TimingReporter receives load timings.
type TimingReporter interface {
	// PluginInitialized reports construction plus initialization time.
	PluginInitialized(name string, elapsed time.Duration)

	// PassCompleted reports the wall time of a whole loading pass.
	PassCompleted(passID string, plugins int, elapsed time.Duration)
}

// Sequencer initializes activated plugins in (Order, Name) order.
type Sequencer struct {
	logger   *slog.Logger
	reporter TimingReporter
}

// NewSequencer creates a Sequencer. reporter may be nil.
func NewSequencer(logger *slog.Logger, reporter TimingReporter) *Sequencer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{logger: logger, reporter: reporter}
}

// Order returns plugins sorted by (Order, Name). Equal keys keep their
// input order.
func Order(plugins []*plugin.Activated) []*plugin.Activated {
	out := slices.Clone(plugins)
	slices.SortStableFunc(out, func(a, b *plugin.Activated) int {
		switch {
		case plugin.Less(a, b):
			return -1
		case plugin.Less(b, a):
			return 1
		}
		return 0
	})
	return out
}

// InitializeAll initializes every plugin exactly once. The first failure
// stops the sequence; plugins initialized before it stay initialized.
// Timings are reported once every plugin has initialized.
func (s *Sequencer) InitializeAll(ctx context.Context, plugins []*plugin.Activated) error {
	ordered := Order(plugins)
	for _, a := range ordered {
		start := time.Now()
		err := initialize(ctx, a.Plugin)
		a.Elapsed += time.Since(start)
		if err != nil {
			a.State = plugin.StateFailed
			return &plugin.FatalError{Stage: plugin.StageInitialize, Subject: a.Plugin.Name(), Err: err}
		}
		a.State = plugin.StateInitialized

		s.logger.Info(fmt.Sprintf("Plugin %s v%s (by %s) initiated.", a.Plugin.Name(), a.Plugin.Version(), a.Plugin.Author()),
			"plugin", a.Plugin.Name(),
			"elapsed", a.Elapsed,
		)
	}

	if s.reporter != nil {
		for _, a := range ordered {
			s.reporter.PluginInitialized(a.Plugin.Name(), a.Elapsed)
		}
	}
	return nil
}

func initialize(ctx context.Context, p plugin.Plugin) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.Initialize(ctx)
}
