package loader_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goatkit/serverboot/internal/logging"
	"github.com/goatkit/serverboot/internal/plugin"
	"github.com/goatkit/serverboot/internal/plugin/discovery"
	"github.com/goatkit/serverboot/internal/plugin/example"
	"github.com/goatkit/serverboot/internal/plugin/loader"
	"github.com/goatkit/serverboot/internal/plugin/module"
	"github.com/goatkit/serverboot/internal/plugin/plugintest"
	"github.com/goatkit/serverboot/internal/plugin/static"
)

type fixture struct {
	catalog   *static.Catalog
	registry  *module.Registry
	container *plugin.Container
	host      *plugintest.Host
	buf       *logging.Buffer
	reporter  *recordingReporter
	journal   *plugintest.Journal
}

func newFixture() *fixture {
	f := &fixture{
		catalog:   static.NewCatalog(),
		container: plugin.NewContainer(),
		host:      &plugintest.Host{},
		buf:       logging.NewBuffer(200, nil),
		reporter:  &recordingReporter{},
		journal:   &plugintest.Journal{},
	}
	logger := slog.New(f.buf)
	f.registry = module.NewRegistry(module.NewLoader("/plugins", []module.Opener{f.catalog}, module.WithLogger(logger)), logger)
	return f
}

func (f *fixture) loader(opts ...loader.LoaderOption) *loader.Loader {
	opts = append([]loader.LoaderOption{loader.WithTimingReporter(f.reporter)}, opts...)
	return loader.NewLoader(f.registry, f.container, f.host, slog.New(f.buf), opts...)
}

// register adds a built-in module with one plugin per given plugin.
func (f *fixture) register(base, declared string, plugins ...*plugintest.Plugin) {
	var specs []plugin.TypeSpec
	for _, p := range plugins {
		p.Journal = f.journal
		specs = append(specs, plugintest.Type(base+"."+p.PluginName, p))
	}
	f.catalog.Register(base, func() plugin.Manifest {
		return plugin.Manifest{Module: declared, Types: specs}
	})
}

func TestLoaderRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.register("Zeta", "Zeta", &plugintest.Plugin{PluginName: "Zeta", Priority: 5})
	f.register("Pair", "Pair",
		&plugintest.Plugin{PluginName: "Beta", Priority: 1},
		&plugintest.Plugin{PluginName: "Alpha", Priority: 1},
	)

	pass, err := f.loader().Run(ctx, []string{"Zeta", "Pair"})
	require.NoError(t, err)

	assert.NotEmpty(t, pass.ID)
	assert.Equal(t, []string{"Alpha", "Beta", "Zeta"}, pluginNames(pass.Activated))
	assert.Equal(t, []string{
		"new:Zeta", "new:Beta", "new:Alpha",
		"init:Alpha", "init:Beta", "init:Zeta",
	}, f.journal.Calls(), "all plugins are constructed before any is initialized")

	assert.Len(t, f.container.Initialized(), 3)
	assert.Equal(t, []int{3}, f.reporter.passes)
	assert.Equal(t, []string{"Alpha", "Beta", "Zeta"}, f.reporter.plugins)
}

func TestLoaderRunSkipsRecoverableFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.register("Good", "Good", &plugintest.Plugin{PluginName: "Good"})
	f.catalog.Register("Old", func() plugin.Manifest {
		return plugin.Manifest{Module: "Old", Types: []plugin.TypeSpec{{
			Name: "old.Plugin", Plugin: true, APIVersion: plugin.Targets(1, 0),
			New: func(plugin.Host) (plugin.Plugin, error) { return &plugintest.Plugin{PluginName: "Old"}, nil },
		}}}
	})

	badFormat := &failingOpener{kind: "broken", names: map[string]bool{"Corrupt": true}, err: module.ErrBadFormat}
	logger := slog.New(f.buf)
	f.registry = module.NewRegistry(module.NewLoader("/plugins", []module.Opener{f.catalog, badFormat}, module.WithLogger(logger)), logger)

	pass, err := f.loader().Run(ctx, []string{"Corrupt", "Old", "Good"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Good"}, pluginNames(pass.Activated))
	assert.Equal(t, []string{"Corrupt"}, pass.Skipped)
	assert.Len(t, f.buf.GetExactLevel(slog.LevelWarn), 1, "version mismatch warning")
	assert.Len(t, f.buf.GetExactLevel(slog.LevelError), 1, "bad format error")
}

func TestLoaderRunIgnoreVersion(t *testing.T) {
	f := newFixture()
	f.catalog.Register("Old", func() plugin.Manifest {
		return plugin.Manifest{Module: "Old", Types: []plugin.TypeSpec{{
			Name: "old.Plugin", Plugin: true, APIVersion: plugin.Targets(1, 0),
			New: func(plugin.Host) (plugin.Plugin, error) { return &plugintest.Plugin{PluginName: "Old"}, nil },
		}}}
	})

	pass, err := f.loader(loader.WithIgnoreVersion(true)).Run(context.Background(), []string{"Old"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Old"}, pluginNames(pass.Activated))
}

func TestLoaderRunConstructionFailureAborts(t *testing.T) {
	f := newFixture()
	f.register("First", "First", &plugintest.Plugin{PluginName: "First"})
	f.catalog.Register("Broken", func() plugin.Manifest {
		return plugin.Manifest{Module: "Broken", Types: []plugin.TypeSpec{{
			Name: "broken.Plugin", Plugin: true, APIVersion: plugin.Targets(2, 1),
			New: func(plugin.Host) (plugin.Plugin, error) { return nil, errors.New("no world") },
		}}}
	})
	f.register("Later", "Later", &plugintest.Plugin{PluginName: "Later"})

	_, err := f.loader().Run(context.Background(), []string{"First", "Broken", "Later"})
	require.Error(t, err)

	var fe *plugin.FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, plugin.StageConstruct, fe.Stage)
	assert.Equal(t, "broken.Plugin", fe.Subject)

	assert.Equal(t, []string{"new:First"}, f.journal.Calls(), "nothing is initialized")
	assert.Empty(t, f.reporter.passes)
}

func TestLoaderRunMissingPluginIsFatal(t *testing.T) {
	f := newFixture()

	_, err := f.loader().Run(context.Background(), []string{"Ghost"})
	require.Error(t, err)
	assert.True(t, plugin.IsFatal(err))
	assert.ErrorIs(t, err, module.ErrNotFound)
}

func TestLoaderRunCollidingModules(t *testing.T) {
	f := newFixture()
	f.register("Chat", "Chat", &plugintest.Plugin{PluginName: "Chat"})
	f.register("ChatPlus", "Chat", &plugintest.Plugin{PluginName: "ChatPlus"})

	pass, err := f.loader().Run(context.Background(), []string{"Chat", "ChatPlus"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Chat", "ChatPlus"}, pluginNames(pass.Activated))
	warnings := f.buf.GetExactLevel(slog.LevelWarn)
	require.NotEmpty(t, warnings)
	assert.Contains(t, warnings[len(warnings)-1].Message, `"ChatPlus" shares the same module name with "Chat"`)
}

func TestLoaderRunIsIdempotentPerModule(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.register("Once", "Once", &plugintest.Plugin{PluginName: "Once"})
	l := f.loader()

	_, err := l.Run(ctx, []string{"Once"})
	require.NoError(t, err)
	pass, err := l.Run(ctx, []string{"Once"})
	require.NoError(t, err)

	assert.Empty(t, pass.Activated)
	assert.Equal(t, 1, f.container.Len())
	assert.Equal(t, []string{"new:Once", "init:Once"}, f.journal.Calls())
}

func TestLoaderReloadAndShutdown(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.register("Hot", "Hot", &plugintest.Plugin{PluginName: "Hot"})
	f.register("Cold", "Cold", &plugintest.Plugin{PluginName: "Cold", Priority: 1})
	l := f.loader()

	_, err := l.Run(ctx, []string{"Hot", "Cold"})
	require.NoError(t, err)

	pass, err := l.Reload(ctx, "Hot")
	require.NoError(t, err)
	assert.Equal(t, []string{"Hot"}, pluginNames(pass.Activated))
	assert.Equal(t, 2, f.container.Len())

	require.NoError(t, l.Unload(ctx, "Cold"))
	assert.Equal(t, 1, f.container.Len())

	require.NoError(t, l.Shutdown(ctx))
	assert.Equal(t, 0, f.container.Len())
	assert.Equal(t, []string{
		"new:Hot", "new:Cold", "init:Hot", "init:Cold",
		"shutdown:Hot", "new:Hot", "init:Hot",
		"shutdown:Cold",
		"shutdown:Hot",
	}, f.journal.Calls())
}

func TestLoaderRunExampleModule(t *testing.T) {
	f := newFixture()
	f.catalog.Register("Hello", example.Manifest)

	pass, err := f.loader().Run(context.Background(), []string{"Hello"})
	require.NoError(t, err)

	require.Len(t, pass.Activated, 1, "the unannotated helper is never activated")
	assert.Equal(t, "Hello", pass.Activated[0].Plugin.Name())
	assert.Equal(t, []string{"say Hello from serverboot"}, f.host.Commands())
}

func TestLoaderRunRecordsOutcomes(t *testing.T) {
	f := newFixture()
	f.catalog.Register("Mixed", func() plugin.Manifest {
		good := &plugintest.Plugin{PluginName: "Good", Journal: f.journal}
		return plugin.Manifest{Module: "Mixed", Types: []plugin.TypeSpec{
			{Name: "mixed.helper"},
			{Name: "mixed.Bare", Plugin: true, New: func(plugin.Host) (plugin.Plugin, error) { return good, nil }},
			{Name: "mixed.Legacy", Plugin: true, APIVersion: plugin.Targets(1, 0),
				New: func(plugin.Host) (plugin.Plugin, error) { return good, nil }},
			plugintest.Type("mixed.Good", good),
		}}
	})
	f.register("Sour", "Sour", &plugintest.Plugin{PluginName: "Sour", Priority: 1, InitErr: errors.New("no map")})
	badFormat := &failingOpener{kind: "broken", names: map[string]bool{"Corrupt": true}, err: module.ErrBadFormat}
	logger := slog.New(f.buf)
	f.registry = module.NewRegistry(module.NewLoader("/plugins", []module.Opener{f.catalog, badFormat}, module.WithLogger(logger)), logger)

	pass, err := f.loader().Run(context.Background(), []string{"Corrupt", "Mixed", "Sour"})
	require.Error(t, err)
	assert.True(t, plugin.IsFatal(err))

	type row struct {
		Plugin, Type string
		State        plugin.State
	}
	var got []row
	for _, o := range pass.Outcomes {
		got = append(got, row{o.Plugin, o.Type, o.State})
	}
	assert.Equal(t, []row{
		{"Corrupt", "", plugin.StateSkipped},
		{"Mixed", "mixed.Bare", plugin.StateSkipped},
		{"Mixed", "mixed.Legacy", plugin.StateSkipped},
		{"Mixed", "mixed.Good", plugin.StateInitialized},
		{"Sour", "Sour.Sour", plugin.StateFailed},
	}, got)

	assert.Equal(t, string(discovery.Unannotated), pass.Outcomes[1].Reason)
	assert.Equal(t, string(discovery.VersionMismatch), pass.Outcomes[2].Reason)
	assert.Contains(t, pass.Outcomes[4].Reason, "no map")
}

func TestLoaderRunRecordsFatalConstruction(t *testing.T) {
	f := newFixture()
	f.catalog.Register("Broken", func() plugin.Manifest {
		return plugin.Manifest{Module: "Broken", Types: []plugin.TypeSpec{{
			Name: "broken.Plugin", Plugin: true, APIVersion: plugin.Targets(2, 1),
			New: func(plugin.Host) (plugin.Plugin, error) { panic("boom") },
		}}}
	})

	pass, err := f.loader().Run(context.Background(), []string{"Broken", "Ghost"})
	require.Error(t, err)
	require.Len(t, pass.Outcomes, 1, "the pass stops at the first fatal failure")
	assert.Equal(t, plugin.StateFailed, pass.Outcomes[0].State)
	assert.Contains(t, pass.Outcomes[0].Reason, "boom")
}

func TestLoaderRunSkipsBlockedPlugins(t *testing.T) {
	f := newFixture()
	f.register("Muted", "Muted", &plugintest.Plugin{PluginName: "Muted"})
	f.register("Loud", "Loud", &plugintest.Plugin{PluginName: "Loud"})

	pass, err := f.loader(loader.WithPolicies(map[string]plugin.HostPolicy{
		"Muted": {Blocked: true},
	})).Run(context.Background(), []string{"Muted", "Loud"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Loud"}, pluginNames(pass.Activated))
	assert.Equal(t, []string{"Muted"}, pass.Skipped)
	assert.Equal(t, []string{"new:Loud", "init:Loud"}, f.journal.Calls())
	assert.Equal(t, plugin.StateSkipped, pass.Outcomes[0].State)
	assert.Equal(t, loader.ErrBlocked.Error(), pass.Outcomes[0].Reason)

	warnings := f.buf.GetExactLevel(slog.LevelWarn)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, `"Muted.Muted" is blocked by host policy`)
	assert.Equal(t, "Muted", warnings[0].Plugin)
}

type failingOpener struct {
	kind  string
	names map[string]bool
	err   error
}

func (o *failingOpener) Kind() string { return o.kind }

func (o *failingOpener) Resolve(dir, name string) (string, bool) {
	return dir + "/" + name, o.names[name]
}

func (o *failingOpener) Open(context.Context, string) (module.Module, error) {
	return nil, o.err
}

func (o *failingOpener) OpenIsolated(context.Context, string) (module.Module, error) {
	return nil, o.err
}
