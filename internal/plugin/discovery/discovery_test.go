package discovery_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goatkit/serverboot/internal/logging"
	"github.com/goatkit/serverboot/internal/plugin"
	"github.com/goatkit/serverboot/internal/plugin/discovery"
	"github.com/goatkit/serverboot/internal/plugin/module"
	"github.com/goatkit/serverboot/internal/plugin/plugintest"
)

func loaded(base, declared string, types ...plugin.TypeSpec) *module.Loaded {
	return &module.Loaded{
		Descriptor: module.Descriptor{Name: base, Path: "/plugins/" + base + ".so", Kind: module.KindNative},
		Module:     &plugintest.Module{ModuleName: declared, Specs: types},
	}
}

func annotated(name string, major, minor int) plugin.TypeSpec {
	t := plugintest.Type(name, &plugintest.Plugin{PluginName: name})
	t.APIVersion = plugin.Targets(major, minor)
	return t
}

func newFilter(ignoreVersion bool) (*discovery.Filter, *logging.Buffer) {
	buf := logging.NewBuffer(100, nil)
	return discovery.New(discovery.Options{
		HostVersion:   plugin.APIVersion{Major: 2, Minor: 1, Build: 7},
		IgnoreVersion: ignoreVersion,
		Logger:        slog.New(buf),
	}), buf
}

func names(cs []discovery.Candidate) []string {
	var out []string
	for _, c := range cs {
		out = append(out, c.Name())
	}
	return out
}

func TestDiscoverSelectsEligibleTypes(t *testing.T) {
	f, buf := newFilter(false)

	helper := plugin.TypeSpec{Name: "greeter.Formatter"}
	internal := annotated("greeter.internalPlugin", 2, 1)
	internal.Internal = true
	abstract := annotated("greeter.Base", 2, 1)
	abstract.Abstract = true
	noFactory := annotated("greeter.NoFactory", 2, 1)
	noFactory.New = nil
	unannotated := annotated("greeter.Unannotated", 2, 1)
	unannotated.APIVersion = nil

	l := loaded("Greeter", "Greeter",
		helper, internal, abstract, noFactory, unannotated,
		annotated("greeter.Greeter", 2, 1),
		annotated("greeter.Patched", 2, 1),
	)

	got := f.Discover(l)
	assert.Equal(t, []string{"greeter.Greeter", "greeter.Patched"}, names(got))
	for _, c := range got {
		assert.Same(t, l, c.Module)
	}

	assert.Empty(t, buf.GetByLevel(slog.LevelWarn), "exclusions must be silent")
	verbose := buf.GetExactLevel(logging.LevelVerbose)
	require.Len(t, verbose, 1)
	assert.Equal(t, "greeter.Unannotated", verbose[0].Fields["type"])
}

func TestDiscoverVersionMismatch(t *testing.T) {
	f, buf := newFilter(false)

	l := loaded("Mixed", "Mixed",
		annotated("mixed.Old", 1, 4),
		annotated("mixed.Minor", 2, 0),
		annotated("mixed.Current", 2, 1),
	)

	got := f.Discover(l)
	assert.Equal(t, []string{"mixed.Current"}, names(got))

	warnings := buf.GetExactLevel(slog.LevelWarn)
	require.Len(t, warnings, 2, "exactly one warning per mismatched type")
	msgs := []string{warnings[0].Message, warnings[1].Message}
	assert.Contains(t, msgs, `Plugin "mixed.Old" is designed for a different Server API version (1.4) and was ignored.`)
	assert.Contains(t, msgs, `Plugin "mixed.Minor" is designed for a different Server API version (2.0) and was ignored.`)
	for _, w := range warnings {
		assert.Equal(t, "2.1", w.Fields["host_version"])
	}
}

func TestDiscoverBuildNumberIsIgnored(t *testing.T) {
	f, _ := newFilter(false)
	t1 := annotated("patch.Plugin", 2, 1)
	t1.APIVersion.Build = 99

	assert.Len(t, f.Discover(loaded("Patch", "Patch", t1)), 1)
}

func TestDiscoverIgnoreVersion(t *testing.T) {
	f, buf := newFilter(true)

	got := f.Discover(loaded("Old", "Old", annotated("old.Plugin", 1, 0)))
	assert.Equal(t, []string{"old.Plugin"}, names(got))
	assert.Empty(t, buf.GetByLevel(slog.LevelWarn))
}

func TestDiscoverNamingWarnings(t *testing.T) {
	t.Run("declared name differs", func(t *testing.T) {
		f, buf := newFilter(false)
		f.Discover(loaded("Chat", "ChatCore", annotated("chat.A", 2, 1), annotated("chat.B", 2, 1)))

		warnings := buf.GetExactLevel(slog.LevelWarn)
		require.Len(t, warnings, 1, "once per module, not per type")
		assert.Equal(t, `Plugin module name "ChatCore" is inconsistent with plugin file name "Chat"`, warnings[0].Message)
	})

	t.Run("non-ascii name", func(t *testing.T) {
		f, buf := newFilter(false)
		got := f.Discover(loaded("Grüße", "Grüße", annotated("gruss.Plugin", 2, 1)))

		assert.Len(t, got, 1, "naming warnings never exclude")
		warnings := buf.GetExactLevel(slog.LevelWarn)
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0].Message, "non-ascii")
	})

	t.Run("no eligible types, no naming warnings", func(t *testing.T) {
		f, buf := newFilter(false)
		got := f.Discover(loaded("Grüße", "Other", plugin.TypeSpec{Name: "helper"}))

		assert.Empty(t, got)
		assert.Empty(t, buf.GetByLevel(slog.LevelWarn))
	})
}

func TestClassify(t *testing.T) {
	f, _ := newFilter(false)
	helper := plugin.TypeSpec{Name: "greeter.Formatter"}
	unannotated := annotated("greeter.Old", 2, 1)
	unannotated.APIVersion = nil

	assert.Equal(t, discovery.Eligible, f.Classify(annotated("greeter.Greeter", 2, 1)))
	assert.Equal(t, discovery.NotPlugin, f.Classify(helper))
	assert.Equal(t, discovery.Unannotated, f.Classify(unannotated))
	assert.Equal(t, discovery.VersionMismatch, f.Classify(annotated("greeter.Legacy", 1, 0)))

	lenient, _ := newFilter(true)
	assert.Equal(t, discovery.Eligible, lenient.Classify(annotated("greeter.Legacy", 1, 0)))
}
