package static_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goatkit/serverboot/internal/logging"
	"github.com/goatkit/serverboot/internal/plugin/example"
	"github.com/goatkit/serverboot/internal/plugin/module"
	"github.com/goatkit/serverboot/internal/plugin/static"
	"github.com/goatkit/serverboot/pkg/plugin"
)

func manifest(module string, types ...string) func() plugin.Manifest {
	return func() plugin.Manifest {
		m := plugin.Manifest{Module: module}
		for _, name := range types {
			m.Types = append(m.Types, plugin.TypeSpec{Name: name, Plugin: true})
		}
		return m
	}
}

func TestCatalogResolve(t *testing.T) {
	c := static.NewCatalog()
	c.Register("Hello", example.Manifest)

	path, ok := c.Resolve("/ignored", "Hello")
	require.True(t, ok)
	assert.Equal(t, "builtin://Hello", path)

	_, ok = c.Resolve("/ignored", "Missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"Hello"}, c.Names())
}

func TestCatalogOpen(t *testing.T) {
	ctx := context.Background()
	c := static.NewCatalog()
	c.Register("Hello", example.Manifest)
	c.Register("Anonymous", manifest("", "anon.Plugin"))

	m, err := c.Open(ctx, "builtin://Hello")
	require.NoError(t, err)
	assert.Equal(t, example.ModuleName, m.Name())
	assert.Len(t, m.Types(), 2)

	again, err := c.Open(ctx, "builtin://Hello")
	require.NoError(t, err)
	assert.Same(t, m, again)

	iso, err := c.OpenIsolated(ctx, "builtin://Hello")
	require.NoError(t, err)
	assert.NotSame(t, m, iso)

	anon, err := c.Open(ctx, "builtin://Anonymous")
	require.NoError(t, err)
	assert.Equal(t, "Anonymous", anon.Name(), "module name defaults to the base name")

	_, err = c.Open(ctx, "/plugins/Hello.so")
	assert.ErrorIs(t, err, module.ErrBadFormat)

	_, err = c.Open(ctx, "builtin://Nope")
	assert.ErrorIs(t, err, module.ErrNotFound)
}

func TestCatalogCollisionThroughLoader(t *testing.T) {
	ctx := context.Background()
	c := static.NewCatalog()
	c.Register("Chat", manifest("Chat", "chat.Plugin"))
	c.Register("ChatFork", manifest("Chat", "chatfork.Plugin"))

	buf := logging.NewBuffer(10, nil)
	logger := slog.New(buf)
	reg := module.NewRegistry(module.NewLoader("/plugins", []module.Opener{c}, module.WithLogger(logger)), logger)

	chat, err := reg.Resolve(ctx, "Chat")
	require.NoError(t, err)
	fork, err := reg.Resolve(ctx, "ChatFork")
	require.NoError(t, err)

	assert.True(t, fork.Isolated)
	assert.Equal(t, "chat.Plugin", chat.Module.Types()[0].Name)
	assert.Equal(t, "chatfork.Plugin", fork.Module.Types()[0].Name, "isolated load must expose its own types")

	warnings := buf.GetExactLevel(slog.LevelWarn)
	require.Len(t, warnings, 1)
	assert.Equal(t, `Plugin "ChatFork" shares the same module name with "Chat", using isolated loading`, warnings[0].Message)
}
