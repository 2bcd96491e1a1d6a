package plugin_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goatkit/serverboot/internal/logging"
	"github.com/goatkit/serverboot/internal/plugin"
)

type consoleFunc func(ctx context.Context, line string) error

func (f consoleFunc) Command(ctx context.Context, line string) error { return f(ctx, line) }

func TestDefaultHost(t *testing.T) {
	ctx := context.Background()
	buf := logging.NewBuffer(10, nil)
	logger := slog.New(buf)

	info := plugin.HostInfo{World: "Skyland", Port: 7777, Args: []string{"-port", "7777"}}
	h := plugin.NewDefaultHost(info, nil, logger)

	t.Run("Info defaults the API version", func(t *testing.T) {
		got := h.Info()
		assert.Equal(t, plugin.HostAPIVersion, got.APIVersion)
		assert.Equal(t, "Skyland", got.World)

		got.Args[0] = "mutated"
		assert.Equal(t, "-port", h.Info().Args[0])
	})

	t.Run("Command without console", func(t *testing.T) {
		err := h.Command(ctx, "save")
		assert.True(t, errors.Is(err, plugin.ErrNoConsole))
	})

	t.Run("Command forwards to console", func(t *testing.T) {
		var lines []string
		h.Attach(consoleFunc(func(_ context.Context, line string) error {
			lines = append(lines, line)
			return nil
		}))
		require.NoError(t, h.Command(ctx, "save"))
		assert.Equal(t, []string{"save"}, lines)
	})

	t.Run("Log maps levels", func(t *testing.T) {
		h.Log(ctx, "WARNING", "careful", map[string]any{"plugin": "Greeter"})
		h.Log(ctx, "bogus", "fallback", nil)

		warnings := buf.GetExactLevel(slog.LevelWarn)
		require.Len(t, warnings, 1)
		assert.Equal(t, "careful", warnings[0].Message)
		assert.Equal(t, "Greeter", warnings[0].Plugin)

		infos := buf.GetExactLevel(slog.LevelInfo)
		require.Len(t, infos, 1)
		assert.Equal(t, "fallback", infos[0].Message)
	})
}
