package plugin

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/goatkit/serverboot/internal/logging"
)

// Commander writes console command lines to the running server core.
type Commander interface {
	Command(ctx context.Context, line string) error
}

// ErrNoConsole is returned when a plugin sends a command before the host
// has a server core to forward it to.
var ErrNoConsole = errors.New("server console is not attached")

// DefaultHost is the Host handed to plugin factories. Plugins normally see
// it through a ScopedHost that tags their logs and meters their commands.
type DefaultHost struct {
	info    HostInfo
	console Commander
	logger  *slog.Logger
}

// NewDefaultHost creates a host handle. console may be nil until the server
// core is started; see Attach.
func NewDefaultHost(info HostInfo, console Commander, logger *slog.Logger) *DefaultHost {
	if logger == nil {
		logger = slog.Default()
	}
	if info.APIVersion == (APIVersion{}) {
		info.APIVersion = HostAPIVersion
	}
	return &DefaultHost{info: info, console: console, logger: logger}
}

// Attach sets the console commands are forwarded to.
func (h *DefaultHost) Attach(console Commander) {
	h.console = console
}

// Info implements Host.
func (h *DefaultHost) Info() HostInfo {
	info := h.info
	info.Args = append([]string(nil), h.info.Args...)
	return info
}

// Command implements Host.
func (h *DefaultHost) Command(ctx context.Context, line string) error {
	if h.console == nil {
		return ErrNoConsole
	}
	return h.console.Command(ctx, line)
}

// Log implements Host.
func (h *DefaultHost) Log(ctx context.Context, level, message string, fields map[string]any) {
	lvl, err := logging.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = slog.LevelInfo
	}
	attrs := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	h.logger.Log(ctx, lvl, message, attrs...)
}

var _ Host = (*DefaultHost)(nil)
