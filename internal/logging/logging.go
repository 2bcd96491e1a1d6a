// Package logging builds the diagnostics sink shared by every component.
//
// Components take a *slog.Logger. The levels map onto the four diagnostic
// levels of the server API: Verbose (slog debug), Info, Warning, Error.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// LevelVerbose is the level for startup banners and skip notices.
const LevelVerbose = slog.LevelDebug

// Options configures New.
type Options struct {
	Level  string // verbose, info, warning, error
	Format string // text or json
	Output io.Writer
}

// New builds a logger writing to opts.Output. Extra handlers, such as a
// Buffer, receive every record as well.
func New(opts Options, extra ...slog.Handler) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	hopts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceLevel,
	}

	var console slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", "text":
		console = slog.NewTextHandler(opts.Output, hopts)
	case "json":
		console = slog.NewJSONHandler(opts.Output, hopts)
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	if len(extra) == 0 {
		return slog.New(console), nil
	}
	return slog.New(Tee(append([]slog.Handler{console}, extra...)...)), nil
}

// ParseLevel accepts the diagnostic level names used in configuration.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "verbose", "debug":
		return LevelVerbose, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warning", "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// LevelName returns the diagnostic name of a slog level.
func LevelName(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "verbose"
	case l < slog.LevelWarn:
		return "info"
	case l < slog.LevelError:
		return "warning"
	default:
		return "error"
	}
}

func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if l, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(strings.ToUpper(LevelName(l)))
		}
	}
	return a
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type tee []slog.Handler

// Tee fans records out to every handler that accepts them.
func Tee(handlers ...slog.Handler) slog.Handler {
	return tee(handlers)
}

func (t tee) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t tee) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (t tee) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(tee, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t tee) WithGroup(name string) slog.Handler {
	out := make(tee, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}
