package host

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/goatkit/serverboot/internal/logging"
)

// Stream identifies which output of the core a line came from.
type Stream int

const (
	StreamStdout Stream = iota
	StreamStderr
)

func (s Stream) String() string {
	if s == StreamStderr {
		return "stderr"
	}
	return "stdout"
}

// OutputAdapter receives the core's output one line at a time.
type OutputAdapter interface {
	Line(stream Stream, line string)
}

// directivePrefix starts console control lines written by the core, e.g.
// "\x01titleMy World" or "\x01fgclrYellow".
const directivePrefix = "\x01"

// Directive is a console control line.
type Directive struct {
	Kind  string // title, fgclr or bgclr
	Value string
}

// ParseDirective splits a console control line. ok is false for ordinary
// output.
func ParseDirective(line string) (d Directive, ok bool) {
	rest, found := strings.CutPrefix(line, directivePrefix)
	if !found {
		return Directive{}, false
	}
	for _, kind := range []string{"title", "fgclr", "bgclr"} {
		if v, ok := strings.CutPrefix(rest, kind); ok {
			return Directive{Kind: kind, Value: v}, true
		}
	}
	return Directive{Kind: "unknown", Value: rest}, true
}

// ConsoleOutput writes core output to a terminal. Control lines are
// consumed: the title is remembered and colours are dropped.
type ConsoleOutput struct {
	mu     sync.Mutex
	w      io.Writer
	logger *slog.Logger
	title  string
}

// NewConsoleOutput creates an adapter writing to w.
func NewConsoleOutput(w io.Writer, logger *slog.Logger) *ConsoleOutput {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsoleOutput{w: w, logger: logger}
}

// Line implements OutputAdapter.
func (o *ConsoleOutput) Line(stream Stream, line string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if d, ok := ParseDirective(line); ok {
		if d.Kind == "title" {
			o.title = d.Value
			o.logger.Log(context.Background(), logging.LevelVerbose, "Console title changed", "title", d.Value)
		}
		return
	}
	fmt.Fprintln(o.w, line)
}

// Title returns the last console title the core set.
func (o *ConsoleOutput) Title() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.title
}
