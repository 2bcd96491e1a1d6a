package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Entry is a single diagnostic captured by a Buffer.
type Entry struct {
	Timestamp time.Time      `json:"timestamp" yaml:"timestamp"`
	Level     slog.Level     `json:"level" yaml:"level"`
	Plugin    string         `json:"plugin,omitempty" yaml:"plugin,omitempty"`
	Message   string         `json:"message" yaml:"message"`
	Fields    map[string]any `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Buffer is a ring buffer of diagnostics. It implements slog.Handler so it
// can sit behind a *slog.Logger, alone or next to a console handler via Tee.
type Buffer struct {
	ring *ring

	attrs []slog.Attr
	group string
	level slog.Leveler
}

type ring struct {
	mu      sync.RWMutex
	entries []Entry
	maxSize int
	head    int
	count   int

	listeners []func(Entry)
}

// NewBuffer creates a buffer holding up to maxSize entries at or above level.
func NewBuffer(maxSize int, level slog.Leveler) *Buffer {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if level == nil {
		level = LevelVerbose
	}
	return &Buffer{
		ring: &ring{
			entries: make([]Entry, maxSize),
			maxSize: maxSize,
		},
		level: level,
	}
}

func (b *Buffer) Enabled(_ context.Context, level slog.Level) bool {
	return level >= b.level.Level()
}

func (b *Buffer) Handle(_ context.Context, r slog.Record) error {
	entry := Entry{
		Timestamp: r.Time,
		Level:     r.Level,
		Message:   r.Message,
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	add := func(a slog.Attr) bool {
		key := a.Key
		if b.group != "" {
			key = b.group + "." + key
		}
		if key == "plugin" {
			entry.Plugin = a.Value.String()
			return true
		}
		if entry.Fields == nil {
			entry.Fields = make(map[string]any)
		}
		entry.Fields[key] = a.Value.Resolve().Any()
		return true
	}
	for _, a := range b.attrs {
		add(a)
	}
	r.Attrs(add)

	b.ring.add(entry)
	return nil
}

func (b *Buffer) WithAttrs(attrs []slog.Attr) slog.Handler {
	nb := *b
	nb.attrs = append(append([]slog.Attr{}, b.attrs...), attrs...)
	return &nb
}

func (b *Buffer) WithGroup(name string) slog.Handler {
	nb := *b
	if nb.group != "" {
		nb.group += "." + name
	} else {
		nb.group = name
	}
	return &nb
}

func (r *ring) add(entry Entry) {
	r.mu.Lock()
	r.entries[r.head] = entry
	r.head = (r.head + 1) % r.maxSize
	if r.count < r.maxSize {
		r.count++
	}
	listeners := r.listeners
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(entry)
	}
}

// OnAdd registers fn to be called with every entry after it is stored.
// fn runs on the logging goroutine and must not block.
func (b *Buffer) OnAdd(fn func(Entry)) {
	b.ring.mu.Lock()
	defer b.ring.mu.Unlock()
	b.ring.listeners = append(b.ring.listeners, fn)
}

// GetAll returns all entries, newest first.
func (b *Buffer) GetAll() []Entry {
	return b.GetRecent(b.Count())
}

// Chronological returns all entries, oldest first.
func (b *Buffer) Chronological() []Entry {
	all := b.GetAll()
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return all
}

// GetByPlugin returns entries tagged with the given plugin, newest first.
func (b *Buffer) GetByPlugin(name string) []Entry {
	return b.filter(func(e Entry) bool { return e.Plugin == name })
}

// GetByLevel returns entries at or above minLevel, newest first.
func (b *Buffer) GetByLevel(minLevel slog.Level) []Entry {
	return b.filter(func(e Entry) bool { return e.Level >= minLevel })
}

// GetExactLevel returns entries at exactly level, newest first.
func (b *Buffer) GetExactLevel(level slog.Level) []Entry {
	return b.filter(func(e Entry) bool { return e.Level == level })
}

// GetRecent returns the most recent n entries, newest first.
func (b *Buffer) GetRecent(n int) []Entry {
	r := b.ring
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n > r.count {
		n = r.count
	}
	result := make([]Entry, n)
	for i := 0; i < n; i++ {
		idx := (r.head - 1 - i + r.maxSize) % r.maxSize
		result[i] = r.entries[idx]
	}
	return result
}

func (b *Buffer) filter(keep func(Entry) bool) []Entry {
	r := b.ring
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Entry
	for i := 0; i < r.count; i++ {
		idx := (r.head - 1 - i + r.maxSize) % r.maxSize
		if keep(r.entries[idx]) {
			result = append(result, r.entries[idx])
		}
	}
	return result
}

// Clear removes all entries from the buffer.
func (b *Buffer) Clear() {
	r := b.ring
	r.mu.Lock()
	defer r.mu.Unlock()

	r.head = 0
	r.count = 0
}

// Count returns the number of entries in the buffer.
func (b *Buffer) Count() int {
	r := b.ring
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}
