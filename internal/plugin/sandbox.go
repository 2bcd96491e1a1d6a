package plugin

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// HostPolicy limits what a single plugin may do through its host handle.
type HostPolicy struct {
	// CommandsPerSecond caps console commands. Zero disables the limit.
	CommandsPerSecond int `mapstructure:"commandsPerSecond" json:"commandsPerSecond"`

	// Blocked plugins are not activated.
	Blocked bool `mapstructure:"blocked" json:"blocked"`
}

// HostStats tracks what a plugin did through its host handle.
type HostStats struct {
	Commands   atomic.Int64
	Logs       atomic.Int64
	Rejected   atomic.Int64
	LastCallAt atomic.Int64 // unix millis
}

// HostStatsSnapshot is a point-in-time copy of HostStats.
type HostStatsSnapshot struct {
	Plugin     string `json:"plugin"`
	Commands   int64  `json:"commands"`
	Logs       int64  `json:"logs"`
	Rejected   int64  `json:"rejected"`
	LastCallAt int64  `json:"last_call_at"`
}

// Snapshot returns a copy of the current stats.
func (s *HostStats) Snapshot(name string) HostStatsSnapshot {
	return HostStatsSnapshot{
		Plugin:     name,
		Commands:   s.Commands.Load(),
		Logs:       s.Logs.Load(),
		Rejected:   s.Rejected.Load(),
		LastCallAt: s.LastCallAt.Load(),
	}
}

// ScopedHost wraps a Host for one plugin type. It tags every log with the
// plugin name and enforces the plugin's HostPolicy on commands.
type ScopedHost struct {
	inner  Host
	name   string
	policy HostPolicy

	commands rateLimiter
	stats    HostStats
}

// NewScopedHost creates a per-plugin host handle. name is the fully-qualified
// type name until the instance reports its display name; see Rename.
func NewScopedHost(inner Host, name string, policy HostPolicy) *ScopedHost {
	s := &ScopedHost{inner: inner, name: name, policy: policy}
	if policy.CommandsPerSecond > 0 {
		s.commands = newRateLimiter(policy.CommandsPerSecond, time.Second)
	} else {
		s.commands = rateLimiter{disabled: true}
	}
	return s
}

// Rename changes the name logs are tagged with.
func (s *ScopedHost) Rename(name string) {
	s.name = name
}

// Stats returns the accounting for this plugin.
func (s *ScopedHost) Stats() HostStatsSnapshot {
	return s.stats.Snapshot(s.name)
}

// Info implements Host.
func (s *ScopedHost) Info() HostInfo {
	return s.inner.Info()
}

// Command implements Host.
func (s *ScopedHost) Command(ctx context.Context, line string) error {
	if s.commands.enabled() && !s.commands.allow() {
		s.stats.Rejected.Add(1)
		return fmt.Errorf("plugin %q: command rate limit exceeded", s.name)
	}
	s.stats.Commands.Add(1)
	s.stats.LastCallAt.Store(time.Now().UnixMilli())
	return s.inner.Command(ctx, line)
}

// Log implements Host.
func (s *ScopedHost) Log(ctx context.Context, level, message string, fields map[string]any) {
	tagged := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		tagged[k] = v
	}
	tagged["plugin"] = s.name
	s.stats.Logs.Add(1)
	s.inner.Log(ctx, level, message, tagged)
}

var _ Host = (*ScopedHost)(nil)

// sliding window rate limiter
type rateLimiter struct {
	mu       *sync.Mutex
	max      int
	window   time.Duration
	tokens   []time.Time
	disabled bool
}

func newRateLimiter(max int, window time.Duration) rateLimiter {
	return rateLimiter{
		mu:     &sync.Mutex{},
		max:    max,
		window: window,
		tokens: make([]time.Time, 0, max),
	}
}

func (r *rateLimiter) enabled() bool {
	return !r.disabled && r.max > 0
}

func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.window)

	valid := 0
	for _, t := range r.tokens {
		if t.After(cutoff) {
			r.tokens[valid] = t
			valid++
		}
	}
	r.tokens = r.tokens[:valid]

	if len(r.tokens) >= r.max {
		return false
	}
	r.tokens = append(r.tokens, now)
	return true
}
