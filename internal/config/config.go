// Package config reads the server configuration document and turns it into
// the server core's command line.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/xeipuuv/gojsonschema"

	"github.com/goatkit/serverboot/internal/plugin"
)

// EnvPrefix prefixes environment overrides, e.g. SERVERBOOT_PORT=7778.
const EnvPrefix = "SERVERBOOT"

// Defaults for fields the document leaves out.
const (
	DefaultMaxPlayer = 8
	DefaultPort      = 7777
	DefaultIP        = "0.0.0.0"
)

// IgnoreVersionFlag in the launch arguments disables API version checks.
const IgnoreVersionFlag = "-ignoreversion"

//go:embed schema.json
var schema []byte

// Config is the server configuration document.
type Config struct {
	World      string   `mapstructure:"world" json:"world" yaml:"world"`
	Lang       Locale   `mapstructure:"lang" json:"lang" yaml:"lang"`
	MaxPlayer  int      `mapstructure:"maxPlayer" json:"maxPlayer" yaml:"maxPlayer"`
	Port       uint16   `mapstructure:"port" json:"port" yaml:"port"`
	IP         string   `mapstructure:"ip" json:"ip" yaml:"ip"`
	Password   string   `mapstructure:"password" json:"password,omitempty" yaml:"password,omitempty"`
	Parameters []string `mapstructure:"parameters" json:"parameters" yaml:"parameters"`
	Plugins    []string `mapstructure:"plugins" json:"plugins" yaml:"plugins"`

	// Policies restricts individual plugins, keyed by plugin base name.
	Policies map[string]plugin.HostPolicy `mapstructure:"policies" json:"policies,omitempty" yaml:"policies,omitempty"`

	// Schedule sends console commands on cron schedules while the core runs.
	Schedule []ScheduledCommand `mapstructure:"schedule" json:"schedule,omitempty" yaml:"schedule,omitempty"`
}

// ScheduledCommand is a console command run on a cron schedule, e.g.
// {"spec": "@every 30m", "command": "save"}.
type ScheduledCommand struct {
	Spec    string `mapstructure:"spec" json:"spec" yaml:"spec"`
	Command string `mapstructure:"command" json:"command" yaml:"command"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Lang:      English,
		MaxPlayer: DefaultMaxPlayer,
		Port:      DefaultPort,
		IP:        DefaultIP,
	}
}

// ValidationError lists schema violations of a configuration document.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Load reads and validates the document at path. Environment variables
// prefixed with EnvPrefix override document values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// Parse validates and decodes a JSON document.
func Parse(data []byte) (*Config, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}

	v := newViper()
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		LocaleHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	// Viper folds keys to lower case; plugin names keep theirs.
	cfg.Policies = nil
	var raw struct {
		Policies map[string]any `json:"policies"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := mapstructure.Decode(raw.Policies, &cfg.Policies); err != nil {
		return nil, fmt.Errorf("decode policies: %w", err)
	}
	if !cfg.Lang.Valid() {
		return nil, fmt.Errorf("decode config: unknown language %d", int(cfg.Lang))
	}
	return &cfg, nil
}

// Validate checks a JSON document against the configuration schema.
func Validate(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return &ValidationError{Problems: problems}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("json")
	d := Default()
	v.SetDefault("world", d.World)
	v.SetDefault("lang", int(d.Lang))
	v.SetDefault("maxPlayer", d.MaxPlayer)
	v.SetDefault("port", d.Port)
	v.SetDefault("ip", d.IP)
	v.SetDefault("password", "")
	v.SetDefault("parameters", []string{})
	v.SetDefault("plugins", []string{})
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return v
}

// Args builds the server core's command line. Worlds are looked up in
// worldDir as <world>.wld.
func (c *Config) Args(worldDir string) []string {
	args := []string{
		"-ip", c.IP,
		"-port", strconv.Itoa(int(c.Port)),
		"-lang", strconv.Itoa(int(c.Lang)),
		"-maxplayer", strconv.Itoa(c.MaxPlayer),
	}
	if c.World != "" {
		args = append(args, "-world", filepath.Join(worldDir, c.World)+".wld")
	}
	if c.Password != "" {
		args = append(args, "-pass", c.Password)
	}
	return append(args, c.Parameters...)
}

// HasFlag reports whether flag appears in args, ignoring case.
func HasFlag(args []string, flag string) bool {
	return slices.ContainsFunc(args, func(a string) bool {
		return strings.EqualFold(a, flag)
	})
}
