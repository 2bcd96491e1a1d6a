package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/goatkit/serverboot/internal/config"
	"github.com/goatkit/serverboot/internal/plugin"
	"github.com/goatkit/serverboot/internal/plugin/discovery"
	"github.com/goatkit/serverboot/internal/plugin/example"
	"github.com/goatkit/serverboot/internal/plugin/grpc"
	"github.com/goatkit/serverboot/internal/plugin/loader"
	"github.com/goatkit/serverboot/internal/plugin/module"
	"github.com/goatkit/serverboot/internal/plugin/native"
	"github.com/goatkit/serverboot/internal/plugin/signing"
	"github.com/goatkit/serverboot/internal/plugin/static"
)

// stackOptions selects how plugins are found and trusted.
type stackOptions struct {
	PluginsDir        string
	RequireSignatures bool
	TrustedKeys       []string // public key files
	IgnoreVersion     bool
	HostVersion       plugin.APIVersion // zero means plugin.HostAPIVersion
	Reporter          loader.TimingReporter

	// PluginLogOutput receives plugin executables' own log output.
	PluginLogOutput io.Writer
	PluginLogLevel  string
}

// stack is the wired plugin subsystem.
type stack struct {
	Registry  *module.Registry
	Container *plugin.Container
	Host      *plugin.DefaultHost
	Loader    *loader.Loader
	Filter    *discovery.Filter
}

// builtins is the catalog of modules compiled into serverboot.
func builtins() *static.Catalog {
	c := static.NewCatalog()
	c.Register(example.ModuleName, example.Manifest)
	return c
}

// hostInfo describes the configured server to plugins.
func hostInfo(cfg *config.Config, args []string) plugin.HostInfo {
	return plugin.HostInfo{
		APIVersion: plugin.HostAPIVersion,
		World:      cfg.World,
		Address:    cfg.IP,
		Port:       int(cfg.Port),
		MaxPlayers: cfg.MaxPlayer,
		Locale:     cfg.Lang.Tag().String(),
		Args:       args,
	}
}

func newStack(opts stackOptions, cfg *config.Config, info plugin.HostInfo, logger *slog.Logger) (*stack, error) {
	openers := []module.Opener{
		builtins(),
		native.NewOpener(),
		grpc.NewOpener(grpc.Options{LogOutput: opts.PluginLogOutput, LogLevel: opts.PluginLogLevel}),
	}

	loaderOpts := []module.LoaderOption{module.WithLogger(logger)}
	if opts.RequireSignatures {
		verifier, err := signing.LoadVerifier(opts.TrustedKeys...)
		if err != nil {
			return nil, fmt.Errorf("load trusted keys: %w", err)
		}
		loaderOpts = append(loaderOpts, module.WithVerifier(verifier))
	}

	registry := module.NewRegistry(module.NewLoader(opts.PluginsDir, openers, loaderOpts...), logger)
	container := plugin.NewContainer()
	host := plugin.NewDefaultHost(info, nil, logger)

	ldr := loader.NewLoader(registry, container, host, logger,
		loader.WithIgnoreVersion(opts.IgnoreVersion),
		loader.WithHostVersion(opts.HostVersion),
		loader.WithTimingReporter(opts.Reporter),
		loader.WithPolicies(cfg.Policies),
	)

	return &stack{
		Registry:  registry,
		Container: container,
		Host:      host,
		Loader:    ldr,
		Filter: discovery.New(discovery.Options{
			HostVersion:   opts.HostVersion,
			IgnoreVersion: opts.IgnoreVersion,
			Logger:        logger,
		}),
	}, nil
}
