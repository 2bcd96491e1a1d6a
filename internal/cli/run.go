package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/goatkit/serverboot/internal/config"
	"github.com/goatkit/serverboot/internal/host"
	"github.com/goatkit/serverboot/internal/logging"
	"github.com/goatkit/serverboot/internal/plugin"
	"github.com/goatkit/serverboot/internal/plugin/loader"
	"github.com/goatkit/serverboot/internal/plugin/metrics"
	"github.com/goatkit/serverboot/internal/status"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load plugins and run the server core",
		Long: `Run reads the server configuration, loads the configured plugins right
before the server core initializes and then starts the core with the
generated command line. Any fatal plugin error aborts startup.`,
		Example: `  serverboot run --config server.json --plugins-dir ./plugins \
      --worlds-dir ./worlds --server ./TerrariaServer`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := settings(cmd)
			if err != nil {
				return err
			}
			return runServer(cmd, v)
		},
	}

	cmd.Flags().String("config", "server.json", "Server configuration document")
	cmd.Flags().String("plugins-dir", "plugins", "Directory holding plugin modules")
	cmd.Flags().String("worlds-dir", "worlds", "Directory holding world files")
	cmd.Flags().String("server", "", "Server core executable")
	cmd.Flags().Int("parent-pid", 0, "Exit when this process exits")
	cmd.Flags().Bool("watch", false, "Reload plugins when their files change")
	cmd.Flags().String("status-addr", "", "Serve status, /metrics and /events on this address")
	cmd.Flags().Bool("require-signatures", false, "Only load plugin binaries signed by a trusted key")
	cmd.Flags().StringSlice("trusted-key", nil, "Public key file trusted for plugin signatures (repeatable)")
	_ = cmd.MarkFlagRequired("server")

	return cmd
}

func runServer(cmd *cobra.Command, v *viper.Viper) error {
	events := plugin.NewEventBroker()
	buffer := logging.NewBuffer(1000, nil)
	buffer.OnAdd(events.PublishEntry)

	logger, err := newLogger(v, cmd.ErrOrStderr(), buffer)
	if err != nil {
		return err
	}

	cfg, err := config.Load(v.GetString("config"))
	if err != nil {
		return err
	}
	args := cfg.Args(v.GetString("worlds-dir"))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	host.Banner(ctx, logger, plugin.HostAPIVersion)

	st, err := newStack(stackOptions{
		PluginsDir:        v.GetString("plugins-dir"),
		RequireSignatures: v.GetBool("require-signatures"),
		TrustedKeys:       v.GetStringSlice("trusted-key"),
		IgnoreVersion:     config.HasFlag(args, config.IgnoreVersionFlag),
		Reporter:          metrics.Default(),
		PluginLogOutput:   cmd.ErrOrStderr(),
		PluginLogLevel:    v.GetString("log-level"),
	}, cfg, hostInfo(cfg, args), logger)
	if err != nil {
		return err
	}

	server := host.New(host.Options{
		Executable: v.GetString("server"),
		Args:       args,
		Input:      cmd.InOrStdin(),
		Output:     host.NewConsoleOutput(cmd.OutOrStdout(), logger),
		Logger:     logger,
	})
	st.Host.Attach(server)
	sched, err := newScheduler(server, cfg, logger)
	if err != nil {
		return err
	}
	server.BeforeInitialize(func(ctx context.Context) error {
		_, err := st.Loader.Run(ctx, cfg.Plugins)
		return err
	})

	if addr := v.GetString("status-addr"); addr != "" {
		srv := status.New(status.Options{
			Container: st.Container,
			Modules:   st.Registry,
			Events:    events,
			Logger:    logger,
		})
		go func() {
			if err := srv.ListenAndServe(ctx, addr); err != nil {
				logger.Error("Status server failed", "error", err)
			}
		}()
	}

	var parentGone atomic.Bool
	if pid := v.GetInt("parent-pid"); pid > 0 {
		host.WatchParent(ctx, pid, logger, func() {
			parentGone.Store(true)
			cancel()
		})
	}

	if err := server.Start(ctx); err != nil {
		logger.Error("Startup aborted due to an error in plugin initialization", "error", err)
		shutdownPlugins(st, logger)
		return err
	}

	if sched != nil {
		sched.Start(ctx)
		defer sched.Stop()
	}

	var watcher *loader.Watcher
	if v.GetBool("watch") {
		watcher = loader.NewWatcher(v.GetString("plugins-dir"), cfg.Plugins, st.Loader, logger)
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("Plugin hot reload disabled", "error", err)
			watcher = nil
		}
	}

	select {
	case <-server.Done():
	case <-ctx.Done():
		if err := server.Stop(context.Background()); err != nil {
			logger.Error("Failed to stop server core", "error", err)
		}
	}

	if watcher != nil {
		watcher.Stop()
	}
	shutdownPlugins(st, logger)

	if parentGone.Load() {
		return &ExitError{Code: 1, Err: errors.New("parent process exited")}
	}
	if code := server.ExitCode(); code > 0 {
		return &ExitError{Code: code, Err: fmt.Errorf("server core exited with status %d", code)}
	}
	return nil
}

func shutdownPlugins(st *stack, logger *slog.Logger) {
	if err := st.Loader.Shutdown(context.Background()); err != nil {
		logger.Warn("Plugin shutdown failed", "error", err)
	}
}

// newScheduler returns nil when the configuration schedules nothing.
func newScheduler(server *host.Server, cfg *config.Config, logger *slog.Logger) (*host.Scheduler, error) {
	if len(cfg.Schedule) == 0 {
		return nil, nil
	}
	jobs := make([]host.Job, 0, len(cfg.Schedule))
	for _, sc := range cfg.Schedule {
		jobs = append(jobs, host.Job{Spec: sc.Spec, Command: sc.Command})
	}
	return host.NewScheduler(server, jobs, host.WithSchedulerLogger(logger))
}
