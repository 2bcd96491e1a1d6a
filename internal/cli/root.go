// Package cli implements the serverboot command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/goatkit/serverboot/internal/logging"
	"github.com/goatkit/serverboot/internal/plugin"
)

var (
	Version   = "dev"     // Overridden by ldflags
	BuildTime = "unknown" // Overridden by ldflags
)

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode maps a command error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return 1
}

// NewRootCommand builds the serverboot command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "serverboot",
		Short: "Game server plugin host",
		Long: `serverboot launches a game server core and loads the plugins listed in
its configuration before the server initializes.

Plugins are Go shared objects (<name>.so), plugin executables built with
pkg/plugin/rpcplugin, or modules compiled into serverboot.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} version {{.Version}}\nServer API: %s\nBuild time: %s\nGo version: %s\nPlatform: %s/%s\n",
		plugin.HostAPIVersion, BuildTime, goVersion(), runtime.GOOS, runtime.GOARCH))

	rootCmd.PersistentFlags().String("log-level", "info", "Diagnostic level (verbose, info, warning, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Diagnostic format (text, json)")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newArgsCommand())
	rootCmd.AddCommand(newPluginsCommand())
	rootCmd.AddCommand(newKeygenCommand())
	rootCmd.AddCommand(newSignCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "serverboot %s (server API %s, %s, %s/%s)\n",
				Version, plugin.HostAPIVersion, goVersion(), runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
}

// goVersion returns the Go version used to build the binary
func goVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.GoVersion
	}
	return runtime.Version()
}

// settings binds a command's flags, inherited ones included, to a viper
// instance. SERVERBOOT_<FLAG> environment variables override defaults,
// e.g. SERVERBOOT_PLUGINS_DIR.
func settings(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("SERVERBOOT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var bindErr error
	bind := func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil && bindErr == nil {
			bindErr = fmt.Errorf("bind flag %s: %w", f.Name, err)
		}
	}
	cmd.InheritedFlags().VisitAll(bind)
	cmd.LocalFlags().VisitAll(bind)
	return v, bindErr
}

// newLogger builds the diagnostics logger from the log flags.
func newLogger(v *viper.Viper, w io.Writer, extra ...slog.Handler) (*slog.Logger, error) {
	return logging.New(logging.Options{
		Level:  v.GetString("log-level"),
		Format: v.GetString("log-format"),
		Output: w,
	}, extra...)
}
