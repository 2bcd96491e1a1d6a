package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/goatkit/serverboot/internal/config"
	"github.com/goatkit/serverboot/internal/logging"
	"github.com/goatkit/serverboot/internal/plugin"
)

// moduleReport is the check result for one configured plugin.
type moduleReport struct {
	Plugin   string       `json:"plugin" yaml:"plugin"`
	Module   string       `json:"module,omitempty" yaml:"module,omitempty"`
	Kind     string       `json:"kind,omitempty" yaml:"kind,omitempty"`
	Path     string       `json:"path,omitempty" yaml:"path,omitempty"`
	Isolated bool         `json:"isolated" yaml:"isolated"`
	Error    string       `json:"error,omitempty" yaml:"error,omitempty"`
	Types    []typeReport `json:"types,omitempty" yaml:"types,omitempty"`
	Warnings []string     `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

type typeReport struct {
	Name       string `json:"name" yaml:"name"`
	APIVersion string `json:"api_version,omitempty" yaml:"api_version,omitempty"`
	Verdict    string `json:"verdict" yaml:"verdict"`
}

func newPluginsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect plugin modules",
	}
	cmd.AddCommand(newPluginsCheckCommand())
	cmd.AddCommand(newPluginsInitCommand())
	return cmd
}

func newPluginsCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [plugin]...",
		Short: "Load plugin modules and report which types would be activated",
		Long: `Check loads each plugin module without activating anything and reports
every exported type with the loader's verdict. Without arguments the
plugins listed in the configuration are checked.`,
		RunE: func(cmd *cobra.Command, names []string) error {
			v, err := settings(cmd)
			if err != nil {
				return err
			}

			cfg := config.Default()
			if len(names) == 0 {
				if cfg, err = config.Load(v.GetString("config")); err != nil {
					return err
				}
				names = cfg.Plugins
			}

			hostAPI, err := hostVersion(v)
			if err != nil {
				return err
			}

			buffer := logging.NewBuffer(500, slog.LevelWarn)
			logger, err := newLogger(v, io.Discard, buffer)
			if err != nil {
				return err
			}

			st, err := newStack(stackOptions{
				PluginsDir:        v.GetString("plugins-dir"),
				RequireSignatures: v.GetBool("require-signatures"),
				TrustedKeys:       v.GetStringSlice("trusted-key"),
				IgnoreVersion:     v.GetBool("ignore-version"),
				HostVersion:       hostAPI,
				PluginLogOutput:   io.Discard,
				PluginLogLevel:    "error",
			}, cfg, hostInfo(cfg, cfg.Args(".")), logger)
			if err != nil {
				return err
			}
			defer st.Registry.Close()

			reports := checkPlugins(cmd, st, names, buffer)
			return writeReports(cmd.OutOrStdout(), v.GetString("output"), reports)
		},
	}

	cmd.Flags().String("config", "server.json", "Server configuration document")
	cmd.Flags().String("plugins-dir", "plugins", "Directory holding plugin modules")
	cmd.Flags().Bool("ignore-version", false, "Accept any API version, as -ignoreversion does")
	cmd.Flags().String("host-api", "", "Server API revision to check against (major.minor[.build]); defaults to "+plugin.HostAPIVersion.Short())
	cmd.Flags().Bool("require-signatures", false, "Only load plugin binaries signed by a trusted key")
	cmd.Flags().StringSlice("trusted-key", nil, "Public key file trusted for plugin signatures (repeatable)")
	cmd.Flags().StringP("output", "o", "table", "Output format (table, json, yaml)")

	return cmd
}

// hostVersion parses --host-api. Empty means the revision this host implements.
func hostVersion(v *viper.Viper) (plugin.APIVersion, error) {
	s := v.GetString("host-api")
	if s == "" {
		return plugin.HostAPIVersion, nil
	}
	version, err := plugin.ParseAPIVersion(s)
	if err != nil {
		return plugin.APIVersion{}, fmt.Errorf("--host-api: %w", err)
	}
	return version, nil
}

func checkPlugins(cmd *cobra.Command, st *stack, names []string, buffer *logging.Buffer) []moduleReport {
	reports := make([]moduleReport, 0, len(names))
	for _, name := range names {
		r := moduleReport{Plugin: name}
		loaded, err := st.Registry.Resolve(cmd.Context(), name)
		if err != nil {
			r.Error = err.Error()
			reports = append(reports, r)
			continue
		}

		r.Module = loaded.Module.Name()
		r.Kind = loaded.Descriptor.Kind
		r.Path = loaded.Descriptor.Path
		r.Isolated = loaded.Isolated
		for _, t := range loaded.Module.Types() {
			tr := typeReport{Name: t.Name, Verdict: string(st.Filter.Classify(t))}
			if t.APIVersion != nil {
				tr.APIVersion = t.APIVersion.Short()
			}
			r.Types = append(r.Types, tr)
		}
		// Discover emits the naming warnings.
		st.Filter.Discover(loaded)
		reports = append(reports, r)
	}

	for i := range reports {
		for _, e := range buffer.Chronological() {
			if e.Plugin == reports[i].Plugin {
				reports[i].Warnings = append(reports[i].Warnings, e.Message)
			}
		}
	}
	return reports
}

func writeReports(w io.Writer, format string, reports []moduleReport) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(reports)
	case "table", "":
		_, err := fmt.Fprintln(w, renderReports(reports))
		return err
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	skippedStyle = cellStyle.Foreground(lipgloss.Color("240"))
	errorStyle   = cellStyle.Foreground(lipgloss.Color("196"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func renderReports(reports []moduleReport) string {
	var rows [][]string
	var warnings []string
	for _, r := range reports {
		if r.Error != "" {
			rows = append(rows, []string{r.Plugin, "", "", "", "error: " + r.Error})
			continue
		}
		module := r.Module
		if r.Isolated {
			module += " (isolated)"
		}
		if len(r.Types) == 0 {
			rows = append(rows, []string{r.Plugin, module, "", "", "no types"})
		}
		for _, t := range r.Types {
			rows = append(rows, []string{r.Plugin, module, t.Name, t.APIVersion, t.Verdict})
		}
		for _, w := range r.Warnings {
			warnings = append(warnings, warnStyle.Render("warning: "+w))
		}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("PLUGIN", "MODULE", "TYPE", "API", "VERDICT").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			verdict := rows[row][4]
			switch {
			case len(verdict) > 6 && verdict[:6] == "error:":
				return errorStyle
			case col == 4 && verdict != "eligible":
				return skippedStyle
			}
			return cellStyle
		})

	if len(warnings) == 0 {
		return t.String()
	}
	return lipgloss.JoinVertical(lipgloss.Left, append([]string{t.String()}, warnings...)...)
}
