package cli

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"unicode"

	"github.com/spf13/cobra"

	"github.com/goatkit/serverboot/internal/plugin"
)

//go:embed templates/*
var templateFS embed.FS

// scaffold is the data every plugin template is rendered with.
type scaffold struct {
	Name     string // module and file base name
	Type     string // Go identifier of the plugin type
	Author   string
	Runtime  string
	Build    string
	Artifact string
	Major    int
	Minor    int
}

var runtimes = map[string]struct {
	template string
	build    func(name string) (cmd, artifact string)
}{
	"native": {
		template: "templates/native_main.go.tmpl",
		build: func(name string) (string, string) {
			return "go build -buildmode=plugin -o " + name + ".so .", name + ".so"
		},
	},
	"executable": {
		template: "templates/executable_main.go.tmpl",
		build: func(name string) (string, string) {
			return "go build -o " + name + " .", name
		},
	},
}

func newPluginsInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init <name>",
		Short: "Create a new plugin module from a template",
		Example: `  serverboot plugins init Greeter
  serverboot plugins init Announcer --runtime executable --dir ./src`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := settings(cmd)
			if err != nil {
				return err
			}
			dir, err := writeScaffold(v.GetString("dir"), args[0], v.GetString("runtime"), v.GetString("author"))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created %s plugin: %s\n\n", v.GetString("runtime"), dir)
			fmt.Fprintln(out, "Next steps:")
			fmt.Fprintf(out, "  cd %s\n", dir)
			fmt.Fprintln(out, "  see README.md")
			return nil
		},
	}

	cmd.Flags().String("runtime", "native", "Module kind (native, executable)")
	cmd.Flags().String("dir", ".", "Parent directory of the new plugin")
	cmd.Flags().String("author", "unknown", "Author reported by the plugin")

	return cmd
}

// writeScaffold renders the templates for runtime into parent/name and
// returns the created directory.
func writeScaffold(parent, name, runtime, author string) (string, error) {
	rt, ok := runtimes[runtime]
	if !ok {
		return "", fmt.Errorf("unknown runtime %q (use native or executable)", runtime)
	}
	if name == "" || strings.ContainsAny(name, `/\ `) {
		return "", fmt.Errorf("invalid plugin name %q", name)
	}
	ident := typeName(name)
	if ident == "" {
		return "", fmt.Errorf("plugin name %q has no letters usable in a Go identifier", name)
	}

	dir := filepath.Join(parent, name)
	if _, err := os.Stat(dir); err == nil {
		return "", fmt.Errorf("%s already exists", dir)
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create plugin directory: %w", err)
	}

	build, artifact := rt.build(name)
	data := scaffold{
		Name:     name,
		Type:     ident,
		Author:   author,
		Runtime:  runtime,
		Build:    build,
		Artifact: artifact,
		Major:    plugin.HostAPIVersion.Major,
		Minor:    plugin.HostAPIVersion.Minor,
	}

	if err := writeTemplate(filepath.Join(dir, "main.go"), rt.template, data); err != nil {
		return "", err
	}
	if err := writeTemplate(filepath.Join(dir, "README.md"), "templates/readme.md.tmpl", data); err != nil {
		return "", err
	}
	return dir, nil
}

func writeTemplate(path, tmplPath string, data any) error {
	content, err := templateFS.ReadFile(tmplPath)
	if err != nil {
		return fmt.Errorf("read template %s: %w", tmplPath, err)
	}

	tmpl, err := template.New(filepath.Base(tmplPath)).Parse(string(content))
	if err != nil {
		return fmt.Errorf("parse template %s: %w", tmplPath, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if err := tmpl.Execute(f, data); err != nil {
		return fmt.Errorf("render %s: %w", path, err)
	}
	return nil
}

// typeName turns a plugin name such as "world-backup" into "WorldBackup".
func typeName(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || (unicode.IsDigit(r) && b.Len() > 0)):
			if upper {
				r = unicode.ToUpper(r)
			}
			b.WriteRune(r)
			upper = false
		default:
			upper = true
		}
	}
	return b.String()
}
