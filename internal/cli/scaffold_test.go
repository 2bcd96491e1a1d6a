package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeName(t *testing.T) {
	cases := map[string]string{
		"Greeter":      "Greeter",
		"world-backup": "WorldBackup",
		"anti_grief2":  "AntiGrief2",
		"9lives":       "Lives",
		"Überwacher":   "Berwacher",
		"---":          "",
	}
	for in, want := range cases {
		assert.Equal(t, want, typeName(in), in)
	}
}

func TestPluginsInitNative(t *testing.T) {
	parent := t.TempDir()

	out, err := execute(t, "plugins", "init", "world-backup", "--dir", parent, "--author", "Ops")
	require.NoError(t, err)
	assert.Contains(t, out, "Created native plugin")

	src, err := os.ReadFile(filepath.Join(parent, "world-backup", "main.go"))
	require.NoError(t, err)
	assert.Contains(t, string(src), `Module: "world-backup"`)
	assert.Contains(t, string(src), "type WorldBackup struct")
	assert.Contains(t, string(src), "plugin.Targets(2, 1)")
	assert.Contains(t, string(src), `return "Ops"`)
	assert.Contains(t, string(src), "var Manifest = plugin.Manifest{")

	readme, err := os.ReadFile(filepath.Join(parent, "world-backup", "README.md"))
	require.NoError(t, err)
	assert.Contains(t, string(readme), "go build -buildmode=plugin -o world-backup.so .")
}

func TestPluginsInitExecutable(t *testing.T) {
	parent := t.TempDir()

	_, err := execute(t, "plugins", "init", "Announcer", "--dir", parent, "--runtime", "executable")
	require.NoError(t, err)

	src, err := os.ReadFile(filepath.Join(parent, "Announcer", "main.go"))
	require.NoError(t, err)
	assert.Contains(t, string(src), "rpcplugin.Serve(")
}

func TestPluginsInitRejects(t *testing.T) {
	parent := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(parent, "Taken"), 0o755))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown runtime", []string{"Greeter", "--runtime", "wasm"}, "unknown runtime"},
		{"path in name", []string{"a/b"}, "invalid plugin name"},
		{"no identifier", []string{"123"}, "Go identifier"},
		{"existing dir", []string{"Taken"}, "already exists"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"plugins", "init", "--dir", parent}, tt.args...)
			_, err := execute(t, args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
