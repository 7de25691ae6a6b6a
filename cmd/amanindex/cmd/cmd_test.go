package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// testEnv points config, logs and data at temp directories and returns
// the data dir and a root holding two candidate files and one other file.
func testEnv(t *testing.T) (dataDir, root string) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))

	// Unix socket paths are length-limited; keep the data dir short.
	dataDir, err := os.MkdirTemp("", "aic")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dataDir) })

	root = t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "reports"), 0o755))
	for _, name := range []string{"reports/q3-budget.xlsx", "notes.txt", "main.go"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644))
	}

	t.Setenv("AMANINDEX_DATA_DIR", dataDir)
	t.Setenv("AMANINDEX_ROOTS", root)
	return dataDir, root
}

// executeCmd runs the root command with args and returns its output.
func executeCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
