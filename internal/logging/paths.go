package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.amanindex/logs, or a temp-dir equivalent when
// the home directory cannot be resolved.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".amanindex", "logs")
	}
	return filepath.Join(home, ".amanindex", "logs")
}

// DefaultLogPath returns the default engine log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "amanindex.log")
}
