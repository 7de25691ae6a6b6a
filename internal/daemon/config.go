// Package daemon lets CLI commands reach a running server. The server owns
// the index lock for its lifetime, so searches, stats and refresh requests
// from other processes are forwarded over a Unix socket in the data
// directory instead of opening the index themselves.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// SocketFileName is the control socket inside the data directory.
	SocketFileName = "amanindex.sock"
	// PIDFileName records the serving process inside the data directory.
	PIDFileName = "amanindex.pid"
)

// Config holds configuration for the control socket.
type Config struct {
	// SocketPath is the Unix domain socket path for IPC.
	// Default: <dataDir>/amanindex.sock
	SocketPath string

	// PIDPath is the file path for storing the server's process ID.
	// Default: <dataDir>/amanindex.pid
	PIDPath string

	// Timeout bounds quick requests (ping, status, search, stats). Rebuilds
	// are bounded only by the caller's context.
	// Default: 30s
	Timeout time.Duration
}

// DefaultConfig returns the control socket configuration for dataDir.
func DefaultConfig(dataDir string) Config {
	return Config{
		SocketPath: filepath.Join(dataDir, SocketFileName),
		PIDPath:    filepath.Join(dataDir, PIDFileName),
		Timeout:    30 * time.Second,
	}
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket path cannot be empty")
	}
	if c.PIDPath == "" {
		return fmt.Errorf("PID path cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

// EnsureDir creates the directories for the socket and PID files.
func (c Config) EnsureDir() error {
	for _, dir := range []string{filepath.Dir(c.SocketPath), filepath.Dir(c.PIDPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
