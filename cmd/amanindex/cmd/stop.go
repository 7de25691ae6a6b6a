package cmd

import (
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanindex/internal/daemon"
	"github.com/Aman-CERP/amanindex/internal/output"
)

// stopTimeout is how long stop waits for a graceful exit before SIGKILL.
const stopTimeout = 10 * time.Second

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running server",
		Long: `Send SIGTERM to the server recorded in the data directory's PID file.
The server flushes the index and releases its lock before exiting.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStop(cmd)
		},
	}
}

func runStop(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := output.New(cmd.OutOrStdout())
	pidFile := daemon.NewPIDFile(daemon.DefaultConfig(cfg.Storage.DataDir).PIDPath)

	pid, err := pidFile.Read()
	if errors.Is(err, daemon.ErrPIDFileNotFound) || (err == nil && !pidFile.IsRunning()) {
		out.Status("", "Server is not running")
		return nil
	}
	if err != nil {
		return err
	}

	if err := pidFile.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	if waitFor(stopTimeout, 100*time.Millisecond, func() bool { return !pidFile.IsRunning() }) {
		out.Successf("Server stopped (was pid %d)", pid)
		return nil
	}

	out.Warning("Server not responding, sending SIGKILL")
	if err := pidFile.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill server: %w", err)
	}
	out.Successf("Server killed (was pid %d)", pid)
	return nil
}
