// Package cmd provides the CLI commands for amanindex.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/amanindex/internal/errors"
	"github.com/Aman-CERP/amanindex/internal/logging"
	"github.com/Aman-CERP/amanindex/internal/profiling"
	"github.com/Aman-CERP/amanindex/pkg/version"
)

// Global flags.
var (
	configPath string
	debugMode  bool
	noColor    bool

	profileCPU   string
	profileMem   string
	profileTrace string
)

// Per-run state released in the post-run hook.
var (
	profile        *profiling.Session
	loggingCleanup func()
)

// NewRootCmd creates the root command for the amanindex CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "amanindex",
		Short: "Local semantic file index",
		Long: `amanindex keeps a vector index of the documents on this machine and
answers natural-language searches over their names and paths.

The index is built once, reused while healthy, and kept fresh by a
background refresh while 'amanindex serve' runs. CLI commands talk to
the running server when there is one.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("amanindex version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ~/.config/amanindex/config.yaml, then .amanindex.yaml)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging (also mirrored to stderr)")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newRebuildCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newRefreshCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging starts requested profiles and installs the file
// logger. serve installs its own logger because stdout belongs to MCP there.
func startProfilingAndLogging(cmd *cobra.Command, _ []string) error {
	session, err := profiling.Start(profiling.Options{CPU: profileCPU, Heap: profileMem, Trace: profileTrace})
	if err != nil {
		return err
	}
	profile = session

	if cmd.Name() == "serve" {
		return nil
	}

	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = debugMode
	if debugMode {
		logCfg.Level = "debug"
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		if debugMode {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		// Commands still work without a writable log directory.
		return nil
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Debug("debug_logging_enabled",
		slog.String("log_file", logCfg.FilePath),
		slog.String("version", version.Version))
	return nil
}

// stopProfilingAndLogging flushes profiles and closes the log file.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	err := profile.Stop()
	profile = nil

	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	if err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	return nil
}

// Execute runs the root command and prints failures with their hints.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		// Post-run hooks are skipped on error.
		_ = stopProfilingAndLogging(nil, nil)
		_, _ = fmt.Fprint(os.Stderr, amerrors.FormatForCLI(err))
	}
	return err
}
