package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanindex/internal/config"
	"github.com/Aman-CERP/amanindex/internal/embed"
	"github.com/Aman-CERP/amanindex/internal/preflight"
	"github.com/Aman-CERP/amanindex/internal/watcher"
	"github.com/Aman-CERP/amanindex/pkg/version"
)

func newDoctorCmd() *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system requirements and diagnose issues",
		Long: `Run the checks 'amanindex serve' performs before it starts:

  - Data directory is writable
  - Disk space (100MB minimum)
  - File descriptor limit (1024 minimum)
  - Inotify watch limit, when watching is enabled
  - Roots exist and are readable
  - Embedding provider answers with the configured dimensions

A passing run is remembered, so serve skips the checks for a week.`,
		Example: `  amanindex doctor
  amanindex doctor --verbose
  amanindex doctor --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, verbose, jsonOutput)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runDoctor(cmd *cobra.Command, verbose, jsonOutput bool) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		out = io.Discard
	}
	opts := []preflight.Option{
		preflight.WithVerbose(verbose),
		preflight.WithNoColor(noColor),
		preflight.WithOutput(out),
	}
	provider, err := embed.NewProvider(ctx, cfg.Embeddings)
	if err != nil {
		slog.Warn("doctor_provider_unavailable", slog.String("error", err.Error()))
	} else {
		defer func() { _ = provider.Close() }()
		opts = append(opts, preflight.WithProvider(provider))
	}

	checker := preflight.New(opts...)
	results := checker.RunAll(ctx, preflightTarget(cfg))
	if err != nil {
		results = append(results, preflight.CheckResult{
			Name:     "embedding_provider",
			Status:   preflight.StatusFail,
			Message:  err.Error(),
			Required: true,
		})
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		checker.PrintResults(results)
	}

	if checker.HasCriticalFailures(results) {
		return fmt.Errorf("system check failed")
	}
	if err := preflight.MarkPassed(cfg.Storage.DataDir, version.Build()); err != nil {
		slog.Debug("preflight_mark_failed", slog.String("error", err.Error()))
	}
	return nil
}

// preflightTarget describes what serve will use.
func preflightTarget(cfg *config.Config) preflight.Target {
	t := preflight.Target{
		DataDir: cfg.Storage.DataDir,
		Roots:   resolveRoots(cfg),
	}
	if cfg.Scheduler.Enabled && cfg.Scheduler.Watch {
		t.MaxWatches = watcher.DefaultOptions().MaxWatches
	}
	return t
}
