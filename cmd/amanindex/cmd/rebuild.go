package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanindex/internal/output"
)

func newRebuildCmd() *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Discard the index and rebuild it from a full crawl",
		Long: `Delete the vector index and metadata snapshot, then crawl every root
and embed all candidate files again.

When a server is running the rebuild runs there and this command waits
for it. Ctrl+C stops waiting; batches already embedding still finish.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRebuild(cmd, plain)
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "Plain progress output (no styling)")
	return cmd
}

func runRebuild(cmd *cobra.Command, plain bool) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if client := controlClient(cfg); client.IsRunning() {
		out := output.New(cmd.OutOrStdout())
		out.Status("", "Rebuilding on the running server...")
		res, err := client.Rebuild(ctx)
		if err != nil {
			return err
		}
		if res.FailedBatches > 0 {
			out.Warningf("Rebuild %s (%.1fs)", res.Message, res.DurationSecs)
		} else {
			out.Successf("Rebuild %s: %s (%.1fs)", res.Outcome, res.Message, res.DurationSecs)
		}
		return nil
	}

	renderer := newRenderer(cmd.OutOrStdout(), plain)
	if err := renderer.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = renderer.Stop() }()

	coord, provider, err := openCoordinator(ctx, cfg, engineDeps{renderer: renderer})
	if err != nil {
		return err
	}
	defer func() { _ = coord.Close() }()

	res, err := coord.ForceRebuild(ctx)
	if res != nil {
		renderer.Complete(completionStats(res, cfg, provider))
	}
	if err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}
	return nil
}
