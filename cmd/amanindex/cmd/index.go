package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanindex/internal/output"
)

func newIndexCmd() *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "index [roots...]",
		Short: "Build the index, or reuse it when healthy",
		Long: `Validate the persisted index and reuse it when the vector count is
consistent with the metadata. Otherwise crawl the roots and rebuild.

Roots default to paths.roots from the config, then to every mounted
partition. When a server is running, a refresh is queued there instead.`,
		Example: `  amanindex index
  amanindex index ~/Documents ~/Desktop
  amanindex index --plain > index.log`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, args, plain)
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "Plain progress output (no styling)")
	return cmd
}

func runIndex(cmd *cobra.Command, args []string, plain bool) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	roots, err := absPaths(args)
	if err != nil {
		return err
	}
	out := output.New(cmd.OutOrStdout())

	if client := controlClient(cfg); client.IsRunning() {
		if len(roots) > 0 {
			out.Warning("A server is running; its configured roots are used")
		}
		res, err := client.Refresh(ctx)
		if err != nil {
			return err
		}
		if res.Queued {
			out.Success("Refresh queued on the running server")
		} else {
			out.Status("", "A refresh is already pending on the running server")
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

	slog.Info("index_started", slog.Int("roots", len(roots)), slog.String("data_dir", cfg.Storage.DataDir))
	res, err := coord.BuildOrRefresh(ctx, roots)
	if res != nil {
		renderer.Complete(completionStats(res, cfg, provider))
	}
	return err
}
