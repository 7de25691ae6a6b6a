package cmd

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanindex/internal/async"
	"github.com/Aman-CERP/amanindex/internal/config"
	"github.com/Aman-CERP/amanindex/internal/embed"
	"github.com/Aman-CERP/amanindex/internal/index"
	"github.com/Aman-CERP/amanindex/internal/output"
	"github.com/Aman-CERP/amanindex/internal/ui"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index size and health",
		Long: `Show the number of indexed files, the vector count, when the index was
last updated and whether it is healthy. When a server is running its
live state and refresh schedule are shown as well.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runStats(cmd *cobra.Command, jsonOutput bool) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var (
		st    index.Stats
		sched *async.Status
	)
	if client := controlClient(cfg); client.IsRunning() {
		remote, err := client.Stats(ctx)
		if err != nil {
			return err
		}
		st = *remote
		if status, err := client.Status(ctx); err == nil {
			sched = status.Scheduler
		}
	} else if st, err = localStats(ctx, cfg); err != nil {
		return err
	}

	info := ui.StatusInfo{
		DataDir:        cfg.Storage.DataDir,
		State:          string(st.State),
		TotalFiles:     st.TotalFiles,
		VectorCount:    st.VectorCount,
		LastUpdate:     st.LastUpdate,
		StoreValid:     st.StoreValid,
		IndexExists:    st.IndexExists,
		MetadataExists: st.MetadataExists,
		MetadataSize:   pathSize(metadataPath(cfg)),
		IndexSize:      pathSize(filepath.Join(cfg.Storage.DataDir, index.IndexDirName)),
		EmbedderType:   cfg.Embeddings.Provider,
		EmbedderModel:  cfg.Embeddings.Model,
	}
	if info.EmbedderType == string(embed.ProviderStatic) {
		info.EmbedderModel = ""
	}

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor || !ui.IsTTY(cmd.OutOrStdout()))
	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	if err := renderer.Render(info); err != nil {
		return err
	}
	if sched != nil {
		renderSchedule(output.New(cmd.OutOrStdout()), sched)
	}
	return nil
}

// localStats reads the persisted pair without embedding anything.
func localStats(ctx context.Context, cfg *config.Config) (index.Stats, error) {
	coord, _, err := openCoordinator(ctx, cfg, engineDeps{
		provider: embed.NewStaticEmbedder(cfg.Embeddings.Dimensions),
	})
	if err != nil {
		return index.Stats{}, err
	}
	defer func() { _ = coord.Close() }()

	verdict, err := coord.Validate(ctx)
	if err != nil {
		return index.Stats{}, err
	}
	st, err := coord.Stats(ctx)
	if err != nil {
		return index.Stats{}, err
	}
	st.State = verdict.State
	st.StoreValid = st.StoreValid && verdict.State == index.StateReusable
	return st, nil
}

func renderSchedule(out *output.Writer, st *async.Status) {
	out.Newline()
	out.Status("", "Refresh scheduler:")
	out.Statusf("", "  Running: %t, cycles: %d, failures: %d", st.Running, st.Cycles, st.Failures)
	if st.InCycle {
		out.Status("", "  A refresh is in progress")
	} else if !st.NextRun.IsZero() {
		out.Statusf("", "  Next run: %s", st.NextRun.Format("2006-01-02 15:04:05"))
	}
	if st.LastError != "" {
		out.Warningf("Last refresh failed: %s", st.LastError)
	}
}
