package cmd

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Aman-CERP/amanindex/internal/async"
	"github.com/Aman-CERP/amanindex/internal/config"
	"github.com/Aman-CERP/amanindex/internal/crawler"
	"github.com/Aman-CERP/amanindex/internal/daemon"
	"github.com/Aman-CERP/amanindex/internal/embed"
	"github.com/Aman-CERP/amanindex/internal/index"
	"github.com/Aman-CERP/amanindex/internal/metadata"
	"github.com/Aman-CERP/amanindex/internal/telemetry"
	"github.com/Aman-CERP/amanindex/internal/ui"
)

// loadConfig reads --config when given, otherwise the layered defaults
// rooted at the working directory.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return config.Load(wd)
}

// signalContext cancels on Ctrl+C or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// engineDeps are the optional collaborators of a coordinator.
type engineDeps struct {
	// provider replaces the configured one, for commands that never embed.
	provider embed.Provider
	renderer ui.Renderer
	metrics  *telemetry.Metrics
	searches *telemetry.SearchStats
}

// openCoordinator builds the provider, metadata store and coordinator for
// cfg. Closing the coordinator releases all three.
func openCoordinator(ctx context.Context, cfg *config.Config, deps engineDeps) (*index.Coordinator, embed.Provider, error) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}

	provider := deps.provider
	if provider == nil {
		inner, err := embed.NewProvider(ctx, cfg.Embeddings)
		if err != nil {
			return nil, nil, err
		}
		provider = embed.NewCachedEmbedder(inner, cfg.Embeddings.CacheSize)
	}

	meta, err := metadata.Open(cfg.Storage.MetadataBackend, cfg.Storage.DataDir)
	if err != nil {
		_ = provider.Close()
		return nil, nil, err
	}

	coord, err := index.NewCoordinator(index.CoordinatorConfigFrom(cfg), index.CoordinatorDeps{
		Provider:    provider,
		Metadata:    meta,
		Renderer:    deps.renderer,
		Metrics:     deps.metrics,
		SearchStats: deps.searches,
	})
	if err != nil {
		_ = meta.Close()
		_ = provider.Close()
		return nil, nil, err
	}
	return coord, provider, nil
}

// controlClient returns a client for the server serving cfg's data dir.
func controlClient(cfg *config.Config) *daemon.Client {
	return daemon.NewClient(daemon.DefaultConfig(cfg.Storage.DataDir))
}

// schedulerConfig maps the file configuration onto scheduler timings.
func schedulerConfig(cfg *config.Config) async.Config {
	return async.Config{
		Interval: config.ParseDuration(cfg.Scheduler.Interval, async.DefaultInterval),
		Tick:     config.ParseDuration(cfg.Scheduler.Tick, async.DefaultTick),
		Backoff:  config.ParseDuration(cfg.Scheduler.Backoff, async.DefaultBackoff),
	}
}

// resolveRoots returns the configured roots, or every mounted partition.
func resolveRoots(cfg *config.Config) []string {
	if len(cfg.Paths.Roots) > 0 {
		return cfg.Paths.Roots
	}
	return crawler.DefaultRoots()
}

// absPaths makes CLI root arguments absolute.
func absPaths(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		out = append(out, abs)
	}
	return out, nil
}

// newRenderer returns the progress renderer for interactive commands.
func newRenderer(out io.Writer, plain bool) ui.Renderer {
	return ui.NewRenderer(ui.NewConfig(out,
		ui.WithForcePlain(plain),
		ui.WithNoColor(noColor || ui.DetectNoColor())))
}

// completionStats summarizes a coordinator result for the renderer.
func completionStats(res *index.Result, cfg *config.Config, provider embed.Provider) ui.CompletionStats {
	return ui.CompletionStats{
		Outcome:       string(res.Outcome),
		Message:       res.Message(),
		Files:         res.Processed,
		Failed:        res.Failed,
		Removed:       res.Removed,
		Batches:       res.Batches,
		FailedBatches: res.FailedBatches,
		Duration:      res.Duration,
		Stages: ui.StageTimings{
			Scan:  res.ScanDuration,
			Embed: res.EmbedDuration,
		},
		Embedder: ui.EmbedderInfo{
			Backend:    cfg.Embeddings.Provider,
			Model:      provider.ModelName(),
			Dimensions: provider.Dimensions(),
		},
	}
}

// metadataPath is the snapshot file for the configured backend.
func metadataPath(cfg *config.Config) string {
	if cfg.Storage.MetadataBackend == config.BackendSQLite {
		return filepath.Join(cfg.Storage.DataDir, metadata.SQLiteFileName)
	}
	return filepath.Join(cfg.Storage.DataDir, metadata.JSONFileName)
}

// pathSize is the size of a file, or the total size of a directory tree.
func pathSize(path string) int64 {
	var total int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if info, err := d.Info(); err == nil && !d.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}

// waitFor polls cond every step until it holds or timeout passes.
func waitFor(timeout, step time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(step)
	}
	return cond()
}
