package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanindex/internal/async"
	"github.com/Aman-CERP/amanindex/internal/config"
	"github.com/Aman-CERP/amanindex/internal/daemon"
	"github.com/Aman-CERP/amanindex/internal/embed"
	amerrors "github.com/Aman-CERP/amanindex/internal/errors"
	"github.com/Aman-CERP/amanindex/internal/index"
	"github.com/Aman-CERP/amanindex/internal/logging"
	"github.com/Aman-CERP/amanindex/internal/mcp"
	"github.com/Aman-CERP/amanindex/internal/preflight"
	"github.com/Aman-CERP/amanindex/internal/telemetry"
	"github.com/Aman-CERP/amanindex/internal/watcher"
	"github.com/Aman-CERP/amanindex/pkg/version"
)

// Transports accepted by serve.
const (
	transportStdio = "stdio"
	// transportNone serves only the control socket.
	transportNone = "none"
)

// Search statistics capacities.
const (
	searchTermCapacity = 1000
	zeroResultCapacity = 100
)

// serveOptions holds CLI flags for serve.
type serveOptions struct {
	transport   string
	skipCheck   bool
	metricsAddr string
}

func newServeCmd() *cobra.Command {
	var (
		opts  serveOptions
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the index to AI clients and keep it fresh",
		Long: `Open or build the index, then serve it until interrupted:

  - MCP over stdio (search_files, index_stats, force_rebuild tools)
  - a control socket in the data directory used by the other CLI commands
  - a background refresh every scheduler.interval, optionally triggered
    early by filesystem notifications (--watch)
  - Prometheus metrics on --metrics-addr, when set

Stdout carries MCP messages, so all logging goes to the log file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("watch") {
				cfg.Scheduler.Watch = watch
			}
			if opts.transport == "" {
				opts.transport = cfg.Server.Transport
			}
			if opts.metricsAddr == "" {
				opts.metricsAddr = cfg.Server.MetricsAddr
			}
			return runServe(cmd.Context(), cfg, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.transport, "transport", "t", "", "Transport: stdio or none (default from config)")
	cmd.Flags().BoolVar(&opts.skipCheck, "skip-check", false, "Skip pre-flight system checks")
	cmd.Flags().BoolVar(&watch, "watch", false, "Trigger refreshes from filesystem notifications")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. localhost:9464)")

	return cmd
}

func runServe(parent context.Context, cfg *config.Config, opts serveOptions) error {
	switch opts.transport {
	case transportStdio, transportNone:
	default:
		return fmt.Errorf("unsupported transport %q (use stdio or none)", opts.transport)
	}

	level := cfg.Server.LogLevel
	if debugMode {
		level = "debug"
	}
	logger, cleanup, err := logging.Setup(logging.ServeConfig(level))
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer cleanup()
	slog.SetDefault(logger)

	ctx, stop := signalContext(parent)
	defer stop()

	svc, err := startServices(ctx, cfg, opts)
	if err != nil {
		slog.Error("serve_failed", amerrors.LogAttrs(err)...)
		return err
	}
	defer func() {
		if err := svc.shutdown(); err != nil {
			slog.Error("serve_shutdown_failed", slog.String("error", err.Error()))
		}
	}()

	slog.Info("serve_ready",
		slog.String("transport", opts.transport),
		slog.String("version", version.Version),
		slog.Bool("watching", svc.notifier != nil))

	if opts.transport == transportNone {
		<-ctx.Done()
		return nil
	}
	err = svc.mcp.Serve(ctx, opts.transport)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// services are the long-running parts of serve.
type services struct {
	coord     *index.Coordinator
	provider  embed.Provider
	scheduler *async.Scheduler
	notifier  *watcher.Notifier
	control   *daemon.Server
	pidFile   *daemon.PIDFile
	mcp       *mcp.Server
	metrics   *telemetry.Metrics
	searches  *telemetry.SearchStats

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// startServices opens the index and starts everything serve runs in the
// background. The caller must call shutdown.
func startServices(parent context.Context, cfg *config.Config, opts serveOptions) (_ *services, err error) {
	dataDir := cfg.Storage.DataDir
	ctlCfg := daemon.DefaultConfig(dataDir)
	if err := ctlCfg.EnsureDir(); err != nil {
		return nil, err
	}
	if daemon.NewClient(ctlCfg).IsRunning() {
		return nil, fmt.Errorf("a server is already running for %s", dataDir)
	}

	ctx, cancel := context.WithCancel(parent)
	s := &services{
		cancel:   cancel,
		pidFile:  daemon.NewPIDFile(ctlCfg.PIDPath),
		metrics:  telemetry.NewMetrics(),
		searches: telemetry.NewSearchStats(searchTermCapacity, zeroResultCapacity),
	}
	defer func() {
		if err != nil {
			_ = s.shutdown()
		}
	}()

	if err := s.pidFile.Write(); err != nil {
		return nil, err
	}

	s.coord, s.provider, err = openCoordinator(ctx, cfg, engineDeps{metrics: s.metrics, searches: s.searches})
	if err != nil {
		return nil, err
	}

	if !opts.skipCheck && preflight.NeedsCheck(dataDir, version.Build()) {
		if err := runPreflight(ctx, cfg, s.provider); err != nil {
			return nil, err
		}
	}

	res, err := s.coord.BuildOrRefresh(ctx, nil)
	if err != nil {
		return nil, err
	}
	slog.Info("serve_index_ready", slog.String("outcome", string(res.Outcome)), slog.String("message", res.Message()))

	s.scheduler = async.NewScheduler(schedulerConfig(cfg), func(ctx context.Context) error {
		_, err := s.coord.Refresh(ctx)
		return err
	})
	if cfg.Scheduler.Enabled {
		s.scheduler.Start(ctx)
		if cfg.Scheduler.Watch {
			s.notifier = startWatcher(ctx, cfg, s.scheduler)
		}
	}

	s.control, err = daemon.NewServer(ctlCfg.SocketPath, s.coord)
	if err != nil {
		return nil, err
	}
	if cfg.Scheduler.Enabled {
		s.control.SetRefresher(s.scheduler, s.notifier != nil)
	}
	s.goServe("control", func() error { return s.control.ListenAndServe(ctx) })

	if opts.metricsAddr != "" {
		s.goServe("metrics", func() error { return s.metrics.Serve(ctx, opts.metricsAddr) })
	}

	s.mcp, err = mcp.NewServer(s.coord, s.provider)
	if err != nil {
		return nil, err
	}
	s.mcp.SetScheduler(s.scheduler)
	s.mcp.SetSearchStats(s.searches)
	return s, nil
}

// goServe runs a listener until the services context ends.
func (s *services) goServe(name string, serve func() error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := serve(); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("serve_listener_failed", slog.String("listener", name), slog.String("error", err.Error()))
		}
	}()
}

// shutdown stops background work before the coordinator releases the
// index, so no refresh runs against a closed index.
func (s *services) shutdown() error {
	s.cancel()
	if s.notifier != nil {
		_ = s.notifier.Stop()
	}
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.control != nil {
		_ = s.control.Close()
	}
	s.wg.Wait()

	var err error
	if s.coord != nil {
		err = s.coord.Close()
	}
	if rmErr := s.pidFile.Remove(); rmErr != nil {
		err = errors.Join(err, rmErr)
	}
	slog.Info("serve_stopped")
	return err
}

// startWatcher triggers refreshes on filesystem changes. It returns nil
// when notifications are unavailable; the periodic refresh still runs.
func startWatcher(ctx context.Context, cfg *config.Config, sched *async.Scheduler) *watcher.Notifier {
	n, err := watcher.New(watcher.Options{
		Crawl:          index.CoordinatorConfigFrom(cfg).Crawl,
		DebounceWindow: config.ParseDuration(cfg.Scheduler.Debounce, watcher.DefaultOptions().DebounceWindow),
	})
	if err != nil {
		slog.Warn("watcher_unavailable", slog.String("error", err.Error()))
		return nil
	}
	err = n.Start(ctx, resolveRoots(cfg), func(events []watcher.FileEvent) {
		queued := sched.Trigger()
		slog.Debug("watcher_changes", slog.Int("events", len(events)), slog.Bool("queued", queued))
	})
	if err != nil {
		_ = n.Stop()
		slog.Warn("watcher_unavailable", slog.String("error", err.Error()))
		return nil
	}
	slog.Info("watcher_started", slog.Int("directories", n.Watched()))
	return n
}

// runPreflight checks the system silently; failures go to the log.
func runPreflight(ctx context.Context, cfg *config.Config, provider embed.Provider) error {
	checker := preflight.New(
		preflight.WithProvider(provider),
		preflight.WithOutput(io.Discard),
	)
	results := checker.RunAll(ctx, preflightTarget(cfg))
	for _, r := range results {
		if r.Status != preflight.StatusPass {
			slog.Warn("preflight_check",
				slog.String("check", r.Name),
				slog.String("status", r.Status.String()),
				slog.String("message", r.Message))
		}
	}
	if checker.HasCriticalFailures(results) {
		return fmt.Errorf("system check failed, run 'amanindex doctor' for details")
	}
	if err := preflight.MarkPassed(cfg.Storage.DataDir, version.Build()); err != nil {
		slog.Debug("preflight_mark_failed", slog.String("error", err.Error()))
	}
	return nil
}
