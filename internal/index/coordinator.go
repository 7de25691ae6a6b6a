package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/amanindex/internal/config"
	"github.com/Aman-CERP/amanindex/internal/crawler"
	"github.com/Aman-CERP/amanindex/internal/embed"
	amerrors "github.com/Aman-CERP/amanindex/internal/errors"
	"github.com/Aman-CERP/amanindex/internal/metadata"
	"github.com/Aman-CERP/amanindex/internal/store"
	"github.com/Aman-CERP/amanindex/internal/telemetry"
	"github.com/Aman-CERP/amanindex/internal/ui"
)

// IndexDirName is the vector index directory under the data dir.
const IndexDirName = "index"

// DefaultSearchLimit is used when Search is called with k <= 0.
const DefaultSearchLimit = 10

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	// DataDir holds the vector index directory.
	DataDir string

	// Roots crawled when BuildOrRefresh is given none. Empty means every
	// mounted partition.
	Roots []string

	// Crawl options; ModifiedOnly and Table are set per cycle.
	Crawl crawler.Options

	Pipeline config.PipelineSettings

	// Health defaults to DefaultHealthPolicy.
	Health HealthPolicy

	// RebuildGrace is how long a rebuild waits for the index lock after
	// releasing its own handle.
	RebuildGrace time.Duration

	// Index tunes the HNSW graph. Dimensions come from the provider.
	Index store.Config
}

// CoordinatorConfigFrom maps the file configuration onto a CoordinatorConfig.
func CoordinatorConfigFrom(cfg *config.Config) CoordinatorConfig {
	return CoordinatorConfig{
		DataDir: cfg.Storage.DataDir,
		Roots:   cfg.Paths.Roots,
		Crawl: crawler.Options{
			Extensions:    cfg.Paths.Extensions,
			ExcludeNames:  cfg.Paths.ExcludeNames,
			Ignore:        cfg.Paths.Ignore,
			MaxDepth:      cfg.Paths.MaxDepth,
			Workers:       cfg.Paths.CrawlWorkers,
			ProgressEvery: cfg.Paths.ProgressEvery,
		},
		Pipeline: cfg.Pipeline.Settings(),
		Health: RatioPolicy{
			MinRatio:            cfg.Index.HealthMinRatio,
			EmptyIndexTolerance: cfg.Index.EmptyIndexTolerance,
		},
		RebuildGrace: config.ParseDuration(cfg.Index.RebuildGrace, 500*time.Millisecond),
		Index:        store.Config{CompactRatio: 0.5},
	}
}

// CoordinatorDeps are the collaborators a Coordinator owns. Close releases
// all of them.
type CoordinatorDeps struct {
	Provider    embed.Provider
	Metadata    metadata.Store
	Renderer    ui.Renderer            // optional
	Metrics     *telemetry.Metrics     // optional
	SearchStats *telemetry.SearchStats // optional
}

// Coordinator owns one persisted index pair: the vector index directory and
// the metadata snapshot. Build, refresh and rebuild cycles are serialized;
// Search and Stats may run alongside them.
type Coordinator struct {
	cfg      CoordinatorConfig
	deps     CoordinatorDeps
	indexDir string

	opMu sync.Mutex // serializes cycles

	mu     sync.RWMutex // guards the fields below
	state  State
	vector *store.HNSWIndex
	table  *metadata.Table
	roots  []string
	closed bool
}

// NewCoordinator creates a Coordinator in state UNINITIALIZED.
func NewCoordinator(cfg CoordinatorConfig, deps CoordinatorDeps) (*Coordinator, error) {
	if deps.Provider == nil {
		return nil, fmt.Errorf("embedding provider is required")
	}
	if deps.Metadata == nil {
		return nil, fmt.Errorf("metadata store is required")
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data dir is required")
	}
	if deps.Renderer == nil {
		deps.Renderer = ui.Nop{}
	}
	if cfg.Health == nil {
		cfg.Health = DefaultHealthPolicy()
	}
	cfg.Index.Dimensions = deps.Provider.Dimensions()

	return &Coordinator{
		cfg:      cfg,
		deps:     deps,
		indexDir: filepath.Join(cfg.DataDir, IndexDirName),
		state:    StateUninitialized,
		roots:    cfg.Roots,
	}, nil
}

// IndexDir returns the vector index directory.
func (c *Coordinator) IndexDir() string { return c.indexDir }

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev != s {
		slog.Debug("index_state", slog.String("from", string(prev)), slog.String("to", string(s)))
	}
}

// loadTable reads the snapshot once.
func (c *Coordinator) loadTable(ctx context.Context) (*metadata.Table, error) {
	c.mu.RLock()
	t := c.table
	c.mu.RUnlock()
	if t != nil {
		return t, nil
	}

	t, err := c.deps.Metadata.Load(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.table = t
	c.mu.Unlock()
	return t, nil
}

// Validate classifies the persisted index pair as REUSABLE, MISSING or
// CORRUPT without scanning the filesystem.
func (c *Coordinator) Validate(ctx context.Context) (Verdict, error) {
	if !store.Exists(c.indexDir) {
		return Verdict{State: StateMissing, Reason: "vector index not found"}, nil
	}
	if !c.deps.Metadata.Exists() {
		return Verdict{State: StateMissing, Reason: "metadata snapshot not found"}, nil
	}

	table, err := c.loadTable(ctx)
	if err != nil {
		return Verdict{}, err
	}
	m := table.Len()
	if m == 0 {
		return Verdict{State: StateMissing, Reason: "metadata table is empty"}, nil
	}

	var v int
	c.mu.RLock()
	open := c.vector
	c.mu.RUnlock()
	if open != nil {
		v = open.Count()
	} else if v, err = store.ReadCount(c.indexDir); err != nil {
		return Verdict{State: StateCorrupt, MetadataCount: m, Reason: "vector index unreadable: " + err.Error()}, nil
	}

	verdict := Verdict{State: StateReusable, MetadataCount: m, VectorCount: v}
	if !c.cfg.Health.IsHealthy(m, v) {
		verdict.State = StateCorrupt
		verdict.Reason = fmt.Sprintf("vector count %d inconsistent with %d metadata records", v, m)
	}
	return verdict, nil
}

// BuildOrRefresh validates the persisted index and either reuses it with no
// scanning or rebuilds it from a full crawl of roots. Empty roots fall back
// to the configured roots, then to every mounted partition.
func (c *Coordinator) BuildOrRefresh(ctx context.Context, roots []string) (*Result, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if len(roots) > 0 {
		c.mu.Lock()
		c.roots = roots
		c.mu.Unlock()
	}
	return c.buildOrRefresh(ctx)
}

func (c *Coordinator) buildOrRefresh(ctx context.Context) (*Result, error) {
	start := time.Now()
	c.deps.Renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageValidating, Message: "validating index"})

	verdict, err := c.Validate(ctx)
	if err != nil {
		c.setState(StateFailed)
		return nil, err
	}
	c.setState(verdict.State)
	slog.Info("index_validated",
		slog.String("state", string(verdict.State)),
		slog.Int("metadata_count", verdict.MetadataCount),
		slog.Int("vector_count", verdict.VectorCount),
		slog.String("reason", verdict.Reason))

	if verdict.State == StateReusable {
		err := c.openExisting()
		switch {
		case err == nil:
			c.setState(StateReady)
			res := &Result{Outcome: OutcomeReused, Verdict: verdict, Duration: time.Since(start)}
			c.observe(res)
			return res, nil
		case errors.Is(err, amerrors.ErrIndexLocked):
			c.setState(StateFailed)
			res := &Result{Outcome: OutcomeLocked, Verdict: verdict, Duration: time.Since(start)}
			c.observe(res)
			return res, err
		case errors.Is(err, amerrors.ErrCorruptIndex):
			verdict.State = StateCorrupt
			verdict.Reason = err.Error()
			c.setState(StateCorrupt)
		default:
			c.setState(StateFailed)
			return nil, err
		}
	}

	res, err := c.rebuild(ctx)
	if res != nil {
		res.Verdict = verdict
	}
	return res, err
}

// openExisting opens the persisted index if this coordinator does not
// already hold it.
func (c *Coordinator) openExisting() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vector != nil {
		return nil
	}
	idx, err := store.OpenHNSWIndex(c.indexDir, c.cfg.Index)
	if err != nil {
		return err
	}
	c.vector = idx
	return nil
}

// ForceRebuild wipes the index pair and rebuilds it from a full crawl. A
// call that arrives while a rebuild is already running returns at once with
// OutcomeRebuilding instead of queueing a second wipe.
func (c *Coordinator) ForceRebuild(ctx context.Context) (*Result, error) {
	if !c.opMu.TryLock() {
		if c.State() == StateRebuilding {
			slog.Info("index_force_rebuild_coalesced")
			return &Result{Outcome: OutcomeRebuilding}, nil
		}
		c.opMu.Lock()
	}
	defer c.opMu.Unlock()

	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	slog.Info("index_force_rebuild")
	return c.rebuild(ctx)
}

// rebuild releases the coordinator's own handle, takes the index lock
// (waiting up to RebuildGrace), wipes and recreates the index, then runs a
// full crawl and pipeline. A lock held by someone else aborts with
// IndexLockedError and state FAILED; nothing is created alongside.
func (c *Coordinator) rebuild(ctx context.Context) (*Result, error) {
	start := time.Now()
	cycleID := uuid.NewString()
	log := slog.With(slog.String("cycle_id", cycleID))
	c.setState(StateRebuilding)
	log.Info("index_rebuild_started", slog.String("dir", c.indexDir))

	c.mu.Lock()
	old := c.vector
	c.vector = nil
	c.mu.Unlock()
	if old != nil {
		if err := old.Close(); err != nil {
			log.Warn("index_close_failed", slog.String("error", err.Error()))
		}
	}

	fresh, err := store.ResetHNSWIndex(c.indexDir, c.cfg.Index, c.cfg.RebuildGrace)
	if err != nil {
		c.setState(StateFailed)
		res := &Result{Duration: time.Since(start)}
		if errors.Is(err, amerrors.ErrIndexLocked) {
			res.Outcome = OutcomeLocked
			log.Error("index_rebuild_locked", amerrors.LogAttrs(err)...)
			c.observe(res)
			return res, err
		}
		log.Error("index_rebuild_failed", amerrors.LogAttrs(err)...)
		return nil, amerrors.Wrap(amerrors.ErrCodeIndexFailed, err)
	}

	table, err := c.loadTable(ctx)
	if err != nil {
		_ = fresh.Close()
		c.setState(StateFailed)
		return nil, err
	}
	table.Clear()
	if err := fresh.Flush(); err != nil {
		_ = fresh.Close()
		c.setState(StateFailed)
		return nil, amerrors.Wrap(amerrors.ErrCodeIndexFailed, err)
	}
	if err := c.deps.Metadata.Save(ctx, table); err != nil {
		_ = fresh.Close()
		c.setState(StateFailed)
		return nil, amerrors.Wrap(amerrors.ErrCodeIndexFailed, err)
	}

	c.mu.Lock()
	c.vector = fresh
	c.mu.Unlock()

	res := &Result{}
	scanStart := time.Now()
	summary, err := c.crawl(ctx, table, false)
	res.ScanDuration = time.Since(scanStart)
	if err != nil {
		c.setState(StateReady)
		return nil, err
	}

	if len(summary.Paths) == 0 {
		log.Warn("index_rebuild_no_files",
			slog.Any("roots", c.currentRoots()),
			slog.String("hint", "no candidate files found; check roots and extensions"))
		c.setState(StateReady)
		res.Outcome = OutcomeRebuilt
		res.Duration = time.Since(start)
		c.observe(res)
		return res, nil
	}

	run, err := c.pipeline(fresh, table).Run(ctx, summary.Paths, ModeFull)
	res.absorb(run, OutcomeRebuilt)
	res.Duration = time.Since(start)
	c.setState(StateReady)
	c.observe(res)
	if err != nil {
		return res, err
	}

	log.Info("index_rebuild_complete",
		slog.String("outcome", string(res.Outcome)),
		slog.Int("files", res.Processed),
		slog.Int("failed", res.Failed),
		slog.Int64("duration_ms", res.Duration.Milliseconds()))
	return res, nil
}

// Refresh runs one incremental cycle: reconcile, diff scan, incremental
// pipeline. An index that is not ready yet goes through BuildOrRefresh
// instead.
func (c *Coordinator) Refresh(ctx context.Context) (*Result, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	vector := c.vector
	ready := c.state == StateReady && vector != nil
	c.mu.RUnlock()
	if !ready {
		return c.buildOrRefresh(ctx)
	}

	start := time.Now()
	c.setState(StateUpdating)
	defer c.setState(StateReady)

	table, err := c.loadTable(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	c.deps.Renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageReconciling, Message: "removing deleted files"})
	removed, err := NewReconciler(vector, table, c.deps.Metadata, 0, c.deps.Metrics).Reconcile(ctx)
	res.Removed = removed
	if err != nil {
		return nil, err
	}

	scanStart := time.Now()
	summary, err := c.crawl(ctx, table, true)
	res.ScanDuration = time.Since(scanStart)
	if err != nil {
		return nil, err
	}

	run, err := c.pipeline(vector, table).Run(ctx, summary.Paths, ModeIncremental)
	res.absorb(run, OutcomeUpdated)
	res.Duration = time.Since(start)
	c.observe(res)
	if err != nil {
		return res, err
	}

	slog.Info("index_refresh_complete",
		slog.String("outcome", string(res.Outcome)),
		slog.Int("removed", res.Removed),
		slog.Int("new", summary.New),
		slog.Int("modified", summary.Modified),
		slog.Int("processed", res.Processed),
		slog.Int64("duration_ms", res.Duration.Milliseconds()))
	return res, nil
}

func (c *Coordinator) currentRoots() []string {
	c.mu.RLock()
	roots := c.roots
	c.mu.RUnlock()
	if len(roots) == 0 {
		roots = crawler.DefaultRoots()
	}
	return roots
}

func (c *Coordinator) crawl(ctx context.Context, table *metadata.Table, modifiedOnly bool) (*crawler.Summary, error) {
	roots := c.currentRoots()
	c.deps.Renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageScanning,
		Message: "scanning " + strings.Join(roots, ", "),
	})

	opts := c.cfg.Crawl
	opts.ModifiedOnly = modifiedOnly
	opts.Table = table
	summary, err := crawler.New(opts).Collect(ctx, roots)
	if err != nil {
		return nil, err
	}

	for root, rootErr := range summary.RootErrors {
		c.deps.Renderer.AddError(ui.ErrorEvent{File: root, Err: rootErr, IsWarn: true})
	}
	return summary, nil
}

func (c *Coordinator) pipeline(vector store.VectorIndex, table *metadata.Table) *Pipeline {
	return NewPipeline(PipelineDeps{
		Index:    vector,
		Provider: c.deps.Provider,
		Table:    table,
		Metadata: c.deps.Metadata,
		Renderer: c.deps.Renderer,
		Metrics:  c.deps.Metrics,
	}, c.cfg.Pipeline)
}

func (c *Coordinator) observe(res *Result) {
	c.deps.Metrics.ObserveCycle(string(res.Outcome), res.Duration)
	c.mu.RLock()
	defer c.mu.RUnlock()
	records, vectors := 0, 0
	if c.table != nil {
		records = c.table.Len()
	}
	if c.vector != nil {
		vectors = c.vector.Count()
	}
	c.deps.Metrics.SetSizes(records, vectors)
}

// Search embeds query and returns the k most similar indexed paths. It
// may run while a cycle is updating the index; during a rebuild's wipe it
// reports the index unavailable.
func (c *Coordinator) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	start := time.Now()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, amerrors.New(amerrors.ErrCodeQueryEmpty, "search query is empty", nil)
	}
	if k <= 0 {
		k = DefaultSearchLimit
	}

	c.mu.RLock()
	vector := c.vector
	c.mu.RUnlock()
	if vector == nil {
		return nil, amerrors.New(amerrors.ErrCodeIndexUnavailable, "index is not open", nil).
			WithSuggestion("Run 'amanindex index' first, or wait for the rebuild to finish")
	}

	vec, err := c.deps.Provider.Embed(ctx, query)
	if err != nil {
		return nil, amerrors.Wrap(amerrors.ErrCodeSearchFailed, err)
	}
	hits, err := vector.SimilaritySearch(ctx, vec, k)
	if err != nil {
		return nil, amerrors.Wrap(amerrors.ErrCodeSearchFailed, err)
	}

	results := make([]SearchResult, len(hits))
	for i, h := range hits {
		results[i] = SearchResult{Path: h.Path(), Score: h.Score}
	}

	latency := time.Since(start)
	c.deps.Metrics.ObserveSearch(latency)
	c.deps.SearchStats.Record(telemetry.SearchEvent{Query: query, ResultCount: len(results), Latency: latency})
	return results, nil
}

// Stats reports the size and health of the index pair.
func (c *Coordinator) Stats(ctx context.Context) (Stats, error) {
	table, err := c.loadTable(ctx)
	if err != nil {
		return Stats{}, err
	}

	c.mu.RLock()
	state := c.state
	vector := c.vector
	c.mu.RUnlock()

	st := Stats{
		TotalFiles:     table.Len(),
		LastUpdate:     table.LastIndexed(),
		State:          state,
		IndexExists:    store.Exists(c.indexDir),
		MetadataExists: c.deps.Metadata.Exists(),
	}
	switch {
	case vector != nil:
		st.VectorCount = vector.Count()
		st.Orphans = vector.Stats().Orphans
	case st.IndexExists:
		st.VectorCount, _ = store.ReadCount(c.indexDir)
	}

	for _, root := range c.currentRoots() {
		st.Roots = append(st.Roots, RootStats{Root: root, Files: table.Under(rootPrefix(root))})
	}

	usable := state == StateReady || state == StateUpdating || state == StateReusable || state == StateUninitialized
	st.StoreValid = usable && st.IndexExists && st.MetadataExists &&
		(st.TotalFiles == 0 || c.cfg.Health.IsHealthy(st.TotalFiles, st.VectorCount))
	return st, nil
}

// rootPrefix turns a root into a path prefix that matches only entries
// below it.
func rootPrefix(root string) string {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	if !strings.HasSuffix(root, string(filepath.Separator)) {
		root += string(filepath.Separator)
	}
	return root
}

// Close flushes and releases the index, then closes the metadata store
// and the provider.
func (c *Coordinator) Close() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	vector := c.vector
	c.vector = nil
	c.mu.Unlock()

	var errs []error
	if vector != nil {
		errs = append(errs, vector.Close())
	}
	errs = append(errs, c.deps.Metadata.Close(), c.deps.Provider.Close())
	return errors.Join(errs...)
}

func (c *Coordinator) checkOpen() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return amerrors.New(amerrors.ErrCodeIndexUnavailable, "coordinator is closed", nil)
	}
	return nil
}
