package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanindex/internal/metadata"
	"github.com/Aman-CERP/amanindex/internal/store"
	"github.com/Aman-CERP/amanindex/internal/telemetry"
)

// Reconciler removes index entries and records for files that no longer
// exist on disk.
type Reconciler struct {
	index   store.VectorIndex
	table   *metadata.Table
	meta    metadata.Store
	workers int
	metrics *telemetry.Metrics
}

// NewReconciler creates a reconciler checking existence with up to
// workers concurrent stats.
func NewReconciler(index store.VectorIndex, table *metadata.Table, meta metadata.Store, workers int, metrics *telemetry.Metrics) *Reconciler {
	if workers <= 0 {
		workers = 8
	}
	return &Reconciler{index: index, table: table, meta: meta, workers: workers, metrics: metrics}
}

// Reconcile deletes every recorded path that is gone from the vector index
// and the table, then flushes both. Paths that cannot be stat'ed for any
// reason other than non-existence are kept.
func (r *Reconciler) Reconcile(ctx context.Context) (int, error) {
	start := time.Now()
	paths := r.table.Paths()

	var (
		mu      sync.Mutex
		missing []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if _, err := os.Lstat(p); os.IsNotExist(err) {
				mu.Lock()
				missing = append(missing, p)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if len(missing) == 0 {
		slog.Debug("reconcile_nothing_removed", slog.Int("checked", len(paths)))
		return 0, nil
	}
	sort.Strings(missing)

	removed := 0
	for _, p := range missing {
		if _, err := r.index.DeleteWhere(ctx, store.MetaPath, p); err != nil {
			return removed, fmt.Errorf("failed to delete %s from index: %w", p, err)
		}
		r.table.Delete(p)
		removed++
	}

	if err := r.index.Flush(); err != nil {
		return removed, fmt.Errorf("failed to flush index after reconcile: %w", err)
	}
	if err := r.meta.Save(ctx, r.table); err != nil {
		return removed, fmt.Errorf("failed to save metadata after reconcile: %w", err)
	}

	r.metrics.ObserveRemoved(removed)
	slog.Info("reconcile_complete",
		slog.Int("checked", len(paths)),
		slog.Int("removed", removed),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return removed, nil
}
