package index

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Aman-CERP/amanindex/internal/config"
	"github.com/Aman-CERP/amanindex/internal/embed"
	amerrors "github.com/Aman-CERP/amanindex/internal/errors"
	"github.com/Aman-CERP/amanindex/internal/metadata"
	"github.com/Aman-CERP/amanindex/internal/store"
	"github.com/Aman-CERP/amanindex/internal/telemetry"
	"github.com/Aman-CERP/amanindex/internal/ui"
)

// PipelineDeps are the collaborators a Pipeline writes through.
type PipelineDeps struct {
	Index    store.VectorIndex
	Provider embed.Provider
	Table    *metadata.Table
	Metadata metadata.Store
	Renderer ui.Renderer        // optional
	Metrics  *telemetry.Metrics // optional
}

// Pipeline embeds paths in batches on a bounded worker pool.
//
// A batch's records enter the table only after its upsert succeeded, and
// every metadata save is preceded by an index flush under the same lock,
// so the durable table never names a path the durable index lacks.
type Pipeline struct {
	deps     PipelineDeps
	settings config.PipelineSettings
	retry    amerrors.RetryConfig
	now      func() time.Time

	// commitMu is held shared by upsert+commit and exclusively by flush.
	commitMu sync.RWMutex
}

// NewPipeline creates a pipeline with the given settings.
func NewPipeline(deps PipelineDeps, settings config.PipelineSettings) *Pipeline {
	if deps.Renderer == nil {
		deps.Renderer = ui.Nop{}
	}
	if settings.Workers <= 0 {
		settings.Workers = 1
	}
	if settings.FlushEvery <= 0 {
		settings.FlushEvery = 5
	}

	retry := amerrors.DefaultRetryConfig().TransientOnly()
	retry.MaxRetries = settings.MaxRetries
	if settings.RetryDelay > 0 {
		retry.InitialDelay = settings.RetryDelay
		retry.MaxDelay = 16 * settings.RetryDelay
	}

	return &Pipeline{deps: deps, settings: settings, retry: retry, now: time.Now}
}

func (p *Pipeline) batchSize(mode Mode) int {
	size := p.settings.BatchSize
	if mode == ModeIncremental && p.settings.IncrementalBatchSize > 0 {
		size = p.settings.IncrementalBatchSize
	}
	if size <= 0 {
		size = 100
	}
	return size
}

// Run embeds paths. A batch that keeps failing is counted and skipped;
// only a failed flush makes Run return an error. Cancelling ctx stops new
// batches from starting while those in flight finish and are committed;
// Run then returns ctx.Err() alongside the partial result.
func (p *Pipeline) Run(ctx context.Context, paths []string, mode Mode) (RunResult, error) {
	start := time.Now()
	batches := partition(paths, p.batchSize(mode))
	res := RunResult{Batches: len(batches)}
	if len(batches) == 0 {
		return res, nil
	}

	limit := rate.Inf
	if p.settings.InterBatchDelay > 0 {
		limit = rate.Every(p.settings.InterBatchDelay)
	}
	limiter := rate.NewLimiter(limit, 1)

	slog.Info("pipeline_started",
		slog.String("mode", mode.String()),
		slog.Int("files", len(paths)),
		slog.Int("batches", len(batches)),
		slog.Int("batch_size", p.batchSize(mode)),
		slog.Int("workers", p.settings.Workers))

	var (
		processed, failed, skipped atomic.Int64
		failedBatches, completed   atomic.Int64
	)
	// In-flight batches outlive a cancelled ctx.
	batchCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(p.settings.Workers)
	var stopErr error
	for i, batch := range batches {
		if stopErr = ctx.Err(); stopErr != nil {
			break
		}
		if stopErr = limiter.Wait(ctx); stopErr != nil {
			break
		}
		g.Go(func() error {
			// Queued behind the worker limit when ctx was cancelled.
			if ctx.Err() != nil {
				return nil
			}
			out := p.runBatch(batchCtx, i, batch)
			processed.Add(int64(out.processed))
			skipped.Add(int64(out.skipped))
			if out.failed {
				failed.Add(int64(len(batch) - out.skipped))
				failedBatches.Add(1)
			}

			done := completed.Add(1)
			p.deps.Renderer.UpdateProgress(ui.ProgressEvent{
				Stage:   ui.StageEmbedding,
				Current: int(done),
				Total:   len(batches),
				Message: fmt.Sprintf("batch %d/%d", i+1, len(batches)),
			})
			if done%int64(p.settings.FlushEvery) == 0 {
				return p.flush(batchCtx)
			}
			return nil
		})
	}
	groupErr := g.Wait()
	if stopErr == nil && int(completed.Load()) < len(batches) {
		stopErr = ctx.Err()
	}

	// The last batch always ends with a flush.
	flushErr := p.flush(batchCtx)

	res.Processed = int(processed.Load())
	res.Failed = int(failed.Load())
	res.Skipped = int(skipped.Load())
	res.FailedBatches = int(failedBatches.Load())
	res.Duration = time.Since(start)

	perSec := 0.0
	if res.Duration > 0 {
		perSec = float64(res.Processed) / res.Duration.Seconds()
	}
	slog.Info("pipeline_complete",
		slog.String("mode", mode.String()),
		slog.Int("processed", res.Processed),
		slog.Int("failed", res.Failed),
		slog.Int("skipped", res.Skipped),
		slog.Int("batches", res.Batches),
		slog.Int("batches_run", int(completed.Load())),
		slog.Int("failed_batches", res.FailedBatches),
		slog.Float64("files_per_sec", perSec),
		slog.Int64("duration_ms", res.Duration.Milliseconds()))

	switch {
	case groupErr != nil:
		return res, groupErr
	case flushErr != nil:
		return res, flushErr
	case stopErr != nil:
		return res, stopErr
	}
	return res, nil
}

type batchOutcome struct {
	processed int
	skipped   int
	failed    bool
}

type unit struct {
	path string
	stat metadata.Stat
}

// runBatch embeds, upserts and commits one batch.
func (p *Pipeline) runBatch(ctx context.Context, n int, paths []string) batchOutcome {
	start := time.Now()
	var out batchOutcome

	// The stat taken here is what gets committed; a later change to the
	// file is then picked up by the next diff scan.
	units := make([]unit, 0, len(paths))
	for _, path := range paths {
		st, ok := metadata.StatOf(path)
		if !ok {
			out.skipped++
			continue
		}
		units = append(units, unit{path: path, stat: st})
	}
	if len(units) == 0 {
		return out
	}

	texts := make([]string, len(units))
	for i, u := range units {
		texts[i] = u.path
	}

	attempts := 0
	vectors, err := amerrors.RetryWithResult(ctx, p.retry, func() ([][]float32, error) {
		if attempts > 0 {
			p.deps.Metrics.ObserveRetry()
			slog.Debug("batch_retry", slog.Int("batch", n), slog.Int("attempt", attempts+1))
		}
		attempts++
		return p.deps.Provider.EmbedBatch(ctx, texts)
	})
	if err == nil && len(vectors) != len(units) {
		err = amerrors.New(amerrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("provider returned %d vectors for %d paths", len(vectors), len(units)), nil)
	}
	if err != nil {
		return p.failBatch(n, len(units), start, out, err)
	}

	docs := make([]store.Document, len(units))
	for i, u := range units {
		docs[i] = store.Document{
			ID:     u.path,
			Vector: vectors[i],
			Metadata: map[string]string{
				store.MetaPath: u.path,
				"name":         filepath.Base(u.path),
				"ext":          strings.ToLower(filepath.Ext(u.path)),
			},
		}
	}

	p.commitMu.RLock()
	err = p.deps.Index.Upsert(ctx, docs)
	if err == nil {
		indexedAt := p.now()
		for _, u := range units {
			p.deps.Table.Put(u.path, metadata.RecordFor(u.stat, indexedAt))
		}
	}
	p.commitMu.RUnlock()
	if err != nil {
		return p.failBatch(n, len(units), start, out, amerrors.Wrap(amerrors.ErrCodeIndexFailed, err))
	}

	out.processed = len(units)
	p.deps.Metrics.ObserveBatch(telemetry.BatchOK, len(units), time.Since(start))
	slog.Debug("batch_committed",
		slog.Int("batch", n),
		slog.Int("files", len(units)),
		slog.Int("attempts", attempts),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return out
}

func (p *Pipeline) failBatch(n, files int, start time.Time, out batchOutcome, err error) batchOutcome {
	out.failed = true
	p.deps.Metrics.ObserveBatch(telemetry.BatchFailed, files, time.Since(start))
	slog.Warn("batch_failed",
		append([]any{slog.Int("batch", n), slog.Int("files", files)}, amerrors.LogAttrs(err)...)...)
	p.deps.Renderer.AddError(ui.ErrorEvent{
		Err:    fmt.Errorf("batch %d (%d files): %w", n+1, files, err),
		IsWarn: true,
	})
	return out
}

// flush persists the index and then the table.
func (p *Pipeline) flush(ctx context.Context) error {
	p.commitMu.Lock()
	defer p.commitMu.Unlock()

	if err := p.deps.Index.Flush(); err != nil {
		return fmt.Errorf("failed to flush index: %w", err)
	}
	if err := p.deps.Metadata.Save(ctx, p.deps.Table); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}
	return nil
}

func partition(paths []string, size int) [][]string {
	var batches [][]string
	for start := 0; start < len(paths); start += size {
		end := min(start+size, len(paths))
		batches = append(batches, paths[start:end])
	}
	return batches
}
