package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer outputs plain text progress (for CI/pipes).
type PlainRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	errors []ErrorEvent
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := event.Message
	if msg == "" {
		msg = event.CurrentFile
	}

	if event.Total > 0 {
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d - %s\n", event.Stage.Icon(), event.Current, event.Total, msg)
	} else if msg != "" {
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), msg)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors = append(r.errors, event)

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}
	if event.File != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.File, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete (%s): %d files indexed in %s",
		stats.Outcome, stats.Files, stats.Duration.Round(100*time.Millisecond))
	if stats.Removed > 0 {
		_, _ = fmt.Fprintf(r.out, ", %d removed", stats.Removed)
	}
	if stats.FailedBatches > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d of %d batches failed)", stats.FailedBatches, stats.Batches)
	}
	_, _ = fmt.Fprintln(r.out)

	if stats.Message != "" {
		_, _ = fmt.Fprintln(r.out, stats.Message)
	}

	if stats.Stages.Scan > 0 || stats.Stages.Embed > 0 {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintln(r.out, "Stage Breakdown:")
		if stats.Stages.Reconcile > 0 {
			_, _ = fmt.Fprintf(r.out, "  Reconcile: %s\n", stats.Stages.Reconcile.Round(100*time.Millisecond))
		}
		_, _ = fmt.Fprintf(r.out, "  Scan:      %s\n", stats.Stages.Scan.Round(100*time.Millisecond))
		if stats.Stages.Embed > 0 && stats.Files > 0 {
			perSec := float64(stats.Files) / stats.Stages.Embed.Seconds()
			_, _ = fmt.Fprintf(r.out, "  Embed:     %s (%d files @ %.1f/sec)\n",
				stats.Stages.Embed.Round(100*time.Millisecond), stats.Files, perSec)
		}
	}

	if stats.Embedder.Backend != "" {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintf(r.out, "Backend: %s (%s, %d dims)\n",
			stats.Embedder.Backend, stats.Embedder.Model, stats.Embedder.Dimensions)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}
