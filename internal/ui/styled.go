package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// StyledRenderer redraws a single colored progress line in place and
// prints a boxed summary on completion.
type StyledRenderer struct {
	mu       sync.Mutex
	out      io.Writer
	styles   Styles
	started  time.Time
	lastLine int
	warnings int
	errors   int
}

// NewStyledRenderer creates a renderer for interactive terminals.
func NewStyledRenderer(cfg Config) *StyledRenderer {
	return &StyledRenderer{
		out:    cfg.Output,
		styles: GetStyles(cfg.NoColor || DetectNoColor()),
	}
}

// Start implements Renderer.
func (r *StyledRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = time.Now()
	return nil
}

// UpdateProgress implements Renderer.
func (r *StyledRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	b.WriteString(r.styles.Stage.Render(fmt.Sprintf("%-11s", event.Stage.String())))
	if event.Total > 0 {
		b.WriteString(" ")
		b.WriteString(progressBar(event.Current, event.Total, 24))
		b.WriteString(r.styles.Label.Render(fmt.Sprintf(" %d/%d", event.Current, event.Total)))
	}
	msg := event.Message
	if msg == "" {
		msg = event.CurrentFile
	}
	if msg != "" {
		b.WriteString(" ")
		b.WriteString(r.styles.Dim.Render(truncateLeft(msg, 48)))
	}
	r.redraw(b.String())
}

// redraw overwrites the current line. Caller holds mu.
func (r *StyledRenderer) redraw(line string) {
	pad := ""
	if n := r.lastLine - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	_, _ = fmt.Fprintf(r.out, "\r%s%s", line, pad)
	r.lastLine = len(line)
}

// AddError implements Renderer.
func (r *StyledRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	style, prefix := r.styles.Error, "error"
	if event.IsWarn {
		style, prefix = r.styles.Warning, "warn"
		r.warnings++
	} else {
		r.errors++
	}

	text := fmt.Sprintf("%s: %v", prefix, event.Err)
	if event.File != "" {
		text = fmt.Sprintf("%s: %s: %v", prefix, event.File, event.Err)
	}
	r.redraw("")
	_, _ = fmt.Fprintf(r.out, "\r%s\n", style.Render(text))
	r.lastLine = 0
}

// Complete implements Renderer.
func (r *StyledRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.redraw("")
	_, _ = fmt.Fprint(r.out, "\r")
	r.lastLine = 0

	headline := r.styles.Success.Render("Index " + stats.Outcome)
	if stats.FailedBatches > 0 {
		headline = r.styles.Warning.Render("Index " + stats.Outcome)
	}

	lines := []string{
		headline,
		fmt.Sprintf("%s %d", r.styles.Label.Render("Files:   "), stats.Files),
		fmt.Sprintf("%s %s", r.styles.Label.Render("Duration:"), stats.Duration.Round(100*time.Millisecond)),
	}
	if stats.Removed > 0 {
		lines = append(lines, fmt.Sprintf("%s %d", r.styles.Label.Render("Removed: "), stats.Removed))
	}
	if stats.Batches > 0 {
		lines = append(lines, fmt.Sprintf("%s %d (%d failed)",
			r.styles.Label.Render("Batches: "), stats.Batches, stats.FailedBatches))
	}
	if stats.Embedder.Backend != "" {
		lines = append(lines, fmt.Sprintf("%s %s (%s, %d dims)", r.styles.Label.Render("Backend: "),
			stats.Embedder.Backend, stats.Embedder.Model, stats.Embedder.Dimensions))
	}
	if stats.Message != "" {
		lines = append(lines, r.styles.Dim.Render(stats.Message))
	}
	if r.warnings+r.errors > 0 {
		lines = append(lines, r.styles.Warning.Render(fmt.Sprintf("%d errors, %d warnings", r.errors, r.warnings)))
	}

	_, _ = fmt.Fprintln(r.out, r.styles.Panel.Render(strings.Join(lines, "\n")))
}

// Stop implements Renderer.
func (r *StyledRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastLine > 0 {
		_, _ = fmt.Fprintln(r.out)
		r.lastLine = 0
	}
	return nil
}

func progressBar(current, total, width int) string {
	if total <= 0 {
		return ""
	}
	filled := current * width / total
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

func truncateLeft(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return "..." + string(r[len(r)-n+3:])
}
