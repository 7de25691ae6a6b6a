package crawler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	amerrors "github.com/Aman-CERP/amanindex/internal/errors"
	"github.com/Aman-CERP/amanindex/internal/gitignore"
	"github.com/Aman-CERP/amanindex/internal/metadata"
)

// Crawler walks roots and streams candidate files.
type Crawler struct {
	opts     Options
	exts     map[string]struct{}
	excludes []string
	ignore   *gitignore.Matcher

	skipped atomic.Int64
}

// New creates a crawler from opts, filling in defaults.
func New(opts Options) *Crawler {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.ModifiedOnly && opts.Table == nil {
		opts.Table = metadata.NewTable()
	}

	exts := make(map[string]struct{}, len(opts.Extensions))
	for _, e := range opts.Extensions {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = struct{}{}
	}

	excludes := make([]string, 0, len(opts.ExcludeNames))
	for _, n := range opts.ExcludeNames {
		if n != "" {
			excludes = append(excludes, strings.ToLower(n))
		}
	}

	return &Crawler{opts: opts, exts: exts, excludes: excludes, ignore: gitignore.New(opts.Ignore...)}
}

// Scan crawls every root concurrently, at most Options.Workers at a time,
// and streams results as they are found. A root that cannot be crawled
// yields a single error Result and does not stop the others. The channel
// is closed when all roots finish or ctx is cancelled.
func (c *Crawler) Scan(ctx context.Context, roots []string) <-chan Result {
	results := make(chan Result, c.opts.Workers*64)

	go func() {
		defer close(results)

		var g errgroup.Group
		g.SetLimit(c.opts.Workers)
		for _, root := range roots {
			g.Go(func() error {
				if err := c.scanRoot(ctx, root, results); err != nil && !errors.Is(err, context.Canceled) {
					slog.Warn("crawl_root_failed", slog.String("root", root), slog.String("error", err.Error()))
					select {
					case results <- Result{Root: root, Err: err}:
					case <-ctx.Done():
					}
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	return results
}

// Collect drains Scan into a Summary, de-duplicating paths reached from
// overlapping roots.
func (c *Crawler) Collect(ctx context.Context, roots []string) (*Summary, error) {
	sum := &Summary{RootErrors: make(map[string]error)}
	seen := make(map[string]struct{})

	for r := range c.Scan(ctx, roots) {
		if r.Err != nil {
			sum.RootErrors[r.Root] = r.Err
			continue
		}
		if _, dup := seen[r.File.Path]; dup {
			continue
		}
		seen[r.File.Path] = struct{}{}
		sum.Paths = append(sum.Paths, r.File.Path)
		switch r.File.Change {
		case ChangeNew:
			sum.New++
		case ChangeModified:
			sum.Modified++
		}
	}
	sum.Skipped = int(c.skipped.Load())

	if err := ctx.Err(); err != nil {
		return sum, err
	}
	if c.opts.ModifiedOnly {
		slog.Info("crawl_changes_detected",
			slog.Int("new", sum.New),
			slog.Int("modified", sum.Modified))
	}
	return sum, nil
}

// scanRoot walks one root. Only a failure to start the walk is returned;
// errors below the root are logged and the affected subtree skipped.
func (c *Crawler) scanRoot(ctx context.Context, root string, results chan<- Result) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return fmt.Errorf("failed to stat root directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root path is not a directory: %s", absRoot)
	}

	ignore := c.ignore
	if patterns, err := gitignore.ReadFile(filepath.Join(absRoot, gitignore.IgnoreFileName)); err != nil {
		slog.Warn("crawl_ignore_file_unreadable", slog.String("root", absRoot), slog.String("error", err.Error()))
	} else {
		ignore = ignore.With(patterns...)
	}

	visited := newVisitedSet()
	var scanned, found int

	return filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			if path == absRoot && d == nil {
				return err
			}
			c.skipped.Add(1)
			if errors.Is(err, fs.ErrPermission) {
				err = amerrors.FilesystemPermissionError(path, err)
			}
			slog.Warn("crawl_entry_skipped", slog.String("path", path), slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		scanned++
		if c.opts.ProgressEvery > 0 && scanned%c.opts.ProgressEvery == 0 {
			slog.Info("crawl_progress",
				slog.String("root", absRoot),
				slog.Int("scanned", scanned),
				slog.Int("candidates", found))
		}

		rel, relErr := filepath.Rel(absRoot, path)
		if relErr != nil {
			return nil
		}

		if d.IsDir() {
			if rel == "." {
				visited.enter(d)
				return nil
			}
			if c.TooDeep(rel) || c.Excluded(path) || ignore.Match(filepath.ToSlash(rel), true) || !visited.enter(d) {
				return filepath.SkipDir
			}
			return nil
		}

		// WalkDir never follows symlinks; linked files are skipped too.
		if !d.Type().IsRegular() || !c.IsCandidate(d.Name()) || ignore.Match(filepath.ToSlash(rel), false) {
			return nil
		}

		cand := &Candidate{Path: path, Root: absRoot}
		if c.opts.ModifiedOnly {
			if !metadata.IsModified(c.opts.Table, path) {
				return nil
			}
			cand.Change = ChangeModified
			if _, ok := c.opts.Table.Get(path); !ok {
				cand.Change = ChangeNew
			}
		}
		if fi, err := d.Info(); err == nil {
			cand.Size = fi.Size()
			cand.ModTime = fi.ModTime()
		}

		found++
		select {
		case results <- Result{File: cand, Root: absRoot}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})
}

// IsCandidate applies the file-name rules: allowed extension, and not a
// hidden or temporary (~-prefixed) file.
func (c *Crawler) IsCandidate(name string) bool {
	if strings.HasPrefix(name, "~") || strings.HasPrefix(name, ".") {
		return false
	}
	_, ok := c.exts[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Excluded reports whether any exclusion name occurs in the full directory
// path dir. Roots are never tested, so a root may itself live under an
// excluded name.
func (c *Crawler) Excluded(dir string) bool {
	lower := strings.ToLower(dir)
	for _, name := range c.excludes {
		if strings.Contains(lower, name) {
			return true
		}
	}
	return false
}

// Ignored reports whether the configured ignore patterns exclude rel.
// Per-root ignore files are only consulted during a crawl.
func (c *Crawler) Ignored(rel string, isDir bool) bool {
	return c.ignore.Match(filepath.ToSlash(rel), isDir)
}

// TooDeep reports whether the root-relative directory rel lies below
// MaxDepth.
func (c *Crawler) TooDeep(rel string) bool {
	return depth(rel) > c.opts.MaxDepth
}

// depth counts path elements in a root-relative directory path.
func depth(rel string) int {
	return strings.Count(rel, string(filepath.Separator)) + 1
}
