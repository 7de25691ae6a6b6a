package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/amanindex/internal/crawler"
)

// Notifier watches every directory under the roots with fsnotify and
// reports debounced batches of candidate-file changes.
type Notifier struct {
	opts      Options
	fsw       *fsnotify.Watcher
	filter    *crawler.Crawler
	debouncer *Debouncer

	mu      sync.Mutex
	roots   []string
	watched int
	capped  bool
	stopped bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Notifier. It fails when the platform cannot provide
// filesystem notifications; callers then rely on the periodic refresh.
func New(opts Options) (*Notifier, error) {
	opts = opts.WithDefaults()
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Notifier{
		opts:      opts,
		fsw:       fsw,
		filter:    crawler.New(opts.Crawl),
		debouncer: NewDebouncer(opts.DebounceWindow),
		stopCh:    make(chan struct{}),
	}, nil
}

// Start adds watches for every root and begins delivering batches to
// onChange on a background goroutine. Roots that cannot be watched are
// logged and skipped; Start fails only when none can.
func (n *Notifier) Start(ctx context.Context, roots []string, onChange func([]FileEvent)) error {
	var ok []string
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			slog.Warn("watch_root_skipped", slog.String("root", root), slog.String("error", err.Error()))
			continue
		}
		if err := n.addTree(abs, abs); err != nil {
			slog.Warn("watch_root_skipped", slog.String("root", abs), slog.String("error", err.Error()))
			continue
		}
		ok = append(ok, abs)
	}
	if len(ok) == 0 {
		return fmt.Errorf("no watchable roots among %v", roots)
	}

	n.mu.Lock()
	n.roots = ok
	watched := n.watched
	n.mu.Unlock()
	slog.Info("watch_started", slog.Any("roots", ok), slog.Int("directories", watched))

	n.wg.Add(2)
	go n.loop(ctx)
	go n.forward(ctx, onChange)
	return nil
}

// Watched returns the number of directories currently watched.
func (n *Notifier) Watched() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.watched
}

// Stop closes the underlying watcher and waits for the goroutines to exit.
// Safe to call multiple times.
func (n *Notifier) Stop() error {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return nil
	}
	n.stopped = true
	close(n.stopCh)
	n.mu.Unlock()

	err := n.fsw.Close()
	n.debouncer.Stop()
	n.wg.Wait()
	return err
}

func (n *Notifier) loop(ctx context.Context) {
	defer n.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.stopCh:
			return
		case ev, ok := <-n.fsw.Events:
			if !ok {
				return
			}
			n.handle(ev)
		case err, ok := <-n.fsw.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				slog.Warn("watch_overflow", slog.String("hint", "changes will be picked up by the next scheduled refresh"))
				continue
			}
			slog.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}

func (n *Notifier) forward(ctx context.Context, onChange func([]FileEvent)) {
	defer n.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.stopCh:
			return
		case batch, ok := <-n.debouncer.Output():
			if !ok {
				return
			}
			slog.Debug("watch_batch", slog.Int("events", len(batch)))
			if onChange != nil {
				onChange(batch)
			}
		}
	}
}

func (n *Notifier) handle(ev fsnotify.Event) {
	root, rel, ok := n.locate(ev.Name)
	if !ok {
		return
	}

	var op Operation
	switch {
	case ev.Has(fsnotify.Create):
		op = OpCreate
	case ev.Has(fsnotify.Write):
		op = OpModify
	case ev.Has(fsnotify.Remove):
		op = OpDelete
	case ev.Has(fsnotify.Rename):
		op = OpRename
	default:
		return
	}

	isDir := false
	if info, err := os.Lstat(ev.Name); err == nil {
		isDir = info.IsDir()
	}

	if isDir {
		if n.filter.TooDeep(rel) || (rel != "." && n.filter.Excluded(ev.Name)) || n.filter.Ignored(rel, true) {
			return
		}
		if op == OpCreate {
			if err := n.addTree(root, ev.Name); err != nil {
				slog.Debug("watch_add_failed", slog.String("path", ev.Name), slog.String("error", err.Error()))
			}
		}
	} else {
		dir := filepath.Dir(rel)
		if (dir != "." && n.filter.Excluded(filepath.Dir(ev.Name))) || n.filter.Ignored(rel, false) {
			return
		}
		name := filepath.Base(ev.Name)
		gone := op == OpDelete || op == OpRename
		// A vanished path without an extension may have been a directory.
		if !n.filter.IsCandidate(name) && !(gone && filepath.Ext(name) == "") {
			return
		}
	}

	n.debouncer.Add(FileEvent{Path: ev.Name, Operation: op, IsDir: isDir, Timestamp: time.Now()})
}

// locate finds the watched root containing path.
func (n *Notifier) locate(path string) (root, rel string, ok bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, r := range n.roots {
		if path == r || strings.HasPrefix(path, r+string(filepath.Separator)) {
			rel, err := filepath.Rel(r, path)
			if err != nil {
				return "", "", false
			}
			return r, rel, true
		}
	}
	return "", "", false
}

// addTree watches dir and every eligible directory below it.
func (n *Notifier) addTree(root, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return filepath.SkipDir
		}
		if rel != "." && (n.filter.TooDeep(rel) || n.filter.Excluded(path) || n.filter.Ignored(rel, true)) {
			return filepath.SkipDir
		}

		n.mu.Lock()
		if n.watched >= n.opts.MaxWatches {
			if !n.capped {
				n.capped = true
				slog.Warn("watch_limit_reached",
					slog.Int("max_watches", n.opts.MaxWatches),
					slog.String("hint", "remaining directories are covered by the scheduled refresh"))
			}
			n.mu.Unlock()
			return filepath.SkipAll
		}
		n.mu.Unlock()

		if err := n.fsw.Add(path); err != nil {
			if path == dir {
				return err
			}
			return filepath.SkipDir
		}
		n.mu.Lock()
		n.watched++
		n.mu.Unlock()
		return nil
	})
}
