// Package crawler discovers candidate files under one or more roots.
// It prunes excluded directories, filters by extension, bounds recursion
// depth, and can restrict output to files whose metadata changed since
// they were last indexed.
package crawler

import (
	"time"

	"github.com/Aman-CERP/amanindex/internal/metadata"
)

// Change classifies a candidate relative to the metadata table.
type Change string

const (
	// ChangeNone is used by full scans, which do not consult the table.
	ChangeNone Change = ""
	// ChangeNew marks a path absent from the table.
	ChangeNew Change = "new"
	// ChangeModified marks a recorded path whose mtime or size moved.
	ChangeModified Change = "modified"
)

// Candidate is a file eligible for embedding.
type Candidate struct {
	Path    string // Absolute path
	Root    string // Root the path was found under
	Size    int64
	ModTime time.Time
	Change  Change
}

// Result is sent on the scan channel. Exactly one of File or Err is set.
type Result struct {
	File *Candidate
	Root string
	Err  error
}

// Options configures a crawl.
type Options struct {
	// Extensions is the allowed set, matched case-insensitively with the dot.
	Extensions []string

	// ExcludeNames prune any directory whose path (relative to its root)
	// contains one of them, case-insensitively.
	ExcludeNames []string

	// Ignore holds gitignore-style patterns applied under every root, ahead
	// of the root's own .amanindexignore file.
	Ignore []string

	// MaxDepth stops descent below this many levels under a root.
	MaxDepth int

	// Workers bounds how many roots are crawled concurrently.
	Workers int

	// ModifiedOnly emits only paths for which metadata.IsModified is true.
	// Table must be set when it is.
	ModifiedOnly bool
	Table        *metadata.Table

	// ProgressEvery logs a progress line after this many visited entries
	// per root. Zero disables progress logs.
	ProgressEvery int
}

// Summary is the merged outcome of a crawl over all roots.
type Summary struct {
	Paths    []string
	New      int
	Modified int
	// RootErrors holds roots that could not be crawled at all.
	RootErrors map[string]error
	// Skipped counts entries below a root that could not be read, files or
	// directories, for any walk error. A directory's subtree goes with it.
	Skipped int
}

const (
	DefaultMaxDepth = 15
	DefaultWorkers  = 4
)
