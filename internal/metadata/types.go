// Package metadata tracks what the engine last embedded for each file.
//
// The Table is the in-memory path -> FileRecord map; a Store persists it as
// one durable snapshot. A path is only ever recorded after its embedding
// reached the vector index.
package metadata

import (
	"context"
	"os"
	"time"
)

// FileRecord is the last-known state of an indexed file.
type FileRecord struct {
	ModTime     time.Time
	Size        int64
	LastIndexed time.Time
}

// Stat is the live filesystem state of a path.
type Stat struct {
	ModTime time.Time
	Size    int64
}

// Store persists a Table. Load never fails on a missing or unreadable
// snapshot; it returns an empty table and logs instead.
type Store interface {
	Load(ctx context.Context) (*Table, error)
	Save(ctx context.Context, t *Table) error
	// Exists reports whether a snapshot artifact is present on disk.
	Exists() bool
	Path() string
	Close() error
}

// StatOf returns the current mtime and size of path. ok is false when the
// path cannot be stat'ed or is not a regular file.
func StatOf(path string) (Stat, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return Stat{}, false
	}
	return Stat{ModTime: info.ModTime(), Size: info.Size()}, true
}

// IsModified reports whether path needs (re-)embedding: it is absent from
// the table, or its mtime or size differ from the record. A path that
// cannot be stat'ed is reported unmodified; the reconciler owns deletions.
func IsModified(t *Table, path string) bool {
	rec, ok := t.Get(path)
	if !ok {
		return true
	}
	st, ok := StatOf(path)
	if !ok {
		return false
	}
	return !st.ModTime.Equal(rec.ModTime) || st.Size != rec.Size
}

// RecordFor builds the record committed after a successful upsert.
func RecordFor(st Stat, indexedAt time.Time) FileRecord {
	return FileRecord{ModTime: st.ModTime, Size: st.Size, LastIndexed: indexedAt}
}
