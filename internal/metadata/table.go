package metadata

import (
	"strings"
	"sync"
	"time"

	"github.com/tidwall/btree"
)

// Table is the path-ordered Metadata Table. It is safe for concurrent use;
// pipeline workers record paths while the reconciler or Save reads.
type Table struct {
	mu      sync.RWMutex
	records *btree.Map[string, FileRecord]
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{records: btree.NewMap[string, FileRecord](0)}
}

// Get returns the record for path.
func (t *Table) Get(path string) (FileRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.records.Get(path)
}

// Put inserts or replaces the record for path.
func (t *Table) Put(path string, rec FileRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records.Set(path, rec)
}

// Delete removes path and reports whether it was present.
func (t *Table) Delete(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.records.Delete(path)
	return ok
}

// Len returns the number of recorded paths.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.records.Len()
}

// Clear drops every record.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records.Clear()
}

// Paths returns all recorded paths in ascending order.
func (t *Table) Paths() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.records.Keys()
}

// Range calls fn for each record in path order until fn returns false.
// fn must not modify the table.
func (t *Table) Range(fn func(path string, rec FileRecord) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	t.records.Scan(fn)
}

// Under returns the number of records whose path starts with prefix.
func (t *Table) Under(prefix string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	t.records.Ascend(prefix, func(path string, _ FileRecord) bool {
		if !strings.HasPrefix(path, prefix) {
			return false
		}
		n++
		return true
	})
	return n
}

// LastIndexed returns the most recent LastIndexed across all records, or
// the zero time for an empty table.
func (t *Table) LastIndexed() time.Time {
	var last time.Time
	t.Range(func(_ string, rec FileRecord) bool {
		if rec.LastIndexed.After(last) {
			last = rec.LastIndexed
		}
		return true
	})
	return last
}

// snapshot copies the table into a plain map for serialization.
func (t *Table) snapshot() map[string]FileRecord {
	out := make(map[string]FileRecord, t.Len())
	t.Range(func(path string, rec FileRecord) bool {
		out[path] = rec
		return true
	})
	return out
}
