package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio"
)

// JSONFileName is the snapshot file name inside the data directory.
const JSONFileName = "file_metadata.json"

// jsonRecord is the on-disk form of a FileRecord. Times are Unix
// nanoseconds so a reload compares equal to a fresh stat.
type jsonRecord struct {
	ModTime     int64 `json:"mtime_ns"`
	Size        int64 `json:"size"`
	LastIndexed int64 `json:"last_indexed_ns"`
}

// JSONStore keeps the table as a single JSON object keyed by path,
// replaced atomically on every save.
type JSONStore struct {
	path string
}

// NewJSONStore returns a store for the snapshot at path.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Path returns the snapshot path.
func (s *JSONStore) Path() string { return s.path }

// Exists reports whether the snapshot file is present.
func (s *JSONStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the snapshot. A missing file yields an empty table; an
// unparsable one is logged and also yields an empty table.
func (s *JSONStore) Load(ctx context.Context) (*Table, error) {
	t := NewTable()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return t, nil
	}
	if err != nil {
		slog.Warn("metadata_load_failed", slog.String("path", s.path), slog.String("error", err.Error()))
		return t, nil
	}

	var raw map[string]jsonRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		slog.Warn("metadata_snapshot_corrupt",
			slog.String("path", s.path),
			slog.String("error", err.Error()))
		return t, nil
	}

	for path, r := range raw {
		t.Put(path, FileRecord{
			ModTime:     time.Unix(0, r.ModTime),
			Size:        r.Size,
			LastIndexed: time.Unix(0, r.LastIndexed),
		})
	}
	slog.Debug("metadata_loaded", slog.String("path", s.path), slog.Int("records", t.Len()))
	return t, nil
}

// Save writes the full table via write-temp-then-rename, so a crash leaves
// either the previous snapshot or the new one.
func (s *JSONStore) Save(ctx context.Context, t *Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw := make(map[string]jsonRecord, t.Len())
	for path, rec := range t.snapshot() {
		raw[path] = jsonRecord{
			ModTime:     rec.ModTime.UnixNano(),
			Size:        rec.Size,
			LastIndexed: rec.LastIndexed.UnixNano(),
		}
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata snapshot: %w", err)
	}
	return nil
}

// Close is a no-op; the store holds no open handles.
func (s *JSONStore) Close() error { return nil }
