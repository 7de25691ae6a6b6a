package metadata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) Stat {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	st, ok := StatOf(path)
	require.True(t, ok)
	return st
}

// storeFactories runs a test against every backend.
var storeFactories = map[string]func(t *testing.T, dir string) Store{
	"json": func(t *testing.T, dir string) Store {
		return NewJSONStore(filepath.Join(dir, JSONFileName))
	},
	"sqlite": func(t *testing.T, dir string) Store {
		s, err := NewSQLiteStore(filepath.Join(dir, SQLiteFileName))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	},
}

func TestStatOf(t *testing.T) {
	dir := t.TempDir()
	st := writeFile(t, filepath.Join(dir, "a.pdf"), "hello")
	assert.Equal(t, int64(5), st.Size)

	_, ok := StatOf(filepath.Join(dir, "missing.pdf"))
	assert.False(t, ok)

	_, ok = StatOf(dir)
	assert.False(t, ok, "directories are not files")
}

func TestIsModified(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.docx")
	st := writeFile(t, path, "v1")
	table := NewTable()

	// Absent from table
	assert.True(t, IsModified(table, path))

	// Recorded with the current stat
	table.Put(path, RecordFor(st, time.Now()))
	assert.False(t, IsModified(table, path))

	// Size change
	writeFile(t, path, "version two")
	assert.True(t, IsModified(table, path))

	// Same size, different mtime
	st = writeFile(t, path, "v1")
	table.Put(path, RecordFor(st, time.Now()))
	later := st.ModTime.Add(3 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))
	assert.True(t, IsModified(table, path))

	// Recorded but gone: conservative false
	require.NoError(t, os.Remove(path))
	assert.False(t, IsModified(table, path))
}

func TestTable_OrderedAndPrefix(t *testing.T) {
	table := NewTable()
	for _, p := range []string{"/b/2.pdf", "/a/1.pdf", "/b/1.pdf", "/c/x.csv"} {
		table.Put(p, FileRecord{Size: 1})
	}

	assert.Equal(t, []string{"/a/1.pdf", "/b/1.pdf", "/b/2.pdf", "/c/x.csv"}, table.Paths())
	assert.Equal(t, 2, table.Under("/b/"))
	assert.Equal(t, 0, table.Under("/z/"))

	assert.True(t, table.Delete("/b/1.pdf"))
	assert.False(t, table.Delete("/b/1.pdf"))
	assert.Equal(t, 3, table.Len())

	table.Clear()
	assert.Zero(t, table.Len())
}

func TestTable_LastIndexed(t *testing.T) {
	table := NewTable()
	assert.True(t, table.LastIndexed().IsZero())

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	table.Put("/a", FileRecord{LastIndexed: base})
	table.Put("/b", FileRecord{LastIndexed: base.Add(time.Hour)})
	table.Put("/c", FileRecord{LastIndexed: base.Add(-time.Hour)})
	assert.True(t, table.LastIndexed().Equal(base.Add(time.Hour)))
}

func TestTable_ConcurrentPuts(t *testing.T) {
	table := NewTable()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				table.Put(fmt.Sprintf("/w%d/%d", w, i), FileRecord{Size: int64(i)})
				_ = table.Len()
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 800, table.Len())
}

func TestStore_SaveLoadPreservesRecords(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			store := factory(t, dir)

			// Given: a table built from real stats
			path := filepath.Join(dir, "docs", "plan.xlsx")
			st := writeFile(t, path, "cells")
			table := NewTable()
			table.Put(path, RecordFor(st, time.Now()))
			table.Put("/elsewhere/photo.jpg", FileRecord{ModTime: time.Unix(1700000000, 123456789), Size: 42, LastIndexed: time.Unix(1700000100, 0)})

			// When
			require.NoError(t, store.Save(ctx, table))
			loaded, err := store.Load(ctx)
			require.NoError(t, err)

			// Then: records survive and a fresh stat still compares unmodified
			assert.True(t, store.Exists())
			assert.Equal(t, 2, loaded.Len())
			assert.False(t, IsModified(loaded, path))
			rec, ok := loaded.Get("/elsewhere/photo.jpg")
			require.True(t, ok)
			assert.Equal(t, int64(42), rec.Size)
			assert.True(t, rec.ModTime.Equal(time.Unix(1700000000, 123456789)))
		})
	}
}

func TestStore_SaveReplacesPreviousSnapshot(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t, t.TempDir())

			first := NewTable()
			first.Put("/a", FileRecord{Size: 1})
			first.Put("/b", FileRecord{Size: 2})
			require.NoError(t, store.Save(ctx, first))

			second := NewTable()
			second.Put("/b", FileRecord{Size: 3})
			require.NoError(t, store.Save(ctx, second))

			loaded, err := store.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"/b"}, loaded.Paths())
		})
	}
}

func TestStore_LoadMissingIsEmpty(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			store := factory(t, t.TempDir())
			assert.False(t, store.Exists())

			table, err := store.Load(context.Background())
			require.NoError(t, err)
			assert.Zero(t, table.Len())
		})
	}
}

func TestJSONStore_CorruptSnapshotLoadsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), JSONFileName)
	require.NoError(t, os.WriteFile(path, []byte(`{"truncated": {"mtime_ns": 12`), 0o644))

	table, err := NewJSONStore(path).Load(context.Background())
	require.NoError(t, err)
	assert.Zero(t, table.Len())
}

func TestSQLiteStore_CorruptDatabaseRecreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), SQLiteFileName)
	require.NoError(t, os.WriteFile(path, []byte("this is definitely not a sqlite database file, just garbage bytes"), 0o644))

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	table, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Zero(t, table.Len())
}

func TestOpen_SelectsBackend(t *testing.T) {
	dir := t.TempDir()

	s, err := Open("json", dir)
	require.NoError(t, err)
	assert.IsType(t, &JSONStore{}, s)

	s, err = Open("sqlite", dir)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open("bolt", dir)
	assert.Error(t, err)
}
