package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteFileName is the database file name inside the data directory.
const SQLiteFileName = "file_metadata.db"

const metadataSchema = `
CREATE TABLE IF NOT EXISTS file_records (
	path            TEXT PRIMARY KEY,
	mtime_ns        INTEGER NOT NULL,
	size            INTEGER NOT NULL,
	last_indexed_ns INTEGER NOT NULL
);`

// SQLiteStore keeps the table in a single-table SQLite database. Each Save
// replaces the table contents inside one transaction.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) the database at path. A file
// that fails its integrity check is discarded and recreated empty.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	if err := validateIntegrity(path); err != nil {
		slog.Warn("metadata_db_corrupted",
			slog.String("path", path),
			slog.String("error", err.Error()))
		if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
			return nil, fmt.Errorf("metadata database corrupted at %s and cannot remove: %w", path, removeErr)
		}
		_ = os.Remove(path + "-wal")
		_ = os.Remove(path + "-shm")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.Exec(metadataSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// validateIntegrity runs PRAGMA integrity_check on an existing file.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// Path returns the database path.
func (s *SQLiteStore) Path() string { return s.path }

// Exists reports whether the database holds at least one saved record.
// An empty freshly created database is treated as no snapshot.
func (s *SQLiteStore) Exists() bool {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM file_records").Scan(&n); err != nil {
		return false
	}
	return n > 0
}

// Load reads every row into a new table. Read errors are logged and yield
// an empty table.
func (s *SQLiteStore) Load(ctx context.Context) (*Table, error) {
	t := NewTable()

	rows, err := s.db.QueryContext(ctx, "SELECT path, mtime_ns, size, last_indexed_ns FROM file_records")
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("metadata_load_failed", slog.String("path", s.path), slog.String("error", err.Error()))
		return t, nil
	}
	defer rows.Close()

	for rows.Next() {
		var (
			path              string
			mtime, size, last int64
		)
		if err := rows.Scan(&path, &mtime, &size, &last); err != nil {
			slog.Warn("metadata_row_unreadable", slog.String("error", err.Error()))
			return NewTable(), nil
		}
		t.Put(path, FileRecord{ModTime: time.Unix(0, mtime), Size: size, LastIndexed: time.Unix(0, last)})
	}
	if err := rows.Err(); err != nil {
		slog.Warn("metadata_load_failed", slog.String("path", s.path), slog.String("error", err.Error()))
		return NewTable(), nil
	}
	return t, nil
}

// Save replaces the stored table with t in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, t *Table) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM file_records"); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO file_records (path, mtime_ns, size, last_indexed_ns) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	var insertErr error
	t.Range(func(path string, rec FileRecord) bool {
		_, insertErr = stmt.ExecContext(ctx, path, rec.ModTime.UnixNano(), rec.Size, rec.LastIndexed.UnixNano())
		return insertErr == nil
	})
	if insertErr != nil {
		return fmt.Errorf("failed to insert record: %w", insertErr)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit metadata: %w", err)
	}
	return nil
}

// Close checkpoints the WAL and closes the database.
func (s *SQLiteStore) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}
