package metadata

import (
	"fmt"
	"path/filepath"
)

// Open returns the Store for backend ("json" or "sqlite") inside dataDir.
func Open(backend, dataDir string) (Store, error) {
	switch backend {
	case "", "json":
		return NewJSONStore(filepath.Join(dataDir, JSONFileName)), nil
	case "sqlite":
		return NewSQLiteStore(filepath.Join(dataDir, SQLiteFileName))
	default:
		return nil, fmt.Errorf("unknown metadata backend %q", backend)
	}
}
