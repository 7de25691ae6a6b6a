// Package store is the persisted vector index: one entry per file path,
// searchable by similarity and deletable by metadata.
package store

import (
	"context"
	"fmt"
)

// MetaPath is the metadata key every entry carries: the absolute file path.
const MetaPath = "path"

// Document is a unit to upsert. ID is the stable identity (the file path)
// and replaces any existing entry with the same ID.
type Document struct {
	ID       string
	Vector   []float32
	Metadata map[string]string
}

// Result is a single similarity hit.
type Result struct {
	ID       string
	Metadata map[string]string
	Distance float32
	Score    float32
}

// Path returns the path metadata of the hit.
func (r Result) Path() string {
	if p, ok := r.Metadata[MetaPath]; ok {
		return p
	}
	return r.ID
}

// VectorIndex is what the engine needs from a vector store.
type VectorIndex interface {
	// Upsert inserts or replaces documents by ID.
	Upsert(ctx context.Context, docs []Document) error

	// SimilaritySearch returns up to k nearest entries, best first.
	SimilaritySearch(ctx context.Context, query []float32, k int) ([]Result, error)

	// DeleteWhere removes every entry whose metadata field equals value and
	// returns how many were removed.
	DeleteWhere(ctx context.Context, field, value string) (int, error)

	// Count returns the number of live entries.
	Count() int

	// Flush makes all accepted writes durable.
	Flush() error

	// Close flushes and releases the index, including its lock.
	Close() error
}

// Config configures an HNSW index.
type Config struct {
	Dimensions int
	Metric     string // "cos" or "l2"
	M          int
	EfSearch   int
	// CompactRatio triggers a graph rebuild on Flush once orphaned nodes
	// exceed this fraction of the graph. Zero disables compaction.
	CompactRatio float64
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'amanindex rebuild')", e.Expected, e.Got)
}
