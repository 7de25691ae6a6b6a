// Package embed provides the embedding providers the index engine injects
// into its pipeline: a deterministic offline embedder, an Ollama HTTP
// client, and an LRU cache for query embeddings.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// StaticDimensions is the default dimension of the static embedder.
	StaticDimensions = 256

	// DefaultTimeout bounds a single provider request.
	DefaultTimeout = 60 * time.Second

	// DefaultEmbeddingCacheSize is the default number of cached query vectors.
	DefaultEmbeddingCacheSize = 1000
)

// Provider turns text units into vectors. Implementations must be safe for
// concurrent use by pipeline workers.
type Provider interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates one embedding per text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	Dimensions() int
	ModelName() string
	Close() error
}

// normalizeVector scales v to unit length. Zero vectors are returned as-is.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
