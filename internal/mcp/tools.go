package mcp

import (
	"time"

	"github.com/Aman-CERP/amanindex/internal/async"
	"github.com/Aman-CERP/amanindex/internal/index"
	"github.com/Aman-CERP/amanindex/internal/telemetry"
)

// SearchInput defines the input schema for the search_files tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"natural language description of the file to find"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10, max 50"`
}

// SearchOutput defines the output schema for the search_files tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"ranked list of matching files"`
}

// SearchResultOutput is one ranked file.
type SearchResultOutput struct {
	Path     string  `json:"path" jsonschema:"absolute path of the file"`
	Name     string  `json:"name" jsonschema:"base name of the file"`
	Score    float64 `json:"score" jsonschema:"similarity score, higher is closer"`
	MimeType string  `json:"mime_type" jsonschema:"MIME type inferred from the extension"`
}

// IndexStatsInput defines the input schema for the index_stats tool (no parameters).
type IndexStatsInput struct{}

// IndexStatsOutput defines the output schema for the index_stats tool.
type IndexStatsOutput struct {
	Index      IndexInfo                 `json:"index"`
	Embeddings EmbeddingInfo             `json:"embeddings"`
	Scheduler  *async.Status             `json:"scheduler,omitempty"`
	Searches   *telemetry.SearchSnapshot `json:"searches,omitempty"`
}

// IndexInfo mirrors the coordinator's stats.
type IndexInfo struct {
	TotalFiles     int               `json:"total_files"`
	VectorCount    int               `json:"vector_count"`
	Orphans        int               `json:"orphans"`
	LastUpdate     string            `json:"last_update,omitempty"`
	StoreValid     bool              `json:"store_valid"`
	State          string            `json:"state"`
	IndexExists    bool              `json:"index_exists"`
	MetadataExists bool              `json:"metadata_exists"`
	Roots          []index.RootStats `json:"roots,omitempty"`
}

// EmbeddingInfo describes the active embedding provider.
type EmbeddingInfo struct {
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Status     string `json:"status"` // "ready" or "none"
}

// ForceRebuildInput defines the input schema for the force_rebuild tool.
type ForceRebuildInput struct {
	Confirm bool `json:"confirm" jsonschema:"must be true; the rebuild discards the index and re-embeds every file"`
}

// ForceRebuildOutput defines the output schema for the force_rebuild tool.
type ForceRebuildOutput struct {
	Outcome       string `json:"outcome"`
	Message       string `json:"message"`
	Processed     int    `json:"processed"`
	Failed        int    `json:"failed"`
	Batches       int    `json:"batches"`
	FailedBatches int    `json:"failed_batches"`
	DurationSecs  float64 `json:"duration_seconds"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
