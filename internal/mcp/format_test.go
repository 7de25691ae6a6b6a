package mcp

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/amanindex/internal/async"
	"github.com/Aman-CERP/amanindex/internal/index"
)

func TestFormatSearchResults_Empty(t *testing.T) {
	got := FormatSearchResults("missing", nil)

	assert.Equal(t, `No files found for "missing"`, got)
}

func TestFormatSearchResults_NumbersResults(t *testing.T) {
	results := []index.SearchResult{
		{Path: "/a/q1-report.pdf", Score: 0.9},
		{Path: "/b/q2-report.docx", Score: 0.75},
	}

	got := FormatSearchResults("report", results)

	assert.True(t, strings.HasPrefix(got, "## Files matching \"report\"\n\nFound 2 files\n\n"))
	assert.Contains(t, got, "1. **q1-report.pdf** (score: 0.90)\n   `/a/q1-report.pdf`\n")
	assert.Contains(t, got, "2. **q2-report.docx** (score: 0.75)")
}

func TestFormatStats(t *testing.T) {
	out := &IndexStatsOutput{
		Index: IndexInfo{
			TotalFiles: 10, VectorCount: 10, Orphans: 3, StoreValid: true, State: "READY", LastUpdate: "2026-01-02T03:04:05Z",
			Roots: []index.RootStats{{Root: "/srv/docs", Files: 10}},
		},
		Embeddings: EmbeddingInfo{Model: "nomic-embed-text", Dimensions: 768, Status: "ready"},
		Scheduler: &async.Status{
			Cycles:    4,
			Failures:  1,
			LastError: "scan failed",
			NextRun:   time.Date(2026, 1, 2, 5, 0, 0, 0, time.UTC),
		},
	}

	got := FormatStats(out)

	assert.Contains(t, got, "**State:** READY (healthy)")
	assert.Contains(t, got, "**Last update:** 2026-01-02T03:04:05Z")
	assert.Contains(t, got, "nomic-embed-text (768 dims, ready)")
	assert.Contains(t, got, "**Cycles:** 4 (1 failed)")
	assert.Contains(t, got, "**Next run:** 2026-01-02T05:00:00Z")
	assert.Contains(t, got, "**Last error:** scan failed")
	assert.Contains(t, got, "**Orphaned graph nodes:** 3")
	assert.Contains(t, got, "- /srv/docs: 10 files")
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 10, clampLimit(0, 10, 1, 50))
	assert.Equal(t, 1, clampLimit(1, 10, 1, 50))
	assert.Equal(t, 50, clampLimit(51, 10, 1, 50))
	assert.Equal(t, 5, clampLimit(5, 10, 1, 50))
}

func TestMimeTypeForPath(t *testing.T) {
	tests := map[string]string{
		"/x/report.PDF":      "application/pdf",
		"/x/sheet.xlsx":      "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"/x/photo.jpeg":      "image/jpeg",
		"/x/data.csv":        "text/csv",
		"/x/notes.txt":       "text/plain",
		"/x/archive.tar.zst": "application/octet-stream",
		"/x/Makefile":        "application/octet-stream",
	}
	for path, want := range tests {
		assert.Equal(t, want, MimeTypeForPath(path), path)
	}
}
