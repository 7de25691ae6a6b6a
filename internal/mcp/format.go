package mcp

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/amanindex/internal/index"
)

// FormatSearchResults formats ranked files as markdown.
func FormatSearchResults(query string, results []index.SearchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No files found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Files matching \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d file", len(results))
	if len(results) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range results {
		fmt.Fprintf(&sb, "%d. **%s** (score: %.2f)\n   `%s`\n",
			i+1, filepath.Base(r.Path), r.Score, r.Path)
	}
	return sb.String()
}

// FormatStats renders index_stats output as markdown.
func FormatStats(out *IndexStatsOutput) string {
	var sb strings.Builder
	sb.WriteString("## Index Status\n\n")

	health := "healthy"
	if !out.Index.StoreValid {
		health = "needs rebuild"
	}
	fmt.Fprintf(&sb, "**State:** %s (%s)\n", out.Index.State, health)
	fmt.Fprintf(&sb, "**Files:** %d\n", out.Index.TotalFiles)
	fmt.Fprintf(&sb, "**Vectors:** %d\n", out.Index.VectorCount)
	if out.Index.Orphans > 0 {
		fmt.Fprintf(&sb, "**Orphaned graph nodes:** %d (removed at next compaction)\n", out.Index.Orphans)
	}
	if out.Index.LastUpdate != "" {
		fmt.Fprintf(&sb, "**Last update:** %s\n", out.Index.LastUpdate)
	}
	fmt.Fprintf(&sb, "**Embeddings:** %s (%d dims, %s)\n",
		out.Embeddings.Model, out.Embeddings.Dimensions, out.Embeddings.Status)

	if len(out.Index.Roots) > 0 {
		sb.WriteString("\n### Roots\n\n")
		for _, r := range out.Index.Roots {
			fmt.Fprintf(&sb, "- %s: %d files\n", r.Root, r.Files)
		}
	}

	if sched := out.Scheduler; sched != nil {
		sb.WriteString("\n### Refresh Scheduler\n\n")
		fmt.Fprintf(&sb, "**Cycles:** %d (%d failed)\n", sched.Cycles, sched.Failures)
		if !sched.NextRun.IsZero() {
			fmt.Fprintf(&sb, "**Next run:** %s\n", formatTime(sched.NextRun))
		}
		if sched.LastError != "" {
			fmt.Fprintf(&sb, "**Last error:** %s\n", sched.LastError)
		}
	}
	return sb.String()
}

// ToSearchResultOutput converts a ranked path to the tool output format.
func ToSearchResultOutput(r index.SearchResult) SearchResultOutput {
	return SearchResultOutput{
		Path:     r.Path,
		Name:     filepath.Base(r.Path),
		Score:    float64(r.Score),
		MimeType: MimeTypeForPath(r.Path),
	}
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, lo, hi int) int {
	if limit <= 0 {
		return defaultVal
	}
	return min(max(limit, lo), hi)
}
