// Package integration exercises the index, scheduler, watcher and control
// socket together against real directories.
package integration

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanindex/internal/config"
	"github.com/Aman-CERP/amanindex/internal/crawler"
	"github.com/Aman-CERP/amanindex/internal/embed"
	"github.com/Aman-CERP/amanindex/internal/index"
	"github.com/Aman-CERP/amanindex/internal/metadata"
)

func skipShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

func crawlOptions() crawler.Options {
	return crawler.Options{
		Extensions:   []string{".pdf", ".docx", ".xlsx"},
		ExcludeNames: []string{"node_modules"},
		MaxDepth:     crawler.DefaultMaxDepth,
		Workers:      2,
	}
}

// openCoordinator opens a coordinator over root with the given metadata
// backend and a static embedder.
func openCoordinator(t *testing.T, backend, dataDir, root string) *index.Coordinator {
	t.Helper()
	meta, err := metadata.Open(backend, dataDir)
	require.NoError(t, err)

	c, err := index.NewCoordinator(index.CoordinatorConfig{
		DataDir: dataDir,
		Roots:   []string{root},
		Crawl:   crawlOptions(),
		Pipeline: config.PipelineSettings{
			BatchSize:            4,
			IncrementalBatchSize: 2,
			Workers:              2,
			MaxRetries:           1,
			RetryDelay:           time.Millisecond,
			FlushEvery:           5,
		},
		RebuildGrace: 200 * time.Millisecond,
	}, index.CoordinatorDeps{
		Provider: embed.NewStaticEmbedder(16),
		Metadata: meta,
	})
	require.NoError(t, err)
	return c
}

func writeFiles(t *testing.T, root string, rels ...string) []string {
	t.Helper()
	out := make([]string, len(rels))
	for i, rel := range rels {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(rel), 0o644))
		out[i] = p
	}
	return out
}

func totalFiles(t *testing.T, c *index.Coordinator) int {
	t.Helper()
	st, err := c.Stats(context.Background())
	require.NoError(t, err)
	return st.TotalFiles
}

func hitPaths(t *testing.T, c *index.Coordinator, query string) []string {
	t.Helper()
	hits, err := c.Search(context.Background(), query, 50)
	require.NoError(t, err)
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Path
	}
	sort.Strings(out)
	return out
}
