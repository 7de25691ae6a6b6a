package index

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanindex/internal/config"
	"github.com/Aman-CERP/amanindex/internal/crawler"
	"github.com/Aman-CERP/amanindex/internal/embed"
	"github.com/Aman-CERP/amanindex/internal/metadata"
)

const testDims = 8

// countingProvider wraps the static embedder, counting how often each path
// was embedded. failFn, when set, may fail a batch before it is embedded;
// onBatch runs after every successful batch.
type countingProvider struct {
	*embed.StaticEmbedder

	mu       sync.Mutex
	embedded map[string]int
	calls    int
	failFn   func(call int, texts []string) error
	onBatch  func(call int)
}

func newCountingProvider() *countingProvider {
	return &countingProvider{
		StaticEmbedder: embed.NewStaticEmbedder(testDims),
		embedded:       make(map[string]int),
	}
}

func (p *countingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.calls++
	call := p.calls
	failFn := p.failFn
	p.mu.Unlock()

	if failFn != nil {
		if err := failFn(call, texts); err != nil {
			return nil, err
		}
	}
	vecs, err := p.StaticEmbedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	for _, t := range texts {
		p.embedded[t]++
	}
	onBatch := p.onBatch
	p.mu.Unlock()
	if onBatch != nil {
		onBatch(call)
	}
	return vecs, nil
}

// Embedded returns a copy of the per-path embed counts.
func (p *countingProvider) Embedded() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int, len(p.embedded))
	for k, v := range p.embedded {
		out[k] = v
	}
	return out
}

func (p *countingProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.embedded = make(map[string]int)
	p.calls = 0
}

// Close is a no-op so one provider can outlive several coordinators.
func (p *countingProvider) Close() error { return nil }

func testSettings() config.PipelineSettings {
	return config.PipelineSettings{
		BatchSize:            2,
		IncrementalBatchSize: 2,
		Workers:              1,
		MaxRetries:           2,
		RetryDelay:           time.Millisecond,
		FlushEvery:           5,
	}
}

func testCoordinatorConfig(dataDir, root string) CoordinatorConfig {
	return CoordinatorConfig{
		DataDir: dataDir,
		Roots:   []string{root},
		Crawl: crawler.Options{
			Extensions:   []string{".pdf", ".txt"},
			ExcludeNames: []string{"node_modules"},
			MaxDepth:     crawler.DefaultMaxDepth,
			Workers:      1,
		},
		Pipeline:     testSettings(),
		RebuildGrace: 100 * time.Millisecond,
	}
}

func metadataPath(dataDir string) string {
	return filepath.Join(dataDir, metadata.JSONFileName)
}

func newTestCoordinator(t *testing.T, dataDir, root string, provider embed.Provider) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(testCoordinatorConfig(dataDir, root), CoordinatorDeps{
		Provider: provider,
		Metadata: metadata.NewJSONStore(metadataPath(dataDir)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// writeFiles creates files under root and returns their absolute paths.
func writeFiles(t *testing.T, root string, names ...string) []string {
	t.Helper()
	paths := make([]string, len(names))
	for i, name := range names {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(name), 0o644))
		paths[i] = p
	}
	return paths
}

func tablePaths(t *testing.T, c *Coordinator) []string {
	t.Helper()
	table, err := c.loadTable(context.Background())
	require.NoError(t, err)
	paths := table.Paths()
	sort.Strings(paths)
	return paths
}

func sorted(paths []string) []string {
	out := append([]string(nil), paths...)
	sort.Strings(out)
	return out
}
