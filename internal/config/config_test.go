package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the user config lookup at an empty temp dir.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg)

	assert.Contains(t, cfg.Paths.Extensions, ".pdf")
	assert.Contains(t, cfg.Paths.ExcludeNames, "node_modules")
	assert.Equal(t, 15, cfg.Paths.MaxDepth)
	assert.Equal(t, 4, cfg.Paths.CrawlWorkers)
	assert.Equal(t, BackendJSON, cfg.Storage.MetadataBackend)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, ProfileLocal, cfg.Pipeline.Profile)
	assert.Equal(t, 5, cfg.Pipeline.FlushEvery)
	assert.Equal(t, "2h", cfg.Scheduler.Interval)
	assert.Equal(t, "5m", cfg.Scheduler.Backoff)
	assert.Equal(t, 0.5, cfg.Index.HealthMinRatio)
	assert.Equal(t, 100, cfg.Index.EmptyIndexTolerance)
	assert.NoError(t, cfg.Validate())
}

func TestNewConfig_DefaultsAreCopies(t *testing.T) {
	cfg := NewConfig()
	cfg.Paths.Extensions[0] = ".mutated"
	assert.Equal(t, ".pdf", DefaultExtensions[0])
}

func TestLoad_ProjectFileOverridesDefaults(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	// Given: a project config overriding some fields
	yamlContent := `
paths:
  roots: [/mnt/a, /mnt/b]
  max_depth: 8
  ignore: ["finance/", "*.bak.xlsx"]
storage:
  metadata_backend: sqlite
pipeline:
  profile: remote
index:
  health_min_ratio: 0.75
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".amanindex.yaml"), []byte(yamlContent), 0o644))

	// When
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: overridden fields change, others keep defaults
	assert.Equal(t, []string{"/mnt/a", "/mnt/b"}, cfg.Paths.Roots)
	assert.Equal(t, 8, cfg.Paths.MaxDepth)
	assert.Equal(t, []string{"finance/", "*.bak.xlsx"}, cfg.Paths.Ignore)
	assert.Equal(t, BackendSQLite, cfg.Storage.MetadataBackend)
	assert.Equal(t, ProfileRemote, cfg.Pipeline.Profile)
	assert.Equal(t, 0.75, cfg.Index.HealthMinRatio)
	assert.Equal(t, "2h", cfg.Scheduler.Interval)
	assert.Contains(t, cfg.Paths.Extensions, ".xlsx")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".amanindex.yml"), []byte("embeddings:\n  provider: static\n"), 0o644))

	t.Setenv("AMANINDEX_EMBEDDER", "OLLAMA")
	t.Setenv("AMANINDEX_DATA_DIR", "/var/lib/amanindex")
	t.Setenv("AMANINDEX_UPDATE_INTERVAL", "30m")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, "/var/lib/amanindex", cfg.Storage.DataDir)
	assert.Equal(t, "30m", cfg.Scheduler.Interval)
}

func TestLoad_InvalidYAML(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".amanindex.yaml"), []byte("paths: [unclosed"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"backend", func(c *Config) { c.Storage.MetadataBackend = "bolt" }},
		{"provider", func(c *Config) { c.Embeddings.Provider = "magic" }},
		{"profile", func(c *Config) { c.Pipeline.Profile = "turbo" }},
		{"ratio zero", func(c *Config) { c.Index.HealthMinRatio = 0 }},
		{"ratio above one", func(c *Config) { c.Index.HealthMinRatio = 1.5 }},
		{"depth", func(c *Config) { c.Paths.MaxDepth = 0 }},
		{"interval", func(c *Config) { c.Scheduler.Interval = "soon" }},
		{"zero interval", func(c *Config) { c.Scheduler.Interval = "0s" }},
		{"log level", func(c *Config) { c.Server.LogLevel = "chatty" }},
		{"no extensions", func(c *Config) { c.Paths.Extensions = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestPipelineSettings_Profiles(t *testing.T) {
	local := PipelineConfig{Profile: ProfileLocal, MaxRetries: 3}.Settings()
	assert.Equal(t, 2000, local.BatchSize)
	assert.Equal(t, 500, local.IncrementalBatchSize)
	assert.Equal(t, 4, local.Workers)
	assert.Equal(t, 100*time.Millisecond, local.InterBatchDelay)
	assert.Equal(t, 5, local.FlushEvery)
	assert.Equal(t, time.Second, local.RetryDelay)

	remote := PipelineConfig{Profile: ProfileRemote, BatchSize: 64, InterBatchDelay: "2s"}.Settings()
	assert.Equal(t, 64, remote.BatchSize)
	assert.Equal(t, 50, remote.IncrementalBatchSize)
	assert.Equal(t, 1, remote.Workers)
	assert.Equal(t, 2*time.Second, remote.InterBatchDelay)
}

func TestWriteYAML_RoundTripsThroughLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	cfg := NewConfig()
	cfg.Paths.Roots = []string{"/data"}
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/data"}, loaded.Paths.Roots)
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 3*time.Second, ParseDuration("3s", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("bogus", time.Minute))
}
