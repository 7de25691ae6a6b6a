package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Pipeline resource profiles. Local providers take large batches back to
// back; remote APIs get small batches with a pause between them.
const (
	ProfileLocal  = "local"
	ProfileRemote = "remote"
)

// Metadata snapshot backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// DefaultExtensions is the allowed candidate file-type set.
var DefaultExtensions = []string{
	".pdf", ".doc", ".docx", ".jpg", ".jpeg", ".png",
	".ppt", ".pptx", ".xls", ".xlsx", ".csv", ".txt",
}

// DefaultExcludeNames are matched case-insensitively as substrings of a
// directory path; any hit prunes the whole subtree.
var DefaultExcludeNames = []string{
	"Windows", "Program Files", "Program Files (x86)", "PerfLogs",
	"$Recycle.Bin", "System Volume Information", "AppData", "Microsoft",
	"__pycache__", ".git", "node_modules",
}

// Config is the complete amanindex configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Pipeline   PipelineConfig   `yaml:"pipeline" json:"pipeline"`
	Scheduler  SchedulerConfig  `yaml:"scheduler" json:"scheduler"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// PathsConfig selects what the crawler visits.
type PathsConfig struct {
	// Roots to crawl. Empty means every mounted partition.
	Roots         []string `yaml:"roots" json:"roots"`
	Extensions    []string `yaml:"extensions" json:"extensions"`
	ExcludeNames  []string `yaml:"exclude_names" json:"exclude_names"`
	// Ignore holds gitignore-style patterns relative to each root.
	Ignore        []string `yaml:"ignore" json:"ignore,omitempty"`
	MaxDepth      int      `yaml:"max_depth" json:"max_depth"`
	CrawlWorkers  int      `yaml:"crawl_workers" json:"crawl_workers"`
	ProgressEvery int      `yaml:"progress_every" json:"progress_every"`
}

// StorageConfig locates the persisted index pair.
type StorageConfig struct {
	DataDir         string `yaml:"data_dir" json:"data_dir"`
	MetadataBackend string `yaml:"metadata_backend" json:"metadata_backend"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	Timeout    string `yaml:"timeout" json:"timeout"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
}

// PipelineConfig tunes the batch embedding pipeline. Zero sizes and delays
// fall back to the selected profile.
type PipelineConfig struct {
	Profile              string `yaml:"profile" json:"profile"`
	BatchSize            int    `yaml:"batch_size" json:"batch_size"`
	IncrementalBatchSize int    `yaml:"incremental_batch_size" json:"incremental_batch_size"`
	Workers              int    `yaml:"workers" json:"workers"`
	InterBatchDelay      string `yaml:"inter_batch_delay" json:"inter_batch_delay"`
	MaxRetries           int    `yaml:"max_retries" json:"max_retries"`
	RetryDelay           string `yaml:"retry_delay" json:"retry_delay"`
	FlushEvery           int    `yaml:"flush_every" json:"flush_every"`
}

// SchedulerConfig configures background updates.
type SchedulerConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Interval string `yaml:"interval" json:"interval"`
	Tick     string `yaml:"tick" json:"tick"`
	Backoff  string `yaml:"backoff" json:"backoff"`
	Watch    bool   `yaml:"watch" json:"watch"`
	Debounce string `yaml:"debounce" json:"debounce"`
}

// IndexConfig holds the health policy and rebuild tuning.
type IndexConfig struct {
	HealthMinRatio      float64 `yaml:"health_min_ratio" json:"health_min_ratio"`
	EmptyIndexTolerance int     `yaml:"empty_index_tolerance" json:"empty_index_tolerance"`
	RebuildGrace        string  `yaml:"rebuild_grace" json:"rebuild_grace"`
}

// ServerConfig configures the serve command.
type ServerConfig struct {
	Transport   string `yaml:"transport" json:"transport"`
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
	LogLevel    string `yaml:"log_level" json:"log_level"`
}

// NewConfig returns a configuration with every default applied.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Extensions:    append([]string(nil), DefaultExtensions...),
			ExcludeNames:  append([]string(nil), DefaultExcludeNames...),
			MaxDepth:      15,
			CrawlWorkers:  4,
			ProgressEvery: 5000,
		},
		Storage: StorageConfig{
			DataDir:         DefaultDataDir(),
			MetadataBackend: BackendJSON,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Model:      "nomic-embed-text",
			OllamaHost: "http://localhost:11434",
			Timeout:    "60s",
			CacheSize:  1000,
		},
		Pipeline: PipelineConfig{
			Profile:    ProfileLocal,
			MaxRetries: 3,
			RetryDelay: "1s",
			FlushEvery: 5,
		},
		Scheduler: SchedulerConfig{
			Enabled:  true,
			Interval: "2h",
			Tick:     "1s",
			Backoff:  "5m",
			Watch:    false,
			Debounce: "2s",
		},
		Index: IndexConfig{
			HealthMinRatio:      0.5,
			EmptyIndexTolerance: 100,
			RebuildGrace:        "500ms",
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// DefaultDataDir returns ~/.amanindex/data.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".amanindex", "data")
	}
	return filepath.Join(home, ".amanindex", "data")
}

// GetUserConfigPath returns the user configuration file path, honoring
// XDG_CONFIG_HOME.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "amanindex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "amanindex", "config.yaml")
	}
	return filepath.Join(home, ".config", "amanindex", "config.yaml")
}

// Load builds the configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/amanindex/config.yaml)
//  3. Project config (.amanindex.yaml in dir)
//  4. Environment variables (AMANINDEX_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	for _, name := range []string{".amanindex.yaml", ".amanindex.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
			break
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile loads defaults overlaid with a single explicit file, then env.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML decodes path directly over c, so keys absent from the file keep
// their current values.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AMANINDEX_ROOTS"); v != "" {
		c.Paths.Roots = filepath.SplitList(v)
	}
	if v := os.Getenv("AMANINDEX_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("AMANINDEX_METADATA_BACKEND"); v != "" {
		c.Storage.MetadataBackend = strings.ToLower(v)
	}
	if v := os.Getenv("AMANINDEX_EMBEDDER"); v != "" {
		c.Embeddings.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("AMANINDEX_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("AMANINDEX_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("AMANINDEX_PROFILE"); v != "" {
		c.Pipeline.Profile = strings.ToLower(v)
	}
	if v := os.Getenv("AMANINDEX_UPDATE_INTERVAL"); v != "" {
		c.Scheduler.Interval = v
	}
	if v := os.Getenv("AMANINDEX_HEALTH_MIN_RATIO"); v != "" {
		if r, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			c.Index.HealthMinRatio = r
		}
	}
	if v := os.Getenv("AMANINDEX_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("AMANINDEX_METRICS_ADDR"); v != "" {
		c.Server.MetricsAddr = v
	}
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.MetadataBackend {
	case BackendJSON, BackendSQLite:
	default:
		return fmt.Errorf("storage.metadata_backend must be 'json' or 'sqlite', got %q", c.Storage.MetadataBackend)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir must not be empty")
	}

	switch c.Embeddings.Provider {
	case "static", "ollama":
	default:
		return fmt.Errorf("embeddings.provider must be 'static' or 'ollama', got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions < 0 {
		return fmt.Errorf("embeddings.dimensions must be non-negative, got %d", c.Embeddings.Dimensions)
	}

	switch c.Pipeline.Profile {
	case ProfileLocal, ProfileRemote:
	default:
		return fmt.Errorf("pipeline.profile must be 'local' or 'remote', got %q", c.Pipeline.Profile)
	}
	if c.Pipeline.BatchSize < 0 || c.Pipeline.IncrementalBatchSize < 0 || c.Pipeline.Workers < 0 {
		return fmt.Errorf("pipeline sizes must be non-negative")
	}
	if c.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("pipeline.max_retries must be non-negative, got %d", c.Pipeline.MaxRetries)
	}

	if c.Paths.MaxDepth <= 0 {
		return fmt.Errorf("paths.max_depth must be positive, got %d", c.Paths.MaxDepth)
	}
	if len(c.Paths.Extensions) == 0 {
		return fmt.Errorf("paths.extensions must not be empty")
	}

	if c.Index.HealthMinRatio <= 0 || c.Index.HealthMinRatio > 1 {
		return fmt.Errorf("index.health_min_ratio must be in (0, 1], got %v", c.Index.HealthMinRatio)
	}
	if c.Index.EmptyIndexTolerance < 0 {
		return fmt.Errorf("index.empty_index_tolerance must be non-negative, got %d", c.Index.EmptyIndexTolerance)
	}

	for field, v := range map[string]string{
		"scheduler.interval":         c.Scheduler.Interval,
		"scheduler.tick":             c.Scheduler.Tick,
		"scheduler.backoff":          c.Scheduler.Backoff,
		"scheduler.debounce":         c.Scheduler.Debounce,
		"pipeline.inter_batch_delay": c.Pipeline.InterBatchDelay,
		"pipeline.retry_delay":       c.Pipeline.RetryDelay,
		"index.rebuild_grace":        c.Index.RebuildGrace,
		"embeddings.timeout":         c.Embeddings.Timeout,
	} {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d < 0 {
			return fmt.Errorf("%s must be a non-negative duration, got %q", field, v)
		}
	}
	if d := ParseDuration(c.Scheduler.Interval, 0); d <= 0 {
		return fmt.Errorf("scheduler.interval must be positive, got %q", c.Scheduler.Interval)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ParseDuration parses s, returning def when s is empty or malformed.
func ParseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
