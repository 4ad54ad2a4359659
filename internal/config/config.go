// Package config loads and validates the application configuration.
// Configuration comes from three layers with increasing precedence:
// built-in defaults, a YAML file, and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file looked up in the working directory.
const DefaultFileName = "cookrag.yaml"

// Config is the complete application configuration.
type Config struct {
	Corpus    CorpusConfig    `yaml:"corpus"`
	Search    SearchConfig    `yaml:"search"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Reranker  RerankerConfig  `yaml:"reranker"`
	LLM       LLMConfig       `yaml:"llm"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// CorpusConfig locates the recipe corpus and the on-disk caches.
type CorpusConfig struct {
	// DataDir is the root of the markdown recipe tree.
	DataDir string `yaml:"data_dir"`

	// CacheDir holds the embedding cache database.
	CacheDir string `yaml:"cache_dir"`
}

// SearchConfig configures the retrieval pipeline.
type SearchConfig struct {
	// TopK is the default number of chunks returned per query.
	TopK int `yaml:"top_k"`

	// RecallWindow is the per-leg candidate count in hybrid search.
	RecallWindow int `yaml:"recall_window"`

	// FilteredRecallWindow is the vector candidate count when a
	// metadata filter is applied.
	FilteredRecallWindow int `yaml:"filtered_recall_window"`

	// FusionLimit caps the fused candidate set fed to the reranker.
	FusionLimit int `yaml:"fusion_limit"`

	// RRFConstant is the fusion smoothing parameter k.
	RRFConstant int `yaml:"rrf_constant"`

	// ScoreThreshold is the strict lower bound on rerank scores.
	ScoreThreshold float64 `yaml:"score_threshold"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider selects the backend: "openai" or "static".
	Provider string `yaml:"provider"`

	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
}

// RerankerConfig configures the cross-encoder scoring service.
type RerankerConfig struct {
	// Enabled turns reranking on. When false every search runs in
	// bypass mode.
	Enabled bool `yaml:"enabled"`

	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
}

// LLMConfig configures the answer-generation model.
type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`

	// MaxContextChars caps the retrieved context passed to the model.
	MaxContextChars int `yaml:"max_context_chars"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`

	// Dir is where log files go. Empty means stderr only.
	Dir string `yaml:"dir"`
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	return &Config{
		Corpus: CorpusConfig{
			DataDir:  "data",
			CacheDir: ".cookrag",
		},
		Search: SearchConfig{
			TopK:                 8,
			RecallWindow:         15,
			FilteredRecallWindow: 30,
			FusionLimit:          20,
			RRFConstant:          60,
			ScoreThreshold:       0.0,
		},
		Embedding: EmbeddingConfig{
			Provider:   "openai",
			BaseURL:    "https://api.siliconflow.cn/v1",
			Model:      "BAAI/bge-m3",
			Dimensions: 1024,
			BatchSize:  32,
		},
		Reranker: RerankerConfig{
			Enabled:  true,
			Endpoint: "http://localhost:9547",
			Model:    "BAAI/bge-reranker-v2-m3",
		},
		LLM: LLMConfig{
			BaseURL:         "https://api.siliconflow.cn/v1",
			Model:           "Qwen/Qwen2.5-14B-Instruct",
			MaxContextChars: 3500,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the effective configuration: defaults, then the YAML file
// at path (or DefaultFileName in the working directory when path is
// empty; a missing default file is fine), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultFileName
	}
	if err := cfg.loadYAML(path); err != nil {
		if explicit || !os.IsNotExist(err) {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML merges the values from a YAML file over the current config.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return err
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies COOKRAG_* environment variables. Secrets
// normally arrive this way rather than through the YAML file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("COOKRAG_DATA_DIR"); v != "" {
		c.Corpus.DataDir = v
	}
	if v := os.Getenv("COOKRAG_API_KEY"); v != "" {
		c.Embedding.APIKey = v
		c.LLM.APIKey = v
	}
	if v := os.Getenv("COOKRAG_EMBEDDING_BASE_URL"); v != "" {
		c.Embedding.BaseURL = v
	}
	if v := os.Getenv("COOKRAG_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("COOKRAG_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("COOKRAG_RERANKER_ENDPOINT"); v != "" {
		c.Reranker.Endpoint = v
	}
	if v := os.Getenv("COOKRAG_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.TopK = n
		}
	}
	if v := os.Getenv("COOKRAG_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the final configuration for values that would break
// the pipeline at runtime.
func (c *Config) Validate() error {
	if c.Corpus.DataDir == "" {
		return fmt.Errorf("corpus.data_dir must not be empty")
	}
	if c.Search.TopK <= 0 {
		return fmt.Errorf("search.top_k must be positive, got %d", c.Search.TopK)
	}
	if c.Search.RecallWindow <= 0 {
		return fmt.Errorf("search.recall_window must be positive, got %d", c.Search.RecallWindow)
	}
	if c.Search.FilteredRecallWindow <= 0 {
		return fmt.Errorf("search.filtered_recall_window must be positive, got %d", c.Search.FilteredRecallWindow)
	}
	if c.Search.FusionLimit <= 0 {
		return fmt.Errorf("search.fusion_limit must be positive, got %d", c.Search.FusionLimit)
	}
	if c.Search.RRFConstant < 0 {
		return fmt.Errorf("search.rrf_constant must be non-negative, got %d", c.Search.RRFConstant)
	}

	validProviders := map[string]bool{"openai": true, "static": true}
	if !validProviders[strings.ToLower(c.Embedding.Provider)] {
		return fmt.Errorf("embedding.provider must be 'openai' or 'static', got %s", c.Embedding.Provider)
	}
	if strings.EqualFold(c.Embedding.Provider, "openai") && c.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding.base_url is required for the openai provider")
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	return nil
}

// CachePath returns the embedding cache database path.
func (c *Config) CachePath() string {
	return filepath.Join(c.Corpus.CacheDir, "embeddings.db")
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
