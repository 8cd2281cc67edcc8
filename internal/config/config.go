// Package config provides layered configuration for codeqa.
//
// Configuration is applied in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config ($XDG_CONFIG_HOME/codeqa/config.yaml)
//  3. Project config (.codeqa.yaml in the project root)
//  4. Environment variables (CODEQA_*)
//
// The merged Config object is passed down explicitly; nothing reads
// global mutable state after Load returns.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete codeqa configuration.
type Config struct {
	Version     int               `yaml:"version" json:"version"`
	Paths       PathsConfig       `yaml:"paths" json:"paths"`
	Chunking    ChunkingConfig    `yaml:"chunking" json:"chunking"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings" json:"embeddings"`
	Completion  CompletionConfig  `yaml:"completion" json:"completion"`
	Retrieval   RetrievalConfig   `yaml:"retrieval" json:"retrieval"`
	Performance PerformanceConfig `yaml:"performance" json:"performance"`
	Server      ServerConfig      `yaml:"server" json:"server"`
}

// PathsConfig configures which paths to include and exclude.
type PathsConfig struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// ChunkingConfig configures how source files are split into chunks.
type ChunkingConfig struct {
	// Strategy selects the chunking policy: "syntax" uses tree-sitter
	// logical boundaries with a line-window fallback, "lines" forces
	// fixed-size line windows everywhere.
	Strategy string `yaml:"strategy" json:"strategy"`

	// MaxTokens is the approximate token budget per chunk.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`

	// OverlapTokens is the overlap between adjacent fallback chunks.
	OverlapTokens int `yaml:"overlap_tokens" json:"overlap_tokens"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedding provider: "gemini", "openai",
	// "ollama", "static", or empty for auto-detection.
	Provider string `yaml:"provider" json:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model" json:"model"`
	// Dimensions is the vector dimensionality; 0 means auto-detect.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	// BatchSize is the number of chunks embedded per provider call.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// OllamaHost is the Ollama API endpoint (default http://localhost:11434).
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
}

// CompletionConfig configures the completion provider used by the answer loop.
type CompletionConfig struct {
	// Provider selects the completion provider: "gemini", "claude",
	// "openai", "ollama", or "static".
	Provider string `yaml:"provider" json:"provider"`
	// Model is the completion model name.
	Model string `yaml:"model" json:"model"`
	// MaxTokens caps the generated answer length.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`
	// Temperature controls sampling (0 = deterministic).
	Temperature float64 `yaml:"temperature" json:"temperature"`
	// PromptBudget is the approximate token budget for the assembled
	// prompt. Lowest-similarity context chunks are dropped first when
	// the retrieved context would exceed it.
	PromptBudget int `yaml:"prompt_budget" json:"prompt_budget"`
	// OllamaHost is the Ollama API endpoint for local completion.
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
}

// RetrievalConfig configures retrieval behavior.
type RetrievalConfig struct {
	// TopK is the default number of chunks retrieved per query.
	TopK int `yaml:"top_k" json:"top_k"`

	// BM25Weight and SemanticWeight blend keyword and vector retrieval
	// in the hybrid search path. Must sum to 1.0.
	BM25Weight     float64 `yaml:"bm25_weight" json:"bm25_weight"`
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`

	// RRFConstant is the reciprocal-rank-fusion smoothing parameter.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// BM25Backend selects the keyword index backend: "sqlite" (FTS5,
	// default) or "bleve".
	BM25Backend string `yaml:"bm25_backend" json:"bm25_backend"`

	// MaxResults caps the hybrid search result list.
	MaxResults int `yaml:"max_results" json:"max_results"`
}

// PerformanceConfig configures performance tuning options.
type PerformanceConfig struct {
	MaxFiles      int    `yaml:"max_files" json:"max_files"`
	IndexWorkers  int    `yaml:"index_workers" json:"index_workers"`
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
	CacheSize     int    `yaml:"cache_size" json:"cache_size"`
	SQLiteCacheMB int    `yaml:"sqlite_cache_mb" json:"sqlite_cache_mb"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// defaultExcludePatterns are always excluded.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/.codeqa/**",
	"**/*.min.js",
	"**/*.min.css",
	"**/package-lock.json",
	"**/yarn.lock",
	"**/go.sum",
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Include: []string{},
			Exclude: defaultExcludePatterns,
		},
		Chunking: ChunkingConfig{
			Strategy:      "syntax",
			MaxTokens:     512,
			OverlapTokens: 64,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "", // auto-detect: gemini -> openai -> ollama -> static
			Model:      "",
			Dimensions: 0,
			BatchSize:  32,
			OllamaHost: "",
		},
		Completion: CompletionConfig{
			Provider:     "",
			Model:        "",
			MaxTokens:    1024,
			Temperature:  0.2,
			PromptBudget: 8000,
			OllamaHost:   "",
		},
		Retrieval: RetrievalConfig{
			TopK:           5,
			BM25Weight:     0.4,
			SemanticWeight: 0.6,
			RRFConstant:    60,
			BM25Backend:    "sqlite",
			MaxResults:     20,
		},
		Performance: PerformanceConfig{
			MaxFiles:      100000,
			IndexWorkers:  runtime.NumCPU(),
			WatchDebounce: "500ms",
			CacheSize:     1000,
			SQLiteCacheMB: 64,
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// UserConfigPath returns the path to the user configuration file,
// following the XDG Base Directory spec.
func UserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "codeqa", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "codeqa", "config.yaml")
	}
	return filepath.Join(home, ".config", "codeqa", "config.yaml")
}

// DataDir returns the per-project data directory (<root>/.codeqa).
func DataDir(root string) string {
	return filepath.Join(root, ".codeqa")
}

// Load loads configuration for the project rooted at dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := UserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if err := cfg.loadFromProject(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFromProject attempts to load .codeqa.yaml or .codeqa.yml.
func (c *Config) loadFromProject(dir string) error {
	for _, name := range []string{".codeqa.yaml", ".codeqa.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	// No config file is fine; defaults apply.
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		// Extend the defaults rather than replace them.
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}

	if other.Chunking.Strategy != "" {
		c.Chunking.Strategy = other.Chunking.Strategy
	}
	if other.Chunking.MaxTokens != 0 {
		c.Chunking.MaxTokens = other.Chunking.MaxTokens
	}
	if other.Chunking.OverlapTokens != 0 {
		c.Chunking.OverlapTokens = other.Chunking.OverlapTokens
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}

	if other.Completion.Provider != "" {
		c.Completion.Provider = other.Completion.Provider
	}
	if other.Completion.Model != "" {
		c.Completion.Model = other.Completion.Model
	}
	if other.Completion.MaxTokens != 0 {
		c.Completion.MaxTokens = other.Completion.MaxTokens
	}
	if other.Completion.Temperature != 0 {
		c.Completion.Temperature = other.Completion.Temperature
	}
	if other.Completion.PromptBudget != 0 {
		c.Completion.PromptBudget = other.Completion.PromptBudget
	}
	if other.Completion.OllamaHost != "" {
		c.Completion.OllamaHost = other.Completion.OllamaHost
	}

	if other.Retrieval.TopK != 0 {
		c.Retrieval.TopK = other.Retrieval.TopK
	}
	if other.Retrieval.BM25Weight != 0 {
		c.Retrieval.BM25Weight = other.Retrieval.BM25Weight
	}
	if other.Retrieval.SemanticWeight != 0 {
		c.Retrieval.SemanticWeight = other.Retrieval.SemanticWeight
	}
	if other.Retrieval.RRFConstant != 0 {
		c.Retrieval.RRFConstant = other.Retrieval.RRFConstant
	}
	if other.Retrieval.BM25Backend != "" {
		c.Retrieval.BM25Backend = other.Retrieval.BM25Backend
	}
	if other.Retrieval.MaxResults != 0 {
		c.Retrieval.MaxResults = other.Retrieval.MaxResults
	}

	if other.Performance.MaxFiles != 0 {
		c.Performance.MaxFiles = other.Performance.MaxFiles
	}
	if other.Performance.IndexWorkers != 0 {
		c.Performance.IndexWorkers = other.Performance.IndexWorkers
	}
	if other.Performance.WatchDebounce != "" {
		c.Performance.WatchDebounce = other.Performance.WatchDebounce
	}
	if other.Performance.CacheSize != 0 {
		c.Performance.CacheSize = other.Performance.CacheSize
	}
	if other.Performance.SQLiteCacheMB != 0 {
		c.Performance.SQLiteCacheMB = other.Performance.SQLiteCacheMB
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies CODEQA_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CODEQA_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("CODEQA_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("CODEQA_COMPLETION_PROVIDER"); v != "" {
		c.Completion.Provider = v
	}
	if v := os.Getenv("CODEQA_COMPLETION_MODEL"); v != "" {
		c.Completion.Model = v
	}
	if v := os.Getenv("CODEQA_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
		c.Completion.OllamaHost = v
	}
	if v := os.Getenv("CODEQA_TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Retrieval.TopK = k
		}
	}
	if v := os.Getenv("CODEQA_BM25_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 && w <= 1 {
			c.Retrieval.BM25Weight = w
		}
	}
	if v := os.Getenv("CODEQA_SEMANTIC_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 && w <= 1 {
			c.Retrieval.SemanticWeight = w
		}
	}
	if v := os.Getenv("CODEQA_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Retrieval.RRFConstant = k
		}
	}
	if v := os.Getenv("CODEQA_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.BM25Weight < 0 || c.Retrieval.BM25Weight > 1 {
		return fmt.Errorf("bm25_weight must be between 0 and 1, got %f", c.Retrieval.BM25Weight)
	}
	if c.Retrieval.SemanticWeight < 0 || c.Retrieval.SemanticWeight > 1 {
		return fmt.Errorf("semantic_weight must be between 0 and 1, got %f", c.Retrieval.SemanticWeight)
	}
	if sum := c.Retrieval.BM25Weight + c.Retrieval.SemanticWeight; math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("bm25_weight + semantic_weight must equal 1.0, got %.2f", sum)
	}

	switch strings.ToLower(c.Chunking.Strategy) {
	case "syntax", "lines":
	default:
		return fmt.Errorf("chunking.strategy must be 'syntax' or 'lines', got %s", c.Chunking.Strategy)
	}
	if c.Chunking.MaxTokens <= 0 {
		return fmt.Errorf("chunking.max_tokens must be positive, got %d", c.Chunking.MaxTokens)
	}
	if c.Chunking.OverlapTokens < 0 || c.Chunking.OverlapTokens >= c.Chunking.MaxTokens {
		return fmt.Errorf("chunking.overlap_tokens must be in [0, max_tokens), got %d", c.Chunking.OverlapTokens)
	}

	if c.Embeddings.Provider != "" {
		valid := map[string]bool{"gemini": true, "openai": true, "ollama": true, "static": true}
		if !valid[strings.ToLower(c.Embeddings.Provider)] {
			return fmt.Errorf("embeddings.provider must be 'gemini', 'openai', 'ollama', 'static', or empty (auto-detect), got %s", c.Embeddings.Provider)
		}
	}
	if c.Completion.Provider != "" {
		valid := map[string]bool{"gemini": true, "claude": true, "openai": true, "ollama": true, "static": true}
		if !valid[strings.ToLower(c.Completion.Provider)] {
			return fmt.Errorf("completion.provider must be 'gemini', 'claude', 'openai', 'ollama', 'static', or empty (auto-detect), got %s", c.Completion.Provider)
		}
	}
	if c.Completion.PromptBudget <= 0 {
		return fmt.Errorf("completion.prompt_budget must be positive, got %d", c.Completion.PromptBudget)
	}

	switch strings.ToLower(c.Retrieval.BM25Backend) {
	case "sqlite", "bleve":
	default:
		return fmt.Errorf("retrieval.bm25_backend must be 'sqlite' or 'bleve', got %s", c.Retrieval.BM25Backend)
	}

	if c.Server.Transport != "" && strings.ToLower(c.Server.Transport) != "stdio" {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
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

// FindProjectRoot walks up from startDir looking for a .git directory or
// a .codeqa.yaml/.yml file. Falls back to startDir itself.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	current := absDir
	for {
		if dirExists(filepath.Join(current, ".git")) {
			return current, nil
		}
		if fileExists(filepath.Join(current, ".codeqa.yaml")) ||
			fileExists(filepath.Join(current, ".codeqa.yml")) {
			return current, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return absDir, nil
		}
		current = parent
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
