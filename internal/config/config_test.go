package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_DefaultsAreValid(t *testing.T) {
	cfg := NewConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "syntax", cfg.Chunking.Strategy)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, "sqlite", cfg.Retrieval.BM25Backend)
	assert.InDelta(t, 1.0, cfg.Retrieval.BM25Weight+cfg.Retrieval.SemanticWeight, 0.001)
}

func TestLoad_NoConfigFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg-empty"))

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 512, cfg.Chunking.MaxTokens)
}

func TestLoad_ProjectConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg-empty"))

	yaml := `
retrieval:
  top_k: 8
embeddings:
  provider: static
completion:
  provider: static
  prompt_budget: 4000
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".codeqa.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Retrieval.TopK)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 4000, cfg.Completion.PromptBudget)
	// Untouched fields keep defaults.
	assert.Equal(t, 32, cfg.Embeddings.BatchSize)
}

func TestLoad_UserConfigThenProjectConfig(t *testing.T) {
	dir := t.TempDir()
	xdg := filepath.Join(dir, "xdg")
	t.Setenv("XDG_CONFIG_HOME", xdg)

	userDir := filepath.Join(xdg, "codeqa")
	require.NoError(t, os.MkdirAll(userDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "config.yaml"),
		[]byte("retrieval:\n  top_k: 3\n  max_results: 50\n"), 0o644))

	proj := filepath.Join(dir, "proj")
	require.NoError(t, os.MkdirAll(proj, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(proj, ".codeqa.yaml"),
		[]byte("retrieval:\n  top_k: 9\n"), 0o644))

	cfg, err := Load(proj)

	require.NoError(t, err)
	// Project config wins over user config; user-only values survive.
	assert.Equal(t, 9, cfg.Retrieval.TopK)
	assert.Equal(t, 50, cfg.Retrieval.MaxResults)
}

func TestLoad_EnvOverridesHaveHighestPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg-empty"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".codeqa.yaml"),
		[]byte("embeddings:\n  provider: ollama\n"), 0o644))
	t.Setenv("CODEQA_EMBEDDINGS_PROVIDER", "static")
	t.Setenv("CODEQA_TOP_K", "7")

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 7, cfg.Retrieval.TopK)
}

func TestLoad_InvalidYAMLFails(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg-empty"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".codeqa.yaml"),
		[]byte("retrieval: [not a map"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero top_k", func(c *Config) { c.Retrieval.TopK = 0 }},
		{"weights not summing to 1", func(c *Config) { c.Retrieval.BM25Weight = 0.9 }},
		{"unknown chunking strategy", func(c *Config) { c.Chunking.Strategy = "paragraphs" }},
		{"unknown embedding provider", func(c *Config) { c.Embeddings.Provider = "cohere" }},
		{"unknown completion provider", func(c *Config) { c.Completion.Provider = "bard" }},
		{"unknown bm25 backend", func(c *Config) { c.Retrieval.BM25Backend = "lucene" }},
		{"overlap >= max tokens", func(c *Config) { c.Chunking.OverlapTokens = 512 }},
		{"non-positive prompt budget", func(c *Config) { c.Completion.PromptBudget = 0 }},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestFindProjectRoot_StopsAtGitDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	nested := filepath.Join(root, "src", "pkg")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	found, err := FindProjectRoot(nested)

	require.NoError(t, err)
	resolved, _ := filepath.EvalSymlinks(found)
	expected, _ := filepath.EvalSymlinks(root)
	assert.Equal(t, expected, resolved)
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg-empty"))
	path := filepath.Join(dir, ".codeqa.yaml")

	cfg := NewConfig()
	cfg.Retrieval.TopK = 11
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 11, loaded.Retrieval.TopK)
}

func TestDataDir(t *testing.T) {
	assert.Equal(t, filepath.Join("/p", ".codeqa"), DataDir("/p"))
}
