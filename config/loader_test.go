package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "sentence", cfg.Chunking.Strategy)
	assert.Equal(t, 1000, cfg.Chunking.Size)
	assert.Equal(t, 200, cfg.Chunking.Overlap)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 0.1, cfg.Retrieval.RerankKeywordWeight)
	assert.Equal(t, "memory", cfg.VectorStore.Backend)
	assert.Equal(t, "en", cfg.Language.Default)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlData := `
chunking:
  strategy: paragraph
  size: 800
  overlap: 100
retrieval:
  top_k: 10
  rerank_enabled: false
vector_store:
  backend: qdrant
  qdrant:
    base_url: http://qdrant:6333
llm:
  model: gpt-4o
  timeout: 90s
`
	require.NoError(t, os.WriteFile(path, []byte(yamlData), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "paragraph", cfg.Chunking.Strategy)
	assert.Equal(t, 800, cfg.Chunking.Size)
	assert.Equal(t, 10, cfg.Retrieval.TopK)
	assert.False(t, cfg.Retrieval.RerankEnabled)
	assert.Equal(t, "qdrant", cfg.VectorStore.Backend)
	assert.Equal(t, "http://qdrant:6333", cfg.VectorStore.Qdrant.BaseURL)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 90*time.Second, cfg.LLM.Timeout)
	// YAML 未覆盖的保持默认
	assert.Equal(t, 0.1, cfg.Retrieval.RerankKeywordWeight)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunking:\n  size: 800\n"), 0o644))

	t.Setenv("RAGCORE_CHUNKING_SIZE", "1200")
	t.Setenv("RAGCORE_LLM_API_KEY", "sk-env")
	t.Setenv("RAGCORE_LANGUAGE_SUPPORTED", "en, zh, ja")
	t.Setenv("RAGCORE_REDIS_ENABLED", "true")
	t.Setenv("RAGCORE_LLM_TEMPERATURE", "0.9")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 1200, cfg.Chunking.Size)
	assert.Equal(t, "sk-env", cfg.LLM.APIKey)
	assert.Equal(t, []string{"en", "zh", "ja"}, cfg.Language.Supported)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 0.9, cfg.LLM.Temperature)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Chunking.Size)
}

func TestLoad_Validator(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error { return c.Validate() }).
		Load()
	require.NoError(t, err)

	t.Setenv("RAGCORE_CHUNKING_SIZE", "-1")
	_, err = NewLoader().
		WithValidator(func(c *Config) error { return c.Validate() }).
		Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunking size")
}

func TestValidate_OverlapBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Chunking.Overlap = cfg.Chunking.Size
	require.Error(t, cfg.Validate())

	cfg.Chunking.Overlap = -1
	require.Error(t, cfg.Validate())
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{
		Host: "db", Port: 5432, User: "u", Password: "p", Name: "sraga", SSLMode: "disable",
	}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=sraga sslmode=disable", p.DSN())
}
