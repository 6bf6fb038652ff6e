package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/go-reviewrag/core"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "stratified_sample", cfg.Sampling.Mode)
	assert.Equal(t, 10000, cfg.Sampling.TargetRows)
	assert.Equal(t, "flat", cfg.Index.Type)
	assert.Equal(t, float32(0.1), cfg.RAG.MinScore)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
sampling:
  target_rows_total: 500
  seed: 7
index:
  index_type: approximate
rag:
  max_sources: 10
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Sampling.TargetRows)
	assert.Equal(t, int64(7), cfg.Sampling.Seed)
	assert.Equal(t, "approximate", cfg.Index.Type)
	assert.Equal(t, 10, cfg.RAG.MaxSources)
	// Untouched values keep their defaults.
	assert.Equal(t, 2000, cfg.Sampling.PerCategoryCap)
}

func TestValidateRejectsOutOfRangeSimilarity(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.RAG.MinScore = 1.5

	_, err = cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, core.KindConfig, core.KindOf(err))
}

func TestValidateRequiresDSNForPgVector(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Index.Type = "pgvector"

	_, err = cfg.Validate()
	require.Error(t, err)
}

func TestValidateWarnsOnMissingAPIKey(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Embedding.Provider = "openai"

	warnings, err := cfg.Validate()
	require.NoError(t, err)
	require.NotEmpty(t, warnings)
	assert.Contains(t, warnings[0], "api_key")
}
