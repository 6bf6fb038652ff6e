// Package config loads application configuration from a YAML file and the
// REVIEWRAG_ environment, with defaults suitable for local development.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/hubenschmidt/go-reviewrag/core"
)

// Config holds all application configuration.
type Config struct {
	Data      DataConfig      `mapstructure:"data"`
	Sampling  SamplingConfig  `mapstructure:"sampling"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Index     IndexConfig     `mapstructure:"index"`
	RAG       RAGConfig       `mapstructure:"rag"`
	Recommend RecommendConfig `mapstructure:"recommend"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
}

type DataConfig struct {
	ReviewsPath  string `mapstructure:"reviews_path"`
	ArtifactsDir string `mapstructure:"artifacts_dir"`
	VerifiedOnly bool   `mapstructure:"verified_only"`
	MinChars     int    `mapstructure:"min_chars"`
	MinTokens    int    `mapstructure:"min_tokens"`
	MaxChars     int    `mapstructure:"max_chars"`
}

type SamplingConfig struct {
	Mode           string `mapstructure:"mode"`
	TargetRows     int    `mapstructure:"target_rows_total"`
	PerCategoryCap int    `mapstructure:"per_category_cap"`
	SingleCategory string `mapstructure:"single_category"`
	Seed           int64  `mapstructure:"seed"`
}

type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider"` // openai, ollama, tfidf
	Model     string `mapstructure:"embedding_model_id"`
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	BatchSize int    `mapstructure:"batch_size"`
}

type IndexConfig struct {
	Type     string `mapstructure:"index_type"` // flat, approximate, pgvector
	M        int    `mapstructure:"m"`
	EfSearch int    `mapstructure:"ef_search"`
	DSN      string `mapstructure:"dsn"` // pgvector only
}

type RAGConfig struct {
	Provider       string  `mapstructure:"provider"` // openai, anthropic
	GeneratorModel string  `mapstructure:"generator_model_id"`
	APIKey         string  `mapstructure:"api_key"`
	BaseURL        string  `mapstructure:"base_url"`
	MaxSources     int     `mapstructure:"max_sources"`
	MinScore       float32 `mapstructure:"min_similarity"`
	MaxInputChars  int     `mapstructure:"max_input_chars"`
}

type RecommendConfig struct {
	TopK          int     `mapstructure:"top_k"`
	MinSimilarity float32 `mapstructure:"min_similarity"`
	SnippetCount  int     `mapstructure:"snippet_count"`
}

type ServerConfig struct {
	Addr     string `mapstructure:"addr"`
	TracesDB string `mapstructure:"traces_db"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate returns soft warnings alongside a hard error for values that
// would corrupt results rather than merely degrade them.
func (c *Config) Validate() ([]string, error) {
	var warnings []string

	if c.RAG.MinScore < 0 || c.RAG.MinScore > 1 {
		return warnings, core.Errorf(core.KindConfig, "config.Validate",
			"rag.min_similarity %.2f outside [0, 1]", c.RAG.MinScore)
	}
	if c.Recommend.MinSimilarity < 0 || c.Recommend.MinSimilarity > 1 {
		return warnings, core.Errorf(core.KindConfig, "config.Validate",
			"recommend.min_similarity %.2f outside [0, 1]", c.Recommend.MinSimilarity)
	}
	if c.Sampling.TargetRows < 0 {
		return warnings, core.Errorf(core.KindConfig, "config.Validate",
			"sampling.target_rows_total %d is negative", c.Sampling.TargetRows)
	}
	if c.Index.Type == "pgvector" && c.Index.DSN == "" {
		return warnings, core.Errorf(core.KindConfig, "config.Validate",
			"index.index_type pgvector requires index.dsn")
	}

	if c.Embedding.Provider != "" && c.Embedding.Provider != "tfidf" && c.Embedding.Provider != "ollama" && c.Embedding.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("embedding provider %q is configured but api_key is empty", c.Embedding.Provider))
	}
	if c.RAG.Provider != "" && c.RAG.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("rag provider %q is configured but api_key is empty", c.RAG.Provider))
	}
	if c.Sampling.PerCategoryCap > 0 && c.Sampling.TargetRows > 0 && c.Sampling.PerCategoryCap > c.Sampling.TargetRows {
		warnings = append(warnings, "sampling.per_category_cap exceeds target_rows_total and will never bind")
	}

	return warnings, nil
}

// Load reads configuration from file and environment. An empty path uses
// defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("REVIEWRAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, core.E(core.KindConfig, "config.Load", fmt.Errorf("reading config: %w", err))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, core.E(core.KindConfig, "config.Load", fmt.Errorf("unmarshalling config: %w", err))
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data.artifacts_dir", "artifacts")
	v.SetDefault("data.verified_only", true)
	v.SetDefault("data.min_chars", 10)
	v.SetDefault("data.min_tokens", 3)
	v.SetDefault("data.max_chars", 4000)

	v.SetDefault("sampling.mode", "stratified_sample")
	v.SetDefault("sampling.target_rows_total", 10000)
	v.SetDefault("sampling.per_category_cap", 2000)
	v.SetDefault("sampling.seed", 42)

	v.SetDefault("embedding.provider", "tfidf")
	v.SetDefault("embedding.embedding_model_id", "tfidf")
	v.SetDefault("embedding.batch_size", 64)

	v.SetDefault("index.index_type", "flat")
	v.SetDefault("index.m", 16)
	v.SetDefault("index.ef_search", 50)

	v.SetDefault("rag.max_sources", 5)
	v.SetDefault("rag.min_similarity", 0.1)
	v.SetDefault("rag.max_input_chars", 4000)

	v.SetDefault("recommend.top_k", 5)
	v.SetDefault("recommend.min_similarity", 0.1)
	v.SetDefault("recommend.snippet_count", 3)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.traces_db", "reviewrag.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
