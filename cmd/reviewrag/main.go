package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hubenschmidt/go-reviewrag/config"
	"github.com/hubenschmidt/go-reviewrag/core"
	"github.com/hubenschmidt/go-reviewrag/embedding"
	"github.com/hubenschmidt/go-reviewrag/ingest"
	"github.com/hubenschmidt/go-reviewrag/llm"
	"github.com/hubenschmidt/go-reviewrag/rag"
	"github.com/hubenschmidt/go-reviewrag/recommend"
	"github.com/hubenschmidt/go-reviewrag/sample"
	"github.com/hubenschmidt/go-reviewrag/server"
	"github.com/hubenschmidt/go-reviewrag/server/store"
	"github.com/hubenschmidt/go-reviewrag/vector"
)

const tfidfModelFile = "tfidf.json"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "reviewrag",
		Short: "Review-grounded question answering and product recommendations",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (YAML)")

	var inputPath string
	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Ingest reviews, sample, embed, and persist index artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), configPath, inputPath)
		},
	}
	buildCmd.Flags().StringVar(&inputPath, "input", "", "Reviews JSONL file (overrides data.reviews_path)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API over the persisted artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	var maxSources int
	askCmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question against the persisted artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), configPath, args[0], maxSources)
		},
	}
	askCmd.Flags().IntVar(&maxSources, "max-sources", 0, "Number of review sources to retrieve")

	var (
		mode          string
		productID     string
		category      string
		topK          int
		minSimilarity float32
	)
	recommendCmd := &cobra.Command{
		Use:   "recommend [query]",
		Short: "Recommend products from review evidence",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := ""
			if len(args) > 0 {
				text = args[0]
			}
			query := recommend.Query{
				Mode:      recommend.Mode(mode),
				Text:      text,
				ProductID: productID,
				Category:  category,
				TopK:      topK,
			}
			if cmd.Flags().Changed("min-similarity") {
				query.MinSimilarity = &minSimilarity
			}
			return runRecommend(cmd.Context(), configPath, query)
		},
	}
	recommendCmd.Flags().StringVar(&mode, "mode", "text_query", "Query mode: text_query, product_similar, category_top")
	recommendCmd.Flags().StringVar(&productID, "product", "", "Seed product ID for product_similar")
	recommendCmd.Flags().StringVar(&category, "category", "", "Category for category_top")
	recommendCmd.Flags().IntVar(&topK, "top-k", 0, "Number of products to return")
	recommendCmd.Flags().Float32Var(&minSimilarity, "min-similarity", 0, "Similarity floor, 0 disables filtering")

	rootCmd.AddCommand(buildCmd, serveCmd, askCmd, recommendCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	warnings, err := cfg.Validate()
	if err != nil {
		return nil, nil, err
	}
	for _, w := range warnings {
		logger.Warn(w)
	}
	return cfg, logger, nil
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

func runBuild(ctx context.Context, configPath, inputPath string) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if inputPath == "" {
		inputPath = cfg.Data.ReviewsPath
	}
	if inputPath == "" {
		return errors.New("no input file: pass --input or set data.reviews_path")
	}

	read, err := ingest.ReadJSONLFile(inputPath)
	if err != nil {
		return err
	}
	logger.Info("reviews read",
		zap.Int("records", len(read.Records)),
		zap.Int("malformed", read.Skipped))

	normalizer := ingest.NewNormalizer(ingest.NormalizeOptions{
		VerifiedOnly: cfg.Data.VerifiedOnly,
		MinChars:     cfg.Data.MinChars,
		MinTokens:    cfg.Data.MinTokens,
		MaxChars:     cfg.Data.MaxChars,
	})
	records, stats := normalizer.Normalize(read.Records)
	logger.Info("reviews normalized",
		zap.Int("kept", stats.Kept),
		zap.Int("too_short", stats.TooShort),
		zap.Int("unverified", stats.Unverified),
		zap.Int("duplicates", stats.Duplicates))

	manifest, sampled, err := sample.Sample(records, sample.Options{
		Mode:           sample.Mode(cfg.Sampling.Mode),
		TargetRows:     cfg.Sampling.TargetRows,
		PerCategoryCap: cfg.Sampling.PerCategoryCap,
		SingleCategory: cfg.Sampling.SingleCategory,
		Seed:           cfg.Sampling.Seed,
	})
	if err != nil {
		return err
	}
	logger.Info("sample drawn",
		zap.String("mode", string(manifest.Mode)),
		zap.Int("rows", manifest.Total),
		zap.Int("strata", len(manifest.Strata)))

	embedder, err := buildEmbedder(cfg, sampled)
	if err != nil {
		return err
	}
	logger.Info("embedder ready", zap.String("provider", cfg.Embedding.Provider))

	builder := embedding.NewBuilder(embedder, embedding.BuilderOptions{
		Model:     cfg.Embedding.Model,
		BatchSize: cfg.Embedding.BatchSize,
		IndexType: vector.Type(cfg.Index.Type),
		HNSW:      vector.HNSWOptions{M: cfg.Index.M, EfSearch: cfg.Index.EfSearch},
		DSN:       cfg.Index.DSN,
	}, logger)

	snap, err := builder.Build(ctx, sampled)
	if err != nil {
		return err
	}
	if err := embedding.Save(cfg.Data.ArtifactsDir, snap); err != nil {
		return err
	}

	_, builds, err := store.NewSQLiteStores(cfg.Server.TracesDB)
	if err != nil {
		logger.Warn("build registry unavailable", zap.Error(err))
	} else {
		if err := builds.Add(ctx, store.BuildInfo{
			BuildID:   snap.BuildID,
			Timestamp: snap.CreatedAt,
			Rows:      snap.Len(),
			Skipped:   snap.Skipped,
			Model:     snap.Model,
			IndexType: string(snap.IndexType),
			Mode:      string(manifest.Mode),
		}); err != nil {
			logger.Warn("record build failed", zap.Error(err))
		}
	}

	logger.Info("artifacts written",
		zap.String("dir", cfg.Data.ArtifactsDir),
		zap.String("build_id", snap.BuildID))
	return nil
}

// buildEmbedder returns the embedding client for a build. The TF-IDF model
// is fitted on the sampled corpus and saved next to the other artifacts so
// query-time embedding matches build-time.
func buildEmbedder(cfg *config.Config, sampled []core.NormalizedRecord) (llm.EmbeddingClient, error) {
	switch cfg.Embedding.Provider {
	case "tfidf", "":
		corpus := make([]string, len(sampled))
		for i, rec := range sampled {
			corpus[i] = rec.CleanText
		}
		embedder := llm.NewTFIDFEmbedder()
		if err := embedder.Fit(corpus); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(cfg.Data.ArtifactsDir, 0o755); err != nil {
			return nil, err
		}
		f, err := os.Create(filepath.Join(cfg.Data.ArtifactsDir, tfidfModelFile))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if err := embedder.Save(f); err != nil {
			return nil, err
		}
		return embedder, nil
	default:
		return serveEmbedder(cfg)
	}
}

func runServe(ctx context.Context, configPath string) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer logger.Sync()

	embedder, err := serveEmbedder(cfg)
	if err != nil {
		return err
	}

	loadSnapshot := func(context.Context) (*embedding.Snapshot, error) {
		return embedding.Load(cfg.Data.ArtifactsDir, embedding.LoadOptions{
			ExpectModel: cfg.Embedding.Model,
			HNSW:        vector.HNSWOptions{M: cfg.Index.M, EfSearch: cfg.Index.EfSearch},
			DSN:         cfg.Index.DSN,
		})
	}
	snap, err := loadSnapshot(ctx)
	if err != nil {
		return err
	}
	holder := embedding.NewSnapshotHolder(snap)
	logger.Info("snapshot loaded",
		zap.String("build_id", snap.BuildID),
		zap.Int("rows", snap.Len()),
		zap.String("index_type", string(snap.IndexType)))

	generator, err := buildGenerator(cfg)
	if err != nil {
		return err
	}

	ragEngine := rag.NewEngine(holder, embedder, generator, rag.Options{
		GeneratorModel: cfg.RAG.GeneratorModel,
		MaxSources:     cfg.RAG.MaxSources,
		MinScore:       cfg.RAG.MinScore,
		MaxInputChars:  cfg.RAG.MaxInputChars,
	}, logger)
	recEngine := recommend.NewEngine(holder, embedder, recommend.Options{
		TopK:          cfg.Recommend.TopK,
		MinSimilarity: cfg.Recommend.MinSimilarity,
		SnippetCount:  cfg.Recommend.SnippetCount,
	}, logger)

	traces, builds, err := store.NewSQLiteStores(cfg.Server.TracesDB)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		RAG:         ragEngine,
		Recommender: recEngine,
		Holder:      holder,
		Reloader:    server.Reloader(loadSnapshot),
		Traces:      traces,
		Builds:      builds,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Handler(),
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving", zap.String("addr", cfg.Server.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return httpServer.Shutdown(shutdownCtx)
}

func runAsk(ctx context.Context, configPath, question string, maxSources int) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer logger.Sync()

	engine, _, err := offlineEngines(cfg, logger)
	if err != nil {
		return err
	}

	result, err := engine.Answer(ctx, question, maxSources)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runRecommend(ctx context.Context, configPath string, query recommend.Query) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer logger.Sync()

	_, engine, err := offlineEngines(cfg, logger)
	if err != nil {
		return err
	}

	products, err := engine.Recommend(ctx, query)
	if err != nil {
		return err
	}
	return printJSON(products)
}

// offlineEngines loads artifacts and wires both engines for one-shot
// commands.
func offlineEngines(cfg *config.Config, logger *zap.Logger) (*rag.Engine, *recommend.Engine, error) {
	embedder, err := serveEmbedder(cfg)
	if err != nil {
		return nil, nil, err
	}
	snap, err := embedding.Load(cfg.Data.ArtifactsDir, embedding.LoadOptions{
		ExpectModel: cfg.Embedding.Model,
		HNSW:        vector.HNSWOptions{M: cfg.Index.M, EfSearch: cfg.Index.EfSearch},
		DSN:         cfg.Index.DSN,
	})
	if err != nil {
		return nil, nil, err
	}
	holder := embedding.NewSnapshotHolder(snap)

	generator, err := buildGenerator(cfg)
	if err != nil {
		return nil, nil, err
	}

	ragEngine := rag.NewEngine(holder, embedder, generator, rag.Options{
		GeneratorModel: cfg.RAG.GeneratorModel,
		MaxSources:     cfg.RAG.MaxSources,
		MinScore:       cfg.RAG.MinScore,
		MaxInputChars:  cfg.RAG.MaxInputChars,
	}, logger)
	recEngine := recommend.NewEngine(holder, embedder, recommend.Options{
		TopK:          cfg.Recommend.TopK,
		MinSimilarity: cfg.Recommend.MinSimilarity,
		SnippetCount:  cfg.Recommend.SnippetCount,
	}, logger)
	return ragEngine, recEngine, nil
}

// serveEmbedder returns the query-time embedding client, loading the fitted
// TF-IDF model from the artifacts directory when that provider is selected.
func serveEmbedder(cfg *config.Config) (llm.EmbeddingClient, error) {
	switch cfg.Embedding.Provider {
	case "tfidf", "":
		f, err := os.Open(filepath.Join(cfg.Data.ArtifactsDir, tfidfModelFile))
		if err != nil {
			return nil, fmt.Errorf("open tfidf model (run build first): %w", err)
		}
		defer f.Close()
		return llm.LoadTFIDFEmbedder(f)
	case "openai":
		return llm.NewRetryEmbedder(llm.NewOpenAIClientWithConfig(llm.ClientConfig{
			APIKey:  cfg.Embedding.APIKey,
			BaseURL: cfg.Embedding.BaseURL,
		}), llm.DefaultRetryConfig()), nil
	case "ollama":
		return llm.NewRetryEmbedder(llm.NewOllamaEmbedClient(cfg.Embedding.BaseURL), llm.DefaultRetryConfig()), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

func buildGenerator(cfg *config.Config) (llm.Client, error) {
	switch cfg.RAG.Provider {
	case "anthropic":
		return llm.NewRetryGenerator(llm.NewAnthropicClientWithConfig(llm.ClientConfig{
			APIKey:  cfg.RAG.APIKey,
			BaseURL: cfg.RAG.BaseURL,
		}), llm.DefaultRetryConfig()), nil
	case "openai", "":
		return llm.NewRetryGenerator(llm.NewOpenAIClientWithConfig(llm.ClientConfig{
			APIKey:  cfg.RAG.APIKey,
			BaseURL: cfg.RAG.BaseURL,
		}), llm.DefaultRetryConfig()), nil
	default:
		return nil, fmt.Errorf("unknown rag provider %q", cfg.RAG.Provider)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
