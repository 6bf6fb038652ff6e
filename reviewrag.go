// Package reviewrag answers questions about product reviews and recommends
// products from review evidence.
//
// Example usage:
//
//	snap, err := embedding.Load("artifacts", embedding.LoadOptions{ExpectModel: "tfidf"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	holder := embedding.NewSnapshotHolder(snap)
//
//	embedder, _ := llm.LoadTFIDFEmbedder(modelFile)
//	generator := llm.NewOpenAIClient(os.Getenv("OPENAI_API_KEY"))
//
//	engine := rag.NewEngine(holder, embedder, generator, rag.DefaultOptions(), logger)
//	result, err := engine.Answer(ctx, "How is the battery life?", 5)
package reviewrag

import (
	"go.uber.org/zap"

	"github.com/hubenschmidt/go-reviewrag/embedding"
	"github.com/hubenschmidt/go-reviewrag/ingest"
	"github.com/hubenschmidt/go-reviewrag/llm"
	"github.com/hubenschmidt/go-reviewrag/rag"
	"github.com/hubenschmidt/go-reviewrag/recommend"
	"github.com/hubenschmidt/go-reviewrag/sample"
	"github.com/hubenschmidt/go-reviewrag/server"
	"github.com/hubenschmidt/go-reviewrag/vector"
)

// Query mode aliases for recommendation requests.
const (
	ModeTextQuery      = recommend.ModeTextQuery
	ModeProductSimilar = recommend.ModeProductSimilar
	ModeCategoryTop    = recommend.ModeCategoryTop
)

// Sampler mode aliases.
const (
	SampleStratified     = sample.ModeStratified
	SampleSingleCategory = sample.ModeSingleCategory
	SampleFull           = sample.ModeFull
)

// Commonly used types, re-exported so callers can stay on one import.
type (
	Snapshot       = embedding.Snapshot
	SnapshotHolder = embedding.SnapshotHolder
	RAGEngine      = rag.Engine
	RAGResult      = rag.Result
	Recommender    = recommend.Engine
	RecommendQuery = recommend.Query
	Product        = recommend.Product
	ServerConfig   = server.Config
)

// NewNormalizer creates a review normalizer with the given options.
func NewNormalizer(opts ingest.NormalizeOptions) *ingest.Normalizer {
	return ingest.NewNormalizer(opts)
}

// Sample draws a deterministic sample of normalized records.
var Sample = sample.Sample

// NewBuilder creates an embedding builder.
func NewBuilder(embedder llm.EmbeddingClient, opts embedding.BuilderOptions, logger *zap.Logger) *embedding.Builder {
	return embedding.NewBuilder(embedder, opts, logger)
}

// NewFlatIndex creates an exact nearest-neighbor index.
func NewFlatIndex(dimension int) *vector.Flat {
	return vector.NewFlat(dimension)
}
