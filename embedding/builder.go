package embedding

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hubenschmidt/go-reviewrag/core"
	"github.com/hubenschmidt/go-reviewrag/llm"
	"github.com/hubenschmidt/go-reviewrag/vector"
)

// BuilderOptions configures a corpus build.
type BuilderOptions struct {
	Model      string
	BatchSize  int
	IndexType  vector.Type
	HNSW       vector.HNSWOptions
	DSN        string // pgvector index only
	SnippetLen int
}

// DefaultBuilderOptions returns the defaults used by the build command.
func DefaultBuilderOptions() BuilderOptions {
	return BuilderOptions{
		BatchSize:  64,
		IndexType:  vector.TypeFlat,
		HNSW:       vector.DefaultHNSWOptions(),
		SnippetLen: 300,
	}
}

// Builder embeds review records in batches and assembles a snapshot. Records
// are processed in input order, so two builds over the same sample produce
// identical position assignments.
type Builder struct {
	embedder llm.EmbeddingClient
	opts     BuilderOptions
	logger   *zap.Logger
}

// NewBuilder creates a builder. Zero option fields fall back to defaults.
func NewBuilder(embedder llm.EmbeddingClient, opts BuilderOptions, logger *zap.Logger) *Builder {
	def := DefaultBuilderOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.IndexType == "" {
		opts.IndexType = def.IndexType
	}
	if opts.SnippetLen <= 0 {
		opts.SnippetLen = def.SnippetLen
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{embedder: embedder, opts: opts, logger: logger}
}

// Build embeds all records and returns a snapshot. A record whose embedding
// fails after retries is dropped along with its metadata, so vectors and
// metadata stay aligned; the drop count is reported on the snapshot.
func (b *Builder) Build(ctx context.Context, records []core.NormalizedRecord) (*Snapshot, error) {
	const op = "embedding.Build"
	if len(records) == 0 {
		return nil, core.Errorf(core.KindInput, op, "no records to embed")
	}

	snap := &Snapshot{
		BuildID:   uuid.NewString(),
		Model:     b.opts.Model,
		IndexType: b.opts.IndexType,
		CreatedAt: time.Now().UTC(),
	}

	start := time.Now()
	for begin := 0; begin < len(records); begin += b.opts.BatchSize {
		end := begin + b.opts.BatchSize
		if end > len(records) {
			end = len(records)
		}
		if err := b.embedBatch(ctx, records[begin:end], snap); err != nil {
			return nil, err
		}
	}

	if len(snap.Vectors) == 0 {
		return nil, core.Errorf(core.KindUpstream, op, "all %d records failed to embed", len(records))
	}

	index, err := buildIndex(snap.Vectors, snap.Dimension, b.opts)
	if err != nil {
		return nil, core.E(core.KindConfig, op, err)
	}
	snap.Index = index

	b.logger.Info("build complete",
		zap.String("build_id", snap.BuildID),
		zap.Int("rows", len(snap.Vectors)),
		zap.Int("skipped", snap.Skipped),
		zap.Int("dimension", snap.Dimension),
		zap.String("index_type", string(snap.IndexType)),
		zap.Duration("elapsed", time.Since(start)))

	return snap, nil
}

// embedBatch embeds one batch, falling back to per-record calls when the
// batch as a whole fails so a single bad input cannot sink the build.
func (b *Builder) embedBatch(ctx context.Context, batch []core.NormalizedRecord, snap *Snapshot) error {
	texts := make([]string, len(batch))
	for i, rec := range batch {
		texts[i] = rec.CleanText
	}

	responses, err := b.embedder.EmbedBatch(ctx, b.opts.Model, texts)
	if err == nil {
		if len(responses) != len(batch) {
			return core.Errorf(core.KindUpstream, "embedding.Build", "embedder returned %d vectors for %d inputs", len(responses), len(batch))
		}
		for i, resp := range responses {
			if err := b.append(snap, batch[i], resp.Embedding); err != nil {
				return err
			}
		}
		return nil
	}
	if ctx.Err() != nil {
		return core.E(core.KindUpstream, "embedding.Build", ctx.Err())
	}

	b.logger.Warn("batch embed failed, retrying per record",
		zap.Int("batch_size", len(batch)), zap.Error(err))

	for _, rec := range batch {
		resp, err := b.embedder.Embed(ctx, b.opts.Model, rec.CleanText)
		if err != nil {
			if ctx.Err() != nil {
				return core.E(core.KindUpstream, "embedding.Build", ctx.Err())
			}
			snap.Skipped++
			b.logger.Warn("record skipped",
				zap.String("review_id", rec.ReviewID), zap.Error(err))
			continue
		}
		if err := b.append(snap, rec, resp.Embedding); err != nil {
			return err
		}
	}
	return nil
}

// append normalizes one embedding and pushes the vector and its metadata
// together, keeping the parallel arrays in lockstep.
func (b *Builder) append(snap *Snapshot, rec core.NormalizedRecord, emb []float32) error {
	if snap.Dimension == 0 {
		snap.Dimension = len(emb)
	}
	if len(emb) != snap.Dimension {
		return core.Errorf(core.KindUpstream, "embedding.Build",
			"embedder returned dimension %d, expected %d", len(emb), snap.Dimension)
	}

	snap.Vectors = append(snap.Vectors, vector.Normalize(emb))
	snap.Metadata = append(snap.Metadata, core.Metadata{
		ReviewID:     rec.ReviewID,
		ProductID:    rec.ProductID,
		ProductTitle: rec.ProductTitle,
		Category:     rec.Category,
		StarRating:   rec.StarRating,
		Snippet:      snippet(rec.CleanText, b.opts.SnippetLen),
	})
	return nil
}

func buildIndex(vectors [][]float32, dimension int, opts BuilderOptions) (vector.Index, error) {
	switch opts.IndexType {
	case vector.TypeFlat:
		idx := vector.NewFlat(dimension)
		if err := idx.Add(vectors...); err != nil {
			return nil, err
		}
		return idx, nil
	case vector.TypeHNSW:
		idx := vector.NewHNSW(dimension, opts.HNSW)
		if err := idx.Add(vectors...); err != nil {
			return nil, err
		}
		return idx, nil
	case vector.TypePgVector:
		if opts.DSN == "" {
			return nil, fmt.Errorf("pgvector index requires a dsn")
		}
		idx, err := vector.NewPgVector(opts.DSN, dimension)
		if err != nil {
			return nil, err
		}
		if err := idx.Truncate(); err != nil {
			idx.Close()
			return nil, err
		}
		if err := idx.Add(vectors...); err != nil {
			idx.Close()
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported index type %q", opts.IndexType)
	}
}

// snippet truncates text for display, cutting at a word boundary when one is
// close enough and never in the middle of a rune.
func snippet(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for i := limit; i > limit-30 && i > 0; i-- {
		if text[i-1] == ' ' {
			cut = i - 1
			break
		}
	}
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
