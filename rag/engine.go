// Package rag answers free-text questions about the review corpus by
// retrieving the closest review snippets and handing them to a generator
// model as grounded context.
package rag

import (
	"context"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hubenschmidt/go-reviewrag/core"
	"github.com/hubenschmidt/go-reviewrag/embedding"
	"github.com/hubenschmidt/go-reviewrag/llm"
	"github.com/hubenschmidt/go-reviewrag/vector"
)

// Source is one retrieved review snippet, tagged with its similarity score
// so callers can render citations.
type Source struct {
	Content  string        `json:"content"`
	Metadata core.Metadata `json:"metadata"`
	Score    float32       `json:"score"`
}

// Result is a generated answer with the sources actually used, in retrieval
// order after context truncation.
type Result struct {
	Answer     string   `json:"answer"`
	Sources    []Source `json:"sources"`
	NumSources int      `json:"num_sources"`
}

// Options bounds retrieval and context assembly.
type Options struct {
	GeneratorModel   string
	MaxSources       int     // default source count when the caller passes 0
	MinScore         float32 // similarity floor; hits below it are discarded
	MaxInputChars    int     // total snippet budget for the generator context
	MaxQuestionChars int     // questions longer than this are cut, not rejected
}

// DefaultOptions returns the serving defaults.
func DefaultOptions() Options {
	return Options{
		MaxSources:       5,
		MinScore:         0.1,
		MaxInputChars:    4000,
		MaxQuestionChars: 1000,
	}
}

// Engine wires the snapshot holder, embedder, and generator together. It is
// safe for concurrent use; each request resolves the current snapshot once
// and uses it throughout.
type Engine struct {
	holder    *embedding.SnapshotHolder
	embedder  llm.EmbeddingClient
	generator llm.Client
	opts      Options
	logger    *zap.Logger
}

// NewEngine creates an engine. Zero option fields fall back to defaults.
func NewEngine(holder *embedding.SnapshotHolder, embedder llm.EmbeddingClient, generator llm.Client, opts Options, logger *zap.Logger) *Engine {
	def := DefaultOptions()
	if opts.MaxSources <= 0 {
		opts.MaxSources = def.MaxSources
	}
	if opts.MaxInputChars <= 0 {
		opts.MaxInputChars = def.MaxInputChars
	}
	if opts.MaxQuestionChars <= 0 {
		opts.MaxQuestionChars = def.MaxQuestionChars
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{holder: holder, embedder: embedder, generator: generator, opts: opts, logger: logger}
}

// Answer retrieves up to maxSources snippets above the similarity floor and
// generates an answer grounded in them. Asking the same question against an
// unchanged snapshot always yields the same source set. An empty retrieval
// is an evidence gap, not an upstream failure.
func (e *Engine) Answer(ctx context.Context, question string, maxSources int) (*Result, error) {
	const op = "rag.Answer"
	if question == "" {
		return nil, core.E(core.KindInput, op, core.ErrEmptyQuestion)
	}
	question = cutRunes(question, e.opts.MaxQuestionChars)
	if maxSources <= 0 {
		maxSources = e.opts.MaxSources
	}

	snap, err := e.holder.Current()
	if err != nil {
		return nil, err
	}

	sources, err := e.retrieve(ctx, snap, question, maxSources)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, core.E(core.KindEvidenceGap, op, core.ErrNoEvidence)
	}

	sources = truncateContext(sources, e.opts.MaxInputChars)

	snippets := make([]string, len(sources))
	for i, s := range sources {
		snippets[i] = s.Content
	}
	resp, err := e.generator.Chat(ctx, e.opts.GeneratorModel, llm.AnswerSystemPrompt, llm.BuildAnswerPrompt(question, snippets))
	if err != nil {
		return nil, core.E(core.KindUpstream, op, err)
	}

	e.logger.Debug("answered question",
		zap.Int("sources", len(sources)),
		zap.String("build_id", snap.BuildID))

	return &Result{
		Answer:     resp.Content,
		Sources:    sources,
		NumSources: len(sources),
	}, nil
}

// SimilarReviews is raw retrieval without generation, for callers that want
// the evidence itself.
func (e *Engine) SimilarReviews(ctx context.Context, query string, k int) ([]Source, error) {
	const op = "rag.SimilarReviews"
	if query == "" {
		return nil, core.E(core.KindInput, op, core.ErrEmptyQuery)
	}
	if k <= 0 {
		k = e.opts.MaxSources
	}

	snap, err := e.holder.Current()
	if err != nil {
		return nil, err
	}
	return e.retrieve(ctx, snap, query, k)
}

// Stats describes the snapshot currently serving queries.
type Stats struct {
	BuildID    string      `json:"build_id"`
	Model      string      `json:"model"`
	Dimension  int         `json:"dimension"`
	IndexType  vector.Type `json:"index_type"`
	NumReviews int         `json:"num_reviews"`
}

// Stats reports the current snapshot's identity and size.
func (e *Engine) Stats() (*Stats, error) {
	snap, err := e.holder.Current()
	if err != nil {
		return nil, err
	}
	return &Stats{
		BuildID:    snap.BuildID,
		Model:      snap.Model,
		Dimension:  snap.Dimension,
		IndexType:  snap.IndexType,
		NumReviews: snap.Len(),
	}, nil
}

func (e *Engine) retrieve(ctx context.Context, snap *embedding.Snapshot, query string, k int) ([]Source, error) {
	const op = "rag.retrieve"

	resp, err := e.embedder.Embed(ctx, snap.Model, query)
	if err != nil {
		return nil, core.E(core.KindUpstream, op, err)
	}
	queryVec := vector.Normalize(resp.Embedding)

	hits, err := snap.Index.Search(ctx, queryVec, k)
	if err != nil {
		return nil, core.E(core.KindUpstream, op, err)
	}

	sources := make([]Source, 0, len(hits))
	for _, h := range hits {
		if h.Score < e.opts.MinScore {
			continue
		}
		meta := snap.Metadata[h.Pos]
		sources = append(sources, Source{
			Content:  meta.Snippet,
			Metadata: meta,
			Score:    h.Score,
		})
	}
	return sources, nil
}

// truncateContext bounds the total snippet length. When the budget is
// exceeded every snippet gets an equal character share, with the remainder
// going to earlier, higher-ranked snippets. Unused share from short snippets
// is not redistributed, which keeps the cut a pure function of lengths.
func truncateContext(sources []Source, maxChars int) []Source {
	total := 0
	for _, s := range sources {
		total += len(s.Content)
	}
	if total <= maxChars {
		return sources
	}

	share := maxChars / len(sources)
	extra := maxChars % len(sources)
	out := make([]Source, len(sources))
	for i, s := range sources {
		limit := share
		if i < extra {
			limit++
		}
		s.Content = cutRunes(s.Content, limit)
		out[i] = s
	}
	return out
}

// cutRunes shortens s to at most limit bytes without splitting a rune.
func cutRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
