package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/go-reviewrag/core"
	"github.com/hubenschmidt/go-reviewrag/embedding"
	"github.com/hubenschmidt/go-reviewrag/llm"
	"github.com/hubenschmidt/go-reviewrag/vector"
)

// axisEmbedder maps known keywords onto axis-aligned unit vectors so tests
// can place queries next to chosen reviews.
type axisEmbedder struct{}

func (axisEmbedder) Embed(_ context.Context, _ string, input string) (*llm.EmbeddingResponse, error) {
	v := make([]float32, 4)
	switch {
	case strings.Contains(input, "battery"):
		v[0] = 1
	case strings.Contains(input, "shipping"):
		v[1] = 1
	case strings.Contains(input, "torque"):
		v[2] = 1
	default:
		v[3] = 1
	}
	return &llm.EmbeddingResponse{Embedding: v}, nil
}

func (a axisEmbedder) EmbedBatch(ctx context.Context, model string, inputs []string) ([]llm.EmbeddingResponse, error) {
	out := make([]llm.EmbeddingResponse, len(inputs))
	for i, in := range inputs {
		resp, _ := a.Embed(ctx, model, in)
		out[i] = *resp
	}
	return out, nil
}

type stubGenerator struct {
	reply    string
	err      error
	calls    int
	lastUser string
}

func (s *stubGenerator) Chat(_ context.Context, _ string, _ string, user string) (*llm.LLMResponse, error) {
	s.calls++
	s.lastUser = user
	if s.err != nil {
		return nil, s.err
	}
	return &llm.LLMResponse{Content: s.reply, FinishReason: "stop"}, nil
}

func testHolder(t *testing.T) *embedding.SnapshotHolder {
	t.Helper()
	texts := []string{
		"battery lasts forever on this drill",
		"shipping took three weeks",
		"amazing torque for the price",
		"battery drains overnight",
	}
	idx := vector.NewFlat(4)
	metadata := make([]core.Metadata, len(texts))
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		resp, err := axisEmbedder{}.Embed(context.Background(), "fake", text)
		require.NoError(t, err)
		vectors[i] = vector.Normalize(resp.Embedding)
		require.NoError(t, idx.Add(vectors[i]))
		metadata[i] = core.Metadata{
			ReviewID:  string(rune('A' + i)),
			ProductID: "P1",
			Category:  "Tools",
			Snippet:   text,
		}
	}
	return embedding.NewSnapshotHolder(&embedding.Snapshot{
		BuildID:   "test-build",
		Model:     "fake",
		Dimension: 4,
		IndexType: vector.TypeFlat,
		Index:     idx,
		Vectors:   vectors,
		Metadata:  metadata,
	})
}

func TestAnswerReturnsGroundedSources(t *testing.T) {
	gen := &stubGenerator{reply: "The battery life is praised."}
	engine := NewEngine(testHolder(t), axisEmbedder{}, gen, Options{MinScore: 0.5}, nil)

	result, err := engine.Answer(context.Background(), "how is the battery life?", 3)
	require.NoError(t, err)

	assert.Equal(t, "The battery life is praised.", result.Answer)
	require.Equal(t, 2, result.NumSources)
	// Both battery reviews score 1.0; ascending position breaks the tie.
	assert.Equal(t, "A", result.Sources[0].Metadata.ReviewID)
	assert.Equal(t, "D", result.Sources[1].Metadata.ReviewID)
	assert.Equal(t, 1, gen.calls)
}

func TestAnswerSourceSetIsDeterministic(t *testing.T) {
	engine := NewEngine(testHolder(t), axisEmbedder{}, &stubGenerator{reply: "ok"}, Options{MinScore: 0.5}, nil)

	first, err := engine.Answer(context.Background(), "battery?", 3)
	require.NoError(t, err)
	second, err := engine.Answer(context.Background(), "battery?", 3)
	require.NoError(t, err)
	assert.Equal(t, first.Sources, second.Sources)
}

func TestAnswerEvidenceGap(t *testing.T) {
	engine := NewEngine(testHolder(t), axisEmbedder{}, &stubGenerator{reply: "ok"}, Options{MinScore: 0.99}, nil)

	_, err := engine.Answer(context.Background(), "does it come in blue?", 3)
	require.Error(t, err)
	assert.Equal(t, core.KindEvidenceGap, core.KindOf(err))
	assert.ErrorIs(t, err, core.ErrNoEvidence)
}

func TestAnswerGeneratorFailureIsUpstream(t *testing.T) {
	gen := &stubGenerator{err: errors.New("model overloaded")}
	engine := NewEngine(testHolder(t), axisEmbedder{}, gen, Options{MinScore: 0.5}, nil)

	_, err := engine.Answer(context.Background(), "battery?", 3)
	require.Error(t, err)
	assert.Equal(t, core.KindUpstream, core.KindOf(err))
}

func TestAnswerRejectsEmptyQuestion(t *testing.T) {
	engine := NewEngine(testHolder(t), axisEmbedder{}, &stubGenerator{}, Options{}, nil)

	_, err := engine.Answer(context.Background(), "", 3)
	require.Error(t, err)
	assert.Equal(t, core.KindInput, core.KindOf(err))
	assert.ErrorIs(t, err, core.ErrEmptyQuestion)
}

func TestAnswerWithoutSnapshot(t *testing.T) {
	holder := embedding.NewSnapshotHolder(nil)
	engine := NewEngine(holder, axisEmbedder{}, &stubGenerator{}, Options{}, nil)

	_, err := engine.Answer(context.Background(), "battery?", 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrSnapshotNotReady)
}

func TestSimilarReviewsSkipsGeneration(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	engine := NewEngine(testHolder(t), axisEmbedder{}, gen, Options{MinScore: 0.5}, nil)

	sources, err := engine.SimilarReviews(context.Background(), "torque", 2)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "C", sources[0].Metadata.ReviewID)
	assert.Zero(t, gen.calls)
}

func TestTruncateContextProportional(t *testing.T) {
	sources := []Source{
		{Content: strings.Repeat("a", 100)},
		{Content: strings.Repeat("b", 100)},
		{Content: strings.Repeat("c", 100)},
	}

	out := truncateContext(sources, 100)
	// 100/3 = 33 each, remainder 1 to the first snippet.
	assert.Len(t, out[0].Content, 34)
	assert.Len(t, out[1].Content, 33)
	assert.Len(t, out[2].Content, 33)

	again := truncateContext(sources, 100)
	assert.Equal(t, out, again)
}

func TestAnswerTruncatesLongQuestionAtRuneBoundary(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	engine := NewEngine(testHolder(t), axisEmbedder{}, gen, Options{MinScore: 0.5, MaxQuestionChars: 10}, nil)

	// 7 ASCII bytes plus two 2-byte runes; the 10-byte cap lands inside
	// the second rune.
	_, err := engine.Answer(context.Background(), "batteryéé", 3)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(gen.lastUser))
	assert.Contains(t, gen.lastUser, "batteryé")
	assert.NotContains(t, gen.lastUser, "batteryéé")
}

func TestTruncateContextKeepsRuneBoundaries(t *testing.T) {
	sources := []Source{{Content: strings.Repeat("é", 60)}}

	out := truncateContext(sources, 99)
	assert.True(t, utf8.ValidString(out[0].Content))
	assert.Len(t, out[0].Content, 98)
}

func TestCutRunes(t *testing.T) {
	assert.Equal(t, "abc", cutRunes("abc", 10))
	assert.Equal(t, "ab", cutRunes("abc", 2))
	assert.Equal(t, "é", cutRunes("éé", 3))
	assert.Equal(t, "", cutRunes("é", 1))
}

func TestTruncateContextLeavesShortContextAlone(t *testing.T) {
	sources := []Source{{Content: "short"}, {Content: "also short"}}
	out := truncateContext(sources, 1000)
	assert.Equal(t, sources, out)
}

func TestStatsReflectsSnapshot(t *testing.T) {
	engine := NewEngine(testHolder(t), axisEmbedder{}, &stubGenerator{}, Options{}, nil)

	stats, err := engine.Stats()
	require.NoError(t, err)
	assert.Equal(t, "test-build", stats.BuildID)
	assert.Equal(t, 4, stats.NumReviews)
	assert.Equal(t, vector.TypeFlat, stats.IndexType)
}
