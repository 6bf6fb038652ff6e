package llm

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tfidfCorpus = []string{
	"great battery life on this drill",
	"battery died after two weeks",
	"solid build quality and great torque",
	"the charger stopped working",
}

func TestTFIDFEmbedderDeterministic(t *testing.T) {
	e1 := NewTFIDFEmbedder()
	require.NoError(t, e1.Fit(tfidfCorpus))
	e2 := NewTFIDFEmbedder()
	require.NoError(t, e2.Fit(tfidfCorpus))

	v1, err := e1.Embed(context.Background(), TFIDFModelID, "battery life")
	require.NoError(t, err)
	v2, err := e2.Embed(context.Background(), TFIDFModelID, "battery life")
	require.NoError(t, err)

	assert.Equal(t, v1.Embedding, v2.Embedding)
	assert.Equal(t, e1.Dimension(), e2.Dimension())
}

func TestTFIDFEmbedderNormalized(t *testing.T) {
	e := NewTFIDFEmbedder()
	require.NoError(t, e.Fit(tfidfCorpus))

	resp, err := e.Embed(context.Background(), TFIDFModelID, "great battery")
	require.NoError(t, err)

	var norm float64
	for _, v := range resp.Embedding {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestTFIDFEmbedderBatchMatchesSingle(t *testing.T) {
	e := NewTFIDFEmbedder()
	require.NoError(t, e.Fit(tfidfCorpus))

	ctx := context.Background()
	batch, err := e.EmbedBatch(ctx, TFIDFModelID, []string{"battery life", "torque"})
	require.NoError(t, err)
	require.Len(t, batch, 2)

	single, err := e.Embed(ctx, TFIDFModelID, "torque")
	require.NoError(t, err)
	assert.Equal(t, single.Embedding, batch[1].Embedding)
}

func TestTFIDFEmbedderUnknownTermsYieldZeroVector(t *testing.T) {
	e := NewTFIDFEmbedder()
	require.NoError(t, e.Fit(tfidfCorpus))

	resp, err := e.Embed(context.Background(), TFIDFModelID, "zzz qqq")
	require.NoError(t, err)
	for _, v := range resp.Embedding {
		assert.Zero(t, v)
	}
}

func TestTFIDFEmbedderSaveLoadRoundTrip(t *testing.T) {
	e := NewTFIDFEmbedder()
	require.NoError(t, e.Fit(tfidfCorpus))

	var buf bytes.Buffer
	require.NoError(t, e.Save(&buf))

	loaded, err := LoadTFIDFEmbedder(&buf)
	require.NoError(t, err)
	assert.Equal(t, e.Dimension(), loaded.Dimension())

	ctx := context.Background()
	v1, err := e.Embed(ctx, TFIDFModelID, "battery life")
	require.NoError(t, err)
	v2, err := loaded.Embed(ctx, TFIDFModelID, "battery life")
	require.NoError(t, err)
	assert.Equal(t, v1.Embedding, v2.Embedding)
}

func TestTFIDFEmbedderRejectsUnfittedUse(t *testing.T) {
	e := NewTFIDFEmbedder()
	_, err := e.Embed(context.Background(), TFIDFModelID, "anything")
	assert.Error(t, err)
	assert.Error(t, e.Fit(nil))
}
