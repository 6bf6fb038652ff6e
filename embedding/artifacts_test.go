package embedding

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/go-reviewrag/core"
	"github.com/hubenschmidt/go-reviewrag/vector"
)

func buildTestSnapshot(t *testing.T, indexType vector.Type) *Snapshot {
	t.Helper()
	b := NewBuilder(newFakeEmbedder(8), BuilderOptions{Model: "fake", IndexType: indexType}, nil)
	snap, err := b.Build(context.Background(), buildRecords(12))
	require.NoError(t, err)
	return snap
}

func TestArtifactsRoundTripFlat(t *testing.T) {
	dir := t.TempDir()
	snap := buildTestSnapshot(t, vector.TypeFlat)
	require.NoError(t, Save(dir, snap))

	loaded, err := Load(dir, LoadOptions{ExpectModel: "fake"})
	require.NoError(t, err)

	assert.Equal(t, snap.BuildID, loaded.BuildID)
	assert.Equal(t, snap.Dimension, loaded.Dimension)
	assert.Equal(t, snap.Vectors, loaded.Vectors)
	assert.Equal(t, snap.Metadata, loaded.Metadata)

	// Same query, same hits, before and after persistence.
	query := snap.Vectors[3]
	want, err := snap.Index.Search(context.Background(), query, 5)
	require.NoError(t, err)
	got, err := loaded.Index.Search(context.Background(), query, 5)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestArtifactsRoundTripHNSW(t *testing.T) {
	dir := t.TempDir()
	snap := buildTestSnapshot(t, vector.TypeHNSW)
	require.NoError(t, Save(dir, snap))
	require.FileExists(t, filepath.Join(dir, IndexFile))

	loaded, err := Load(dir, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, vector.TypeHNSW, loaded.IndexType)
	assert.Equal(t, snap.Len(), loaded.Index.Len())

	hits, err := loaded.Index.Search(context.Background(), snap.Vectors[0], 1)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, 0, hits[0].Pos)
}

func TestLoadPgVectorNeedsDSN(t *testing.T) {
	dir := t.TempDir()
	snap := buildTestSnapshot(t, vector.TypeFlat)
	snap.IndexType = vector.TypePgVector
	require.NoError(t, Save(dir, snap))

	_, err := Load(dir, LoadOptions{})
	require.Error(t, err)
	assert.Equal(t, core.KindConfig, core.KindOf(err))
	assert.Contains(t, err.Error(), "dsn")
	assert.NotContains(t, err.Error(), "unsupported")
}

func TestLoadRejectsModelMismatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Save(dir, buildTestSnapshot(t, vector.TypeFlat)))

	_, err := Load(dir, LoadOptions{ExpectModel: "other-model"})
	require.Error(t, err)
	assert.Equal(t, core.KindConfig, core.KindOf(err))
}

func TestLoadRejectsRowCountMismatch(t *testing.T) {
	dir := t.TempDir()
	snap := buildTestSnapshot(t, vector.TypeFlat)
	require.NoError(t, Save(dir, snap))

	// Drop one metadata row so the trio disagrees.
	truncated, err := json.Marshal(snap.Metadata[:len(snap.Metadata)-1])
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, MetadataFile), truncated, 0o644))

	_, err = Load(dir, LoadOptions{})
	require.Error(t, err)
	assert.Equal(t, core.KindConfig, core.KindOf(err))
}

func TestLoadRejectsCorruptVectorsFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Save(dir, buildTestSnapshot(t, vector.TypeFlat)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, VectorsFile), []byte("not a vectors file"), 0o644))

	_, err := Load(dir, LoadOptions{})
	require.Error(t, err)
	assert.Equal(t, core.KindConfig, core.KindOf(err))
}
