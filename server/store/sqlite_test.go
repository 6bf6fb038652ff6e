package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteTraceRoundTrip(t *testing.T) {
	traces, builds, err := NewSQLiteStores(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer traces.Close()

	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, traces.Add(ctx, TraceInfo{
		TraceID: "t1", Operation: "ask", Timestamp: base,
		Input: "battery?", Status: "ok", ElapsedMs: 42, NumSources: 3, BuildID: "b1",
	}))
	require.NoError(t, traces.Add(ctx, TraceInfo{
		TraceID: "t2", Operation: "recommend", Timestamp: base.Add(time.Minute),
		Status: "ok", BuildID: "b1",
	}))

	got, err := traces.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Newest first.
	assert.Equal(t, "t2", got[0].TraceID)
	assert.Equal(t, "t1", got[1].TraceID)
	assert.Equal(t, int64(42), got[1].ElapsedMs)

	got, err = traces.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, builds.Add(ctx, BuildInfo{
		BuildID: "b1", Timestamp: base, Rows: 100, Skipped: 2,
		Model: "tfidf", IndexType: "flat", Mode: "stratified_sample",
	}))
	gotBuilds, err := builds.List(ctx)
	require.NoError(t, err)
	require.Len(t, gotBuilds, 1)
	assert.Equal(t, 100, gotBuilds[0].Rows)
}

func TestMemoryStoresOrdering(t *testing.T) {
	traces := NewMemoryTraceStore()
	ctx := context.Background()
	require.NoError(t, traces.Add(ctx, TraceInfo{TraceID: "t1"}))
	require.NoError(t, traces.Add(ctx, TraceInfo{TraceID: "t2"}))

	got, err := traces.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t2", got[0].TraceID)
}
