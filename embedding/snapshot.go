// Package embedding turns sampled review records into an immutable snapshot
// of vectors, metadata, and a search index, and persists that snapshot as a
// set of artifacts that serving loads at startup.
package embedding

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hubenschmidt/go-reviewrag/core"
	"github.com/hubenschmidt/go-reviewrag/vector"
)

// Snapshot is one complete build of the corpus. Vectors, Metadata, and the
// Index rows are parallel: position i in each refers to the same review.
// A snapshot is never mutated after construction; readers may hold it across
// a reload.
type Snapshot struct {
	BuildID   string
	Model     string
	Dimension int
	IndexType vector.Type
	Index     vector.Index
	Vectors   [][]float32
	Metadata  []core.Metadata
	Skipped   int
	CreatedAt time.Time
}

// Len returns the number of indexed reviews.
func (s *Snapshot) Len() int { return len(s.Metadata) }

// SnapshotHolder publishes the current snapshot to concurrent readers and
// swaps in replacements atomically. Requests in flight keep the snapshot
// they started with.
type SnapshotHolder struct {
	current atomic.Pointer[Snapshot]
}

// NewSnapshotHolder creates a holder, optionally seeded with a snapshot.
func NewSnapshotHolder(initial *Snapshot) *SnapshotHolder {
	h := &SnapshotHolder{}
	if initial != nil {
		h.current.Store(initial)
	}
	return h
}

// Current returns the published snapshot, or ErrSnapshotNotReady before the
// first successful build or load.
func (h *SnapshotHolder) Current() (*Snapshot, error) {
	snap := h.current.Load()
	if snap == nil {
		return nil, core.E(core.KindConfig, "snapshot.Current", core.ErrSnapshotNotReady)
	}
	return snap, nil
}

// Swap publishes a new snapshot and returns the previous one, if any.
func (h *SnapshotHolder) Swap(snap *Snapshot) *Snapshot {
	return h.current.Swap(snap)
}

// Reload runs the supplied build or load function and publishes its result.
// The old snapshot stays current if the function fails.
func (h *SnapshotHolder) Reload(ctx context.Context, fn func(context.Context) (*Snapshot, error)) (*Snapshot, error) {
	snap, err := fn(ctx)
	if err != nil {
		return nil, err
	}
	h.current.Store(snap)
	return snap, nil
}
