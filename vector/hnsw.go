package vector

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/coder/hnsw"
)

// HNSWOptions exposes the accuracy/speed knobs of the approximate index.
type HNSWOptions struct {
	M        int // graph connectivity; higher = better recall, more memory
	EfSearch int // candidates explored per query; higher = better recall, slower
}

// DefaultHNSWOptions matches the defaults used for the shipped indices.
func DefaultHNSWOptions() HNSWOptions {
	return HNSWOptions{M: 16, EfSearch: 50}
}

// HNSW is a graph-based approximate index. It keeps the positional contract
// by using the vector position as the graph key, and rescores hits with the
// exact inner product so ordering and tie-breaks stay deterministic even
// when graph traversal order is not.
type HNSW struct {
	graph     *hnsw.Graph[int]
	vectors   [][]float32
	dimension int
}

// NewHNSW creates an empty approximate index.
func NewHNSW(dimension int, opts HNSWOptions) *HNSW {
	g := hnsw.NewGraph[int]()
	g.Distance = hnsw.CosineDistance
	if opts.M > 0 {
		g.M = opts.M
	}
	if opts.EfSearch > 0 {
		g.EfSearch = opts.EfSearch
	}
	return &HNSW{graph: g, dimension: dimension}
}

// Add appends vectors in position order.
func (h *HNSW) Add(vectors ...[]float32) error {
	for _, v := range vectors {
		if len(v) != h.dimension {
			return fmt.Errorf("vector dimension %d, index dimension %d", len(v), h.dimension)
		}
		h.graph.Add(hnsw.MakeNode(len(h.vectors), v))
		h.vectors = append(h.vectors, v)
	}
	return nil
}

// Search returns up to k approximate neighbors, rescored exactly and ordered
// by descending score with ascending-position tie-break.
func (h *HNSW) Search(_ context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != h.dimension {
		return nil, fmt.Errorf("query dimension %d, index dimension %d", len(query), h.dimension)
	}
	if k <= 0 || len(h.vectors) == 0 {
		return nil, nil
	}

	nodes := h.graph.Search(query, k)

	hits := make([]Hit, 0, len(nodes))
	for _, n := range nodes {
		hits = append(hits, Hit{Pos: n.Key, Score: Dot(query, h.vectors[n.Key])})
	}
	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].Pos < hits[b].Pos
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func (h *HNSW) Len() int       { return len(h.vectors) }
func (h *HNSW) Dimension() int { return h.dimension }

// Export serializes the graph so a rebuild can skip re-inserting vectors.
func (h *HNSW) Export(w io.Writer) error {
	return h.graph.Export(w)
}

// ImportHNSW restores a graph exported with Export. The vectors must be the
// same ones the graph was built from, in the same order.
func ImportHNSW(r io.Reader, vectors [][]float32, dimension int, opts HNSWOptions) (*HNSW, error) {
	h := NewHNSW(dimension, opts)
	if err := h.graph.Import(bufio.NewReader(r)); err != nil {
		return nil, fmt.Errorf("import hnsw graph: %w", err)
	}
	h.vectors = vectors
	return h, nil
}
