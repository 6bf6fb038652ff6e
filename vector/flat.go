package vector

import (
	"context"
	"fmt"
	"sort"
)

// Flat is an exact brute-force index. Search cost is linear in the corpus
// size, which is fine up to a few hundred thousand vectors; beyond that the
// approximate index trades recall for latency.
type Flat struct {
	dimension int
	vectors   [][]float32
}

// NewFlat creates an empty exact index for vectors of the given dimension.
func NewFlat(dimension int) *Flat {
	return &Flat{dimension: dimension}
}

// Add appends vectors in position order. The caller owns the ordering
// contract with the metadata array.
func (f *Flat) Add(vectors ...[]float32) error {
	for _, v := range vectors {
		if len(v) != f.dimension {
			return fmt.Errorf("vector dimension %d, index dimension %d", len(v), f.dimension)
		}
		f.vectors = append(f.vectors, v)
	}
	return nil
}

// Search scans every vector and returns the k best by inner product,
// descending, ties broken by ascending position.
func (f *Flat) Search(_ context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != f.dimension {
		return nil, fmt.Errorf("query dimension %d, index dimension %d", len(query), f.dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	hits := make([]Hit, len(f.vectors))
	for i, v := range f.vectors {
		hits[i] = Hit{Pos: i, Score: Dot(query, v)}
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

func (f *Flat) Len() int       { return len(f.vectors) }
func (f *Flat) Dimension() int { return f.dimension }
