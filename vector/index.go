// Package vector provides nearest-neighbor indices over review embeddings.
//
// Every index implementation shares the positional contract: vectors are
// added in metadata-array order and hits report the position of the matched
// vector, which is also the index of its metadata record. Vectors are
// expected to be L2-normalized, so inner product equals cosine similarity.
package vector

import "context"

// Hit is a single nearest-neighbor result. Pos addresses both the vector
// array and the metadata array.
type Hit struct {
	Pos   int     `json:"pos"`
	Score float32 `json:"score"`
}

// Index supports approximate or exact nearest-neighbor queries. Results are
// ordered by descending score, ties broken by ascending position so repeated
// queries return identical hit lists.
type Index interface {
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	Len() int
	Dimension() int
}

// Type names an index implementation in configuration.
type Type string

const (
	TypeFlat     Type = "flat"
	TypeHNSW     Type = "approximate"
	TypePgVector Type = "pgvector"
)
