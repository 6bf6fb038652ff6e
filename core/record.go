// Package core defines the domain types and error taxonomy shared by every
// subsystem: review records, the parallel-array metadata entries that back the
// vector index, and derived product aggregates.
package core

// ReviewRecord is a raw product review as delivered by the ingestion boundary.
// Records are immutable once normalized.
type ReviewRecord struct {
	ReviewID     string `json:"review_id"`
	ProductID    string `json:"product_id"`
	ProductTitle string `json:"product_title"`
	Category     string `json:"category"`
	StarRating   int    `json:"star_rating"`
	Verified     bool   `json:"verified"`
	Title        string `json:"title"`
	Text         string `json:"text"`
}

// NormalizedRecord is a ReviewRecord that survived cleaning and filtering.
// CleanText preserves original casing for display; MatchText is the
// lower-cased form used for matching and embedding.
type NormalizedRecord struct {
	ReviewRecord
	CleanText  string `json:"clean_text"`
	MatchText  string `json:"match_text"`
	TextLength int    `json:"text_length"`
	TokenCount int    `json:"token_count"`
}

// StratumKey partitions normalized records for sampling. Every record maps to
// exactly one stratum.
type StratumKey struct {
	Category string `json:"category"`
	Rating   int    `json:"rating"`
}

// Metadata is the parallel-array entry stored alongside each embedding
// vector. Index i of the metadata array always describes the text that
// produced vector i; reordering one without the other corrupts retrieval.
type Metadata struct {
	ReviewID     string `json:"review_id"`
	ProductID    string `json:"product_id"`
	ProductTitle string `json:"product_title"`
	Category     string `json:"category"`
	StarRating   int    `json:"star_rating"`
	Snippet      string `json:"snippet"`
}

// ProductAggregate is a query-scoped view over all metadata entries sharing a
// product ID. It is derived from a snapshot, never persisted.
type ProductAggregate struct {
	ProductID     string  `json:"product_id"`
	ProductTitle  string  `json:"product_title"`
	Category      string  `json:"category"`
	AverageRating float64 `json:"average_rating"`
	ReviewCount   int     `json:"review_count"`

	// Positions of this product's reviews in the metadata array.
	Positions []int `json:"-"`
}
