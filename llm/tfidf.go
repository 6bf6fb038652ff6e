package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"regexp"
	"sort"
	"strings"
)

// TFIDFModelID is the embedding_model_id that selects the local embedder.
const TFIDFModelID = "tfidf"

var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

// TFIDFEmbedder is a local, deterministic embedder. It needs no external
// service, which makes it the default for tests and offline builds. The
// vocabulary is fixed at Fit time and must be persisted with the index so
// query-time vectors live in the same space as build-time vectors.
type TFIDFEmbedder struct {
	vocabulary map[string]int
	idf        []float32
	dimension  int
	fitted     bool
}

// NewTFIDFEmbedder creates an unfitted TF-IDF embedder.
func NewTFIDFEmbedder() *TFIDFEmbedder {
	return &TFIDFEmbedder{vocabulary: make(map[string]int)}
}

// Fit builds the vocabulary and smoothed IDF values from the corpus. Terms
// are ordered lexicographically so the same corpus always yields the same
// vector space.
func (e *TFIDFEmbedder) Fit(corpus []string) error {
	if len(corpus) == 0 {
		return fmt.Errorf("empty corpus")
	}

	df := make(map[string]int)
	for _, text := range corpus {
		seen := make(map[string]struct{})
		for _, tok := range tokenize(text) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	if len(terms) == 0 {
		return fmt.Errorf("no tokens found in corpus")
	}

	e.vocabulary = make(map[string]int, len(terms))
	e.idf = make([]float32, len(terms))
	n := float64(len(corpus))
	for i, term := range terms {
		e.vocabulary[term] = i
		e.idf[i] = float32(math.Log((1+n)/(1+float64(df[term]))) + 1)
	}
	e.dimension = len(terms)
	e.fitted = true
	return nil
}

// Dimension returns the vector dimensionality, 0 before Fit.
func (e *TFIDFEmbedder) Dimension() int { return e.dimension }

// Embed computes the L2-normalized TF-IDF vector for the input. The model
// argument is accepted for interface compatibility and ignored.
func (e *TFIDFEmbedder) Embed(_ context.Context, _ string, input string) (*EmbeddingResponse, error) {
	if !e.fitted {
		return nil, fmt.Errorf("tfidf embedder not fitted")
	}

	vec := make([]float32, e.dimension)
	tf := make(map[int]int)
	total := 0
	for _, tok := range tokenize(input) {
		if idx, ok := e.vocabulary[tok]; ok {
			tf[idx]++
			total++
		}
	}
	if total == 0 {
		return &EmbeddingResponse{Embedding: vec}, nil
	}

	var norm float64
	for idx, count := range tf {
		v := float32(count) / float32(total) * e.idf[idx]
		vec[idx] = v
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for idx := range tf {
			vec[idx] *= inv
		}
	}

	return &EmbeddingResponse{Embedding: vec, TokenCount: total}, nil
}

// EmbedBatch embeds each input independently; batch boundaries cannot affect
// the produced vectors.
func (e *TFIDFEmbedder) EmbedBatch(ctx context.Context, model string, inputs []string) ([]EmbeddingResponse, error) {
	results := make([]EmbeddingResponse, len(inputs))
	for i, input := range inputs {
		resp, err := e.Embed(ctx, model, input)
		if err != nil {
			return nil, err
		}
		results[i] = *resp
	}
	return results, nil
}

type tfidfState struct {
	Terms []string  `json:"terms"`
	IDF   []float32 `json:"idf"`
}

// Save writes the fitted vocabulary so that a later process can embed
// queries in the same vector space.
func (e *TFIDFEmbedder) Save(w io.Writer) error {
	if !e.fitted {
		return fmt.Errorf("tfidf embedder not fitted")
	}

	state := tfidfState{Terms: make([]string, e.dimension), IDF: e.idf}
	for term, idx := range e.vocabulary {
		state.Terms[idx] = term
	}
	return json.NewEncoder(w).Encode(state)
}

// LoadTFIDFEmbedder restores an embedder persisted with Save.
func LoadTFIDFEmbedder(r io.Reader) (*TFIDFEmbedder, error) {
	var state tfidfState
	if err := json.NewDecoder(r).Decode(&state); err != nil {
		return nil, fmt.Errorf("decode tfidf state: %w", err)
	}
	if len(state.Terms) != len(state.IDF) {
		return nil, fmt.Errorf("tfidf state mismatch: %d terms, %d idf values", len(state.Terms), len(state.IDF))
	}

	e := &TFIDFEmbedder{
		vocabulary: make(map[string]int, len(state.Terms)),
		idf:        state.IDF,
		dimension:  len(state.Terms),
		fitted:     true,
	}
	for i, term := range state.Terms {
		e.vocabulary[term] = i
	}
	return e, nil
}

func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}
