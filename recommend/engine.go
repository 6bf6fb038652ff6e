// Package recommend ranks products by aggregating review-level similarity
// into product-level scores. Rationale text is assembled from the ranked
// snippets themselves, never from a second model call, so identical inputs
// always produce identical output.
package recommend

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/hubenschmidt/go-reviewrag/core"
	"github.com/hubenschmidt/go-reviewrag/embedding"
	"github.com/hubenschmidt/go-reviewrag/llm"
	"github.com/hubenschmidt/go-reviewrag/vector"
)

// Mode selects the recommendation strategy.
type Mode string

const (
	ModeTextQuery      Mode = "text_query"
	ModeProductSimilar Mode = "product_similar"
	ModeCategoryTop    Mode = "category_top"
)

// Query is a tagged request. Exactly one of Text, ProductID, or Category is
// consulted depending on Mode. MinSimilarity is a pointer so an explicit
// floor of 0 is distinguishable from an omitted field.
type Query struct {
	Mode          Mode     `json:"mode"`
	Text          string   `json:"query,omitempty"`
	ProductID     string   `json:"product_id,omitempty"`
	Category      string   `json:"category,omitempty"`
	TopK          int      `json:"top_k,omitempty"`
	MinSimilarity *float32 `json:"min_similarity,omitempty"`
}

// Product is one ranked recommendation.
type Product struct {
	ProductID      string   `json:"product_id"`
	ProductTitle   string   `json:"product_title"`
	Category       string   `json:"category"`
	AverageRating  float64  `json:"average_rating"`
	NumReviews     int      `json:"num_reviews"`
	Similarity     float32  `json:"similarity_score"`
	Rationale      string   `json:"rationale"`
	ReviewSnippets []string `json:"review_snippets"`
}

// Options holds serving defaults applied when a query leaves them zero.
type Options struct {
	TopK          int
	MinSimilarity float32
	SnippetCount  int
}

// DefaultOptions returns the serving defaults.
func DefaultOptions() Options {
	return Options{TopK: 5, MinSimilarity: 0.1, SnippetCount: 3}
}

// Engine answers recommendation queries against the current snapshot.
// Product aggregates are derived once per snapshot and reused until the
// snapshot is swapped.
type Engine struct {
	holder   *embedding.SnapshotHolder
	embedder llm.EmbeddingClient
	opts     Options
	logger   *zap.Logger

	mu         sync.Mutex
	aggSnap    *embedding.Snapshot
	aggregates map[string]*core.ProductAggregate
}

// NewEngine creates an engine. Zero option fields fall back to defaults.
func NewEngine(holder *embedding.SnapshotHolder, embedder llm.EmbeddingClient, opts Options, logger *zap.Logger) *Engine {
	def := DefaultOptions()
	if opts.TopK <= 0 {
		opts.TopK = def.TopK
	}
	if opts.MinSimilarity <= 0 {
		opts.MinSimilarity = def.MinSimilarity
	}
	if opts.SnippetCount <= 0 {
		opts.SnippetCount = def.SnippetCount
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{holder: holder, embedder: embedder, opts: opts, logger: logger}
}

// Recommend dispatches the query to its strategy. The result never exceeds
// TopK entries; fewer are returned when fewer qualify.
func (e *Engine) Recommend(ctx context.Context, q Query) ([]Product, error) {
	const op = "recommend.Recommend"

	snap, err := e.holder.Current()
	if err != nil {
		return nil, err
	}
	if q.TopK <= 0 {
		q.TopK = e.opts.TopK
	}
	floor := e.opts.MinSimilarity
	if q.MinSimilarity != nil {
		floor = *q.MinSimilarity
	}

	aggregates := e.aggregatesFor(snap)

	switch q.Mode {
	case ModeTextQuery:
		if q.Text == "" {
			return nil, core.E(core.KindInput, op, core.ErrEmptyQuery)
		}
		return e.byText(ctx, snap, aggregates, q, floor)
	case ModeProductSimilar:
		if q.ProductID == "" {
			return nil, core.E(core.KindInput, op, core.ErrUnknownProduct)
		}
		return e.byProduct(ctx, snap, aggregates, q, floor)
	case ModeCategoryTop:
		if q.Category == "" {
			return nil, core.E(core.KindInput, op, core.ErrUnknownCategory)
		}
		return e.byCategory(snap, aggregates, q)
	default:
		return nil, core.Errorf(core.KindInput, op, "%q: %w", q.Mode, core.ErrUnknownMode)
	}
}

// Stats reports the number of distinct products in the current snapshot.
type Stats struct {
	BuildID     string `json:"build_id"`
	NumProducts int    `json:"num_products"`
	NumReviews  int    `json:"num_reviews"`
}

func (e *Engine) Stats() (*Stats, error) {
	snap, err := e.holder.Current()
	if err != nil {
		return nil, err
	}
	return &Stats{
		BuildID:     snap.BuildID,
		NumProducts: len(e.aggregatesFor(snap)),
		NumReviews:  snap.Len(),
	}, nil
}

// CategoryInfo summarizes one category's coverage in the corpus.
type CategoryInfo struct {
	Category    string `json:"category"`
	NumProducts int    `json:"num_products"`
	NumReviews  int    `json:"num_reviews"`
}

// Categories lists the categories present in the current snapshot with
// product and review counts, sorted by category name.
func (e *Engine) Categories() ([]CategoryInfo, error) {
	snap, err := e.holder.Current()
	if err != nil {
		return nil, err
	}

	byCategory := make(map[string]*CategoryInfo)
	for _, agg := range e.aggregatesFor(snap) {
		info, ok := byCategory[agg.Category]
		if !ok {
			info = &CategoryInfo{Category: agg.Category}
			byCategory[agg.Category] = info
		}
		info.NumProducts++
		info.NumReviews += agg.ReviewCount
	}

	out := make([]CategoryInfo, 0, len(byCategory))
	for _, info := range byCategory {
		out = append(out, *info)
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].Category < out[b].Category
	})
	return out, nil
}

// byText scores every review against the query embedding and keeps each
// product's best review score. A single spot-on review should surface its
// product even when the product's other reviews are off topic.
func (e *Engine) byText(ctx context.Context, snap *embedding.Snapshot, aggregates map[string]*core.ProductAggregate, q Query, floor float32) ([]Product, error) {
	resp, err := e.embedder.Embed(ctx, snap.Model, q.Text)
	if err != nil {
		return nil, core.E(core.KindUpstream, "recommend.byText", err)
	}
	queryVec := vector.Normalize(resp.Embedding)

	return e.rankBySimilarity(snap, aggregates, queryVec, q.TopK, floor, ""), nil
}

// byProduct uses the centroid of the seed product's review vectors as the
// query and excludes the seed itself from the results.
func (e *Engine) byProduct(_ context.Context, snap *embedding.Snapshot, aggregates map[string]*core.ProductAggregate, q Query, floor float32) ([]Product, error) {
	seed, ok := aggregates[q.ProductID]
	if !ok {
		return nil, core.Errorf(core.KindInput, "recommend.byProduct", "%q: %w", q.ProductID, core.ErrUnknownProduct)
	}

	centroid := make([]float32, snap.Dimension)
	for _, pos := range seed.Positions {
		for i, x := range snap.Vectors[pos] {
			centroid[i] += x
		}
	}
	centroid = vector.Normalize(centroid)

	return e.rankBySimilarity(snap, aggregates, centroid, q.TopK, floor, q.ProductID), nil
}

// byCategory ranks a category's products by review statistics alone:
// average rating descending, then review count descending, then product ID
// ascending.
func (e *Engine) byCategory(snap *embedding.Snapshot, aggregates map[string]*core.ProductAggregate, q Query) ([]Product, error) {
	var candidates []*core.ProductAggregate
	for _, agg := range aggregates {
		if agg.Category == q.Category {
			candidates = append(candidates, agg)
		}
	}
	if len(candidates) == 0 {
		return nil, core.Errorf(core.KindInput, "recommend.byCategory", "%q: %w", q.Category, core.ErrUnknownCategory)
	}

	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].AverageRating != candidates[b].AverageRating {
			return candidates[a].AverageRating > candidates[b].AverageRating
		}
		if candidates[a].ReviewCount != candidates[b].ReviewCount {
			return candidates[a].ReviewCount > candidates[b].ReviewCount
		}
		return candidates[a].ProductID < candidates[b].ProductID
	})
	if len(candidates) > q.TopK {
		candidates = candidates[:q.TopK]
	}

	products := make([]Product, 0, len(candidates))
	for _, agg := range candidates {
		snippets := topSnippetsByRating(snap, agg.Positions, e.opts.SnippetCount)
		products = append(products, Product{
			ProductID:      agg.ProductID,
			ProductTitle:   agg.ProductTitle,
			Category:       agg.Category,
			AverageRating:  agg.AverageRating,
			NumReviews:     agg.ReviewCount,
			Rationale:      categoryRationale(agg),
			ReviewSnippets: snippets,
		})
	}
	return products, nil
}

// scoredProduct tracks a product's best review match during a similarity
// scan.
type scoredProduct struct {
	agg   *core.ProductAggregate
	score float32
	hits  []vector.Hit // contributing reviews, later sorted by score
}

// rankBySimilarity is the shared scan for the text and product modes.
func (e *Engine) rankBySimilarity(snap *embedding.Snapshot, aggregates map[string]*core.ProductAggregate, queryVec []float32, topK int, floor float32, excludeProductID string) []Product {
	scored := make(map[string]*scoredProduct)
	for pos, v := range snap.Vectors {
		meta := snap.Metadata[pos]
		if meta.ProductID == excludeProductID {
			continue
		}
		score := vector.Dot(queryVec, v)
		sp, ok := scored[meta.ProductID]
		if !ok {
			sp = &scoredProduct{agg: aggregates[meta.ProductID]}
			scored[meta.ProductID] = sp
		}
		if score > sp.score || len(sp.hits) == 0 {
			sp.score = score
		}
		sp.hits = append(sp.hits, vector.Hit{Pos: pos, Score: score})
	}

	ranked := make([]*scoredProduct, 0, len(scored))
	for _, sp := range scored {
		if sp.score >= floor {
			ranked = append(ranked, sp)
		}
	}
	sort.Slice(ranked, func(a, b int) bool {
		if ranked[a].score != ranked[b].score {
			return ranked[a].score > ranked[b].score
		}
		return ranked[a].agg.ProductID < ranked[b].agg.ProductID
	})
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	products := make([]Product, 0, len(ranked))
	for _, sp := range ranked {
		sort.SliceStable(sp.hits, func(a, b int) bool {
			if sp.hits[a].Score != sp.hits[b].Score {
				return sp.hits[a].Score > sp.hits[b].Score
			}
			return sp.hits[a].Pos < sp.hits[b].Pos
		})
		snippets := make([]string, 0, e.opts.SnippetCount)
		for _, h := range sp.hits {
			if len(snippets) == e.opts.SnippetCount {
				break
			}
			snippets = append(snippets, snap.Metadata[h.Pos].Snippet)
		}
		products = append(products, Product{
			ProductID:      sp.agg.ProductID,
			ProductTitle:   sp.agg.ProductTitle,
			Category:       sp.agg.Category,
			AverageRating:  sp.agg.AverageRating,
			NumReviews:     sp.agg.ReviewCount,
			Similarity:     sp.score,
			Rationale:      similarityRationale(sp.score, sp.agg, positiveThemes(snap, sp.agg.Positions, 3)),
			ReviewSnippets: snippets,
		})
	}
	return products
}

// aggregatesFor returns the per-product view for snap, computing it on first
// use and reusing it until the snapshot changes.
func (e *Engine) aggregatesFor(snap *embedding.Snapshot) map[string]*core.ProductAggregate {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.aggSnap == snap {
		return e.aggregates
	}

	aggregates := make(map[string]*core.ProductAggregate)
	for pos, meta := range snap.Metadata {
		agg, ok := aggregates[meta.ProductID]
		if !ok {
			agg = &core.ProductAggregate{
				ProductID:    meta.ProductID,
				ProductTitle: meta.ProductTitle,
				Category:     meta.Category,
			}
			aggregates[meta.ProductID] = agg
		}
		agg.AverageRating += float64(meta.StarRating)
		agg.ReviewCount++
		agg.Positions = append(agg.Positions, pos)
	}
	for _, agg := range aggregates {
		agg.AverageRating /= float64(agg.ReviewCount)
	}

	e.aggSnap = snap
	e.aggregates = aggregates
	e.logger.Debug("product aggregates rebuilt",
		zap.String("build_id", snap.BuildID),
		zap.Int("products", len(aggregates)))
	return aggregates
}

// topSnippetsByRating picks the highest-rated reviews for a product, ties
// broken by ascending position.
func topSnippetsByRating(snap *embedding.Snapshot, positions []int, n int) []string {
	sorted := make([]int, len(positions))
	copy(sorted, positions)
	sort.SliceStable(sorted, func(a, b int) bool {
		ra := snap.Metadata[sorted[a]].StarRating
		rb := snap.Metadata[sorted[b]].StarRating
		if ra != rb {
			return ra > rb
		}
		return sorted[a] < sorted[b]
	})

	snippets := make([]string, 0, n)
	for _, pos := range sorted {
		if len(snippets) == n {
			break
		}
		snippets = append(snippets, snap.Metadata[pos].Snippet)
	}
	return snippets
}
