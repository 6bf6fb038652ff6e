package recommend

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/go-reviewrag/core"
	"github.com/hubenschmidt/go-reviewrag/embedding"
	"github.com/hubenschmidt/go-reviewrag/llm"
	"github.com/hubenschmidt/go-reviewrag/vector"
)

type axisEmbedder struct{}

func (axisEmbedder) Embed(_ context.Context, _ string, input string) (*llm.EmbeddingResponse, error) {
	v := make([]float32, 4)
	switch {
	case strings.Contains(input, "battery"):
		v[0] = 1
	case strings.Contains(input, "shipping"):
		v[1] = 1
	case strings.Contains(input, "torque"):
		v[2] = 1
	default:
		v[3] = 1
	}
	return &llm.EmbeddingResponse{Embedding: v}, nil
}

func (a axisEmbedder) EmbedBatch(ctx context.Context, model string, inputs []string) ([]llm.EmbeddingResponse, error) {
	out := make([]llm.EmbeddingResponse, len(inputs))
	for i, in := range inputs {
		resp, _ := a.Embed(ctx, model, in)
		out[i] = *resp
	}
	return out, nil
}

type review struct {
	productID, productTitle, category, text string
	rating                                  int
}

func testHolder(t *testing.T, reviews []review) *embedding.SnapshotHolder {
	t.Helper()
	idx := vector.NewFlat(4)
	metadata := make([]core.Metadata, len(reviews))
	vectors := make([][]float32, len(reviews))
	for i, r := range reviews {
		resp, err := axisEmbedder{}.Embed(context.Background(), "fake", r.text)
		require.NoError(t, err)
		vectors[i] = vector.Normalize(resp.Embedding)
		require.NoError(t, idx.Add(vectors[i]))
		metadata[i] = core.Metadata{
			ReviewID:     string(rune('a' + i)),
			ProductID:    r.productID,
			ProductTitle: r.productTitle,
			Category:     r.category,
			StarRating:   r.rating,
			Snippet:      r.text,
		}
	}
	return embedding.NewSnapshotHolder(&embedding.Snapshot{
		BuildID:   "test-build",
		Model:     "fake",
		Dimension: 4,
		IndexType: vector.TypeFlat,
		Index:     idx,
		Vectors:   vectors,
		Metadata:  metadata,
	})
}

func defaultReviews() []review {
	return []review{
		{"P1", "Drill A", "Tools", "battery lasts all day", 5},
		{"P1", "Drill A", "Tools", "excellent torque under load", 4},
		{"P2", "Drill B", "Tools", "battery drains fast", 3},
		{"P3", "Mailer", "Office", "fast shipping and packaging", 5},
		{"P3", "Mailer", "Office", "shipping was quick again", 5},
	}
}

func newTestEngine(t *testing.T, reviews []review) *Engine {
	t.Helper()
	return NewEngine(testHolder(t, reviews), axisEmbedder{}, Options{}, nil)
}

func floor(v float32) *float32 { return &v }

func TestTextQueryUsesBestReviewScore(t *testing.T) {
	engine := newTestEngine(t, defaultReviews())

	products, err := engine.Recommend(context.Background(), Query{
		Mode: ModeTextQuery, Text: "battery life", TopK: 5, MinSimilarity: floor(0.5),
	})
	require.NoError(t, err)

	// Both drills have a perfect battery match; the tie resolves by ID.
	require.Len(t, products, 2)
	assert.Equal(t, "P1", products[0].ProductID)
	assert.Equal(t, "P2", products[1].ProductID)
	assert.InDelta(t, 1.0, float64(products[0].Similarity), 1e-6)
	assert.InDelta(t, 1.0, float64(products[1].Similarity), 1e-6)
}

func TestTextQueryHonorsTopK(t *testing.T) {
	engine := newTestEngine(t, defaultReviews())

	products, err := engine.Recommend(context.Background(), Query{
		Mode: ModeTextQuery, Text: "battery", TopK: 1, MinSimilarity: floor(0.5),
	})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "P1", products[0].ProductID)
}

func TestTextQueryMinSimilarityFloor(t *testing.T) {
	engine := newTestEngine(t, defaultReviews())

	products, err := engine.Recommend(context.Background(), Query{
		Mode: ModeTextQuery, Text: "battery", TopK: 5, MinSimilarity: floor(0.999),
	})
	require.NoError(t, err)
	for _, p := range products {
		assert.GreaterOrEqual(t, p.Similarity, float32(0.999))
	}
	// The shipping product never clears the floor.
	for _, p := range products {
		assert.NotEqual(t, "P3", p.ProductID)
	}
}

func TestTextQueryExplicitZeroFloorKeepsZeroScores(t *testing.T) {
	engine := newTestEngine(t, defaultReviews())

	// An omitted floor falls back to the serving default, which filters
	// out the unrelated shipping product.
	defaulted, err := engine.Recommend(context.Background(), Query{
		Mode: ModeTextQuery, Text: "battery", TopK: 5,
	})
	require.NoError(t, err)
	for _, p := range defaulted {
		assert.NotEqual(t, "P3", p.ProductID)
	}

	// An explicit floor of 0 disables filtering rather than being treated
	// as unset.
	all, err := engine.Recommend(context.Background(), Query{
		Mode: ModeTextQuery, Text: "battery", TopK: 5, MinSimilarity: floor(0),
	})
	require.NoError(t, err)
	ids := make([]string, len(all))
	for i, p := range all {
		ids[i] = p.ProductID
	}
	assert.Contains(t, ids, "P3")
}

func TestProductSimilarExcludesSeed(t *testing.T) {
	engine := newTestEngine(t, defaultReviews())

	products, err := engine.Recommend(context.Background(), Query{
		Mode: ModeProductSimilar, ProductID: "P1", TopK: 5, MinSimilarity: floor(0.3),
	})
	require.NoError(t, err)
	require.NotEmpty(t, products)
	for _, p := range products {
		assert.NotEqual(t, "P1", p.ProductID)
	}
	// P2's battery review lines up with half of P1's centroid.
	assert.Equal(t, "P2", products[0].ProductID)
}

func TestProductSimilarUnknownSeed(t *testing.T) {
	engine := newTestEngine(t, defaultReviews())

	_, err := engine.Recommend(context.Background(), Query{
		Mode: ModeProductSimilar, ProductID: "NOPE", TopK: 5,
	})
	require.Error(t, err)
	assert.Equal(t, core.KindInput, core.KindOf(err))
	assert.ErrorIs(t, err, core.ErrUnknownProduct)
}

func TestCategoryTopOrdering(t *testing.T) {
	engine := newTestEngine(t, defaultReviews())

	products, err := engine.Recommend(context.Background(), Query{
		Mode: ModeCategoryTop, Category: "Tools", TopK: 5,
	})
	require.NoError(t, err)
	require.Len(t, products, 2)

	// P1 averages 4.5 over two reviews, P2 averages 3.0 over one.
	assert.Equal(t, "P1", products[0].ProductID)
	assert.InDelta(t, 4.5, products[0].AverageRating, 1e-9)
	assert.Equal(t, 2, products[0].NumReviews)
	assert.Equal(t, "P2", products[1].ProductID)
}

func TestCategoryTopTieBreaksByProductID(t *testing.T) {
	reviews := []review{
		{"Z9", "Late", "Tools", "torque is fine", 4},
		{"A1", "Early", "Tools", "torque is fine", 4},
	}
	engine := newTestEngine(t, reviews)

	products, err := engine.Recommend(context.Background(), Query{
		Mode: ModeCategoryTop, Category: "Tools", TopK: 5,
	})
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "A1", products[0].ProductID)
	assert.Equal(t, "Z9", products[1].ProductID)
}

func TestCategoryTopUnknownCategory(t *testing.T) {
	engine := newTestEngine(t, defaultReviews())

	_, err := engine.Recommend(context.Background(), Query{
		Mode: ModeCategoryTop, Category: "Garden", TopK: 5,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnknownCategory)
}

func TestRecommendUnknownMode(t *testing.T) {
	engine := newTestEngine(t, defaultReviews())

	_, err := engine.Recommend(context.Background(), Query{Mode: "psychic"})
	require.Error(t, err)
	assert.Equal(t, core.KindInput, core.KindOf(err))
	assert.ErrorIs(t, err, core.ErrUnknownMode)
}

func TestRationaleIsDeterministic(t *testing.T) {
	engine := newTestEngine(t, defaultReviews())
	q := Query{Mode: ModeTextQuery, Text: "battery", TopK: 5, MinSimilarity: floor(0.5)}

	first, err := engine.Recommend(context.Background(), q)
	require.NoError(t, err)
	second, err := engine.Recommend(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.NotEmpty(t, first)
	assert.Contains(t, first[0].Rationale, "similarity 1.00")
	assert.Contains(t, first[0].Rationale, "2 reviews")
}

func TestRecommendNeverExceedsTopK(t *testing.T) {
	engine := newTestEngine(t, defaultReviews())

	for _, k := range []int{1, 2, 3} {
		products, err := engine.Recommend(context.Background(), Query{
			Mode: ModeTextQuery, Text: "battery", TopK: k, MinSimilarity: floor(0.01),
		})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(products), k)
	}
}

func TestStatsCountsProducts(t *testing.T) {
	engine := newTestEngine(t, defaultReviews())

	stats, err := engine.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.NumProducts)
	assert.Equal(t, 5, stats.NumReviews)
}

func TestCategoriesSortedWithCounts(t *testing.T) {
	engine := newTestEngine(t, defaultReviews())

	categories, err := engine.Categories()
	require.NoError(t, err)
	require.Len(t, categories, 2)
	assert.Equal(t, CategoryInfo{Category: "Office", NumProducts: 1, NumReviews: 2}, categories[0])
	assert.Equal(t, CategoryInfo{Category: "Tools", NumProducts: 2, NumReviews: 3}, categories[1])
}

func TestPositiveThemesSkipLowRatedReviews(t *testing.T) {
	reviews := []review{
		{"P1", "Drill A", "Tools", "battery battery battery wonderful", 5},
		{"P1", "Drill A", "Tools", "terrible awful broken broken broken", 1},
	}
	holder := testHolder(t, reviews)
	snap, err := holder.Current()
	require.NoError(t, err)

	themes := positiveThemes(snap, []int{0, 1}, 2)
	assert.Contains(t, themes, "battery")
	assert.NotContains(t, themes, "broken")
}
