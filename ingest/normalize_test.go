package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/go-reviewrag/core"
)

func rawReview(id string, text string) core.ReviewRecord {
	return core.ReviewRecord{
		ReviewID:     id,
		ProductID:    "P1",
		ProductTitle: "Cordless Drill",
		Category:     "Tools",
		StarRating:   5,
		Verified:     true,
		Title:        "Great drill",
		Text:         text,
	}
}

func TestCleanTextStripsHTMLAndWhitespace(t *testing.T) {
	got := CleanText("<br>Works   <b>great</b>\t for the\nprice!")
	assert.Equal(t, "Works great for the price!", got)
}

func TestCleanTextPreservesCase(t *testing.T) {
	assert.Equal(t, "The Best Drill", CleanText("The  Best Drill"))
}

func TestNormalizeKeepsWellFormedRecords(t *testing.T) {
	n := NewNormalizer(DefaultNormalizeOptions())

	recs, stats := n.Normalize([]core.ReviewRecord{
		rawReview("R1", "Battery lasts all day and the torque is impressive."),
	})

	require.Len(t, recs, 1)
	assert.Equal(t, 1, stats.Kept)
	assert.Equal(t, "great drill battery lasts all day and the torque is impressive.", recs[0].MatchText)
	assert.True(t, strings.HasPrefix(recs[0].CleanText, "Great drill"))
	assert.Equal(t, len(recs[0].CleanText), recs[0].TextLength)
}

func TestNormalizeDropsMalformed(t *testing.T) {
	n := NewNormalizer(DefaultNormalizeOptions())

	missing := rawReview("", "This record has no review id so it must be skipped.")
	badRating := rawReview("R2", "This record has an impossible star rating value.")
	badRating.StarRating = 7

	recs, stats := n.Normalize([]core.ReviewRecord{missing, badRating})

	assert.Empty(t, recs)
	assert.Equal(t, 2, stats.Malformed)
}

func TestNormalizeVerifiedOnly(t *testing.T) {
	opts := DefaultNormalizeOptions()
	opts.VerifiedOnly = true
	n := NewNormalizer(opts)

	unverified := rawReview("R3", "Looks fine but I never actually bought this one.")
	unverified.Verified = false

	recs, stats := n.Normalize([]core.ReviewRecord{unverified})
	assert.Empty(t, recs)
	assert.Equal(t, 1, stats.Unverified)

	opts.VerifiedOnly = false
	recs, _ = NewNormalizer(opts).Normalize([]core.ReviewRecord{unverified})
	assert.Len(t, recs, 1)
}

func TestNormalizeLengthFilters(t *testing.T) {
	opts := DefaultNormalizeOptions()
	opts.MaxChars = 60
	n := NewNormalizer(opts)

	short := rawReview("R4", "ok")
	short.Title = ""
	long := rawReview("R5", strings.Repeat("very long review text ", 20))

	recs, stats := n.Normalize([]core.ReviewRecord{short, long})
	assert.Empty(t, recs)
	assert.Equal(t, 1, stats.TooShort)
	assert.Equal(t, 1, stats.TooLong)
}

func TestNormalizeDropsDuplicateReviewIDs(t *testing.T) {
	n := NewNormalizer(DefaultNormalizeOptions())

	a := rawReview("R6", "First copy of the review body with enough words here.")
	b := rawReview("R6", "Second copy of the review body with enough words here.")

	recs, stats := n.Normalize([]core.ReviewRecord{a, b})
	require.Len(t, recs, 1)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Contains(t, recs[0].CleanText, "First copy")
}

func TestReadJSONLSkipsMalformedLines(t *testing.T) {
	input := `{"review_id":"R1","product_id":"P1","category":"Tools","star_rating":5,"verified":true,"title":"A","text":"Good."}
not json at all
{"review_id":"R2","product_id":"P2","category":"Tools","star_rating":4,"verified":true,"title":"B","text":"Fine."}`

	result, err := ReadJSONL(strings.NewReader(input))
	require.NoError(t, err)
	assert.Len(t, result.Records, 2)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, "R1", result.Records[0].ReviewID)
}
