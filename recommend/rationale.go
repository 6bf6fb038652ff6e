package recommend

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/hubenschmidt/go-reviewrag/core"
	"github.com/hubenschmidt/go-reviewrag/embedding"
)

var themeWordRe = regexp.MustCompile(`\p{L}{4,}`)

// themeStopwords excludes filler that would otherwise dominate frequency
// counts in review text.
var themeStopwords = map[string]bool{
	"this": true, "that": true, "with": true, "have": true, "very": true,
	"from": true, "they": true, "were": true, "been": true, "would": true,
	"just": true, "product": true, "really": true, "great": true,
	"good": true, "like": true, "love": true, "after": true, "when": true,
	"your": true, "them": true, "then": true, "than": true, "what": true,
	"will": true, "about": true, "because": true, "there": true,
}

// positiveThemes extracts the n most frequent content words from a product's
// four-star-and-up review snippets. Ties are broken alphabetically so the
// same reviews always yield the same themes.
func positiveThemes(snap *embedding.Snapshot, positions []int, n int) []string {
	counts := make(map[string]int)
	for _, pos := range positions {
		meta := snap.Metadata[pos]
		if meta.StarRating < 4 {
			continue
		}
		for _, word := range themeWordRe.FindAllString(strings.ToLower(meta.Snippet), -1) {
			if !themeStopwords[word] {
				counts[word]++
			}
		}
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(a, b int) bool {
		if counts[words[a]] != counts[words[b]] {
			return counts[words[a]] > counts[words[b]]
		}
		return words[a] < words[b]
	})
	if len(words) > n {
		words = words[:n]
	}
	return words
}

// similarityRationale templates the evidence behind a similarity-ranked
// recommendation.
func similarityRationale(score float32, agg *core.ProductAggregate, themes []string) string {
	base := fmt.Sprintf("Matched with similarity %.2f; %d reviews averaging %.1f stars.",
		score, agg.ReviewCount, agg.AverageRating)
	if len(themes) == 0 {
		return base
	}
	return base + " Positive reviews mention: " + strings.Join(themes, ", ") + "."
}

// categoryRationale templates the statistics behind a category-top
// recommendation.
func categoryRationale(agg *core.ProductAggregate) string {
	return fmt.Sprintf("Top rated in %s with %.1f stars across %d reviews.",
		agg.Category, agg.AverageRating, agg.ReviewCount)
}
