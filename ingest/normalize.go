package ingest

import (
	"regexp"
	"strings"

	"github.com/hubenschmidt/go-reviewrag/core"
)

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]*>`)
	specialRe    = regexp.MustCompile(`[^\p{L}\p{N}\s.,!?;:'\-()]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// NormalizeOptions configures cleaning and filtering.
type NormalizeOptions struct {
	VerifiedOnly bool // drop records whose verified flag is false
	MinChars     int  // minimum cleaned text length
	MinTokens    int  // minimum whitespace-delimited tokens
	MaxChars     int  // maximum cleaned text length, 0 = unlimited
}

// DefaultNormalizeOptions mirrors the preprocessing defaults used to build
// the shipped indices.
func DefaultNormalizeOptions() NormalizeOptions {
	return NormalizeOptions{
		VerifiedOnly: true,
		MinChars:     10,
		MinTokens:    3,
		MaxChars:     4000,
	}
}

// NormalizeStats counts what happened to the input records.
type NormalizeStats struct {
	Input      int `json:"input"`
	Kept       int `json:"kept"`
	Malformed  int `json:"malformed"`
	TooShort   int `json:"too_short"`
	TooLong    int `json:"too_long"`
	Unverified int `json:"unverified"`
	Duplicates int `json:"duplicates"`
}

// Normalizer is a pure transform over raw review records.
type Normalizer struct {
	opts NormalizeOptions
}

// NewNormalizer creates a normalizer. Zero-valued options fall back to
// DefaultNormalizeOptions field by field.
func NewNormalizer(opts NormalizeOptions) *Normalizer {
	def := DefaultNormalizeOptions()
	if opts.MinChars <= 0 {
		opts.MinChars = def.MinChars
	}
	if opts.MinTokens <= 0 {
		opts.MinTokens = def.MinTokens
	}
	return &Normalizer{opts: opts}
}

// Normalize cleans and filters raw records. Records missing required fields
// or failing a filter are dropped and counted; nothing here is fatal.
// Input order is preserved for the records that survive.
func (n *Normalizer) Normalize(raw []core.ReviewRecord) ([]core.NormalizedRecord, NormalizeStats) {
	stats := NormalizeStats{Input: len(raw)}
	out := make([]core.NormalizedRecord, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))

	for _, rec := range raw {
		if rec.ReviewID == "" || rec.ProductID == "" || rec.StarRating < 1 || rec.StarRating > 5 {
			stats.Malformed++
			continue
		}
		if n.opts.VerifiedOnly && !rec.Verified {
			stats.Unverified++
			continue
		}
		if _, dup := seen[rec.ReviewID]; dup {
			stats.Duplicates++
			continue
		}

		clean := CombineText(rec.Title, rec.Text)
		tokens := len(strings.Fields(clean))

		if len(clean) < n.opts.MinChars || tokens < n.opts.MinTokens {
			stats.TooShort++
			continue
		}
		if n.opts.MaxChars > 0 && len(clean) > n.opts.MaxChars {
			stats.TooLong++
			continue
		}

		seen[rec.ReviewID] = struct{}{}
		out = append(out, core.NormalizedRecord{
			ReviewRecord: rec,
			CleanText:    clean,
			MatchText:    strings.ToLower(clean),
			TextLength:   len(clean),
			TokenCount:   tokens,
		})
		stats.Kept++
	}

	return out, stats
}

// CleanText strips HTML tags and control/special characters, then collapses
// whitespace. Original casing is preserved.
func CleanText(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = specialRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// CombineText joins the review title and body into the text that gets
// embedded. Either part may be empty.
func CombineText(title, body string) string {
	t := CleanText(title)
	b := CleanText(body)
	switch {
	case t != "" && b != "":
		return t + " " + b
	case b != "":
		return b
	default:
		return t
	}
}
