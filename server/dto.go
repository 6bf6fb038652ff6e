package server

import (
	"github.com/hubenschmidt/go-reviewrag/monitor"
	"github.com/hubenschmidt/go-reviewrag/rag"
	"github.com/hubenschmidt/go-reviewrag/recommend"
	"github.com/hubenschmidt/go-reviewrag/server/store"
)

// AskRequest is the body of POST /api/ask.
type AskRequest struct {
	Question   string `json:"question"`
	MaxSources int    `json:"max_sources,omitempty"`
}

// AskResponse mirrors rag.Result; EvidenceGap marks an empty result that is
// an answer in itself, not a failure.
type AskResponse struct {
	Answer      string       `json:"answer"`
	Sources     []rag.Source `json:"sources"`
	NumSources  int          `json:"num_sources"`
	EvidenceGap bool         `json:"evidence_gap,omitempty"`
}

// RecommendRequest is the body of POST /api/recommend.
type RecommendRequest = recommend.Query

// RecommendResponse is the ranked product list.
type RecommendResponse struct {
	Recommendations []recommend.Product `json:"recommendations"`
	TotalFound      int                 `json:"total_found"`
}

// CategoriesResponse lists the corpus categories for
// GET /api/recommend/categories.
type CategoriesResponse struct {
	Categories []recommend.CategoryInfo `json:"categories"`
	Total      int                      `json:"total"`
}

// SimilarResponse is the result of GET /api/similar.
type SimilarResponse struct {
	Query   string       `json:"query"`
	Results []rag.Source `json:"results"`
}

// StatsResponse aggregates snapshot identity, corpus shape, and request
// metrics for GET /api/stats.
type StatsResponse struct {
	Index      *rag.Stats             `json:"index"`
	Products   *recommend.Stats       `json:"products"`
	Metrics    monitor.ServiceMetrics `json:"metrics"`
	LastBuilds []store.BuildInfo      `json:"last_builds,omitempty"`
}

// ReloadResponse reports the snapshot that went live.
type ReloadResponse struct {
	BuildID    string `json:"build_id"`
	NumReviews int    `json:"num_reviews"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
