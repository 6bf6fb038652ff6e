package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hubenschmidt/go-reviewrag/core"
	"github.com/hubenschmidt/go-reviewrag/monitor"
	"github.com/hubenschmidt/go-reviewrag/rag"
	"github.com/hubenschmidt/go-reviewrag/server/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.holder.Current(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "no snapshot loaded", Kind: core.KindConfig.String()})
		return
	}
	w.Write([]byte("OK"))
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: core.KindInput.String()})
		return
	}

	start := time.Now()
	result, err := s.ragEngine.Answer(r.Context(), req.Question, req.MaxSources)
	elapsed := time.Since(start)

	if err != nil && core.KindOf(err) == core.KindEvidenceGap {
		// An empty retrieval is a valid answer: nothing in the corpus is
		// close enough to the question.
		s.record(r.Context(), "ask", req.Question, "evidence_gap", elapsed, 0, true)
		writeJSON(w, http.StatusOK, AskResponse{
			Answer:      "No reviews in the corpus are relevant to this question.",
			Sources:     []rag.Source{},
			EvidenceGap: true,
		})
		return
	}
	if err != nil {
		s.record(r.Context(), "ask", req.Question, "error", elapsed, 0, false)
		s.writeError(w, err)
		return
	}

	s.record(r.Context(), "ask", req.Question, "ok", elapsed, result.NumSources, false)
	writeJSON(w, http.StatusOK, AskResponse{
		Answer:     result.Answer,
		Sources:    result.Sources,
		NumSources: result.NumSources,
	})
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req RecommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: core.KindInput.String()})
		return
	}

	start := time.Now()
	products, err := s.recommender.Recommend(r.Context(), req)
	elapsed := time.Since(start)

	if err != nil {
		s.record(r.Context(), "recommend", string(req.Mode), "error", elapsed, 0, false)
		s.writeError(w, err)
		return
	}

	s.record(r.Context(), "recommend", string(req.Mode), "ok", elapsed, len(products), false)
	writeJSON(w, http.StatusOK, RecommendResponse{
		Recommendations: products,
		TotalFound:      len(products),
	})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.recommender.Categories()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CategoriesResponse{
		Categories: categories,
		Total:      len(categories),
	})
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	k, _ := strconv.Atoi(r.URL.Query().Get("k"))

	start := time.Now()
	results, err := s.ragEngine.SimilarReviews(r.Context(), query, k)
	elapsed := time.Since(start)

	if err != nil {
		s.record(r.Context(), "similar", query, "error", elapsed, 0, false)
		s.writeError(w, err)
		return
	}
	if results == nil {
		results = []rag.Source{}
	}

	s.record(r.Context(), "similar", query, "ok", elapsed, len(results), false)
	writeJSON(w, http.StatusOK, SimilarResponse{Query: query, Results: results})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	indexStats, err := s.ragEngine.Stats()
	if err != nil {
		s.writeError(w, err)
		return
	}
	productStats, err := s.recommender.Stats()
	if err != nil {
		s.writeError(w, err)
		return
	}
	builds, err := s.builds.List(r.Context())
	if err != nil {
		s.logger.Warn("list builds failed", zap.Error(err))
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		Index:      indexStats,
		Products:   productStats,
		Metrics:    s.collector.Flush(),
		LastBuilds: builds,
	})
}

func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	traces, err := s.traces.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if traces == nil {
		traces = []store.TraceInfo{}
	}
	writeJSON(w, http.StatusOK, traces)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.reloader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "reload not configured", Kind: core.KindConfig.String()})
		return
	}

	snap, err := s.holder.Reload(r.Context(), s.reloader)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info("snapshot reloaded",
		zap.String("build_id", snap.BuildID),
		zap.Int("rows", snap.Len()))
	writeJSON(w, http.StatusOK, ReloadResponse{BuildID: snap.BuildID, NumReviews: snap.Len()})
}

// writeError maps the error taxonomy onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := core.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case core.KindInput:
		status = http.StatusBadRequest
	case core.KindUpstream:
		status = http.StatusBadGateway
	case core.KindConfig:
		status = http.StatusServiceUnavailable
	}

	if status >= 500 {
		s.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: kind.String()})
}

// record stores the request trace and feeds the metrics collector. Failures
// here never fail the request.
func (s *Server) record(ctx context.Context, operation, input, status string, elapsed time.Duration, sources int, evidenceGap bool) {
	buildID := ""
	if snap, err := s.holder.Current(); err == nil {
		buildID = snap.BuildID
	}

	s.collector.Record(monitor.RequestMetrics{
		Operation:   operation,
		Duration:    elapsed,
		Sources:     sources,
		Success:     status == "ok" || status == "evidence_gap",
		EvidenceGap: evidenceGap,
	})

	if err := s.traces.Add(ctx, store.TraceInfo{
		TraceID:    uuid.NewString(),
		Operation:  operation,
		Timestamp:  time.Now().UTC(),
		Input:      input,
		Status:     status,
		ElapsedMs:  elapsed.Milliseconds(),
		NumSources: sources,
		BuildID:    buildID,
	}); err != nil {
		s.logger.Warn("record trace failed", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
