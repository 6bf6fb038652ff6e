// Package server exposes the question-answering and recommendation engines
// over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/hubenschmidt/go-reviewrag/embedding"
	"github.com/hubenschmidt/go-reviewrag/monitor"
	"github.com/hubenschmidt/go-reviewrag/rag"
	"github.com/hubenschmidt/go-reviewrag/recommend"
	"github.com/hubenschmidt/go-reviewrag/server/store"
)

// Reloader produces a fresh snapshot for POST /api/reload, typically by
// re-reading artifacts from disk.
type Reloader func(ctx context.Context) (*embedding.Snapshot, error)

// Config configures a new Server instance.
type Config struct {
	RAG         *rag.Engine
	Recommender *recommend.Engine
	Holder      *embedding.SnapshotHolder
	Reloader    Reloader // optional; reload returns 503 without it

	Collector monitor.Collector // optional; defaults to in-memory
	Traces    store.TraceStore  // optional; defaults to in-memory
	Builds    store.BuildStore  // optional; defaults to in-memory
	Logger    *zap.Logger
}

// Server is the HTTP layer over the RAG and recommender engines.
type Server struct {
	ragEngine   *rag.Engine
	recommender *recommend.Engine
	holder      *embedding.SnapshotHolder
	reloader    Reloader
	collector   monitor.Collector
	traces      store.TraceStore
	builds      store.BuildStore
	logger      *zap.Logger
}

// New creates a Server. The engines and holder are required.
func New(cfg Config) (*Server, error) {
	if cfg.RAG == nil || cfg.Recommender == nil || cfg.Holder == nil {
		return nil, fmt.Errorf("server requires rag engine, recommender, and snapshot holder")
	}
	if cfg.Collector == nil {
		cfg.Collector = monitor.NewInMemoryCollector()
	}
	if cfg.Traces == nil {
		cfg.Traces = store.NewMemoryTraceStore()
	}
	if cfg.Builds == nil {
		cfg.Builds = store.NewMemoryBuildStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Server{
		ragEngine:   cfg.RAG,
		recommender: cfg.Recommender,
		holder:      cfg.Holder,
		reloader:    cfg.Reloader,
		collector:   cfg.Collector,
		traces:      cfg.Traces,
		builds:      cfg.Builds,
		logger:      cfg.Logger,
	}, nil
}

// Handler returns an http.Handler for the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/ask", s.handleAsk)
	mux.HandleFunc("POST /api/recommend", s.handleRecommend)
	mux.HandleFunc("GET /api/recommend/categories", s.handleCategories)
	mux.HandleFunc("GET /api/similar", s.handleSimilar)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/traces", s.handleTraces)
	mux.HandleFunc("POST /api/reload", s.handleReload)

	return mux
}

// Close releases the trace and build stores.
func (s *Server) Close() error {
	var errs []error
	if err := s.traces.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.builds.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("close stores: %v", errs)
	}
	return nil
}
