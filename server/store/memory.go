package store

import (
	"context"
	"sync"
)

// MemoryTraceStore keeps traces in memory, for tests and ephemeral runs.
type MemoryTraceStore struct {
	mu     sync.RWMutex
	traces []TraceInfo
}

func NewMemoryTraceStore() *MemoryTraceStore {
	return &MemoryTraceStore{}
}

func (s *MemoryTraceStore) Add(_ context.Context, t TraceInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traces = append(s.traces, t)
	return nil
}

func (s *MemoryTraceStore) List(_ context.Context, limit int) ([]TraceInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.traces) {
		limit = len(s.traces)
	}

	// Newest first, matching the SQLite store's ordering.
	out := make([]TraceInfo, 0, limit)
	for i := len(s.traces) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.traces[i])
	}
	return out, nil
}

func (s *MemoryTraceStore) Close() error { return nil }

// MemoryBuildStore keeps build records in memory.
type MemoryBuildStore struct {
	mu     sync.RWMutex
	builds []BuildInfo
}

func NewMemoryBuildStore() *MemoryBuildStore {
	return &MemoryBuildStore{}
}

func (s *MemoryBuildStore) Add(_ context.Context, b BuildInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.builds = append(s.builds, b)
	return nil
}

func (s *MemoryBuildStore) List(_ context.Context) ([]BuildInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]BuildInfo, 0, len(s.builds))
	for i := len(s.builds) - 1; i >= 0; i-- {
		out = append(out, s.builds[i])
	}
	return out, nil
}

func (s *MemoryBuildStore) Close() error { return nil }
