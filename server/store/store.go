// Package store persists request traces and build runs so operators can
// audit what the service answered and which corpus build served it.
package store

import (
	"context"
	"time"
)

// TraceInfo is one recorded API request.
type TraceInfo struct {
	TraceID    string    `json:"trace_id"`
	Operation  string    `json:"operation"`
	Timestamp  time.Time `json:"timestamp"`
	Input      string    `json:"input"`
	Status     string    `json:"status"`
	ElapsedMs  int64     `json:"elapsed_ms"`
	NumSources int       `json:"num_sources"`
	BuildID    string    `json:"build_id"`
}

// BuildInfo is one completed corpus build.
type BuildInfo struct {
	BuildID   string    `json:"build_id"`
	Timestamp time.Time `json:"timestamp"`
	Rows      int       `json:"rows"`
	Skipped   int       `json:"skipped"`
	Model     string    `json:"model"`
	IndexType string    `json:"index_type"`
	Mode      string    `json:"mode"`
}

// TraceStore records API request traces.
type TraceStore interface {
	Add(ctx context.Context, t TraceInfo) error
	List(ctx context.Context, limit int) ([]TraceInfo, error)
	Close() error
}

// BuildStore records completed corpus builds.
type BuildStore interface {
	Add(ctx context.Context, b BuildInfo) error
	List(ctx context.Context) ([]BuildInfo, error)
	Close() error
}
