package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS traces (
	trace_id TEXT PRIMARY KEY,
	operation TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	input TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	elapsed_ms INTEGER NOT NULL DEFAULT 0,
	num_sources INTEGER NOT NULL DEFAULT 0,
	build_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_traces_timestamp ON traces(timestamp);

CREATE TABLE IF NOT EXISTS builds (
	build_id TEXT PRIMARY KEY,
	timestamp DATETIME NOT NULL,
	row_count INTEGER NOT NULL,
	skipped INTEGER NOT NULL DEFAULT 0,
	model TEXT NOT NULL,
	index_type TEXT NOT NULL,
	mode TEXT NOT NULL DEFAULT ''
);
`

// SQLiteTraceStore implements TraceStore using SQLite.
type SQLiteTraceStore struct {
	db *sql.DB
}

// SQLiteBuildStore implements BuildStore using SQLite.
type SQLiteBuildStore struct {
	db *sql.DB
}

// NewSQLiteStores creates SQLite-backed trace and build stores sharing one
// database file, creating it if needed.
func NewSQLiteStores(dsn string) (*SQLiteTraceStore, *SQLiteBuildStore, error) {
	if dsn == "" {
		dsn = "data/reviewrag.db"
	}

	dir := filepath.Dir(dsn)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteTraceStore{db: db}, &SQLiteBuildStore{db: db}, nil
}

func (s *SQLiteTraceStore) Add(ctx context.Context, t TraceInfo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO traces (
			trace_id, operation, timestamp, input, status, elapsed_ms, num_sources, build_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TraceID, t.Operation, t.Timestamp, t.Input, t.Status, t.ElapsedMs, t.NumSources, t.BuildID,
	)
	if err != nil {
		return fmt.Errorf("insert trace: %w", err)
	}
	return nil
}

func (s *SQLiteTraceStore) List(ctx context.Context, limit int) ([]TraceInfo, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT trace_id, operation, timestamp, input, status, elapsed_ms, num_sources, build_id
		FROM traces ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query traces: %w", err)
	}
	defer rows.Close()

	var traces []TraceInfo
	for rows.Next() {
		var t TraceInfo
		if err := rows.Scan(&t.TraceID, &t.Operation, &t.Timestamp, &t.Input, &t.Status, &t.ElapsedMs, &t.NumSources, &t.BuildID); err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		traces = append(traces, t)
	}
	return traces, rows.Err()
}

func (s *SQLiteTraceStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteBuildStore) Add(ctx context.Context, b BuildInfo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO builds (
			build_id, timestamp, row_count, skipped, model, index_type, mode
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.BuildID, b.Timestamp, b.Rows, b.Skipped, b.Model, b.IndexType, b.Mode,
	)
	if err != nil {
		return fmt.Errorf("insert build: %w", err)
	}
	return nil
}

func (s *SQLiteBuildStore) List(ctx context.Context) ([]BuildInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT build_id, timestamp, row_count, skipped, model, index_type, mode
		FROM builds ORDER BY timestamp DESC`)
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	defer rows.Close()

	var builds []BuildInfo
	for rows.Next() {
		var b BuildInfo
		if err := rows.Scan(&b.BuildID, &b.Timestamp, &b.Rows, &b.Skipped, &b.Model, &b.IndexType, &b.Mode); err != nil {
			return nil, fmt.Errorf("scan build: %w", err)
		}
		builds = append(builds, b)
	}
	return builds, rows.Err()
}

// Close is a no-op for the build store; the trace store owns the shared
// database handle.
func (s *SQLiteBuildStore) Close() error {
	return nil
}
