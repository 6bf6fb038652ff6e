package vector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PgVector is a PostgreSQL-backed index using the pgvector extension. It is
// the option for corpora too large to hold in memory; the positional contract
// is kept by storing the metadata-array position as the row key.
type PgVector struct {
	db        *sql.DB
	dimension int
	count     int
}

// NewPgVector connects to the database and ensures the schema exists.
func NewPgVector(dsn string, dimension int) (*PgVector, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &PgVector{db: db, dimension: dimension}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM review_vectors`).Scan(&store.count); err != nil {
		db.Close()
		return nil, fmt.Errorf("count rows: %w", err)
	}

	return store, nil
}

func (s *PgVector) migrate() error {
	migrations := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS review_vectors (
			pos INTEGER PRIMARY KEY,
			embedding vector(%d) NOT NULL
		)`, s.dimension),
		`CREATE INDEX IF NOT EXISTS idx_review_vectors_embedding ON review_vectors USING hnsw (embedding vector_ip_ops)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	return nil
}

// Add appends vectors in position order, continuing from the current count.
func (s *PgVector) Add(vectors ...[]float32) error {
	for _, v := range vectors {
		if len(v) != s.dimension {
			return fmt.Errorf("vector dimension %d, index dimension %d", len(v), s.dimension)
		}

		_, err := s.db.Exec(`
			INSERT INTO review_vectors (pos, embedding)
			VALUES ($1, $2)
			ON CONFLICT (pos) DO UPDATE SET embedding = EXCLUDED.embedding
		`, s.count, formatEmbedding(v))
		if err != nil {
			return fmt.Errorf("insert vector: %w", err)
		}
		s.count++
	}
	return nil
}

// Search returns the k best rows by inner product. The <#> operator yields
// the negative inner product, so ascending order gives the best match first.
func (s *PgVector) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != s.dimension {
		return nil, fmt.Errorf("query dimension %d, index dimension %d", len(query), s.dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT pos, -(embedding <#> $1) AS score
		FROM review_vectors
		ORDER BY embedding <#> $1 ASC, pos ASC
		LIMIT $2
	`, formatEmbedding(query), k)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.Pos, &h.Score); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *PgVector) Len() int       { return s.count }
func (s *PgVector) Dimension() int { return s.dimension }

// Truncate removes all rows, used before re-adding a fresh build.
func (s *PgVector) Truncate() error {
	if _, err := s.db.Exec(`TRUNCATE review_vectors`); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	s.count = 0
	return nil
}

// Close closes the database connection.
func (s *PgVector) Close() error {
	return s.db.Close()
}

// formatEmbedding converts a vector to pgvector text format: "[0.1,0.2,0.3]"
func formatEmbedding(embedding []float32) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
