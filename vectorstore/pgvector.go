package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

// PgvectorIndex is an optional similarity-index backend on Postgres with
// the pgvector extension. Writes are durable per statement, so Flush is a
// no-op barrier.
type PgvectorIndex struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPgvectorIndex connects, ensures the extension and table exist, and
// validates the embedding dimension against the schema.
func NewPgvectorIndex(ctx context.Context, dsn string, dimension int, logger *zap.Logger) (*PgvectorIndex, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", dimension)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS diary_documents (
			id TEXT PRIMARY KEY,
			seq BIGINT NOT NULL,
			content TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			embedding vector(%d) NOT NULL
		)`, dimension),
		`CREATE INDEX IF NOT EXISTS idx_diary_documents_metadata ON diary_documents USING gin (metadata)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}

	logger.Info("Connected to pgvector index", zap.Int("dimension", dimension))
	return &PgvectorIndex{db: db, logger: logger}, nil
}

func (idx *PgvectorIndex) Upsert(ctx context.Context, doc Document) error {
	metaJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal document metadata: %w", err)
	}

	const query = `
		INSERT INTO diary_documents (id, seq, content, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id)
		DO UPDATE SET seq = EXCLUDED.seq, content = EXCLUDED.content,
		              metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding
	`
	if _, err := idx.db.ExecContext(ctx, query, doc.ID, doc.Seq, doc.Content, string(metaJSON), pgvector.NewVector(doc.Embedding)); err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

func (idx *PgvectorIndex) Query(ctx context.Context, embedding []float32, k int, filter map[string]string) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}

	query := `
		SELECT id, seq, content, metadata, 1 - (embedding <=> $1) AS score
		FROM diary_documents
	`
	args := []any{pgvector.NewVector(embedding)}
	if len(filter) > 0 {
		filterJSON, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata filter: %w", err)
		}
		query += ` WHERE metadata @> $2::jsonb`
		args = append(args, string(filterJSON))
	}
	query += fmt.Sprintf(` ORDER BY embedding <=> $1, seq LIMIT %d`, k)

	rows, err := idx.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var res Result
		var metaJSON []byte
		if err := rows.Scan(&res.ID, &res.Seq, &res.Content, &metaJSON, &res.Score); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		if err := json.Unmarshal(metaJSON, &res.Metadata); err != nil {
			return nil, fmt.Errorf("decode document metadata: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func (idx *PgvectorIndex) Count(ctx context.Context) (int, error) {
	var count int
	if err := idx.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM diary_documents`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

func (idx *PgvectorIndex) MaxSeq(ctx context.Context) (int64, error) {
	var max int64
	if err := idx.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM diary_documents`).Scan(&max); err != nil {
		return 0, fmt.Errorf("max document seq: %w", err)
	}
	return max, nil
}

func (idx *PgvectorIndex) Flush(ctx context.Context) error {
	return nil
}

func (idx *PgvectorIndex) Close(ctx context.Context) error {
	return idx.db.Close()
}
