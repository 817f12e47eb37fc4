package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"clipscribe/core"
)

const embeddingDim = 1536

// PgSearchIndex stores transcript embeddings in postgres with pgvector
// and ranks queries by cosine distance.
type PgSearchIndex struct {
	pool  *pgxpool.Pool
	embed Embedder
}

func NewPgSearchIndex(ctx context.Context, pool *pgxpool.Pool, embed Embedder) (*PgSearchIndex, error) {
	s := &PgSearchIndex{pool: pool, embed: embed}
	if err := s.ensureTable(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PgSearchIndex) ensureTable(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector;`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS video_transcripts (
			video_id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			embedding vector(%d)
		);`, embeddingDim)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create video_transcripts table: %w", err)
	}
	return nil
}

func (s *PgSearchIndex) Index(ctx context.Context, rec core.VideoRecord) error {
	if rec.Transcription == nil {
		return nil
	}
	vec, err := s.embed.Embed(ctx, *rec.Transcription)
	if err != nil {
		return fmt.Errorf("embed transcript: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO video_transcripts (video_id, name, embedding)
		VALUES ($1, $2, $3)
		ON CONFLICT (video_id)
		DO UPDATE SET name = EXCLUDED.name, embedding = EXCLUDED.embedding`,
		rec.ID, rec.Name, pgvector.NewVector(vec))
	if err != nil {
		return fmt.Errorf("upsert transcript embedding: %w", err)
	}
	return nil
}

func (s *PgSearchIndex) Search(ctx context.Context, query string, topK int) ([]core.SearchHit, error) {
	if topK <= 0 {
		topK = 5
	}
	vec, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT video_id, name, 1 - (embedding <=> $1) AS similarity
		FROM video_transcripts
		ORDER BY embedding <=> $1
		LIMIT $2`, pgvector.NewVector(vec), topK)
	if err != nil {
		return nil, fmt.Errorf("search transcripts: %w", err)
	}
	defer rows.Close()

	var hits []core.SearchHit
	for rows.Next() {
		var h core.SearchHit
		if err := rows.Scan(&h.VideoID, &h.Name, &h.Score); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
