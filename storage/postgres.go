package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"clipscribe/core"
)

// PostgresVideoStore persists records in a videos table keyed by uuid.
type PostgresVideoStore struct {
	pool *pgxpool.Pool
}

func NewPostgresVideoStore(ctx context.Context, url string) (*PostgresVideoStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresVideoStore{pool: pool}
	if err := s.ensureTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresVideoStore) ensureTable(ctx context.Context) error {
	const query = `
		CREATE TABLE IF NOT EXISTS videos (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			path TEXT NOT NULL,
			transcription TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create videos table: %w", err)
	}
	return nil
}

func (s *PostgresVideoStore) Close() { s.pool.Close() }

// Pool exposes the underlying connection pool so the pgvector search index
// can share it.
func (s *PostgresVideoStore) Pool() *pgxpool.Pool { return s.pool }

func (s *PostgresVideoStore) CreateVideo(ctx context.Context, name, path string) (core.VideoRecord, error) {
	rec := core.VideoRecord{
		ID:        uuid.NewString(),
		Name:      name,
		Path:      path,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO videos (id, name, path, created_at) VALUES ($1, $2, $3, $4)`,
		rec.ID, rec.Name, rec.Path, rec.CreatedAt)
	if err != nil {
		return core.VideoRecord{}, fmt.Errorf("insert video: %w", err)
	}
	return rec, nil
}

func (s *PostgresVideoStore) GetVideo(ctx context.Context, id string) (core.VideoRecord, error) {
	var rec core.VideoRecord
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, path, transcription, created_at FROM videos WHERE id = $1`, id).
		Scan(&rec.ID, &rec.Name, &rec.Path, &rec.Transcription, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.VideoRecord{}, ErrNotFound
	}
	if err != nil {
		return core.VideoRecord{}, fmt.Errorf("select video: %w", err)
	}
	return rec, nil
}

func (s *PostgresVideoStore) SetTranscription(ctx context.Context, id, text string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE videos SET transcription = $2 WHERE id = $1`, id, text)
	if err != nil {
		return fmt.Errorf("update transcription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresVideoStore) ListVideos(ctx context.Context) ([]core.VideoRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, path, transcription, created_at FROM videos ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	var out []core.VideoRecord
	for rows.Next() {
		var rec core.VideoRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Path, &rec.Transcription, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
