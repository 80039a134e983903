package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSchema creates the document table.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS desk_documents (
	namespace  TEXT        NOT NULL,
	kind       TEXT        NOT NULL,
	body       JSONB       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (namespace, kind)
)`

// PostgresStore implements Store using PostgreSQL JSONB documents.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, PostgresSchema)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, namespace string, kind Kind) ([]byte, error) {
	var body string
	err := s.pool.QueryRow(ctx,
		`SELECT body::TEXT FROM desk_documents WHERE namespace = $1 AND kind = $2`,
		namespace, string(kind)).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", namespace, kind, err)
	}
	return []byte(body), nil
}

func (s *PostgresStore) Put(ctx context.Context, namespace string, kind Kind, data []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO desk_documents (namespace, kind, body, updated_at)
		 VALUES ($1, $2, $3::JSONB, now())
		 ON CONFLICT (namespace, kind)
		 DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`,
		namespace, string(kind), string(data),
	)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", namespace, kind, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, namespace string, kind Kind) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM desk_documents WHERE namespace = $1 AND kind = $2`,
		namespace, string(kind))
	return err
}
