package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteSchema creates the document table.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS desk_documents (
	namespace  TEXT NOT NULL,
	kind       TEXT NOT NULL,
	body       TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (namespace, kind)
)`

// SQLiteStore implements Store on a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(SQLiteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, namespace string, kind Kind) ([]byte, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM desk_documents WHERE namespace = ? AND kind = ?`,
		namespace, string(kind)).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", namespace, kind, err)
	}
	return []byte(body), nil
}

func (s *SQLiteStore) Put(ctx context.Context, namespace string, kind Kind, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO desk_documents (namespace, kind, body, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (namespace, kind)
		DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		namespace, string(kind), string(data), time.Now().UTC(),
	)
	return err
}

func (s *SQLiteStore) Delete(ctx context.Context, namespace string, kind Kind) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM desk_documents WHERE namespace = ? AND kind = ?`,
		namespace, string(kind))
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
