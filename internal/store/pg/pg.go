// Package pg stores documents in a PostgreSQL jsonb table.
package pg

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/sitebook/sitebook/internal/schema"
	"github.com/sitebook/sitebook/internal/store"
)

const ddl = `
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL,
    id TEXT NOT NULL,
    data JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
    PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_order ON documents (collection, created_at, id);
`

// Store is a store.Store over a pgx connection pool.
type Store struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn, verifies the connection and creates the documents
// table if needed.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "store.pg"))

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse db config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnIdleTime = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping: %w", err)
	}

	s := New(pool, logger)
	if err := s.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("PostgreSQL document store ready",
		zap.String("host", poolCfg.ConnConfig.Host),
		zap.String("db", poolCfg.ConnConfig.Database),
	)
	return s, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: pool, logger: logger}
}

// InitSchema creates the documents table if it does not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) ListDocuments(ctx context.Context, path string) ([]store.Document, error) {
	if err := schema.ValidateCollectionPath(path); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
        SELECT id, data::text
        FROM documents
        WHERE collection = $1
        ORDER BY created_at, id
    `, path)
	if err != nil {
		s.logger.Error("Failed to query documents", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("failed to list %s: %w", path, err)
	}
	defer rows.Close()

	docs := []store.Document{}
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		var data map[string]any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return nil, fmt.Errorf("failed to decode document %s/%s: %w", path, id, err)
		}
		if data == nil {
			data = map[string]any{}
		}
		docs = append(docs, store.Document{ID: id, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	s.logger.Debug("Documents listed", zap.String("path", path), zap.Int("count", len(docs)))
	return docs, nil
}

func (s *Store) CreateDocument(ctx context.Context, path string, data map[string]any) (string, error) {
	id := uuid.NewString()
	if err := s.SetDocument(ctx, path, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) SetDocument(ctx context.Context, path, id string, data map[string]any) error {
	if err := schema.ValidateCollectionPath(path); err != nil {
		return err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal document %s: %w", id, err)
	}

	_, err = s.db.Exec(ctx, `
        INSERT INTO documents (collection, id, data)
        VALUES ($1, $2, $3::jsonb)
        ON CONFLICT (collection, id) DO UPDATE
        SET data = EXCLUDED.data, updated_at = clock_timestamp()
    `, path, id, string(raw))
	if err != nil {
		s.logger.Error("Failed to write document", zap.String("path", path), zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to write document %s/%s: %w", path, id, err)
	}
	return nil
}

// UpdateDocument merges data into the stored object with the jsonb ||
// operator, so keys set to null are stored as null rather than removed.
func (s *Store) UpdateDocument(ctx context.Context, path, id string, data map[string]any) error {
	if err := schema.ValidateCollectionPath(path); err != nil {
		return err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal document %s: %w", id, err)
	}

	result, err := s.db.Exec(ctx, `
        UPDATE documents
        SET data = data || $3::jsonb, updated_at = clock_timestamp()
        WHERE collection = $1 AND id = $2
    `, path, id, string(raw))
	if err != nil {
		s.logger.Error("Failed to update document", zap.String("path", path), zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to update document %s/%s: %w", path, id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s/%s", store.ErrNotFound, path, id)
	}
	return nil
}

func (s *Store) DeleteDocument(ctx context.Context, path, id string) error {
	if err := schema.ValidateCollectionPath(path); err != nil {
		return err
	}
	result, err := s.db.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, path, id)
	if err != nil {
		return fmt.Errorf("failed to delete document %s/%s: %w", path, id, err)
	}
	s.logger.Debug("Document deleted",
		zap.String("path", path),
		zap.String("id", id),
		zap.Int64("rows_affected", result.RowsAffected()),
	)
	return nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.db.Close()
	return nil
}
