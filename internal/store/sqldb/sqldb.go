// Package sqldb stores documents in a single SQLite table.
//
// The database runs either as a local embedded file (ncruces/go-sqlite3, WAL
// mode) or as a Turso embedded replica (go-libsql) that reads from a local
// copy and forwards writes to the primary. Both modes share the same schema
// and queries.
//
// Schema:
//
//	documents(collection, id, data, created_at, updated_at)
//	PRIMARY KEY (collection, id)
//
// data holds the document fields as a JSON object. created_at is set once,
// in unix nanoseconds, and orders listings.
//
// Example:
//
//	db, err := sqldb.Open(".sitebook/sitebook.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/sitebook/sitebook/internal/schema"
	"github.com/sitebook/sitebook/internal/store"
)

// DB is a store.Store over a SQL connection.
type DB struct {
	conn *sql.DB
	path string

	// replica is set for Turso embedded replicas.
	replica replicaConnector
}

var _ store.Store = (*DB)(nil)

// Open creates or opens an embedded database at path and initializes the
// schema. The caller must call Close.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}

	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := db.InitSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the local database file.
func (db *DB) Path() string {
	return db.path
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the database connection. Embedded databases checkpoint the
// WAL first.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if db.replica == nil {
		if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
		}
	}

	err := db.conn.Close()
	db.conn = nil
	if db.replica != nil {
		if cerr := db.replica.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// InitSchema creates the documents table if it does not exist. It is safe to
// call repeatedly.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_order
	    ON documents(collection, created_at, id);
	`
	if _, err := db.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

func (db *DB) ListDocuments(ctx context.Context, path string) ([]store.Document, error) {
	if err := schema.ValidateCollectionPath(path); err != nil {
		return nil, err
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, data FROM documents WHERE collection = ? ORDER BY created_at, id`, path)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", path, err)
	}
	defer rows.Close()

	docs := []store.Document{}
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		data, err := decodeData(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode document %s/%s: %w", path, id, err)
		}
		docs = append(docs, store.Document{ID: id, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}

func (db *DB) CreateDocument(ctx context.Context, path string, data map[string]any) (string, error) {
	id := uuid.NewString()
	if err := db.SetDocument(ctx, path, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (db *DB) SetDocument(ctx context.Context, path, id string, data map[string]any) error {
	if err := schema.ValidateCollectionPath(path); err != nil {
		return err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal document %s: %w", id, err)
	}

	now := time.Now().UnixNano()
	query := `
	INSERT INTO documents (collection, id, data, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(collection, id) DO UPDATE SET
		data = excluded.data,
		updated_at = excluded.updated_at
	`
	if _, err := db.conn.ExecContext(ctx, query, path, id, string(raw), now, now); err != nil {
		return fmt.Errorf("failed to write document %s/%s: %w", path, id, err)
	}
	return nil
}

// UpdateDocument merges data into the stored document inside a transaction.
func (db *DB) UpdateDocument(ctx context.Context, path, id string, data map[string]any) error {
	if err := schema.ValidateCollectionPath(path); err != nil {
		return err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`, path, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s/%s", store.ErrNotFound, path, id)
	}
	if err != nil {
		return fmt.Errorf("failed to read document %s/%s: %w", path, id, err)
	}

	existing, err := decodeData(raw)
	if err != nil {
		return fmt.Errorf("failed to decode document %s/%s: %w", path, id, err)
	}
	merged, err := json.Marshal(store.MergeData(existing, data))
	if err != nil {
		return fmt.Errorf("failed to marshal document %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET data = ?, updated_at = ? WHERE collection = ? AND id = ?`,
		string(merged), time.Now().UnixNano(), path, id); err != nil {
		return fmt.Errorf("failed to update document %s/%s: %w", path, id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (db *DB) DeleteDocument(ctx context.Context, path, id string) error {
	if err := schema.ValidateCollectionPath(path); err != nil {
		return err
	}
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, path, id); err != nil {
		return fmt.Errorf("failed to delete document %s/%s: %w", path, id, err)
	}
	return nil
}

// CountDocuments returns the number of documents per collection.
func (db *DB) CountDocuments(ctx context.Context) (map[string]int, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT collection, COUNT(*) FROM documents GROUP BY collection`)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var collection string
		var n int
		if err := rows.Scan(&collection, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[collection] = n
	}
	return counts, rows.Err()
}

func decodeData(raw string) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, err
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}
