package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tursodatabase/go-libsql"
)

// ErrNotReplica is returned by Sync on a plain embedded database.
var ErrNotReplica = errors.New("database is not a replica")

type replicaConnector interface {
	Sync() (libsql.Replicated, error)
	Close() error
}

// ReplicaOptions configures a Turso embedded replica.
type ReplicaOptions struct {
	// URL of the primary database, libsql://... or https://...
	URL       string
	AuthToken string

	// SyncInterval enables background pulls from the primary. Zero means
	// pulls only happen through Sync.
	SyncInterval time.Duration
}

// OpenReplica opens a local embedded replica at path that follows the primary
// at opts.URL. An initial sync runs before the schema is checked.
func OpenReplica(path string, opts ReplicaOptions) (*DB, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("replica requires a primary url")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	var options []libsql.Option
	if opts.AuthToken != "" {
		options = append(options, libsql.WithAuthToken(opts.AuthToken))
	}
	if opts.SyncInterval > 0 {
		options = append(options, libsql.WithSyncInterval(opts.SyncInterval))
	}

	connector, err := libsql.NewEmbeddedReplicaConnector(path, opts.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create replica connector: %w", err)
	}

	db := &DB{
		conn:    sql.OpenDB(connector),
		path:    path,
		replica: connector,
	}

	if _, err := connector.Sync(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed initial replica sync: %w", err)
	}
	if err := db.InitSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// IsReplica reports whether db follows a remote primary.
func (db *DB) IsReplica() bool {
	return db.replica != nil
}

// Sync pulls new frames from the primary and returns how many were applied.
func (db *DB) Sync(ctx context.Context) (int, error) {
	if db.replica == nil {
		return 0, ErrNotReplica
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	rep, err := db.replica.Sync()
	if err != nil {
		return 0, fmt.Errorf("failed to sync replica: %w", err)
	}
	return rep.FramesSynced, nil
}
