// Package store defines the document persistence contract used by the
// projects manager, and the cached decorator that keeps an offline copy.
//
// Backends live in subpackages:
//
//	store/sqldb   embedded SQLite, or a Turso embedded replica
//	store/pg      PostgreSQL jsonb documents
//	store/files   one JSON file per document, used as the offline cache
//
// Documents are addressed by a collection path and an id. Paths must pass
// schema.ValidateCollectionPath. Stores never retry; a failed call is
// reported to the caller once.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/sitebook/sitebook/internal/schema"
)

// ErrNotFound is returned by UpdateDocument when the document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrInvalidPath is returned for a malformed collection path.
var ErrInvalidPath = schema.ErrInvalidPath

// Document is one stored record. Data never contains the id.
type Document struct {
	ID   string
	Data map[string]any
}

// Store is a hierarchical document store.
type Store interface {
	// ListDocuments returns every document in the collection, oldest first.
	ListDocuments(ctx context.Context, path string) ([]Document, error)

	// CreateDocument stores data under a new store-generated id.
	CreateDocument(ctx context.Context, path string, data map[string]any) (string, error)

	// SetDocument creates or replaces the document with the given id.
	SetDocument(ctx context.Context, path, id string, data map[string]any) error

	// UpdateDocument merges data into an existing document.
	UpdateDocument(ctx context.Context, path, id string, data map[string]any) error

	// DeleteDocument removes the document. Deleting a missing document is not an error.
	DeleteDocument(ctx context.Context, path, id string) error

	Close() error
}

// Pinger is implemented by stores that can check their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Syncer is implemented by replicated stores that can pull from a primary.
type Syncer interface {
	Sync(ctx context.Context) (int, error)
}

// OfflineError reports that a read was served from the offline cache because
// the remote store failed.
type OfflineError struct {
	Err error
}

func (e *OfflineError) Error() string {
	return fmt.Sprintf("remote store unavailable, serving cached data: %v", e.Err)
}

func (e *OfflineError) Unwrap() error {
	return e.Err
}

// IsOffline reports whether err is, or wraps, an *OfflineError.
func IsOffline(err error) bool {
	var oe *OfflineError
	return errors.As(err, &oe)
}

// CloneData returns a shallow copy of data. Backends store copies so callers
// may keep mutating their maps.
func CloneData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

// MergeData copies every key of patch into base, replacing existing values.
func MergeData(base, patch map[string]any) map[string]any {
	if base == nil {
		base = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		base[k] = v
	}
	return base
}
