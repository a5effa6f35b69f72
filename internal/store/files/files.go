// Package files stores documents as individual JSON files.
//
// Each document lives at <root>/<collection path>/<id>.json inside an
// envelope that records its creation time, so listings keep insertion order:
//
//	{
//	  "id": "5b0c...",
//	  "created_at": "2026-01-10T07:36:29.120Z",
//	  "updated_at": "2026-01-10T07:40:02.004Z",
//	  "data": {"name": "Riverside Tower", ...}
//	}
//
// Subcollections nest as directories next to their parent document file, so
// projects/p1.json and projects/p1/todos/*.json coexist. Writes go through a
// temp file and a rename.
package files

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitebook/sitebook/internal/schema"
	"github.com/sitebook/sitebook/internal/store"
)

// envelope is the on-disk shape of one document.
type envelope struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Data      map[string]any `json:"data"`
}

// Store is a store.Store over a directory tree.
type Store struct {
	root   string
	mu     sync.Mutex
	logger *zap.Logger
}

var _ store.Store = (*Store)(nil)

// Open returns a store rooted at dir, creating it if needed.
func Open(dir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &Store{root: dir, logger: logger.With(zap.String("component", "files"))}, nil
}

// Root returns the store's directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) collectionDir(path string) (string, error) {
	if err := schema.ValidateCollectionPath(path); err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(path)), nil
}

func (s *Store) documentFile(path, id string) (string, error) {
	dir, err := s.collectionDir(path)
	if err != nil {
		return "", err
	}
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("%w: bad document id %q", store.ErrInvalidPath, id)
	}
	return filepath.Join(dir, id+".json"), nil
}

func (s *Store) ListDocuments(ctx context.Context, path string) ([]store.Document, error) {
	dir, err := s.collectionDir(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []store.Document{}, nil
		}
		return nil, fmt.Errorf("failed to read collection %s: %w", path, err)
	}

	var envs []*envelope
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		env, err := readEnvelope(filepath.Join(dir, entry.Name()))
		if err != nil {
			// A torn or foreign file must not hide the rest of the collection.
			s.logger.Warn("Skipping unreadable document",
				zap.String("collection", path),
				zap.String("file", entry.Name()),
				zap.Error(err),
			)
			continue
		}
		envs = append(envs, env)
	}

	sort.Slice(envs, func(i, j int) bool {
		if !envs[i].CreatedAt.Equal(envs[j].CreatedAt) {
			return envs[i].CreatedAt.Before(envs[j].CreatedAt)
		}
		return envs[i].ID < envs[j].ID
	})

	docs := make([]store.Document, 0, len(envs))
	for _, env := range envs {
		docs = append(docs, store.Document{ID: env.ID, Data: env.Data})
	}
	return docs, nil
}

func (s *Store) CreateDocument(ctx context.Context, path string, data map[string]any) (string, error) {
	id := uuid.NewString()
	if err := s.write(ctx, path, id, data, false); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) SetDocument(ctx context.Context, path, id string, data map[string]any) error {
	return s.write(ctx, path, id, data, false)
}

func (s *Store) UpdateDocument(ctx context.Context, path, id string, data map[string]any) error {
	return s.write(ctx, path, id, data, true)
}

func (s *Store) write(ctx context.Context, path, id string, data map[string]any, merge bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	file, err := s.documentFile(path, id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	env := &envelope{ID: id, CreatedAt: now}
	existing, err := readEnvelope(file)
	switch {
	case err == nil:
		env.CreatedAt = existing.CreatedAt
		if merge {
			env.Data = store.MergeData(existing.Data, data)
		}
	case errors.Is(err, os.ErrNotExist):
		if merge {
			return fmt.Errorf("%w: %s/%s", store.ErrNotFound, path, id)
		}
	default:
		if merge {
			return fmt.Errorf("failed to read document %s/%s: %w", path, id, err)
		}
	}
	if env.Data == nil {
		env.Data = store.CloneData(data)
	}
	env.UpdatedAt = now

	return writeEnvelope(file, env)
}

func (s *Store) DeleteDocument(ctx context.Context, path, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	file, err := s.documentFile(path, id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete document %s/%s: %w", path, id, err)
	}
	return nil
}

// Close is a no-op; the store holds no open handles.
func (s *Store) Close() error {
	return nil
}

func readEnvelope(file string) (*envelope, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", file, err)
	}
	if env.ID == "" {
		env.ID = strings.TrimSuffix(filepath.Base(file), ".json")
	}
	if env.Data == nil {
		env.Data = map[string]any{}
	}
	return &env, nil
}

func writeEnvelope(file string, env *envelope) error {
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return fmt.Errorf("failed to create collection directory: %w", err)
	}

	raw, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document %s: %w", env.ID, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(file), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write document %s: %w", env.ID, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, file); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace document %s: %w", env.ID, err)
	}
	return nil
}
