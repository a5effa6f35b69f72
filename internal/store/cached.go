package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Cached reads through a remote store into a local cache store.
//
// Successful list reads replace the cached collection. When a remote list
// fails the cached collection is returned together with an *OfflineError.
// Writes only go to the remote; a successful write is mirrored into the cache
// so the offline view stays current. Cache failures are logged and never
// reported to the caller.
type Cached struct {
	remote Store
	cache  Store
	logger *zap.Logger
}

// NewCached wraps remote with cache.
func NewCached(remote, cache Store, logger *zap.Logger) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{
		remote: remote,
		cache:  cache,
		logger: logger.With(zap.String("component", "store.cached")),
	}
}

// Remote returns the wrapped remote store.
func (c *Cached) Remote() Store {
	return c.remote
}

func (c *Cached) ListDocuments(ctx context.Context, path string) ([]Document, error) {
	docs, err := c.remote.ListDocuments(ctx, path)
	if err == nil {
		c.refresh(ctx, path, docs)
		return docs, nil
	}
	if errors.Is(err, ErrInvalidPath) {
		return nil, err
	}

	cached, cacheErr := c.cache.ListDocuments(ctx, path)
	if cacheErr != nil {
		c.logger.Warn("Offline cache read failed",
			zap.String("path", path),
			zap.Error(cacheErr),
		)
		return nil, err
	}
	c.logger.Warn("Remote list failed, serving cached documents",
		zap.String("path", path),
		zap.Int("count", len(cached)),
		zap.Error(err),
	)
	return cached, &OfflineError{Err: err}
}

// refresh makes the cached collection equal to docs.
func (c *Cached) refresh(ctx context.Context, path string, docs []Document) {
	keep := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		keep[d.ID] = struct{}{}
		if err := c.cache.SetDocument(ctx, path, d.ID, d.Data); err != nil {
			c.logger.Warn("Failed to cache document",
				zap.String("path", path),
				zap.String("id", d.ID),
				zap.Error(err),
			)
		}
	}

	stale, err := c.cache.ListDocuments(ctx, path)
	if err != nil {
		c.logger.Warn("Failed to list cached documents", zap.String("path", path), zap.Error(err))
		return
	}
	for _, d := range stale {
		if _, ok := keep[d.ID]; ok {
			continue
		}
		if err := c.cache.DeleteDocument(ctx, path, d.ID); err != nil {
			c.logger.Warn("Failed to drop stale cached document",
				zap.String("path", path),
				zap.String("id", d.ID),
				zap.Error(err),
			)
		}
	}
}

func (c *Cached) CreateDocument(ctx context.Context, path string, data map[string]any) (string, error) {
	id, err := c.remote.CreateDocument(ctx, path, data)
	if err != nil {
		return "", err
	}
	c.mirror("create", path, id, func() error {
		return c.cache.SetDocument(ctx, path, id, data)
	})
	return id, nil
}

func (c *Cached) SetDocument(ctx context.Context, path, id string, data map[string]any) error {
	if err := c.remote.SetDocument(ctx, path, id, data); err != nil {
		return err
	}
	c.mirror("set", path, id, func() error {
		return c.cache.SetDocument(ctx, path, id, data)
	})
	return nil
}

func (c *Cached) UpdateDocument(ctx context.Context, path, id string, data map[string]any) error {
	if err := c.remote.UpdateDocument(ctx, path, id, data); err != nil {
		return err
	}
	c.mirror("update", path, id, func() error {
		err := c.cache.UpdateDocument(ctx, path, id, data)
		if errors.Is(err, ErrNotFound) {
			// Not cached yet; the next list fills it in.
			return nil
		}
		return err
	})
	return nil
}

func (c *Cached) DeleteDocument(ctx context.Context, path, id string) error {
	if err := c.remote.DeleteDocument(ctx, path, id); err != nil {
		return err
	}
	c.mirror("delete", path, id, func() error {
		return c.cache.DeleteDocument(ctx, path, id)
	})
	return nil
}

func (c *Cached) mirror(op, path, id string, fn func() error) {
	if err := fn(); err != nil {
		c.logger.Warn("Failed to mirror write into cache",
			zap.String("op", op),
			zap.String("path", path),
			zap.String("id", id),
			zap.Error(err),
		)
	}
}

// Ping checks the remote store when it supports it.
func (c *Cached) Ping(ctx context.Context) error {
	if p, ok := c.remote.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Sync pulls the remote replica when it supports it.
func (c *Cached) Sync(ctx context.Context) (int, error) {
	if s, ok := c.remote.(Syncer); ok {
		return s.Sync(ctx)
	}
	return 0, nil
}

// Close closes both stores.
func (c *Cached) Close() error {
	remoteErr := c.remote.Close()
	cacheErr := c.cache.Close()
	if remoteErr != nil {
		return fmt.Errorf("failed to close remote store: %w", remoteErr)
	}
	if cacheErr != nil {
		return fmt.Errorf("failed to close cache store: %w", cacheErr)
	}
	return nil
}
