package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sitebook/sitebook/internal/config"
	"github.com/sitebook/sitebook/internal/manager"
	"github.com/sitebook/sitebook/internal/notify"
	"github.com/sitebook/sitebook/internal/store"
	"github.com/sitebook/sitebook/internal/store/files"
	"github.com/sitebook/sitebook/internal/store/pg"
	"github.com/sitebook/sitebook/internal/store/sqldb"
	"github.com/sitebook/sitebook/internal/types"
	"github.com/sitebook/sitebook/internal/ui"
)

// app bundles what every command needs.
type app struct {
	store    store.Store
	notifier *notify.Notifier
	dedup    *notify.RedisDeduper
	manager  *manager.Manager
}

// openRemote opens the store selected by cfg.Store.
func openRemote(ctx context.Context, c *config.Config, logger *zap.Logger) (store.Store, error) {
	switch c.Store.Driver {
	case config.DriverSQLite:
		return sqldb.Open(c.Store.Path)
	case config.DriverLibSQL:
		return sqldb.OpenReplica(c.Store.Path, sqldb.ReplicaOptions{
			URL:          c.Store.URL,
			AuthToken:    c.Store.AuthToken,
			SyncInterval: c.Store.SyncInterval,
		})
	case config.DriverPostgres:
		return pg.Open(ctx, c.Store.URL, logger)
	}
	return nil, fmt.Errorf("unknown store driver %q", c.Store.Driver)
}

// openStore opens the remote store and wraps it with the offline cache when
// one is configured.
func openStore(ctx context.Context, c *config.Config, logger *zap.Logger) (store.Store, error) {
	remote, err := openRemote(ctx, c, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", c.Store.Driver, err)
	}
	if c.Cache.Dir == "" {
		return remote, nil
	}
	cache, err := files.Open(c.Cache.Dir, logger)
	if err != nil {
		_ = remote.Close()
		return nil, fmt.Errorf("failed to open offline cache: %w", err)
	}
	return store.NewCached(remote, cache, logger), nil
}

// openApp builds the store, notifier and manager, and loads every project.
// An offline load is not an error; the cached data is used.
func openApp(ctx context.Context, sinks ...notify.Sink) (*app, error) {
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &app{store: st}
	notifyCfg := notify.Config{AutoClose: cfg.Notify.AutoClose}
	if cfg.Notify.RedisURL != "" {
		d, err := notify.NewRedisDeduper(cfg.Notify.RedisURL, cfg.Notify.StickyTTL, logger)
		if err != nil {
			logger.Warn("Redis de-duplication disabled", zap.Error(err))
		} else {
			a.dedup = d
			notifyCfg.Deduper = d
		}
	}
	a.notifier = notify.New(notifyCfg, logger, sinks...)

	a.manager = manager.New(st, a.notifier, logger, manager.Config{
		RemoteTimeout:        cfg.Manager.RemoteTimeout,
		RejectDuplicateNames: cfg.Manager.RejectDuplicateNames,
	})

	if err := a.manager.FetchAll(ctx); err != nil && !store.IsOffline(err) {
		a.close()
		return nil, err
	}
	return a, nil
}

// openCLI opens the app with notifications printed to stderr.
func openCLI(ctx context.Context) (*app, error) {
	return openApp(ctx, ui.NewConsoleSink(os.Stderr))
}

// close waits for pending writes before closing the store.
func (a *app) close() {
	a.manager.Close()
	a.notifier.Close()
	if a.dedup != nil {
		_ = a.dedup.Close()
	}
	if err := a.store.Close(); err != nil {
		logger.Warn("Error closing store", zap.Error(err))
	}
}

// findProject resolves ref as a project id, or failing that as a name.
func (a *app) findProject(ref string) (types.Project, error) {
	if p, ok := a.manager.GetProject(ref); ok {
		return p, nil
	}
	var found []types.Project
	for _, p := range a.manager.Projects() {
		if strings.EqualFold(strings.TrimSpace(p.Name), strings.TrimSpace(ref)) {
			found = append(found, p)
		}
	}
	switch len(found) {
	case 0:
		return types.Project{}, fmt.Errorf("project not found: %s", ref)
	case 1:
		return found[0], nil
	}
	return types.Project{}, fmt.Errorf("%d projects are named %q, use the id", len(found), ref)
}

// findTodo resolves ref as a todo id, or failing that as a title, within p.
func findTodo(p types.Project, ref string) (types.Todo, error) {
	var found []types.Todo
	for _, t := range p.Todos {
		if t.ID == ref {
			return *t, nil
		}
		if strings.EqualFold(t.Title, ref) {
			found = append(found, *t)
		}
	}
	switch len(found) {
	case 0:
		return types.Todo{}, fmt.Errorf("task not found in %s: %s", p.Name, ref)
	case 1:
		return found[0], nil
	}
	return types.Todo{}, fmt.Errorf("%d tasks are titled %q, use the id", len(found), ref)
}

// commandContext returns a context bounded by the remote timeout.
func commandContext() (context.Context, context.CancelFunc) {
	timeout := cfg.Manager.RemoteTimeout
	if timeout <= 0 {
		timeout = manager.DefaultRemoteTimeout
	}
	return context.WithTimeout(context.Background(), timeout+5*time.Second)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
