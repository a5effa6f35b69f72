package manager

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sitebook/sitebook/internal/schema"
	"github.com/sitebook/sitebook/internal/store"
	"github.com/sitebook/sitebook/internal/types"
)

// offlineWarning is shown when FetchAll is served from the offline cache.
const offlineWarning = "Database connection failed. Viewing offline data."

// FetchAll replaces the project list with what the store holds: every
// project, then the todos of each project in turn. Everything loaded is
// synced.
//
// When the store serves cached data the list is still replaced, a warning is
// shown and the returned error satisfies store.IsOffline. Any other failure
// keeps the previous list and raises an error notification.
func (m *Manager) FetchAll(ctx context.Context) error {
	var offline error

	docs, err := m.store.ListDocuments(ctx, schema.ProjectsCollection)
	if err != nil {
		if !store.IsOffline(err) {
			return m.fetchFailed(err)
		}
		offline = err
	}

	projects := make([]*types.Project, 0, len(docs))
	for _, doc := range docs {
		p := types.ProjectFromDocument(doc.ID, doc.Data)

		todos, err := m.store.ListDocuments(ctx, schema.TodosPath(p.ID))
		if err != nil {
			if !store.IsOffline(err) {
				return m.fetchFailed(err)
			}
			if offline == nil {
				offline = err
			}
		}
		for _, td := range todos {
			t := types.TodoFromDocument(td.ID, td.Data)
			t.ProjectID = p.ID
			settle(t, types.SyncSynced)
			p.Todos = append(p.Todos, t)
		}
		p.CalculateProgress()
		settle(p, types.SyncSynced)
		projects = append(projects, p)
	}

	m.mu.Lock()
	m.projects = projects
	m.setGauge()
	m.mu.Unlock()

	m.logger.Info("Loaded projects",
		zap.Int("projects", len(projects)),
		zap.Bool("offline", offline != nil),
	)
	m.emitProjects()

	if offline != nil {
		m.notifier.Warning(offlineWarning)
		return offline
	}
	return nil
}

func (m *Manager) fetchFailed(err error) error {
	m.logger.Error("Failed to load projects", zap.Error(err))
	m.notifier.Error(fmt.Sprintf("Failed to load projects: %v", err))
	return fmt.Errorf("failed to load projects: %w", err)
}
