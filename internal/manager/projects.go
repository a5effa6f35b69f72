package manager

import (
	"context"
	"fmt"
	"slices"

	"github.com/sitebook/sitebook/internal/schema"
	"github.com/sitebook/sitebook/internal/types"
)

// NewProject adds a project built from in and starts creating it in the
// store. The returned copy is pending; it carries the local id until the
// store assigns one.
func (m *Manager) NewProject(in types.ProjectInput) (types.Project, error) {
	p := types.NewProject(in)

	m.mu.Lock()
	if m.cfg.RejectDuplicateNames && m.nameTaken(p.Name) {
		m.mu.Unlock()
		return types.Project{}, fmt.Errorf("%w: %q", ErrDuplicateName, p.Name)
	}
	settle(p, types.SyncPending)
	m.projects = append(m.projects, p)
	m.setGauge()
	localID := p.ID
	m.creating[localID] = nil
	snap := p.Clone()
	m.mu.Unlock()

	m.emitProjects()

	var (
		doc     map[string]any
		storeID string
	)
	m.send(remoteOp{
		entity: "project",
		op:     "create",
		bind:   func() { doc = schema.ProjectDocument(p) },
		call: func(ctx context.Context) error {
			id, err := m.store.CreateDocument(ctx, schema.ProjectsCollection, doc)
			storeID = id
			return err
		},
		done: func(err error) { m.projectCreated(p, localID, storeID, err) },
	})
	return snap, nil
}

// nameTaken must be called with mu held.
func (m *Manager) nameTaken(name string) bool {
	key := nameKey(name)
	for _, p := range m.projects {
		if nameKey(p.Name) == key {
			return true
		}
	}
	return false
}

func (m *Manager) projectCreated(p *types.Project, localID, storeID string, err error) {
	m.mu.Lock()
	queued := m.flush(localID)
	if err != nil {
		settle(p, types.SyncError)
		m.mu.Unlock()

		m.emitProjects()
		m.report(err, fmt.Sprintf("Cloud sync failed: %v", err))
		fail(queued, errNotCreated)
		return
	}

	if storeID != "" && storeID != p.ID {
		m.aliases[p.ID] = storeID
		p.ID = storeID
		for _, t := range p.Todos {
			t.ProjectID = storeID
		}
	}
	settle(p, types.SyncSynced)
	for _, op := range queued {
		m.start(op)
	}
	m.mu.Unlock()

	m.emitProjects()
}

// projectWritten settles p after an update or retry.
func (m *Manager) projectWritten(p *types.Project, err error, prefix string) {
	m.mu.Lock()
	if err != nil {
		settle(p, types.SyncError)
	} else {
		settle(p, types.SyncSynced)
	}
	m.mu.Unlock()

	m.emitProjects()
	if err != nil {
		m.report(err, prefix+err.Error())
	}
}

// UpdateProject applies patch to the project and sends the touched fields to
// the store. It returns false for an unknown id.
func (m *Manager) UpdateProject(id string, patch types.ProjectPatch) bool {
	m.mu.Lock()
	p, _ := m.find(id)
	if p == nil {
		m.mu.Unlock()
		return false
	}
	p.Apply(patch)
	settle(p, types.SyncPending)
	doc := schema.ProjectPatchDocument(p, patch)
	key := p.ID
	m.mu.Unlock()

	m.emitProjects()

	var target string
	m.send(remoteOp{
		entity: "project",
		op:     "update",
		bind:   func() { target = p.ID },
		call: func(ctx context.Context) error {
			return m.store.UpdateDocument(ctx, schema.ProjectsCollection, target, doc)
		},
		done: func(err error) { m.projectWritten(p, err, "Update failed: ") },
	}, key)
	return true
}

// DeleteProject removes the project locally and then from the store. A
// failed remote delete is reported but not reversed. The project's todo
// documents are left in the store.
func (m *Manager) DeleteProject(id string) bool {
	m.mu.Lock()
	p, i := m.find(id)
	if p == nil {
		m.mu.Unlock()
		return false
	}
	m.projects = slices.Delete(m.projects, i, i+1)
	m.setGauge()
	key := p.ID
	m.mu.Unlock()

	m.emitProjects()

	var target string
	m.send(remoteOp{
		entity: "project",
		op:     "delete",
		bind:   func() { target = p.ID },
		call: func(ctx context.Context) error {
			return m.store.DeleteDocument(ctx, schema.ProjectsCollection, target)
		},
		done: func(err error) { m.report(err, "Delete failed on server.") },
	}, key)
	return true
}

// RetryProject writes the whole project again. Only a project in the error
// state can be retried.
func (m *Manager) RetryProject(id string) bool {
	m.mu.Lock()
	p, _ := m.find(id)
	if p == nil || p.Sync != types.SyncError {
		m.mu.Unlock()
		return false
	}
	settle(p, types.SyncPending)
	key := p.ID
	m.mu.Unlock()

	m.emitProjects()

	var (
		target string
		doc    map[string]any
	)
	m.send(remoteOp{
		entity: "project",
		op:     "retry",
		bind: func() {
			target = p.ID
			doc = schema.ProjectDocument(p)
		},
		call: func(ctx context.Context) error {
			return m.store.SetDocument(ctx, schema.ProjectsCollection, target, doc)
		},
		done: func(err error) { m.projectWritten(p, err, "Retry failed: ") },
	}, key)
	return true
}
