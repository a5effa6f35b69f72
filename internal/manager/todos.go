package manager

import (
	"context"
	"slices"

	"github.com/sitebook/sitebook/internal/schema"
	"github.com/sitebook/sitebook/internal/types"
)

// findTodo must be called with mu held.
func (m *Manager) findTodo(projectID, todoID string) (*types.Project, *types.Todo, int) {
	p, _ := m.find(projectID)
	if p == nil {
		return nil, nil, -1
	}
	t, i := p.FindTodo(m.resolve(todoID))
	if t == nil {
		return nil, nil, -1
	}
	return p, t, i
}

// AddTodo appends a todo built from in to the project and starts creating it
// in the store. It returns false for an unknown project.
func (m *Manager) AddTodo(projectID string, in types.TodoInput) (types.Todo, bool) {
	m.mu.Lock()
	p, _ := m.find(projectID)
	if p == nil {
		m.mu.Unlock()
		return types.Todo{}, false
	}
	in.ProjectID = p.ID
	t := types.NewTodo(in)
	settle(t, types.SyncPending)
	p.Todos = append(p.Todos, t)
	p.CalculateProgress()
	localID := t.ID
	m.creating[localID] = nil
	key := p.ID
	snap := t.Clone()
	m.mu.Unlock()

	m.emitTodos(snap.ProjectID)
	m.emitProjects()

	var (
		path, storeID string
		doc           map[string]any
	)
	m.send(remoteOp{
		entity: "todo",
		op:     "create",
		bind: func() {
			path = schema.TodosPath(t.ProjectID)
			doc = schema.TodoDocument(t)
		},
		call: func(ctx context.Context) error {
			id, err := m.store.CreateDocument(ctx, path, doc)
			storeID = id
			return err
		},
		done: func(err error) { m.todoCreated(t, localID, storeID, err) },
	}, key)
	return snap, true
}

func (m *Manager) todoCreated(t *types.Todo, localID, storeID string, err error) {
	m.mu.Lock()
	queued := m.flush(localID)
	if err != nil {
		settle(t, types.SyncError)
	} else {
		if storeID != "" && storeID != t.ID {
			m.aliases[t.ID] = storeID
			t.ID = storeID
		}
		settle(t, types.SyncSynced)
		for _, op := range queued {
			m.start(op)
		}
		queued = nil
	}
	projectID := t.ProjectID
	m.mu.Unlock()

	m.emitTodos(projectID)
	m.report(err, "Task failed to sync")
	fail(queued, errNotCreated)
}

func (m *Manager) todoWritten(t *types.Todo, err error, text string) {
	m.mu.Lock()
	if err != nil {
		settle(t, types.SyncError)
	} else {
		settle(t, types.SyncSynced)
	}
	projectID := t.ProjectID
	m.mu.Unlock()

	m.emitTodos(projectID)
	m.report(err, text)
}

// UpdateTodo applies patch to the todo, recomputes the project's progress
// and sends the touched fields to the store. It returns false when either id
// is unknown.
func (m *Manager) UpdateTodo(projectID, todoID string, patch types.TodoPatch) bool {
	m.mu.Lock()
	p, t, _ := m.findTodo(projectID, todoID)
	if t == nil {
		m.mu.Unlock()
		return false
	}
	t.Apply(patch)
	settle(t, types.SyncPending)
	p.CalculateProgress()
	doc := schema.TodoPatchDocument(t, patch)
	keys := []string{t.ID, p.ID}
	m.mu.Unlock()

	m.emitTodos(keys[1])
	m.emitProjects()

	var path, target string
	m.send(remoteOp{
		entity: "todo",
		op:     "update",
		bind: func() {
			path = schema.TodosPath(t.ProjectID)
			target = t.ID
		},
		call: func(ctx context.Context) error {
			return m.store.UpdateDocument(ctx, path, target, doc)
		},
		done: func(err error) { m.todoWritten(t, err, "Task update failed to sync") },
	}, keys...)
	return true
}

// DeleteTodo removes the todo locally, recomputes progress and deletes it
// from the store. A failed remote delete is reported but not reversed.
func (m *Manager) DeleteTodo(projectID, todoID string) bool {
	m.mu.Lock()
	p, t, i := m.findTodo(projectID, todoID)
	if t == nil {
		m.mu.Unlock()
		return false
	}
	p.Todos = slices.Delete(p.Todos, i, i+1)
	p.CalculateProgress()
	keys := []string{t.ID, p.ID}
	m.mu.Unlock()

	m.emitTodos(keys[1])
	m.emitProjects()

	var path, target string
	m.send(remoteOp{
		entity: "todo",
		op:     "delete",
		bind: func() {
			path = schema.TodosPath(t.ProjectID)
			target = t.ID
		},
		call: func(ctx context.Context) error {
			return m.store.DeleteDocument(ctx, path, target)
		},
		done: func(err error) { m.report(err, "Failed to delete task from cloud.") },
	}, keys...)
	return true
}

// RetryTodo writes the whole todo again. Only a todo in the error state can
// be retried.
func (m *Manager) RetryTodo(projectID, todoID string) bool {
	m.mu.Lock()
	p, t, _ := m.findTodo(projectID, todoID)
	if t == nil || t.Sync != types.SyncError {
		m.mu.Unlock()
		return false
	}
	settle(t, types.SyncPending)
	keys := []string{t.ID, p.ID}
	m.mu.Unlock()

	m.emitTodos(keys[1])

	var (
		path, target string
		doc          map[string]any
	)
	m.send(remoteOp{
		entity: "todo",
		op:     "retry",
		bind: func() {
			path = schema.TodosPath(t.ProjectID)
			target = t.ID
			doc = schema.TodoDocument(t)
		},
		call: func(ctx context.Context) error {
			return m.store.SetDocument(ctx, path, target, doc)
		},
		done: func(err error) { m.todoWritten(t, err, "Task failed to sync") },
	}, keys...)
	return true
}
