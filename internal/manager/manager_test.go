package manager_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitebook/sitebook/internal/manager"
	"github.com/sitebook/sitebook/internal/schema"
	"github.com/sitebook/sitebook/internal/store"
	"github.com/sitebook/sitebook/internal/types"
)

func newTestManager(t *testing.T, cfg manager.Config) (*manager.Manager, *memStore, *notes) {
	t.Helper()
	s := newMemStore()
	n := &notes{}
	if cfg.RemoteTimeout == 0 {
		cfg.RemoteTimeout = 5 * time.Second
	}
	m := manager.New(s, n, nil, cfg)
	t.Cleanup(func() {
		s.release()
		m.Close()
	})
	return m, s, n
}

func ptr[T any](v T) *T { return &v }

func TestProgressScenario(t *testing.T) {
	m, s, _ := newTestManager(t, manager.Config{})

	p, err := m.NewProject(types.ProjectInput{Name: "Tower", Cost: ptr(1000.0)})
	require.NoError(t, err)
	assert.Equal(t, 0, p.Progress())
	assert.Equal(t, 1000.0, p.Cost)

	first, ok := m.AddTodo(p.ID, types.TodoInput{Title: "Pour slab"})
	require.True(t, ok)
	second, ok := m.AddTodo(p.ID, types.TodoInput{Title: "Frame walls"})
	require.True(t, ok)

	require.True(t, m.UpdateTodo(p.ID, first.ID, types.TodoPatch{Status: ptr("Completed")}))
	got, _ := m.GetProject(p.ID)
	assert.Equal(t, 50, got.Progress())

	require.True(t, m.UpdateTodo(p.ID, second.ID, types.TodoPatch{Done: ptr(true)}))
	got, _ = m.GetProject(p.ID)
	assert.Equal(t, 100, got.Progress())

	require.True(t, m.DeleteTodo(p.ID, first.ID))
	got, _ = m.GetProject(p.ID)
	assert.Equal(t, 100, got.Progress())
	assert.Len(t, got.Todos, 1)

	m.Wait()

	got, ok = m.GetProject(p.ID)
	require.True(t, ok)
	assert.Equal(t, "srv-1", got.ID)
	assert.Equal(t, types.SyncSynced, got.Sync)
	require.Len(t, got.Todos, 1)
	assert.Equal(t, types.SyncSynced, got.Todos[0].Sync)
	assert.Equal(t, "srv-1", got.Todos[0].ProjectID)

	require.Equal(t, 1, s.Count(schema.TodosPath("srv-1")))
	doc, ok := s.Get(schema.TodosPath("srv-1"), got.Todos[0].ID)
	require.True(t, ok)
	assert.Equal(t, true, doc["done"])
	assert.Equal(t, "Frame walls", doc["title"])
}

func TestNewProject_PendingThenSynced(t *testing.T) {
	m, s, n := newTestManager(t, manager.Config{})

	var (
		mu     sync.Mutex
		states []types.SyncState
	)
	m.SubscribeProjects(func(manager.ProjectEvent) {
		mu.Lock()
		defer mu.Unlock()
		if p, ok := m.GetProject("local-1"); ok {
			states = append(states, p.Sync)
		}
	})

	s.hold()
	p, err := m.NewProject(types.ProjectInput{ID: "local-1", Name: "Depot"})
	require.NoError(t, err)
	assert.Equal(t, types.SyncPending, p.Sync)

	list := m.Projects()
	require.Len(t, list, 1)
	assert.Equal(t, types.SyncPending, list[0].Sync)

	s.release()
	m.Wait()

	mu.Lock()
	assert.Equal(t, []types.SyncState{types.SyncPending, types.SyncSynced}, states)
	mu.Unlock()

	got, ok := m.GetProject("local-1")
	require.True(t, ok)
	assert.Equal(t, "srv-1", got.ID)
	assert.Equal(t, "srv-1", m.ResolveID("local-1"))
	assert.Empty(t, n.Warnings())
}

func TestNewProject_RemoteFailure(t *testing.T) {
	m, s, n := newTestManager(t, manager.Config{})
	s.setFail("create", errors.New("permission denied"))

	s.hold()
	p, err := m.NewProject(types.ProjectInput{Name: "Bridge"})
	require.NoError(t, err)
	todo, ok := m.AddTodo(p.ID, types.TodoInput{Title: "Survey"})
	require.True(t, ok)
	require.True(t, m.UpdateProject(p.ID, types.ProjectPatch{Name: ptr("Bridge 2")}))
	require.True(t, m.UpdateTodo(p.ID, todo.ID, types.TodoPatch{Status: ptr("Assigned")}))
	s.release()
	m.Wait()

	got, ok := m.GetProject(p.ID)
	require.True(t, ok, "project must stay in the list")
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "Bridge 2", got.Name)
	assert.Equal(t, types.SyncError, got.Sync)
	require.Len(t, got.Todos, 1)
	assert.Equal(t, types.SyncError, got.Todos[0].Sync)
	assert.Equal(t, types.TodoAssigned, got.Todos[0].Status)

	warnings := n.Warnings()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "Cloud sync failed")
	assert.Equal(t, []string{"create projects"}, s.Calls())
}

func TestQueuedWritesUseStoreID(t *testing.T) {
	m, s, _ := newTestManager(t, manager.Config{})

	s.hold()
	p, err := m.NewProject(types.ProjectInput{Name: "Warehouse"})
	require.NoError(t, err)
	require.True(t, m.UpdateProject(p.ID, types.ProjectPatch{Description: ptr("north lot")}))
	s.release()
	m.Wait()

	assert.Equal(t, []string{"create projects", "update projects/srv-1"}, s.Calls())
	doc, ok := s.Get(schema.ProjectsCollection, "srv-1")
	require.True(t, ok)
	assert.Equal(t, "north lot", doc["description"])

	got, ok := m.GetProject(p.ID)
	require.True(t, ok)
	assert.Equal(t, types.SyncSynced, got.Sync)
}

func TestDeleteProject(t *testing.T) {
	m, s, n := newTestManager(t, manager.Config{})

	p, err := m.NewProject(types.ProjectInput{Name: "Shed"})
	require.NoError(t, err)
	m.Wait()

	require.True(t, m.DeleteProject(p.ID))
	assert.Empty(t, m.Projects())
	assert.False(t, m.DeleteProject(p.ID))
	m.Wait()

	assert.Equal(t, 0, s.Count(schema.ProjectsCollection))
	assert.Empty(t, n.Warnings())
}

func TestDeleteProject_RemoteFailureKeepsLocalDelete(t *testing.T) {
	m, s, n := newTestManager(t, manager.Config{})

	p, err := m.NewProject(types.ProjectInput{Name: "Shed"})
	require.NoError(t, err)
	m.Wait()

	s.setFail("delete", errors.New("unavailable"))
	require.True(t, m.DeleteProject(p.ID))
	m.Wait()

	assert.Empty(t, m.Projects())
	assert.Equal(t, 1, s.Count(schema.ProjectsCollection))
	assert.Equal(t, []string{"Delete failed on server."}, n.Warnings())
}

func TestDeleteTodo_IsSynchronous(t *testing.T) {
	m, s, _ := newTestManager(t, manager.Config{})

	p, _ := m.NewProject(types.ProjectInput{Name: "Mall"})
	a, _ := m.AddTodo(p.ID, types.TodoInput{Title: "a", Status: "Completed"})
	m.AddTodo(p.ID, types.TodoInput{Title: "b"})
	m.Wait()

	s.hold()
	require.True(t, m.DeleteTodo(p.ID, a.ID))
	todos, ok := m.Todos(p.ID)
	require.True(t, ok)
	require.Len(t, todos, 1)
	assert.Equal(t, "b", todos[0].Title)
	got, _ := m.GetProject(p.ID)
	assert.Equal(t, 0, got.Progress())
}

func TestUnknownIDsAreNoOps(t *testing.T) {
	m, s, n := newTestManager(t, manager.Config{})
	events := 0
	m.SubscribeProjects(func(manager.ProjectEvent) { events++ })

	assert.False(t, m.UpdateProject("nope", types.ProjectPatch{Name: ptr("x")}))
	assert.False(t, m.DeleteProject("nope"))
	assert.False(t, m.RetryProject("nope"))
	_, ok := m.AddTodo("nope", types.TodoInput{})
	assert.False(t, ok)
	assert.False(t, m.UpdateTodo("nope", "nope", types.TodoPatch{}))
	assert.False(t, m.DeleteTodo("nope", "nope"))

	assert.Equal(t, 0, events)
	assert.Empty(t, s.Calls())
	assert.Empty(t, n.Warnings())
}

func TestSubscriptions(t *testing.T) {
	m, _, _ := newTestManager(t, manager.Config{})
	p, _ := m.NewProject(types.ProjectInput{Name: "Clinic"})
	m.Wait()

	var (
		mu  sync.Mutex
		got []string
	)
	seen := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), got...)
	}
	token := m.SubscribeTodos(func(e manager.TodoEvent) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.ProjectID)
	})

	m.AddTodo(p.ID, types.TodoInput{Title: "x"})
	m.Wait()
	require.NotEmpty(t, seen())
	for _, id := range seen() {
		assert.Equal(t, "srv-1", id)
	}

	m.Unsubscribe(token)
	before := len(seen())
	m.AddTodo(p.ID, types.TodoInput{Title: "y"})
	m.Wait()
	assert.Len(t, seen(), before)
}

func TestDuplicateNames(t *testing.T) {
	m, _, _ := newTestManager(t, manager.Config{RejectDuplicateNames: true})

	_, err := m.NewProject(types.ProjectInput{Name: "Alpha"})
	require.NoError(t, err)
	_, err = m.NewProject(types.ProjectInput{Name: "  alpha "})
	require.ErrorIs(t, err, manager.ErrDuplicateName)
	assert.Len(t, m.Projects(), 1)

	loose, _, _ := newTestManager(t, manager.Config{})
	_, err = loose.NewProject(types.ProjectInput{Name: "Alpha"})
	require.NoError(t, err)
	_, err = loose.NewProject(types.ProjectInput{Name: "Alpha"})
	require.NoError(t, err)
}

func TestRetryProject(t *testing.T) {
	m, s, _ := newTestManager(t, manager.Config{})
	s.setFail("create", errors.New("offline"))

	p, _ := m.NewProject(types.ProjectInput{Name: "Pier"})
	m.Wait()
	got, _ := m.GetProject(p.ID)
	require.Equal(t, types.SyncError, got.Sync)

	s.setFail("create", nil)
	require.True(t, m.RetryProject(p.ID))
	got, _ = m.GetProject(p.ID)
	assert.Equal(t, types.SyncPending, got.Sync)
	m.Wait()

	got, _ = m.GetProject(p.ID)
	assert.Equal(t, types.SyncSynced, got.Sync)
	doc, ok := s.Get(schema.ProjectsCollection, p.ID)
	require.True(t, ok)
	assert.Equal(t, "Pier", doc["name"])

	assert.False(t, m.RetryProject(p.ID), "synced projects are not retried")
}

func TestRetryTodo(t *testing.T) {
	m, s, _ := newTestManager(t, manager.Config{})
	p, _ := m.NewProject(types.ProjectInput{Name: "Dock"})
	m.Wait()

	s.setFail("update", errors.New("timeout"))
	todo, _ := m.AddTodo(p.ID, types.TodoInput{Title: "Piles"})
	m.Wait()
	require.True(t, m.UpdateTodo(p.ID, todo.ID, types.TodoPatch{Status: ptr("In Progress")}))
	m.Wait()

	todos, _ := m.Todos(p.ID)
	require.Equal(t, types.SyncError, todos[0].Sync)

	s.setFail("update", nil)
	require.True(t, m.RetryTodo(p.ID, todo.ID))
	m.Wait()

	todos, _ = m.Todos(p.ID)
	assert.Equal(t, types.SyncSynced, todos[0].Sync)
	doc, ok := s.Get(schema.TodosPath(m.ResolveID(p.ID)), todos[0].ID)
	require.True(t, ok)
	assert.Equal(t, "In Progress", doc["status"])
}

func seed(s *memStore) {
	ctx := context.Background()
	_ = s.SetDocument(ctx, schema.ProjectsCollection, "p1", map[string]any{"name": "Office", "cost": 250.0})
	_ = s.SetDocument(ctx, schema.ProjectsCollection, "p2", map[string]any{"name": "Garage"})
	_ = s.SetDocument(ctx, schema.TodosPath("p1"), "t1", map[string]any{"title": "Roof", "status": "Completed"})
	_ = s.SetDocument(ctx, schema.TodosPath("p1"), "t2", map[string]any{"title": "Doors", "done": false})
	_ = s.SetDocument(ctx, schema.TodosPath("p1"), "t3", map[string]any{"title": "Paint", "done": true})
}

func TestFetchAll(t *testing.T) {
	m, s, n := newTestManager(t, manager.Config{})
	seed(s)

	require.NoError(t, m.FetchAll(context.Background()))

	list := m.Projects()
	require.Len(t, list, 2)
	assert.Equal(t, "Office", list[0].Name)
	assert.Equal(t, 67, list[0].Progress())
	assert.Equal(t, types.SyncSynced, list[0].Sync)
	require.Len(t, list[0].Todos, 3)
	for _, td := range list[0].Todos {
		assert.Equal(t, "p1", td.ProjectID)
		assert.Equal(t, types.SyncSynced, td.Sync)
	}
	assert.Empty(t, list[1].Todos)
	assert.Equal(t, 0, list[1].Progress())
	assert.Empty(t, n.Warnings())
}

func TestFetchAll_Offline(t *testing.T) {
	m, s, n := newTestManager(t, manager.Config{})
	seed(s)
	s.setListErr(&store.OfflineError{Err: errors.New("dial tcp: refused")})

	err := m.FetchAll(context.Background())
	require.Error(t, err)
	assert.True(t, store.IsOffline(err))
	assert.Len(t, m.Projects(), 2)
	assert.Equal(t, []string{"Database connection failed. Viewing offline data."}, n.Warnings())
}

func TestFetchAll_FailureKeepsList(t *testing.T) {
	m, s, n := newTestManager(t, manager.Config{})
	seed(s)
	require.NoError(t, m.FetchAll(context.Background()))

	s.setListErr(errors.New("permission denied"))
	err := m.FetchAll(context.Background())
	require.Error(t, err)
	assert.False(t, store.IsOffline(err))
	assert.Len(t, m.Projects(), 2)
	require.Len(t, n.Errors(), 1)
	assert.Contains(t, n.Errors()[0], "Failed to load projects")
}

func TestFilterProjects(t *testing.T) {
	m, _, _ := newTestManager(t, manager.Config{})
	for _, in := range []types.ProjectInput{
		{Name: "ABC Tower"},
		{Name: "Library", Description: "near abc street"},
		{Name: "School"},
		{Name: "xAbCx"},
	} {
		_, err := m.NewProject(in)
		require.NoError(t, err)
	}

	var names []string
	for _, p := range m.FilterProjects("abc") {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"ABC Tower", "Library", "xAbCx"}, names)
	assert.Len(t, m.FilterProjects(""), 4)
	assert.Empty(t, m.FilterProjects("zzz"))
}

func TestFilterTodos(t *testing.T) {
	m, _, _ := newTestManager(t, manager.Config{})
	p, _ := m.NewProject(types.ProjectInput{Name: "Hall"})
	m.AddTodo(p.ID, types.TodoInput{Title: "Wiring", Description: "ground floor"})
	m.AddTodo(p.ID, types.TodoInput{Title: "Plaster"})
	m.AddTodo(p.ID, types.TodoInput{Title: "Lights", Description: "GROUND lobby"})

	todos, ok := m.FilterTodos(p.ID, "ground")
	require.True(t, ok)
	require.Len(t, todos, 2)
	assert.Equal(t, "Wiring", todos[0].Title)
	assert.Equal(t, "Lights", todos[1].Title)

	_, ok = m.FilterTodos("missing", "")
	assert.False(t, ok)
}

func TestSortTodosByFinishDate(t *testing.T) {
	day := func(d int) *time.Time {
		v := time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
		return &v
	}
	todos := []types.Todo{
		{Title: "none-1"},
		{Title: "early", FinishDate: day(1)},
		{Title: "late", FinishDate: day(20)},
		{Title: "none-2"},
		{Title: "mid", FinishDate: day(10)},
	}
	manager.SortTodosByFinishDate(todos)

	var got []string
	for _, td := range todos {
		got = append(got, td.Title)
	}
	assert.Equal(t, []string{"late", "mid", "early", "none-1", "none-2"}, got)
}

func TestSummary(t *testing.T) {
	m, _, _ := newTestManager(t, manager.Config{})
	p, _ := m.NewProject(types.ProjectInput{Name: "Depot"})
	m.AddTodo(p.ID, types.TodoInput{Status: "Completed"})
	m.AddTodo(p.ID, types.TodoInput{Status: "In Progress", Done: ptr(true)})
	m.AddTodo(p.ID, types.TodoInput{})

	s, ok := m.Summary(p.ID)
	require.True(t, ok)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Completed)
	assert.Equal(t, 67, s.Progress)
	assert.Equal(t, 1, s.ByStatus[types.TodoCompleted])
	assert.Equal(t, 1, s.ByStatus[types.TodoInProgress])
	assert.Equal(t, 1, s.ByStatus[types.TodoPending])
	assert.Equal(t, 0, s.ByStatus[types.TodoAssigned])
}

func TestExportImport(t *testing.T) {
	src, _, _ := newTestManager(t, manager.Config{})
	p, _ := src.NewProject(types.ProjectInput{Name: "Stadium", Cost: ptr(5e6)})
	src.AddTodo(p.ID, types.TodoInput{Title: "Seats", Status: "Completed"})
	src.AddTodo(p.ID, types.TodoInput{Title: "Pitch"})
	_, _ = src.NewProject(types.ProjectInput{Name: "Arena"})
	src.Wait()

	for _, format := range []schema.Format{schema.FormatJSON, schema.FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, src.Export(&buf, format))

			dst, s, _ := newTestManager(t, manager.Config{})
			_, _ = dst.NewProject(types.ProjectInput{Name: "arena"})

			res, err := dst.Import(bytes.NewReader(buf.Bytes()), format)
			require.NoError(t, err)
			assert.Equal(t, 1, res.Created)
			assert.Equal(t, 2, res.Todos)
			assert.Equal(t, []string{"Arena"}, res.Skipped)
			dst.Wait()

			stadium := dst.FilterProjects("stadium")
			require.Len(t, stadium, 1)
			assert.Equal(t, 50, stadium[0].Progress())
			assert.Equal(t, 5e6, stadium[0].Cost)
			assert.Equal(t, 2, s.Count(schema.TodosPath(stadium[0].ID)))
		})
	}
}

func TestImport_DuplicatesWithinFile(t *testing.T) {
	m, _, _ := newTestManager(t, manager.Config{})
	in := `[{"name": "Yard"}, {"name": "YARD"}, {"name": "Gate"}]`

	res, err := m.Import(strings.NewReader(in), schema.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, []string{"YARD"}, res.Skipped)
}

func TestImport_Invalid(t *testing.T) {
	m, _, _ := newTestManager(t, manager.Config{})
	_, err := m.Import(strings.NewReader("{not json"), schema.FormatJSON)
	assert.Error(t, err)
	assert.Empty(t, m.Projects())
}

func TestClose_ClosesOwnNotifier(t *testing.T) {
	s := newMemStore()
	s.setFail("create", errors.New("permission denied"))
	m := manager.New(s, nil, nil, manager.Config{RemoteTimeout: 5 * time.Second})

	_, err := m.NewProject(types.ProjectInput{Name: "Shed"})
	require.NoError(t, err)
	m.Wait()

	n := m.OwnNotifier()
	require.NotNil(t, n)
	require.Len(t, n.Active(), 1)

	m.Close()
	assert.Empty(t, n.Active())
	_, shown := n.Warning("after close")
	assert.False(t, shown)
}

func TestClose_LeavesPassedNotifier(t *testing.T) {
	m, _, _ := newTestManager(t, manager.Config{})
	assert.Nil(t, m.OwnNotifier())
}
