package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitebook/sitebook/internal/manager"
	"github.com/sitebook/sitebook/internal/notify"
	"github.com/sitebook/sitebook/internal/store/files"
	"github.com/sitebook/sitebook/internal/types"
)

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Port: 0})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	if addr := server.GetAddr(); addr == "" || strings.HasSuffix(addr, ":0") {
		t.Fatalf("Server address not resolved: %q", addr)
	}

	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func startServer(t *testing.T) *Server {
	t.Helper()
	server := NewServer(&Config{Port: 0})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

func dial(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

// waitClients polls until the server has registered n clients.
func waitClients(t *testing.T, server *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for server.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, got %d", n, server.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

// readUntil skips messages until one of type typ arrives and match accepts it.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, typ MessageType, match func(Message) bool) Message {
	t.Helper()
	for {
		msg := readMessage(t, ctx, conn)
		if msg.Type == typ && (match == nil || match(msg)) {
			return msg
		}
	}
}

func TestMultipleClients(t *testing.T) {
	server := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	numClients := 3
	for i := 0; i < numClients; i++ {
		dial(t, ctx, server)
	}
	waitClients(t, server, numClients)
}

func TestMessageBroadcast(t *testing.T) {
	server := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)
	waitClients(t, server, 1)

	msg, err := NewMessage(MessageTypeTodos, TodosData{ProjectID: "p1"})
	if err != nil {
		t.Fatal(err)
	}
	server.Broadcast(msg)

	received := readMessage(t, ctx, conn)
	if received.Type != MessageTypeTodos {
		t.Errorf("Expected message type %s, got %s", MessageTypeTodos, received.Type)
	}
	var data TodosData
	if err := json.Unmarshal(received.Data, &data); err != nil {
		t.Fatalf("Failed to unmarshal todos data: %v", err)
	}
	if data.ProjectID != "p1" {
		t.Errorf("Expected project p1, got %s", data.ProjectID)
	}
}

func TestClientDisconnect(t *testing.T) {
	server := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	waitClients(t, server, 1)

	_ = conn.Close(websocket.StatusNormalClosure, "")
	waitClients(t, server, 0)
}

// env is a dashboard wired to a manager over a file store.
type env struct {
	server   *Server
	manager  *manager.Manager
	notifier *notify.Notifier
	client   *http.Client
}

func setupEnv(t *testing.T, cfg manager.Config) *env {
	t.Helper()

	st, err := files.Open(t.TempDir(), nil)
	require.NoError(t, err)

	server := NewServer(&Config{Port: 0})
	n := notify.New(notify.Config{}, nil)
	mgr := manager.New(st, n, nil, cfg)

	h := NewHandler(server, mgr, nil)
	n.AddSink(h)
	h.Attach()
	NewAPI(mgr, n, nil).Register(server)

	require.NoError(t, server.Start())
	t.Cleanup(func() {
		h.Detach()
		mgr.Close()
		n.Close()
		_ = server.Stop()
		_ = st.Close()
	})

	return &env{
		server:   server,
		manager:  mgr,
		notifier: n,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (e *env) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, "http://"+e.server.GetAddr()+path, r)
	require.NoError(t, err)
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestAPI_ProjectLifecycle(t *testing.T) {
	e := setupEnv(t, manager.Config{})

	resp := e.do(t, http.MethodPost, "/api/projects", map[string]any{"name": "Riverside", "cost": 1200.5})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[ProjectView](t, resp)
	assert.Equal(t, "Riverside", created.Name)
	assert.Equal(t, "Pending", created.Status)
	e.manager.Wait()

	resp = e.do(t, http.MethodGet, "/api/projects", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[[]ProjectView](t, resp)
	require.Len(t, list, 1)
	id := list[0].ID
	assert.Equal(t, "synced", list[0].Sync)

	resp = e.do(t, http.MethodPatch, "/api/projects/"+id, map[string]any{"status": "Active"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Active", decodeBody[ProjectView](t, resp).Status)

	resp = e.do(t, http.MethodPost, "/api/projects/"+id+"/todos", map[string]any{"title": "Rebar", "type": "Steel Works"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	todo := decodeBody[TodoView](t, resp)
	assert.Equal(t, "Steel Works", todo.Type)
	e.manager.Wait()

	resp = e.do(t, http.MethodPatch, "/api/projects/"+id+"/todos/"+todo.ID, map[string]any{"status": "Completed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Completed", decodeBody[TodoView](t, resp).Status)

	resp = e.do(t, http.MethodGet, "/api/projects/"+id+"/summary", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := decodeBody[manager.Summary](t, resp)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 100, summary.Progress)

	resp = e.do(t, http.MethodDelete, "/api/projects/"+id+"/todos/"+todo.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = e.do(t, http.MethodDelete, "/api/projects/"+id, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = e.do(t, http.MethodGet, "/api/projects/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_NotFoundAndBadRequest(t *testing.T) {
	e := setupEnv(t, manager.Config{})

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPatch, "/api/projects/nope", map[string]any{}).StatusCode)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodDelete, "/api/projects/nope/todos/x", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/api/projects/nope/retry", nil).StatusCode)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/api/projects", "{broken").StatusCode)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/export?format=xml", nil).StatusCode)
}

func TestAPI_RetryRequiresError(t *testing.T) {
	e := setupEnv(t, manager.Config{})

	p, err := e.manager.NewProject(types.ProjectInput{Name: "Quay"})
	require.NoError(t, err)
	e.manager.Wait()

	resp := e.do(t, http.MethodPost, "/api/projects/"+p.ID+"/retry", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_DuplicateName(t *testing.T) {
	e := setupEnv(t, manager.Config{RejectDuplicateNames: true})

	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/projects", map[string]any{"name": "Annex"}).StatusCode)
	resp := e.do(t, http.MethodPost, "/api/projects", map[string]any{"name": "annex"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var levels []notify.Level
	for _, n := range e.notifier.Active() {
		levels = append(levels, n.Level)
	}
	assert.Contains(t, levels, notify.LevelError)
	assert.Len(t, e.manager.Projects(), 1)
}

func TestAPI_ExportImport(t *testing.T) {
	e := setupEnv(t, manager.Config{})

	p, _ := e.manager.NewProject(types.ProjectInput{Name: "Atrium"})
	e.manager.AddTodo(p.ID, types.TodoInput{Title: "Glazing", Type: "Glass Works"})
	e.manager.Wait()

	resp := e.do(t, http.MethodGet, "/api/export?format=yaml", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/yaml", resp.Header.Get("Content-Type"))
	exported, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(exported), "Atrium")

	resp = e.do(t, http.MethodPost, "/api/import?format=yaml", string(exported))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decodeBody[manager.ImportResult](t, resp)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, []string{"Atrium"}, res.Skipped)

	body := `{"projects": [{"name": "Lobby", "todos": [{"title": "Tiles"}]}]}`
	resp = e.do(t, http.MethodPost, "/api/import", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res = decodeBody[manager.ImportResult](t, resp)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Todos)
	assert.Len(t, e.manager.Projects(), 2)
}

func TestAPI_RefreshAndTodoTypes(t *testing.T) {
	e := setupEnv(t, manager.Config{})
	e.manager.NewProject(types.ProjectInput{Name: "Kiosk"})
	e.manager.Wait()

	resp := e.do(t, http.MethodPost, "/api/refresh", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[map[string]any](t, resp)
	assert.Equal(t, false, got["offline"])
	assert.Equal(t, float64(1), got["projects"])

	resp = e.do(t, http.MethodGet, "/api/todo-types", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody[[]types.TodoTypeInfo](t, resp), 16)
}

func TestHealthAndMetrics(t *testing.T) {
	e := setupEnv(t, manager.Config{})

	resp := e.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decodeBody[map[string]any](t, resp)["status"])

	resp = e.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "sitebook_projects")
}

func TestAPI_RequestMetricsByRoute(t *testing.T) {
	e := setupEnv(t, manager.Config{})

	p, err := e.manager.NewProject(types.ProjectInput{Name: "Depot"})
	require.NoError(t, err)
	e.manager.Wait()

	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/projects/"+p.ID, nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/nowhere", nil).StatusCode)

	resp := e.do(t, http.MethodGet, "/metrics", nil)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `route="/api/projects/:id",status="200"`)
	assert.Contains(t, string(raw), `route="unmatched",status="404"`)
}

func TestWebSocket_Feed(t *testing.T) {
	e := setupEnv(t, manager.Config{})
	e.manager.NewProject(types.ProjectInput{Name: "Existing"})
	e.manager.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, e.server)

	welcome := readMessage(t, ctx, conn)
	require.Equal(t, MessageTypeProjects, welcome.Type)
	var initial []ProjectView
	require.NoError(t, json.Unmarshal(welcome.Data, &initial))
	require.Len(t, initial, 1)
	assert.Equal(t, "Existing", initial[0].Name)
	assert.Equal(t, MessageTypeStats, readMessage(t, ctx, conn).Type)
	waitClients(t, e.server, 1)

	resp := e.do(t, http.MethodPost, "/api/projects", map[string]any{"name": "Fresh"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	fresh := decodeBody[ProjectView](t, resp)

	readUntil(t, ctx, conn, MessageTypeProjects, func(m Message) bool {
		var views []ProjectView
		_ = json.Unmarshal(m.Data, &views)
		return len(views) == 2
	})
	note := readUntil(t, ctx, conn, MessageTypeNotification, nil)
	assert.Contains(t, string(note.Data), "Fresh")

	e.do(t, http.MethodPost, "/api/projects/"+fresh.ID+"/todos", map[string]any{"title": "Footings"})
	msg := readUntil(t, ctx, conn, MessageTypeTodos, nil)
	var todos TodosData
	require.NoError(t, json.Unmarshal(msg.Data, &todos))
	require.Len(t, todos.Todos, 1)
	assert.Equal(t, "Footings", todos.Todos[0].Title)
}

func TestComputeStats(t *testing.T) {
	a := types.NewProject(types.ProjectInput{Name: "a", Status: "Active", Cost: ptr(100.0)})
	a.Sync = types.SyncError
	done := types.NewTodo(types.TodoInput{Status: "Completed"})
	done.Sync = types.SyncPending
	a.Todos = append(a.Todos, done, types.NewTodo(types.TodoInput{}))
	b := types.NewProject(types.ProjectInput{Name: "b", Cost: ptr(50.0)})

	stats := ComputeStats([]types.Project{a.Clone(), b.Clone()})
	assert.Equal(t, 2, stats.Projects)
	assert.Equal(t, 1, stats.ByStatus["Active"])
	assert.Equal(t, 1, stats.ByStatus["Pending"])
	assert.Equal(t, 2, stats.Todos)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 150.0, stats.TotalCost)
}

func ptr[T any](v T) *T { return &v }
