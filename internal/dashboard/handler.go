package dashboard

import (
	"go.uber.org/zap"

	"github.com/sitebook/sitebook/internal/manager"
	"github.com/sitebook/sitebook/internal/notify"
	"github.com/sitebook/sitebook/internal/types"
)

// TodosData is the payload of a todos_changed message.
type TodosData struct {
	ProjectID string     `json:"projectId"`
	Todos     []TodoView `json:"todos"`
}

// StatsData contains project statistics
type StatsData struct {
	Projects  int            `json:"projects"`
	ByStatus  map[string]int `json:"by_status"`
	Todos     int            `json:"todos"`
	Completed int            `json:"completed"`
	Pending   int            `json:"pending_sync"`
	Errors    int            `json:"sync_errors"`
	TotalCost float64        `json:"total_cost"`
}

// Handler turns manager changes and notifications into dashboard messages.
// It is a notify.Sink.
type Handler struct {
	server  *Server
	manager *manager.Manager
	logger  *zap.Logger

	projectsToken manager.Token
	todosToken    manager.Token
}

// NewHandler creates a handler broadcasting through server. Call Attach to
// start listening to the manager.
func NewHandler(server *Server, mgr *manager.Manager, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		server:  server,
		manager: mgr,
		logger:  logger.With(zap.String("component", "dashboard")),
	}
	server.SetWelcome(h.Snapshot)
	return h
}

// Attach subscribes to the manager.
func (h *Handler) Attach() {
	h.projectsToken = h.manager.SubscribeProjects(h.OnProjectsChanged)
	h.todosToken = h.manager.SubscribeTodos(h.OnTodosChanged)
}

// Detach drops the manager subscriptions.
func (h *Handler) Detach() {
	h.manager.Unsubscribe(h.projectsToken)
	h.manager.Unsubscribe(h.todosToken)
}

// OnProjectsChanged broadcasts the project list and fresh stats.
func (h *Handler) OnProjectsChanged(manager.ProjectEvent) {
	projects := h.manager.Projects()
	h.send(MessageTypeProjects, NewProjectViews(projects))
	h.send(MessageTypeStats, ComputeStats(projects))
}

// OnTodosChanged broadcasts the todos of one project.
func (h *Handler) OnTodosChanged(e manager.TodoEvent) {
	todos, ok := h.manager.Todos(e.ProjectID)
	if !ok {
		return
	}
	h.send(MessageTypeTodos, TodosData{ProjectID: e.ProjectID, Todos: NewTodoViews(todos)})
}

// Show implements notify.Sink.
func (h *Handler) Show(n notify.Notification) {
	h.send(MessageTypeNotification, n)
}

// Dismiss implements notify.Sink.
func (h *Handler) Dismiss(n notify.Notification) {
	h.send(MessageTypeNotificationDismissed, n)
}

// Snapshot returns the messages a newly connected client starts from.
func (h *Handler) Snapshot() []Message {
	projects := h.manager.Projects()
	var out []Message
	for _, m := range []struct {
		typ  MessageType
		data any
	}{
		{MessageTypeProjects, NewProjectViews(projects)},
		{MessageTypeStats, ComputeStats(projects)},
	} {
		msg, err := NewMessage(m.typ, m.data)
		if err != nil {
			h.logger.Error("Failed to build snapshot", zap.Error(err))
			continue
		}
		out = append(out, msg)
	}
	return out
}

func (h *Handler) send(typ MessageType, data any) {
	msg, err := NewMessage(typ, data)
	if err != nil {
		h.logger.Error("Failed to build message", zap.Error(err))
		return
	}
	h.server.Broadcast(msg)
}

// ComputeStats summarizes a project list.
func ComputeStats(projects []types.Project) StatsData {
	stats := StatsData{
		Projects: len(projects),
		ByStatus: make(map[string]int),
	}
	count := func(s types.SyncState) {
		switch s {
		case types.SyncPending:
			stats.Pending++
		case types.SyncError:
			stats.Errors++
		}
	}
	for _, p := range projects {
		stats.ByStatus[string(p.Status)]++
		stats.TotalCost += p.Cost
		count(p.Sync)
		for _, t := range p.Todos {
			stats.Todos++
			if t.IsComplete() {
				stats.Completed++
			}
			count(t.Sync)
		}
	}
	return stats
}
