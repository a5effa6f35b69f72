package manager

import (
	"sort"
	"strings"

	"github.com/sitebook/sitebook/internal/types"
)

func matches(query string, fields ...string) bool {
	if query == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), query) {
			return true
		}
	}
	return false
}

// FilterProjects returns the projects whose name or description contains
// query, ignoring case, in list order. An empty query returns every project.
func (m *Manager) FilterProjects(query string) []types.Project {
	q := strings.ToLower(query)

	m.mu.Lock()
	defer m.mu.Unlock()

	out := []types.Project{}
	for _, p := range m.projects {
		if matches(q, p.Name, p.Description) {
			out = append(out, p.Clone())
		}
	}
	return out
}

// FilterTodos is FilterProjects for the todos of one project, matching
// title and description.
func (m *Manager) FilterTodos(projectID, query string) ([]types.Todo, bool) {
	q := strings.ToLower(query)

	m.mu.Lock()
	defer m.mu.Unlock()

	p, _ := m.find(projectID)
	if p == nil {
		return nil, false
	}
	out := []types.Todo{}
	for _, t := range p.Todos {
		if matches(q, t.Title, t.Description) {
			out = append(out, t.Clone())
		}
	}
	return out, true
}

// SortTodosByFinishDate orders todos latest finish date first. Todos with
// no finish date go last and keep their relative order.
func SortTodosByFinishDate(todos []types.Todo) {
	sort.SliceStable(todos, func(i, j int) bool {
		a, b := todos[i].FinishDate, todos[j].FinishDate
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}

// Summary counts the todos of a project.
type Summary struct {
	ProjectID string                   `json:"projectId"`
	Total     int                      `json:"total"`
	Completed int                      `json:"completed"`
	Progress  int                      `json:"progress"`
	ByStatus  map[types.TodoStatus]int `json:"byStatus"`
}

// Summary returns the todo counts of a project. Completed uses the same rule
// as progress, so it may exceed ByStatus[Completed].
func (m *Manager) Summary(projectID string) (Summary, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, _ := m.find(projectID)
	if p == nil {
		return Summary{}, false
	}
	s := Summary{
		ProjectID: p.ID,
		Total:     len(p.Todos),
		Progress:  p.Progress(),
		ByStatus:  make(map[types.TodoStatus]int, len(types.TodoStatuses())),
	}
	for _, st := range types.TodoStatuses() {
		s.ByStatus[st] = 0
	}
	for _, t := range p.Todos {
		s.ByStatus[t.Status]++
		if t.IsComplete() {
			s.Completed++
		}
	}
	return s, true
}
