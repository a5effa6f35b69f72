package dashboard

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sitebook/sitebook/internal/types"
)

// ProjectView is the JSON form of a project.
type ProjectView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	UserRole    string     `json:"userRole"`
	FinishDate  time.Time  `json:"finishDate"`
	Cost        float64    `json:"cost"`
	Progress    int        `json:"progress"`
	Sync        string     `json:"sync"`
	Todos       []TodoView `json:"todos"`
}

// TodoView is the JSON form of a todo.
type TodoView struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"projectId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	Done        bool       `json:"done"`
	Date        time.Time  `json:"date"`
	FinishDate  *time.Time `json:"finishDate"`
	Sync        string     `json:"sync"`
}

func NewProjectView(p types.Project) ProjectView {
	v := ProjectView{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Status:      string(p.Status),
		UserRole:    string(p.UserRole),
		FinishDate:  p.FinishDate,
		Cost:        p.Cost,
		Progress:    p.Progress(),
		Sync:        string(p.Sync),
		Todos:       make([]TodoView, 0, len(p.Todos)),
	}
	for _, t := range p.Todos {
		v.Todos = append(v.Todos, NewTodoView(*t))
	}
	return v
}

func NewProjectViews(projects []types.Project) []ProjectView {
	out := make([]ProjectView, 0, len(projects))
	for _, p := range projects {
		out = append(out, NewProjectView(p))
	}
	return out
}

func NewTodoView(t types.Todo) TodoView {
	return TodoView{
		ID:          t.ID,
		ProjectID:   t.ProjectID,
		Title:       t.Title,
		Description: t.Description,
		Type:        string(t.Type),
		Status:      string(t.Status),
		Done:        t.Done,
		Date:        t.Date,
		FinishDate:  t.FinishDate,
		Sync:        string(t.Sync),
	}
}

func NewTodoViews(todos []types.Todo) []TodoView {
	out := make([]TodoView, 0, len(todos))
	for _, t := range todos {
		out = append(out, NewTodoView(t))
	}
	return out
}

// ProjectRequest is the body of project create and patch requests. Absent
// fields are left unchanged on patch and defaulted on create.
type ProjectRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Status      *string  `json:"status"`
	UserRole    *string  `json:"userRole"`
	FinishDate  any      `json:"finishDate"`
	Cost        *float64 `json:"cost"`
}

func (r ProjectRequest) Input() types.ProjectInput {
	return types.ProjectInput{
		Name:        deref(r.Name),
		Description: deref(r.Description),
		Status:      deref(r.Status),
		UserRole:    deref(r.UserRole),
		FinishDate:  r.FinishDate,
		Cost:        r.Cost,
	}
}

func (r ProjectRequest) Patch() types.ProjectPatch {
	return types.ProjectPatch{
		Name:        r.Name,
		Description: r.Description,
		Status:      r.Status,
		UserRole:    r.UserRole,
		FinishDate:  r.FinishDate,
		Cost:        r.Cost,
	}
}

// TodoRequest is the body of todo create and patch requests. A null
// finishDate clears it on patch.
type TodoRequest struct {
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	Type        *string         `json:"type"`
	Status      *string         `json:"status"`
	Done        *bool           `json:"done"`
	Date        any             `json:"date"`
	FinishDate  json.RawMessage `json:"finishDate"`
}

func (r TodoRequest) finishDate() (value any, unset bool, err error) {
	if len(r.FinishDate) == 0 {
		return nil, false, nil
	}
	if string(r.FinishDate) == "null" {
		return nil, true, nil
	}
	if err := json.Unmarshal(r.FinishDate, &value); err != nil {
		return nil, false, fmt.Errorf("invalid finishDate: %w", err)
	}
	return value, false, nil
}

func (r TodoRequest) Input() (types.TodoInput, error) {
	fd, _, err := r.finishDate()
	if err != nil {
		return types.TodoInput{}, err
	}
	return types.TodoInput{
		Title:       deref(r.Title),
		Description: deref(r.Description),
		Type:        deref(r.Type),
		Status:      deref(r.Status),
		Done:        r.Done,
		Date:        r.Date,
		FinishDate:  fd,
	}, nil
}

func (r TodoRequest) Patch() (types.TodoPatch, error) {
	fd, unset, err := r.finishDate()
	if err != nil {
		return types.TodoPatch{}, err
	}
	return types.TodoPatch{
		Title:           r.Title,
		Description:     r.Description,
		Type:            r.Type,
		Status:          r.Status,
		Done:            r.Done,
		Date:            r.Date,
		FinishDate:      fd,
		ClearFinishDate: unset,
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
