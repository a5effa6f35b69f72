// Package types defines the project and todo entities, their defaults and
// the derived progress calculation.
package types

import (
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultProjectName = "Untitled Project"
	DefaultTodoTitle   = "Untitled Task"
)

// Project is a top-level work record that owns its todos.
type Project struct {
	ID          string
	Name        string
	Description string
	Status      ProjectStatus
	UserRole    UserRole
	FinishDate  time.Time
	Cost        float64
	Todos       []*Todo
	Sync        SyncState

	// progress is derived from Todos; only CalculateProgress writes it.
	progress int
}

// ProjectInput is the loosely-typed input a project is built from. Every
// field is optional.
type ProjectInput struct {
	ID          string
	Name        string
	Description string
	Status      string
	UserRole    string
	FinishDate  any
	Cost        *float64
}

// NewProject builds a project from in, filling defaults for anything missing.
// It never fails.
func NewProject(in ProjectInput) *Project {
	p := &Project{
		ID:          in.ID,
		Name:        in.Name,
		Description: in.Description,
		FinishDate:  ParseDate(in.FinishDate),
		Todos:       []*Todo{},
		Sync:        SyncClean,
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Name == "" {
		p.Name = DefaultProjectName
	}
	p.Status, _ = ParseProjectStatus(in.Status)
	p.UserRole, _ = ParseUserRole(in.UserRole)
	if in.Cost != nil {
		p.Cost = normalizeCost(*in.Cost)
	}
	return p
}

// ProjectFromDocument builds a project from a stored document. Fields of the
// wrong type are treated as missing.
func ProjectFromDocument(id string, data map[string]any) *Project {
	in := ProjectInput{
		ID:          id,
		Name:        stringField(data, "name"),
		Description: stringField(data, "description"),
		Status:      stringField(data, "status"),
		UserRole:    stringField(data, "userRole"),
		FinishDate:  data["finishDate"],
	}
	if c, ok := number(data["cost"]); ok {
		in.Cost = &c
	}
	return NewProject(in)
}

// Progress returns the completion percentage, 0..100.
func (p *Project) Progress() int {
	return p.progress
}

// CalculateProgress recomputes Progress from the current todos: the rounded
// percentage of todos for which IsComplete holds, or 0 with no todos.
func (p *Project) CalculateProgress() {
	if len(p.Todos) == 0 {
		p.progress = 0
		return
	}
	completed := 0
	for _, t := range p.Todos {
		if t.IsComplete() {
			completed++
		}
	}
	p.progress = int(math.Round(float64(completed) / float64(len(p.Todos)) * 100))
}

// ProjectPatch is a partial project update; nil fields are left unchanged.
type ProjectPatch struct {
	Name        *string
	Description *string
	Status      *string
	UserRole    *string
	FinishDate  any
	Cost        *float64
}

// Apply merges patch into p. Unknown enum values are ignored.
func (p *Project) Apply(patch ProjectPatch) {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Status != nil {
		if st, ok := ParseProjectStatus(*patch.Status); ok {
			p.Status = st
		}
	}
	if patch.UserRole != nil {
		if r, ok := ParseUserRole(*patch.UserRole); ok {
			p.UserRole = r
		}
	}
	if patch.FinishDate != nil {
		p.FinishDate = ParseDate(patch.FinishDate)
	}
	if patch.Cost != nil {
		p.Cost = normalizeCost(*patch.Cost)
	}
}

// FindTodo returns the todo with the given id and its index, or nil and -1.
func (p *Project) FindTodo(id string) (*Todo, int) {
	for i, t := range p.Todos {
		if t.ID == id {
			return t, i
		}
	}
	return nil, -1
}

// SetSync moves the project to the next sync state.
func (p *Project) SetSync(next SyncState) error {
	return transition(&p.Sync, next)
}

// Clone returns a deep copy of p, todos included.
func (p *Project) Clone() Project {
	c := *p
	c.Todos = make([]*Todo, len(p.Todos))
	for i, t := range p.Todos {
		tc := t.Clone()
		c.Todos[i] = &tc
	}
	return c
}

func normalizeCost(c float64) float64 {
	if c < 0 || math.IsNaN(c) || math.IsInf(c, 0) {
		return 0
	}
	return c
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}
