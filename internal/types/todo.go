package types

import (
	"time"

	"github.com/google/uuid"
)

// Todo is a task owned by exactly one project. It refers to the project by id only.
type Todo struct {
	ID          string
	ProjectID   string
	Title       string
	Description string
	Type        TodoType
	Status      TodoStatus

	// Done is the legacy completion toggle. It overlaps with
	// Status == TodoCompleted and the two are not kept in agreement.
	Done       bool
	Date       time.Time
	FinishDate *time.Time
	Sync       SyncState
}

// TodoInput is the loosely-typed input a todo is built from.
type TodoInput struct {
	ID          string
	ProjectID   string
	Title       string
	Description string
	Type        string
	Status      string
	Done        *bool
	Date        any
	FinishDate  any
}

// NewTodo builds a todo from in, filling defaults for anything missing.
// It never fails.
func NewTodo(in TodoInput) *Todo {
	t := &Todo{
		ID:          in.ID,
		ProjectID:   in.ProjectID,
		Title:       in.Title,
		Description: in.Description,
		Date:        ParseDate(in.Date),
		FinishDate:  ParseOptionalDate(in.FinishDate),
		Sync:        SyncClean,
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Title == "" {
		t.Title = DefaultTodoTitle
	}
	t.Type, _ = ParseTodoType(in.Type)
	t.Status, _ = ParseTodoStatus(in.Status)
	if in.Done != nil {
		t.Done = *in.Done
	}
	return t
}

// TodoFromDocument builds a todo from a stored document.
func TodoFromDocument(id string, data map[string]any) *Todo {
	in := TodoInput{
		ID:          id,
		ProjectID:   stringField(data, "projectId"),
		Title:       stringField(data, "title"),
		Description: stringField(data, "description"),
		Type:        stringField(data, "type"),
		Status:      stringField(data, "status"),
		Date:        data["date"],
		FinishDate:  data["finishDate"],
	}
	if done, ok := data["done"].(bool); ok {
		in.Done = &done
	}
	return NewTodo(in)
}

// IsComplete reports whether the todo counts as done for progress: either
// its status is Completed or its legacy Done flag is set.
func (t *Todo) IsComplete() bool {
	return t.Status == TodoCompleted || t.Done
}

// TodoPatch is a partial todo update; nil fields are left unchanged.
type TodoPatch struct {
	Title       *string
	Description *string
	Type        *string
	Status      *string
	Done        *bool
	Date        any
	FinishDate  any

	// ClearFinishDate removes the finish date.
	ClearFinishDate bool
}

// Apply merges patch into t. Unknown enum values are ignored.
func (t *Todo) Apply(patch TodoPatch) {
	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Type != nil {
		if typ, ok := ParseTodoType(*patch.Type); ok {
			t.Type = typ
		}
	}
	if patch.Status != nil {
		if st, ok := ParseTodoStatus(*patch.Status); ok {
			t.Status = st
		}
	}
	if patch.Done != nil {
		t.Done = *patch.Done
	}
	if patch.Date != nil {
		t.Date = ParseDate(patch.Date)
	}
	if patch.ClearFinishDate {
		t.FinishDate = nil
	} else if patch.FinishDate != nil {
		t.FinishDate = ParseOptionalDate(patch.FinishDate)
	}
}

// SetSync moves the todo to the next sync state.
func (t *Todo) SetSync(next SyncState) error {
	return transition(&t.Sync, next)
}

// Clone returns a copy of t that shares nothing mutable with it.
func (t *Todo) Clone() Todo {
	c := *t
	if t.FinishDate != nil {
		fd := *t.FinishDate
		c.FinishDate = &fd
	}
	return c
}
