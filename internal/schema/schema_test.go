package schema

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sitebook/sitebook/internal/types"
)

func TestValidateCollectionPath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"projects", false},
		{"projects/p-1/todos", false},
		{TodosPath("abc"), false},
		{"", true},
		{"projects/p-1", true},
		{"projects//todos", true},
		{"projects/../todos", true},
		{"/projects", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := ValidateCollectionPath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateCollectionPath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidPath) {
				t.Errorf("error %v does not wrap ErrInvalidPath", err)
			}
		})
	}
}

func TestParentProjectID(t *testing.T) {
	if got := ParentProjectID(TodosPath("p-9")); got != "p-9" {
		t.Errorf("ParentProjectID = %q, want p-9", got)
	}
	if got := ParentProjectID(ProjectsCollection); got != "" {
		t.Errorf("ParentProjectID(projects) = %q, want empty", got)
	}
}

func TestProjectDocument_RoundTrip(t *testing.T) {
	cost := 990.0
	p := types.NewProject(types.ProjectInput{
		Name:       "Depot",
		Status:     "Finished",
		UserRole:   "Developer",
		FinishDate: "2025-09-30",
		Cost:       &cost,
	})
	p.Todos = append(p.Todos, types.NewTodo(types.TodoInput{Status: "Completed"}))
	p.CalculateProgress()

	doc := ProjectDocument(p)
	if _, ok := doc["todos"]; ok {
		t.Error("project document contains todos")
	}
	if _, ok := doc["id"]; ok {
		t.Error("project document contains id")
	}
	if doc["progress"] != 100 {
		t.Errorf("progress = %v, want 100", doc["progress"])
	}

	back := types.ProjectFromDocument(p.ID, doc)
	if back.Name != p.Name || back.Status != p.Status || back.UserRole != p.UserRole || back.Cost != p.Cost {
		t.Errorf("round trip = %+v, want %+v", back, p)
	}
	if !back.FinishDate.Equal(p.FinishDate) {
		t.Errorf("FinishDate = %v, want %v", back.FinishDate, p.FinishDate)
	}
}

func TestTodoDocument_FinishDate(t *testing.T) {
	todo := types.NewTodo(types.TodoInput{ProjectID: "p-1", Title: "Wire panel"})
	doc := TodoDocument(todo)
	if v, ok := doc["finishDate"]; !ok || v != nil {
		t.Errorf("finishDate = %v (present %v), want explicit nil", v, ok)
	}

	todo.FinishDate = types.ParseOptionalDate("2025-02-03")
	doc = TodoDocument(todo)
	back := types.TodoFromDocument(todo.ID, doc)
	if back.FinishDate == nil || !back.FinishDate.Equal(*todo.FinishDate) {
		t.Errorf("FinishDate = %v, want %v", back.FinishDate, todo.FinishDate)
	}
	if back.ProjectID != "p-1" {
		t.Errorf("ProjectID = %q, want p-1", back.ProjectID)
	}
}

func TestPatchDocuments(t *testing.T) {
	p := types.NewProject(types.ProjectInput{Name: "A"})
	name := "B"
	patch := types.ProjectPatch{Name: &name}
	p.Apply(patch)

	doc := ProjectPatchDocument(p, patch)
	if len(doc) != 1 || doc["name"] != "B" {
		t.Errorf("ProjectPatchDocument = %v, want only name", doc)
	}

	todo := types.NewTodo(types.TodoInput{FinishDate: "2025-01-01"})
	tp := types.TodoPatch{ClearFinishDate: true}
	todo.Apply(tp)
	tdoc := TodoPatchDocument(todo, tp)
	if v, ok := tdoc["finishDate"]; !ok || v != nil {
		t.Errorf("TodoPatchDocument = %v, want finishDate nil", tdoc)
	}
}

func testProjects() []types.Project {
	cost := 120.0
	p := types.NewProject(types.ProjectInput{Name: "Harbor", Cost: &cost, FinishDate: "2026-01-01"})
	p.Todos = append(p.Todos,
		types.NewTodo(types.TodoInput{ProjectID: p.ID, Title: "Survey", Type: "Site Works", Date: "2025-05-05"}),
		types.NewTodo(types.TodoInput{ProjectID: p.ID, Title: "Pour", Status: "Completed", Date: "2025-06-06", FinishDate: "2025-07-07"}),
	)
	p.CalculateProgress()
	return []types.Project{p.Clone()}
}

func TestExport_RoundTrip(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteExport(&buf, format, NewExport(testProjects())); err != nil {
				t.Fatalf("WriteExport() error = %v", err)
			}

			exp, err := ReadExport(&buf, format)
			if err != nil {
				t.Fatalf("ReadExport() error = %v", err)
			}
			if len(exp.Projects) != 1 {
				t.Fatalf("len(Projects) = %d, want 1", len(exp.Projects))
			}
			pe := exp.Projects[0]
			if pe.Name != "Harbor" || pe.Progress != 50 || len(pe.Todos) != 2 {
				t.Errorf("project = %+v", pe)
			}

			p := types.NewProject(pe.ProjectInput())
			if p.Cost != 120 {
				t.Errorf("Cost = %v, want 120", p.Cost)
			}
			todo := types.NewTodo(pe.Todos[1].TodoInput(p.ID))
			if todo.ProjectID != p.ID || todo.Status != types.TodoCompleted {
				t.Errorf("todo = %+v", todo)
			}
			want := time.Date(2025, 7, 7, 0, 0, 0, 0, time.UTC)
			if todo.FinishDate == nil || !todo.FinishDate.Equal(want) {
				t.Errorf("FinishDate = %v, want %v", todo.FinishDate, want)
			}
		})
	}
}

func TestReadExport_BareList(t *testing.T) {
	in := `[{"name": "Loft"}, {"name": "Barn", "cost": 5}]`
	exp, err := ReadExport(strings.NewReader(in), FormatJSON)
	if err != nil {
		t.Fatalf("ReadExport() error = %v", err)
	}
	if len(exp.Projects) != 2 || exp.Projects[1].Name != "Barn" {
		t.Errorf("Projects = %+v", exp.Projects)
	}
}

func TestReadExport_Invalid(t *testing.T) {
	if _, err := ReadExport(strings.NewReader("{not json"), FormatJSON); err == nil {
		t.Error("ReadExport() succeeded on malformed input")
	}
	if _, err := ReadExport(strings.NewReader("x"), Format("xml")); err == nil {
		t.Error("ReadExport() succeeded with unknown format")
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{"": FormatJSON, "json": FormatJSON, ".yml": FormatYAML, "YAML": FormatYAML}
	for in, want := range tests {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseFormat("csv"); err == nil {
		t.Error("ParseFormat(csv) succeeded")
	}
}
