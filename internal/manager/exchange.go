package manager

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sitebook/sitebook/internal/schema"
	"github.com/sitebook/sitebook/internal/types"
)

// ImportResult reports what Import did.
type ImportResult struct {
	Created int      `json:"created"`
	Todos   int      `json:"todos"`
	Skipped []string `json:"skipped"`
}

// Message describes the result for a notification.
func (r ImportResult) Message() string {
	msg := fmt.Sprintf("Imported %d projects with %d tasks", r.Created, r.Todos)
	if n := len(r.Skipped); n > 0 {
		msg += fmt.Sprintf(", skipped %d with existing names", n)
	}
	return msg
}

// Export writes every project with its todos to w.
func (m *Manager) Export(w io.Writer, format schema.Format) error {
	return schema.WriteExport(w, format, schema.NewExport(m.Projects()))
}

// Import reads an export and creates its projects and todos through the
// normal mutation path. A project whose name matches an existing project, or
// an earlier one in the same file, is skipped. Names match ignoring case and
// surrounding space.
func (m *Manager) Import(r io.Reader, format schema.Format) (ImportResult, error) {
	res := ImportResult{Skipped: []string{}}

	exp, err := schema.ReadExport(r, format)
	if err != nil {
		return res, err
	}

	taken := make(map[string]bool)
	for _, p := range m.Projects() {
		taken[nameKey(p.Name)] = true
	}

	for _, pe := range exp.Projects {
		name := strings.TrimSpace(pe.Name)
		if name == "" {
			name = types.DefaultProjectName
		}
		if taken[nameKey(name)] {
			res.Skipped = append(res.Skipped, name)
			continue
		}
		taken[nameKey(name)] = true

		in := pe.ProjectInput()
		in.Name = name
		p, err := m.NewProject(in)
		if errors.Is(err, ErrDuplicateName) {
			res.Skipped = append(res.Skipped, name)
			continue
		}
		if err != nil {
			return res, fmt.Errorf("failed to import project %q: %w", name, err)
		}
		res.Created++

		for _, te := range pe.Todos {
			if _, ok := m.AddTodo(p.ID, te.TodoInput(p.ID)); ok {
				res.Todos++
			}
		}
	}
	return res, nil
}
