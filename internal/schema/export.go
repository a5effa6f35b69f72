package schema

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sitebook/sitebook/internal/types"
)

// Format selects the encoding of an export file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat maps a flag value or file extension to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported format %q (want json or yaml)", s)
}

// Export is the top-level export file.
type Export struct {
	ExportedAt time.Time       `json:"exported_at" yaml:"exported_at"`
	Projects   []ProjectExport `json:"projects" yaml:"projects"`
}

// ProjectExport is a project as it appears in an export file. Cost is a
// pointer so that an absent cost is distinguishable from zero on import.
type ProjectExport struct {
	ID          string       `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Status      string       `json:"status,omitempty" yaml:"status,omitempty"`
	UserRole    string       `json:"userRole,omitempty" yaml:"userRole,omitempty"`
	FinishDate  string       `json:"finishDate,omitempty" yaml:"finishDate,omitempty"`
	Cost        *float64     `json:"cost,omitempty" yaml:"cost,omitempty"`
	Progress    int          `json:"progress" yaml:"progress"`
	Todos       []TodoExport `json:"todos,omitempty" yaml:"todos,omitempty"`
}

// TodoExport is a todo as it appears in an export file.
type TodoExport struct {
	ID          string `json:"id,omitempty" yaml:"id,omitempty"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Type        string `json:"type,omitempty" yaml:"type,omitempty"`
	Status      string `json:"status,omitempty" yaml:"status,omitempty"`
	Done        *bool  `json:"done,omitempty" yaml:"done,omitempty"`
	Date        string `json:"date,omitempty" yaml:"date,omitempty"`
	FinishDate  string `json:"finishDate,omitempty" yaml:"finishDate,omitempty"`
}

// NewExport converts projects to export form.
func NewExport(projects []types.Project) *Export {
	exp := &Export{
		ExportedAt: time.Now().UTC(),
		Projects:   make([]ProjectExport, 0, len(projects)),
	}
	for i := range projects {
		exp.Projects = append(exp.Projects, FromProject(&projects[i]))
	}
	return exp
}

// FromProject converts p, including its todos, to export form.
func FromProject(p *types.Project) ProjectExport {
	cost := p.Cost
	pe := ProjectExport{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Status:      string(p.Status),
		UserRole:    string(p.UserRole),
		FinishDate:  formatTime(p.FinishDate),
		Cost:        &cost,
		Progress:    p.Progress(),
	}
	for _, t := range p.Todos {
		pe.Todos = append(pe.Todos, FromTodo(t))
	}
	return pe
}

// FromTodo converts t to export form.
func FromTodo(t *types.Todo) TodoExport {
	done := t.Done
	te := TodoExport{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Type:        string(t.Type),
		Status:      string(t.Status),
		Done:        &done,
		Date:        formatTime(t.Date),
	}
	if t.FinishDate != nil {
		te.FinishDate = formatTime(*t.FinishDate)
	}
	return te
}

// ProjectInput returns the construction input for the exported project.
// The id is dropped; imported projects get fresh ids.
func (p ProjectExport) ProjectInput() types.ProjectInput {
	in := types.ProjectInput{
		Name:        p.Name,
		Description: p.Description,
		Status:      p.Status,
		UserRole:    p.UserRole,
		Cost:        p.Cost,
	}
	if p.FinishDate != "" {
		in.FinishDate = p.FinishDate
	}
	return in
}

// TodoInput returns the construction input for the exported todo, attached
// to projectID.
func (t TodoExport) TodoInput(projectID string) types.TodoInput {
	in := types.TodoInput{
		ProjectID:   projectID,
		Title:       t.Title,
		Description: t.Description,
		Type:        t.Type,
		Status:      t.Status,
		Done:        t.Done,
	}
	if t.Date != "" {
		in.Date = t.Date
	}
	if t.FinishDate != "" {
		in.FinishDate = t.FinishDate
	}
	return in
}

// WriteExport encodes exp to w in the given format.
func WriteExport(w io.Writer, format Format, exp *Export) error {
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(exp); err != nil {
			return fmt.Errorf("failed to encode export as json: %w", err)
		}
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(exp); err != nil {
			return fmt.Errorf("failed to encode export as yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to flush yaml export: %w", err)
		}
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
	return nil
}

// ReadExport decodes an export file. A bare list of projects is accepted as
// well as the {"projects": [...]} envelope.
func ReadExport(r io.Reader, format Format) (*Export, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read export: %w", err)
	}

	var unmarshal func([]byte, any) error
	switch format {
	case FormatJSON, "":
		unmarshal = json.Unmarshal
	case FormatYAML:
		unmarshal = yaml.Unmarshal
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}

	var exp Export
	envelopeErr := unmarshal(data, &exp)
	if envelopeErr == nil && exp.Projects != nil {
		return &exp, nil
	}

	var list []ProjectExport
	if err := unmarshal(data, &list); err == nil {
		return &Export{Projects: list}, nil
	}
	if envelopeErr != nil {
		return nil, fmt.Errorf("failed to parse export: %w", envelopeErr)
	}
	return &Export{Projects: []ProjectExport{}}, nil
}
