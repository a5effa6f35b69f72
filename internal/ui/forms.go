package ui

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/sitebook/sitebook/internal/types"
)

// ErrAborted is returned when the user cancels a form.
var ErrAborted = errors.New("aborted")

// IsInteractive reports whether stdin and stdout are both terminals.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// ProjectValues holds the fields collected by the project form.
type ProjectValues struct {
	Name        string
	Description string
	Status      string
	UserRole    string
	FinishDate  string
	Cost        string
}

// Input converts the collected values. Dates accept the same phrases as
// ParseHumanDate.
func (v ProjectValues) Input(now time.Time) (types.ProjectInput, error) {
	in := types.ProjectInput{
		Name:        strings.TrimSpace(v.Name),
		Description: v.Description,
		Status:      v.Status,
		UserRole:    v.UserRole,
	}
	if v.FinishDate != "" {
		t, err := ParseHumanDate(v.FinishDate, now)
		if err != nil {
			return in, err
		}
		in.FinishDate = t
	}
	if v.Cost != "" {
		c, err := strconv.ParseFloat(strings.TrimSpace(v.Cost), 64)
		if err != nil {
			return in, fmt.Errorf("invalid cost %q", v.Cost)
		}
		in.Cost = &c
	}
	return in, nil
}

// TodoValues holds the fields collected by the todo form.
type TodoValues struct {
	Title       string
	Description string
	Type        string
	Status      string
	FinishDate  string
}

func (v TodoValues) Input(projectID string, now time.Time) (types.TodoInput, error) {
	in := types.TodoInput{
		ProjectID:   projectID,
		Title:       strings.TrimSpace(v.Title),
		Description: v.Description,
		Type:        v.Type,
		Status:      v.Status,
	}
	if v.FinishDate != "" {
		t, err := ParseHumanDate(v.FinishDate, now)
		if err != nil {
			return in, err
		}
		in.FinishDate = t
	}
	return in, nil
}

func validDate(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	_, err := ParseHumanDate(s, time.Now())
	return err
}

func validCost(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if _, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
		return fmt.Errorf("cost must be a number")
	}
	return nil
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func runForm(f *huh.Form) error {
	if err := f.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return ErrAborted
		}
		return err
	}
	return nil
}

// ProjectForm asks for project fields, starting from v.
func ProjectForm(v *ProjectValues) error {
	if v.Status == "" {
		v.Status = string(types.ProjectPending)
	}
	if v.UserRole == "" {
		v.UserRole = string(types.RoleArchitect)
	}
	return runForm(huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Name").Value(&v.Name).Validate(required("name")),
			huh.NewText().Title("Description").Value(&v.Description),
		),
		huh.NewGroup(
			huh.NewSelect[string]().Title("Status").
				Options(huh.NewOptions(string(types.ProjectPending), string(types.ProjectActive), string(types.ProjectFinished))...).
				Value(&v.Status),
			huh.NewSelect[string]().Title("Your role").
				Options(huh.NewOptions(string(types.RoleArchitect), string(types.RoleEngineer), string(types.RoleDeveloper))...).
				Value(&v.UserRole),
			huh.NewInput().Title("Finish date").Placeholder("2025-06-30 or next friday").
				Value(&v.FinishDate).Validate(validDate),
			huh.NewInput().Title("Cost").Value(&v.Cost).Validate(validCost),
		),
	))
}

// TodoForm asks for todo fields, starting from v.
func TodoForm(v *TodoValues) error {
	if v.Type == "" {
		v.Type = string(types.TypePlanning)
	}
	if v.Status == "" {
		v.Status = string(types.TodoPending)
	}

	var typeOpts []huh.Option[string]
	for _, info := range types.TodoTypes() {
		typeOpts = append(typeOpts, huh.NewOption(info.Label, string(info.Type)))
	}
	var statusOpts []string
	for _, st := range types.TodoStatuses() {
		statusOpts = append(statusOpts, string(st))
	}

	return runForm(huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Title").Value(&v.Title).Validate(required("title")),
			huh.NewText().Title("Description").Value(&v.Description),
			huh.NewSelect[string]().Title("Type").Options(typeOpts...).Value(&v.Type),
			huh.NewSelect[string]().Title("Status").Options(huh.NewOptions(statusOpts...)...).Value(&v.Status),
			huh.NewInput().Title("Finish date").Value(&v.FinishDate).Validate(validDate),
		),
	))
}

// Confirm asks a yes/no question. Non-interactive sessions get def.
func Confirm(question string, def bool) (bool, error) {
	if !IsInteractive() {
		return def, nil
	}
	answer := def
	err := runForm(huh.NewForm(huh.NewGroup(
		huh.NewConfirm().Title(question).Value(&answer),
	)))
	return answer, err
}
