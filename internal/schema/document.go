package schema

import (
	"time"

	"github.com/sitebook/sitebook/internal/types"
)

// ProjectDocument returns the persisted fields of p. Todos, id and sync state
// are not part of the document.
func ProjectDocument(p *types.Project) map[string]any {
	return map[string]any{
		"name":        p.Name,
		"description": p.Description,
		"status":      string(p.Status),
		"userRole":    string(p.UserRole),
		"finishDate":  formatTime(p.FinishDate),
		"cost":        p.Cost,
		"progress":    p.Progress(),
	}
}

// TodoDocument returns the persisted fields of t. A missing finish date is
// stored as null.
func TodoDocument(t *types.Todo) map[string]any {
	doc := map[string]any{
		"projectId":   t.ProjectID,
		"title":       t.Title,
		"description": t.Description,
		"type":        string(t.Type),
		"status":      string(t.Status),
		"done":        t.Done,
		"date":        formatTime(t.Date),
		"finishDate":  nil,
	}
	if t.FinishDate != nil {
		doc["finishDate"] = formatTime(*t.FinishDate)
	}
	return doc
}

// ProjectPatchDocument returns only the fields a patch touches, with values
// taken from the already-patched project p.
func ProjectPatchDocument(p *types.Project, patch types.ProjectPatch) map[string]any {
	full := ProjectDocument(p)
	doc := map[string]any{}
	pick := func(set bool, key string) {
		if set {
			doc[key] = full[key]
		}
	}
	pick(patch.Name != nil, "name")
	pick(patch.Description != nil, "description")
	pick(patch.Status != nil, "status")
	pick(patch.UserRole != nil, "userRole")
	pick(patch.FinishDate != nil, "finishDate")
	pick(patch.Cost != nil, "cost")
	return doc
}

// TodoPatchDocument is ProjectPatchDocument for todos.
func TodoPatchDocument(t *types.Todo, patch types.TodoPatch) map[string]any {
	full := TodoDocument(t)
	doc := map[string]any{}
	pick := func(set bool, key string) {
		if set {
			doc[key] = full[key]
		}
	}
	pick(patch.Title != nil, "title")
	pick(patch.Description != nil, "description")
	pick(patch.Type != nil, "type")
	pick(patch.Status != nil, "status")
	pick(patch.Done != nil, "done")
	pick(patch.Date != nil, "date")
	pick(patch.FinishDate != nil || patch.ClearFinishDate, "finishDate")
	return doc
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
