// Package storetest holds the behavior every store.Store backend must share.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/sitebook/sitebook/internal/schema"
	"github.com/sitebook/sitebook/internal/store"
)

// Run exercises a fresh store returned by open for every subtest.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"CreateAndList", testCreateAndList},
		{"ListEmpty", testListEmpty},
		{"ListOrder", testListOrder},
		{"SetReplaces", testSetReplaces},
		{"UpdateMerges", testUpdateMerges},
		{"UpdateMissing", testUpdateMissing},
		{"DeleteIdempotent", testDeleteIdempotent},
		{"Subcollections", testSubcollections},
		{"InvalidPath", testInvalidPath},
		{"StoresCopy", testStoresCopy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func find(docs []store.Document, id string) (store.Document, bool) {
	for _, d := range docs {
		if d.ID == id {
			return d, true
		}
	}
	return store.Document{}, false
}

func mustList(t *testing.T, s store.Store, path string) []store.Document {
	t.Helper()
	docs, err := s.ListDocuments(context.Background(), path)
	if err != nil {
		t.Fatalf("ListDocuments(%q) error = %v", path, err)
	}
	return docs
}

func testCreateAndList(t *testing.T, s store.Store) {
	ctx := context.Background()
	id, err := s.CreateDocument(ctx, schema.ProjectsCollection, map[string]any{
		"name": "Harbor",
		"cost": 2.5,
		"open": true,
		"gone": nil,
	})
	if err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	if id == "" {
		t.Fatal("CreateDocument() returned empty id")
	}

	docs := mustList(t, s, schema.ProjectsCollection)
	if len(docs) != 1 {
		t.Fatalf("len(docs) = %d, want 1", len(docs))
	}
	d := docs[0]
	if d.ID != id {
		t.Errorf("ID = %q, want %q", d.ID, id)
	}
	if d.Data["name"] != "Harbor" || d.Data["cost"] != 2.5 || d.Data["open"] != true {
		t.Errorf("Data = %v", d.Data)
	}
	if v, ok := d.Data["gone"]; !ok || v != nil {
		t.Errorf("null field = %v (present %v), want stored null", v, ok)
	}
	if _, ok := d.Data["id"]; ok {
		t.Error("Data contains id")
	}
}

func testListEmpty(t *testing.T, s store.Store) {
	docs := mustList(t, s, schema.TodosPath("nobody"))
	if len(docs) != 0 {
		t.Errorf("len(docs) = %d, want 0", len(docs))
	}
}

func testListOrder(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := s.SetDocument(ctx, schema.ProjectsCollection, id, map[string]any{"name": id}); err != nil {
			t.Fatalf("SetDocument(%s) error = %v", id, err)
		}
	}
	// Rewriting keeps the original position.
	if err := s.SetDocument(ctx, schema.ProjectsCollection, "a", map[string]any{"name": "a2"}); err != nil {
		t.Fatalf("SetDocument(a) error = %v", err)
	}

	docs := mustList(t, s, schema.ProjectsCollection)
	var got []string
	for _, d := range docs {
		got = append(got, d.ID)
	}
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("order = %v, want [a b c]", got)
	}
}

func testSetReplaces(t *testing.T, s store.Store) {
	ctx := context.Background()
	path := schema.ProjectsCollection
	if err := s.SetDocument(ctx, path, "p1", map[string]any{"name": "One", "description": "first"}); err != nil {
		t.Fatalf("SetDocument() error = %v", err)
	}
	if err := s.SetDocument(ctx, path, "p1", map[string]any{"name": "Uno"}); err != nil {
		t.Fatalf("SetDocument() error = %v", err)
	}

	d, ok := find(mustList(t, s, path), "p1")
	if !ok {
		t.Fatal("p1 missing")
	}
	if d.Data["name"] != "Uno" {
		t.Errorf("name = %v, want Uno", d.Data["name"])
	}
	if _, ok := d.Data["description"]; ok {
		t.Error("SetDocument kept a field the new data did not have")
	}
}

func testUpdateMerges(t *testing.T, s store.Store) {
	ctx := context.Background()
	path := schema.TodosPath("p1")
	if err := s.SetDocument(ctx, path, "t1", map[string]any{"title": "Pour", "done": false}); err != nil {
		t.Fatalf("SetDocument() error = %v", err)
	}
	if err := s.UpdateDocument(ctx, path, "t1", map[string]any{"done": true, "finishDate": nil}); err != nil {
		t.Fatalf("UpdateDocument() error = %v", err)
	}

	d, ok := find(mustList(t, s, path), "t1")
	if !ok {
		t.Fatal("t1 missing")
	}
	if d.Data["title"] != "Pour" {
		t.Errorf("title = %v, want Pour", d.Data["title"])
	}
	if d.Data["done"] != true {
		t.Errorf("done = %v, want true", d.Data["done"])
	}
	if v, ok := d.Data["finishDate"]; !ok || v != nil {
		t.Errorf("finishDate = %v (present %v), want stored null", v, ok)
	}
}

func testUpdateMissing(t *testing.T, s store.Store) {
	err := s.UpdateDocument(context.Background(), schema.ProjectsCollection, "ghost", map[string]any{"name": "x"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpdateDocument() error = %v, want ErrNotFound", err)
	}
}

func testDeleteIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()
	path := schema.ProjectsCollection
	if err := s.SetDocument(ctx, path, "p1", map[string]any{"name": "One"}); err != nil {
		t.Fatalf("SetDocument() error = %v", err)
	}
	if err := s.DeleteDocument(ctx, path, "p1"); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	if err := s.DeleteDocument(ctx, path, "p1"); err != nil {
		t.Fatalf("second DeleteDocument() error = %v", err)
	}
	if docs := mustList(t, s, path); len(docs) != 0 {
		t.Errorf("len(docs) = %d after delete, want 0", len(docs))
	}
}

func testSubcollections(t *testing.T, s store.Store) {
	ctx := context.Background()
	if err := s.SetDocument(ctx, schema.ProjectsCollection, "p1", map[string]any{"name": "One"}); err != nil {
		t.Fatalf("SetDocument() error = %v", err)
	}
	if _, err := s.CreateDocument(ctx, schema.TodosPath("p1"), map[string]any{"title": "A"}); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	if _, err := s.CreateDocument(ctx, schema.TodosPath("p2"), map[string]any{"title": "B"}); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}

	if n := len(mustList(t, s, schema.ProjectsCollection)); n != 1 {
		t.Errorf("projects = %d, want 1", n)
	}
	todos := mustList(t, s, schema.TodosPath("p1"))
	if len(todos) != 1 || todos[0].Data["title"] != "A" {
		t.Errorf("p1 todos = %v", todos)
	}
}

func testInvalidPath(t *testing.T, s store.Store) {
	ctx := context.Background()
	if _, err := s.ListDocuments(ctx, "projects/p1"); !errors.Is(err, store.ErrInvalidPath) {
		t.Errorf("ListDocuments(document path) error = %v, want ErrInvalidPath", err)
	}
	if _, err := s.CreateDocument(ctx, "", map[string]any{}); !errors.Is(err, store.ErrInvalidPath) {
		t.Errorf("CreateDocument(empty path) error = %v, want ErrInvalidPath", err)
	}
}

func testStoresCopy(t *testing.T, s store.Store) {
	ctx := context.Background()
	data := map[string]any{"name": "Before"}
	if err := s.SetDocument(ctx, schema.ProjectsCollection, "p1", data); err != nil {
		t.Fatalf("SetDocument() error = %v", err)
	}
	data["name"] = "After"

	d, _ := find(mustList(t, s, schema.ProjectsCollection), "p1")
	if d.Data["name"] != "Before" {
		t.Errorf("name = %v, want Before", d.Data["name"])
	}
}
