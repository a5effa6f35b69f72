package files

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sitebook/sitebook/internal/schema"
	"github.com/sitebook/sitebook/internal/store"
	"github.com/sitebook/sitebook/internal/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := Open(t.TempDir(), nil)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		return s
	})
}

func TestLayout(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	ctx := context.Background()

	if err := s.SetDocument(ctx, schema.ProjectsCollection, "p1", map[string]any{"name": "One"}); err != nil {
		t.Fatalf("SetDocument() error = %v", err)
	}
	if err := s.SetDocument(ctx, schema.TodosPath("p1"), "t1", map[string]any{"title": "A"}); err != nil {
		t.Fatalf("SetDocument() error = %v", err)
	}

	for _, rel := range []string{"projects/p1.json", "projects/p1/todos/t1.json"} {
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel))); err != nil {
			t.Errorf("expected %s: %v", rel, err)
		}
	}
}

func TestSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	core, logs := observer.New(zap.WarnLevel)
	s, err := Open(dir, zap.New(core))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	ctx := context.Background()

	if err := s.SetDocument(ctx, schema.ProjectsCollection, "good", map[string]any{"name": "Good"}); err != nil {
		t.Fatalf("SetDocument() error = %v", err)
	}
	bad := filepath.Join(dir, "projects", "bad.json")
	if err := os.WriteFile(bad, []byte("{torn"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	docs, err := s.ListDocuments(ctx, schema.ProjectsCollection)
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "good" {
		t.Errorf("docs = %v, want only good", docs)
	}

	warned := logs.FilterMessage("Skipping unreadable document").All()
	if len(warned) != 1 {
		t.Fatalf("logged %d warnings, want 1", len(warned))
	}
	if got := warned[0].ContextMap()["file"]; got != "bad.json" {
		t.Errorf("warning file = %v, want bad.json", got)
	}
}

func TestRejectsTraversalID(t *testing.T) {
	s, err := Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	err = s.SetDocument(context.Background(), schema.ProjectsCollection, "../escape", map[string]any{})
	if err == nil {
		t.Fatal("SetDocument() accepted a path-like id")
	}
}
