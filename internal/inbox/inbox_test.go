package inbox

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sitebook/sitebook/internal/manager"
	"github.com/sitebook/sitebook/internal/schema"
)

// fakeImporter records what it was asked to import.
type fakeImporter struct {
	mu      sync.Mutex
	formats []schema.Format
	bodies  []string
	err     error
}

func (f *fakeImporter) Import(r io.Reader, format schema.Format) (manager.ImportResult, error) {
	data, _ := io.ReadAll(r)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return manager.ImportResult{}, f.err
	}
	f.formats = append(f.formats, format)
	f.bodies = append(f.bodies, string(data))
	return manager.ImportResult{Created: 1}, nil
}

func (f *fakeImporter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bodies)
}

func newTestInbox(t *testing.T, imp Importer) (*Inbox, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "inbox")
	in, err := New(dir, imp, nil, &Config{Debounce: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return in, dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", &fakeImporter{}, nil, nil); err == nil {
		t.Error("New() accepted an empty directory")
	}
	if _, err := New(t.TempDir(), nil, nil, nil); err == nil {
		t.Error("New() accepted a nil importer")
	}
}

func TestIsCandidate(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"projects.json", true},
		{"projects.YAML", true},
		{"backup.yml", true},
		{"projects.json.imported", false},
		{"projects.json.failed", false},
		{".hidden.json", false},
		{"notes.txt", false},
	}
	for _, tt := range tests {
		if got := isCandidate(tt.name); got != tt.want {
			t.Errorf("isCandidate(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestProcessFile(t *testing.T) {
	imp := &fakeImporter{}
	in, dir := newTestInbox(t, imp)

	path := filepath.Join(dir, "site.yaml")
	writeFile(t, path, "projects: []\n")

	if err := in.ProcessFile(path); err != nil {
		t.Fatalf("ProcessFile() failed: %v", err)
	}
	if exists(path) || !exists(path+ImportedSuffix) {
		t.Error("processed file was not renamed to .imported")
	}
	if imp.formats[0] != schema.FormatYAML {
		t.Errorf("format = %q, want yaml", imp.formats[0])
	}
}

func TestProcessFile_Failure(t *testing.T) {
	imp := &fakeImporter{err: errors.New("bad file")}
	in, dir := newTestInbox(t, imp)

	path := filepath.Join(dir, "broken.json")
	writeFile(t, path, "{")

	if err := in.ProcessFile(path); err == nil {
		t.Fatal("ProcessFile() succeeded for a failing import")
	}
	if !exists(path + FailedSuffix) {
		t.Error("failed file was not renamed to .failed")
	}
}

func TestSettled(t *testing.T) {
	in, _ := newTestInbox(t, &fakeImporter{})
	now := time.Now()
	in.queue["old"] = now.Add(-time.Second)
	in.queue["fresh"] = now

	ready := in.settled(now)
	if len(ready) != 1 || ready[0] != "old" {
		t.Errorf("settled() = %v, want [old]", ready)
	}
	if _, ok := in.queue["fresh"]; !ok {
		t.Error("fresh entry removed before it settled")
	}
}

func TestStart_ImportsExistingAndNewFiles(t *testing.T) {
	imp := &fakeImporter{}
	in, dir := newTestInbox(t, imp)

	existing := filepath.Join(dir, "a.json")
	writeFile(t, existing, `{"projects": []}`)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- in.Start(ctx) }()

	waitFor(t, func() bool { return imp.count() == 1 })
	if !exists(existing + ImportedSuffix) {
		t.Error("existing file not marked imported")
	}

	dropped := filepath.Join(dir, "b.json")
	writeFile(t, dropped, `[{"name": "Dropped"}]`)
	waitFor(t, func() bool { return imp.count() == 2 && exists(dropped+ImportedSuffix) })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
