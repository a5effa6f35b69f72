package manager_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/sitebook/sitebook/internal/notify"
	"github.com/sitebook/sitebook/internal/schema"
	"github.com/sitebook/sitebook/internal/store"
)

// memStore is an in-memory store.Store whose calls can be held back or made
// to fail.
type memStore struct {
	mu    sync.Mutex
	docs  map[string][]store.Document
	fail  map[string]error
	gate  chan struct{}
	seq   int
	calls []string

	// listErr is returned by ListDocuments alongside the documents.
	listErr error
}

func newMemStore() *memStore {
	return &memStore{
		docs: make(map[string][]store.Document),
		fail: make(map[string]error),
	}
}

// hold makes every write block until release.
func (s *memStore) hold() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = make(chan struct{})
}

func (s *memStore) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gate != nil {
		close(s.gate)
		s.gate = nil
	}
}

func (s *memStore) setFail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

func (s *memStore) setListErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErr = err
}

// enter records the call, waits for the gate and returns the injected error.
func (s *memStore) enter(ctx context.Context, call, op string) error {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail[op]
}

func (s *memStore) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *memStore) Get(path, id string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.docs[path] {
		if d.ID == id {
			return store.CloneData(d.Data), true
		}
	}
	return nil, false
}

func (s *memStore) Count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs[path])
}

func (s *memStore) ListDocuments(_ context.Context, path string) ([]store.Document, error) {
	if err := schema.ValidateCollectionPath(path); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Document, 0, len(s.docs[path]))
	for _, d := range s.docs[path] {
		out = append(out, store.Document{ID: d.ID, Data: store.CloneData(d.Data)})
	}
	return out, s.listErr
}

func (s *memStore) CreateDocument(ctx context.Context, path string, data map[string]any) (string, error) {
	if err := s.enter(ctx, "create "+path, "create"); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	id := fmt.Sprintf("srv-%d", s.seq)
	s.docs[path] = append(s.docs[path], store.Document{ID: id, Data: store.CloneData(data)})
	return id, nil
}

func (s *memStore) SetDocument(ctx context.Context, path, id string, data map[string]any) error {
	if err := s.enter(ctx, "set "+path+"/"+id, "set"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.docs[path] {
		if d.ID == id {
			s.docs[path][i].Data = store.CloneData(data)
			return nil
		}
	}
	s.docs[path] = append(s.docs[path], store.Document{ID: id, Data: store.CloneData(data)})
	return nil
}

func (s *memStore) UpdateDocument(ctx context.Context, path, id string, data map[string]any) error {
	if err := s.enter(ctx, "update "+path+"/"+id, "update"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.docs[path] {
		if d.ID == id {
			s.docs[path][i].Data = store.MergeData(d.Data, data)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *memStore) DeleteDocument(ctx context.Context, path, id string) error {
	if err := s.enter(ctx, "delete "+path+"/"+id, "delete"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.docs[path]
	for i, d := range docs {
		if d.ID == id {
			s.docs[path] = append(docs[:i:i], docs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *memStore) Close() error { return nil }

// notes records what the manager asked to show.
type notes struct {
	mu       sync.Mutex
	warnings []string
	errors   []string
}

func (n *notes) Warning(text string, _ ...notify.Option) (notify.Notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.warnings = append(n.warnings, text)
	return notify.Notification{Level: notify.LevelWarning, Text: text}, true
}

func (n *notes) Error(text string, _ ...notify.Option) (notify.Notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, text)
	return notify.Notification{Level: notify.LevelError, Text: text}, true
}

func (n *notes) Warnings() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.warnings...)
}

func (n *notes) Errors() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.errors...)
}
