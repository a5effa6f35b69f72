// Package manager owns the in-memory list of projects and their todos and
// keeps it in step with a document store.
//
// # Mutations
//
// Every create, update and delete is applied to memory first. The entity is
// marked pending and subscribers are told synchronously, then the matching
// store call runs in the background. When it returns the entity moves to
// synced (creates adopt the store-assigned id) or to error, subscribers are
// told again, and failures raise one warning notification. Local changes are
// never rolled back; an entity in error stays as the user left it until they
// edit it again or call Retry.
//
// Concurrent writes to one entity are not ordered. Whichever completion lands
// last decides its sync state, even when a newer write is still in flight.
//
// An entity whose create is still in flight has no store id yet. Writes that
// need it (todo changes under a new project, updates and deletes of the new
// project or todo) wait for the create to settle and then target the adopted
// id. If the create fails they fail too.
//
// # Subscriptions
//
// Project subscribers hear about any change to any project. Todo subscribers
// get the id of the project whose todos changed. Events carry nothing else;
// subscribers read current state back through Projects, GetProject or Todos,
// which return copies.
package manager

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sitebook/sitebook/internal/metrics"
	"github.com/sitebook/sitebook/internal/notify"
	"github.com/sitebook/sitebook/internal/pubsub"
	"github.com/sitebook/sitebook/internal/store"
	"github.com/sitebook/sitebook/internal/types"
)

// DefaultRemoteTimeout bounds a single store call.
const DefaultRemoteTimeout = 15 * time.Second

// ErrDuplicateName is returned by NewProject when RejectDuplicateNames is set
// and another project already uses the name.
var ErrDuplicateName = errors.New("project name already exists")

// errNotCreated fails writes queued behind a create that failed.
var errNotCreated = errors.New("entity was not created in the store")

// Notifier is the part of notify.Notifier the manager uses.
type Notifier interface {
	Warning(text string, opts ...notify.Option) (notify.Notification, bool)
	Error(text string, opts ...notify.Option) (notify.Notification, bool)
}

// ProjectEvent signals that some project changed.
type ProjectEvent struct{}

// TodoEvent signals that the todos of ProjectID changed.
type TodoEvent struct {
	ProjectID string
}

// Token identifies a subscription.
type Token = pubsub.Token

// Config tunes a Manager.
type Config struct {
	// RemoteTimeout bounds each background store call.
	RemoteTimeout time.Duration

	// RejectDuplicateNames makes NewProject fail for a name already in use.
	RejectDuplicateNames bool
}

// remoteOp is one background store call and its reconciliation.
type remoteOp struct {
	entity string
	op     string
	// bind runs with mu held right before the call starts and captures the
	// ids the call should use.
	bind func()
	call func(ctx context.Context) error
	done func(err error)
}

// Manager is the projects manager. Construct it with New and release it
// with Close.
type Manager struct {
	store    store.Store
	notifier Notifier
	logger   *zap.Logger
	cfg      Config

	mu       sync.Mutex
	projects []*types.Project
	// aliases maps local project and todo ids to the ids the store assigned
	// on create.
	aliases map[string]string
	// creating holds writes queued behind an in-flight create, by the local
	// id of the project or todo being created.
	creating map[string][]remoteOp

	projectSubs pubsub.Registry[ProjectEvent]
	todoSubs    pubsub.Registry[TodoEvent]

	inflight sync.WaitGroup

	// ownNotifier is set when New built the notifier; Close closes it.
	ownNotifier *notify.Notifier
}

// New returns a manager over s. notifier and logger may be nil.
func New(s store.Store, notifier Notifier, logger *zap.Logger, cfg Config) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	var own *notify.Notifier
	if notifier == nil {
		own = notify.New(notify.Config{}, logger)
		notifier = own
	}
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = DefaultRemoteTimeout
	}
	return &Manager{
		store:       s,
		notifier:    notifier,
		logger:      logger.With(zap.String("component", "manager")),
		cfg:         cfg,
		projects:    []*types.Project{},
		aliases:     make(map[string]string),
		creating:    make(map[string][]remoteOp),
		ownNotifier: own,
	}
}

// Close waits for in-flight store calls and drops every subscriber. It does
// not close the store or a notifier passed to New.
func (m *Manager) Close() {
	m.Wait()
	m.projectSubs.Clear()
	m.todoSubs.Clear()
	if m.ownNotifier != nil {
		m.ownNotifier.Close()
	}
}

// Wait blocks until every background store call issued so far has settled.
func (m *Manager) Wait() {
	m.inflight.Wait()
}

// SubscribeProjects registers fn for project-level changes.
func (m *Manager) SubscribeProjects(fn func(ProjectEvent)) Token {
	return m.projectSubs.Subscribe(fn)
}

// SubscribeTodos registers fn for todo-level changes.
func (m *Manager) SubscribeTodos(fn func(TodoEvent)) Token {
	return m.todoSubs.Subscribe(fn)
}

// Unsubscribe removes a project or todo subscription.
func (m *Manager) Unsubscribe(token Token) {
	if !m.projectSubs.Unsubscribe(token) {
		m.todoSubs.Unsubscribe(token)
	}
}

func (m *Manager) emitProjects() {
	m.projectSubs.Publish(ProjectEvent{})
}

func (m *Manager) emitTodos(projectID string) {
	m.todoSubs.Publish(TodoEvent{ProjectID: projectID})
}

// Projects returns a copy of every project, todos included, in list order.
func (m *Manager) Projects() []types.Project {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]types.Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, p.Clone())
	}
	return out
}

// GetProject returns a copy of the project with the given id.
func (m *Manager) GetProject(id string) (types.Project, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, _ := m.find(id)
	if p == nil {
		return types.Project{}, false
	}
	return p.Clone(), true
}

// Todos returns a copy of the todos of a project.
func (m *Manager) Todos(projectID string) ([]types.Todo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, _ := m.find(projectID)
	if p == nil {
		return nil, false
	}
	out := make([]types.Todo, 0, len(p.Todos))
	for _, t := range p.Todos {
		out = append(out, t.Clone())
	}
	return out, true
}

// ResolveID maps a local project or todo id to the id the store assigned on
// create.
// Unknown ids are returned unchanged.
func (m *Manager) ResolveID(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolve(id)
}

func (m *Manager) resolve(id string) string {
	for i := 0; i < 8; i++ {
		next, ok := m.aliases[id]
		if !ok {
			break
		}
		id = next
	}
	return id
}

// find must be called with mu held.
func (m *Manager) find(id string) (*types.Project, int) {
	id = m.resolve(id)
	for i, p := range m.projects {
		if p.ID == id {
			return p, i
		}
	}
	return nil, -1
}

// setGauge must be called with mu held.
func (m *Manager) setGauge() {
	metrics.Projects.Set(float64(len(m.projects)))
}

// dispatch queues op behind the first of keys whose create is still in
// flight, or starts it. Must be called with mu held.
func (m *Manager) dispatch(op remoteOp, keys ...string) {
	for _, key := range keys {
		if queue, ok := m.creating[key]; ok {
			m.creating[key] = append(queue, op)
			return
		}
	}
	m.start(op)
}

// start runs op in the background. Must be called with mu held so that Wait
// observes it.
func (m *Manager) start(op remoteOp) {
	if op.bind != nil {
		op.bind()
	}
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.RemoteTimeout)
		defer cancel()

		began := time.Now()
		err := op.call(ctx)
		metrics.RecordSync(op.entity, op.op, err, time.Since(began))
		if err != nil {
			m.logger.Warn("Remote write failed",
				zap.String("entity", op.entity),
				zap.String("op", op.op),
				zap.Error(err),
			)
		}
		op.done(err)
	}()
}

// flush removes and returns the writes queued behind key. Must be called
// with mu held.
func (m *Manager) flush(key string) []remoteOp {
	queued := m.creating[key]
	delete(m.creating, key)
	return queued
}

// send dispatches op after the caller has released mu and told subscribers
// about the optimistic change.
func (m *Manager) send(op remoteOp, keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatch(op, keys...)
}

// fail settles queued ops that can no longer run. Called without mu held.
func fail(ops []remoteOp, err error) {
	for _, op := range ops {
		op.done(err)
	}
}

type syncable interface {
	SetSync(next types.SyncState) error
}

// settle moves e to next. A completion that arrives after an earlier one
// already settled the entity passes back through pending, so the last
// completion wins.
func settle(e syncable, next types.SyncState) {
	if err := e.SetSync(next); err != nil {
		_ = e.SetSync(types.SyncPending)
		_ = e.SetSync(next)
	}
}

// report raises the warning for a failed remote write. Writes that never ran
// because their create failed stay quiet; the create already warned.
func (m *Manager) report(err error, text string) {
	if err == nil || errors.Is(err, errNotCreated) {
		return
	}
	m.notifier.Warning(text)
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
