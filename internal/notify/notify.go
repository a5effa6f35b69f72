// Package notify shows short user-facing notifications and keeps track of
// which ones are still on screen.
//
// A notification is identified for de-duplication by its level and text: while
// one is active, showing the same level and text again is a no-op. It stays
// active until it is dismissed, either explicitly through Dismiss (the
// click-to-dismiss path) or by its auto-close timer. Error and Info
// notifications never auto-close.
//
// Rendering is left to sinks. The notifier itself only tracks state and fans
// out Show/Dismiss calls.
package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitebook/sitebook/internal/metrics"
)

// Level is the kind of a notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// Position is where a client should stack the notification.
type Position string

const (
	TopRight     Position = "top-right"
	TopLeft      Position = "top-left"
	TopCenter    Position = "top-center"
	BottomRight  Position = "bottom-right"
	BottomLeft   Position = "bottom-left"
	BottomCenter Position = "bottom-center"
)

const (
	DefaultAutoClose    = 5 * time.Second
	DefaultPosition     = TopRight
	DefaultDedupTimeout = time.Second
)

// Notification is one shown message.
type Notification struct {
	ID        string        `json:"id"`
	Level     Level         `json:"level"`
	Text      string        `json:"text"`
	Position  Position      `json:"position"`
	AutoClose time.Duration `json:"auto_close"`
	CreatedAt time.Time     `json:"created_at"`
}

// Key returns the de-duplication key.
func (n Notification) Key() string {
	return string(n.Level) + ":" + n.Text
}

// Sink renders notifications.
type Sink interface {
	Show(n Notification)
	Dismiss(n Notification)
}

// Deduper shares the active set across processes. Acquire holds key for ttl;
// a ttl of zero means the notification is sticky and the key is held until
// Release.
type Deduper interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) bool
	Release(ctx context.Context, key string)
}

// Option adjusts a single notification.
type Option func(*options)

type options struct {
	autoClose time.Duration
	position  Position
	onClose   func()
}

// WithAutoClose dismisses the notification after d. Error and Info ignore it.
func WithAutoClose(d time.Duration) Option {
	return func(o *options) { o.autoClose = d }
}

// Sticky keeps the notification until it is dismissed.
func Sticky() Option {
	return func(o *options) { o.autoClose = 0 }
}

// WithPosition sets where the notification is stacked.
func WithPosition(p Position) Option {
	return func(o *options) { o.position = p }
}

// WithOnClose registers fn to run once the notification is dismissed.
func WithOnClose(fn func()) Option {
	return func(o *options) { o.onClose = fn }
}

// Config holds notifier defaults.
type Config struct {
	AutoClose time.Duration
	Deduper   Deduper

	// DedupTimeout bounds each call to Deduper.
	DedupTimeout time.Duration
}

type entry struct {
	n       Notification
	timer   *time.Timer
	onClose func()
}

// Notifier tracks active notifications and forwards them to sinks.
type Notifier struct {
	mu     sync.Mutex
	active map[string]*entry // by key
	byID   map[string]*entry
	sinks  []Sink
	closed bool

	autoClose    time.Duration
	dedup        Deduper
	dedupTimeout time.Duration
	logger       *zap.Logger
}

// New returns a notifier. The log sink is always attached.
func New(cfg Config, logger *zap.Logger, sinks ...Sink) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AutoClose <= 0 {
		cfg.AutoClose = DefaultAutoClose
	}
	if cfg.DedupTimeout <= 0 {
		cfg.DedupTimeout = DefaultDedupTimeout
	}
	logger = logger.With(zap.String("component", "notify"))
	n := &Notifier{
		active:    make(map[string]*entry),
		byID:      make(map[string]*entry),
		autoClose:    cfg.AutoClose,
		dedup:        cfg.Deduper,
		dedupTimeout: cfg.DedupTimeout,
		logger:       logger,
	}
	n.sinks = append([]Sink{NewLogSink(logger)}, sinks...)
	return n
}

// AddSink attaches another sink. It only sees notifications shown afterwards.
func (n *Notifier) AddSink(s Sink) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sinks = append(n.sinks, s)
}

func (n *Notifier) Success(text string, opts ...Option) (Notification, bool) {
	return n.show(LevelSuccess, text, opts)
}

// Error shows a sticky error notification.
func (n *Notifier) Error(text string, opts ...Option) (Notification, bool) {
	return n.show(LevelError, text, opts)
}

func (n *Notifier) Warning(text string, opts ...Option) (Notification, bool) {
	return n.show(LevelWarning, text, opts)
}

// Info shows a sticky informational notification.
func (n *Notifier) Info(text string, opts ...Option) (Notification, bool) {
	return n.show(LevelInfo, text, opts)
}

// show reports false when an identical notification is already active.
func (n *Notifier) show(level Level, text string, opts []Option) (Notification, bool) {
	o := options{autoClose: n.autoClose, position: DefaultPosition}
	for _, opt := range opts {
		opt(&o)
	}
	if level == LevelError || level == LevelInfo {
		o.autoClose = 0
	}

	note := Notification{
		ID:        uuid.NewString(),
		Level:     level,
		Text:      text,
		Position:  o.position,
		AutoClose: o.autoClose,
		CreatedAt: time.Now(),
	}
	key := note.Key()

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return note, false
	}
	if existing, ok := n.active[key]; ok {
		n.mu.Unlock()
		return existing.n, false
	}
	// The entry holds the key while the shared de-dup answers; it is not
	// visible through byID until committed.
	e := &entry{n: note, onClose: o.onClose}
	n.active[key] = e
	n.mu.Unlock()

	if n.dedup != nil && !n.acquire(key, note.AutoClose) {
		n.mu.Lock()
		if n.active[key] == e {
			delete(n.active, key)
		}
		n.mu.Unlock()
		n.logger.Debug("Notification suppressed by shared de-dup", zap.String("key", key))
		return note, false
	}

	n.mu.Lock()
	if n.closed || n.active[key] != e {
		n.mu.Unlock()
		if n.dedup != nil {
			n.release(key)
		}
		return note, false
	}
	n.byID[note.ID] = e
	sinks := n.sinks
	n.mu.Unlock()

	metrics.Notifications.WithLabelValues(string(level)).Inc()
	for _, s := range sinks {
		s.Show(note)
	}

	if note.AutoClose > 0 {
		n.mu.Lock()
		// It may already have been dismissed by a sink or another goroutine.
		if _, ok := n.byID[note.ID]; ok && !n.closed {
			id := note.ID
			e.timer = time.AfterFunc(note.AutoClose, func() { n.Dismiss(id) })
		}
		n.mu.Unlock()
	}
	return note, true
}

func (n *Notifier) acquire(key string, ttl time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), n.dedupTimeout)
	defer cancel()
	return n.dedup.Acquire(ctx, key, ttl)
}

func (n *Notifier) release(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), n.dedupTimeout)
	defer cancel()
	n.dedup.Release(ctx, key)
}

// Dismiss removes the active notification with the given id. It reports
// false when the notification is not active.
func (n *Notifier) Dismiss(id string) bool {
	n.mu.Lock()
	e, ok := n.byID[id]
	if !ok {
		n.mu.Unlock()
		return false
	}
	delete(n.byID, id)
	delete(n.active, e.n.Key())
	if e.timer != nil {
		e.timer.Stop()
	}
	sinks := n.sinks
	n.mu.Unlock()

	if n.dedup != nil {
		n.release(e.n.Key())
	}
	for _, s := range sinks {
		s.Dismiss(e.n)
	}
	if e.onClose != nil {
		e.onClose()
	}
	return true
}

// Active returns the currently shown notifications, oldest first.
func (n *Notifier) Active() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]Notification, 0, len(n.byID))
	for _, e := range n.byID {
		out = append(out, e.n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Close stops every auto-close timer and drops the active set. Nothing is
// shown after Close.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, e := range n.byID {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	n.active = make(map[string]*entry)
	n.byID = make(map[string]*entry)
	n.closed = true
}
