package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sitebook/sitebook/internal/notify"
)

// ConsoleSink prints notifications as styled lines. Dismissals are silent.
type ConsoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{w: w}
}

func (s *ConsoleSink) Show(n notify.Notification) {
	label := LevelStyle(n.Level).Render(strings.ToUpper(string(n.Level)))
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "%s %s\n", label, n.Text)
}

func (s *ConsoleSink) Dismiss(notify.Notification) {}
