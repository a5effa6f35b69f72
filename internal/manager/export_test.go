package manager

import "github.com/sitebook/sitebook/internal/notify"

// OwnNotifier returns the notifier New built when none was passed.
func (m *Manager) OwnNotifier() *notify.Notifier {
	return m.ownNotifier
}
