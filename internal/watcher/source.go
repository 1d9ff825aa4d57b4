package watcher

import (
	"fmt"

	"github.com/obby/libretto/internal/fsevent"
)

// Source delivers raw filesystem changes under a root to a callback. The
// callback runs on the source's own goroutine and must not block for long.
type Source interface {
	Watch(root string, fn func(fsevent.Event)) error
	Close() error
}

// Backend names accepted by NewSource.
const (
	BackendFsnotify = "fsnotify"
	BackendNotify   = "notify"
)

// NewSource returns the notification source for backend. skipDir, if not nil,
// reports directories that should not be watched at all.
func NewSource(backend string, skipDir func(string) bool) (Source, error) {
	switch backend {
	case "", BackendFsnotify:
		s, err := NewFsnotifySource(skipDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendNotify:
		return NewNotifySource(skipDir), nil
	}
	return nil, fmt.Errorf("watcher: unknown backend %q", backend)
}
