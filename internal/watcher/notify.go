package watcher

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/obby/libretto/internal/fsevent"
	"github.com/syncthing/notify"
)

// notify does not block on sending to the channel, so it must be buffered.
const notifyBuffer = 500

// NotifySource watches a tree with syncthing/notify, which handles recursion
// natively and never descends into directories rejected by skipDir.
type NotifySource struct {
	skipDir func(string) bool
	ch      chan notify.EventInfo
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	log     *slog.Logger
}

// NewNotifySource creates a syncthing/notify backed source.
func NewNotifySource(skipDir func(string) bool) *NotifySource {
	if skipDir == nil {
		skipDir = func(string) bool { return false }
	}
	return &NotifySource{
		skipDir: skipDir,
		ch:      make(chan notify.EventInfo, notifyBuffer),
		done:    make(chan struct{}),
		log:     slog.Default(),
	}
}

// SetLogger replaces the source logger.
func (s *NotifySource) SetLogger(l *slog.Logger) {
	s.log = l
}

// Watch starts a recursive watch on root.
func (s *NotifySource) Watch(root string, fn func(fsevent.Event)) error {
	absPath, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	if err := notify.WatchWithFilter(filepath.Join(absPath, "..."), s.ch, s.skipDir, notify.All); err != nil {
		notify.Stop(s.ch)
		return err
	}

	s.wg.Add(1)
	go s.loop(fn)
	return nil
}

// Close stops the watch.
func (s *NotifySource) Close() error {
	s.once.Do(func() {
		notify.Stop(s.ch)
		close(s.done)
	})
	s.wg.Wait()
	return nil
}

func (s *NotifySource) loop(fn func(fsevent.Event)) {
	defer s.wg.Done()
	for {
		if len(s.ch) == notifyBuffer {
			s.log.Warn("Notification buffer full, events may have been lost")
		}
		select {
		case ei := <-s.ch:
			fn(fsevent.New(notifyKind(ei), ei.Path()))
		case <-s.done:
			return
		}
	}
}

func notifyKind(ei notify.EventInfo) fsevent.Kind {
	switch ei.Event() {
	case notify.Create:
		info, err := os.Lstat(ei.Path())
		switch {
		case err != nil:
			return fsevent.CreateKind{Op: fsevent.CreateAny}
		case info.IsDir():
			return fsevent.CreateKind{Op: fsevent.CreateFolder}
		}
		return fsevent.CreateKind{Op: fsevent.CreateFile}
	case notify.Write:
		return fsevent.ModifyKind{Op: fsevent.ModifyData, Data: fsevent.DataAny}
	case notify.Rename:
		return fsevent.ModifyKind{Op: fsevent.ModifyName, Rename: fsevent.RenameAny}
	case notify.Remove:
		return fsevent.RemoveKind{Op: fsevent.RemoveAny}
	}
	return fsevent.OtherKind{}
}
