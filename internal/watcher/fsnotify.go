package watcher

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/obby/libretto/internal/fsevent"
)

// FsnotifySource wraps fsnotify and watches a tree recursively by adding
// every directory, including ones created after Watch.
type FsnotifySource struct {
	watcher  *fsnotify.Watcher
	skipDir  func(string) bool
	mu       sync.Mutex
	watching map[string]bool
	done     chan struct{}
	wg       sync.WaitGroup
	log      *slog.Logger
}

// NewFsnotifySource creates an fsnotify backed source.
func NewFsnotifySource(skipDir func(string) bool) (*FsnotifySource, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &FsnotifySource{
		watcher:  w,
		skipDir:  skipDir,
		watching: make(map[string]bool),
		done:     make(chan struct{}),
		log:      slog.Default(),
	}, nil
}

// SetLogger replaces the source logger.
func (s *FsnotifySource) SetLogger(l *slog.Logger) {
	s.log = l
}

// Watch adds root and all its subdirectories and starts delivering events.
func (s *FsnotifySource) Watch(root string, fn func(fsevent.Event)) error {
	absPath, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("watcher: root is not a directory: " + absPath)
	}

	s.mu.Lock()
	err = s.watcher.Add(absPath)
	if err == nil {
		s.watching[absPath] = true
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.addDirectoryRecursive(absPath)

	s.wg.Add(1)
	go s.processEvents(fn)
	return nil
}

// Close stops the event goroutine and releases the watch handle.
func (s *FsnotifySource) Close() error {
	select {
	case <-s.done:
		return nil
	default:
	}
	close(s.done)
	err := s.watcher.Close()
	s.wg.Wait()
	return err
}

// addDirectoryRecursive adds all subdirectories of dirPath
func (s *FsnotifySource) addDirectoryRecursive(dirPath string) {
	filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}

		if !info.IsDir() {
			return nil
		}

		if s.skipDir != nil && s.skipDir(path) {
			return filepath.SkipDir
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.watching[path] {
			if err := s.watcher.Add(path); err != nil {
				s.log.Warn("Error adding directory", "path", path, "error", err)
				return nil // Continue on error
			}
			s.watching[path] = true
		}

		return nil
	})
}

// processEvents processes events from fsnotify
func (s *FsnotifySource) processEvents(fn func(fsevent.Event)) {
	defer s.wg.Done()
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(event, fn)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Error("Watch error", "error", err)
		case <-s.done:
			return
		}
	}
}

// handleEvent translates one fsnotify event, which may carry several ops.
func (s *FsnotifySource) handleEvent(event fsnotify.Event, fn func(fsevent.Event)) {
	if event.Has(fsnotify.Create) {
		kind := fsevent.CreateKind{Op: fsevent.CreateAny}
		if info, err := os.Lstat(event.Name); err == nil {
			if info.IsDir() {
				kind.Op = fsevent.CreateFolder
				s.addDirectoryRecursive(event.Name)
			} else {
				kind.Op = fsevent.CreateFile
			}
		}
		fn(fsevent.New(kind, event.Name))
	}
	if event.Has(fsnotify.Write) {
		fn(fsevent.New(fsevent.ModifyKind{Op: fsevent.ModifyData, Data: fsevent.DataAny}, event.Name))
	}
	if event.Has(fsnotify.Chmod) {
		fn(fsevent.New(fsevent.ModifyKind{Op: fsevent.ModifyMetadata, Metadata: fsevent.MetadataAny}, event.Name))
	}
	if event.Has(fsnotify.Rename) {
		s.forget(event.Name)
		fn(fsevent.New(fsevent.ModifyKind{Op: fsevent.ModifyName, Rename: fsevent.RenameFrom}, event.Name))
	}
	if event.Has(fsnotify.Remove) {
		s.forget(event.Name)
		fn(fsevent.New(fsevent.RemoveKind{Op: fsevent.RemoveAny}, event.Name))
	}
}

// forget drops bookkeeping for a directory that went away; fsnotify removes
// the kernel watch itself.
func (s *FsnotifySource) forget(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watching, path)
}
