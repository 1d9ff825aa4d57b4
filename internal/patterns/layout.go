// Package patterns decides which filesystem changes under the storage root
// are worth forwarding and which instance they belong to.
package patterns

import (
	"path"
	"path/filepath"
	"strings"
)

// DefaultInstanceDirs are the directories under the storage root that hold
// one subdirectory per container or virtual machine.
var DefaultInstanceDirs = []string{"containers", "virtual-machine"}

// Layout describes where instances live under the storage root.
type Layout struct {
	Root         string
	InstanceDirs []string
}

// Location is an absolute path resolved against a Layout.
type Location struct {
	// Instance is the first path segment below the instance directory.
	Instance string
	// Rel is the path inside the instance filesystem: the instance name and
	// the segment after it are dropped and the rest is rooted at "/".
	Rel string
}

// NewLayout returns a layout over root using dirs, or DefaultInstanceDirs
// when dirs is empty.
func NewLayout(root string, dirs []string) Layout {
	if len(dirs) == 0 {
		dirs = DefaultInstanceDirs
	}
	return Layout{
		Root:         filepath.ToSlash(filepath.Clean(root)),
		InstanceDirs: append([]string(nil), dirs...),
	}
}

// Resolve maps an absolute path below one of the instance directories to its
// Location. It reports false for paths outside every instance directory.
func (l Layout) Resolve(abs string) (Location, bool) {
	abs = filepath.ToSlash(abs)
	for _, dir := range l.InstanceDirs {
		rest, ok := strings.CutPrefix(abs, path.Join(l.Root, dir)+"/")
		if !ok {
			continue
		}
		segments := strings.Split(strings.Trim(rest, "/"), "/")
		if segments[0] == "" {
			return Location{}, false
		}
		var inner []string
		if len(segments) > 2 {
			inner = segments[2:]
		}
		return Location{
			Instance: segments[0],
			Rel:      "/" + strings.Join(inner, "/"),
		}, true
	}
	return Location{}, false
}

// InstanceName returns the instance abs belongs to, or "" when abs cannot be
// resolved to one.
func (l Layout) InstanceName(abs string) string {
	loc, ok := l.Resolve(abs)
	if !ok {
		return ""
	}
	return loc.Instance
}
