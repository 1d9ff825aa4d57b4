package patterns

import (
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// Matcher decides whether an instance-relative path is noise. A path is noise
// when it starts with a denylisted system prefix or matches one of the
// operator supplied ignore globs.
type Matcher struct {
	denylist       []string
	ignorePatterns []glob.Glob
}

// NewMatcher creates a matcher over denylist and the given ignore globs.
// Blank patterns and patterns starting with # are skipped.
func NewMatcher(denylist []string, ignore []string) (*Matcher, error) {
	m := &Matcher{
		denylist:       dedupe(denylist),
		ignorePatterns: make([]glob.Glob, 0, len(ignore)),
	}

	for _, pattern := range ignore {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" || strings.HasPrefix(pattern, "#") {
			continue
		}

		// Normalize pattern: use forward slashes
		pattern = filepath.ToSlash(pattern)

		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, err
		}
		m.ignorePatterns = append(m.ignorePatterns, g)
	}

	return m, nil
}

// IsSystemPath reports whether rel starts with any denylist entry. The test
// is a literal, case-sensitive prefix match.
func (m *Matcher) IsSystemPath(rel string) bool {
	for _, prefix := range m.denylist {
		if strings.HasPrefix(rel, prefix) {
			return true
		}
	}
	return false
}

// IsIgnored checks if rel or its base name matches any ignore pattern.
func (m *Matcher) IsIgnored(rel string) bool {
	normalizedPath := filepath.ToSlash(rel)

	for _, pattern := range m.ignorePatterns {
		if pattern.Match(normalizedPath) {
			return true
		}
		// Also check just the filename
		if pattern.Match(filepath.Base(normalizedPath)) {
			return true
		}
	}

	return false
}

// Denylist returns a copy of the denylist in match order.
func (m *Matcher) Denylist() []string {
	return append([]string(nil), m.denylist...)
}

func dedupe(entries []string) []string {
	seen := make(map[string]bool, len(entries))
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}
