package patterns

// Filter combines a Layout with a Matcher to decide whether an event's
// affected paths warrant forwarding.
type Filter struct {
	layout  Layout
	matcher *Matcher
}

// NewFilter creates a filter. A nil matcher filters nothing but paths outside
// the layout.
func NewFilter(layout Layout, matcher *Matcher) *Filter {
	return &Filter{layout: layout, matcher: matcher}
}

// Layout returns the layout the filter resolves paths against.
func (f *Filter) Layout() Layout {
	return f.layout
}

// Pass reports whether at least one of paths resolves to an instance and is
// neither a system path nor ignored. An event whose paths all fail is dropped.
func (f *Filter) Pass(paths []string) bool {
	for _, p := range paths {
		if f.PassPath(p) {
			return true
		}
	}
	return false
}

// PassPath applies the filter to a single absolute path.
func (f *Filter) PassPath(abs string) bool {
	loc, ok := f.layout.Resolve(abs)
	if !ok {
		return false
	}
	if f.matcher == nil {
		return true
	}
	return !f.matcher.IsSystemPath(loc.Rel) && !f.matcher.IsIgnored(loc.Rel)
}
