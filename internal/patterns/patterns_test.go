package patterns

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestMatcher(t *testing.T, ignore ...string) *Matcher {
	t.Helper()
	m, err := NewMatcher(DefaultDenylist(), ignore)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestIsSystemPathEveryEntry(t *testing.T) {
	m := newTestMatcher(t)
	for _, prefix := range m.Denylist() {
		p := prefix + "file"
		if !strings.HasSuffix(prefix, "/") {
			p = prefix + "/file"
		}
		if !m.IsSystemPath(p) {
			t.Errorf("%s: expected system path", p)
		}
	}
}

func TestIsSystemPathSubstringIsNotPrefix(t *testing.T) {
	m := newTestMatcher(t)
	cases := []string{
		"/home/user/etc/passwd",
		"/srv/var/log/app.log",
		"/data/tmp/x",
		"/",
		"/disk.img",
		"/Etc/hosts",
	}
	for _, p := range cases {
		if m.IsSystemPath(p) {
			t.Errorf("%s: unexpected system path", p)
		}
	}
}

func TestDenylistDeduplicated(t *testing.T) {
	m := newTestMatcher(t)
	seen := map[string]bool{}
	for _, e := range m.Denylist() {
		if seen[e] {
			t.Fatalf("duplicate entry %q", e)
		}
		seen[e] = true
	}
	if m.Denylist()[0] != "/var/lib/snapd" {
		t.Fatalf("order not preserved: %q", m.Denylist()[0])
	}
}

func TestIsIgnored(t *testing.T) {
	m := newTestMatcher(t, "*.swp", "# comment", "", "/home/*/cache/**")
	cases := map[string]bool{
		"/home/alice/notes.swp":     true,
		"/home/alice/cache/a/b/c":   true,
		"/home/alice/notes.txt":     false,
		"/home/alice/sub/cache/a/b": false,
	}
	for p, want := range cases {
		if got := m.IsIgnored(p); got != want {
			t.Errorf("%s: got %v, want %v", p, got, want)
		}
	}
}

func TestNewMatcherRejectsBadGlob(t *testing.T) {
	if _, err := NewMatcher(nil, []string{"[unclosed"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestLayoutResolve(t *testing.T) {
	l := NewLayout("/root", nil)
	cases := []struct {
		abs  string
		want Location
		ok   bool
	}{
		{"/root/containers/vm1/disk.img", Location{Instance: "vm1", Rel: "/"}, true},
		{"/root/containers/vm1/rootfs/etc/hosts", Location{Instance: "vm1", Rel: "/etc/hosts"}, true},
		{"/root/virtual-machine/win/rootfs/Users/a", Location{Instance: "win", Rel: "/Users/a"}, true},
		{"/root/containers/vm1", Location{Instance: "vm1", Rel: "/"}, true},
		{"/root/containers/", Location{}, false},
		{"/root/containersX/vm1/rootfs/a", Location{}, false},
		{"/other/containers/vm1/rootfs/a", Location{}, false},
	}
	for _, c := range cases {
		got, ok := l.Resolve(c.abs)
		if ok != c.ok {
			t.Errorf("%s: ok = %v, want %v", c.abs, ok, c.ok)
			continue
		}
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Errorf("%s: (-want +got):\n%s", c.abs, diff)
		}
	}
}

func TestInstanceName(t *testing.T) {
	l := NewLayout("/mnt/libretto/", []string{"containers"})
	if got := l.InstanceName("/mnt/libretto/containers/web/rootfs/srv/index.html"); got != "web" {
		t.Fatalf("got %q", got)
	}
	if got := l.InstanceName("/mnt/libretto/virtual-machine/vm/rootfs/a"); got != "" {
		t.Fatalf("got %q for unconfigured dir", got)
	}
}

func TestFilterPass(t *testing.T) {
	f := NewFilter(NewLayout("/root", nil), newTestMatcher(t, "*.swp"))
	cases := []struct {
		name  string
		paths []string
		want  bool
	}{
		{"disk image", []string{"/root/containers/vm1/disk.img"}, true},
		{"etc", []string{"/root/containers/vm1/rootfs/etc/hosts"}, false},
		{"outside root", []string{"/var/lib/other/file"}, false},
		{"ignored glob", []string{"/root/containers/vm1/rootfs/home/a/.x.swp"}, false},
		{"one good path is enough", []string{"/root/containers/vm1/rootfs/etc/a", "/root/containers/vm1/rootfs/home/a"}, true},
		{"no paths", nil, false},
	}
	for _, c := range cases {
		if got := f.Pass(c.paths); got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, got, c.want)
		}
	}
}
