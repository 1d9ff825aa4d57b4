package fsevent

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEventJSONShape(t *testing.T) {
	ev := New(AccessKind{Op: AccessClose, Mode: ModeWrite}, "/root/containers/vm1/disk.img")
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"kind":{"type":"access","op":"close","detail":"write"},"paths":["/root/containers/vm1/disk.img"]}`
	if string(data) != want {
		t.Fatalf("got %s, want %s", data, want)
	}
}

func TestEventJSONKeepsTaxonomy(t *testing.T) {
	kinds := []Kind{
		AnyKind{},
		AccessKind{Op: AccessRead},
		AccessKind{Op: AccessOpen, Mode: ModeExecute},
		CreateKind{Op: CreateFolder},
		ModifyKind{Op: ModifyAny},
		ModifyKind{Op: ModifyData, Data: DataSize},
		ModifyKind{Op: ModifyName, Rename: RenameBoth},
		ModifyKind{Op: ModifyMetadata, Metadata: MetadataAccessTime},
		RemoveKind{Op: RemoveFile},
		OtherKind{},
	}
	for _, k := range kinds {
		ev := New(k, "/a", "/b")
		data, err := json.Marshal(ev)
		if err != nil {
			t.Fatalf("%s: %v", k, err)
		}
		var got Event
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("%s: %v", k, err)
		}
		if diff := cmp.Diff(ev, got); diff != "" {
			t.Errorf("%s: mismatch (-want +got):\n%s", k, diff)
		}
	}
}

func TestUnknownTopLevelKind(t *testing.T) {
	var ev Event
	if err := json.Unmarshal([]byte(`{"kind":{"type":"teleport"},"paths":["/x"]}`), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Kind != (UnknownKind{Name: "teleport"}) {
		t.Fatalf("got kind %#v", ev.Kind)
	}
}

func TestUnknownSubKind(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"kind":{"type":"access","op":"juggle"},"paths":["/x"]}`, "access/juggle"},
		{`{"kind":{"type":"access","op":"close","detail":"append"},"paths":["/x"]}`, "access/close/append"},
		{`{"kind":{"type":"create","op":"symlink"},"paths":["/x"]}`, "create/symlink"},
		{`{"kind":{"type":"modify","op":"metadata","detail":"birth-time"},"paths":["/x"]}`, "modify/metadata/birth-time"},
		{`{"kind":{"type":"modify","op":"data","detail":"sparse"},"paths":["/x"]}`, "modify/data/sparse"},
		{`{"kind":{"type":"modify","op":"name","detail":"swap"},"paths":["/x"]}`, "modify/name/swap"},
		{`{"kind":{"type":"remove","op":"tree"},"paths":["/x"]}`, "remove/tree"},
	}
	for _, c := range cases {
		var ev Event
		if err := json.Unmarshal([]byte(c.in), &ev); err != nil {
			t.Errorf("%s: %v", c.in, err)
			continue
		}
		if ev.Kind != (UnknownKind{Name: c.want}) {
			t.Errorf("%s: got kind %#v", c.in, ev.Kind)
		}
		if diff := cmp.Diff([]string{"/x"}, ev.Paths); diff != "" {
			t.Errorf("%s: paths (-want +got):\n%s", c.in, diff)
		}
	}
}

func TestMalformedKindRejected(t *testing.T) {
	cases := []string{
		`{"kind":{},"paths":[]}`,
		`{"kind":{"op":"close"},"paths":[]}`,
		`not json`,
	}
	for _, c := range cases {
		var ev Event
		if err := json.Unmarshal([]byte(c), &ev); err == nil {
			t.Errorf("%s: expected error", c)
		}
	}
}

func TestEventWithoutKindDoesNotEncode(t *testing.T) {
	_, err := json.Marshal(Event{Paths: []string{"/x"}})
	if err == nil || !strings.Contains(err.Error(), "no kind") {
		t.Fatalf("got %v", err)
	}
}

func TestKindString(t *testing.T) {
	cases := []struct {
		kind Kind
		want string
	}{
		{AccessKind{Op: AccessClose, Mode: ModeExecute}, "access(close(execute))"},
		{AccessKind{Op: AccessRead}, "access(read)"},
		{ModifyKind{Op: ModifyMetadata, Metadata: MetadataPermissions}, "modify(metadata(permissions))"},
		{ModifyKind{Op: ModifyOther}, "modify(other)"},
		{RemoveKind{Op: RemoveFolder}, "remove(folder)"},
		{UnknownKind{Name: "x"}, "unknown(x)"},
	}
	for _, c := range cases {
		if got := c.kind.String(); got != c.want {
			t.Errorf("got %q, want %q", got, c.want)
		}
	}
}
