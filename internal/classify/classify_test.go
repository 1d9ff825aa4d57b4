package classify

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/obby/libretto/internal/fsevent"
	"github.com/obby/libretto/internal/patterns"
)

// none marks a kind that produces no action.
var none = Action{Type: "none"}

func expectedAccess(op fsevent.AccessOp, mode fsevent.AccessMode) Action {
	if op == fsevent.AccessClose && (mode == fsevent.ModeExecute || mode == fsevent.ModeWrite) {
		return action(Copy)
	}
	return none
}

func TestClassifyAccess(t *testing.T) {
	ops := []fsevent.AccessOp{fsevent.AccessAny, fsevent.AccessRead, fsevent.AccessOpen, fsevent.AccessClose, fsevent.AccessOther}
	modes := []fsevent.AccessMode{fsevent.ModeAny, fsevent.ModeRead, fsevent.ModeExecute, fsevent.ModeWrite, fsevent.ModeOther}
	for _, op := range ops {
		for _, mode := range modes {
			k := fsevent.AccessKind{Op: op, Mode: mode}
			checkClassify(t, k, expectedAccess(op, mode))
		}
	}
}

func TestClassifyCreateAndRemove(t *testing.T) {
	for _, op := range []fsevent.CreateOp{fsevent.CreateAny, fsevent.CreateFile, fsevent.CreateFolder, fsevent.CreateOther} {
		checkClassify(t, fsevent.CreateKind{Op: op}, action(Copy))
	}
	for _, op := range []fsevent.RemoveOp{fsevent.RemoveAny, fsevent.RemoveFile, fsevent.RemoveFolder, fsevent.RemoveOther} {
		checkClassify(t, fsevent.RemoveKind{Op: op}, action(Copy))
	}
}

func TestClassifyModify(t *testing.T) {
	cases := []struct {
		kind fsevent.ModifyKind
		want Action
	}{
		{fsevent.ModifyKind{Op: fsevent.ModifyAny}, action(Copy)},
		{fsevent.ModifyKind{Op: fsevent.ModifyOther}, action(Copy)},
		{fsevent.ModifyKind{Op: fsevent.ModifyMetadata, Metadata: fsevent.MetadataOwnership}, action(Copy)},
		{fsevent.ModifyKind{Op: fsevent.ModifyMetadata, Metadata: fsevent.MetadataPermissions}, action(Copy)},
		{fsevent.ModifyKind{Op: fsevent.ModifyMetadata, Metadata: fsevent.MetadataAny}, action(Rollup)},
		{fsevent.ModifyKind{Op: fsevent.ModifyMetadata, Metadata: fsevent.MetadataOther}, action(Rollup)},
		{fsevent.ModifyKind{Op: fsevent.ModifyMetadata, Metadata: fsevent.MetadataExtended}, action(Rollup)},
		{fsevent.ModifyKind{Op: fsevent.ModifyMetadata, Metadata: fsevent.MetadataWriteTime}, action(Rollup)},
		{fsevent.ModifyKind{Op: fsevent.ModifyMetadata, Metadata: fsevent.MetadataAccessTime}, action(Rollup)},
	}
	for _, d := range []fsevent.DataChange{fsevent.DataAny, fsevent.DataSize, fsevent.DataContent, fsevent.DataOther} {
		cases = append(cases, struct {
			kind fsevent.ModifyKind
			want Action
		}{fsevent.ModifyKind{Op: fsevent.ModifyData, Data: d}, action(Copy)})
	}
	for _, r := range []fsevent.RenameMode{fsevent.RenameAny, fsevent.RenameTo, fsevent.RenameFrom, fsevent.RenameBoth, fsevent.RenameOther} {
		cases = append(cases, struct {
			kind fsevent.ModifyKind
			want Action
		}{fsevent.ModifyKind{Op: fsevent.ModifyName, Rename: r}, action(Copy)})
	}
	for _, c := range cases {
		checkClassify(t, c.kind, c.want)
	}
}

func TestClassifyTopLevel(t *testing.T) {
	checkClassify(t, fsevent.OtherKind{}, action(Snapshot))
	checkClassify(t, fsevent.AnyKind{}, none)

	got, ok := Classify(fsevent.UnknownKind{Name: "teleport"})
	if !ok || got.Type != Other || got.Reason == "" {
		t.Fatalf("unknown kind: got %v, %v", got, ok)
	}
	got, ok = Classify(nil)
	if !ok || got.Type != Other {
		t.Fatalf("nil kind: got %v, %v", got, ok)
	}
	got, ok = Classify(fsevent.ModifyKind{Op: fsevent.ModifyMetadata, Metadata: fsevent.MetadataKind(200)})
	if !ok || got.Type != Other {
		t.Fatalf("future metadata kind: got %v, %v", got, ok)
	}
}

func TestClassifyIsPure(t *testing.T) {
	k := fsevent.ModifyKind{Op: fsevent.ModifyMetadata, Metadata: fsevent.MetadataAccessTime}
	first, _ := Classify(k)
	for i := 0; i < 100; i++ {
		if got, _ := Classify(k); got != first {
			t.Fatalf("iteration %d: got %v, want %v", i, got, first)
		}
	}
}

func checkClassify(t *testing.T, k fsevent.Kind, want Action) {
	t.Helper()
	got, ok := Classify(k)
	if want == none {
		if ok {
			t.Errorf("%s: got %v, want no action", k, got)
		}
		return
	}
	if !ok || got != want {
		t.Errorf("%s: got %v (%v), want %v", k, got, ok, want)
	}
}

func TestNewLibrettoEvent(t *testing.T) {
	layout := patterns.NewLayout("/root", nil)
	ev := fsevent.New(fsevent.AccessKind{Op: fsevent.AccessClose, Mode: fsevent.ModeWrite}, "/root/containers/vm1/disk.img")

	le, ok := NewLibrettoEvent(ev, layout)
	if !ok {
		t.Fatal("expected an action")
	}
	want := LibrettoEvent{Event: ev, Action: action(Copy), InstanceName: "vm1"}
	if diff := cmp.Diff(want, le); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}

	if _, ok := NewLibrettoEvent(fsevent.New(fsevent.AccessKind{Op: fsevent.AccessRead}, "/root/containers/vm1/a"), layout); ok {
		t.Fatal("read access should not produce an event")
	}

	le, _ = NewLibrettoEvent(fsevent.New(fsevent.OtherKind{}, "/elsewhere/a"), layout)
	if le.InstanceName != "" {
		t.Fatalf("got instance %q for unresolvable path", le.InstanceName)
	}
}

func TestLibrettoEventJSON(t *testing.T) {
	le := LibrettoEvent{
		Event:  fsevent.New(fsevent.OtherKind{}, "/x"),
		Action: other("because"),
	}
	data, err := json.Marshal(le)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"event":{"kind":{"type":"other"},"paths":["/x"]},"action":{"type":"other","reason":"because"}}`
	if string(data) != want {
		t.Fatalf("got %s", data)
	}
	var got LibrettoEvent
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(le, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}

	if err := json.Unmarshal([]byte(`{"type":"explode"}`), new(Action)); err == nil {
		t.Fatal("expected unknown action type to fail")
	}
}
