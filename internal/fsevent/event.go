// Package fsevent defines the filesystem change events produced by the
// notification sources and carried on the raw filesystem topic.
package fsevent

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event is a single change reported by the notification source. Paths holds
// one or more absolute paths; rename events may carry both sides.
type Event struct {
	Kind  Kind
	Paths []string
}

// New returns an event of the given kind over paths.
func New(kind Kind, paths ...string) Event {
	return Event{Kind: kind, Paths: paths}
}

// FirstPath returns the first affected path, or "" if there is none.
func (e Event) FirstPath() string {
	if len(e.Paths) == 0 {
		return ""
	}
	return e.Paths[0]
}

func (e Event) String() string {
	return fmt.Sprintf("%s %v", e.Kind, e.Paths)
}

type kindJSON struct {
	Type   string `json:"type"`
	Op     string `json:"op,omitempty"`
	Detail string `json:"detail,omitempty"`
}

type eventJSON struct {
	Kind  kindJSON `json:"kind"`
	Paths []string `json:"paths"`
}

// MarshalJSON implements json.Marshaler.
func (e Event) MarshalJSON() ([]byte, error) {
	k, err := encodeKind(e.Kind)
	if err != nil {
		return nil, err
	}
	paths := e.Paths
	if paths == nil {
		paths = []string{}
	}
	return json.Marshal(eventJSON{Kind: k, Paths: paths})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	kind, err := decodeKind(raw.Kind)
	if err != nil {
		return err
	}
	e.Kind = kind
	e.Paths = raw.Paths
	return nil
}

func encodeKind(kind Kind) (kindJSON, error) {
	switch k := kind.(type) {
	case AnyKind:
		return kindJSON{Type: "any"}, nil
	case AccessKind:
		j := kindJSON{Type: "access", Op: k.Op.String()}
		if k.Op == AccessOpen || k.Op == AccessClose {
			j.Detail = k.Mode.String()
		}
		return j, nil
	case CreateKind:
		return kindJSON{Type: "create", Op: k.Op.String()}, nil
	case ModifyKind:
		j := kindJSON{Type: "modify", Op: k.Op.String()}
		switch k.Op {
		case ModifyData:
			j.Detail = k.Data.String()
		case ModifyName:
			j.Detail = k.Rename.String()
		case ModifyMetadata:
			j.Detail = k.Metadata.String()
		}
		return j, nil
	case RemoveKind:
		return kindJSON{Type: "remove", Op: k.Op.String()}, nil
	case OtherKind:
		return kindJSON{Type: "other"}, nil
	case UnknownKind:
		return kindJSON{Type: k.Name}, nil
	case nil:
		return kindJSON{}, errors.New("fsevent: event has no kind")
	}
	return kindJSON{}, fmt.Errorf("fsevent: cannot encode kind %T", kind)
}

// decodeKind maps the JSON form back onto the taxonomy. Names this build does
// not know, at any level, decode to UnknownKind so that newer producers still
// get classified.
func decodeKind(j kindJSON) (Kind, error) {
	if j.Type == "" {
		return nil, errors.New("fsevent: missing kind type")
	}
	unknown := UnknownKind{Name: unknownName(j)}
	detail := func(names []string) (uint8, bool) {
		if j.Detail == "" {
			return 0, true
		}
		return parseEnum[uint8](names, j.Detail)
	}

	switch j.Type {
	case "any":
		return AnyKind{}, nil
	case "access":
		op, ok := parseEnum[AccessOp](accessOpNames, j.Op)
		if !ok {
			return unknown, nil
		}
		mode, ok := detail(accessModeNames)
		if !ok {
			return unknown, nil
		}
		return AccessKind{Op: op, Mode: AccessMode(mode)}, nil
	case "create":
		op, ok := parseEnum[CreateOp](createOpNames, j.Op)
		if !ok {
			return unknown, nil
		}
		return CreateKind{Op: op}, nil
	case "modify":
		op, ok := parseEnum[ModifyOp](modifyOpNames, j.Op)
		if !ok {
			return unknown, nil
		}
		k := ModifyKind{Op: op}
		v, ok := uint8(0), true
		switch op {
		case ModifyData:
			v, ok = detail(dataChangeNames)
			k.Data = DataChange(v)
		case ModifyName:
			v, ok = detail(renameModeNames)
			k.Rename = RenameMode(v)
		case ModifyMetadata:
			v, ok = detail(metadataKindNames)
			k.Metadata = MetadataKind(v)
		}
		if !ok {
			return unknown, nil
		}
		return k, nil
	case "remove":
		op, ok := parseEnum[RemoveOp](removeOpNames, j.Op)
		if !ok {
			return unknown, nil
		}
		return RemoveKind{Op: op}, nil
	case "other":
		return OtherKind{}, nil
	}
	return unknown, nil
}

// unknownName joins the non-empty levels of j with '/', for example
// "modify/metadata/birth-time".
func unknownName(j kindJSON) string {
	name := j.Type
	for _, part := range []string{j.Op, j.Detail} {
		if part != "" {
			name += "/" + part
		}
	}
	return name
}
