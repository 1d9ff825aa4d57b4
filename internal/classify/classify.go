package classify

import (
	"fmt"

	"github.com/obby/libretto/internal/fsevent"
)

// Classify returns the action for kind. The boolean is false when the change
// needs no action and is only worth observing.
//
// Changes to content or identity need a full copy. Metadata changes that do
// not touch payload bytes are rolled up. Unclassified top-level changes get a
// snapshot. Anything this build does not know maps to Other.
func Classify(kind fsevent.Kind) (Action, bool) {
	switch k := kind.(type) {
	case fsevent.AnyKind:
		return Action{}, false
	case fsevent.AccessKind:
		if k.Op == fsevent.AccessClose && (k.Mode == fsevent.ModeExecute || k.Mode == fsevent.ModeWrite) {
			return action(Copy), true
		}
		return Action{}, false
	case fsevent.CreateKind:
		return action(Copy), true
	case fsevent.ModifyKind:
		return classifyModify(k), true
	case fsevent.RemoveKind:
		return action(Copy), true
	case fsevent.OtherKind:
		return action(Snapshot), true
	case fsevent.UnknownKind:
		return other(fmt.Sprintf("unrecognized event kind %q", k.Name)), true
	case nil:
		return other("event has no kind"), true
	}
	return other(fmt.Sprintf("unrecognized event kind %s", kind)), true
}

func classifyModify(k fsevent.ModifyKind) Action {
	switch k.Op {
	case fsevent.ModifyAny, fsevent.ModifyData, fsevent.ModifyName, fsevent.ModifyOther:
		return action(Copy)
	case fsevent.ModifyMetadata:
		switch k.Metadata {
		case fsevent.MetadataOwnership, fsevent.MetadataPermissions:
			return action(Copy)
		case fsevent.MetadataAny, fsevent.MetadataOther, fsevent.MetadataExtended,
			fsevent.MetadataWriteTime, fsevent.MetadataAccessTime:
			return action(Rollup)
		}
		return other(fmt.Sprintf("unrecognized metadata change %s", k.Metadata))
	}
	return other(fmt.Sprintf("unrecognized modification %s", k.Op))
}
