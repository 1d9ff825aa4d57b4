package fsevent

import "fmt"

// Kind is the hierarchical classification of a filesystem change. The set of
// implementations is closed: AnyKind, AccessKind, CreateKind, ModifyKind,
// RemoveKind, OtherKind and UnknownKind.
type Kind interface {
	fmt.Stringer
	isKind()
}

// AnyKind is a change the notification source could not describe further.
type AnyKind struct{}

// AccessKind is a read, open or close of a file. Mode is only meaningful for
// AccessOpen and AccessClose.
type AccessKind struct {
	Op   AccessOp
	Mode AccessMode
}

// CreateKind is the creation of a file or folder.
type CreateKind struct {
	Op CreateOp
}

// ModifyKind is a change to data, name or metadata. Only the field matching
// Op is meaningful.
type ModifyKind struct {
	Op       ModifyOp
	Data     DataChange
	Rename   RenameMode
	Metadata MetadataKind
}

// RemoveKind is the removal of a file or folder.
type RemoveKind struct {
	Op RemoveOp
}

// OtherKind is a change that fits none of the other top-level kinds.
type OtherKind struct{}

// UnknownKind carries a kind name this build does not understand, at any
// level of the taxonomy ("teleport", "modify/metadata/birth-time"). It is
// only produced by decoding.
type UnknownKind struct {
	Name string
}

func (AnyKind) isKind() {}
func (AccessKind) isKind() {}
func (CreateKind) isKind() {}
func (ModifyKind) isKind() {}
func (RemoveKind) isKind() {}
func (OtherKind) isKind() {}
func (UnknownKind) isKind() {}

func (AnyKind) String() string { return "any" }

func (k AccessKind) String() string {
	switch k.Op {
	case AccessOpen, AccessClose:
		return fmt.Sprintf("access(%s(%s))", k.Op, k.Mode)
	}
	return fmt.Sprintf("access(%s)", k.Op)
}

func (k CreateKind) String() string { return fmt.Sprintf("create(%s)", k.Op) }

func (k ModifyKind) String() string {
	switch k.Op {
	case ModifyData:
		return fmt.Sprintf("modify(data(%s))", k.Data)
	case ModifyName:
		return fmt.Sprintf("modify(name(%s))", k.Rename)
	case ModifyMetadata:
		return fmt.Sprintf("modify(metadata(%s))", k.Metadata)
	}
	return fmt.Sprintf("modify(%s)", k.Op)
}

func (k RemoveKind) String() string { return fmt.Sprintf("remove(%s)", k.Op) }

func (OtherKind) String() string { return "other" }

func (k UnknownKind) String() string { return fmt.Sprintf("unknown(%s)", k.Name) }

// AccessOp is the sub-kind of an access.
type AccessOp uint8

const (
	AccessAny AccessOp = iota
	AccessRead
	AccessOpen
	AccessClose
	AccessOther
)

// AccessMode is the mode a file was opened or closed with.
type AccessMode uint8

const (
	ModeAny AccessMode = iota
	ModeRead
	ModeExecute
	ModeWrite
	ModeOther
)

// CreateOp is the sub-kind of a creation.
type CreateOp uint8

const (
	CreateAny CreateOp = iota
	CreateFile
	CreateFolder
	CreateOther
)

// ModifyOp is the sub-kind of a modification.
type ModifyOp uint8

const (
	ModifyAny ModifyOp = iota
	ModifyData
	ModifyName
	ModifyMetadata
	ModifyOther
)

// DataChange describes a change of file contents.
type DataChange uint8

const (
	DataAny DataChange = iota
	DataSize
	DataContent
	DataOther
)

// RenameMode describes which side of a rename an event reports.
type RenameMode uint8

const (
	RenameAny RenameMode = iota
	RenameTo
	RenameFrom
	RenameBoth
	RenameOther
)

// MetadataKind describes which piece of metadata changed.
type MetadataKind uint8

const (
	MetadataAny MetadataKind = iota
	MetadataAccessTime
	MetadataWriteTime
	MetadataPermissions
	MetadataOwnership
	MetadataExtended
	MetadataOther
)

// RemoveOp is the sub-kind of a removal.
type RemoveOp uint8

const (
	RemoveAny RemoveOp = iota
	RemoveFile
	RemoveFolder
	RemoveOther
)

var (
	accessOpNames     = []string{"any", "read", "open", "close", "other"}
	accessModeNames   = []string{"any", "read", "execute", "write", "other"}
	createOpNames     = []string{"any", "file", "folder", "other"}
	modifyOpNames     = []string{"any", "data", "name", "metadata", "other"}
	dataChangeNames   = []string{"any", "size", "content", "other"}
	renameModeNames   = []string{"any", "to", "from", "both", "other"}
	metadataKindNames = []string{"any", "access-time", "write-time", "permissions", "ownership", "extended", "other"}
	removeOpNames     = []string{"any", "file", "folder", "other"}
)

func enumName[T ~uint8](names []string, v T) string {
	if int(v) < len(names) {
		return names[v]
	}
	return fmt.Sprintf("%d", uint8(v))
}

func parseEnum[T ~uint8](names []string, s string) (T, bool) {
	for i, n := range names {
		if n == s {
			return T(i), true
		}
	}
	return 0, false
}

func (v AccessOp) String() string { return enumName(accessOpNames, v) }
func (v AccessMode) String() string { return enumName(accessModeNames, v) }
func (v CreateOp) String() string { return enumName(createOpNames, v) }
func (v ModifyOp) String() string { return enumName(modifyOpNames, v) }
func (v DataChange) String() string { return enumName(dataChangeNames, v) }
func (v RenameMode) String() string { return enumName(renameModeNames, v) }
func (v MetadataKind) String() string { return enumName(metadataKindNames, v) }
func (v RemoveOp) String() string { return enumName(removeOpNames, v) }
