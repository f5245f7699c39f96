package inventory

import (
	"fmt"

	"github.com/google/uuid"
)

// FolderLevel is the depth class of a folder in a user's inventory.
type FolderLevel int

const (
	// Root is the single top of a user's hierarchy.
	Root FolderLevel = 1
	// TopLevel folders are direct children of the root.
	TopLevel FolderLevel = 2
	// Leaf is any other folder.
	Leaf FolderLevel = 3
)

// Valid reports whether l is one of the defined levels.
func (l FolderLevel) Valid() bool {
	return l == Root || l == TopLevel || l == Leaf
}

func (l FolderLevel) String() string {
	switch l {
	case Root:
		return "root"
	case TopLevel:
		return "top-level"
	case Leaf:
		return "leaf"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Folder is a container of items.
//
// ParentID and Level are only meaningful on folders built by the caller for
// CreateFolder; folders read back from a content partition leave them zero,
// since the skeleton is the only place the hierarchy is recorded.
type Folder struct {
	FolderID     uuid.UUID
	Name         string
	OwnerID      uuid.UUID
	ParentID     uuid.UUID
	Type         int
	Level        FolderLevel
	CreationDate int64

	// Items is populated by full folder reads only.
	Items []Item
}

// Attributes returns the folder's own metadata without its items.
func (f Folder) Attributes() FolderAttributes {
	return FolderAttributes{
		FolderID:     f.FolderID,
		Name:         f.Name,
		OwnerID:      f.OwnerID,
		Type:         f.Type,
		CreationDate: f.CreationDate,
	}
}

// FolderAttributes is the metadata a folder keeps alongside its items.
type FolderAttributes struct {
	FolderID     uuid.UUID
	Name         string
	OwnerID      uuid.UUID
	Type         int
	CreationDate int64
}

// Folder converts the attributes into a Folder with no items.
func (a FolderAttributes) Folder() Folder {
	return Folder{
		FolderID:     a.FolderID,
		Name:         a.Name,
		OwnerID:      a.OwnerID,
		Type:         a.Type,
		CreationDate: a.CreationDate,
	}
}

// SkeletonEntry is the index record for one folder of one user.
type SkeletonEntry struct {
	UserID   uuid.UUID
	FolderID uuid.UUID
	Name     string
	ParentID uuid.UUID
	Type     int
	Level    FolderLevel

	// Version is the folder's change counter. Zero means never incremented.
	Version int64
}

// SkeletonEntry returns the index record describing f.
func (f Folder) SkeletonEntry() SkeletonEntry {
	return SkeletonEntry{
		UserID:   f.OwnerID,
		FolderID: f.FolderID,
		Name:     f.Name,
		ParentID: f.ParentID,
		Type:     f.Type,
		Level:    f.Level,
	}
}
