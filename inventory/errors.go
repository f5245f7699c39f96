package inventory

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNoRoot is returned when a skeleton has no root folder.
	ErrNoRoot = errors.New("inventory: skeleton has no root folder")

	// ErrMultipleRoots is returned when a skeleton has more than one root folder.
	ErrMultipleRoots = errors.New("inventory: skeleton has more than one root folder")

	// ErrRootExists is returned when creating a second root folder for an owner.
	ErrRootExists = errors.New("inventory: owner already has a root folder")

	// ErrParentNotFound is returned when a referenced parent folder doesn't exist.
	ErrParentNotFound = errors.New("inventory: parent folder not found")

	// ErrFolderNotFound is returned when mutating a folder that doesn't exist.
	ErrFolderNotFound = errors.New("inventory: folder not found")

	// ErrItemNotFound is returned when mutating an item that doesn't exist.
	ErrItemNotFound = errors.New("inventory: item not found")

	// ErrAlreadyExists is returned when creating a folder or item with an existing ID.
	ErrAlreadyExists = errors.New("inventory: already exists")

	// ErrCycle is returned when a move would make a folder its own ancestor.
	ErrCycle = errors.New("inventory: move would create a cycle")

	// ErrInvalid is returned when an input fails validation.
	ErrInvalid = errors.New("inventory: invalid input")
)

// StructureError reports an operation rejected because the hierarchy, or the
// request against it, is inconsistent.
type StructureError struct {
	// Op names the rejected operation, e.g. "move folder".
	Op string

	// ID is the folder or item the operation targeted, if any.
	ID uuid.UUID

	Err error
}

func (e *StructureError) Error() string {
	if e.ID == uuid.Nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *StructureError) Unwrap() error {
	return e.Err
}

// IsStructural reports whether err is a StructureError.
func IsStructural(err error) bool {
	var se *StructureError
	return errors.As(err, &se)
}
