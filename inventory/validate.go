package inventory

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

// Input limits for stored names and descriptions.
const (
	MaxNameLength        = 255
	MaxDescriptionLength = 4096
)

var (
	errNilID    = errors.New("must not be the nil identifier")
	errNotNilID = errors.New("must be the nil identifier")
)

var notNil = validation.By(func(value interface{}) error {
	if id, ok := value.(uuid.UUID); ok && id == uuid.Nil {
		return errNilID
	}
	return nil
})

var isNil = validation.By(func(value interface{}) error {
	if id, ok := value.(uuid.UUID); ok && id != uuid.Nil {
		return errNotNilID
	}
	return nil
})

// Validate checks that f can be written as a new folder.
func (f Folder) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.FolderID, notNil),
		validation.Field(&f.OwnerID, notNil),
		validation.Field(&f.Name, validation.Required, validation.RuneLength(1, MaxNameLength)),
		validation.Field(&f.Level, validation.Required, validation.In(Root, TopLevel, Leaf)),
		validation.Field(&f.ParentID,
			validation.When(f.Level == Root, isNil).Else(notNil),
			validation.By(func(value interface{}) error {
				if f.ParentID != uuid.Nil && f.ParentID == f.FolderID {
					return errors.New("must differ from the folder's own identifier")
				}
				return nil
			}),
		),
	)
}

// Validate checks that i can be written as an item.
func (i Item) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.ItemID, notNil),
		validation.Field(&i.FolderID, notNil),
		validation.Field(&i.OwnerID, notNil),
		validation.Field(&i.Name, validation.Required, validation.RuneLength(1, MaxNameLength)),
		validation.Field(&i.Description, validation.RuneLength(0, MaxDescriptionLength)),
	)
}

// Invalid wraps a validation failure of op on id as a StructureError
// matching ErrInvalid.
func Invalid(op string, id uuid.UUID, err error) error {
	return &StructureError{Op: op, ID: id, Err: fmt.Errorf("%w: %w", ErrInvalid, err)}
}

// ValidateAttributes checks the fields SaveFolder writes. Unlike Validate it
// ignores ParentID and Level, which folders read from storage leave unset.
func (f Folder) ValidateAttributes() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.FolderID, notNil),
		validation.Field(&f.OwnerID, notNil),
		validation.Field(&f.Name, validation.Required, validation.RuneLength(1, MaxNameLength)),
	)
}
