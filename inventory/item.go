package inventory

import "github.com/google/uuid"

// Item is a single inventory entry stored inside a folder.
type Item struct {
	ItemID        uuid.UUID
	FolderID      uuid.UUID
	Name          string
	Description   string
	AssetID       uuid.UUID
	AssetType     int
	InventoryType int
	OwnerID       uuid.UUID
	CreatorID     uuid.UUID
	GroupID       uuid.UUID
	GroupOwned    bool

	BasePermissions     uint32
	CurrentPermissions  uint32
	NextPermissions     uint32
	EveryonePermissions uint32
	GroupPermissions    uint32

	Flags        uint32
	SaleType     int
	CreationDate int64
}
