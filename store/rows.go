package store

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/satchel/internal/keys"
	"github.com/jacentio/satchel/inventory"
)

// attributeRowKey is the item_id of the row holding a folder's own metadata
// inside its content partition. It is never a valid item identifier.
const attributeRowKey = "00000000-0000-0000-0000-000000000001"

var attributeRowID = uuid.MustParse(attributeRowKey)

// AttributeRowID returns the reserved item_id of a folder's attribute row.
func AttributeRowID() uuid.UUID {
	return attributeRowID
}

// skeletonRow is a row of the skeleton table.
type skeletonRow struct {
	UserID     string `dynamodbav:"user_id"`
	FolderID   string `dynamodbav:"folder_id"`
	FolderName string `dynamodbav:"folder_name"`
	ParentID   string `dynamodbav:"parent_id"`
	Type       int    `dynamodbav:"type"`
	Level      int    `dynamodbav:"level"`
}

func newSkeletonRow(e inventory.SkeletonEntry) skeletonRow {
	return skeletonRow{
		UserID:     e.UserID.String(),
		FolderID:   e.FolderID.String(),
		FolderName: e.Name,
		ParentID:   e.ParentID.String(),
		Type:       e.Type,
		Level:      int(e.Level),
	}
}

func (r skeletonRow) entry() (inventory.SkeletonEntry, error) {
	var e inventory.SkeletonEntry
	var err error
	if e.UserID, err = parseID(r.UserID); err != nil {
		return e, fmt.Errorf("user_id: %w", err)
	}
	if e.FolderID, err = parseID(r.FolderID); err != nil {
		return e, fmt.Errorf("folder_id: %w", err)
	}
	if e.ParentID, err = parseID(r.ParentID); err != nil {
		return e, fmt.Errorf("parent_id: %w", err)
	}
	e.Name = r.FolderName
	e.Type = r.Type
	e.Level = inventory.FolderLevel(r.Level)
	return e, nil
}

// versionRow is a row of the folder version table.
type versionRow struct {
	UserID   string `dynamodbav:"user_id"`
	FolderID string `dynamodbav:"folder_id"`
	Version  int64  `dynamodbav:"version"`
}

// attributeData is the attribute row of a folder content partition.
type attributeData struct {
	FolderID     string `dynamodbav:"folder_id"`
	ItemID       string `dynamodbav:"item_id"`
	Name         string `dynamodbav:"name"`
	InvType      int    `dynamodbav:"inv_type"`
	OwnerID      string `dynamodbav:"owner_id"`
	CreationDate int64  `dynamodbav:"creation_date"`
}

// itemData is an item row of a folder content partition. It shares the
// attribute row's column names, so any content row decodes into it.
type itemData struct {
	FolderID            string `dynamodbav:"folder_id"`
	ItemID              string `dynamodbav:"item_id"`
	Name                string `dynamodbav:"name"`
	Description         string `dynamodbav:"description"`
	AssetID             string `dynamodbav:"asset_id"`
	AssetType           int    `dynamodbav:"asset_type"`
	InvType             int    `dynamodbav:"inv_type"`
	OwnerID             string `dynamodbav:"owner_id"`
	CreatorID           string `dynamodbav:"creator_id"`
	GroupID             string `dynamodbav:"group_id"`
	GroupOwned          bool   `dynamodbav:"group_owned"`
	BasePermissions     uint32 `dynamodbav:"base_permissions"`
	CurrentPermissions  uint32 `dynamodbav:"current_permissions"`
	NextPermissions     uint32 `dynamodbav:"next_permissions"`
	EveryonePermissions uint32 `dynamodbav:"everyone_permissions"`
	GroupPermissions    uint32 `dynamodbav:"group_permissions"`
	Flags               uint32 `dynamodbav:"flags"`
	SaleType            int    `dynamodbav:"sale_type"`
	CreationDate        int64  `dynamodbav:"creation_date"`
}

// contentRow is a decoded row of a folder content partition: either an
// attributeRow or an itemRow.
type contentRow interface {
	isContentRow()
}

type attributeRow struct {
	attrs inventory.FolderAttributes
}

type itemRow struct {
	item inventory.Item
}

func (attributeRow) isContentRow() {}
func (itemRow) isContentRow()      {}

func encodeAttributeRow(a inventory.FolderAttributes) (map[string]types.AttributeValue, error) {
	return attributevalue.MarshalMap(attributeData{
		FolderID:     a.FolderID.String(),
		ItemID:       attributeRowKey,
		Name:         a.Name,
		InvType:      a.Type,
		OwnerID:      a.OwnerID.String(),
		CreationDate: a.CreationDate,
	})
}

func encodeItemRow(item inventory.Item) (map[string]types.AttributeValue, error) {
	return attributevalue.MarshalMap(itemData{
		FolderID:            item.FolderID.String(),
		ItemID:              item.ItemID.String(),
		Name:                item.Name,
		Description:         item.Description,
		AssetID:             item.AssetID.String(),
		AssetType:           item.AssetType,
		InvType:             item.InventoryType,
		OwnerID:             item.OwnerID.String(),
		CreatorID:           item.CreatorID.String(),
		GroupID:             item.GroupID.String(),
		GroupOwned:          item.GroupOwned,
		BasePermissions:     item.BasePermissions,
		CurrentPermissions:  item.CurrentPermissions,
		NextPermissions:     item.NextPermissions,
		EveryonePermissions: item.EveryonePermissions,
		GroupPermissions:    item.GroupPermissions,
		Flags:               item.Flags,
		SaleType:            item.SaleType,
		CreationDate:        item.CreationDate,
	})
}

// decodeContentRow decodes a content partition row, telling the attribute
// row apart from items by its reserved item_id.
func decodeContentRow(raw map[string]types.AttributeValue) (contentRow, error) {
	var d itemData
	if err := attributevalue.UnmarshalMap(raw, &d); err != nil {
		return nil, fmt.Errorf("unmarshal content row: %w", err)
	}

	itemID, err := parseID(d.ItemID)
	if err != nil {
		return nil, fmt.Errorf("item_id: %w", err)
	}
	folderID, err := parseID(d.FolderID)
	if err != nil {
		return nil, fmt.Errorf("folder_id: %w", err)
	}
	ownerID, err := parseID(d.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("owner_id: %w", err)
	}

	if itemID == attributeRowID {
		return attributeRow{attrs: inventory.FolderAttributes{
			FolderID:     folderID,
			Name:         d.Name,
			OwnerID:      ownerID,
			Type:         d.InvType,
			CreationDate: d.CreationDate,
		}}, nil
	}

	item := inventory.Item{
		ItemID:              itemID,
		FolderID:            folderID,
		Name:                d.Name,
		Description:         d.Description,
		AssetType:           d.AssetType,
		InventoryType:       d.InvType,
		OwnerID:             ownerID,
		GroupOwned:          d.GroupOwned,
		BasePermissions:     d.BasePermissions,
		CurrentPermissions:  d.CurrentPermissions,
		NextPermissions:     d.NextPermissions,
		EveryonePermissions: d.EveryonePermissions,
		GroupPermissions:    d.GroupPermissions,
		Flags:               d.Flags,
		SaleType:            d.SaleType,
		CreationDate:        d.CreationDate,
	}
	if item.AssetID, err = parseID(d.AssetID); err != nil {
		return nil, fmt.Errorf("asset_id: %w", err)
	}
	if item.CreatorID, err = parseID(d.CreatorID); err != nil {
		return nil, fmt.Errorf("creator_id: %w", err)
	}
	if item.GroupID, err = parseID(d.GroupID); err != nil {
		return nil, fmt.Errorf("group_id: %w", err)
	}
	return itemRow{item: item}, nil
}

// contentKey extracts the item_id of a content partition row.
func contentKey(raw map[string]types.AttributeValue) (uuid.UUID, error) {
	av, ok := raw[keys.ItemID]
	if !ok {
		return uuid.Nil, fmt.Errorf("content row has no %s", keys.ItemID)
	}
	return keys.ParseID(av)
}

// parseID parses a stored identifier. Missing identifiers decode as uuid.Nil.
func parseID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}
