package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/satchel/internal/keys"
	"github.com/jacentio/satchel/inventory"
)

// Store persists inventories across the skeleton, folder content and folder
// version tables.
type Store struct {
	client Client
	config Config
	logger *slog.Logger
}

// New creates a new Store instance.
func New(client Client, config Config) *Store {
	return NewWithLogger(client, config, nil)
}

// NewWithLogger creates a new Store instance that logs to logger.
// If logger is nil, slog.Default() is used.
func NewWithLogger(client Client, config Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	config.validate()
	return &Store{
		client: client,
		config: config,
		logger: logger,
	}
}

// Config returns the configuration in effect, with defaults applied.
func (s *Store) Config() Config {
	return s.config
}

// GetSkeleton returns every skeleton entry of a user joined with its folder
// version. The skeleton and version partitions are read concurrently.
func (s *Store) GetSkeleton(ctx context.Context, userID uuid.UUID) ([]inventory.SkeletonEntry, error) {
	var entries []inventory.SkeletonEntry
	var versions map[uuid.UUID]int64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		entries, err = s.readSkeleton(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		versions, err = s.readVersions(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range entries {
		entries[i].Version = versions[entries[i].FolderID]
	}
	return entries, nil
}

// GetSkeletonEntry returns one skeleton entry joined with its version, or nil
// if the user has no such folder.
func (s *Store) GetSkeletonEntry(ctx context.Context, userID, folderID uuid.UUID) (*inventory.SkeletonEntry, error) {
	var entry *inventory.SkeletonEntry
	var version int64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		entry, err = s.readSkeletonEntry(gctx, userID, folderID)
		return err
	})
	g.Go(func() error {
		var err error
		version, err = s.readVersion(gctx, userID, folderID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if entry == nil {
		return nil, nil
	}
	entry.Version = version
	return entry, nil
}

// GetFolder reads a folder's whole content partition: its attributes and
// every item it holds. It returns nil if the partition is empty.
func (s *Store) GetFolder(ctx context.Context, folderID uuid.UUID) (*inventory.Folder, error) {
	rows, err := s.queryPartition(ctx, s.config.ContentTable, keys.FolderID, keys.ID(folderID))
	if err != nil {
		return nil, classify("get folder", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	folder := &inventory.Folder{FolderID: folderID}
	hasAttributes := false
	for _, raw := range rows {
		row, err := decodeContentRow(raw)
		if err != nil {
			return nil, fmt.Errorf("get folder %s: %w", folderID, err)
		}
		switch r := row.(type) {
		case attributeRow:
			items := folder.Items
			*folder = r.attrs.Folder()
			folder.Items = items
			hasAttributes = true
		case itemRow:
			folder.Items = append(folder.Items, r.item)
		}
	}

	if !hasAttributes {
		s.logger.Warn("folder partition has no attribute row",
			"folderID", folderID,
			"items", len(folder.Items))
	}
	return folder, nil
}

// GetFolderAttributes reads only a folder's attribute row. The returned
// folder has no items. It returns nil if the folder does not exist.
func (s *Store) GetFolderAttributes(ctx context.Context, folderID uuid.UUID) (*inventory.Folder, error) {
	raw, err := s.getRow(ctx, s.config.ContentTable, keys.Content(folderID, attributeRowID))
	if err != nil {
		return nil, classify("get folder attributes", err)
	}
	if raw == nil {
		return nil, nil
	}

	row, err := decodeContentRow(raw)
	if err != nil {
		return nil, fmt.Errorf("get folder attributes %s: %w", folderID, err)
	}
	attrs, ok := row.(attributeRow)
	if !ok {
		return nil, fmt.Errorf("get folder attributes %s: row is not an attribute row", folderID)
	}
	folder := attrs.attrs.Folder()
	return &folder, nil
}

// CreateFolder writes a new folder's skeleton entry and attribute row in one
// transaction, then bumps the folder's version.
//
// A Root folder is rejected if the owner already has one. The check is a
// read ahead of the write, so two concurrent root creations for the same
// owner can both succeed.
func (s *Store) CreateFolder(ctx context.Context, folder inventory.Folder) error {
	const op = "create folder"

	if err := folder.Validate(); err != nil {
		return inventory.Invalid(op, folder.FolderID, err)
	}

	if folder.Level == inventory.Root {
		entries, err := s.readSkeleton(ctx, folder.OwnerID)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.Level == inventory.Root {
				return &inventory.StructureError{Op: op, ID: folder.FolderID, Err: inventory.ErrRootExists}
			}
		}
	}

	skeletonItem, err := attributevalue.MarshalMap(newSkeletonRow(folder.SkeletonEntry()))
	if err != nil {
		return fmt.Errorf("%s: marshal skeleton row: %w", op, err)
	}
	attrItem, err := encodeAttributeRow(folder.Attributes())
	if err != nil {
		return fmt.Errorf("%s: marshal attribute row: %w", op, err)
	}

	var tx []txItem
	if folder.Level != inventory.Root {
		tx = append(tx, txItem{
			write: types.TransactWriteItem{
				ConditionCheck: &types.ConditionCheck{
					TableName:                aws.String(s.config.SkeletonTable),
					Key:                      keys.Skeleton(folder.OwnerID, folder.ParentID),
					ConditionExpression:      aws.String("attribute_exists(#folder_id)"),
					ExpressionAttributeNames: map[string]string{"#folder_id": keys.FolderID},
				},
			},
			onConditionFailed: inventory.ErrParentNotFound,
		})
	}
	tx = append(tx,
		txItem{
			write: types.TransactWriteItem{
				Put: &types.Put{
					TableName:                aws.String(s.config.SkeletonTable),
					Item:                     skeletonItem,
					ConditionExpression:      aws.String("attribute_not_exists(#folder_id)"),
					ExpressionAttributeNames: map[string]string{"#folder_id": keys.FolderID},
				},
			},
			onConditionFailed: inventory.ErrAlreadyExists,
		},
		txItem{
			write: types.TransactWriteItem{
				Put: &types.Put{
					TableName:                aws.String(s.config.ContentTable),
					Item:                     attrItem,
					ConditionExpression:      aws.String("attribute_not_exists(#item_id)"),
					ExpressionAttributeNames: map[string]string{"#item_id": keys.ItemID},
				},
			},
			onConditionFailed: inventory.ErrAlreadyExists,
		},
	)

	if err := s.transact(ctx, op, folder.FolderID, tx); err != nil {
		return err
	}
	return s.track(ctx, createFolder, folder.OwnerID, targets{self: {folder.FolderID}})
}

// SaveFolder updates the name and type of an existing folder on both its
// skeleton entry and its attribute row, then bumps the folder's version.
// The folder's parent and level are left untouched.
func (s *Store) SaveFolder(ctx context.Context, folder inventory.Folder) error {
	const op = "save folder"

	if err := folder.ValidateAttributes(); err != nil {
		return inventory.Invalid(op, folder.FolderID, err)
	}

	tx := []txItem{
		{
			write: types.TransactWriteItem{
				Update: &types.Update{
					TableName:           aws.String(s.config.SkeletonTable),
					Key:                 keys.Skeleton(folder.OwnerID, folder.FolderID),
					UpdateExpression:    aws.String("SET #name = :name, #type = :type"),
					ConditionExpression: aws.String("attribute_exists(#folder_id)"),
					ExpressionAttributeNames: map[string]string{
						"#folder_id": keys.FolderID,
						"#name":      "folder_name",
						"#type":      "type",
					},
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":name": &types.AttributeValueMemberS{Value: folder.Name},
						":type": &types.AttributeValueMemberN{Value: fmt.Sprint(folder.Type)},
					},
				},
			},
			onConditionFailed: inventory.ErrFolderNotFound,
		},
		{
			write: types.TransactWriteItem{
				Update: &types.Update{
					TableName:           aws.String(s.config.ContentTable),
					Key:                 keys.Content(folder.FolderID, attributeRowID),
					UpdateExpression:    aws.String("SET #name = :name, #type = :type"),
					ConditionExpression: aws.String("attribute_exists(#item_id)"),
					ExpressionAttributeNames: map[string]string{
						"#item_id": keys.ItemID,
						"#name":    "name",
						"#type":    "inv_type",
					},
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":name": &types.AttributeValueMemberS{Value: folder.Name},
						":type": &types.AttributeValueMemberN{Value: fmt.Sprint(folder.Type)},
					},
				},
			},
			onConditionFailed: inventory.ErrFolderNotFound,
		},
	}

	if err := s.transact(ctx, op, folder.FolderID, tx); err != nil {
		return err
	}
	return s.track(ctx, saveFolder, folder.OwnerID, targets{self: {folder.FolderID}})
}

// MoveFolder re-parents a folder by rewriting the parent of its skeleton
// entry, then bumps the versions of the folder, its old parent and its new
// parent.
//
// The move is checked against a fresh read of the skeleton: the folder must
// exist and not be the root, and the new parent must exist and not be the
// folder itself or one of its descendants.
func (s *Store) MoveFolder(ctx context.Context, entry inventory.SkeletonEntry, newParentID uuid.UUID) error {
	const op = "move folder"

	entries, err := s.readSkeleton(ctx, entry.UserID)
	if err != nil {
		return err
	}

	var current *inventory.SkeletonEntry
	parentExists := false
	for i := range entries {
		switch entries[i].FolderID {
		case entry.FolderID:
			current = &entries[i]
		case newParentID:
			parentExists = true
		}
	}

	switch {
	case current == nil:
		return &inventory.StructureError{Op: op, ID: entry.FolderID, Err: inventory.ErrFolderNotFound}
	case current.Level == inventory.Root:
		return inventory.Invalid(op, entry.FolderID, errors.New("root folder cannot be moved"))
	case newParentID == entry.FolderID:
		return &inventory.StructureError{Op: op, ID: entry.FolderID, Err: inventory.ErrCycle}
	case !parentExists:
		return &inventory.StructureError{Op: op, ID: entry.FolderID, Err: inventory.ErrParentNotFound}
	case inventory.IsDescendant(inventory.ChildIndex(entries), entry.FolderID, newParentID):
		return &inventory.StructureError{Op: op, ID: entry.FolderID, Err: inventory.ErrCycle}
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.config.SkeletonTable),
		Key:                 keys.Skeleton(entry.UserID, entry.FolderID),
		UpdateExpression:    aws.String("SET #parent_id = :parent_id"),
		ConditionExpression: aws.String("attribute_exists(#folder_id)"),
		ExpressionAttributeNames: map[string]string{
			"#folder_id": keys.FolderID,
			"#parent_id": "parent_id",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":parent_id": keys.ID(newParentID),
		},
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		if isConditionFailed(err) {
			return &inventory.StructureError{Op: op, ID: entry.FolderID, Err: inventory.ErrFolderNotFound}
		}
		return classify(op, err)
	}

	oldParentID := current.ParentID
	if av, ok := out.Attributes["parent_id"]; ok {
		if id, err := keys.ParseID(av); err == nil {
			oldParentID = id
		}
	}

	return s.track(ctx, moveFolder, entry.UserID, targets{
		self:      {entry.FolderID},
		oldParent: {oldParentID},
		newParent: {newParentID},
	})
}

// FindFolderForType returns the Root or TopLevel folder of an owner with the
// given type, or nil if there is none. When several match, the one with the
// lowest folder identifier wins.
func (s *Store) FindFolderForType(ctx context.Context, ownerID uuid.UUID, folderType int) (*inventory.SkeletonEntry, error) {
	entries, err := s.GetSkeleton(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	var found *inventory.SkeletonEntry
	for i := range entries {
		e := &entries[i]
		if e.Type != folderType || (e.Level != inventory.Root && e.Level != inventory.TopLevel) {
			continue
		}
		if found == nil || bytes.Compare(e.FolderID[:], found.FolderID[:]) < 0 {
			found = e
		}
	}
	return found, nil
}

// readSkeleton returns the skeleton entries of a user without versions.
func (s *Store) readSkeleton(ctx context.Context, userID uuid.UUID) ([]inventory.SkeletonEntry, error) {
	rows, err := s.queryPartition(ctx, s.config.SkeletonTable, keys.UserID, keys.ID(userID))
	if err != nil {
		return nil, classify("read skeleton", err)
	}

	entries := make([]inventory.SkeletonEntry, 0, len(rows))
	for _, raw := range rows {
		e, err := decodeSkeletonRow(raw)
		if err != nil {
			return nil, fmt.Errorf("read skeleton of %s: %w", userID, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *Store) readSkeletonEntry(ctx context.Context, userID, folderID uuid.UUID) (*inventory.SkeletonEntry, error) {
	raw, err := s.getRow(ctx, s.config.SkeletonTable, keys.Skeleton(userID, folderID))
	if err != nil {
		return nil, classify("read skeleton entry", err)
	}
	if raw == nil {
		return nil, nil
	}
	e, err := decodeSkeletonRow(raw)
	if err != nil {
		return nil, fmt.Errorf("read skeleton entry %s: %w", folderID, err)
	}
	return &e, nil
}

func decodeSkeletonRow(raw map[string]types.AttributeValue) (inventory.SkeletonEntry, error) {
	var row skeletonRow
	if err := attributevalue.UnmarshalMap(raw, &row); err != nil {
		return inventory.SkeletonEntry{}, fmt.Errorf("unmarshal skeleton row: %w", err)
	}
	return row.entry()
}

// queryPartition reads every row of one partition with strongly consistent
// reads, following pagination to the end.
func (s *Store) queryPartition(ctx context.Context, table, keyName string, key types.AttributeValue) ([]map[string]types.AttributeValue, error) {
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                 aws.String(table),
		KeyConditionExpression:    aws.String("#pk = :pk"),
		ExpressionAttributeNames:  map[string]string{"#pk": keyName},
		ExpressionAttributeValues: map[string]types.AttributeValue{":pk": key},
		ConsistentRead:            aws.Bool(true),
	})

	var rows []map[string]types.AttributeValue
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		rows = append(rows, page.Items...)
	}
	return rows, nil
}

// getRow reads one row with a strongly consistent read. It returns nil if
// the row does not exist.
func (s *Store) getRow(ctx context.Context, table string, key map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	return out.Item, nil
}

// txItem is one write of a transaction. If its condition fails, the
// transaction is reported as a StructureError wrapping onConditionFailed.
type txItem struct {
	write             types.TransactWriteItem
	onConditionFailed error
}

// transact runs items as one transaction without SDK retries and maps the
// first failed condition to its StructureError.
func (s *Store) transact(ctx context.Context, op string, id uuid.UUID, items []txItem) error {
	writes := make([]types.TransactWriteItem, len(items))
	for i, item := range items {
		writes[i] = item.write
	}

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: writes,
	}, withoutRetries)
	if err == nil {
		return nil
	}

	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for i, reason := range txErr.CancellationReasons {
			if reason.Code == nil || *reason.Code != "ConditionalCheckFailed" || i >= len(items) {
				continue
			}
			if cause := items[i].onConditionFailed; cause != nil {
				return &inventory.StructureError{Op: op, ID: id, Err: cause}
			}
		}
	}
	return classify(op, err)
}
