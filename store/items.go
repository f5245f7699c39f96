package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/satchel/internal/keys"
	"github.com/jacentio/satchel/inventory"
)

var errReservedID = errors.New("item_id is reserved for folder attributes")

func validateItem(op string, item inventory.Item) error {
	if item.ItemID == attributeRowID {
		return inventory.Invalid(op, item.ItemID, errReservedID)
	}
	if err := item.Validate(); err != nil {
		return inventory.Invalid(op, item.ItemID, err)
	}
	return nil
}

// folderExists is a transaction condition that the folder's attribute row
// is present.
func (s *Store) folderExists(folderID uuid.UUID) txItem {
	return txItem{
		write: types.TransactWriteItem{
			ConditionCheck: &types.ConditionCheck{
				TableName:                aws.String(s.config.ContentTable),
				Key:                      keys.Content(folderID, attributeRowID),
				ConditionExpression:      aws.String("attribute_exists(#item_id)"),
				ExpressionAttributeNames: map[string]string{"#item_id": keys.ItemID},
			},
		},
		onConditionFailed: inventory.ErrFolderNotFound,
	}
}

// CreateItem writes a new item into its folder, then bumps the folder's
// version. The folder must exist.
func (s *Store) CreateItem(ctx context.Context, item inventory.Item) error {
	const op = "create item"

	if err := validateItem(op, item); err != nil {
		return err
	}
	row, err := encodeItemRow(item)
	if err != nil {
		return fmt.Errorf("%s: marshal item row: %w", op, err)
	}

	tx := []txItem{
		s.folderExists(item.FolderID),
		{
			write: types.TransactWriteItem{
				Put: &types.Put{
					TableName:                aws.String(s.config.ContentTable),
					Item:                     row,
					ConditionExpression:      aws.String("attribute_not_exists(#item_id)"),
					ExpressionAttributeNames: map[string]string{"#item_id": keys.ItemID},
				},
			},
			onConditionFailed: inventory.ErrAlreadyExists,
		},
	}
	if err := s.transact(ctx, op, item.ItemID, tx); err != nil {
		return err
	}
	return s.track(ctx, createItem, item.OwnerID, targets{self: {item.FolderID}})
}

// SaveItem overwrites every attribute of an existing item in place, then
// bumps its folder's version.
func (s *Store) SaveItem(ctx context.Context, item inventory.Item) error {
	const op = "save item"

	if err := validateItem(op, item); err != nil {
		return err
	}
	row, err := encodeItemRow(item)
	if err != nil {
		return fmt.Errorf("%s: marshal item row: %w", op, err)
	}

	updateExpr, names, values := setExpression(row, keys.FolderID, keys.ItemID)
	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.config.ContentTable),
		Key:                       keys.Content(item.FolderID, item.ItemID),
		UpdateExpression:          aws.String(updateExpr),
		ConditionExpression:       aws.String("attribute_exists(#item_id)"),
		ExpressionAttributeNames:  mergeExprNames(names, map[string]string{"#item_id": keys.ItemID}),
		ExpressionAttributeValues: values,
	})
	if err != nil {
		if isConditionFailed(err) {
			return &inventory.StructureError{Op: op, ID: item.ItemID, Err: inventory.ErrItemNotFound}
		}
		return classify(op, err)
	}
	return s.track(ctx, saveItem, item.OwnerID, targets{self: {item.FolderID}})
}

// MoveItem moves an item from its current folder into newFolderID. The
// insert into the new partition and the delete from the old one are one
// transaction. Both folders' versions are bumped. Moving an item into the
// folder it is already in does nothing.
func (s *Store) MoveItem(ctx context.Context, item inventory.Item, newFolderID uuid.UUID) error {
	const op = "move item"

	if newFolderID == item.FolderID {
		return nil
	}
	moved := item
	moved.FolderID = newFolderID
	if err := validateItem(op, moved); err != nil {
		return err
	}
	row, err := encodeItemRow(moved)
	if err != nil {
		return fmt.Errorf("%s: marshal item row: %w", op, err)
	}

	tx := []txItem{
		s.folderExists(newFolderID),
		{
			write: types.TransactWriteItem{
				Put: &types.Put{
					TableName:                aws.String(s.config.ContentTable),
					Item:                     row,
					ConditionExpression:      aws.String("attribute_not_exists(#item_id)"),
					ExpressionAttributeNames: map[string]string{"#item_id": keys.ItemID},
				},
			},
			onConditionFailed: inventory.ErrAlreadyExists,
		},
		{
			write: types.TransactWriteItem{
				Delete: &types.Delete{
					TableName:                aws.String(s.config.ContentTable),
					Key:                      keys.Content(item.FolderID, item.ItemID),
					ConditionExpression:      aws.String("attribute_exists(#item_id)"),
					ExpressionAttributeNames: map[string]string{"#item_id": keys.ItemID},
				},
			},
			onConditionFailed: inventory.ErrItemNotFound,
		},
	}
	if err := s.transact(ctx, op, item.ItemID, tx); err != nil {
		return err
	}
	return s.track(ctx, moveItem, item.OwnerID, targets{
		source:      {item.FolderID},
		destination: {newFolderID},
	})
}

// GetItem finds an item of a user. If folderHint is not uuid.Nil that folder
// is read first. Otherwise, or if the hint misses, every folder in the
// user's skeleton is read concurrently and the first hit is returned.
// It returns nil if no folder holds the item.
func (s *Store) GetItem(ctx context.Context, userID, itemID, folderHint uuid.UUID) (*inventory.Item, error) {
	if itemID == uuid.Nil || itemID == attributeRowID {
		return nil, nil
	}

	if folderHint != uuid.Nil {
		item, err := s.getItemAt(ctx, folderHint, itemID)
		if err != nil || item != nil {
			return item, err
		}
	}

	entries, err := s.readSkeleton(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.scatterGetItem(ctx, entries, itemID, folderHint)
}

// scatterGetItem reads the given folders for itemID, at most ScatterWidth
// at a time, skipping the folder in skip. Outstanding reads are cancelled
// once one finds the item.
func (s *Store) scatterGetItem(ctx context.Context, entries []inventory.SkeletonEntry, itemID, skip uuid.UUID) (*inventory.Item, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.ScatterWidth)

	var once sync.Once
	var found *inventory.Item
	for _, e := range entries {
		if e.FolderID == skip {
			continue
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			item, err := s.getItemAt(gctx, e.FolderID, itemID)
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return err
			}
			if item != nil {
				once.Do(func() {
					found = item
					cancel()
				})
			}
			return nil
		})
	}

	err := g.Wait()
	if found != nil {
		return found, nil
	}
	if err != nil {
		return nil, err
	}
	// Probes swallow errors once the context is done, so a caller's
	// cancellation has to be reported here.
	if err := ctx.Err(); err != nil {
		return nil, classify("get item", err)
	}
	return nil, nil
}

func (s *Store) getItemAt(ctx context.Context, folderID, itemID uuid.UUID) (*inventory.Item, error) {
	raw, err := s.getRow(ctx, s.config.ContentTable, keys.Content(folderID, itemID))
	if err != nil {
		return nil, classify("get item", err)
	}
	if raw == nil {
		return nil, nil
	}
	row, err := decodeContentRow(raw)
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", itemID, err)
	}
	if r, ok := row.(itemRow); ok {
		return &r.item, nil
	}
	return nil, nil
}

// PurgeItem deletes an item and bumps its folder's version. Purging an item
// that is already gone does nothing.
func (s *Store) PurgeItem(ctx context.Context, item inventory.Item) error {
	const op = "purge item"

	if item.ItemID == attributeRowID {
		return inventory.Invalid(op, item.ItemID, errReservedID)
	}

	out, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(s.config.ContentTable),
		Key:          keys.Content(item.FolderID, item.ItemID),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return classify(op, err)
	}
	if len(out.Attributes) == 0 {
		return nil
	}
	return s.track(ctx, purgeItem, item.OwnerID, targets{self: {item.FolderID}})
}

// PurgeItems deletes items in batches and bumps the version of each folder
// that held one of them, once per folder. If a batch fails, the folders of
// the items already deleted are still bumped and the failure is returned.
func (s *Store) PurgeItems(ctx context.Context, items []inventory.Item) error {
	const op = "purge items"

	type owned struct{ user, folder uuid.UUID }
	owners := make(map[uuid.UUID][]uuid.UUID)
	seenOwner := make(map[owned]bool)
	seenItem := make(map[[2]uuid.UUID]bool)
	var rowKeys []map[string]types.AttributeValue

	for _, item := range items {
		if item.ItemID == attributeRowID {
			return inventory.Invalid(op, item.ItemID, errReservedID)
		}
		k := [2]uuid.UUID{item.FolderID, item.ItemID}
		if seenItem[k] {
			continue
		}
		seenItem[k] = true
		rowKeys = append(rowKeys, keys.Content(item.FolderID, item.ItemID))

		if o := (owned{item.OwnerID, item.FolderID}); !seenOwner[o] {
			seenOwner[o] = true
			owners[item.FolderID] = append(owners[item.FolderID], item.OwnerID)
		}
	}

	deleted, err := s.batchDelete(ctx, op, s.config.ContentTable, rowKeys)

	var touched []owned
	seenTouched := make(map[uuid.UUID]bool)
	for _, k := range deleted {
		folderID, perr := keys.ParseID(k[keys.FolderID])
		if perr != nil || seenTouched[folderID] {
			continue
		}
		seenTouched[folderID] = true
		for _, user := range owners[folderID] {
			touched = append(touched, owned{user, folderID})
		}
	}

	errs := []error{err}
	for _, f := range touched {
		if terr := s.track(ctx, purgeItems, f.user, targets{self: {f.folder}}); terr != nil {
			errs = append(errs, terr)
		}
	}
	return errors.Join(errs...)
}

// batchDelete deletes rows of one table in batches of keys.MaxBatchWrite
// and returns the keys of the rows it deleted, also when it fails part way.
// Requests the store leaves unprocessed are resubmitted after a jittered
// exponential backoff, up to BatchAttempts submissions in total. A request
// that failed in transit may have been applied, so its keys count as
// deleted.
func (s *Store) batchDelete(ctx context.Context, op, table string, rowKeys []map[string]types.AttributeValue) ([]map[string]types.AttributeValue, error) {
	backoff := retry.NewExponentialJitterBackoff(s.config.BatchBackoff)

	var deleted []map[string]types.AttributeValue
	for _, chunk := range keys.Chunk(rowKeys, keys.MaxBatchWrite) {
		pending := make([]types.WriteRequest, len(chunk))
		for i, k := range chunk {
			pending[i] = types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: k}}
		}

		for attempt := 1; len(pending) > 0; attempt++ {
			if attempt > s.config.BatchAttempts {
				return deleted, fmt.Errorf("%s: %w: %d deletes unprocessed after %d attempts",
					op, ErrConsistency, len(pending), s.config.BatchAttempts)
			}
			if attempt > 1 {
				delay, _ := backoff.BackoffDelay(attempt-1, nil)
				if err := sleep(ctx, delay); err != nil {
					return deleted, classify(op, err)
				}
			}

			out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{table: pending},
			}, withoutRetries)
			if err != nil {
				err = classify(op, err)
				if errors.Is(err, ErrConnectivity) {
					deleted = append(deleted, deleteKeys(pending)...)
				}
				return deleted, err
			}

			left := out.UnprocessedItems[table]
			deleted = append(deleted, processedKeys(pending, left)...)
			pending = left
		}
	}
	return deleted, nil
}

func deleteKeys(reqs []types.WriteRequest) []map[string]types.AttributeValue {
	out := make([]map[string]types.AttributeValue, 0, len(reqs))
	for _, r := range reqs {
		if r.DeleteRequest != nil {
			out = append(out, r.DeleteRequest.Key)
		}
	}
	return out
}

// processedKeys returns the keys of the delete requests in sent that are not
// in unprocessed.
func processedKeys(sent, unprocessed []types.WriteRequest) []map[string]types.AttributeValue {
	left := make(map[string]bool, len(unprocessed))
	for _, k := range deleteKeys(unprocessed) {
		left[keys.String(k)] = true
	}
	var out []map[string]types.AttributeValue
	for _, k := range deleteKeys(sent) {
		if !left[keys.String(k)] {
			out = append(out, k)
		}
	}
	return out
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
