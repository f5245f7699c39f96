package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/satchel/internal/keys"
	"github.com/jacentio/satchel/inventory"
)

// maxLineage bounds the ancestors checked when removing a descendant folder:
// a transaction holds at most 100 writes and one is the attribute row.
const maxLineage = 99

// errLeftSubtree marks a descendant that is no longer below the folder
// being purged.
var errLeftSubtree = errors.New("folder left the purged subtree")

// PurgeFolderContents removes every descendant folder of folder, with their
// items, and every item directly in folder. The folder itself and its
// attributes remain. The versions of folder and of each removed descendant
// are bumped, also when the purge fails after removing some of them.
//
// Nothing is written if the owner's skeleton has no such folder.
func (s *Store) PurgeFolderContents(ctx context.Context, folder inventory.Folder) error {
	const op = "purge folder contents"

	if err := validatePurgeTarget(op, folder); err != nil {
		return err
	}

	run := s.newPurgeRun(op)
	byParent, err := run.childIndex(ctx, folder.OwnerID)
	if err != nil {
		return err
	}
	if !run.inSkeleton(folder.OwnerID, folder.FolderID) {
		return nil
	}

	cleared, err := run.empty(ctx, folder, byParent)
	removed := run.removed[folder.OwnerID]
	if err != nil && cleared == 0 && len(removed) == 0 {
		return err
	}

	return errors.Join(err, s.track(ctx, purgeFolderContents, folder.OwnerID, targets{
		self:    {folder.FolderID},
		removed: removed,
	}))
}

// PurgeFolder removes a folder, everything below it, and its own skeleton
// entry and attributes. The versions of removed folders are bumped; the
// parent's is not.
func (s *Store) PurgeFolder(ctx context.Context, folder inventory.Folder) error {
	return s.PurgeFolders(ctx, []inventory.Folder{folder})
}

// PurgeFolders removes several folders as PurgeFolder does. Folders listed
// more than once, or listed alongside one of their ancestors, are removed
// once. Folders that a concurrent purge already removed are skipped over
// rather than reported. A descendant moved out from under a listed folder
// after the skeleton was read is left where it now is.
//
// If the purge fails part way, the folders removed until then are still
// bumped.
func (s *Store) PurgeFolders(ctx context.Context, folders []inventory.Folder) error {
	const op = "purge folder"

	run := s.newPurgeRun(op)
	var batch []inventory.Folder
	listed := make(map[uuid.UUID]bool)
	for _, f := range folders {
		if err := validatePurgeTarget(op, f); err != nil {
			return err
		}
		if listed[f.FolderID] {
			continue
		}
		listed[f.FolderID] = true
		batch = append(batch, f)
	}

	var roots []inventory.Folder
	for _, f := range batch {
		byParent, err := run.childIndex(ctx, f.OwnerID)
		if err != nil {
			return err
		}
		covered := false
		for _, other := range batch {
			if other.FolderID != f.FolderID && other.OwnerID == f.OwnerID &&
				inventory.IsDescendant(byParent, other.FolderID, f.FolderID) {
				covered = true
				break
			}
		}
		if !covered {
			roots = append(roots, f)
		}
	}

	errs := []error{run.removeTrees(ctx, roots)}
	for _, owner := range run.owners {
		if err := s.track(ctx, purgeFolder, owner, targets{removed: run.removed[owner]}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SweepFolder deletes every content row left in the partition of a folder
// the user's skeleton no longer has. Such rows appear when an item write
// races a purge. It returns the number of rows deleted; a folder that is
// still in the skeleton is left alone.
func (s *Store) SweepFolder(ctx context.Context, userID, folderID uuid.UUID) (int, error) {
	const op = "sweep folder"

	entry, err := s.readSkeletonEntry(ctx, userID, folderID)
	if err != nil {
		return 0, err
	}
	if entry != nil {
		return 0, nil
	}

	n, err := s.clearPartition(ctx, op, folderID, false)
	if n > 0 {
		s.logger.Info("swept orphaned folder rows",
			"userID", userID,
			"folderID", folderID,
			"rows", n)
	}
	return n, err
}

func validatePurgeTarget(op string, folder inventory.Folder) error {
	if folder.FolderID == uuid.Nil || folder.OwnerID == uuid.Nil {
		return inventory.Invalid(op, folder.FolderID, errors.New("folder_id and owner_id are required"))
	}
	return nil
}

// purgeRun carries state across the folders of one purge call.
type purgeRun struct {
	s  *Store
	op string

	// skeletons caches each owner's skeleton entries, read once per run.
	skeletons map[uuid.UUID][]inventory.SkeletonEntry
	entries   map[uuid.UUID]inventory.SkeletonEntry

	owners  []uuid.UUID
	removed map[uuid.UUID][]uuid.UUID
	done    map[uuid.UUID]bool
}

func (s *Store) newPurgeRun(op string) *purgeRun {
	return &purgeRun{
		s:         s,
		op:        op,
		skeletons: make(map[uuid.UUID][]inventory.SkeletonEntry),
		entries:   make(map[uuid.UUID]inventory.SkeletonEntry),
		removed:   make(map[uuid.UUID][]uuid.UUID),
		done:      make(map[uuid.UUID]bool),
	}
}

func (r *purgeRun) childIndex(ctx context.Context, ownerID uuid.UUID) (map[uuid.UUID][]inventory.SkeletonEntry, error) {
	entries, ok := r.skeletons[ownerID]
	if !ok {
		var err error
		entries, err = r.s.readSkeleton(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		r.skeletons[ownerID] = entries
		for _, e := range entries {
			r.entries[e.FolderID] = e
		}
	}
	return inventory.ChildIndex(entries), nil
}

func (r *purgeRun) inSkeleton(ownerID, folderID uuid.UUID) bool {
	e, ok := r.entries[folderID]
	return ok && e.UserID == ownerID
}

// empty removes the descendants of folder and then its items, keeping its
// attribute row. It returns how many of folder's own rows it deleted.
func (r *purgeRun) empty(ctx context.Context, folder inventory.Folder, byParent map[uuid.UUID][]inventory.SkeletonEntry) (int, error) {
	for _, d := range inventory.Descendants(byParent, folder.FolderID) {
		if err := r.remove(ctx, folder.OwnerID, d.FolderID, folder.FolderID); err != nil {
			return 0, err
		}
	}
	return r.s.clearPartition(ctx, r.op, folder.FolderID, true)
}

// removeTrees removes each folder in roots with all of its descendants,
// deepest first.
func (r *purgeRun) removeTrees(ctx context.Context, roots []inventory.Folder) error {
	for _, f := range roots {
		byParent, err := r.childIndex(ctx, f.OwnerID)
		if err != nil {
			return err
		}
		for _, d := range inventory.Descendants(byParent, f.FolderID) {
			if err := r.remove(ctx, f.OwnerID, d.FolderID, f.FolderID); err != nil {
				return err
			}
		}
		if err := r.remove(ctx, f.OwnerID, f.FolderID, uuid.Nil); err != nil {
			return err
		}
	}
	return nil
}

// lineage returns the skeleton entries from folderID up to, but excluding,
// the ancestor under.
func (r *purgeRun) lineage(folderID, under uuid.UUID) []inventory.SkeletonEntry {
	var chain []inventory.SkeletonEntry
	for id := folderID; id != under && len(chain) < maxLineage; {
		e, ok := r.entries[id]
		if !ok {
			break
		}
		chain = append(chain, e)
		id = e.ParentID
	}
	return chain
}

// parentIs builds the condition that e still sits under its parent.
func parentIs(e inventory.SkeletonEntry) (*string, map[string]string, map[string]types.AttributeValue) {
	return aws.String("#parent_id = :parent_id"),
		map[string]string{"#parent_id": "parent_id"},
		map[string]types.AttributeValue{":parent_id": keys.ID(e.ParentID)}
}

// remove deletes a folder's skeleton entry and attribute row, then its
// items. Deleting the attribute row first stops new items from being
// written into the partition. Only folders present in the owner's skeleton
// when the run read it count as removed.
//
// A folder found below the purge target under is removed only while its
// skeleton lineage up to under is unchanged. A folder that has since been
// moved elsewhere, or whose lineage another purge already removed, is
// skipped.
func (r *purgeRun) remove(ctx context.Context, ownerID, folderID, under uuid.UUID) error {
	if r.done[folderID] {
		return nil
	}
	r.done[folderID] = true

	skeleton := &types.Delete{
		TableName: aws.String(r.s.config.SkeletonTable),
		Key:       keys.Skeleton(ownerID, folderID),
	}
	tx := []txItem{{
		write:             types.TransactWriteItem{Delete: skeleton},
		onConditionFailed: errLeftSubtree,
	}}
	if under != uuid.Nil {
		chain := r.lineage(folderID, under)
		if len(chain) > 0 {
			skeleton.ConditionExpression, skeleton.ExpressionAttributeNames, skeleton.ExpressionAttributeValues = parentIs(chain[0])
		}
		for _, a := range chain[min(1, len(chain)):] {
			check := &types.ConditionCheck{
				TableName: aws.String(r.s.config.SkeletonTable),
				Key:       keys.Skeleton(ownerID, a.FolderID),
			}
			check.ConditionExpression, check.ExpressionAttributeNames, check.ExpressionAttributeValues = parentIs(a)
			tx = append(tx, txItem{
				write:             types.TransactWriteItem{ConditionCheck: check},
				onConditionFailed: errLeftSubtree,
			})
		}
	}
	tx = append(tx, txItem{write: types.TransactWriteItem{Delete: &types.Delete{
		TableName: aws.String(r.s.config.ContentTable),
		Key:       keys.Content(folderID, attributeRowID),
	}}})

	if err := r.s.transact(ctx, r.op, folderID, tx); err != nil {
		if errors.Is(err, errLeftSubtree) {
			r.s.logger.Info("skipped folder moved during purge",
				"userID", ownerID,
				"folderID", folderID,
				"purgedFolderID", under)
			return nil
		}
		return err
	}

	if r.inSkeleton(ownerID, folderID) {
		if _, ok := r.removed[ownerID]; !ok {
			r.owners = append(r.owners, ownerID)
		}
		r.removed[ownerID] = append(r.removed[ownerID], folderID)
	}

	_, err := r.s.clearPartition(ctx, r.op, folderID, false)
	return err
}

// clearPartition deletes the rows of a folder's content partition and
// returns how many it deleted, also when it fails part way. With
// keepAttributes the attribute row is left in place.
func (s *Store) clearPartition(ctx context.Context, op string, folderID uuid.UUID, keepAttributes bool) (int, error) {
	rows, err := s.queryPartition(ctx, s.config.ContentTable, keys.FolderID, keys.ID(folderID))
	if err != nil {
		return 0, classify(op, err)
	}

	var rowKeys []map[string]types.AttributeValue
	for _, raw := range rows {
		itemID, err := contentKey(raw)
		if err != nil {
			return 0, fmt.Errorf("%s %s: %w", op, folderID, err)
		}
		if keepAttributes && itemID == attributeRowID {
			continue
		}
		rowKeys = append(rowKeys, keys.Content(folderID, itemID))
	}

	deleted, err := s.batchDelete(ctx, op, s.config.ContentTable, rowKeys)
	return len(deleted), err
}
