package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/satchel/internal/keys"
)

// mutation is a write operation that may bump folder versions.
type mutation int

const (
	createFolder mutation = iota
	saveFolder
	moveFolder
	createItem
	saveItem
	purgeItem
	moveItem
	purgeItems
	purgeFolderContents
	purgeFolder
)

var mutationNames = map[mutation]string{
	createFolder:        "create folder",
	saveFolder:          "save folder",
	moveFolder:          "move folder",
	createItem:          "create item",
	saveItem:            "save item",
	purgeItem:           "purge item",
	moveItem:            "move item",
	purgeItems:          "purge items",
	purgeFolderContents: "purge folder contents",
	purgeFolder:         "purge folder",
}

func (m mutation) String() string {
	if name, ok := mutationNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mutation(%d)", int(m))
}

// role names a folder a mutation touched.
type role int

const (
	self role = iota
	oldParent
	newParent
	source
	destination
	removed
)

// targets lists the folders a mutation touched, by role.
type targets map[role][]uuid.UUID

// incrementPolicy lists, per mutation, the roles whose versions are bumped.
// A parent of a removed folder is never bumped: removal shows up as the
// folder's absence from the skeleton.
var incrementPolicy = map[mutation][]role{
	createFolder:        {self},
	saveFolder:          {self},
	moveFolder:          {self, oldParent, newParent},
	createItem:          {self},
	saveItem:            {self},
	purgeItem:           {self},
	moveItem:            {source, destination},
	purgeItems:          {self},
	purgeFolderContents: {self, removed},
	purgeFolder:         {removed},
}

// track bumps the version of every folder m touched according to
// incrementPolicy. Each folder is bumped at most once. Failures are logged
// and joined; the write they follow has already been applied.
func (s *Store) track(ctx context.Context, m mutation, userID uuid.UUID, t targets) error {
	seen := make(map[uuid.UUID]bool)
	var errs []error
	for _, r := range incrementPolicy[m] {
		for _, folderID := range t[r] {
			if folderID == uuid.Nil || seen[folderID] {
				continue
			}
			seen[folderID] = true
			if err := s.increment(ctx, userID, folderID); err != nil {
				s.logger.Warn("folder version not incremented",
					"mutation", m.String(),
					"userID", userID,
					"folderID", folderID,
					"error", err)
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// increment adds one to a folder's version. The call is never retried: a
// retry after a lost response would count the change twice.
func (s *Store) increment(ctx context.Context, userID, folderID uuid.UUID) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(s.config.VersionTable),
		Key:                      keys.Version(userID, folderID),
		UpdateExpression:         aws.String("ADD #version :one"),
		ExpressionAttributeNames: map[string]string{"#version": "version"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
	}, withoutRetries)
	return classify(fmt.Sprintf("increment version of %s", folderID), err)
}

// readVersions returns the versions of every folder of a user that has one.
func (s *Store) readVersions(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]int64, error) {
	rows, err := s.queryPartition(ctx, s.config.VersionTable, keys.UserID, keys.ID(userID))
	if err != nil {
		return nil, classify("read versions", err)
	}

	versions := make(map[uuid.UUID]int64, len(rows))
	for _, raw := range rows {
		folderID, version, err := decodeVersionRow(raw)
		if err != nil {
			return nil, fmt.Errorf("read versions of %s: %w", userID, err)
		}
		versions[folderID] = version
	}
	return versions, nil
}

// readVersion returns a folder's version. A folder that was never bumped is
// at version 0.
func (s *Store) readVersion(ctx context.Context, userID, folderID uuid.UUID) (int64, error) {
	raw, err := s.getRow(ctx, s.config.VersionTable, keys.Version(userID, folderID))
	if err != nil {
		return 0, classify("read version", err)
	}
	if raw == nil {
		return 0, nil
	}
	_, version, err := decodeVersionRow(raw)
	if err != nil {
		return 0, fmt.Errorf("read version of %s: %w", folderID, err)
	}
	return version, nil
}

func decodeVersionRow(raw map[string]types.AttributeValue) (uuid.UUID, int64, error) {
	var row versionRow
	if err := attributevalue.UnmarshalMap(raw, &row); err != nil {
		return uuid.Nil, 0, fmt.Errorf("unmarshal version row: %w", err)
	}
	folderID, err := uuid.Parse(row.FolderID)
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("folder_id: %w", err)
	}
	return folderID, row.Version, nil
}
