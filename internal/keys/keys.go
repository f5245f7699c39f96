// Package keys builds primary keys for the inventory tables and splits
// write sets into batches the store accepts.
package keys

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// Key attribute names shared by the inventory tables.
const (
	UserID   = "user_id"
	FolderID = "folder_id"
	ItemID   = "item_id"
)

// MaxBatchWrite is the largest number of requests BatchWriteItem accepts.
const MaxBatchWrite = 25

// ID encodes an identifier as a key attribute.
func ID(id uuid.UUID) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: id.String()}
}

// ParseID decodes an identifier written by ID.
func ParseID(av types.AttributeValue) (uuid.UUID, error) {
	s, ok := av.(*types.AttributeValueMemberS)
	if !ok {
		return uuid.Nil, fmt.Errorf("identifier attribute has type %T", av)
	}
	return uuid.Parse(s.Value)
}

// Skeleton returns the key of a folder's row in a user's skeleton partition.
func Skeleton(userID, folderID uuid.UUID) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		UserID:   ID(userID),
		FolderID: ID(folderID),
	}
}

// Version returns the key of a folder's change counter.
func Version(userID, folderID uuid.UUID) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		UserID:   ID(userID),
		FolderID: ID(folderID),
	}
}

// Content returns the key of a row in a folder's content partition.
func Content(folderID, itemID uuid.UUID) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		FolderID: ID(folderID),
		ItemID:   ID(itemID),
	}
}

// String renders a key as a string that is equal for equal keys.
func String(key map[string]types.AttributeValue) string {
	names := make([]string, 0, len(key))
	for name := range key {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte(0)
		}
		b.WriteString(name)
		b.WriteByte('=')
		switch v := key[name].(type) {
		case *types.AttributeValueMemberS:
			b.WriteString(v.Value)
		case *types.AttributeValueMemberN:
			b.WriteString(v.Value)
		case *types.AttributeValueMemberB:
			fmt.Fprintf(&b, "%x", v.Value)
		}
	}
	return b.String()
}

// Chunk splits xs into consecutive groups of at most size elements.
// With size < 1 every element is its own group.
func Chunk[T any](xs []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	var out [][]T
	for len(xs) > size {
		out = append(out, xs[:size:size])
		xs = xs[size:]
	}
	if len(xs) > 0 {
		out = append(out, xs)
	}
	return out
}
