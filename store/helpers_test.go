package store_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/satchel/internal/dynamotest"
	"github.com/jacentio/satchel/internal/xlog"
	"github.com/jacentio/satchel/inventory"
	"github.com/jacentio/satchel/schema"
	"github.com/jacentio/satchel/store"
)

var _ store.Client = (*dynamotest.Fake)(nil)

type tester struct {
	ctx   context.Context
	fake  *dynamotest.Fake
	store *store.Store
	cfg   store.Config
	owner uuid.UUID
}

func newTester(t *testing.T, opts ...func(*store.Config)) tester {
	t.Helper()

	cfg := store.DefaultConfig()
	cfg.BatchBackoff = time.Millisecond
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := context.Background()
	fake := dynamotest.New()
	tables, err := schema.Default()
	require.NoError(t, err)
	require.NoError(t, schema.Ensure(ctx, fake, tables, cfg.Tables(), xlog.Nop()))

	return tester{
		ctx:   ctx,
		fake:  fake,
		store: store.NewWithLogger(fake, cfg, xlog.Nop()),
		cfg:   cfg,
		owner: uuid.New(),
	}
}

func (tt tester) folder(parent uuid.UUID, level inventory.FolderLevel, folderType int, name string) inventory.Folder {
	return inventory.Folder{
		FolderID:     uuid.New(),
		Name:         name,
		OwnerID:      tt.owner,
		ParentID:     parent,
		Type:         folderType,
		Level:        level,
		CreationDate: 1700000000,
	}
}

func (tt tester) createRoot(t *testing.T) inventory.Folder {
	t.Helper()
	root := tt.folder(uuid.Nil, inventory.Root, 8, "My Inventory")
	require.NoError(t, tt.store.CreateFolder(tt.ctx, root))
	return root
}

func (tt tester) createFolder(t *testing.T, parent inventory.Folder, level inventory.FolderLevel, folderType int, name string) inventory.Folder {
	t.Helper()
	f := tt.folder(parent.FolderID, level, folderType, name)
	require.NoError(t, tt.store.CreateFolder(tt.ctx, f))
	return f
}

func (tt tester) item(folder inventory.Folder, name string) inventory.Item {
	return inventory.Item{
		ItemID:              uuid.New(),
		FolderID:            folder.FolderID,
		Name:                name,
		Description:         "a " + name,
		AssetID:             uuid.New(),
		AssetType:           6,
		InventoryType:       6,
		OwnerID:             tt.owner,
		CreatorID:           uuid.New(),
		BasePermissions:     0x7fffffff,
		CurrentPermissions:  0x7fffffff,
		NextPermissions:     0x82000,
		EveryonePermissions: 0,
		GroupPermissions:    0,
		Flags:               0,
		SaleType:            0,
		CreationDate:        1700000100,
	}
}

func (tt tester) createItem(t *testing.T, folder inventory.Folder, name string) inventory.Item {
	t.Helper()
	item := tt.item(folder, name)
	require.NoError(t, tt.store.CreateItem(tt.ctx, item))
	return item
}

// version reads a folder's counter straight from the version table, so it
// also works for folders that have been purged.
func (tt tester) version(t *testing.T, folderID uuid.UUID) int64 {
	t.Helper()
	for _, row := range tt.fake.Rows(tt.cfg.VersionTable) {
		user, _ := row["user_id"].(*types.AttributeValueMemberS)
		folder, _ := row["folder_id"].(*types.AttributeValueMemberS)
		if user == nil || folder == nil || user.Value != tt.owner.String() || folder.Value != folderID.String() {
			continue
		}
		n, ok := row["version"].(*types.AttributeValueMemberN)
		require.True(t, ok, "version is not a number")
		v, err := strconv.ParseInt(n.Value, 10, 64)
		require.NoError(t, err)
		return v
	}
	return 0
}

func (tt tester) contentRows(folderID uuid.UUID) int {
	n := 0
	for _, row := range tt.fake.Rows(tt.cfg.ContentTable) {
		if f, ok := row["folder_id"].(*types.AttributeValueMemberS); ok && f.Value == folderID.String() {
			n++
		}
	}
	return n
}

// hookedClient runs one-shot hooks around calls to the fake, so a test can
// change the tables between two writes of the same store call.
type hookedClient struct {
	*dynamotest.Fake

	beforeTransact func()
	afterBatch     func()
}

func (c *hookedClient) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	if hook := c.beforeTransact; hook != nil {
		c.beforeTransact = nil
		hook()
	}
	return c.Fake.TransactWriteItems(ctx, in, optFns...)
}

func (c *hookedClient) BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	out, err := c.Fake.BatchWriteItem(ctx, in, optFns...)
	if hook := c.afterBatch; hook != nil {
		c.afterBatch = nil
		hook()
	}
	return out, err
}

// hooked returns a store over the tester's fake whose calls pass through c.
func (tt tester) hooked(c *hookedClient) *store.Store {
	c.Fake = tt.fake
	return store.NewWithLogger(c, tt.cfg, xlog.Nop())
}
