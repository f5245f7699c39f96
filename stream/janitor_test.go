package stream_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/satchel/internal/dynamotest"
	"github.com/jacentio/satchel/internal/xlog"
	"github.com/jacentio/satchel/inventory"
	"github.com/jacentio/satchel/schema"
	"github.com/jacentio/satchel/store"
	"github.com/jacentio/satchel/stream"
)

var _ stream.Sweeper = (*store.Store)(nil)

type sweep struct {
	user, folder uuid.UUID
}

type fakeSweeper struct {
	calls []sweep
	fail  map[uuid.UUID]error
}

func (f *fakeSweeper) SweepFolder(ctx context.Context, userID, folderID uuid.UUID) (int, error) {
	f.calls = append(f.calls, sweep{userID, folderID})
	if err := f.fail[folderID]; err != nil {
		return 0, err
	}
	return 1, nil
}

func removeRecord(seq string, userID, folderID uuid.UUID) events.DynamoDBEventRecord {
	return events.DynamoDBEventRecord{
		EventID:   "evt-" + seq,
		EventName: "REMOVE",
		Change: events.DynamoDBStreamRecord{
			SequenceNumber: seq,
			Keys: map[string]events.DynamoDBAttributeValue{
				"user_id":   events.NewStringAttribute(userID.String()),
				"folder_id": events.NewStringAttribute(folderID.String()),
			},
		},
	}
}

func TestNewHandler(t *testing.T) {
	// Test with nil sweeper and logger (should not panic)
	h := stream.NewHandler(nil, nil)
	if h == nil {
		t.Fatal("expected non-nil Handler")
	}
}

func TestHandleSkeletonRemove(t *testing.T) {
	user := uuid.New()
	a, b := uuid.New(), uuid.New()
	sweeper := &fakeSweeper{}
	h := stream.NewHandler(sweeper, xlog.Nop())

	resp, err := h.HandleSkeletonRemove(context.Background(), events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{
			removeRecord("1", user, a),
			{EventName: "INSERT", Change: events.DynamoDBStreamRecord{SequenceNumber: "2"}},
			{EventName: "MODIFY", Change: events.DynamoDBStreamRecord{SequenceNumber: "3"}},
			removeRecord("4", user, b),
		},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Equal(t, []sweep{{user, a}, {user, b}}, sweeper.calls)
}

func TestHandleSkeletonRemove_LogsFolderName(t *testing.T) {
	var buf bytes.Buffer
	logger, err := xlog.New(&buf, "json", "info")
	require.NoError(t, err)
	h := stream.NewHandler(&fakeSweeper{}, logger)

	record := removeRecord("1", uuid.New(), uuid.New())
	record.Change.OldImage = map[string]events.DynamoDBAttributeValue{
		"folder_name": events.NewStringAttribute("Trash"),
	}

	resp, err := h.HandleSkeletonRemove(context.Background(), events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{record},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Contains(t, buf.String(), `"folderName":"Trash"`)
}

func TestHandleSkeletonRemove_ReportsFailures(t *testing.T) {
	user := uuid.New()
	good, bad := uuid.New(), uuid.New()
	sweeper := &fakeSweeper{fail: map[uuid.UUID]error{bad: errors.New("throttled")}}
	h := stream.NewHandler(sweeper, xlog.Nop())

	malformed := removeRecord("3", user, good)
	malformed.Change.Keys["folder_id"] = events.NewStringAttribute("not-a-uuid")
	missing := removeRecord("4", user, good)
	delete(missing.Change.Keys, "user_id")

	resp, err := h.HandleSkeletonRemove(context.Background(), events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{
			removeRecord("1", user, good),
			removeRecord("2", user, bad),
			malformed,
			missing,
		},
	})
	require.NoError(t, err)

	var failed []string
	for _, f := range resp.BatchItemFailures {
		failed = append(failed, f.ItemIdentifier)
	}
	assert.Equal(t, []string{"2", "3", "4"}, failed)
	assert.Len(t, sweeper.calls, 2)
}

func TestHandleSkeletonRemove_SweepsStore(t *testing.T) {
	ctx := context.Background()
	cfg := store.DefaultConfig()
	fake := dynamotest.New()
	tables, err := schema.Default()
	require.NoError(t, err)
	require.NoError(t, schema.Ensure(ctx, fake, tables, cfg.Tables(), xlog.Nop()))
	s := store.NewWithLogger(fake, cfg, xlog.Nop())

	owner := uuid.New()
	root := inventory.Folder{FolderID: uuid.New(), OwnerID: owner, Name: "Root", Level: inventory.Root}
	require.NoError(t, s.CreateFolder(ctx, root))

	// An item that landed in a folder after its skeleton row was removed.
	gone := uuid.New()
	require.NoError(t, fake.Seed(cfg.ContentTable, map[string]types.AttributeValue{
		"folder_id": &types.AttributeValueMemberS{Value: gone.String()},
		"item_id":   &types.AttributeValueMemberS{Value: uuid.NewString()},
		"name":      &types.AttributeValueMemberS{Value: "late"},
	}))

	h := stream.NewHandler(s, xlog.Nop())
	resp, err := h.HandleSkeletonRemove(ctx, events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{
			removeRecord("1", owner, gone),
			removeRecord("2", owner, root.FolderID),
		},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)

	folder, err := s.GetFolder(ctx, gone)
	require.NoError(t, err)
	assert.Nil(t, folder)

	folder, err = s.GetFolder(ctx, root.FolderID)
	require.NoError(t, err)
	assert.NotNil(t, folder, "folders still in the skeleton are left alone")
}

func TestConvertStreamKey(t *testing.T) {
	streamKey := map[string]events.DynamoDBAttributeValue{
		"user_id":   events.NewStringAttribute("u"),
		"folder_id": events.NewStringAttribute("f"),
		"version":   events.NewNumberAttribute("42"),
		"blob":      events.NewBinaryAttribute([]byte{1, 2}),
	}

	key := stream.ConvertStreamKey(streamKey)
	require.Len(t, key, 4)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "u"}, key["user_id"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "f"}, key["folder_id"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "42"}, key["version"])
	assert.Equal(t, &types.AttributeValueMemberB{Value: []byte{1, 2}}, key["blob"])
}

func TestConvertStreamKey_Empty(t *testing.T) {
	key := stream.ConvertStreamKey(nil)
	if key == nil {
		t.Fatal("expected non-nil key for nil input")
	}
	if len(key) != 0 {
		t.Errorf("expected empty key, got %d attributes", len(key))
	}
}
