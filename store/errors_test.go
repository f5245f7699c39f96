package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/jacentio/satchel/internal/xlog"
	"github.com/jacentio/satchel/inventory"
	"github.com/jacentio/satchel/store"
)

var errThrottled = &smithy.GenericAPIError{Code: "ThrottlingException", Message: "Rate exceeded"}

func newMockStore(t *testing.T) (*store.Store, *MockClient) {
	t.Helper()
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	return store.NewWithLogger(client, store.DefaultConfig(), xlog.Nop()), client
}

func retryMaxAttempts(optFns []func(*dynamodb.Options)) int {
	opts := dynamodb.Options{RetryMaxAttempts: 3}
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts.RetryMaxAttempts
}

func testItem() inventory.Item {
	return inventory.Item{
		ItemID:   uuid.New(),
		FolderID: uuid.New(),
		OwnerID:  uuid.New(),
		Name:     "Chair",
	}
}

func TestStore_ConnectivityErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "send failure", err: &smithyhttp.RequestSendError{Err: errors.New("dial tcp 127.0.0.1:8000: connect: connection refused")}},
		{name: "deadline", err: context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, client := newMockStore(t)
			client.EXPECT().
				GetItem(gomock.Any(), gomock.Any()).
				Return(nil, tt.err)

			folder, err := s.GetFolderAttributes(context.Background(), uuid.New())
			require.ErrorIs(t, err, store.ErrConnectivity)
			assert.Nil(t, folder)
			assert.False(t, inventory.IsStructural(err))
		})
	}
}

func TestStore_TransactionConflict(t *testing.T) {
	s, client := newMockStore(t)

	client.EXPECT().
		TransactWriteItems(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
			assert.Len(t, in.TransactItems, 2)
			assert.Equal(t, 1, retryMaxAttempts(optFns))
			return nil, &types.TransactionCanceledException{
				Message: aws.String("Transaction cancelled"),
				CancellationReasons: []types.CancellationReason{
					{Code: aws.String("None")},
					{Code: aws.String("TransactionConflict")},
				},
			}
		})

	// No version increment is expected: the mock fails the test on any
	// UpdateItem call.
	err := s.CreateItem(context.Background(), testItem())
	require.ErrorIs(t, err, store.ErrConsistency)
	assert.False(t, inventory.IsStructural(err))
}

func TestStore_ThrottledSave(t *testing.T) {
	s, client := newMockStore(t)

	client.EXPECT().
		UpdateItem(gomock.Any(), gomock.Any()).
		Return(nil, errThrottled)

	err := s.SaveItem(context.Background(), testItem())
	require.ErrorIs(t, err, store.ErrConsistency)

	var apiErr smithy.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "ThrottlingException", apiErr.ErrorCode())
}

func TestStore_IncrementFailsOnce(t *testing.T) {
	s, client := newMockStore(t)
	item := testItem()

	gomock.InOrder(
		client.EXPECT().
			TransactWriteItems(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(&dynamodb.TransactWriteItemsOutput{}, nil),
		client.EXPECT().
			UpdateItem(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
				assert.Equal(t, "ADD #version :one", aws.ToString(in.UpdateExpression))
				assert.Equal(t, store.DefaultConfig().VersionTable, aws.ToString(in.TableName))
				assert.Equal(t, 1, retryMaxAttempts(optFns))
				return nil, &smithyhttp.RequestSendError{Err: errors.New("connection reset")}
			}).
			Times(1),
	)

	err := s.CreateItem(context.Background(), item)
	require.ErrorIs(t, err, store.ErrConnectivity)
	assert.Contains(t, err.Error(), item.FolderID.String())
}

func TestStore_ConditionFailureNamesCause(t *testing.T) {
	s, client := newMockStore(t)

	client.EXPECT().
		TransactWriteItems(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, &types.TransactionCanceledException{
			CancellationReasons: []types.CancellationReason{
				{Code: aws.String("ConditionalCheckFailed")},
				{Code: aws.String("None")},
			},
		})

	item := testItem()
	err := s.CreateItem(context.Background(), item)
	require.ErrorIs(t, err, inventory.ErrFolderNotFound)

	var se *inventory.StructureError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "create item", se.Op)
	assert.Equal(t, item.ItemID, se.ID)
}
