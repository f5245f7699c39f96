// Package stream provides DynamoDB Streams handlers that keep the inventory
// tables tidy after concurrent writes.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/satchel/internal/keys"
)

// Sweeper removes the content rows of folders that are no longer in their
// owner's skeleton. *store.Store implements it.
type Sweeper interface {
	SweepFolder(ctx context.Context, userID, folderID uuid.UUID) (int, error)
}

// Handler processes skeleton table stream events.
type Handler struct {
	sweeper Sweeper
	logger  *slog.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(s Sweeper, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sweeper: s,
		logger:  logger,
	}
}

// HandleSkeletonRemove sweeps the content partition of every folder whose
// skeleton row was deleted. An item written into a folder while it was being
// purged would otherwise stay behind.
//
// Records that fail are reported in the response so the Lambda runtime
// retries only those; the handler itself never returns an error.
func (h *Handler) HandleSkeletonRemove(ctx context.Context, event events.DynamoDBEvent) (events.DynamoDBEventResponse, error) {
	var resp events.DynamoDBEventResponse
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"sequenceNumber", record.Change.SequenceNumber,
				"error", err,
			)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.DynamoDBBatchItemFailure{
				ItemIdentifier: record.Change.SequenceNumber,
			})
		}
	}
	return resp, nil
}

// processRecord processes a single DynamoDB stream record.
func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	if record.EventName != string(events.DynamoDBOperationTypeRemove) {
		return nil
	}

	key := ConvertStreamKey(record.Change.Keys)
	userID, err := keyID(key, keys.UserID)
	if err != nil {
		return err
	}
	folderID, err := keyID(key, keys.FolderID)
	if err != nil {
		return err
	}

	n, err := h.sweeper.SweepFolder(ctx, userID, folderID)
	if err != nil {
		return fmt.Errorf("sweep folder %s: %w", folderID, err)
	}

	h.logger.Info("folder swept",
		"userID", userID,
		"folderID", folderID,
		"folderName", getStringAttr(record.Change.OldImage, "folder_name"),
		"rowsDeleted", n,
	)
	return nil
}

var errMissingKey = errors.New("stream record key is incomplete")

func keyID(key map[string]types.AttributeValue, name string) (uuid.UUID, error) {
	av, ok := key[name]
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: no %s", errMissingKey, name)
	}
	id, err := keys.ParseID(av)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", name, err)
	}
	return id, nil
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// ConvertStreamKey converts a DynamoDB stream key to SDK attribute values.
func ConvertStreamKey(streamKey map[string]events.DynamoDBAttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue)
	for k, v := range streamKey {
		switch v.DataType() {
		case events.DataTypeString:
			result[k] = &types.AttributeValueMemberS{Value: v.String()}
		case events.DataTypeNumber:
			result[k] = &types.AttributeValueMemberN{Value: v.Number()}
		case events.DataTypeBinary:
			result[k] = &types.AttributeValueMemberB{Value: v.Binary()}
		}
	}
	return result
}
