package store

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

var (
	// ErrConnectivity is returned when the store could not be reached or a
	// request timed out in transport.
	ErrConnectivity = errors.New("inventory: store unreachable")

	// ErrConsistency is returned when the store refused to complete a
	// request consistently: conflicting transactions, throttling, or an
	// internal failure on the replica set.
	ErrConsistency = errors.New("inventory: store could not complete request consistently")
)

// consistencyCodes are API error and cancellation reason codes that mean the
// request reached the store but could not be applied consistently.
var consistencyCodes = map[string]bool{
	"TransactionConflict":                    true,
	"TransactionConflictException":           true,
	"TransactionInProgressException":         true,
	"InternalServerError":                    true,
	"ProvisionedThroughputExceeded":          true,
	"ProvisionedThroughputExceededException": true,
	"RequestLimitExceeded":                   true,
	"ThrottlingError":                        true,
	"ThrottlingException":                    true,
}

// classify wraps err with the operation name and, where recognised, with
// ErrConnectivity or ErrConsistency.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var sendErr *smithyhttp.RequestSendError
	var netErr net.Error
	if errors.As(err, &sendErr) || errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrConnectivity, err)
	}

	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for _, reason := range txErr.CancellationReasons {
			if reason.Code != nil && consistencyCodes[*reason.Code] {
				return fmt.Errorf("%s: %w: %w", op, ErrConsistency, err)
			}
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && consistencyCodes[apiErr.ErrorCode()] {
		return fmt.Errorf("%s: %w: %w", op, ErrConsistency, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

// isConditionFailed reports whether err is a failed condition expression on
// a single-item write.
func isConditionFailed(err error) bool {
	var condErr *types.ConditionalCheckFailedException
	return errors.As(err, &condErr)
}
