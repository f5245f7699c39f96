package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

//go:generate mockgen -source=client.go -destination=mock_client_test.go -package=store_test

// Client is the subset of the DynamoDB API the Store uses.
// *dynamodb.Client satisfies it.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

var _ Client = (*dynamodb.Client)(nil)

// withoutRetries disables SDK retries for a single call. Used for writes
// that must not be applied twice, such as version increments.
func withoutRetries(o *dynamodb.Options) {
	o.RetryMaxAttempts = 1
}

// Endpoint selects the DynamoDB endpoint a client talks to.
type Endpoint struct {
	// Region overrides the region from the shared AWS configuration.
	Region string

	// Profile selects a shared configuration profile.
	Profile string

	// URL overrides the service endpoint, e.g. DynamoDB Local.
	URL string
}

// NewClient builds a DynamoDB client from the default AWS configuration
// chain. The client is safe for concurrent use and should be shared.
func NewClient(ctx context.Context, ep Endpoint) (*dynamodb.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if ep.Region != "" {
		opts = append(opts, awsconfig.WithRegion(ep.Region))
	}
	if ep.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(ep.Profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if ep.URL != "" {
			o.BaseEndpoint = aws.String(ep.URL)
		}
	}), nil
}
