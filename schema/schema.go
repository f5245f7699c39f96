// Package schema provisions the DynamoDB tables the inventory store uses.
package schema

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"gopkg.in/yaml.v3"
)

//go:embed schema.yaml
var defaultSchema []byte

// API is the subset of the DynamoDB API needed to provision tables.
type API interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Attribute is a key attribute of a table.
type Attribute struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Table defines one table by its logical name.
type Table struct {
	Name     string     `yaml:"name"`
	HashKey  Attribute  `yaml:"hash_key"`
	RangeKey *Attribute `yaml:"range_key,omitempty"`

	// Stream is the stream view type to enable, or empty for no stream.
	Stream string `yaml:"stream,omitempty"`
}

// WaitTimeout bounds how long Ensure waits for a new table to become active.
var WaitTimeout = 2 * time.Minute

// Default returns the table definitions shipped with the package.
func Default() ([]Table, error) {
	return Parse(defaultSchema)
}

// Parse reads table definitions from a YAML stream with one document per
// table.
func Parse(data []byte) ([]Table, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var tables []Table
	for {
		var t Table
		err := dec.Decode(&t)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse schema document %d: %w", len(tables)+1, err)
		}
		if err := t.validate(); err != nil {
			return nil, fmt.Errorf("schema document %d: %w", len(tables)+1, err)
		}
		tables = append(tables, t)
	}
	if len(tables) == 0 {
		return nil, errors.New("schema defines no tables")
	}
	return tables, nil
}

func (t Table) validate() error {
	if t.Name == "" {
		return errors.New("table has no name")
	}
	if t.HashKey.Name == "" {
		return fmt.Errorf("table %s has no hash key", t.Name)
	}
	for _, a := range t.keys() {
		switch types.ScalarAttributeType(a.Type) {
		case types.ScalarAttributeTypeS, types.ScalarAttributeTypeN, types.ScalarAttributeTypeB:
		default:
			return fmt.Errorf("table %s: key %s has unknown type %q", t.Name, a.Name, a.Type)
		}
	}
	if t.Stream != "" {
		known := false
		for _, v := range types.StreamViewType("").Values() {
			if string(v) == t.Stream {
				known = true
			}
		}
		if !known {
			return fmt.Errorf("table %s: unknown stream view type %q", t.Name, t.Stream)
		}
	}
	return nil
}

func (t Table) keys() []Attribute {
	if t.RangeKey == nil {
		return []Attribute{t.HashKey}
	}
	return []Attribute{t.HashKey, *t.RangeKey}
}

// CreateTableInput builds the request creating t under the physical name.
func (t Table) CreateTableInput(physical string) *dynamodb.CreateTableInput {
	in := &dynamodb.CreateTableInput{
		TableName:   aws.String(physical),
		BillingMode: types.BillingModePayPerRequest,
	}
	for i, a := range t.keys() {
		keyType := types.KeyTypeHash
		if i == 1 {
			keyType = types.KeyTypeRange
		}
		in.KeySchema = append(in.KeySchema, types.KeySchemaElement{
			AttributeName: aws.String(a.Name),
			KeyType:       keyType,
		})
		in.AttributeDefinitions = append(in.AttributeDefinitions, types.AttributeDefinition{
			AttributeName: aws.String(a.Name),
			AttributeType: types.ScalarAttributeType(a.Type),
		})
	}
	if t.Stream != "" {
		in.StreamSpecification = &types.StreamSpecification{
			StreamEnabled:  aws.Bool(true),
			StreamViewType: types.StreamViewType(t.Stream),
		}
	}
	return in
}

// Ensure creates every table in tables that does not exist yet and waits for
// it to become active. names maps logical table names to physical ones.
// Tables that already exist are left as they are, so Ensure can be run
// repeatedly.
func Ensure(ctx context.Context, client API, tables []Table, names map[string]string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	for _, t := range tables {
		physical, ok := names[t.Name]
		if !ok || physical == "" {
			return fmt.Errorf("no table name configured for %s", t.Name)
		}

		_, err := client.CreateTable(ctx, t.CreateTableInput(physical))
		var inUse *types.ResourceInUseException
		switch {
		case errors.As(err, &inUse):
			logger.Debug("table exists", "table", physical)
			continue
		case err != nil:
			return fmt.Errorf("create table %s: %w", physical, err)
		}

		waiter := dynamodb.NewTableExistsWaiter(client)
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(physical),
		}, WaitTimeout); err != nil {
			return fmt.Errorf("wait for table %s: %w", physical, err)
		}
		logger.Info("table created", "table", physical, "schema", t.Name)
	}
	return nil
}
