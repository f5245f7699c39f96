// Package dynamotest provides an in-memory stand-in for the subset of the
// DynamoDB API used by the inventory store and schema provisioner.
//
// The fake understands the expression shapes those packages emit: key
// conditions of the form "#pk = :pk [AND #sk = :sk]", conditions
// attribute_exists(#a) and attribute_not_exists(#a), and update expressions
// "SET #a = :a, ..." and "ADD #a :n". Anything else is rejected with a
// validation error so an unsupported expression fails loudly in tests.
package dynamotest

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

type item = map[string]types.AttributeValue

type table struct {
	name     string
	hashKey  string
	rangeKey string
	rows     map[string]item
}

// Fake is an in-memory DynamoDB. It is safe for concurrent use.
type Fake struct {
	mu sync.Mutex

	tables      map[string]*table
	calls       map[string]int
	failures    map[string][]error
	retries     map[string]int
	unprocessed int

	// PageSize caps the number of rows a Query page returns. Zero means
	// every matching row is returned in one page.
	PageSize int
}

// New returns an empty Fake with no tables.
func New() *Fake {
	return &Fake{
		tables:   make(map[string]*table),
		calls:    make(map[string]int),
		failures: make(map[string][]error),
		retries:  make(map[string]int),
	}
}

// FailNext makes the next call of the named operation, e.g. "UpdateItem",
// return err without touching any data. Calls queue up in order.
func (f *Fake) FailNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], err)
}

// FailAfter lets the next n calls of the named operation through and makes
// the one after them return err.
func (f *Fake) FailAfter(op string, n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for range n {
		f.failures[op] = append(f.failures[op], nil)
	}
	f.failures[op] = append(f.failures[op], err)
}

// LeaveUnprocessed makes the next n BatchWriteItem calls report their last
// request as unprocessed instead of applying it.
func (f *Fake) LeaveUnprocessed(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unprocessed = n
}

// Calls returns how many times the named operation has been called.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// RetryMaxAttempts returns the RetryMaxAttempts the most recent call of op
// ran with, after its per-call options were applied to the SDK default.
func (f *Fake) RetryMaxAttempts(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retries[op]
}

// Rows returns a copy of every row in a table, ordered by key.
func (f *Fake) Rows(tableName string) []map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tables[tableName]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]map[string]types.AttributeValue, len(ids))
	for i, id := range ids {
		out[i] = clone(t.rows[id])
	}
	return out
}

// Seed writes a row directly, bypassing conditions and failure injection.
func (f *Fake) Seed(tableName string, row map[string]types.AttributeValue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(tableName)
	if err != nil {
		return err
	}
	id, err := t.id(row)
	if err != nil {
		return err
	}
	t.rows[id] = clone(row)
	return nil
}

// begin counts a call, records its retry setting, and returns any failure
// queued for it. The caller must hold f.mu.
func (f *Fake) begin(op string, optFns []func(*dynamodb.Options)) error {
	f.calls[op]++
	opts := dynamodb.Options{RetryMaxAttempts: 3}
	for _, fn := range optFns {
		fn(&opts)
	}
	f.retries[op] = opts.RetryMaxAttempts

	if queued := f.failures[op]; len(queued) > 0 {
		f.failures[op] = queued[1:]
		return queued[0]
	}
	return nil
}

func (f *Fake) table(name string) (*table, error) {
	t, ok := f.tables[name]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("Requested resource not found: Table: " + name + " not found")}
	}
	return t, nil
}

// CreateTable creates a table from its key schema. Other settings are
// accepted and ignored.
func (f *Fake) CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("CreateTable", optFns); err != nil {
		return nil, err
	}

	name := aws.ToString(in.TableName)
	if _, ok := f.tables[name]; ok {
		return nil, &types.ResourceInUseException{Message: aws.String("Table already exists: " + name)}
	}
	t := &table{name: name, rows: make(map[string]item)}
	for _, k := range in.KeySchema {
		switch k.KeyType {
		case types.KeyTypeHash:
			t.hashKey = aws.ToString(k.AttributeName)
		case types.KeyTypeRange:
			t.rangeKey = aws.ToString(k.AttributeName)
		}
	}
	if t.hashKey == "" {
		return nil, validationError("table %s has no hash key", name)
	}
	f.tables[name] = t

	return &dynamodb.CreateTableOutput{TableDescription: t.describe()}, nil
}

// DescribeTable reports an existing table as active.
func (f *Fake) DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DescribeTable", optFns); err != nil {
		return nil, err
	}
	t, err := f.table(aws.ToString(in.TableName))
	if err != nil {
		return nil, err
	}
	return &dynamodb.DescribeTableOutput{Table: t.describe()}, nil
}

func (t *table) describe() *types.TableDescription {
	desc := &types.TableDescription{
		TableName:   aws.String(t.name),
		TableStatus: types.TableStatusActive,
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(t.hashKey), KeyType: types.KeyTypeHash},
		},
	}
	if t.rangeKey != "" {
		desc.KeySchema = append(desc.KeySchema, types.KeySchemaElement{
			AttributeName: aws.String(t.rangeKey), KeyType: types.KeyTypeRange,
		})
	}
	return desc
}

// GetItem returns the row with the given key, if any.
func (f *Fake) GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("GetItem", optFns); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, err := f.table(aws.ToString(in.TableName))
	if err != nil {
		return nil, err
	}
	id, err := t.id(in.Key)
	if err != nil {
		return nil, err
	}
	return &dynamodb.GetItemOutput{Item: clone(t.rows[id])}, nil
}

var keyConditionPart = regexp.MustCompile(`^\s*(#?\w+)\s*=\s*(:\w+)\s*$`)

// Query returns the rows of one partition ordered by sort key.
func (f *Fake) Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Query", optFns); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, err := f.table(aws.ToString(in.TableName))
	if err != nil {
		return nil, err
	}

	want := make(map[string]types.AttributeValue)
	for _, part := range strings.Split(aws.ToString(in.KeyConditionExpression), " AND ") {
		m := keyConditionPart.FindStringSubmatch(part)
		if m == nil {
			return nil, validationError("unsupported key condition %q", part)
		}
		v, ok := in.ExpressionAttributeValues[m[2]]
		if !ok {
			return nil, validationError("missing expression value %s", m[2])
		}
		want[resolveName(m[1], in.ExpressionAttributeNames)] = v
	}
	if _, ok := want[t.hashKey]; !ok {
		return nil, validationError("key condition must name hash key %s", t.hashKey)
	}

	var matched []item
	for _, row := range t.rows {
		ok := true
		for k, v := range want {
			if !equal(row[k], v) {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, row)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return scalar(matched[i][t.rangeKey]) < scalar(matched[j][t.rangeKey])
	})

	if in.ExclusiveStartKey != nil {
		start, err := t.id(in.ExclusiveStartKey)
		if err != nil {
			return nil, err
		}
		for i, row := range matched {
			if id, _ := t.id(row); id == start {
				matched = matched[i+1:]
				break
			}
		}
	}

	limit := f.PageSize
	if in.Limit != nil && (limit == 0 || int(*in.Limit) < limit) {
		limit = int(*in.Limit)
	}
	out := &dynamodb.QueryOutput{}
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
		out.LastEvaluatedKey = t.key(matched[limit-1])
	}
	for _, row := range matched {
		out.Items = append(out.Items, clone(row))
	}
	out.Count = int32(len(out.Items))
	return out, nil
}

// UpdateItem applies a SET or ADD expression, creating the row if absent.
func (f *Fake) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("UpdateItem", optFns); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, err := f.table(aws.ToString(in.TableName))
	if err != nil {
		return nil, err
	}
	id, err := t.id(in.Key)
	if err != nil {
		return nil, err
	}
	old := t.rows[id]

	ok, err := evalCondition(aws.ToString(in.ConditionExpression), in.ExpressionAttributeNames, in.ExpressionAttributeValues, old)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}

	updated, err := applyUpdate(old, in.Key, aws.ToString(in.UpdateExpression), in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	t.rows[id] = updated

	out := &dynamodb.UpdateItemOutput{}
	if in.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = clone(old)
	}
	return out, nil
}

// DeleteItem removes a row. Deleting an absent row succeeds.
func (f *Fake) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DeleteItem", optFns); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, err := f.table(aws.ToString(in.TableName))
	if err != nil {
		return nil, err
	}
	id, err := t.id(in.Key)
	if err != nil {
		return nil, err
	}
	old := t.rows[id]

	ok, err := evalCondition(aws.ToString(in.ConditionExpression), in.ExpressionAttributeNames, in.ExpressionAttributeValues, old)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	delete(t.rows, id)

	out := &dynamodb.DeleteItemOutput{}
	if in.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = clone(old)
	}
	return out, nil
}

// TransactWriteItems checks every condition before applying any write. If a
// condition fails nothing is written and the returned
// TransactionCanceledException lists a reason per item.
func (f *Fake) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("TransactWriteItems", optFns); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type step struct {
		t     *table
		id    string
		apply func() error
	}

	steps := make([]step, 0, len(in.TransactItems))
	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false

	for i, w := range in.TransactItems {
		var (
			tableName, cond string
			names           map[string]string
			values          map[string]types.AttributeValue
			key             item
			apply           func(t *table, id string) error
		)
		switch {
		case w.ConditionCheck != nil:
			c := w.ConditionCheck
			tableName, cond, names, values, key = aws.ToString(c.TableName), aws.ToString(c.ConditionExpression), c.ExpressionAttributeNames, c.ExpressionAttributeValues, c.Key
			apply = func(*table, string) error { return nil }
		case w.Put != nil:
			p := w.Put
			tableName, cond, names, values, key = aws.ToString(p.TableName), aws.ToString(p.ConditionExpression), p.ExpressionAttributeNames, p.ExpressionAttributeValues, p.Item
			apply = func(t *table, id string) error {
				t.rows[id] = clone(p.Item)
				return nil
			}
		case w.Update != nil:
			u := w.Update
			tableName, cond, names, values, key = aws.ToString(u.TableName), aws.ToString(u.ConditionExpression), u.ExpressionAttributeNames, u.ExpressionAttributeValues, u.Key
			apply = func(t *table, id string) error {
				updated, err := applyUpdate(t.rows[id], u.Key, aws.ToString(u.UpdateExpression), u.ExpressionAttributeNames, u.ExpressionAttributeValues)
				if err != nil {
					return err
				}
				t.rows[id] = updated
				return nil
			}
		case w.Delete != nil:
			d := w.Delete
			tableName, cond, names, values, key = aws.ToString(d.TableName), aws.ToString(d.ConditionExpression), d.ExpressionAttributeNames, d.ExpressionAttributeValues, d.Key
			apply = func(t *table, id string) error {
				delete(t.rows, id)
				return nil
			}
		default:
			return nil, validationError("transact item %d has no operation", i)
		}

		t, err := f.table(tableName)
		if err != nil {
			return nil, err
		}
		id, err := t.id(key)
		if err != nil {
			return nil, err
		}
		ok, err := evalCondition(cond, names, values, t.rows[id])
		if err != nil {
			return nil, err
		}
		if ok {
			reasons[i] = types.CancellationReason{Code: aws.String("None")}
		} else {
			reasons[i] = types.CancellationReason{
				Code:    aws.String("ConditionalCheckFailed"),
				Message: aws.String("The conditional request failed"),
			}
			failed = true
		}
		steps = append(steps, step{t: t, id: id, apply: func() error { return apply(t, id) }})
	}

	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled, please refer cancellation reasons for specific reasons"),
			CancellationReasons: reasons,
		}
	}
	for _, s := range steps {
		if err := s.apply(); err != nil {
			return nil, err
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

// BatchWriteItem applies puts and deletes without conditions.
func (f *Fake) BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("BatchWriteItem", optFns); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	total := 0
	for _, reqs := range in.RequestItems {
		total += len(reqs)
	}
	if total > 25 {
		return nil, validationError("too many items in batch: %d", total)
	}

	out := &dynamodb.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{}}
	names := make([]string, 0, len(in.RequestItems))
	for name := range in.RequestItems {
		names = append(names, name)
	}
	sort.Strings(names)

	skipLast := f.unprocessed > 0
	if skipLast {
		f.unprocessed--
	}
	for n, name := range names {
		t, err := f.table(name)
		if err != nil {
			return nil, err
		}
		reqs := in.RequestItems[name]
		for i, req := range reqs {
			if skipLast && n == 0 && i == len(reqs)-1 {
				out.UnprocessedItems[name] = append(out.UnprocessedItems[name], req)
				continue
			}
			switch {
			case req.PutRequest != nil:
				id, err := t.id(req.PutRequest.Item)
				if err != nil {
					return nil, err
				}
				t.rows[id] = clone(req.PutRequest.Item)
			case req.DeleteRequest != nil:
				id, err := t.id(req.DeleteRequest.Key)
				if err != nil {
					return nil, err
				}
				delete(t.rows, id)
			}
		}
	}
	return out, nil
}

// id derives the row identifier from the key attributes of row.
func (t *table) id(row item) (string, error) {
	h, ok := row[t.hashKey]
	if !ok {
		return "", validationError("missing key attribute %s for table %s", t.hashKey, t.name)
	}
	if t.rangeKey == "" {
		return scalar(h), nil
	}
	r, ok := row[t.rangeKey]
	if !ok {
		return "", validationError("missing key attribute %s for table %s", t.rangeKey, t.name)
	}
	return scalar(h) + "\x00" + scalar(r), nil
}

func (t *table) key(row item) item {
	k := item{t.hashKey: row[t.hashKey]}
	if t.rangeKey != "" {
		k[t.rangeKey] = row[t.rangeKey]
	}
	return k
}

var (
	conditionExpr = regexp.MustCompile(`^(attribute_exists|attribute_not_exists)\(\s*(#?\w+)\s*\)$`)
	equalityExpr  = regexp.MustCompile(`^(#?\w+)\s*=\s*(:\w+)$`)
)

func evalCondition(expr string, names map[string]string, values map[string]types.AttributeValue, row item) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true, nil
	}
	if m := equalityExpr.FindStringSubmatch(expr); m != nil {
		want, ok := values[m[2]]
		if !ok {
			return false, validationError("missing expression value %s", m[2])
		}
		got, present := row[resolveName(m[1], names)]
		return present && equal(got, want), nil
	}
	m := conditionExpr.FindStringSubmatch(expr)
	if m == nil {
		return false, validationError("unsupported condition %q", expr)
	}
	_, present := row[resolveName(m[2], names)]
	if m[1] == "attribute_exists" {
		return present, nil
	}
	return !present, nil
}

var (
	setClause = regexp.MustCompile(`^\s*(#?\w+)\s*=\s*(:\w+)\s*$`)
	addClause = regexp.MustCompile(`^\s*(#?\w+)\s+(:\w+)\s*$`)
)

func applyUpdate(old, key item, expr string, names map[string]string, values map[string]types.AttributeValue) (item, error) {
	row := clone(old)
	if row == nil {
		row = clone(key)
	}

	expr = strings.TrimSpace(expr)
	switch {
	case strings.HasPrefix(expr, "SET "):
		for _, clause := range strings.Split(strings.TrimPrefix(expr, "SET "), ",") {
			m := setClause.FindStringSubmatch(clause)
			if m == nil {
				return nil, validationError("unsupported SET clause %q", clause)
			}
			v, ok := values[m[2]]
			if !ok {
				return nil, validationError("missing expression value %s", m[2])
			}
			row[resolveName(m[1], names)] = v
		}
	case strings.HasPrefix(expr, "ADD "):
		for _, clause := range strings.Split(strings.TrimPrefix(expr, "ADD "), ",") {
			m := addClause.FindStringSubmatch(clause)
			if m == nil {
				return nil, validationError("unsupported ADD clause %q", clause)
			}
			delta, ok := values[m[2]].(*types.AttributeValueMemberN)
			if !ok {
				return nil, validationError("ADD value %s must be a number", m[2])
			}
			name := resolveName(m[1], names)
			sum, err := addNumbers(row[name], delta.Value)
			if err != nil {
				return nil, err
			}
			row[name] = &types.AttributeValueMemberN{Value: sum}
		}
	default:
		return nil, validationError("unsupported update expression %q", expr)
	}
	return row, nil
}

func addNumbers(current types.AttributeValue, delta string) (string, error) {
	d, err := strconv.ParseInt(delta, 10, 64)
	if err != nil {
		return "", validationError("ADD value %q: %v", delta, err)
	}
	if current == nil {
		return strconv.FormatInt(d, 10), nil
	}
	n, ok := current.(*types.AttributeValueMemberN)
	if !ok {
		return "", validationError("ADD target is not a number")
	}
	c, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return "", validationError("ADD target %q: %v", n.Value, err)
	}
	return strconv.FormatInt(c+d, 10), nil
}

func resolveName(token string, names map[string]string) string {
	if strings.HasPrefix(token, "#") {
		if name, ok := names[token]; ok {
			return name
		}
	}
	return token
}

func scalar(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return "S:" + v.Value
	case *types.AttributeValueMemberN:
		return "N:" + v.Value
	case *types.AttributeValueMemberB:
		return fmt.Sprintf("B:%x", v.Value)
	default:
		return ""
	}
}

func equal(a, b types.AttributeValue) bool {
	return a != nil && b != nil && scalar(a) == scalar(b)
}

func clone(row item) item {
	if row == nil {
		return nil
	}
	out := make(item, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func validationError(format string, args ...any) error {
	return &smithy.GenericAPIError{
		Code:    "ValidationException",
		Message: fmt.Sprintf(format, args...),
	}
}

// IsValidation reports whether err is a validation error raised by the fake
// for input it does not understand.
func IsValidation(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ValidationException"
}
