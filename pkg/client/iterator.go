package client

import (
	"context"
	"reflect"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/pocodynamo/pocodynamo/internal/expr"
	pocoerrors "github.com/pocodynamo/pocodynamo/pkg/errors"
	"github.com/pocodynamo/pocodynamo/pkg/model"
)

// RequestSpec describes one query or scan request before it's issued:
// optional index routing, key condition (query only), filter, projection,
// and paging/ordering knobs. pkg/query's fluent builder produces these;
// Client.Query/Client.Scan also accept a zero-value RequestSpec directly.
type RequestSpec struct {
	Table            *model.TableDescriptor
	IndexName        string
	KeyCondition     expr.Pred
	Filter           expr.Pred
	ProjectionFields []string
	Limit            int
	ScanIndexForward *bool
	ConsistentRead   *bool
}

// Iterator yields decoded items one page at a time, issuing the next SDK
// request only when the current page is exhausted and the store reported
// more results. Abandon iteration (stop calling Next) to cancel it; there
// is nothing else to release.
type Iterator struct {
	client    *Client
	table     *model.TableDescriptor
	elemType  reflect.Type
	query     bool
	spec      RequestSpec
	buffer    []map[string]ddbtypes.AttributeValue
	bufIndex  int
	startKey  map[string]ddbtypes.AttributeValue
	exhausted bool
	err       error
}

func (c *Client) newIterator(query bool, elemType reflect.Type, spec RequestSpec) *Iterator {
	return &Iterator{client: c, table: spec.Table, elemType: elemType, query: query, spec: spec}
}

// Query seeds a lazy iterator over a Query request against spec.Table (or
// spec.IndexName, if set).
func (c *Client) Query(elemType reflect.Type, spec RequestSpec) *Iterator {
	return c.newIterator(true, elemType, spec)
}

// Scan seeds a lazy iterator over a Scan request against spec.Table (or
// spec.IndexName, if set).
func (c *Client) Scan(elemType reflect.Type, spec RequestSpec) *Iterator {
	return c.newIterator(false, elemType, spec)
}

// Next decodes the next item into dest (a pointer to elemType) and reports
// whether one was available. It returns false, with Err() set, on failure,
// and false with Err() == nil once the store reports no more results.
func (it *Iterator) Next(ctx context.Context, dest any) bool {
	if it.err != nil {
		return false
	}
	for it.bufIndex >= len(it.buffer) {
		if it.exhausted {
			return false
		}
		if err := it.fetchPage(ctx); err != nil {
			it.err = err
			return false
		}
	}
	item := it.buffer[it.bufIndex]
	it.bufIndex++
	if err := it.client.codec.UnmarshalItem(ctx, item, dest, it.table); err != nil {
		it.err = err
		return false
	}
	return true
}

// Err returns the error that stopped iteration, if any.
func (it *Iterator) Err() error { return it.err }

// NextRaw returns the next item's undecoded attribute map, used by
// single-column projections that only need one field decoded rather than
// a full UnmarshalItem pass.
func (it *Iterator) NextRaw(ctx context.Context) (map[string]ddbtypes.AttributeValue, bool) {
	if it.err != nil {
		return nil, false
	}
	for it.bufIndex >= len(it.buffer) {
		if it.exhausted {
			return nil, false
		}
		if err := it.fetchPage(ctx); err != nil {
			it.err = err
			return nil, false
		}
	}
	item := it.buffer[it.bufIndex]
	it.bufIndex++
	return item, true
}

func (it *Iterator) fetchPage(ctx context.Context) error {
	builder := expr.NewBuilder(it.client.codec)

	if it.query && it.spec.KeyCondition != nil {
		if err := builder.AddKeyCondition(it.spec.KeyCondition); err != nil {
			return err
		}
	}
	if it.spec.Filter != nil {
		if err := builder.AddFilter(it.spec.Filter); err != nil {
			return err
		}
	}
	for _, f := range it.spec.ProjectionFields {
		builder.AddProjection(f)
	}
	components := builder.Build()

	limit := int32(it.spec.Limit)
	if limit == 0 && it.client.pagingLimit > 0 {
		limit = int32(it.client.pagingLimit)
	}

	consistentRead := it.client.consistentRead
	if it.spec.IndexName != "" {
		if idx, ok := it.table.Index(it.spec.IndexName); ok && idx.Kind == model.GlobalIndex {
			consistentRead = false
		}
	}
	if it.spec.ConsistentRead != nil {
		consistentRead = *it.spec.ConsistentRead
	}

	forward := it.client.scanIndexForward
	if it.spec.ScanIndexForward != nil {
		forward = *it.spec.ScanIndexForward
	}

	var names map[string]string
	var values map[string]ddbtypes.AttributeValue
	if len(components.ExpressionAttributeNames) > 0 {
		names = components.ExpressionAttributeNames
	}
	if len(components.ExpressionAttributeValues) > 0 {
		values = components.ExpressionAttributeValues
	}

	var items []map[string]ddbtypes.AttributeValue
	var lastKey map[string]ddbtypes.AttributeValue

	if it.query {
		if components.KeyConditionExpression == "" {
			return &pocoerrors.ExpressionError{Detail: "query requires a key condition"}
		}
		input := &dynamodb.QueryInput{
			TableName:                 aws.String(it.table.Name),
			KeyConditionExpression:    aws.String(components.KeyConditionExpression),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
			ExclusiveStartKey:         it.startKey,
			ScanIndexForward:          aws.Bool(forward),
			ConsistentRead:            aws.Bool(consistentRead),
		}
		if components.FilterExpression != "" {
			input.FilterExpression = aws.String(components.FilterExpression)
		}
		if components.ProjectionExpression != "" {
			input.ProjectionExpression = aws.String(components.ProjectionExpression)
		}
		if it.spec.IndexName != "" {
			input.IndexName = aws.String(it.spec.IndexName)
		}
		if limit > 0 {
			input.Limit = aws.Int32(limit)
		}

		var output *dynamodb.QueryOutput
		err := it.client.exec(ctx, func(ctx context.Context) error {
			var callErr error
			output, callErr = it.client.api.Query(ctx, input)
			return callErr
		})
		if err != nil {
			return err
		}
		items, lastKey = output.Items, output.LastEvaluatedKey
	} else {
		input := &dynamodb.ScanInput{
			TableName:                 aws.String(it.table.Name),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
			ExclusiveStartKey:         it.startKey,
			ConsistentRead:            aws.Bool(consistentRead),
		}
		if components.FilterExpression != "" {
			input.FilterExpression = aws.String(components.FilterExpression)
		}
		if components.ProjectionExpression != "" {
			input.ProjectionExpression = aws.String(components.ProjectionExpression)
		}
		if it.spec.IndexName != "" {
			input.IndexName = aws.String(it.spec.IndexName)
		}
		if limit > 0 {
			input.Limit = aws.Int32(limit)
		}

		var output *dynamodb.ScanOutput
		err := it.client.exec(ctx, func(ctx context.Context) error {
			var callErr error
			output, callErr = it.client.api.Scan(ctx, input)
			return callErr
		})
		if err != nil {
			return err
		}
		items, lastKey = output.Items, output.LastEvaluatedKey
	}

	it.buffer = items
	it.bufIndex = 0
	it.startKey = lastKey
	if len(lastKey) == 0 {
		it.exhausted = true
	}
	return nil
}

// Collect drains it into a newly allocated []elemType-shaped slice, stopping
// as soon as limit items have been collected (0 means unbounded). If the
// request didn't already set its own per-page limit, it is capped at limit
// so a bounded Collect doesn't over-fetch pages past what it needs.
func (it *Iterator) Collect(ctx context.Context, limit int) (reflect.Value, error) {
	if limit > 0 && it.spec.Limit == 0 {
		it.spec.Limit = limit
	}
	out := reflect.MakeSlice(reflect.SliceOf(it.elemType), 0, 0)
	for limit == 0 || out.Len() < limit {
		elem := reflect.New(it.elemType)
		if !it.Next(ctx, elem.Interface()) {
			break
		}
		out = reflect.Append(out, elem.Elem())
	}
	return out, it.Err()
}

// GetRelated issues a Query for every child whose hash key equals
// parentHash and replaces the contents of the slice dest points to with the
// decoded children.
func (c *Client) GetRelated(ctx context.Context, dest any, parentHash any) error {
	destSlice := reflect.ValueOf(dest)
	if destSlice.Kind() != reflect.Ptr || destSlice.Elem().Kind() != reflect.Slice {
		return &pocoerrors.SchemaError{Detail: "dest must be a pointer to a slice"}
	}
	elemType := destSlice.Elem().Type().Elem()
	table, ok := c.registry.LookupType(elemType)
	if !ok {
		return &pocoerrors.SchemaError{RecordType: elemType.String(), Detail: "type is not registered"}
	}

	it := c.Query(elemType, RequestSpec{
		Table:        table,
		KeyCondition: expr.Eq(table.HashKey.DBName, parentHash),
	})
	result, err := it.Collect(ctx, 0)
	if err != nil {
		return err
	}
	destSlice.Elem().Set(result)
	return nil
}
