package client

import (
	"context"
	"math"
	"reflect"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	pocoerrors "github.com/pocodynamo/pocodynamo/pkg/errors"
	"github.com/pocodynamo/pocodynamo/pkg/model"
)

func chunkKeys(keys []Key, size int) [][]Key {
	var chunks [][]Key
	for size < len(keys) {
		keys, chunks = keys[size:], append(chunks, keys[:size:size])
	}
	return append(chunks, keys)
}

func chunkRequests(reqs []ddbtypes.WriteRequest, size int) [][]ddbtypes.WriteRequest {
	var chunks [][]ddbtypes.WriteRequest
	for size < len(reqs) {
		reqs, chunks = reqs[size:], append(chunks, reqs[:size:size])
	}
	return append(chunks, reqs)
}

// GetItems fetches every key in keys, chunking into batches of up to 100
// and re-submitting unprocessed keys with backoff, appending decoded items
// to the slice dest points to.
func (c *Client) GetItems(ctx context.Context, dest any, keys []Key) error {
	destSlice := reflect.ValueOf(dest)
	if destSlice.Kind() != reflect.Ptr || destSlice.Elem().Kind() != reflect.Slice {
		return &pocoerrors.SchemaError{Detail: "dest must be a pointer to a slice"}
	}
	elemType := destSlice.Elem().Type().Elem()
	table, ok := c.registry.LookupType(elemType)
	if !ok {
		return &pocoerrors.SchemaError{RecordType: elemType.String(), Detail: "type is not registered"}
	}
	if len(keys) == 0 {
		return nil
	}

	out := destSlice.Elem()
	for _, chunk := range chunkKeys(keys, maxGetBatchSize) {
		keysAndAttrs := ddbtypes.KeysAndAttributes{ConsistentRead: aws.Bool(c.consistentRead)}
		for _, k := range chunk {
			key, err := c.buildKey(table, k.Hash, k.Range)
			if err != nil {
				return err
			}
			keysAndAttrs.Keys = append(keysAndAttrs.Keys, key)
		}

		request := map[string]ddbtypes.KeysAndAttributes{table.Name: keysAndAttrs}
		delay := c.retryPolicy.InitialDelay
		for {
			var output *dynamodb.BatchGetItemOutput
			err := c.exec(ctx, func(ctx context.Context) error {
				var callErr error
				output, callErr = c.api.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
				return callErr
			})
			if err != nil {
				return translateStoreError(err)
			}

			for _, item := range output.Responses[table.Name] {
				elem := reflect.New(elemType)
				if err := c.codec.UnmarshalItem(ctx, item, elem.Interface(), table); err != nil {
					return err
				}
				out = reflect.Append(out, elem.Elem())
			}

			if len(output.UnprocessedKeys) == 0 {
				break
			}
			request = output.UnprocessedKeys
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(math.Min(float64(delay)*c.retryPolicy.BackoffFactor, float64(c.retryPolicy.MaxDelay)))
		}
	}

	destSlice.Elem().Set(out)
	return nil
}

// writeRequestsFor builds one WriteRequest per item using build, applied to
// every element of instances (a slice of structs or struct pointers).
func (c *Client) writeRequestsFor(instances any, build func(item any, table *model.TableDescriptor) (ddbtypes.WriteRequest, error)) (*model.TableDescriptor, []ddbtypes.WriteRequest, error) {
	v := reflect.ValueOf(instances)
	if v.Kind() != reflect.Slice {
		return nil, nil, &pocoerrors.SchemaError{Detail: "instances must be a slice"}
	}
	if v.Len() == 0 {
		return nil, nil, nil
	}

	table, err := c.resolveTable(v.Index(0).Interface())
	if err != nil {
		return nil, nil, err
	}

	reqs := make([]ddbtypes.WriteRequest, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		req, err := build(v.Index(i).Interface(), table)
		if err != nil {
			return nil, nil, err
		}
		reqs = append(reqs, req)
	}
	return table, reqs, nil
}

// PutItems writes every element of instances, chunking into batches of up
// to 25 BatchWriteItem PutRequests and re-submitting unprocessed items with
// backoff.
func (c *Client) PutItems(ctx context.Context, instances any) error {
	table, reqs, err := c.writeRequestsFor(instances, func(item any, table *model.TableDescriptor) (ddbtypes.WriteRequest, error) {
		encoded, err := c.codec.MarshalItem(ctx, item, table, false)
		if err != nil {
			return ddbtypes.WriteRequest{}, err
		}
		return ddbtypes.WriteRequest{PutRequest: &ddbtypes.PutRequest{Item: encoded}}, nil
	})
	if err != nil || table == nil {
		return err
	}
	return c.batchWrite(ctx, table.Name, reqs)
}

// DeleteItems deletes every key in keys for the table recordType resolves
// to, using the same batching and re-submission rules as PutItems.
func (c *Client) DeleteItems(ctx context.Context, recordType any, keys []Key) error {
	table, err := c.resolveTable(recordType)
	if err != nil {
		return err
	}
	reqs := make([]ddbtypes.WriteRequest, 0, len(keys))
	for _, k := range keys {
		key, err := c.buildKey(table, k.Hash, k.Range)
		if err != nil {
			return err
		}
		reqs = append(reqs, ddbtypes.WriteRequest{DeleteRequest: &ddbtypes.DeleteRequest{Key: key}})
	}
	return c.batchWrite(ctx, table.Name, reqs)
}

func (c *Client) batchWrite(ctx context.Context, tableName string, reqs []ddbtypes.WriteRequest) error {
	for _, chunk := range chunkRequests(reqs, maxWriteBatchSize) {
		request := map[string][]ddbtypes.WriteRequest{tableName: chunk}
		delay := c.retryPolicy.InitialDelay
		for {
			var output *dynamodb.BatchWriteItemOutput
			err := c.exec(ctx, func(ctx context.Context) error {
				var callErr error
				output, callErr = c.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: request})
				return callErr
			})
			if err != nil {
				return err
			}
			if len(output.UnprocessedItems) == 0 {
				break
			}
			request = output.UnprocessedItems
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(math.Min(float64(delay)*c.retryPolicy.BackoffFactor, float64(c.retryPolicy.MaxDelay)))
		}
	}
	return nil
}

// PutRelated stamps each child's hash field with parentHash and
// batch-writes the children. The child table must have a range key, since
// that's what keeps every child distinct under the shared parent hash.
func (c *Client) PutRelated(ctx context.Context, parentHash any, children any) error {
	v := reflect.ValueOf(children)
	if v.Kind() != reflect.Slice {
		return &pocoerrors.SchemaError{Detail: "children must be a slice"}
	}
	if v.Len() == 0 {
		return nil
	}

	table, err := c.resolveTable(v.Index(0).Interface())
	if err != nil {
		return err
	}
	if table.RangeKey == nil {
		return &pocoerrors.SchemaError{RecordType: table.Name, Detail: "putRelated requires the child table to have a range key"}
	}

	hashValue := reflect.ValueOf(parentHash)
	for i := 0; i < v.Len(); i++ {
		table.HashKey.Addr(v.Index(i)).Set(hashValue.Convert(table.HashKey.GoType))
	}

	return c.PutItems(ctx, children)
}
