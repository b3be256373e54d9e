// Package client is the request engine: get/put/delete/batch/query/scan
// operations translated into SDK calls, run through the retry wrapper, and
// decoded back into typed Go values via the codec.
package client

import (
	"context"
	"errors"
	"reflect"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/pocodynamo/pocodynamo/pkg/codec"
	"github.com/pocodynamo/pocodynamo/pkg/coreapi"
	pocoerrors "github.com/pocodynamo/pocodynamo/pkg/errors"
	"github.com/pocodynamo/pocodynamo/pkg/model"
	"github.com/pocodynamo/pocodynamo/pkg/schema"
	"github.com/pocodynamo/pocodynamo/pkg/session"
)

const (
	maxGetBatchSize   = 100
	maxWriteBatchSize = 25
)

// Key pairs a hash key with an optional range key for a batch GetItem call.
type Key struct {
	Hash  any
	Range any
}

// Client is the typed request engine. It is safe for concurrent use; the
// only mutable state is what ClientWith overrides, and each override
// produces an independent copy.
type Client struct {
	api      coreapi.DynamoDBAPI
	registry *model.Registry
	codec    *codec.Codec
	schema   *schema.Manager

	retryPolicy coreapi.RetryPolicy

	consistentRead   bool
	scanIndexForward bool
	pagingLimit      int
	correlationID    string
}

// New builds a Client over sess's DynamoDB client, sharing registry and
// codec with every other Client built from the same session.
func New(sess *session.Session, registry *model.Registry, cod *codec.Codec) *Client {
	cfg := sess.Config()
	mgr := schema.NewManager(sess.Client(), registry, cfg.PollTableStatusInterval)
	policy := coreapi.DefaultRetryPolicy()
	if cfg.MaxRetryOnExceptionTime > 0 {
		policy.MaxElapsed = cfg.MaxRetryOnExceptionTime
	}
	return &Client{
		api:              sess.Client(),
		registry:         registry,
		codec:            cod,
		schema:           mgr,
		retryPolicy:      policy,
		consistentRead:   true,
		scanIndexForward: true,
		pagingLimit:      cfg.PagingLimit,
	}
}

// NewWithAPI builds a Client directly over api, bypassing session
// construction. Production code uses New; this is for callers (tests,
// alternative SDK wrappers) that already hold a coreapi.DynamoDBAPI.
func NewWithAPI(api coreapi.DynamoDBAPI, registry *model.Registry, cod *codec.Codec, opts ...Option) *Client {
	c := &Client{
		api:              api,
		registry:         registry,
		codec:            cod,
		schema:           schema.NewManager(api, registry, 0),
		retryPolicy:      coreapi.DefaultRetryPolicy(),
		consistentRead:   true,
		scanIndexForward: true,
		pagingLimit:      0,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Option configures a Client produced by ClientWith.
type Option func(*Client)

// WithConsistentRead overrides the default read consistency.
func WithConsistentRead(consistent bool) Option {
	return func(c *Client) { c.consistentRead = consistent }
}

// WithScanIndexForward overrides the default query/scan iteration order.
func WithScanIndexForward(forward bool) Option {
	return func(c *Client) { c.scanIndexForward = forward }
}

// WithPagingLimit overrides the default per-request page size.
func WithPagingLimit(n int) Option {
	return func(c *Client) { c.pagingLimit = n }
}

// WithRetryPolicy overrides the retry wrapper's backoff schedule and total
// retry budget.
func WithRetryPolicy(policy coreapi.RetryPolicy) Option {
	return func(c *Client) { c.retryPolicy = policy }
}

// WithCorrelationID overrides the request-correlation id attached to retry
// log lines; without it every SDK call the Client makes gets a fresh
// uuid.NewString().
func WithCorrelationID(id string) Option {
	return func(c *Client) { c.correlationID = id }
}

// ClientWith returns an independent Client with opts applied; the SDK
// handle, registry, and codec are shared with the receiver.
func (c *Client) ClientWith(opts ...Option) *Client {
	clone := *c
	for _, opt := range opts {
		opt(&clone)
	}
	return &clone
}

// Close does nothing and always returns nil: the Client holds no resource
// of its own to release, and the shared SDK client is left as it is.
func (c *Client) Close() error { return nil }

// Registry returns the shared metadata registry, used by pkg/query to
// resolve table descriptors for the fluent builder.
func (c *Client) Registry() *model.Registry { return c.registry }

// Codec returns the shared attribute codec.
func (c *Client) Codec() *codec.Codec { return c.codec }

// API returns the underlying SDK surface, used by pkg/query to issue
// Query/Scan calls directly.
func (c *Client) API() coreapi.DynamoDBAPI { return c.api }

// RetryPolicy returns the configured retry policy.
func (c *Client) RetryPolicy() coreapi.RetryPolicy { return c.retryPolicy }

// PagingLimit returns the configured default per-request page size.
func (c *Client) PagingLimit() int { return c.pagingLimit }

// ScanIndexForward returns the configured default iteration order.
func (c *Client) ScanIndexForward() bool { return c.scanIndexForward }

func (c *Client) requestID() string {
	if c.correlationID != "" {
		return c.correlationID
	}
	return uuid.NewString()
}

func (c *Client) exec(ctx context.Context, action func(ctx context.Context) error) error {
	return coreapi.ExecWithID(ctx, c.requestID(), c.retryPolicy, nil, action)
}

// InitSchema creates every table the registry currently describes and
// blocks until each is Active. It returns false, not an error, on timeout.
func (c *Client) InitSchema(ctx context.Context, timeout time.Duration) (bool, error) {
	return c.schema.InitSchema(ctx, timeout)
}

// resolveTable returns the table descriptor for instance, which may be a
// struct, a pointer to one, or a pointer/slice of either (batch calls
// resolve against the slice's element type).
func (c *Client) resolveTable(instance any) (*model.TableDescriptor, error) {
	t := reflect.TypeOf(instance)
	for t != nil && (t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice || t.Kind() == reflect.Array) {
		t = t.Elem()
	}
	if t == nil {
		return nil, &pocoerrors.SchemaError{Detail: "nil record type"}
	}
	table, ok := c.registry.LookupType(t)
	if !ok {
		return nil, &pocoerrors.SchemaError{RecordType: t.String(), Detail: "type is not registered"}
	}
	return table, nil
}

func (c *Client) buildKey(table *model.TableDescriptor, hash, rangeKey any) (map[string]ddbtypes.AttributeValue, error) {
	key := make(map[string]ddbtypes.AttributeValue, 2)
	hv, err := c.codec.Encode(hash)
	if err != nil {
		return nil, &pocoerrors.EncodingError{Err: err, Field: table.HashKey.Name}
	}
	key[table.HashKey.DBName] = hv

	if table.RangeKey != nil {
		if rangeKey == nil {
			return nil, &pocoerrors.SchemaError{RecordType: table.Name, Detail: "table has a range key but none was supplied"}
		}
		rv, err := c.codec.Encode(rangeKey)
		if err != nil {
			return nil, &pocoerrors.EncodingError{Err: err, Field: table.RangeKey.Name}
		}
		key[table.RangeKey.DBName] = rv
	}
	return key, nil
}

// translateStoreError maps a ResourceNotFoundException to ErrNotFound and
// leaves everything else (including the retry wrapper's own ErrTimeout
// wrapping) untouched.
func translateStoreError(err error) error {
	if err == nil {
		return nil
	}
	var notFound *ddbtypes.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return pocoerrors.ErrNotFound
	}
	return err
}

// GetItem fetches one item by key into dest (a pointer to a registered
// struct type). dest is left at its zero value, and no error is returned,
// when the item is absent.
func (c *Client) GetItem(ctx context.Context, dest any, hash any, rangeKey ...any) error {
	table, err := c.resolveTable(dest)
	if err != nil {
		return err
	}
	var rk any
	if len(rangeKey) > 0 {
		rk = rangeKey[0]
	}
	key, err := c.buildKey(table, hash, rk)
	if err != nil {
		return err
	}

	var output *dynamodb.GetItemOutput
	err = c.exec(ctx, func(ctx context.Context) error {
		var callErr error
		output, callErr = c.api.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:      aws.String(table.Name),
			Key:            key,
			ConsistentRead: aws.Bool(c.consistentRead),
		})
		return callErr
	})
	if err != nil {
		return translateStoreError(err)
	}
	if len(output.Item) == 0 {
		return nil
	}
	return c.codec.UnmarshalItem(ctx, output.Item, dest, table)
}

// DeleteItem deletes one item by key. recordType is any value (typically
// the zero value) of the registered type, used only to resolve the table.
func (c *Client) DeleteItem(ctx context.Context, recordType any, hash any, rangeKey ...any) error {
	table, err := c.resolveTable(recordType)
	if err != nil {
		return err
	}
	var rk any
	if len(rangeKey) > 0 {
		rk = rangeKey[0]
	}
	key, err := c.buildKey(table, hash, rk)
	if err != nil {
		return err
	}

	return c.exec(ctx, func(ctx context.Context) error {
		_, callErr := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(table.Name),
			Key:       key,
		})
		return callErr
	})
}

// PutItem writes one item, stamping created/updated timestamps and the
// optimistic-lock version field (if the type declares them) via the codec.
func (c *Client) PutItem(ctx context.Context, instance any) error {
	table, err := c.resolveTable(instance)
	if err != nil {
		return err
	}
	item, err := c.codec.MarshalItem(ctx, instance, table, false)
	if err != nil {
		return err
	}

	return c.exec(ctx, func(ctx context.Context) error {
		_, callErr := c.api.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(table.Name),
			Item:      item,
		})
		return callErr
	})
}

// Increment applies an ADD update to a numeric attribute and returns the
// resulting value (0 if the attribute is absent after the update).
func (c *Client) Increment(ctx context.Context, recordType any, hash any, field string, delta int64, rangeKey ...any) (int64, error) {
	table, err := c.resolveTable(recordType)
	if err != nil {
		return 0, err
	}
	fd, ok := table.FieldsByName[field]
	if !ok {
		return 0, &pocoerrors.SchemaError{RecordType: table.Name, Detail: "unknown field " + field}
	}

	var rk any
	if len(rangeKey) > 0 {
		rk = rangeKey[0]
	}
	key, err := c.buildKey(table, hash, rk)
	if err != nil {
		return 0, err
	}

	deltaValue, err := c.codec.Encode(delta)
	if err != nil {
		return 0, &pocoerrors.EncodingError{Err: err, Field: field}
	}

	nameRef := "#n0"
	valueRef := ":v0"

	var output *dynamodb.UpdateItemOutput
	err = c.exec(ctx, func(ctx context.Context) error {
		var callErr error
		output, callErr = c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 aws.String(table.Name),
			Key:                       key,
			UpdateExpression:          aws.String("ADD " + nameRef + " " + valueRef),
			ExpressionAttributeNames:  map[string]string{nameRef: fd.DBName},
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{valueRef: deltaValue},
			ReturnValues:              ddbtypes.ReturnValueUpdatedNew,
		})
		return callErr
	})
	if err != nil {
		return 0, err
	}

	av, ok := output.Attributes[fd.DBName]
	if !ok {
		return 0, nil
	}
	target := reflect.New(fd.GoType).Elem()
	if err := c.codec.DecodeInto(av, target); err != nil {
		return 0, &pocoerrors.EncodingError{Err: err, Field: field}
	}

	switch target.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return target.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(target.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return int64(target.Float()), nil
	default:
		return 0, &pocoerrors.EncodingError{Err: pocoerrors.ErrUnsupportedType, Field: field}
	}
}
