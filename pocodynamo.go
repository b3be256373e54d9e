// Package pocodynamo is a typed object-mapping client for DynamoDB-shaped
// schemaless key-value stores: register a Go struct, get back a client that
// knows how to get/put/delete/batch/query/scan it.
//
// Implementation lives in the pkg/ subpackages so each concern (schema
// derivation, attribute encoding, the request engine, the query builder) can
// be used independently; this file wires them into one entry point.
package pocodynamo

import (
	"context"
	"sync"
	"time"

	"github.com/pocodynamo/pocodynamo/internal/expr"
	"github.com/pocodynamo/pocodynamo/pkg/client"
	"github.com/pocodynamo/pocodynamo/pkg/codec"
	pocoerrors "github.com/pocodynamo/pocodynamo/pkg/errors"
	"github.com/pocodynamo/pocodynamo/pkg/encryption"
	"github.com/pocodynamo/pocodynamo/pkg/model"
	"github.com/pocodynamo/pocodynamo/pkg/query"
	"github.com/pocodynamo/pocodynamo/pkg/sequence"
	"github.com/pocodynamo/pocodynamo/pkg/session"
)

// NewSortableID returns a ULID-based identifier for callers that want
// lexicographic sortability without a round trip through a counter table.
var NewSortableID = sequence.NewSortableID

type (
	// Config is re-exported for convenience; see pkg/session.Config for field docs.
	Config = session.Config

	Key             = client.Key
	RequestSpec     = client.RequestSpec
	Iterator        = client.Iterator
	ClientOption    = client.Option
	RegisterOption  = model.RegisterOption
	TableDescriptor = model.TableDescriptor
	Pred            = expr.Pred
)

// Re-export registration and predicate helpers for convenience.
var (
	WithCompositeKey = model.WithCompositeKey
	WithCapacity     = model.WithCapacity

	WithConsistentRead   = client.WithConsistentRead
	WithScanIndexForward = client.WithScanIndexForward
	WithPagingLimit      = client.WithPagingLimit
	WithRetryPolicy      = client.WithRetryPolicy
	WithCorrelationID    = client.WithCorrelationID

	Eq         = expr.Eq
	Ne         = expr.Ne
	Lt         = expr.Lt
	Lte        = expr.Lte
	Gt         = expr.Gt
	Gte        = expr.Gte
	And        = expr.And
	Or         = expr.Or
	Not        = expr.Not
	BeginsWith = expr.BeginsWith
	Contains   = expr.Contains
	Between    = expr.Between
	In         = expr.In
	Exists     = expr.Exists
	NotExists  = expr.NotExists
)

// DB is the top-level handle: a registered-type catalog plus the request
// engine built over one AWS session.
type DB struct {
	session  *session.Session
	registry *model.Registry
	codec    *codec.Codec
	client   *client.Client
	seq      *lazySequenceSource
}

// lazySequenceSource defers registering the sequences table until first
// use, shared by pointer across every DB clone With produces.
type lazySequenceSource struct {
	once sync.Once
	src  *sequence.Source
	err  error
}

// Open loads the AWS configuration described by cfg, builds the DynamoDB
// (and, if cfg.KMSKeyARN is set, KMS) clients, and returns a DB with an
// empty type registry. Call Register for every struct before using it.
func Open(ctx context.Context, cfg *Config) (*DB, error) {
	sess, err := session.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	registry := model.NewRegistry()
	cod := codec.New()
	if sess.Config().KMSKeyARN != "" {
		cod.WithEncryption(encryption.NewServiceFromSession(sess))
	}

	return &DB{
		session:  sess,
		registry: registry,
		codec:    cod,
		client:   client.New(sess, registry, cod),
		seq:      &lazySequenceSource{},
	}, nil
}

// Register derives and caches a TableDescriptor for recordType. It fails
// closed if recordType has `encrypted`-tagged fields but the DB was opened
// without a KMS key.
func (db *DB) Register(recordType any, opts ...RegisterOption) (*TableDescriptor, error) {
	table, err := db.registry.Register(recordType, opts...)
	if err != nil {
		return nil, err
	}
	if table.HasEncryptedFields() && db.session.Config().KMSKeyARN == "" {
		return nil, &pocoerrors.SchemaError{RecordType: table.Name, Err: pocoerrors.ErrEncryptionNotConfigured, Detail: "table has encrypted fields but no KMSKeyARN was configured"}
	}
	return table, nil
}

// Client returns the underlying request engine, for callers that need
// direct access to operations this facade doesn't wrap.
func (db *DB) Client() *client.Client { return db.client }

// Registry returns the shared metadata registry.
func (db *DB) Registry() *model.Registry { return db.registry }

// With returns an independent DB sharing the registry/codec/session but
// with opts applied to its request engine (e.g. a per-call correlation id).
func (db *DB) With(opts ...ClientOption) *DB {
	clone := *db
	clone.client = db.client.ClientWith(opts...)
	return &clone
}

// InitSchema creates every registered table that doesn't already exist and
// blocks until each is Active, returning false (not an error) on timeout.
func (db *DB) InitSchema(ctx context.Context, timeout time.Duration) (bool, error) {
	return db.client.InitSchema(ctx, timeout)
}

// GetItem fetches one item by key into dest (a pointer to a registered struct).
func (db *DB) GetItem(ctx context.Context, dest any, hash any, rangeKey ...any) error {
	return db.client.GetItem(ctx, dest, hash, rangeKey...)
}

// PutItem writes one item, stamping timestamps/version fields the type declares.
func (db *DB) PutItem(ctx context.Context, instance any) error {
	return db.client.PutItem(ctx, instance)
}

// DeleteItem deletes one item by key.
func (db *DB) DeleteItem(ctx context.Context, recordType any, hash any, rangeKey ...any) error {
	return db.client.DeleteItem(ctx, recordType, hash, rangeKey...)
}

// Increment applies an atomic ADD to a numeric attribute and returns its new value.
func (db *DB) Increment(ctx context.Context, recordType any, hash any, field string, delta int64, rangeKey ...any) (int64, error) {
	return db.client.Increment(ctx, recordType, hash, field, delta, rangeKey...)
}

// GetItems fetches every key in keys, appending decoded items to the slice dest points to.
func (db *DB) GetItems(ctx context.Context, dest any, keys []Key) error {
	return db.client.GetItems(ctx, dest, keys)
}

// PutItems writes every element of instances.
func (db *DB) PutItems(ctx context.Context, instances any) error {
	return db.client.PutItems(ctx, instances)
}

// DeleteItems deletes every key in keys.
func (db *DB) DeleteItems(ctx context.Context, recordType any, keys []Key) error {
	return db.client.DeleteItems(ctx, recordType, keys)
}

// PutRelated stamps parentHash onto every child and batch-writes them.
func (db *DB) PutRelated(ctx context.Context, parentHash any, children any) error {
	return db.client.PutRelated(ctx, parentHash, children)
}

// GetRelated queries every child sharing parentHash's hash key into dest.
func (db *DB) GetRelated(ctx context.Context, dest any, parentHash any) error {
	return db.client.GetRelated(ctx, dest, parentHash)
}

// FromQuery seeds a query builder against recordType's base table.
func (db *DB) FromQuery(recordType any, keyPredicate ...Pred) (*query.Builder, error) {
	return query.FromQuery(db.client, recordType, keyPredicate...)
}

// FromScan seeds a scan builder against recordType's base table.
func (db *DB) FromScan(recordType any, filterPredicate ...Pred) (*query.Builder, error) {
	return query.FromScan(db.client, recordType, filterPredicate...)
}

// FromQueryIndex seeds a query builder routed through the named index.
func (db *DB) FromQueryIndex(recordType any, indexName string, keyPredicate ...Pred) (*query.Builder, error) {
	return query.FromQueryIndex(db.client, recordType, indexName, keyPredicate...)
}

// FromQueryIndexInferred seeds a query builder routed through whichever
// index keyPredicate's single referenced field resolves to, without
// requiring the index name up front.
func (db *DB) FromQueryIndexInferred(recordType any, keyPredicate Pred) (*query.Builder, error) {
	return query.FromQueryIndexInferred(db.client, recordType, keyPredicate)
}

// FromScanIndex seeds a scan builder routed through the named index.
func (db *DB) FromScanIndex(recordType any, indexName string, filterPredicate ...Pred) (*query.Builder, error) {
	return query.FromScanIndex(db.client, recordType, indexName, filterPredicate...)
}

// Sequences returns the monotonic-counter source backed by a dedicated
// table registered on first use. Call InitSchema afterward to create that
// table if it doesn't already exist.
func (db *DB) Sequences() (*sequence.Source, error) {
	db.seq.once.Do(func() {
		db.seq.src, db.seq.err = sequence.NewSource(db.client)
	})
	return db.seq.src, db.seq.err
}
