// Package query is the fluent, typed query/scan builder: index selection,
// key condition and filter composition, projection, ordering, and the
// exec shortcuts that hand off to pkg/client's iterator.
package query

import (
	"context"
	"reflect"

	"github.com/pocodynamo/pocodynamo/internal/expr"
	"github.com/pocodynamo/pocodynamo/pkg/client"
	pocoerrors "github.com/pocodynamo/pocodynamo/pkg/errors"
	"github.com/pocodynamo/pocodynamo/pkg/model"
)

// Builder accumulates a query or scan request against one registered type.
// It is clone-safe: Clone() deep-copies accumulated predicates so branches
// can diverge without disturbing each other.
type Builder struct {
	c         *client.Client
	table     *model.TableDescriptor
	elemType  reflect.Type
	isQuery   bool
	indexName string

	keyConditions []expr.Pred
	filters       []expr.Pred

	projection       []string
	limit            int
	scanIndexForward *bool
	consistentRead   *bool
}

// FromQuery seeds a query builder against recordType's base table.
func FromQuery(c *client.Client, recordType any, keyPredicate ...expr.Pred) (*Builder, error) {
	return newBuilder(c, recordType, true, "", keyPredicate)
}

// FromScan seeds a scan builder against recordType's base table.
func FromScan(c *client.Client, recordType any, filterPredicate ...expr.Pred) (*Builder, error) {
	return newBuilder(c, recordType, false, "", filterPredicate)
}

// FromQueryIndex seeds a query builder routed through the named local or
// global secondary index. Global-index reads default to best-effort
// (eventually consistent) reads.
func FromQueryIndex(c *client.Client, recordType any, indexName string, keyPredicate ...expr.Pred) (*Builder, error) {
	return newBuilder(c, recordType, true, indexName, keyPredicate)
}

// FromQueryIndexInferred seeds a query builder routed through whichever
// index keyPredicate's single referenced field resolves to, rather than
// requiring the index name up front — the companion-index-type annotation
// lookup, generalized from LocalIndex to also cover global indexes.
func FromQueryIndexInferred(c *client.Client, recordType any, keyPredicate expr.Pred) (*Builder, error) {
	b, err := newBuilder(c, recordType, true, "", nil)
	if err != nil {
		return nil, err
	}
	return b.routeToInferredIndex(keyPredicate)
}

// FromScanIndex seeds a scan builder routed through the named index.
func FromScanIndex(c *client.Client, recordType any, indexName string, filterPredicate ...expr.Pred) (*Builder, error) {
	return newBuilder(c, recordType, false, indexName, filterPredicate)
}

func newBuilder(c *client.Client, recordType any, isQuery bool, indexName string, preds []expr.Pred) (*Builder, error) {
	t := reflect.TypeOf(recordType)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	table, ok := c.Registry().LookupType(t)
	if !ok {
		return nil, &pocoerrors.SchemaError{RecordType: t.String(), Detail: "type is not registered"}
	}

	if indexName != "" {
		if _, ok := table.Index(indexName); !ok {
			return nil, &pocoerrors.SchemaError{RecordType: table.Name, Detail: "unknown index " + indexName}
		}
	}

	b := &Builder{c: c, table: table, elemType: t, isQuery: isQuery, indexName: indexName}
	for _, p := range preds {
		if isQuery {
			b.keyConditions = append(b.keyConditions, p)
		} else {
			b.filters = append(b.filters, p)
		}
	}
	return b, nil
}

// KeyCondition appends pred (AND-joined with any existing key condition) to
// the query's KeyConditionExpression.
func (b *Builder) KeyCondition(pred expr.Pred) *Builder {
	b.keyConditions = append(b.keyConditions, pred)
	return b
}

// Filter appends pred (AND-joined with any existing filter) to the
// request's FilterExpression.
func (b *Builder) Filter(pred expr.Pred) *Builder {
	b.filters = append(b.filters, pred)
	return b
}

// validateFields rejects a predicate referencing a field absent from the
// builder's table or an encrypted field, surfacing the mistake as an
// ExpressionError at build time rather than letting it reach the store as
// a silently wrong attribute-name placeholder.
func (b *Builder) validateFields(preds []expr.Pred) error {
	for _, pred := range preds {
		for _, field := range expr.Fields(pred) {
			fd, ok := b.table.FieldsByDBName[field]
			if !ok {
				return &pocoerrors.ExpressionError{Detail: "unknown field " + field}
			}
			if fd.IsEncrypted {
				return &pocoerrors.ExpressionError{Err: pocoerrors.ErrEncryptedFieldNotQueryable, Detail: "encrypted field " + field}
			}
		}
	}
	return nil
}

// LocalIndex selects an index by the single field pred references (failing
// with SchemaError if that's ambiguous or doesn't resolve to an index) and
// adds pred as a key condition, exactly like KeyCondition plus index
// routing. Pass name to select the index explicitly instead of inferring it.
func (b *Builder) LocalIndex(pred expr.Pred, name ...string) (*Builder, error) {
	if len(name) > 0 && name[0] != "" {
		if _, ok := b.table.Index(name[0]); !ok {
			return nil, &pocoerrors.SchemaError{RecordType: b.table.Name, Detail: "unknown index " + name[0]}
		}
		b.indexName = name[0]
		return b.KeyCondition(pred), nil
	}
	return b.routeToInferredIndex(pred)
}

// routeToInferredIndex resolves pred's single referenced field to exactly
// one local or global index on the table, routes the builder through it,
// and adds pred as a key condition.
func (b *Builder) routeToInferredIndex(pred expr.Pred) (*Builder, error) {
	fields := expr.Fields(pred)
	if len(fields) != 1 {
		return nil, &pocoerrors.SchemaError{RecordType: b.table.Name, Detail: "index inference requires exactly one referenced field"}
	}
	goField, ok := fieldByDBName(b.table, fields[0])
	if !ok {
		return nil, &pocoerrors.SchemaError{RecordType: b.table.Name, Detail: "unknown field " + fields[0]}
	}
	indexes := b.table.IndexesOnField(goField.Name)
	if len(indexes) != 1 {
		return nil, &pocoerrors.SchemaError{RecordType: b.table.Name, Detail: "field " + fields[0] + " does not resolve to exactly one index"}
	}
	b.indexName = indexes[0].Name
	return b.KeyCondition(pred), nil
}

func fieldByDBName(table *model.TableDescriptor, dbName string) (*model.FieldDescriptor, bool) {
	f, ok := table.FieldsByDBName[dbName]
	return f, ok
}

// Select sets a literal ProjectionExpression field list.
func (b *Builder) Select(fields ...string) *Builder {
	dbNames := make([]string, 0, len(fields))
	for _, f := range fields {
		if fd, ok := b.table.FieldsByName[f]; ok {
			dbNames = append(dbNames, fd.DBName)
		} else {
			dbNames = append(dbNames, f)
		}
	}
	b.projection = dbNames
	return b
}

// SelectTableFields projects every base-table field, useful when reading
// through an index whose own projection is narrower than the base table.
func (b *Builder) SelectTableFields() *Builder {
	fields := make([]string, 0, len(b.table.Fields))
	for _, f := range b.table.Fields {
		fields = append(fields, f.DBName)
	}
	b.projection = fields
	return b
}

// SelectModel projects the intersection of other's fields with this
// builder's table fields, letting callers decode a query result into a
// narrower shape than the registered record type.
func (b *Builder) SelectModel(other any) (*Builder, error) {
	t := reflect.TypeOf(other)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	otherTable, ok := b.c.Registry().LookupType(t)
	if !ok {
		return nil, &pocoerrors.SchemaError{RecordType: t.String(), Detail: "type is not registered"}
	}

	var fields []string
	for _, f := range otherTable.Fields {
		if _, ok := b.table.FieldsByName[f.Name]; ok {
			fields = append(fields, f.DBName)
		}
	}
	b.projection = fields
	return b, nil
}

// OrderByAscending sets ScanIndexForward to true (the default).
func (b *Builder) OrderByAscending() *Builder {
	forward := true
	b.scanIndexForward = &forward
	return b
}

// OrderByDescending sets ScanIndexForward to false.
func (b *Builder) OrderByDescending() *Builder {
	forward := false
	b.scanIndexForward = &forward
	return b
}

// ConsistentRead overrides the request's read consistency.
func (b *Builder) ConsistentRead(consistent bool) *Builder {
	b.consistentRead = &consistent
	return b
}

// PagingLimit sets the per-request page size (not a total result cap; see
// ExecLimit's limit parameter for that).
func (b *Builder) PagingLimit(n int) *Builder {
	b.limit = n
	return b
}

// Clone deep-copies accumulated predicates so the clone can be mutated
// without disturbing the original.
func (b *Builder) Clone() *Builder {
	clone := *b
	clone.keyConditions = append([]expr.Pred(nil), b.keyConditions...)
	clone.filters = append([]expr.Pred(nil), b.filters...)
	clone.projection = append([]string(nil), b.projection...)
	return &clone
}

func (b *Builder) spec() (client.RequestSpec, error) {
	if err := b.validateFields(b.keyConditions); err != nil {
		return client.RequestSpec{}, err
	}
	if err := b.validateFields(b.filters); err != nil {
		return client.RequestSpec{}, err
	}

	spec := client.RequestSpec{
		Table:            b.table,
		IndexName:        b.indexName,
		ProjectionFields: b.projection,
		Limit:            b.limit,
		ScanIndexForward: b.scanIndexForward,
		ConsistentRead:   b.consistentRead,
	}
	if len(b.keyConditions) > 0 {
		spec.KeyCondition = andAll(b.keyConditions)
	}
	if len(b.filters) > 0 {
		spec.Filter = andAll(b.filters)
	}
	if b.isQuery && spec.KeyCondition == nil {
		return spec, &pocoerrors.ExpressionError{Detail: "query requires at least one key condition"}
	}
	return spec, nil
}

func andAll(preds []expr.Pred) expr.Pred {
	if len(preds) == 1 {
		return preds[0]
	}
	return expr.And(preds...)
}

func (b *Builder) iterator() (*client.Iterator, error) {
	spec, err := b.spec()
	if err != nil {
		return nil, err
	}
	if b.isQuery {
		return b.c.Query(b.elemType, spec), nil
	}
	return b.c.Scan(b.elemType, spec), nil
}

// Exec returns a lazy iterator over the request.
func (b *Builder) Exec() (*client.Iterator, error) {
	return b.iterator()
}

// ExecLimit accumulates into a slice of the registered record type, stopping
// as soon as limit items have been collected (0 means unbounded).
func (b *Builder) ExecLimit(ctx context.Context, limit int) (reflect.Value, error) {
	it, err := b.iterator()
	if err != nil {
		return reflect.Value{}, err
	}
	return it.Collect(ctx, limit)
}
