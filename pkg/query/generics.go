package query

import (
	"context"
	"reflect"

	pocoerrors "github.com/pocodynamo/pocodynamo/pkg/errors"
)

// ExecInto drains b into a []R, decoding each item against R's own
// registered shape rather than the builder's base record type. Used with a
// narrowing Select/SelectTableFields projection to read a subset of columns
// into a lighter-weight type.
func ExecInto[R any](ctx context.Context, b *Builder) ([]R, error) {
	var zero R
	rType := reflect.TypeOf(zero)
	for rType != nil && rType.Kind() == reflect.Ptr {
		rType = rType.Elem()
	}
	rTable, ok := b.c.Registry().LookupType(rType)
	if !ok {
		return nil, &pocoerrors.SchemaError{RecordType: rType.String(), Detail: "type is not registered"}
	}

	it, err := b.iterator()
	if err != nil {
		return nil, err
	}

	var out []R
	for {
		item, ok := it.NextRaw(ctx)
		if !ok {
			break
		}
		var r R
		if err := b.c.Codec().UnmarshalItem(ctx, item, &r, rTable); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, it.Err()
}

// ExecColumn drains b, decoding only the named field of each result row
// into a []K. field is the registered Go struct field name.
func ExecColumn[K any](ctx context.Context, b *Builder, field string) ([]K, error) {
	fd, ok := b.table.FieldsByName[field]
	if !ok {
		return nil, &pocoerrors.SchemaError{RecordType: b.table.Name, Detail: "unknown field " + field}
	}

	narrowed := b.Clone()
	narrowed.projection = []string{fd.DBName}

	it, err := narrowed.iterator()
	if err != nil {
		return nil, err
	}

	var out []K
	for {
		item, ok := it.NextRaw(ctx)
		if !ok {
			break
		}
		var zero K
		target := reflect.ValueOf(&zero).Elem()
		if av, ok := item[fd.DBName]; ok {
			if err := b.c.Codec().DecodeInto(av, target); err != nil {
				return nil, err
			}
		}
		out = append(out, zero)
	}
	return out, it.Err()
}
