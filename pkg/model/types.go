// Package model derives table schema from registered Go record types:
// hash/range keys, fields, local and global secondary indexes.
package model

import (
	"reflect"
	"time"

	"github.com/pocodynamo/pocodynamo/pkg/naming"
)

// DBType is one of the store's scalar/collection attribute kinds. It is
// determined deterministically from a field's Go type at registration time.
type DBType int

const (
	String DBType = iota
	Number
	Bool
	Binary
	List
	Map
	StringSet
	NumberSet
	BinarySet
)

func (t DBType) String() string {
	switch t {
	case String:
		return "String"
	case Number:
		return "Number"
	case Bool:
		return "Bool"
	case Binary:
		return "Binary"
	case List:
		return "List"
	case Map:
		return "Map"
	case StringSet:
		return "StringSet"
	case NumberSet:
		return "NumberSet"
	case BinarySet:
		return "BinarySet"
	default:
		return "Unknown"
	}
}

// IndexKind distinguishes local from global secondary indexes.
type IndexKind int

const (
	LocalIndex IndexKind = iota
	GlobalIndex
)

// ProjectionType controls which attributes an index carries.
type ProjectionType int

const (
	ProjectKeysOnly ProjectionType = iota
	ProjectInclude
	ProjectAll
)

// FieldDescriptor describes one serialized attribute of a registered type.
type FieldDescriptor struct {
	// GoType is the field's static Go type.
	GoType reflect.Type
	// Name is the Go struct field name.
	Name string
	// DBName is the wire attribute name (after alias/convention resolution).
	DBName string
	// DBType is the deterministic wire type for this field.
	DBType DBType
	// index is the reflect.FieldByIndex path, supporting embedded structs.
	index []int

	// UseValueSerialized marks fields whose DBType is String only because
	// they fell through to the compact self-describing text encoding
	// (§4.2): a struct, interface, or other shape with no direct mapping.
	UseValueSerialized bool
	// ForceSet marks a slice field tagged to encode as a set rather than a List.
	ForceSet    bool
	IsVersion   bool
	IsCreatedAt bool
	IsUpdatedAt bool
	IsEncrypted bool
}

// Get reads this field's value out of instance (a struct or pointer-to-struct value).
func (f *FieldDescriptor) Get(instance reflect.Value) reflect.Value {
	instance = indirect(instance)
	return instance.FieldByIndex(f.index)
}

// Addr returns a settable reflect.Value for this field on instance, which
// must be a pointer to (or already be) an addressable struct.
func (f *FieldDescriptor) Addr(instance reflect.Value) reflect.Value {
	instance = indirect(instance)
	return instance.FieldByIndex(f.index)
}

func indirect(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}
	return v
}

// IndexDescriptor describes one local or global secondary index.
type IndexDescriptor struct {
	HashKey         *FieldDescriptor
	RangeKey        *FieldDescriptor
	Name            string
	ProjectedFields []string
	Kind            IndexKind
	Projection      ProjectionType
	ReadCapacity    int64
	WriteCapacity   int64
}

// TableDescriptor is the complete, immutable schema derived from a
// registered record type.
type TableDescriptor struct {
	RecordType       reflect.Type
	FieldsByName     map[string]*FieldDescriptor
	FieldsByDBName   map[string]*FieldDescriptor
	HashKey          *FieldDescriptor
	RangeKey         *FieldDescriptor
	VersionField     *FieldDescriptor
	CreatedAtField   *FieldDescriptor
	UpdatedAtField   *FieldDescriptor
	Name             string
	Fields           []*FieldDescriptor
	LocalIndexes     []IndexDescriptor
	GlobalIndexes    []IndexDescriptor
	NamingConvention naming.Convention
	ReadCapacity     int64
	WriteCapacity    int64
}

// Index looks up a local or global secondary index by name.
func (t *TableDescriptor) Index(name string) (*IndexDescriptor, bool) {
	for i := range t.LocalIndexes {
		if t.LocalIndexes[i].Name == name {
			return &t.LocalIndexes[i], true
		}
	}
	for i := range t.GlobalIndexes {
		if t.GlobalIndexes[i].Name == name {
			return &t.GlobalIndexes[i], true
		}
	}
	return nil, false
}

// IndexesOnField returns every index (local or global) for which field is
// the hash or range key, used by localIndex's single-field inference rule.
func (t *TableDescriptor) IndexesOnField(fieldName string) []*IndexDescriptor {
	var out []*IndexDescriptor
	for i := range t.LocalIndexes {
		idx := &t.LocalIndexes[i]
		if (idx.HashKey != nil && idx.HashKey.Name == fieldName) ||
			(idx.RangeKey != nil && idx.RangeKey.Name == fieldName) {
			out = append(out, idx)
		}
	}
	for i := range t.GlobalIndexes {
		idx := &t.GlobalIndexes[i]
		if (idx.HashKey != nil && idx.HashKey.Name == fieldName) ||
			(idx.RangeKey != nil && idx.RangeKey.Name == fieldName) {
			out = append(out, idx)
		}
	}
	return out
}

// HasEncryptedFields reports whether any field is tagged `encrypted`, used
// by DB.Register to fail closed at registration when no KMS key is
// configured.
func (t *TableDescriptor) HasEncryptedFields() bool {
	for _, f := range t.Fields {
		if f.IsEncrypted {
			return true
		}
	}
	return false
}

var timeType = reflect.TypeOf(time.Time{})
