package model

import (
	"reflect"
	"strings"
	"sync"

	pocoerrors "github.com/pocodynamo/pocodynamo/pkg/errors"
	"github.com/pocodynamo/pocodynamo/pkg/naming"
)

// Registry caches the TableDescriptor derived from each registered Go type.
// Register is idempotent: registering the same type twice returns the
// cached descriptor without re-parsing it.
type Registry struct {
	byType  map[reflect.Type]*TableDescriptor
	byTable map[string]*TableDescriptor
	mu      sync.RWMutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byType:  make(map[reflect.Type]*TableDescriptor),
		byTable: make(map[string]*TableDescriptor),
	}
}

// CompositeKey pins a type's hash and, optionally, range key by field name,
// taking priority over every other resolution rule. It resolves the
// composite-index ambiguity that an inferred single-field annotation can't:
// the names it carries are never guessed from field order or from a struct
// tag alone.
type CompositeKey struct {
	HashField  string
	RangeField string
}

// RegisterOption customizes Register beyond what struct tags express.
type RegisterOption func(*registerConfig)

type registerConfig struct {
	composite     *CompositeKey
	readCapacity  int64
	writeCapacity int64
}

// WithCompositeKey pins the hash (and optional range) key by field name.
func WithCompositeKey(hashField, rangeField string) RegisterOption {
	return func(c *registerConfig) {
		c.composite = &CompositeKey{HashField: hashField, RangeField: rangeField}
	}
}

// WithCapacity sets the table's default provisioned throughput.
func WithCapacity(read, write int64) RegisterOption {
	return func(c *registerConfig) {
		c.readCapacity, c.writeCapacity = read, write
	}
}

// Register derives a TableDescriptor from recordType (a struct or pointer to
// struct) and caches it. Calling Register again with the same type is a
// no-op that returns the cached descriptor.
func (r *Registry) Register(recordType any, opts ...RegisterOption) (*TableDescriptor, error) {
	t := reflect.TypeOf(recordType)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, &pocoerrors.SchemaError{RecordType: t.String(), Detail: "registered type must be a struct"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byType[t]; ok {
		return existing, nil
	}

	cfg := &registerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	table, err := buildTableDescriptor(t, cfg)
	if err != nil {
		return nil, err
	}

	r.byType[t] = table
	r.byTable[table.Name] = table
	return table, nil
}

// Lookup returns the descriptor registered for recordType, if any.
func (r *Registry) Lookup(recordType any) (*TableDescriptor, bool) {
	t := reflect.TypeOf(recordType)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	table, ok := r.byType[t]
	return table, ok
}

// LookupType is Lookup for a reflect.Type rather than a value.
func (r *Registry) LookupType(t reflect.Type) (*TableDescriptor, bool) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	table, ok := r.byType[t]
	return table, ok
}

// LookupByName returns the descriptor for the given wire table name.
func (r *Registry) LookupByName(tableName string) (*TableDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	table, ok := r.byTable[tableName]
	return table, ok
}

// All returns every registered descriptor, in no particular order.
func (r *Registry) All() []*TableDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*TableDescriptor, 0, len(r.byType))
	for _, table := range r.byType {
		out = append(out, table)
	}
	return out
}

func buildTableDescriptor(t reflect.Type, cfg *registerConfig) (*TableDescriptor, error) {
	table := &TableDescriptor{
		RecordType:       t,
		FieldsByName:     make(map[string]*FieldDescriptor),
		FieldsByDBName:   make(map[string]*FieldDescriptor),
		Name:             naming.TableName(t),
		NamingConvention: detectNamingConvention(t),
		ReadCapacity:     cfg.readCapacity,
		WriteCapacity:    cfg.writeCapacity,
	}

	pendingIndexes := map[string]*IndexDescriptor{}
	if err := collectFields(t, table, pendingIndexes, nil); err != nil {
		return nil, err
	}

	if len(table.Fields) == 0 {
		return nil, &pocoerrors.SchemaError{Err: pocoerrors.ErrNoSerializableFields, RecordType: t.String()}
	}

	if err := resolveKeys(table, cfg); err != nil {
		return nil, err
	}

	for _, idx := range pendingIndexes {
		if idx.Kind == LocalIndex && idx.HashKey == nil {
			idx.HashKey = table.HashKey
		}
		if idx.HashKey == nil {
			return nil, &pocoerrors.SchemaError{
				RecordType: t.String(),
				Detail:     "index " + idx.Name + " has no hash key",
			}
		}
		if idx.Kind == LocalIndex {
			table.LocalIndexes = append(table.LocalIndexes, *idx)
		} else {
			table.GlobalIndexes = append(table.GlobalIndexes, *idx)
		}
	}

	return table, nil
}

// detectNamingConvention looks for a blank identifier field tagged
// `pocodynamo:"naming:snake_case"` as the type-level convention switch.
func detectNamingConvention(t reflect.Type) naming.Convention {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Name != "_" {
			continue
		}
		raw := field.Tag.Get("pocodynamo")
		tag, err := parseTag(raw)
		if err != nil {
			continue
		}
		switch tag.namingOverride {
		case "snake_case":
			return naming.SnakeCase
		case "camel_case":
			return naming.CamelCase
		}
	}
	return naming.CamelCase
}

func collectFields(t reflect.Type, table *TableDescriptor, pendingIndexes map[string]*IndexDescriptor, path []int) error {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldPath := appendPath(path, i)

		if field.Name == "_" {
			continue
		}
		if !field.IsExported() {
			continue
		}
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			if err := collectFields(field.Type, table, pendingIndexes, fieldPath); err != nil {
				return err
			}
			continue
		}

		raw := field.Tag.Get("pocodynamo")
		tag, err := parseTag(raw)
		if err != nil {
			return &pocoerrors.SchemaError{Err: err, RecordType: t.String(), Detail: "field " + field.Name}
		}
		if tag.skip {
			continue
		}

		desc, err := buildFieldDescriptor(field, fieldPath, tag, table.NamingConvention)
		if err != nil {
			return &pocoerrors.SchemaError{Err: err, RecordType: t.String(), Detail: "field " + field.Name}
		}

		if tag.isEncrypted && (tag.isHash || tag.isRange || len(tag.indexRoles) > 0) {
			return &pocoerrors.SchemaError{
				RecordType: t.String(),
				Detail:     "field " + field.Name + " cannot be both encrypted and a key/index field",
			}
		}

		table.Fields = append(table.Fields, desc)
		table.FieldsByName[desc.Name] = desc
		table.FieldsByDBName[desc.DBName] = desc

		if desc.IsVersion {
			table.VersionField = desc
		}
		if desc.IsCreatedAt {
			table.CreatedAtField = desc
		}
		if desc.IsUpdatedAt {
			table.UpdatedAtField = desc
		}

		if tag.isHash {
			if table.HashKey != nil {
				return &pocoerrors.SchemaError{Err: pocoerrors.ErrDuplicateHashKey, RecordType: t.String()}
			}
			table.HashKey = desc
		}
		if tag.isRange {
			table.RangeKey = desc
		}

		for name, role := range tag.indexRoles {
			idx := pendingIndexes[name]
			if idx == nil {
				idx = &IndexDescriptor{Name: name, Kind: role.kind, ProjectedFields: role.project}
				if role.projType == "INCLUDE" {
					idx.Projection = ProjectInclude
				} else {
					idx.Projection = ProjectKeysOnly
				}
				pendingIndexes[name] = idx
			}
			if role.isHash {
				idx.HashKey = desc
			}
			if role.isRange {
				idx.RangeKey = desc
			}
		}
	}
	return nil
}

func appendPath(path []int, i int) []int {
	out := make([]int, len(path)+1)
	copy(out, path)
	out[len(path)] = i
	return out
}

// resolveKeys settles the table's hash/range keys: a CompositeKey option
// overrides any tagged keys; otherwise §4.1's fallback resolution order
// applies only when no field carried an explicit hash tag.
func resolveKeys(table *TableDescriptor, cfg *registerConfig) error {
	if cfg.composite != nil {
		hash, ok := table.FieldsByName[cfg.composite.HashField]
		if !ok {
			return &pocoerrors.SchemaError{
				RecordType: table.RecordType.String(),
				Detail:     "composite key hash field " + cfg.composite.HashField + " not found",
			}
		}
		table.HashKey = hash
		if cfg.composite.RangeField != "" {
			rng, ok := table.FieldsByName[cfg.composite.RangeField]
			if !ok {
				return &pocoerrors.SchemaError{
					RecordType: table.RecordType.String(),
					Detail:     "composite key range field " + cfg.composite.RangeField + " not found",
				}
			}
			table.RangeKey = rng
		}
		return nil
	}

	if table.HashKey == nil {
		typeName := table.RecordType.Name()
		for _, candidate := range []string{"Id", typeName + "Id"} {
			if desc, ok := findFieldCaseInsensitive(table, candidate); ok {
				table.HashKey = desc
				break
			}
		}
	}

	if table.HashKey == nil && len(table.Fields) > 0 {
		table.HashKey = table.Fields[0]
	}

	if table.HashKey == nil {
		return &pocoerrors.SchemaError{Err: pocoerrors.ErrMissingHashKey, RecordType: table.RecordType.String()}
	}

	if table.RangeKey == nil {
		if desc, ok := findFieldCaseInsensitive(table, "RangeKey"); ok && desc != table.HashKey {
			table.RangeKey = desc
		}
	}

	return nil
}

func findFieldCaseInsensitive(table *TableDescriptor, name string) (*FieldDescriptor, bool) {
	for _, f := range table.Fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return nil, false
}

func buildFieldDescriptor(field reflect.StructField, path []int, tag parsedTag, convention naming.Convention) (*FieldDescriptor, error) {
	dbName := tag.attrName
	if dbName == "" {
		dbName = naming.AttrName(field.Name, convention)
	}

	if tag.isCreatedAt || tag.isUpdatedAt {
		if field.Type != timeType {
			return nil, pocoerrors.ErrUnsupportedType
		}
	}

	dbType, forceSet := inferDBType(field.Type, tag.isSet)

	return &FieldDescriptor{
		GoType:             field.Type,
		Name:               field.Name,
		DBName:             dbName,
		DBType:             dbType,
		index:              path,
		UseValueSerialized: dbType == String && !isNativeString(field.Type),
		ForceSet:           forceSet,
		IsVersion:          tag.isVersion,
		IsCreatedAt:        tag.isCreatedAt,
		IsUpdatedAt:        tag.isUpdatedAt,
		IsEncrypted:        tag.isEncrypted,
	}, nil
}

func isNativeString(t reflect.Type) bool {
	return t.Kind() == reflect.String
}

// inferDBType deterministically maps a Go field type to its wire DBType,
// per §4.2. forceSet reports whether a slice field should encode as a
// Set rather than a List (only meaningful when DBType is a *Set variant).
func inferDBType(t reflect.Type, wantSet bool) (DBType, bool) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.String:
		return String, false
	case reflect.Bool:
		return Bool, false
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return Number, false
	case reflect.Struct:
		if t == timeType {
			return String, false
		}
		return String, false // value-serialized fallback
	case reflect.Slice, reflect.Array:
		elem := t.Elem()
		if elem.Kind() == reflect.Uint8 {
			return Binary, false
		}
		if wantSet {
			switch elemScalarKind(elem) {
			case reflect.String:
				return StringSet, true
			case reflect.Int, reflect.Int64, reflect.Float64:
				return NumberSet, true
			case reflect.Uint8:
				return BinarySet, true
			}
		}
		return List, false
	case reflect.Map:
		return Map, false
	default:
		return String, false // value-serialized fallback for interfaces, funcs, chans
	}
}

func elemScalarKind(t reflect.Type) reflect.Kind {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return reflect.Int
	case reflect.Uint8:
		return reflect.Uint8
	default:
		return t.Kind()
	}
}
