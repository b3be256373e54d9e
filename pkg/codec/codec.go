// Package codec converts between registered Go record values and the
// store's attribute-value wire representation.
package codec

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"sync"
	"time"

	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	pocoerrors "github.com/pocodynamo/pocodynamo/pkg/errors"
	"github.com/pocodynamo/pocodynamo/pkg/model"
)

// CustomConverter lets a caller override the wire encoding for a specific
// Go type, bypassing the codec's own reflection-based rules entirely.
type CustomConverter interface {
	ToAttributeValue(value any) (ddbtypes.AttributeValue, error)
	FromAttributeValue(av ddbtypes.AttributeValue, target reflect.Value) error
}

// EncryptionHook lets pkg/encryption intercept fields marked `encrypted` in
// the metadata registry. attributeName is bound into the envelope's
// authenticated data, so a ciphertext can't be silently moved to a
// different attribute. When nil, the codec returns
// ErrEncryptionNotConfigured for any field that needs it.
type EncryptionHook interface {
	Encrypt(ctx context.Context, attributeName string, plaintext ddbtypes.AttributeValue) (ddbtypes.AttributeValue, error)
	Decrypt(ctx context.Context, attributeName string, envelope ddbtypes.AttributeValue) (ddbtypes.AttributeValue, error)
}

// Codec converts registered record values to and from attribute maps.
type Codec struct {
	mu         sync.RWMutex
	converters map[reflect.Type]CustomConverter
	encryption EncryptionHook
	now        func() time.Time
}

// New returns a Codec with no custom converters and no encryption configured.
func New() *Codec {
	return &Codec{
		converters: make(map[reflect.Type]CustomConverter),
		now:        time.Now,
	}
}

// RegisterConverter installs a CustomConverter for t, taking priority over
// the codec's built-in reflection rules for any field or literal of that type.
func (c *Codec) RegisterConverter(t reflect.Type, conv CustomConverter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.converters[t] = conv
}

// WithEncryption installs the KMS-backed encryption hook for `encrypted`-tagged fields.
func (c *Codec) WithEncryption(hook EncryptionHook) { c.encryption = hook }

func (c *Codec) customConverter(t reflect.Type) (CustomConverter, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conv, ok := c.converters[t]
	return conv, ok
}

// Encode implements expr.ValueEncoder, letting predicate literals reuse the
// same rules as a full item's fields.
func (c *Codec) Encode(value any) (ddbtypes.AttributeValue, error) {
	return c.ToAttributeValue(value)
}

// MarshalItem converts instance into an attribute map, stamping
// created_at/updated_at fields when present. The version field is written
// with its current value; MarshalItem does not increment it.
// isUpdate controls whether created_at is stamped (only on first write).
func (c *Codec) MarshalItem(ctx context.Context, instance any, table *model.TableDescriptor, isUpdate bool) (map[string]ddbtypes.AttributeValue, error) {
	v := reflect.ValueOf(instance)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, fmt.Errorf("pocodynamo: cannot marshal nil pointer")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("pocodynamo: instance must be a struct or pointer to struct")
	}

	now := c.now().UTC().Format(time.RFC3339Nano)
	out := make(map[string]ddbtypes.AttributeValue, len(table.Fields))

	for _, field := range table.Fields {
		if field.IsCreatedAt {
			if isUpdate {
				continue // preserve the original value; don't overwrite on update
			}
			out[field.DBName] = &ddbtypes.AttributeValueMemberS{Value: now}
			continue
		}
		if field.IsUpdatedAt {
			out[field.DBName] = &ddbtypes.AttributeValueMemberS{Value: now}
			continue
		}

		fv := field.Get(v)

		if field.IsVersion {
			av, err := c.marshalVersion(fv)
			if err != nil {
				return nil, &pocoerrors.EncodingError{Err: err, Field: field.Name}
			}
			out[field.DBName] = av
			continue
		}

		av, err := c.marshalField(fv, field)
		if err != nil {
			return nil, &pocoerrors.EncodingError{Err: err, Field: field.Name}
		}

		if field.IsEncrypted {
			if c.encryption == nil {
				return nil, &pocoerrors.EncryptedFieldError{Err: pocoerrors.ErrEncryptionNotConfigured, Field: field.Name, Operation: "encrypt"}
			}
			av, err = c.encryption.Encrypt(ctx, field.DBName, av)
			if err != nil {
				return nil, &pocoerrors.EncryptedFieldError{Err: err, Field: field.Name, Operation: "encrypt"}
			}
		}

		out[field.DBName] = av
	}

	return out, nil
}

func (c *Codec) marshalVersion(fv reflect.Value) (ddbtypes.AttributeValue, error) {
	switch fv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(fv.Int(), 10)}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &ddbtypes.AttributeValueMemberN{Value: strconv.FormatUint(fv.Uint(), 10)}, nil
	default:
		return nil, fmt.Errorf("version field must be an integer type, got %s", fv.Kind())
	}
}

func (c *Codec) marshalField(fv reflect.Value, field *model.FieldDescriptor) (ddbtypes.AttributeValue, error) {
	if field.ForceSet {
		return c.marshalSet(fv, field.DBType)
	}
	return c.ToAttributeValue(fv.Interface())
}

// ToAttributeValue converts an arbitrary Go value into its wire
// representation, consulting custom converters first.
func (c *Codec) ToAttributeValue(value any) (ddbtypes.AttributeValue, error) {
	if value == nil {
		return &ddbtypes.AttributeValueMemberNULL{Value: true}, nil
	}

	if conv, ok := c.customConverter(reflect.TypeOf(value)); ok {
		return conv.ToAttributeValue(value)
	}

	return c.toAttributeValue(reflect.ValueOf(value))
}

func (c *Codec) toAttributeValue(v reflect.Value) (ddbtypes.AttributeValue, error) {
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return &ddbtypes.AttributeValueMemberNULL{Value: true}, nil
		}
		v = v.Elem()
	}

	if v.Type() == timeType {
		return &ddbtypes.AttributeValueMemberS{Value: v.Interface().(time.Time).UTC().Format(time.RFC3339Nano)}, nil
	}

	switch v.Kind() {
	case reflect.String:
		return &ddbtypes.AttributeValueMemberS{Value: v.String()}, nil
	case reflect.Bool:
		return &ddbtypes.AttributeValueMemberBOOL{Value: v.Bool()}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(v.Int(), 10)}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &ddbtypes.AttributeValueMemberN{Value: strconv.FormatUint(v.Uint(), 10)}, nil
	case reflect.Float32, reflect.Float64:
		return &ddbtypes.AttributeValueMemberN{Value: strconv.FormatFloat(v.Float(), 'g', -1, 64)}, nil
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return &ddbtypes.AttributeValueMemberB{Value: v.Bytes()}, nil
		}
		return c.sliceToList(v)
	case reflect.Map:
		return c.mapToAttributeValueMap(v)
	case reflect.Struct:
		return c.valueSerialize(v)
	default:
		return c.valueSerialize(v)
	}
}

func (c *Codec) sliceToList(v reflect.Value) (ddbtypes.AttributeValue, error) {
	items := make([]ddbtypes.AttributeValue, v.Len())
	for i := 0; i < v.Len(); i++ {
		av, err := c.toAttributeValue(v.Index(i))
		if err != nil {
			return nil, err
		}
		items[i] = av
	}
	return &ddbtypes.AttributeValueMemberL{Value: items}, nil
}

func (c *Codec) mapToAttributeValueMap(v reflect.Value) (ddbtypes.AttributeValue, error) {
	out := make(map[string]ddbtypes.AttributeValue, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		av, err := c.toAttributeValue(iter.Value())
		if err != nil {
			return nil, err
		}
		out[fmt.Sprint(iter.Key().Interface())] = av
	}
	return &ddbtypes.AttributeValueMemberM{Value: out}, nil
}

// valueSerialize encodes a value with no direct wire mapping (an arbitrary
// struct, interface, or other shape) as a compact self-describing text
// string. The decoder only takes this path when field metadata says to,
// never by inspecting the string's contents.
func (c *Codec) valueSerialize(v reflect.Value) (ddbtypes.AttributeValue, error) {
	raw, err := json.Marshal(v.Interface())
	if err != nil {
		return nil, fmt.Errorf("value-serializing %s: %w", v.Type(), err)
	}
	return &ddbtypes.AttributeValueMemberS{Value: string(raw)}, nil
}

func (c *Codec) marshalSet(v reflect.Value, dbType model.DBType) (ddbtypes.AttributeValue, error) {
	switch dbType {
	case model.StringSet:
		values := make([]string, v.Len())
		for i := range values {
			values[i] = v.Index(i).String()
		}
		return &ddbtypes.AttributeValueMemberSS{Value: values}, nil
	case model.NumberSet:
		values := make([]string, v.Len())
		for i := 0; i < v.Len(); i++ {
			av, err := c.toAttributeValue(v.Index(i))
			if err != nil {
				return nil, err
			}
			n, ok := av.(*ddbtypes.AttributeValueMemberN)
			if !ok {
				return nil, fmt.Errorf("set element is not numeric")
			}
			values[i] = n.Value
		}
		return &ddbtypes.AttributeValueMemberNS{Value: values}, nil
	case model.BinarySet:
		values := make([][]byte, v.Len())
		for i := range values {
			values[i] = v.Index(i).Bytes()
		}
		return &ddbtypes.AttributeValueMemberBS{Value: values}, nil
	default:
		return nil, fmt.Errorf("field is not a recognized set type")
	}
}

var timeType = reflect.TypeOf(time.Time{})
