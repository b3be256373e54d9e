package codec

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"time"

	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	pocoerrors "github.com/pocodynamo/pocodynamo/pkg/errors"
	"github.com/pocodynamo/pocodynamo/pkg/model"
)

// UnmarshalItem populates instance (a pointer to the registered struct type)
// from attrs. It walks table.Fields rather than the keys present in attrs,
// so a field absent from attrs is simply left at its zero value instead of
// the decoder having to guess a Go field for every wire attribute it sees.
func (c *Codec) UnmarshalItem(ctx context.Context, attrs map[string]ddbtypes.AttributeValue, instance any, table *model.TableDescriptor) error {
	v := reflect.ValueOf(instance)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("pocodynamo: instance must be a non-nil pointer")
	}
	v = v.Elem()

	for _, field := range table.Fields {
		av, ok := attrs[field.DBName]
		if !ok {
			continue
		}
		if _, isNull := av.(*ddbtypes.AttributeValueMemberNULL); isNull {
			continue
		}

		if field.IsEncrypted {
			if c.encryption == nil {
				return &pocoerrors.EncryptedFieldError{Err: pocoerrors.ErrEncryptionNotConfigured, Field: field.Name, Operation: "decrypt"}
			}
			decrypted, err := c.encryption.Decrypt(ctx, field.DBName, av)
			if err != nil {
				return &pocoerrors.EncryptedFieldError{Err: err, Field: field.Name, Operation: "decrypt"}
			}
			av = decrypted
		}

		target := field.Addr(v)
		if err := c.populateField(av, target, field); err != nil {
			return &pocoerrors.EncodingError{Err: err, Field: field.Name}
		}
	}

	return nil
}

func (c *Codec) populateField(av ddbtypes.AttributeValue, target reflect.Value, field *model.FieldDescriptor) error {
	if conv, ok := c.customConverter(target.Type()); ok {
		return conv.FromAttributeValue(av, target)
	}

	if field.UseValueSerialized {
		return c.valueDeserialize(av, target)
	}

	if field.ForceSet {
		return c.populateSet(av, target)
	}

	return c.fromAttributeValue(av, target)
}

// DecodeInto converts av into target (an addressable Go value), applying
// the same scalar/collection rules as item population. Used outside a full
// UnmarshalItem pass, e.g. to decode an UpdateItem's ReturnValues result.
func (c *Codec) DecodeInto(av ddbtypes.AttributeValue, target reflect.Value) error {
	return c.fromAttributeValue(av, target)
}

func (c *Codec) fromAttributeValue(av ddbtypes.AttributeValue, target reflect.Value) error {
	target = indirectAlloc(target)

	if target.Type() == timeType {
		s, ok := av.(*ddbtypes.AttributeValueMemberS)
		if !ok {
			return fmt.Errorf("expected string attribute for time.Time")
		}
		t, err := time.Parse(time.RFC3339Nano, s.Value)
		if err != nil {
			return err
		}
		target.Set(reflect.ValueOf(t))
		return nil
	}

	switch value := av.(type) {
	case *ddbtypes.AttributeValueMemberS:
		return stringIntoValue(value.Value, target)
	case *ddbtypes.AttributeValueMemberN:
		return numberIntoValue(value.Value, target)
	case *ddbtypes.AttributeValueMemberBOOL:
		if target.Kind() != reflect.Bool {
			return fmt.Errorf("cannot assign bool to %s", target.Kind())
		}
		target.SetBool(value.Value)
		return nil
	case *ddbtypes.AttributeValueMemberB:
		if target.Kind() != reflect.Slice || target.Type().Elem().Kind() != reflect.Uint8 {
			return fmt.Errorf("cannot assign binary to %s", target.Type())
		}
		target.SetBytes(value.Value)
		return nil
	case *ddbtypes.AttributeValueMemberL:
		return c.listIntoSlice(value.Value, target)
	case *ddbtypes.AttributeValueMemberM:
		return c.mapIntoValue(value.Value, target)
	case *ddbtypes.AttributeValueMemberSS:
		return stringSliceIntoValue(value.Value, target)
	case *ddbtypes.AttributeValueMemberNS:
		return numberSliceIntoValue(value.Value, target)
	case *ddbtypes.AttributeValueMemberBS:
		return binarySliceIntoValue(value.Value, target)
	default:
		return fmt.Errorf("unsupported attribute value type %T", av)
	}
}

func (c *Codec) populateSet(av ddbtypes.AttributeValue, target reflect.Value) error {
	target = indirectAlloc(target)
	switch value := av.(type) {
	case *ddbtypes.AttributeValueMemberSS:
		return stringSliceIntoValue(value.Value, target)
	case *ddbtypes.AttributeValueMemberNS:
		return numberSliceIntoValue(value.Value, target)
	case *ddbtypes.AttributeValueMemberBS:
		return binarySliceIntoValue(value.Value, target)
	default:
		return fmt.Errorf("expected a set attribute, got %T", av)
	}
}

func (c *Codec) listIntoSlice(items []ddbtypes.AttributeValue, target reflect.Value) error {
	if target.Kind() != reflect.Slice {
		return fmt.Errorf("cannot assign list to %s", target.Kind())
	}
	out := reflect.MakeSlice(target.Type(), len(items), len(items))
	for i, item := range items {
		if err := c.fromAttributeValue(item, out.Index(i)); err != nil {
			return err
		}
	}
	target.Set(out)
	return nil
}

func (c *Codec) mapIntoValue(m map[string]ddbtypes.AttributeValue, target reflect.Value) error {
	if target.Kind() != reflect.Map {
		return fmt.Errorf("cannot assign map to %s", target.Kind())
	}
	out := reflect.MakeMapWithSize(target.Type(), len(m))
	for k, v := range m {
		elem := reflect.New(target.Type().Elem()).Elem()
		if err := c.fromAttributeValue(v, elem); err != nil {
			return err
		}
		out.SetMapIndex(reflect.ValueOf(k), elem)
	}
	target.Set(out)
	return nil
}

func (c *Codec) valueDeserialize(av ddbtypes.AttributeValue, target reflect.Value) error {
	s, ok := av.(*ddbtypes.AttributeValueMemberS)
	if !ok {
		return fmt.Errorf("expected string attribute for value-serialized field")
	}
	target = indirectAlloc(target)
	ptr := reflect.New(target.Type())
	if err := json.Unmarshal([]byte(s.Value), ptr.Interface()); err != nil {
		return fmt.Errorf("value-deserializing %s: %w", target.Type(), err)
	}
	target.Set(ptr.Elem())
	return nil
}

func indirectAlloc(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}
	return v
}

func stringIntoValue(s string, target reflect.Value) error {
	target = indirectAlloc(target)
	if target.Kind() != reflect.String {
		return fmt.Errorf("cannot assign string to %s", target.Kind())
	}
	target.SetString(s)
	return nil
}

func numberIntoValue(n string, target reflect.Value) error {
	target = indirectAlloc(target)
	switch target.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return err
		}
		target.SetInt(i)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(n, 10, 64)
		if err != nil {
			return err
		}
		target.SetUint(u)
		return nil
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return err
		}
		target.SetFloat(f)
		return nil
	default:
		return fmt.Errorf("cannot assign number to %s", target.Kind())
	}
}

func stringSliceIntoValue(values []string, target reflect.Value) error {
	out := reflect.MakeSlice(target.Type(), len(values), len(values))
	for i, s := range values {
		out.Index(i).SetString(s)
	}
	target.Set(out)
	return nil
}

func numberSliceIntoValue(values []string, target reflect.Value) error {
	out := reflect.MakeSlice(target.Type(), len(values), len(values))
	for i, s := range values {
		if err := numberIntoValue(s, out.Index(i)); err != nil {
			return err
		}
	}
	target.Set(out)
	return nil
}

func binarySliceIntoValue(values [][]byte, target reflect.Value) error {
	out := reflect.MakeSlice(target.Type(), len(values), len(values))
	for i, b := range values {
		out.Index(i).SetBytes(b)
	}
	target.Set(out)
	return nil
}
