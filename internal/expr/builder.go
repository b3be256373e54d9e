package expr

import (
	"fmt"
	"strings"

	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	pocoerrors "github.com/pocodynamo/pocodynamo/pkg/errors"
)

// ValueEncoder converts a Go value into the store's attribute-value wire
// representation. The codec package supplies the concrete implementation;
// expr depends only on this narrow interface to avoid a cyclic import.
type ValueEncoder interface {
	Encode(value any) (ddbtypes.AttributeValue, error)
}

// Components holds the compiled pieces of a request: placeholder-bearing
// expression strings plus the maps that resolve those placeholders.
type Components struct {
	KeyConditionExpression   string
	FilterExpression         string
	ConditionExpression      string
	UpdateExpression         string
	ProjectionExpression     string
	ExpressionAttributeNames map[string]string
	ExpressionAttributeValues map[string]ddbtypes.AttributeValue
}

// Builder accumulates key conditions, filters, a write condition,
// projections, and update clauses, then compiles them into a Components
// value with `#name`/`:value` placeholders. Name placeholders are
// deduplicated per attribute; every literal value gets its own `:value`.
type Builder struct {
	encoder ValueEncoder

	names  map[string]string
	values map[string]ddbtypes.AttributeValue

	nameSeq  int
	valueSeq int

	keyConditions []string
	filters       []string
	conditions    []string
	projections   []string

	updateSet    []string
	updateAdd    []string
	updateRemove []string
	updateDelete []string
}

// NewBuilder returns a Builder that encodes literal values via encoder.
func NewBuilder(encoder ValueEncoder) *Builder {
	return &Builder{
		encoder: encoder,
		names:   make(map[string]string),
		values:  make(map[string]ddbtypes.AttributeValue),
	}
}

// Clone returns a deep copy, used by the query builder's Clone() so that
// branching off an in-progress query never lets the branches share state.
func (b *Builder) Clone() *Builder {
	clone := NewBuilder(b.encoder)
	clone.nameSeq, clone.valueSeq = b.nameSeq, b.valueSeq
	clone.keyConditions = append(clone.keyConditions, b.keyConditions...)
	clone.filters = append(clone.filters, b.filters...)
	clone.conditions = append(clone.conditions, b.conditions...)
	clone.projections = append(clone.projections, b.projections...)
	clone.updateSet = append(clone.updateSet, b.updateSet...)
	clone.updateAdd = append(clone.updateAdd, b.updateAdd...)
	clone.updateRemove = append(clone.updateRemove, b.updateRemove...)
	clone.updateDelete = append(clone.updateDelete, b.updateDelete...)
	for k, v := range b.names {
		clone.names[k] = v
	}
	for k, v := range b.values {
		clone.values[k] = v
	}
	return clone
}

// AddKeyCondition compiles pred into the KeyConditionExpression clause.
func (b *Builder) AddKeyCondition(pred Pred) error {
	text, err := pred.compile(b)
	if err != nil {
		return err
	}
	b.keyConditions = append(b.keyConditions, text)
	return nil
}

// AddFilter compiles pred into the FilterExpression clause.
func (b *Builder) AddFilter(pred Pred) error {
	text, err := pred.compile(b)
	if err != nil {
		return err
	}
	b.filters = append(b.filters, text)
	return nil
}

// AddCondition compiles pred into the write-side ConditionExpression clause.
func (b *Builder) AddCondition(pred Pred) error {
	text, err := pred.compile(b)
	if err != nil {
		return err
	}
	b.conditions = append(b.conditions, text)
	return nil
}

// AddProjection adds field to the ProjectionExpression clause.
func (b *Builder) AddProjection(field string) {
	b.projections = append(b.projections, b.nameRef(field))
}

// SetField adds `field = value` to the SET clause.
func (b *Builder) SetField(field string, value any) error {
	valueRef, err := b.valueRef(value)
	if err != nil {
		return err
	}
	b.updateSet = append(b.updateSet, fmt.Sprintf("%s = %s", b.nameRef(field), valueRef))
	return nil
}

// SetFieldIfNotExists adds `field = if_not_exists(field, fallback)` to the
// SET clause, used for a create-time default on an upsert-style put.
func (b *Builder) SetFieldIfNotExists(field string, fallback any) error {
	valueRef, err := b.valueRef(fallback)
	if err != nil {
		return err
	}
	ref := b.nameRef(field)
	b.updateSet = append(b.updateSet, fmt.Sprintf("%s = if_not_exists(%s, %s)", ref, ref, valueRef))
	return nil
}

// AppendToList adds `field = list_append(field, values)` to the SET clause.
func (b *Builder) AppendToList(field string, values any) error {
	valueRef, err := b.valueRef(values)
	if err != nil {
		return err
	}
	ref := b.nameRef(field)
	b.updateSet = append(b.updateSet, fmt.Sprintf("%s = list_append(%s, %s)", ref, ref, valueRef))
	return nil
}

// AddToNumber adds `field delta` to the ADD clause (numeric increment).
func (b *Builder) AddToNumber(field string, delta any) error {
	valueRef, err := b.valueRef(delta)
	if err != nil {
		return err
	}
	b.updateAdd = append(b.updateAdd, fmt.Sprintf("%s %s", b.nameRef(field), valueRef))
	return nil
}

// AddToSet adds `field value` to the ADD clause (set union).
func (b *Builder) AddToSet(field string, value any) error {
	valueRef, err := b.valueRef(value)
	if err != nil {
		return err
	}
	b.updateAdd = append(b.updateAdd, fmt.Sprintf("%s %s", b.nameRef(field), valueRef))
	return nil
}

// RemoveField adds field to the REMOVE clause.
func (b *Builder) RemoveField(field string) {
	b.updateRemove = append(b.updateRemove, b.nameRef(field))
}

// DeleteFromSet adds `field value` to the DELETE clause (set subtraction).
func (b *Builder) DeleteFromSet(field string, value any) error {
	valueRef, err := b.valueRef(value)
	if err != nil {
		return err
	}
	b.updateDelete = append(b.updateDelete, fmt.Sprintf("%s %s", b.nameRef(field), valueRef))
	return nil
}

// Build compiles every accumulated clause into a Components value.
func (b *Builder) Build() Components {
	c := Components{
		ExpressionAttributeNames:  b.names,
		ExpressionAttributeValues: b.values,
	}

	if len(b.keyConditions) > 0 {
		c.KeyConditionExpression = strings.Join(b.keyConditions, " AND ")
	}
	if len(b.filters) > 0 {
		c.FilterExpression = strings.Join(b.filters, " AND ")
	}
	if len(b.conditions) > 0 {
		c.ConditionExpression = strings.Join(b.conditions, " AND ")
	}
	if len(b.projections) > 0 {
		c.ProjectionExpression = strings.Join(b.projections, ", ")
	}

	var clauses []string
	if len(b.updateSet) > 0 {
		clauses = append(clauses, "SET "+strings.Join(b.updateSet, ", "))
	}
	if len(b.updateAdd) > 0 {
		clauses = append(clauses, "ADD "+strings.Join(b.updateAdd, ", "))
	}
	if len(b.updateRemove) > 0 {
		clauses = append(clauses, "REMOVE "+strings.Join(b.updateRemove, ", "))
	}
	if len(b.updateDelete) > 0 {
		clauses = append(clauses, "DELETE "+strings.Join(b.updateDelete, ", "))
	}
	if len(clauses) > 0 {
		c.UpdateExpression = strings.Join(clauses, " ")
	}

	return c
}

// nameRef returns this field's `#n<N>` (or `#RESERVED`) placeholder,
// reusing an existing one if the field was already referenced.
func (b *Builder) nameRef(field string) string {
	for placeholder, name := range b.names {
		if name == field {
			return placeholder
		}
	}

	if reservedWords[strings.ToUpper(field)] {
		placeholder := "#" + strings.ToUpper(field)
		b.names[placeholder] = field
		return placeholder
	}

	b.nameSeq++
	placeholder := fmt.Sprintf("#n%d", b.nameSeq)
	b.names[placeholder] = field
	return placeholder
}

// valueRef encodes value and returns its `:v<N>` placeholder.
func (b *Builder) valueRef(value any) (string, error) {
	av, err := b.encoder.Encode(value)
	if err != nil {
		return "", &pocoerrors.ExpressionError{Err: err, Detail: "encoding predicate value"}
	}
	b.valueSeq++
	placeholder := fmt.Sprintf(":v%d", b.valueSeq)
	b.values[placeholder] = av
	return placeholder, nil
}

func (b *Builder) compileComparison(c *comparison) (string, error) {
	ref := b.nameRef(c.field)

	switch c.op {
	case OpEq:
		return b.binary(ref, "=", c.value)
	case OpNe:
		return b.binary(ref, "<>", c.value)
	case OpLt:
		return b.binary(ref, "<", c.value)
	case OpLte:
		return b.binary(ref, "<=", c.value)
	case OpGt:
		return b.binary(ref, ">", c.value)
	case OpGte:
		return b.binary(ref, ">=", c.value)
	case OpBeginsWith:
		return b.fn1(ref, "begins_with", c.value)
	case OpContains:
		return b.fn1(ref, "contains", c.value)
	case OpBetween:
		lowRef, err := b.valueRef(c.value)
		if err != nil {
			return "", err
		}
		highRef, err := b.valueRef(c.upper)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", ref, lowRef, highRef), nil
	case OpIn:
		if len(c.list) == 0 {
			return "", &pocoerrors.ExpressionError{Detail: "IN requires at least one value"}
		}
		if len(c.list) > 100 {
			return "", &pocoerrors.ExpressionError{Detail: "IN supports at most 100 values"}
		}
		refs := make([]string, 0, len(c.list))
		for _, v := range c.list {
			vr, err := b.valueRef(v)
			if err != nil {
				return "", err
			}
			refs = append(refs, vr)
		}
		return fmt.Sprintf("%s IN (%s)", ref, strings.Join(refs, ", ")), nil
	case OpExists:
		return fmt.Sprintf("attribute_exists(%s)", ref), nil
	case OpNotExists:
		return fmt.Sprintf("attribute_not_exists(%s)", ref), nil
	default:
		return "", &pocoerrors.ExpressionError{Err: pocoerrors.ErrUnsupportedOperator}
	}
}

func (b *Builder) binary(ref, op string, value any) (string, error) {
	valueRef, err := b.valueRef(value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %s", ref, op, valueRef), nil
}

func (b *Builder) fn1(ref, fn string, value any) (string, error) {
	valueRef, err := b.valueRef(value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s(%s, %s)", fn, ref, valueRef), nil
}

func (b *Builder) compileLogical(l *logical) (string, error) {
	if len(l.terms) == 0 {
		return "", &pocoerrors.ExpressionError{Detail: "empty " + l.op + " predicate"}
	}
	parts := make([]string, 0, len(l.terms))
	for _, term := range l.terms {
		text, err := term.compile(b)
		if err != nil {
			return "", err
		}
		parts = append(parts, text)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, " "+l.op+" ") + ")", nil
}

func (b *Builder) compileNot(n *negation) (string, error) {
	text, err := n.term.compile(b)
	if err != nil {
		return "", err
	}
	return "NOT (" + text + ")", nil
}
