// Package naming resolves Go struct field and type names to wire-level
// attribute and table names.
package naming

import (
	"reflect"
	"strings"
	"sync"

	"github.com/gertd/go-pluralize"
)

// Convention controls how a field's Go name is converted to a wire
// attribute name when no explicit alias is given.
type Convention int

const (
	// CamelCase lower-cases the leading run of capitals: "CustomerId" -> "customerId".
	CamelCase Convention = iota
	// SnakeCase converts "CustomerId" -> "customer_id".
	SnakeCase
)

var pluralizeClient = sync.OnceValue(func() *pluralize.Client {
	return pluralize.NewClient()
})

// TableName resolves the wire table name for a registered type: a
// TableName() string method takes priority, then the type name pluralized.
func TableName(t reflect.Type) string {
	if name, ok := tableNameFromMethod(t); ok {
		return name
	}
	return pluralizeClient().Plural(t.Name())
}

func tableNameFromMethod(t reflect.Type) (string, bool) {
	for _, recv := range []reflect.Value{reflect.New(t), reflect.New(t).Elem()} {
		method := recv.MethodByName("TableName")
		if !method.IsValid() || method.Type().NumIn() != 0 || method.Type().NumOut() != 1 {
			continue
		}
		if method.Type().Out(0).Kind() != reflect.String {
			continue
		}
		out := method.Call(nil)
		if name := out[0].String(); name != "" {
			return name, true
		}
	}
	return "", false
}

// AttrName converts a Go field name to a wire attribute name under convention.
func AttrName(fieldName string, convention Convention) string {
	switch convention {
	case SnakeCase:
		return toSnakeCase(fieldName)
	default:
		return toCamelCase(fieldName)
	}
}

func toCamelCase(name string) string {
	if name == "" {
		return ""
	}
	if name == "PK" || name == "SK" {
		return name
	}

	runes := []rune(name)
	if len(runes) == 1 {
		return strings.ToLower(name)
	}

	boundary := 1
	for boundary < len(runes) {
		upper := runeIsUpper(runes[boundary])
		if !upper {
			break
		}
		if boundary+1 < len(runes) && !runeIsUpper(runes[boundary+1]) {
			break
		}
		boundary++
	}

	prefix := strings.ToLower(string(runes[:boundary]))
	return prefix + string(runes[boundary:])
}

func toSnakeCase(name string) string {
	if name == "" {
		return ""
	}
	runes := []rune(name)
	if len(runes) == 1 {
		return strings.ToLower(name)
	}

	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	for i, ch := range runes {
		if runeIsUpper(ch) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && !runeIsUpper(runes[i+1])
				if !runeIsDigit(prev) && (!runeIsUpper(prev) || nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(toLowerRune(ch))
			continue
		}
		b.WriteRune(toLowerRune(ch))
	}

	return b.String()
}

func runeIsUpper(r rune) bool { return r >= 'A' && r <= 'Z' }
func runeIsDigit(r rune) bool { return r >= '0' && r <= '9' }
func toLowerRune(r rune) rune {
	if runeIsUpper(r) {
		return r + ('a' - 'A')
	}
	return r
}
