// Package expr compiles the typed predicate DSL into DynamoDB-style
// expression strings with `#name`/`:value` placeholders.
package expr

// Pred is a node in a predicate tree built from Eq/And/Or/etc. It is the
// Go-native substitute for a host language's record->bool lambda: Go has no
// expression-tree AST to walk, so the tree is built explicitly instead, and
// every leaf's field name is a plain string validated at compile time rather
// than a captured property reference.
type Pred interface {
	// compile registers this node's placeholders on b and returns its
	// expression text.
	compile(b *Builder) (string, error)
}

// Op identifies a comparison or function predicate's operator.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLte
	OpGt
	OpGte
	OpBeginsWith
	OpContains
	OpBetween
	OpIn
	OpExists
	OpNotExists
)

type comparison struct {
	field string
	op    Op
	value any
	upper any // second operand, BETWEEN only
	list  []any
}

func (c *comparison) compile(b *Builder) (string, error) {
	return b.compileComparison(c)
}

// Field returns the comparison's target field name, used by callers that
// need to reject predicates touching a particular field (e.g. an encrypted
// one) before compilation.
func (c *comparison) Field() string { return c.field }

// Eq builds an equality predicate: field = value.
func Eq(field string, value any) Pred { return &comparison{field: field, op: OpEq, value: value} }

// Ne builds an inequality predicate: field <> value.
func Ne(field string, value any) Pred { return &comparison{field: field, op: OpNe, value: value} }

// Lt builds field < value.
func Lt(field string, value any) Pred { return &comparison{field: field, op: OpLt, value: value} }

// Lte builds field <= value.
func Lte(field string, value any) Pred { return &comparison{field: field, op: OpLte, value: value} }

// Gt builds field > value.
func Gt(field string, value any) Pred { return &comparison{field: field, op: OpGt, value: value} }

// Gte builds field >= value.
func Gte(field string, value any) Pred { return &comparison{field: field, op: OpGte, value: value} }

// BeginsWith builds begins_with(field, prefix). Valid on key conditions
// and filters alike.
func BeginsWith(field string, prefix any) Pred {
	return &comparison{field: field, op: OpBeginsWith, value: prefix}
}

// Contains builds contains(field, value). Filter-only: the store rejects it
// in a KeyConditionExpression.
func Contains(field string, value any) Pred {
	return &comparison{field: field, op: OpContains, value: value}
}

// Between builds field BETWEEN lower AND upper.
func Between(field string, lower, upper any) Pred {
	return &comparison{field: field, op: OpBetween, value: lower, upper: upper}
}

// In builds field IN (v1, v2, ...). The store caps this at 100 values.
func In(field string, values ...any) Pred {
	return &comparison{field: field, op: OpIn, list: values}
}

// Exists builds attribute_exists(field).
func Exists(field string) Pred { return &comparison{field: field, op: OpExists} }

// NotExists builds attribute_not_exists(field).
func NotExists(field string) Pred { return &comparison{field: field, op: OpNotExists} }

type logical struct {
	op    string
	terms []Pred
}

func (l *logical) compile(b *Builder) (string, error) {
	return b.compileLogical(l)
}

// And builds a conjunction of two or more predicates.
func And(terms ...Pred) Pred { return &logical{op: "AND", terms: terms} }

// Or builds a disjunction of two or more predicates.
func Or(terms ...Pred) Pred { return &logical{op: "OR", terms: terms} }

type negation struct {
	term Pred
}

func (n *negation) compile(b *Builder) (string, error) {
	return b.compileNot(n)
}

// Not negates a predicate: NOT (term).
func Not(term Pred) Pred { return &negation{term: term} }

// Fields returns every field name referenced anywhere in pred, used to
// reject predicates that touch an encrypted or unknown field before
// compilation rather than after.
func Fields(pred Pred) []string {
	var out []string
	collectFields(pred, &out)
	return out
}

func collectFields(pred Pred, out *[]string) {
	switch p := pred.(type) {
	case *comparison:
		*out = append(*out, p.field)
	case *logical:
		for _, t := range p.terms {
			collectFields(t, out)
		}
	case *negation:
		collectFields(p.term, out)
	}
}
