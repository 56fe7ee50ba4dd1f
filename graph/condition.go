package graph

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Op is a condition operator.
type Op int

const (
	OpUnknown Op = iota
	OpEq
	OpNe
	OpGt
	OpLt
	OpGe
	OpLe
	OpBetween
	OpIn
	OpNotIn
	OpContains
	OpNotContains
	OpStartsWith
	OpEndsWith
	OpExists
	OpNotExists
	OpRegex
)

var opNames = map[Op]string{
	OpEq:          "=",
	OpNe:          "!=",
	OpGt:          ">",
	OpLt:          "<",
	OpGe:          ">=",
	OpLe:          "<=",
	OpBetween:     "between",
	OpIn:          "in",
	OpNotIn:       "not_in",
	OpContains:    "contains",
	OpNotContains: "not_contains",
	OpStartsWith:  "starts_with",
	OpEndsWith:    "ends_with",
	OpExists:      "exists",
	OpNotExists:   "not_exists",
	OpRegex:       "regex",
}

// ParseOp resolves an operator name. Unrecognized names return OpUnknown.
func ParseOp(s string) (Op, bool) {
	for op, name := range opNames {
		if name == s {
			return op, true
		}
	}
	return OpUnknown, false
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return "unknown"
}

// Clause is one operator applied to one operand. The operand shape depends
// on the operator: a two-element slice for between, a slice for in/not_in,
// a scalar otherwise.
type Clause struct {
	Op      Op
	Operand any
	// name keeps the original spelling of an unknown operator so it
	// round-trips through JSON.
	name string
}

// Condition is a predicate over a single attribute value. The zero value
// matches everything. A condition holds either a bare scalar (equality) or
// one or more clauses that must all hold.
type Condition struct {
	Scalar  any
	Clauses []Clause
}

// Eq returns the bare-scalar condition value == v.
func Eq(v any) Condition { return Condition{Scalar: v} }

// Where returns a single-clause condition.
func Where(op Op, operand any) Condition {
	return Condition{Clauses: []Clause{{Op: op, Operand: operand}}}
}

// Between returns the inclusive range condition lo <= value <= hi.
func Between(lo, hi any) Condition { return Where(OpBetween, []any{lo, hi}) }

// And adds a clause to the condition.
func (c Condition) And(op Op, operand any) Condition {
	out := Condition{Scalar: c.Scalar, Clauses: append(append([]Clause(nil), c.Clauses...), Clause{Op: op, Operand: operand})}
	return out
}

// IsZero reports whether the condition imposes no constraint.
func (c Condition) IsZero() bool {
	return c.Scalar == nil && len(c.Clauses) == 0
}

// Has reports whether any clause uses op.
func (c Condition) Has(op Op) bool {
	for _, cl := range c.Clauses {
		if cl.Op == op {
			return true
		}
	}
	return false
}

// First returns the first clause's operator and operand, or OpEq and the
// scalar for a bare-scalar condition.
func (c Condition) First() (Op, any) {
	if len(c.Clauses) > 0 {
		return c.Clauses[0].Op, c.Clauses[0].Operand
	}
	return OpEq, c.Scalar
}

// Value returns the condition's primary operand (the scalar, or the first
// clause's operand).
func (c Condition) Value() any {
	_, v := c.First()
	return v
}

func (c Condition) String() string {
	if c.IsZero() {
		return ""
	}
	if len(c.Clauses) == 0 {
		return fmt.Sprint(c.Scalar)
	}
	parts := make([]string, 0, len(c.Clauses))
	for _, cl := range c.Clauses {
		name := cl.Op.String()
		if cl.Op == OpUnknown && cl.name != "" {
			name = cl.name
		}
		parts = append(parts, fmt.Sprintf("%s %v", name, cl.Operand))
	}
	return strings.Join(parts, " and ")
}

// MarshalJSON encodes the condition in the data-file shape: a bare scalar
// or an operator map such as {"between": [2015, 2020]}.
func (c Condition) MarshalJSON() ([]byte, error) {
	if len(c.Clauses) == 0 {
		return json.Marshal(c.Scalar)
	}
	m := make(map[string]any, len(c.Clauses))
	for _, cl := range c.Clauses {
		name := cl.Op.String()
		if cl.Op == OpUnknown && cl.name != "" {
			name = cl.name
		}
		m[name] = cl.Operand
	}
	return json.Marshal(m)
}

// UnmarshalJSON accepts the data-file shape.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = ParseCondition(raw)
	return nil
}

// ParseCondition converts a decoded JSON/YAML value into a Condition. A map
// becomes one clause per key (sorted for stable order); anything else is a
// bare scalar. Unknown operator keys are kept as OpUnknown clauses, which
// never match.
func ParseCondition(raw any) Condition {
	m, ok := raw.(map[string]any)
	if !ok {
		return Condition{Scalar: raw}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var c Condition
	for _, k := range keys {
		op, _ := ParseOp(k)
		c.Clauses = append(c.Clauses, Clause{Op: op, Operand: m[k], name: k})
	}
	return c
}

// Evaluate reports whether value satisfies cond.
//
// A zero condition always matches. A nil value fails every clause except
// exists (false), not_exists (true) and not_contains (true).
func Evaluate(value any, cond Condition) bool {
	if cond.IsZero() {
		return true
	}
	if len(cond.Clauses) == 0 {
		if value == nil {
			return false
		}
		return valuesEqual(value, cond.Scalar)
	}
	for _, cl := range cond.Clauses {
		if !evalClause(value, cl) {
			return false
		}
	}
	return true
}

func evalClause(value any, cl Clause) bool {
	if value == nil {
		switch cl.Op {
		case OpNotExists, OpNotContains:
			return true
		default:
			return false
		}
	}

	switch cl.Op {
	case OpEq:
		return valuesEqual(value, cl.Operand)
	case OpNe:
		return !valuesEqual(value, cl.Operand)
	case OpGt:
		c, ok := compare(value, cl.Operand)
		return ok && c > 0
	case OpLt:
		c, ok := compare(value, cl.Operand)
		return ok && c < 0
	case OpGe:
		c, ok := compare(value, cl.Operand)
		return ok && c >= 0
	case OpLe:
		c, ok := compare(value, cl.Operand)
		return ok && c <= 0
	case OpBetween:
		bounds, ok := asSlice(cl.Operand)
		if !ok || len(bounds) != 2 {
			return false
		}
		lo, okLo := compare(value, bounds[0])
		hi, okHi := compare(value, bounds[1])
		return okLo && okHi && lo >= 0 && hi <= 0
	case OpIn:
		return member(value, cl.Operand)
	case OpNotIn:
		return !member(value, cl.Operand)
	case OpContains:
		return !isFalsy(value) && strings.Contains(fmt.Sprint(value), fmt.Sprint(cl.Operand))
	case OpNotContains:
		return isFalsy(value) || !strings.Contains(fmt.Sprint(value), fmt.Sprint(cl.Operand))
	case OpStartsWith:
		return !isFalsy(value) && strings.HasPrefix(fmt.Sprint(value), fmt.Sprint(cl.Operand))
	case OpEndsWith:
		return !isFalsy(value) && strings.HasSuffix(fmt.Sprint(value), fmt.Sprint(cl.Operand))
	case OpExists:
		return true
	case OpNotExists:
		return false
	case OpRegex:
		if isFalsy(value) {
			return false
		}
		re, err := regexp.Compile(fmt.Sprint(cl.Operand))
		if err != nil {
			return false
		}
		return re.MatchString(fmt.Sprint(value))
	case OpUnknown:
		return false
	}
	return false
}

// member tests value against a collection operand. A string operand is
// treated as a substring haystack.
func member(value, operand any) bool {
	if s, ok := operand.(string); ok {
		return strings.Contains(s, fmt.Sprint(value))
	}
	items, ok := asSlice(operand)
	if !ok {
		return false
	}
	for _, item := range items {
		if valuesEqual(value, item) {
			return true
		}
	}
	return false
}

// valuesEqual compares with numeric normalization so 2019 and 2019.0 are
// equal regardless of which decoder produced them.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		return fa == fb
	}
	if okA != okB {
		return false
	}
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		return ok && sa == sb
	}
	return reflect.DeepEqual(a, b)
}

// compare orders two numbers or two strings. Mixed kinds are incomparable.
func compare(a, b any) (int, bool) {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		if math.IsNaN(n) {
			return 0, false
		}
		return n, true
	case json.Number:
		f, err := strconv.ParseFloat(string(n), 64)
		return f, err == nil
	}
	return 0, false
}

func asSlice(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// isFalsy mirrors the truthiness rule the string operators use: nil, the
// empty string, zero numbers, false and empty collections are falsy.
func isFalsy(v any) bool {
	if v == nil {
		return true
	}
	if b, ok := v.(bool); ok {
		return !b
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	if f, ok := toFloat(v); ok {
		return f == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	}
	return false
}
