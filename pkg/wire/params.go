package wire

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ValueKind identifies the type held by a Value.
type ValueKind uint8

const (
	KindInvalid ValueKind = iota
	KindInt
	KindUint
	KindFloat
	KindString
	KindBool
	KindTree
)

// String returns the kind name.
func (k ValueKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindTree:
		return "tree"
	default:
		return "invalid"
	}
}

// Value is one tagged configuration value.
type Value struct {
	kind ValueKind
	i    int64
	u    uint64
	f    float64
	s    string
	b    bool
	t    *Tree
}

func IntValue(v int64) Value     { return Value{kind: KindInt, i: v} }
func UintValue(v uint64) Value   { return Value{kind: KindUint, u: v} }
func FloatValue(v float64) Value { return Value{kind: KindFloat, f: v} }
func StringValue(v string) Value { return Value{kind: KindString, s: v} }
func BoolValue(v bool) Value     { return Value{kind: KindBool, b: v} }

// TreeValue wraps a copy of t as a nested value.
func TreeValue(t *Tree) Value {
	return Value{kind: KindTree, t: t.Clone()}
}

// Kind returns the stored kind.
func (v Value) Kind() ValueKind {
	return v.kind
}

// AsInt returns the value as a signed integer. Unsigned storage is accepted
// when it fits.
func (v Value) AsInt() (int64, error) {
	switch v.kind {
	case KindInt:
		return v.i, nil
	case KindUint:
		if v.u > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d overflows int64", ErrParameterType, v.u)
		}
		return int64(v.u), nil
	default:
		return 0, fmt.Errorf("%w: %s is not an integer", ErrParameterType, v.kind)
	}
}

// AsUint returns the value as an unsigned integer. Signed storage is accepted
// when it is not negative.
func (v Value) AsUint() (uint64, error) {
	switch v.kind {
	case KindUint:
		return v.u, nil
	case KindInt:
		if v.i < 0 {
			return 0, fmt.Errorf("%w: %d is negative", ErrParameterType, v.i)
		}
		return uint64(v.i), nil
	default:
		return 0, fmt.Errorf("%w: %s is not an integer", ErrParameterType, v.kind)
	}
}

// AsFloat returns the value as a float. Integers are converted.
func (v Value) AsFloat() (float64, error) {
	switch v.kind {
	case KindFloat:
		return v.f, nil
	case KindInt:
		return float64(v.i), nil
	case KindUint:
		return float64(v.u), nil
	default:
		return 0, fmt.Errorf("%w: %s is not a number", ErrParameterType, v.kind)
	}
}

// AsString returns a string value.
func (v Value) AsString() (string, error) {
	if v.kind != KindString {
		return "", fmt.Errorf("%w: %s is not a string", ErrParameterType, v.kind)
	}
	return v.s, nil
}

// AsBool returns a boolean value.
func (v Value) AsBool() (bool, error) {
	if v.kind != KindBool {
		return false, fmt.Errorf("%w: %s is not a bool", ErrParameterType, v.kind)
	}
	return v.b, nil
}

// AsTree returns a copy of a nested tree value.
func (v Value) AsTree() (*Tree, error) {
	if v.kind != KindTree {
		return nil, fmt.Errorf("%w: %s is not a tree", ErrParameterType, v.kind)
	}
	return v.t.Clone(), nil
}

// Equal reports whether v and o hold the same value. Integers compare by
// numeric value regardless of signed or unsigned storage.
func (v Value) Equal(o Value) bool {
	if v.isInteger() && o.isInteger() {
		if v.kind == o.kind {
			return v.i == o.i && v.u == o.u
		}
		si, ui := v, o
		if v.kind == KindUint {
			si, ui = o, v
		}
		return si.i >= 0 && uint64(si.i) == ui.u
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindBool:
		return v.b == o.b
	case KindTree:
		return v.t.Equal(o.t)
	default:
		return true
	}
}

func (v Value) isInteger() bool {
	return v.kind == KindInt || v.kind == KindUint
}

// String renders the value for display.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindUint:
		return strconv.FormatUint(v.u, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.s)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindTree:
		return v.t.String()
	default:
		return "<invalid>"
	}
}

// native returns the plain Go form used for CBOR encoding.
func (v Value) native() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindUint:
		return v.u
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBool:
		return v.b
	case KindTree:
		return v.t.native()
	default:
		return nil
	}
}

// ValueOf converts a plain Go value into a Value. Maps become nested trees.
// Accepted inputs are the integer and float types, string, bool,
// map[string]any, map[any]any with string keys, *Tree and Value.
func ValueOf(x any) (Value, error) {
	switch v := x.(type) {
	case Value:
		return v, nil
	case int:
		return IntValue(int64(v)), nil
	case int8:
		return IntValue(int64(v)), nil
	case int16:
		return IntValue(int64(v)), nil
	case int32:
		return IntValue(int64(v)), nil
	case int64:
		return IntValue(v), nil
	case uint:
		return UintValue(uint64(v)), nil
	case uint8:
		return UintValue(uint64(v)), nil
	case uint16:
		return UintValue(uint64(v)), nil
	case uint32:
		return UintValue(uint64(v)), nil
	case uint64:
		return UintValue(v), nil
	case float32:
		return FloatValue(float64(v)), nil
	case float64:
		return FloatValue(v), nil
	case string:
		return StringValue(v), nil
	case bool:
		return BoolValue(v), nil
	case *Tree:
		return TreeValue(v), nil
	case map[string]any:
		t, err := TreeFromMap(v)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindTree, t: t}, nil
	case map[any]any:
		m := make(map[string]any, len(v))
		for k, item := range v {
			ks, ok := k.(string)
			if !ok {
				return Value{}, fmt.Errorf("%w: non-string key %v", ErrParameterType, k)
			}
			m[ks] = item
		}
		return ValueOf(m)
	default:
		return Value{}, fmt.Errorf("%w: unsupported value type %T", ErrParameterType, x)
	}
}

// Tree is a string-keyed tree of configuration values.
// The zero value is an empty tree ready for use.
type Tree struct {
	entries map[string]Value
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{entries: make(map[string]Value)}
}

// TreeFromMap builds a tree from a plain map, converting nested maps into
// sub-trees. Keys are inserted directly; no duplicate check across levels
// is performed.
func TreeFromMap(m map[string]any) (*Tree, error) {
	t := NewTree()
	for k, item := range m {
		v, err := ValueOf(item)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		t.entries[k] = v
	}
	return t, nil
}

// SetParam inserts key at the top level. It fails with ErrDuplicateParameter
// when key already exists anywhere in the tree, including nested sub-trees.
func (t *Tree) SetParam(key string, v Value) error {
	if key == "" {
		return fmt.Errorf("%w: empty parameter key", ErrInvalidField)
	}
	if v.kind == KindInvalid {
		return fmt.Errorf("%w: parameter %q has no value", ErrInvalidField, key)
	}
	if _, found := t.Lookup(key); found {
		return fmt.Errorf("%w: %q", ErrDuplicateParameter, key)
	}
	if t.entries == nil {
		t.entries = make(map[string]Value)
	}
	if v.kind == KindTree {
		v.t = v.t.Clone()
	}
	t.entries[key] = v
	return nil
}

// Lookup searches the tree for key. Each level checks its own entries first
// and then descends into sub-trees in ascending key order; the first match
// wins.
func (t *Tree) Lookup(key string) (Value, bool) {
	if t == nil {
		return Value{}, false
	}
	if v, ok := t.entries[key]; ok {
		return v, true
	}
	for _, k := range t.Keys() {
		child := t.entries[k]
		if child.kind != KindTree {
			continue
		}
		if v, ok := child.t.Lookup(key); ok {
			return v, true
		}
	}
	return Value{}, false
}

func (t *Tree) get(key string) (Value, error) {
	v, ok := t.Lookup(key)
	if !ok {
		return Value{}, fmt.Errorf("%w: %q", ErrParameterNotFound, key)
	}
	return v, nil
}

// GetInt returns the integer parameter stored under key.
func (t *Tree) GetInt(key string) (int64, error) {
	v, err := t.get(key)
	if err != nil {
		return 0, err
	}
	n, err := v.AsInt()
	if err != nil {
		return 0, fmt.Errorf("parameter %q: %w", key, err)
	}
	return n, nil
}

// GetUint returns the unsigned integer parameter stored under key.
func (t *Tree) GetUint(key string) (uint64, error) {
	v, err := t.get(key)
	if err != nil {
		return 0, err
	}
	n, err := v.AsUint()
	if err != nil {
		return 0, fmt.Errorf("parameter %q: %w", key, err)
	}
	return n, nil
}

// GetFloat returns the numeric parameter stored under key as a float.
func (t *Tree) GetFloat(key string) (float64, error) {
	v, err := t.get(key)
	if err != nil {
		return 0, err
	}
	f, err := v.AsFloat()
	if err != nil {
		return 0, fmt.Errorf("parameter %q: %w", key, err)
	}
	return f, nil
}

// GetString returns the string parameter stored under key.
func (t *Tree) GetString(key string) (string, error) {
	v, err := t.get(key)
	if err != nil {
		return "", err
	}
	s, err := v.AsString()
	if err != nil {
		return "", fmt.Errorf("parameter %q: %w", key, err)
	}
	return s, nil
}

// GetBool returns the boolean parameter stored under key.
func (t *Tree) GetBool(key string) (bool, error) {
	v, err := t.get(key)
	if err != nil {
		return false, err
	}
	b, err := v.AsBool()
	if err != nil {
		return false, fmt.Errorf("parameter %q: %w", key, err)
	}
	return b, nil
}

// GetTree returns a copy of the sub-tree stored under key.
func (t *Tree) GetTree(key string) (*Tree, error) {
	v, err := t.get(key)
	if err != nil {
		return nil, err
	}
	sub, err := v.AsTree()
	if err != nil {
		return nil, fmt.Errorf("parameter %q: %w", key, err)
	}
	return sub, nil
}

// Len returns the number of top-level entries.
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Keys returns the top-level keys in ascending order.
func (t *Tree) Keys() []string {
	if t == nil {
		return nil
	}
	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Range calls fn for each top-level entry in ascending key order until fn
// returns false.
func (t *Tree) Range(fn func(key string, v Value) bool) {
	for _, k := range t.Keys() {
		if !fn(k, t.entries[k]) {
			return
		}
	}
}

// Equal reports whether both trees have the same size and pairwise equal
// entries in key order. A nil tree equals an empty one.
func (t *Tree) Equal(o *Tree) bool {
	if t.Len() != o.Len() {
		return false
	}
	a, b := t.Keys(), o.Keys()
	for i := range a {
		if a[i] != b[i] {
			return false
		}
		if !t.entries[a[i]].Equal(o.entries[b[i]]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the tree.
func (t *Tree) Clone() *Tree {
	out := NewTree()
	if t == nil {
		return out
	}
	for k, v := range t.entries {
		if v.kind == KindTree {
			v.t = v.t.Clone()
		}
		out.entries[k] = v
	}
	return out
}

// String renders the tree as {key: value, ...} in key order.
func (t *Tree) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range t.Keys() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(t.entries[k].String())
	}
	sb.WriteByte('}')
	return sb.String()
}

func (t *Tree) native() map[string]any {
	out := make(map[string]any, t.Len())
	if t == nil {
		return out
	}
	for k, v := range t.entries {
		out[k] = v.native()
	}
	return out
}
