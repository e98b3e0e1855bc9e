// Package agent defines the public contract a host implements to register a
// worker role with the coordinator: the Agent/Action descriptors and the
// tagged-variant Value type that crosses the runtime boundary in place of
// untyped maps (spec §9's "dynamic parameter/result dicts" re-architecture
// note, grounded on the teacher's tools.JSONCodec/TypeSpec pattern in
// tools/spec.go, adapted from a generic-codec shape into a closed sum type).
package agent

import (
	"fmt"
	"sort"
)

// Kind identifies which variant of Value is populated.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is a closed, tagged-variant value: exactly one of its typed fields is
// meaningful, as determined by Kind. Coordinator internals pass Values
// (never bare any/map[string]any) across the agent-runtime boundary, so a
// malformed payload is caught by the type checker rather than a runtime
// type-assertion panic deep inside an agent.
type Value struct {
	kind Kind

	boolVal   bool
	intVal    int64
	floatVal  float64
	stringVal string
	bytesVal  []byte
	listVal   []Value
	mapVal    map[string]Value
}

// Null returns the null Value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, boolVal: b} }

// Int wraps a 64-bit integer.
func Int(i int64) Value { return Value{kind: KindInt, intVal: i} }

// Float wraps a 64-bit float.
func Float(f float64) Value { return Value{kind: KindFloat, floatVal: f} }

// String wraps a UTF-8 string.
func String(s string) Value { return Value{kind: KindString, stringVal: s} }

// Bytes wraps an opaque byte slice.
func Bytes(b []byte) Value { return Value{kind: KindBytes, bytesVal: b} }

// List wraps an ordered sequence of Values.
func List(vs ...Value) Value { return Value{kind: KindList, listVal: vs} }

// Map wraps a string-keyed collection of Values. A copy of m is taken so the
// caller cannot mutate the Value after construction.
func Map(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindMap, mapVal: cp}
}

// Kind reports which variant is populated.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null Value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool returns the wrapped boolean and whether v is a KindBool.
func (v Value) Bool() (bool, bool) { return v.boolVal, v.kind == KindBool }

// Int returns the wrapped integer and whether v is a KindInt.
func (v Value) Int() (int64, bool) { return v.intVal, v.kind == KindInt }

// Float returns the wrapped float and whether v is a KindFloat.
func (v Value) Float() (float64, bool) { return v.floatVal, v.kind == KindFloat }

// String returns the wrapped string and whether v is a KindString.
func (v Value) String() (string, bool) { return v.stringVal, v.kind == KindString }

// Bytes returns the wrapped bytes and whether v is a KindBytes.
func (v Value) Bytes() ([]byte, bool) { return v.bytesVal, v.kind == KindBytes }

// List returns the wrapped list and whether v is a KindList.
func (v Value) List() ([]Value, bool) { return v.listVal, v.kind == KindList }

// Map returns a copy of the wrapped map and whether v is a KindMap.
func (v Value) Map() (map[string]Value, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	cp := make(map[string]Value, len(v.mapVal))
	for k, val := range v.mapVal {
		cp[k] = val
	}
	return cp, true
}

// Field looks up a key in v when v is a KindMap, reporting ok=false if v is
// not a map or the key is absent. This is the primitive the executor's
// binding resolution (spec §4.4) uses to pull from_field out of a prior
// step's output.
func (v Value) Field(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	val, ok := v.mapVal[key]
	return val, ok
}

// Equal reports deep structural equality between v and other, used by
// round-trip tests (spec §8) to compare Values after a JSON encode/decode
// cycle.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.boolVal == other.boolVal
	case KindInt:
		return v.intVal == other.intVal
	case KindFloat:
		return v.floatVal == other.floatVal
	case KindString:
		return v.stringVal == other.stringVal
	case KindBytes:
		if len(v.bytesVal) != len(other.bytesVal) {
			return false
		}
		for i := range v.bytesVal {
			if v.bytesVal[i] != other.bytesVal[i] {
				return false
			}
		}
		return true
	case KindList:
		if len(v.listVal) != len(other.listVal) {
			return false
		}
		for i := range v.listVal {
			if !v.listVal[i].Equal(other.listVal[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.mapVal) != len(other.mapVal) {
			return false
		}
		for k, val := range v.mapVal {
			ov, ok := other.mapVal[k]
			if !ok || !val.Equal(ov) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// GoString renders v for diagnostics and log fields. Map keys are sorted so
// output is deterministic across runs.
func (v Value) GoString() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.boolVal)
	case KindInt:
		return fmt.Sprintf("%d", v.intVal)
	case KindFloat:
		return fmt.Sprintf("%g", v.floatVal)
	case KindString:
		return fmt.Sprintf("%q", v.stringVal)
	case KindBytes:
		return fmt.Sprintf("bytes(%d)", len(v.bytesVal))
	case KindList:
		out := "["
		for i, e := range v.listVal {
			if i > 0 {
				out += ", "
			}
			out += e.GoString()
		}
		return out + "]"
	case KindMap:
		keys := make([]string, 0, len(v.mapVal))
		for k := range v.mapVal {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := "{"
		for i, k := range keys {
			if i > 0 {
				out += ", "
			}
			out += fmt.Sprintf("%q: %s", k, v.mapVal[k].GoString())
		}
		return out + "}"
	default:
		return "?"
	}
}

// FromAny converts a Go native value (as produced by encoding/json
// unmarshalling into an any, or built programmatically by a host) into a
// Value. It is the single point where untyped data is admitted across the
// runtime boundary; anything it cannot classify becomes a stringified
// fallback rather than panicking.
func FromAny(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(x)
	case int:
		return Int(int64(x))
	case int64:
		return Int(x)
	case float64:
		return Float(x)
	case string:
		return String(x)
	case []byte:
		return Bytes(x)
	case []any:
		vs := make([]Value, len(x))
		for i, e := range x {
			vs[i] = FromAny(e)
		}
		return List(vs...)
	case map[string]any:
		m := make(map[string]Value, len(x))
		for k, e := range x {
			m[k] = FromAny(e)
		}
		return Map(m)
	default:
		return String(fmt.Sprintf("%v", x))
	}
}

// ToAny converts v back into a Go native value suitable for encoding/json
// marshalling, the inverse of FromAny.
func (v Value) ToAny() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.boolVal
	case KindInt:
		return v.intVal
	case KindFloat:
		return v.floatVal
	case KindString:
		return v.stringVal
	case KindBytes:
		return v.bytesVal
	case KindList:
		out := make([]any, len(v.listVal))
		for i, e := range v.listVal {
			out[i] = e.ToAny()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.mapVal))
		for k, e := range v.mapVal {
			out[k] = e.ToAny()
		}
		return out
	default:
		return nil
	}
}
