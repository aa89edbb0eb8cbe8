package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindJSON
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindJSON:
		return "json"
	default:
		return "null"
	}
}

// Value is a single spreadsheet cell: null, string, number or boolean.
// Nested objects and arrays from JSON-shaped stores are kept as raw JSON text
// so they write back as they were read. The zero Value is null.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
}

func Null() Value { return Value{} }
func String(s string) Value { return Value{kind: KindString, str: s} }
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// RawJSON wraps an encoded JSON object or array, compacted.
func RawJSON(b []byte) Value {
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return String(string(b))
	}
	return Value{kind: KindJSON, str: buf.String()}
}

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Float returns the numeric payload and whether the value is a number.
func (v Value) Float() (float64, bool) { return v.num, v.kind == KindNumber }

// Text returns the string form used for comparisons, sampling and search.
// Null renders as the empty string.
func (v Value) Text() string {
	switch v.kind {
	case KindString, KindJSON:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Lower is Text lower-cased; the normalized form every matcher compares against.
func (v Value) Lower() string { return strings.ToLower(v.Text()) }

// Any returns the Go value for drivers and encoders (nil, string, float64, bool).
// Raw JSON comes out as its text.
func (v Value) Any() any {
	switch v.kind {
	case KindString, KindJSON:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	default:
		return nil
	}
}

func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString, KindJSON:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	default:
		return true
	}
}

func (v Value) String() string {
	if v.kind == KindNull {
		return "null"
	}
	return v.Text()
}

// FromAny converts decoded JSON, driver and BSON scalars into a Value.
// Anything that is not a scalar is kept as raw JSON.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case []byte:
		return String(string(t))
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return Number(f)
		}
		return String(t.String())
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return Number(cast.ToFloat64(t))
	case fmt.Stringer:
		return String(t.String())
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return String(cast.ToString(t))
		}
		return RawJSON(b)
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindJSON {
		return []byte(v.str), nil
	}
	return json.Marshal(v.Any())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		if !json.Valid(trimmed) {
			return fmt.Errorf("invalid JSON value")
		}
		*v = RawJSON(trimmed)
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}
