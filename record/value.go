package record

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueType represents the type of a Value.
type ValueType int

const (
	TypeMissing ValueType = iota // field absent from the record
	TypeNull
	TypeBool
	TypeInt
	TypeFloat
	TypeString
	TypeArray
	TypeRecord // nested record
)

var typeNames = map[ValueType]string{
	TypeMissing: "missing", TypeNull: "null", TypeBool: "bool", TypeInt: "int",
	TypeFloat: "double", TypeString: "string", TypeArray: "array", TypeRecord: "object",
}

func (t ValueType) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("ValueType(%d)", int(t))
}

// Value is a dynamically-typed field value.
type Value struct {
	Type  ValueType
	Int   int64
	Float float64
	Str   string
	Bool  bool
	Arr   []Value
	Rec   *Record
}

// Missing returns the absent value.
func Missing() Value {
	return Value{Type: TypeMissing}
}

// Null returns a null value.
func Null() Value {
	return Value{Type: TypeNull}
}

// IntVal creates an integer value.
func IntVal(v int64) Value {
	return Value{Type: TypeInt, Int: v}
}

// FloatVal creates a float value.
func FloatVal(v float64) Value {
	return Value{Type: TypeFloat, Float: v}
}

// StrVal creates a string value.
func StrVal(v string) Value {
	return Value{Type: TypeString, Str: v}
}

// BoolVal creates a boolean value.
func BoolVal(v bool) Value {
	return Value{Type: TypeBool, Bool: v}
}

// ArrayVal creates an array value. The slice is not copied.
func ArrayVal(vs []Value) Value {
	if vs == nil {
		vs = []Value{}
	}
	return Value{Type: TypeArray, Arr: vs}
}

// RecordVal creates a nested record value.
func RecordVal(r *Record) Value {
	if r == nil {
		r = New()
	}
	return Value{Type: TypeRecord, Rec: r}
}

// Strings creates an array value of strings.
func Strings(ss ...string) Value {
	vs := make([]Value, len(ss))
	for i, s := range ss {
		vs[i] = StrVal(s)
	}
	return ArrayVal(vs)
}

// IsMissing returns true if the value is absent.
func (v Value) IsMissing() bool {
	return v.Type == TypeMissing
}

// IsNull returns true if the value is null.
func (v Value) IsNull() bool {
	return v.Type == TypeNull
}

// IsNullish returns true for both null and missing values.
func (v Value) IsNullish() bool {
	return v.Type == TypeNull || v.Type == TypeMissing
}

// IsNumber reports whether the value is an int or a float.
func (v Value) IsNumber() bool {
	return v.Type == TypeInt || v.Type == TypeFloat
}

// AsFloat attempts to coerce to float64 for arithmetic.
func (v Value) AsFloat() (float64, bool) {
	switch v.Type {
	case TypeInt:
		return float64(v.Int), true
	case TypeFloat:
		return v.Float, true
	default:
		return 0, false
	}
}

// AsInt returns the value as an integer if it is an int or an integral float.
func (v Value) AsInt() (int64, bool) {
	switch v.Type {
	case TypeInt:
		return v.Int, true
	case TypeFloat:
		if v.Float == math.Trunc(v.Float) && math.Abs(v.Float) < float64(math.MaxInt64) {
			return int64(v.Float), true
		}
	}
	return 0, false
}

// Truthy implements aggregation truthiness: missing, null, false and zero are false.
func (v Value) Truthy() bool {
	switch v.Type {
	case TypeMissing, TypeNull:
		return false
	case TypeBool:
		return v.Bool
	case TypeInt:
		return v.Int != 0
	case TypeFloat:
		return v.Float != 0
	default:
		return true
	}
}

// AsString returns the string representation.
func (v Value) AsString() string {
	switch v.Type {
	case TypeMissing:
		return ""
	case TypeNull:
		return "null"
	case TypeInt:
		return strconv.FormatInt(v.Int, 10)
	case TypeFloat:
		return FormatFloat(v.Float)
	case TypeString:
		return v.Str
	case TypeBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case TypeArray:
		parts := make([]string, len(v.Arr))
		for i, e := range v.Arr {
			parts[i] = e.AsString()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case TypeRecord:
		return v.Rec.String()
	default:
		return "?"
	}
}

// FormatFloat prints integral floats without a fraction (2010.0 -> "2010").
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
