package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ParseJSON decodes a single JSON value, preserving object key order.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := readJSON(dec)
	if err != nil {
		return Null(), err
	}
	if _, err := dec.Token(); err != io.EOF {
		return Null(), errors.New("unexpected data after top-level JSON value")
	}
	return v, nil
}

// ParseJSONRecord decodes a JSON object into a Record.
func ParseJSONRecord(data []byte) (*Record, error) {
	v, err := ParseJSON(data)
	if err != nil {
		return nil, err
	}
	if v.Type != TypeRecord {
		return nil, fmt.Errorf("expected JSON object, got %s", v.Type)
	}
	return v.Rec, nil
}

// ParseJSONRecords decodes a JSON array of objects.
func ParseJSONRecords(data []byte) ([]*Record, error) {
	v, err := ParseJSON(data)
	if err != nil {
		return nil, err
	}
	if v.Type != TypeArray {
		return nil, fmt.Errorf("expected JSON array of objects, got %s", v.Type)
	}
	recs := make([]*Record, 0, len(v.Arr))
	for i, e := range v.Arr {
		if e.Type != TypeRecord {
			return nil, fmt.Errorf("element %d: expected object, got %s", i, e.Type)
		}
		recs = append(recs, e.Rec)
	}
	return recs, nil
}

func readJSON(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Null(), err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			r := New()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Null(), err
				}
				key, ok := kt.(string)
				if !ok {
					return Null(), fmt.Errorf("expected object key, got %v", kt)
				}
				v, err := readJSON(dec)
				if err != nil {
					return Null(), err
				}
				r.Set(key, v)
			}
			if _, err := dec.Token(); err != nil {
				return Null(), err
			}
			return RecordVal(r), nil
		case '[':
			vs := []Value{}
			for dec.More() {
				v, err := readJSON(dec)
				if err != nil {
					return Null(), err
				}
				vs = append(vs, v)
			}
			if _, err := dec.Token(); err != nil {
				return Null(), err
			}
			return ArrayVal(vs), nil
		default:
			return Null(), fmt.Errorf("unexpected delimiter %v", t)
		}
	case json.Number:
		return numberValue(string(t)), nil
	case string:
		return StrVal(t), nil
	case bool:
		return BoolVal(t), nil
	case nil:
		return Null(), nil
	default:
		return Null(), fmt.Errorf("unexpected JSON token %v", tok)
	}
}

func numberValue(s string) Value {
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return IntVal(i)
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return StrVal(s)
	}
	return FloatVal(f)
}

// MarshalJSON encodes the record as a JSON object in field order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := appendRecordJSON(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, preserving key order.
func (r *Record) UnmarshalJSON(data []byte) error {
	rec, err := ParseJSONRecord(data)
	if err != nil {
		return err
	}
	*r = *rec
	return nil
}

// MarshalJSON encodes the value as JSON. Missing encodes as null.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := appendJSON(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func appendRecordJSON(buf *bytes.Buffer, r *Record) error {
	buf.WriteByte('{')
	for i, k := range r.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		if err := appendJSON(buf, r.Get(k)); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func appendJSON(buf *bytes.Buffer, v Value) error {
	switch v.Type {
	case TypeMissing, TypeNull:
		buf.WriteString("null")
	case TypeBool:
		buf.WriteString(strconv.FormatBool(v.Bool))
	case TypeInt:
		buf.WriteString(strconv.FormatInt(v.Int, 10))
	case TypeFloat:
		if math.IsNaN(v.Float) || math.IsInf(v.Float, 0) {
			buf.WriteString("null")
			return nil
		}
		s := strconv.FormatFloat(v.Float, 'g', -1, 64)
		buf.WriteString(s)
		// keep floats distinguishable from ints on re-read
		if !strings.ContainsAny(s, ".e") {
			buf.WriteString(".0")
		}
	case TypeString:
		sb, err := json.Marshal(v.Str)
		if err != nil {
			return err
		}
		buf.Write(sb)
	case TypeArray:
		buf.WriteByte('[')
		for i, e := range v.Arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := appendJSON(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case TypeRecord:
		return appendRecordJSON(buf, v.Rec)
	default:
		return fmt.Errorf("cannot encode value of type %s", v.Type)
	}
	return nil
}

// FromNative converts a Go value as produced by common decoders into a Value.
// Map keys are sorted since Go maps carry no order.
func FromNative(x any) Value {
	switch val := x.(type) {
	case nil:
		return Null()
	case Value:
		return val
	case *Record:
		return RecordVal(val)
	case bool:
		return BoolVal(val)
	case int:
		return IntVal(int64(val))
	case int32:
		return IntVal(int64(val))
	case int64:
		return IntVal(val)
	case uint32:
		return IntVal(int64(val))
	case float32:
		return FloatVal(float64(val))
	case float64:
		return FloatVal(val)
	case json.Number:
		return numberValue(string(val))
	case string:
		return StrVal(val)
	case []byte:
		return StrVal(string(val))
	case time.Time:
		return StrVal(val.UTC().Format(time.RFC3339))
	case []string:
		return Strings(val...)
	case []int:
		vs := make([]Value, len(val))
		for i, e := range val {
			vs[i] = IntVal(int64(e))
		}
		return ArrayVal(vs)
	case []any:
		vs := make([]Value, len(val))
		for i, e := range val {
			vs[i] = FromNative(e)
		}
		return ArrayVal(vs)
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		r := New()
		for _, k := range keys {
			r.Set(k, FromNative(val[k]))
		}
		return RecordVal(r)
	default:
		return StrVal(fmt.Sprintf("%v", val))
	}
}

// ToNative converts a Value into plain Go values (nil, bool, int64, float64,
// string, []any, map[string]any).
func ToNative(v Value) any {
	switch v.Type {
	case TypeMissing, TypeNull:
		return nil
	case TypeBool:
		return v.Bool
	case TypeInt:
		return v.Int
	case TypeFloat:
		return v.Float
	case TypeString:
		return v.Str
	case TypeArray:
		out := make([]any, len(v.Arr))
		for i, e := range v.Arr {
			out[i] = ToNative(e)
		}
		return out
	case TypeRecord:
		out := make(map[string]any, v.Rec.Len())
		for _, k := range v.Rec.Keys() {
			out[k] = ToNative(v.Rec.Get(k))
		}
		return out
	}
	return nil
}
