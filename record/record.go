package record

import (
	"strings"
)

// Record is an ordered mapping from field name to value. Records handed to
// pipeline stages are treated as immutable; writers clone first.
type Record struct {
	keys []string
	vals map[string]Value
}

// New creates an empty record.
func New() *Record {
	return &Record{vals: make(map[string]Value)}
}

// Field is a single name/value pair used to build records.
type Field struct {
	Name  string
	Value Value
}

// Of creates a record from fields, in order.
func Of(fields ...Field) *Record {
	r := New()
	for _, f := range fields {
		r.Set(f.Name, f.Value)
	}
	return r
}

// F is shorthand for a Field.
func F(name string, v Value) Field {
	return Field{Name: name, Value: v}
}

// Len returns the number of fields.
func (r *Record) Len() int {
	return len(r.keys)
}

// Keys returns the field names in order. The slice must not be modified.
func (r *Record) Keys() []string {
	return r.keys
}

// Get returns the value of a top-level field, or Missing.
func (r *Record) Get(key string) Value {
	v, ok := r.vals[key]
	if !ok {
		return Missing()
	}
	return v
}

// Has reports whether a top-level field exists.
func (r *Record) Has(key string) bool {
	_, ok := r.vals[key]
	return ok
}

// Set writes a top-level field, appending it if new. Setting Missing deletes the field.
func (r *Record) Set(key string, v Value) {
	if v.IsMissing() {
		r.Delete(key)
		return
	}
	if _, ok := r.vals[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.vals[key] = v
}

// Delete removes a top-level field.
func (r *Record) Delete(key string) {
	if _, ok := r.vals[key]; !ok {
		return
	}
	delete(r.vals, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i:i], r.keys[i+1:]...)
			break
		}
	}
}

// Clone creates a shallow copy: field order and values are copied, nested
// records and arrays are shared.
func (r *Record) Clone() *Record {
	keys := make([]string, len(r.keys))
	copy(keys, r.keys)
	vals := make(map[string]Value, len(r.vals))
	for k, v := range r.vals {
		vals[k] = v
	}
	return &Record{keys: keys, vals: vals}
}

// GetPath resolves a dotted path. Arrays on the way are traversed element-wise
// and yield an array of the resolved values.
func (r *Record) GetPath(path string) Value {
	if !strings.Contains(path, ".") {
		return r.Get(path)
	}
	return lookup(RecordVal(r), strings.Split(path, "."))
}

// Lookup resolves a dotted path relative to an arbitrary value.
func Lookup(v Value, path string) Value {
	if path == "" {
		return v
	}
	return lookup(v, strings.Split(path, "."))
}

func lookup(v Value, parts []string) Value {
	for i, p := range parts {
		switch v.Type {
		case TypeRecord:
			v = v.Rec.Get(p)
		case TypeArray:
			var out []Value
			for _, e := range v.Arr {
				if e.Type != TypeRecord && e.Type != TypeArray {
					continue
				}
				res := lookup(e, parts[i:])
				if !res.IsMissing() {
					out = append(out, res)
				}
			}
			return ArrayVal(out)
		default:
			return Missing()
		}
	}
	return v
}

// SetPath writes a dotted path, creating intermediate records. Nested records
// along the path are cloned so values shared with other records stay untouched.
func (r *Record) SetPath(path string, v Value) {
	parts := strings.Split(path, ".")
	if len(parts) == 1 {
		r.Set(path, v)
		return
	}
	head := parts[0]
	cur := r.Get(head)
	var child *Record
	if cur.Type == TypeRecord {
		child = cur.Rec.Clone()
	} else {
		child = New()
	}
	child.SetPath(strings.Join(parts[1:], "."), v)
	r.Set(head, RecordVal(child))
}

// DeletePath removes a dotted path, cloning nested records along the way.
func (r *Record) DeletePath(path string) {
	parts := strings.SplitN(path, ".", 2)
	if len(parts) == 1 {
		r.Delete(path)
		return
	}
	cur := r.Get(parts[0])
	if cur.Type != TypeRecord {
		return
	}
	child := cur.Rec.Clone()
	child.DeletePath(parts[1])
	r.Set(parts[0], RecordVal(child))
}

// String returns a compact representation of the record.
func (r *Record) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, k := range r.keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(k)
		sb.WriteString(":")
		v := r.vals[k]
		if v.Type == TypeString {
			sb.WriteString(`"` + v.Str + `"`)
		} else {
			sb.WriteString(v.AsString())
		}
	}
	sb.WriteString("}")
	return sb.String()
}

// Identity returns a short label identifying the record in error messages:
// content_id if present, else _id.
func (r *Record) Identity() string {
	if v := r.Get("content_id"); !v.IsNullish() {
		return v.AsString()
	}
	if v := r.Get("_id"); !v.IsMissing() {
		return v.AsString()
	}
	return ""
}
