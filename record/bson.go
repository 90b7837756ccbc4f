package record

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FromBSON converts a value decoded by the Mongo driver into a Value.
// bson.D keeps its field order; bson.M keys are sorted.
func FromBSON(x any) Value {
	switch val := x.(type) {
	case nil:
		return Null()
	case primitive.D:
		r := New()
		for _, e := range val {
			r.Set(e.Key, FromBSON(e.Value))
		}
		return RecordVal(r)
	case primitive.M:
		return FromNative(map[string]any(val))
	case primitive.A:
		vs := make([]Value, len(val))
		for i, e := range val {
			vs[i] = FromBSON(e)
		}
		return ArrayVal(vs)
	case []any:
		vs := make([]Value, len(val))
		for i, e := range val {
			vs[i] = FromBSON(e)
		}
		return ArrayVal(vs)
	case primitive.ObjectID:
		return StrVal(val.Hex())
	case primitive.DateTime:
		return StrVal(val.Time().UTC().Format(time.RFC3339))
	case primitive.Decimal128:
		f, err := decimal128Float(val)
		if err != nil {
			return StrVal(val.String())
		}
		return FloatVal(f)
	case primitive.Null, primitive.Undefined:
		return Null()
	default:
		return FromNative(val)
	}
}

func decimal128Float(d primitive.Decimal128) (float64, error) {
	var f float64
	if _, err := fmt.Sscan(d.String(), &f); err != nil {
		return 0, err
	}
	return f, nil
}

// ToBSON converts a Value for the Mongo driver. Records become bson.D so
// field order survives the round trip.
func ToBSON(v Value) any {
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
		out := make(bson.A, len(v.Arr))
		for i, e := range v.Arr {
			out[i] = ToBSON(e)
		}
		return out
	case TypeRecord:
		return RecordToBSON(v.Rec)
	}
	return nil
}

// RecordToBSON converts a record into an ordered BSON document.
func RecordToBSON(r *Record) bson.D {
	d := make(bson.D, 0, r.Len())
	for _, k := range r.Keys() {
		d = append(d, bson.E{Key: k, Value: ToBSON(r.Get(k))})
	}
	return d
}

// RecordFromBSON converts an ordered BSON document into a record.
func RecordFromBSON(d bson.D) *Record {
	return FromBSON(primitive.D(d)).Rec
}
