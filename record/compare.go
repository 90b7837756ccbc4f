package record

import (
	"math"
	"strconv"
	"strings"
)

// typeRank orders types the way BSON does for sorting and comparison.
func typeRank(t ValueType) int {
	switch t {
	case TypeMissing, TypeNull:
		return 1
	case TypeInt, TypeFloat:
		return 2
	case TypeString:
		return 3
	case TypeRecord:
		return 4
	case TypeArray:
		return 5
	case TypeBool:
		return 6
	default:
		return 0
	}
}

// Compare returns -1, 0 or 1. Missing and null sort before every other type,
// numbers compare numerically across int and float.
func Compare(a, b Value) int {
	ra, rb := typeRank(a.Type), typeRank(b.Type)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch ra {
	case 1:
		return 0
	case 2:
		if a.Type == TypeInt && b.Type == TypeInt {
			return cmpInt(a.Int, b.Int)
		}
		af, _ := a.AsFloat()
		bf, _ := b.AsFloat()
		// NaN equals itself and sorts below every other number
		if an, bn := math.IsNaN(af), math.IsNaN(bf); an || bn {
			switch {
			case an && bn:
				return 0
			case an:
				return -1
			}
			return 1
		}
		if af < bf {
			return -1
		}
		if af > bf {
			return 1
		}
		return 0
	case 3:
		return strings.Compare(a.Str, b.Str)
	case 4:
		return compareRecords(a.Rec, b.Rec)
	case 5:
		for i := 0; i < len(a.Arr) && i < len(b.Arr); i++ {
			if c := Compare(a.Arr[i], b.Arr[i]); c != 0 {
				return c
			}
		}
		return cmpInt(int64(len(a.Arr)), int64(len(b.Arr)))
	case 6:
		if a.Bool == b.Bool {
			return 0
		}
		if !a.Bool {
			return -1
		}
		return 1
	}
	return 0
}

func compareRecords(a, b *Record) int {
	ak, bk := a.Keys(), b.Keys()
	for i := 0; i < len(ak) && i < len(bk); i++ {
		if c := strings.Compare(ak[i], bk[i]); c != 0 {
			return c
		}
		if c := Compare(a.Get(ak[i]), b.Get(bk[i])); c != 0 {
			return c
		}
	}
	return cmpInt(int64(len(ak)), int64(len(bk)))
}

func cmpInt(a, b int64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// Equal reports exact value equality. Numbers are equal across int and float;
// there is no coercion between numbers and strings.
func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}

// Key returns a canonical string for a value such that two values have the
// same key exactly when they are Equal. Missing keys like null.
func Key(v Value) string {
	var sb strings.Builder
	writeKey(&sb, v)
	return sb.String()
}

func writeKey(sb *strings.Builder, v Value) {
	switch v.Type {
	case TypeMissing, TypeNull:
		sb.WriteString("n")
	case TypeBool:
		if v.Bool {
			sb.WriteString("b1")
		} else {
			sb.WriteString("b0")
		}
	case TypeInt:
		sb.WriteString("i")
		sb.WriteString(strconv.FormatInt(v.Int, 10))
	case TypeFloat:
		if i, ok := v.AsInt(); ok {
			sb.WriteString("i")
			sb.WriteString(strconv.FormatInt(i, 10))
			return
		}
		sb.WriteString("f")
		sb.WriteString(strconv.FormatFloat(v.Float, 'g', -1, 64))
	case TypeString:
		sb.WriteString("s")
		sb.WriteString(strconv.Quote(v.Str))
	case TypeArray:
		sb.WriteString("[")
		for i, e := range v.Arr {
			if i > 0 {
				sb.WriteString(",")
			}
			writeKey(sb, e)
		}
		sb.WriteString("]")
	case TypeRecord:
		sb.WriteString("{")
		for i, k := range v.Rec.Keys() {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(strconv.Quote(k))
			sb.WriteString(":")
			writeKey(sb, v.Rec.Get(k))
		}
		sb.WriteString("}")
	}
}
