package engine

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/razeghi71/streamagg/record"
)

// accumulator is the running state of one $group output field.
type accumulator interface {
	add(v record.Value)
	result() record.Value
}

func newAccumulator(op string) (accumulator, error) {
	switch op {
	case "$sum":
		return &sumAcc{allInt: true}, nil
	case "$avg":
		return &avgAcc{}, nil
	case "$push":
		return &pushAcc{}, nil
	case "$addToSet":
		return &setAcc{seen: map[string]bool{}}, nil
	case "$max":
		return &extremeAcc{dir: 1}, nil
	case "$min":
		return &extremeAcc{dir: -1}, nil
	case "$first":
		return &firstAcc{}, nil
	case "$last":
		return &lastAcc{}, nil
	default:
		return nil, fmt.Errorf("unknown accumulator %q", op)
	}
}

// decimalSum adds numbers exactly. Non-numeric inputs are ignored; NaN and
// infinities fall back to float arithmetic.
type decimalSum struct {
	total   decimal.Decimal
	special float64
	hasSpec bool
	n       int64
}

func (s *decimalSum) add(v record.Value) bool {
	switch v.Type {
	case record.TypeInt:
		s.total = s.total.Add(decimal.NewFromInt(v.Int))
	case record.TypeFloat:
		if math.IsNaN(v.Float) || math.IsInf(v.Float, 0) {
			s.special += v.Float
			s.hasSpec = true
		} else {
			s.total = s.total.Add(decimal.NewFromFloat(v.Float))
		}
	default:
		return false
	}
	s.n++
	return true
}

func (s *decimalSum) float() float64 {
	f := s.total.InexactFloat64()
	if s.hasSpec {
		f += s.special
	}
	return f
}

var (
	minInt64 = decimal.NewFromInt(math.MinInt64)
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
)

type sumAcc struct {
	sum    decimalSum
	allInt bool
}

func (a *sumAcc) add(v record.Value) {
	if a.sum.add(v) && v.Type != record.TypeInt {
		a.allInt = false
	}
}

func (a *sumAcc) result() record.Value {
	if a.allInt && a.sum.total.IsInteger() &&
		a.sum.total.GreaterThanOrEqual(minInt64) && a.sum.total.LessThanOrEqual(maxInt64) {
		return record.IntVal(a.sum.total.IntPart())
	}
	return record.FloatVal(a.sum.float())
}

type avgAcc struct {
	sum decimalSum
}

func (a *avgAcc) add(v record.Value) { a.sum.add(v) }

func (a *avgAcc) result() record.Value {
	if a.sum.n == 0 {
		return record.FloatVal(0)
	}
	if a.sum.hasSpec {
		return record.FloatVal(a.sum.float() / float64(a.sum.n))
	}
	return record.FloatVal(a.sum.total.Div(decimal.NewFromInt(a.sum.n)).InexactFloat64())
}

type pushAcc struct {
	vals []record.Value
}

func (a *pushAcc) add(v record.Value) {
	if v.IsMissing() {
		return
	}
	a.vals = append(a.vals, v)
}

func (a *pushAcc) result() record.Value { return record.ArrayVal(a.vals) }

// setAcc keeps distinct values in first-seen order.
type setAcc struct {
	vals []record.Value
	seen map[string]bool
}

func (a *setAcc) add(v record.Value) {
	if v.IsMissing() {
		return
	}
	k := record.Key(v)
	if a.seen[k] {
		return
	}
	a.seen[k] = true
	a.vals = append(a.vals, v)
}

func (a *setAcc) result() record.Value { return record.ArrayVal(a.vals) }

type extremeAcc struct {
	dir   int
	best  record.Value
	found bool
}

func (a *extremeAcc) add(v record.Value) {
	if v.IsNullish() {
		return
	}
	if !a.found || record.Compare(v, a.best)*a.dir > 0 {
		a.best = v
		a.found = true
	}
}

func (a *extremeAcc) result() record.Value {
	if !a.found {
		return record.Null()
	}
	return a.best
}

type firstAcc struct {
	v   record.Value
	set bool
}

func (a *firstAcc) add(v record.Value) {
	if a.set {
		return
	}
	if v.IsMissing() {
		v = record.Null()
	}
	a.v, a.set = v, true
}

func (a *firstAcc) result() record.Value {
	if !a.set {
		return record.Null()
	}
	return a.v
}

type lastAcc struct {
	v record.Value
}

func (a *lastAcc) add(v record.Value) {
	if v.IsMissing() {
		v = record.Null()
	}
	a.v = v
}

func (a *lastAcc) result() record.Value {
	if a.v.Type == record.TypeMissing {
		return record.Null()
	}
	return a.v
}
