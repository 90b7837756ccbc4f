package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/razeghi71/streamagg/ast"
	"github.com/razeghi71/streamagg/record"
)

// evalCall dispatches operator calls to the appropriate implementation.
func evalCall(e *ast.CallExpr, ctx *EvalContext) (record.Value, error) {
	switch e.Op {
	// Logic short-circuits, so it evaluates its own arguments.
	case "$and":
		return callAnd(e.Args, ctx)
	case "$or":
		return callOr(e.Args, ctx)
	case "$ifNull":
		return callIfNull(e.Args, ctx)
	}

	args, err := evalArgs(e.Args, ctx)
	if err != nil {
		return record.Null(), fmt.Errorf("%s: %w", e.Op, err)
	}

	switch e.Op {
	// Arithmetic
	case "$add", "$subtract", "$multiply":
		return callArith(e.Op, args)
	case "$divide":
		return callDivide(args)
	case "$floor":
		return callFloor(args[0])
	case "$abs":
		return callAbs(args[0])
	case "$log10":
		return callLog10(args[0])
	case "$max":
		return callExtreme(args, 1), nil
	case "$min":
		return callExtreme(args, -1), nil

	// Strings
	case "$concat":
		return callConcat(args)
	case "$toString":
		return callToString(args[0])

	// Comparison
	case "$eq":
		return record.BoolVal(record.Equal(args[0], args[1])), nil
	case "$ne":
		return record.BoolVal(!record.Equal(args[0], args[1])), nil
	case "$gt":
		return record.BoolVal(record.Compare(args[0], args[1]) > 0), nil
	case "$gte":
		return record.BoolVal(record.Compare(args[0], args[1]) >= 0), nil
	case "$lt":
		return record.BoolVal(record.Compare(args[0], args[1]) < 0), nil
	case "$lte":
		return record.BoolVal(record.Compare(args[0], args[1]) <= 0), nil
	case "$not":
		return record.BoolVal(!args[0].Truthy()), nil

	// Arrays
	case "$size":
		if args[0].Type != record.TypeArray {
			return record.Null(), fmt.Errorf("$size: argument must be an array, got %s", args[0].Type)
		}
		return record.IntVal(int64(len(args[0].Arr))), nil
	case "$slice":
		return callSlice(args)
	case "$in":
		if args[1].Type != record.TypeArray {
			return record.Null(), fmt.Errorf("$in: second argument must be an array, got %s", args[1].Type)
		}
		for _, el := range args[1].Arr {
			if record.Equal(args[0], el) {
				return record.BoolVal(true), nil
			}
		}
		return record.BoolVal(false), nil

	default:
		return record.Null(), fmt.Errorf("unknown operator %q", e.Op)
	}
}

func evalArgs(exprs []ast.Expr, ctx *EvalContext) ([]record.Value, error) {
	vals := make([]record.Value, len(exprs))
	for i, a := range exprs {
		v, err := Eval(a, ctx)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func callAnd(args []ast.Expr, ctx *EvalContext) (record.Value, error) {
	for _, a := range args {
		v, err := Eval(a, ctx)
		if err != nil {
			return record.Null(), fmt.Errorf("$and: %w", err)
		}
		if !v.Truthy() {
			return record.BoolVal(false), nil
		}
	}
	return record.BoolVal(true), nil
}

func callOr(args []ast.Expr, ctx *EvalContext) (record.Value, error) {
	for _, a := range args {
		v, err := Eval(a, ctx)
		if err != nil {
			return record.Null(), fmt.Errorf("$or: %w", err)
		}
		if v.Truthy() {
			return record.BoolVal(true), nil
		}
	}
	return record.BoolVal(false), nil
}

func callIfNull(args []ast.Expr, ctx *EvalContext) (record.Value, error) {
	var v record.Value
	for i, a := range args {
		var err error
		v, err = Eval(a, ctx)
		if err != nil {
			return record.Null(), fmt.Errorf("$ifNull: %w", err)
		}
		if !v.IsNullish() || i == len(args)-1 {
			break
		}
	}
	return v, nil
}

// numericArgs checks arithmetic operands. done is true when the result is
// already decided: absent if any operand is absent, else null if any is null.
func numericArgs(op string, args []record.Value) (result record.Value, done bool, err error) {
	for _, a := range args {
		if a.IsMissing() {
			return record.Missing(), true, nil
		}
	}
	for _, a := range args {
		if a.IsNull() {
			return record.Null(), true, nil
		}
	}
	for _, a := range args {
		if !a.IsNumber() {
			return record.Null(), true, fmt.Errorf("%s: cannot use %s value %s as a number", op, a.Type, a.AsString())
		}
	}
	return record.Value{}, false, nil
}

func callArith(op string, args []record.Value) (record.Value, error) {
	if res, done, err := numericArgs(op, args); done {
		return res, err
	}

	allInt := true
	for _, a := range args {
		if a.Type != record.TypeInt {
			allInt = false
		}
	}

	if allInt {
		if acc, ok := intArith(op, args); ok {
			return record.IntVal(acc), nil
		}
		// overflow: the result is computed as a float instead
	}

	acc, _ := args[0].AsFloat()
	for _, a := range args[1:] {
		f, _ := a.AsFloat()
		switch op {
		case "$add":
			acc += f
		case "$subtract":
			acc -= f
		case "$multiply":
			acc *= f
		}
	}
	return record.FloatVal(acc), nil
}

// intArith folds integer operands, reporting false if any step overflows
// int64.
func intArith(op string, args []record.Value) (int64, bool) {
	acc := args[0].Int
	for _, a := range args[1:] {
		b := a.Int
		var r int64
		switch op {
		case "$add":
			r = acc + b
			if (b > 0 && r < acc) || (b < 0 && r > acc) {
				return 0, false
			}
		case "$subtract":
			r = acc - b
			if (b > 0 && r > acc) || (b < 0 && r < acc) {
				return 0, false
			}
		case "$multiply":
			if acc != 0 && b != 0 {
				r = acc * b
				if r/b != acc || (acc == -1 && b == math.MinInt64) || (b == -1 && acc == math.MinInt64) {
					return 0, false
				}
			}
		}
		acc = r
	}
	return acc, true
}

func callDivide(args []record.Value) (record.Value, error) {
	if res, done, err := numericArgs("$divide", args); done {
		return res, err
	}
	lf, _ := args[0].AsFloat()
	rf, _ := args[1].AsFloat()
	if rf == 0 {
		return record.Null(), fmt.Errorf("$divide: %w", ErrDivisionByZero)
	}
	return record.FloatVal(lf / rf), nil
}

func callFloor(v record.Value) (record.Value, error) {
	if res, done, err := numericArgs("$floor", []record.Value{v}); done {
		return res, err
	}
	if v.Type == record.TypeInt {
		return v, nil
	}
	return record.FloatVal(math.Floor(v.Float)), nil
}

func callAbs(v record.Value) (record.Value, error) {
	if res, done, err := numericArgs("$abs", []record.Value{v}); done {
		return res, err
	}
	if v.Type == record.TypeInt {
		if v.Int < 0 {
			return record.IntVal(-v.Int), nil
		}
		return v, nil
	}
	return record.FloatVal(math.Abs(v.Float)), nil
}

func callLog10(v record.Value) (record.Value, error) {
	if res, done, err := numericArgs("$log10", []record.Value{v}); done {
		return res, err
	}
	f, _ := v.AsFloat()
	if f <= 0 {
		return record.Null(), fmt.Errorf("$log10: argument must be positive, got %s", v.AsString())
	}
	return record.FloatVal(math.Log10(f)), nil
}

// callExtreme implements $max (dir 1) and $min (dir -1). A single array
// argument is treated as the list of candidates. Nulls are ignored.
func callExtreme(args []record.Value, dir int) record.Value {
	cands := args
	if len(args) == 1 && args[0].Type == record.TypeArray {
		cands = args[0].Arr
	}
	best := record.Null()
	found := false
	for _, c := range cands {
		if c.IsNullish() {
			continue
		}
		if !found || record.Compare(c, best)*dir > 0 {
			best = c
			found = true
		}
	}
	return best
}

func callConcat(args []record.Value) (record.Value, error) {
	var sb strings.Builder
	for _, a := range args {
		if a.IsNullish() {
			return record.Null(), nil
		}
		if a.Type != record.TypeString {
			return record.Null(), fmt.Errorf("$concat: only supports strings, got %s %s", a.Type, a.AsString())
		}
		sb.WriteString(a.Str)
	}
	return record.StrVal(sb.String()), nil
}

func callToString(v record.Value) (record.Value, error) {
	switch v.Type {
	case record.TypeMissing, record.TypeNull:
		return record.Null(), nil
	case record.TypeString:
		return v, nil
	case record.TypeInt:
		return record.StrVal(strconv.FormatInt(v.Int, 10)), nil
	case record.TypeFloat:
		return record.StrVal(record.FormatFloat(v.Float)), nil
	case record.TypeBool:
		return record.StrVal(strconv.FormatBool(v.Bool)), nil
	default:
		return record.Null(), fmt.Errorf("$toString: cannot convert %s", v.Type)
	}
}

// callSlice implements [array, n] (n < 0 counts from the end) and
// [array, position, n].
func callSlice(args []record.Value) (record.Value, error) {
	arr := args[0]
	if arr.IsNullish() {
		return record.Null(), nil
	}
	if arr.Type != record.TypeArray {
		return record.Null(), fmt.Errorf("$slice: first argument must be an array, got %s", arr.Type)
	}
	size := int64(len(arr.Arr))
	ints := make([]int64, len(args)-1)
	for i, a := range args[1:] {
		n, ok := a.AsInt()
		if !ok {
			return record.Null(), fmt.Errorf("$slice: argument %d must be an integer, got %s", i+2, a.AsString())
		}
		ints[i] = n
	}

	var start, end int64
	if len(ints) == 1 {
		n := ints[0]
		if n >= 0 {
			start, end = 0, min(n, size)
		} else {
			start, end = max(size+n, 0), size
		}
	} else {
		pos, n := ints[0], ints[1]
		if n <= 0 {
			return record.Null(), fmt.Errorf("$slice: count must be positive, got %d", n)
		}
		if pos < 0 {
			pos = max(size+pos, 0)
		}
		start = min(pos, size)
		end = min(start+n, size)
	}
	out := make([]record.Value, end-start)
	copy(out, arr.Arr[start:end])
	return record.ArrayVal(out), nil
}

// evalQuery evaluates a $match query predicate. Comparisons only match
// values of the same type bracket; an array field matches when the array
// itself or any of its elements matches.
func evalQuery(e *ast.QueryExpr, ctx *EvalContext) (record.Value, error) {
	var v record.Value
	if ctx.Root == nil {
		v = record.Missing()
	} else {
		v = ctx.Root.GetPath(e.Path)
	}

	switch e.Op {
	case "$exists":
		return record.BoolVal(!v.IsMissing() == e.Value.Truthy()), nil
	case "$ne":
		return record.BoolVal(!queryMatch("$eq", v, e.Value)), nil
	case "$nin":
		return record.BoolVal(!queryMatch("$in", v, e.Value)), nil
	default:
		return record.BoolVal(queryMatch(e.Op, v, e.Value)), nil
	}
}

func queryMatch(op string, field, arg record.Value) bool {
	if queryMatchOne(op, field, arg) {
		return true
	}
	if field.Type == record.TypeArray {
		for _, el := range field.Arr {
			if queryMatchOne(op, el, arg) {
				return true
			}
		}
	}
	return false
}

func queryMatchOne(op string, v, arg record.Value) bool {
	switch op {
	case "$eq":
		return record.Equal(v, arg)
	case "$in":
		for _, a := range arg.Arr {
			if record.Equal(v, a) {
				return true
			}
		}
		return false
	}

	if !sameBracket(v, arg) {
		return false
	}
	c := record.Compare(v, arg)
	switch op {
	case "$gt":
		return c > 0
	case "$gte":
		return c >= 0
	case "$lt":
		return c < 0
	case "$lte":
		return c <= 0
	}
	return false
}

func sameBracket(a, b record.Value) bool {
	if a.IsNumber() && b.IsNumber() {
		return true
	}
	if a.IsNullish() && b.IsNullish() {
		return true
	}
	return a.Type == b.Type
}
