package engine

import (
	"fmt"
	"sort"

	"github.com/razeghi71/streamagg/ast"
	"github.com/razeghi71/streamagg/record"
)

// EvalContext provides the current record and variable bindings for
// expression evaluation.
type EvalContext struct {
	Root *record.Record
	Vars map[string]record.Value
}

// NewContext returns a context over r with no variables bound.
func NewContext(r *record.Record) *EvalContext {
	return &EvalContext{Root: r}
}

// With returns a copy of ctx with name bound to v.
func (ctx *EvalContext) With(name string, v record.Value) *EvalContext {
	vars := make(map[string]record.Value, len(ctx.Vars)+1)
	for k, val := range ctx.Vars {
		vars[k] = val
	}
	vars[name] = v
	return &EvalContext{Root: ctx.Root, Vars: vars}
}

// Eval evaluates an expression against a record context.
func Eval(expr ast.Expr, ctx *EvalContext) (record.Value, error) {
	switch e := expr.(type) {
	case *ast.LiteralExpr:
		return e.Value, nil
	case *ast.FieldExpr:
		if ctx.Root == nil {
			return record.Missing(), nil
		}
		return ctx.Root.GetPath(e.Path), nil
	case *ast.VarExpr:
		return evalVar(e, ctx)
	case *ast.ObjectExpr:
		return evalObject(e, ctx)
	case *ast.ArrayExpr:
		return evalArray(e, ctx)
	case *ast.CallExpr:
		return evalCall(e, ctx)
	case *ast.CondExpr:
		return evalCond(e, ctx)
	case *ast.SwitchExpr:
		return evalSwitch(e, ctx)
	case *ast.FilterExpr:
		return evalFilter(e, ctx)
	case *ast.MapExpr:
		return evalMap(e, ctx)
	case *ast.ReduceExpr:
		return evalReduce(e, ctx)
	case *ast.SortArrayExpr:
		return evalSortArray(e, ctx)
	case *ast.QueryExpr:
		return evalQuery(e, ctx)
	default:
		return record.Null(), fmt.Errorf("unknown expression type %T", expr)
	}
}

func evalVar(e *ast.VarExpr, ctx *EvalContext) (record.Value, error) {
	var v record.Value
	switch e.Name {
	case "ROOT", "CURRENT":
		if ctx.Root == nil {
			return record.Missing(), nil
		}
		v = record.RecordVal(ctx.Root)
	default:
		bound, ok := ctx.Vars[e.Name]
		if !ok {
			return record.Null(), fmt.Errorf("undefined variable $$%s", e.Name)
		}
		v = bound
	}
	if e.Path == "" {
		return v, nil
	}
	return record.Lookup(v, e.Path), nil
}

func evalObject(e *ast.ObjectExpr, ctx *EvalContext) (record.Value, error) {
	out := record.New()
	for _, f := range e.Fields {
		v, err := Eval(f.Expr, ctx)
		if err != nil {
			return record.Null(), fmt.Errorf("%s: %w", f.Field, err)
		}
		out.Set(f.Field, v) // missing values are not set
	}
	return record.RecordVal(out), nil
}

func evalArray(e *ast.ArrayExpr, ctx *EvalContext) (record.Value, error) {
	vs := make([]record.Value, len(e.Elems))
	for i, el := range e.Elems {
		v, err := Eval(el, ctx)
		if err != nil {
			return record.Null(), err
		}
		if v.IsMissing() {
			v = record.Null()
		}
		vs[i] = v
	}
	return record.ArrayVal(vs), nil
}

func evalCond(e *ast.CondExpr, ctx *EvalContext) (record.Value, error) {
	c, err := Eval(e.If, ctx)
	if err != nil {
		return record.Null(), fmt.Errorf("$cond: %w", err)
	}
	if c.Truthy() {
		return Eval(e.Then, ctx)
	}
	return Eval(e.Else, ctx)
}

func evalSwitch(e *ast.SwitchExpr, ctx *EvalContext) (record.Value, error) {
	for _, b := range e.Branches {
		c, err := Eval(b.Case, ctx)
		if err != nil {
			return record.Null(), fmt.Errorf("$switch: %w", err)
		}
		if c.Truthy() {
			return Eval(b.Then, ctx)
		}
	}
	if e.Default == nil {
		return record.Null(), fmt.Errorf("$switch: no branch matched and no default given")
	}
	return Eval(e.Default, ctx)
}

// arrayInput evaluates the input of an array operator. ok is false when the
// input is null or absent and the operator should yield null.
func arrayInput(op string, in ast.Expr, ctx *EvalContext) ([]record.Value, bool, error) {
	v, err := Eval(in, ctx)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	if v.IsNullish() {
		return nil, false, nil
	}
	if v.Type != record.TypeArray {
		return nil, false, fmt.Errorf("%s: input must be an array, got %s", op, v.Type)
	}
	return v.Arr, true, nil
}

func evalFilter(e *ast.FilterExpr, ctx *EvalContext) (record.Value, error) {
	in, ok, err := arrayInput("$filter", e.Input, ctx)
	if err != nil || !ok {
		return record.Null(), err
	}
	out := make([]record.Value, 0, len(in))
	for _, el := range in {
		c, err := Eval(e.Cond, ctx.With(e.As, el))
		if err != nil {
			return record.Null(), fmt.Errorf("$filter: %w", err)
		}
		if c.Truthy() {
			out = append(out, el)
		}
	}
	return record.ArrayVal(out), nil
}

func evalMap(e *ast.MapExpr, ctx *EvalContext) (record.Value, error) {
	in, ok, err := arrayInput("$map", e.Input, ctx)
	if err != nil || !ok {
		return record.Null(), err
	}
	out := make([]record.Value, len(in))
	for i, el := range in {
		v, err := Eval(e.In, ctx.With(e.As, el))
		if err != nil {
			return record.Null(), fmt.Errorf("$map: %w", err)
		}
		if v.IsMissing() {
			v = record.Null()
		}
		out[i] = v
	}
	return record.ArrayVal(out), nil
}

func evalReduce(e *ast.ReduceExpr, ctx *EvalContext) (record.Value, error) {
	in, ok, err := arrayInput("$reduce", e.Input, ctx)
	if err != nil || !ok {
		return record.Null(), err
	}
	acc, err := Eval(e.Initial, ctx)
	if err != nil {
		return record.Null(), fmt.Errorf("$reduce: %w", err)
	}
	for _, el := range in {
		acc, err = Eval(e.In, ctx.With("value", acc).With("this", el))
		if err != nil {
			return record.Null(), fmt.Errorf("$reduce: %w", err)
		}
	}
	return acc, nil
}

func evalSortArray(e *ast.SortArrayExpr, ctx *EvalContext) (record.Value, error) {
	in, ok, err := arrayInput("$sortArray", e.Input, ctx)
	if err != nil || !ok {
		return record.Null(), err
	}
	out := make([]record.Value, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		if len(e.Keys) == 0 {
			c := record.Compare(out[i], out[j])
			if e.Desc {
				return c > 0
			}
			return c < 0
		}
		return compareByKeys(e.Keys, out[i], out[j]) < 0
	})
	return record.ArrayVal(out), nil
}

// compareByKeys orders two values by the sort keys, looking each key up as a
// path inside the value.
func compareByKeys(keys []ast.SortKey, a, b record.Value) int {
	for _, k := range keys {
		c := record.Compare(record.Lookup(a, k.Path), record.Lookup(b, k.Path))
		if c == 0 {
			continue
		}
		if k.Desc {
			return -c
		}
		return c
	}
	return 0
}
