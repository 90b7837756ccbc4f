package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/razeghi71/streamagg/ast"
	"github.com/razeghi71/streamagg/record"
)

// arity bounds for operators that take positional arguments. max < 0 means
// variadic.
type arity struct{ min, max int }

var operators = map[string]arity{
	"$add":      {1, -1},
	"$subtract": {2, 2},
	"$multiply": {1, -1},
	"$divide":   {2, 2},
	"$floor":    {1, 1},
	"$log10":    {1, 1},
	"$abs":      {1, 1},
	"$max":      {1, -1},
	"$min":      {1, -1},
	"$concat":   {0, -1},
	"$toString": {1, 1},
	"$eq":       {2, 2},
	"$ne":       {2, 2},
	"$gt":       {2, 2},
	"$gte":      {2, 2},
	"$lt":       {2, 2},
	"$lte":      {2, 2},
	"$and":      {0, -1},
	"$or":       {0, -1},
	"$not":      {1, 1},
	"$ifNull":   {2, -1},
	"$size":     {1, 1},
	"$slice":    {2, 3},
	"$in":       {2, 2},
}

// ParseExpr parses an aggregation expression.
func ParseExpr(v record.Value) (ast.Expr, error) {
	switch v.Type {
	case record.TypeString:
		return parseStringExpr(v.Str)
	case record.TypeArray:
		elems := make([]ast.Expr, 0, len(v.Arr))
		for _, e := range v.Arr {
			x, err := ParseExpr(e)
			if err != nil {
				return nil, err
			}
			elems = append(elems, x)
		}
		return &ast.ArrayExpr{Elems: elems}, nil
	case record.TypeRecord:
		return parseRecordExpr(v.Rec)
	default:
		return &ast.LiteralExpr{Value: v}, nil
	}
}

func parseStringExpr(s string) (ast.Expr, error) {
	switch {
	case strings.HasPrefix(s, "$$"):
		name, path, _ := strings.Cut(s[2:], ".")
		if name == "" {
			return nil, fmt.Errorf("invalid variable reference %q", s)
		}
		return &ast.VarExpr{Name: name, Path: path}, nil
	case strings.HasPrefix(s, "$"):
		if len(s) == 1 {
			return nil, errors.New(`invalid field path "$"`)
		}
		return &ast.FieldExpr{Path: s[1:]}, nil
	default:
		return &ast.LiteralExpr{Value: record.StrVal(s)}, nil
	}
}

func parseRecordExpr(r *record.Record) (ast.Expr, error) {
	keys := r.Keys()
	if len(keys) > 0 && strings.HasPrefix(keys[0], "$") {
		if len(keys) != 1 {
			return nil, fmt.Errorf("operator %q must be the only key of its object", keys[0])
		}
		return parseOperator(keys[0], r.Get(keys[0]))
	}
	obj := &ast.ObjectExpr{}
	for _, k := range keys {
		if strings.HasPrefix(k, "$") {
			return nil, fmt.Errorf("field name %q cannot start with $", k)
		}
		e, err := ParseExpr(r.Get(k))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		obj.Fields = append(obj.Fields, ast.Assignment{Field: k, Expr: e})
	}
	return obj, nil
}

func parseOperator(op string, arg record.Value) (ast.Expr, error) {
	switch op {
	case "$literal":
		return &ast.LiteralExpr{Value: arg}, nil
	case "$cond":
		return parseCond(arg)
	case "$switch":
		return parseSwitch(arg)
	case "$filter":
		return parseFilter(arg)
	case "$map":
		return parseMap(arg)
	case "$reduce":
		return parseReduce(arg)
	case "$sortArray":
		return parseSortArray(arg)
	}

	ar, ok := operators[op]
	if !ok {
		return nil, fmt.Errorf("unknown operator %q", op)
	}
	var raw []record.Value
	if arg.Type == record.TypeArray {
		raw = arg.Arr
	} else {
		raw = []record.Value{arg}
	}
	if len(raw) < ar.min || (ar.max >= 0 && len(raw) > ar.max) {
		return nil, fmt.Errorf("%s: %s, got %d", op, arityText(ar), len(raw))
	}
	args := make([]ast.Expr, 0, len(raw))
	for _, a := range raw {
		e, err := ParseExpr(a)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		args = append(args, e)
	}
	return &ast.CallExpr{Op: op, Args: args}, nil
}

func arityText(a arity) string {
	switch {
	case a.max < 0:
		return fmt.Sprintf("expected at least %d argument(s)", a.min)
	case a.min == a.max:
		return fmt.Sprintf("expected %d argument(s)", a.min)
	default:
		return fmt.Sprintf("expected %d to %d arguments", a.min, a.max)
	}
}

// namedArgs checks an operator's argument document against the allowed keys
// and returns the raw arguments keyed by name.
func namedArgs(op string, arg record.Value, required []string, optional ...string) (map[string]record.Value, error) {
	if arg.Type != record.TypeRecord {
		return nil, fmt.Errorf("%s: expected a mapping, got %s", op, arg.Type)
	}
	allowed := map[string]bool{}
	for _, k := range required {
		allowed[k] = true
	}
	for _, k := range optional {
		allowed[k] = true
	}
	out := map[string]record.Value{}
	for _, k := range arg.Rec.Keys() {
		if !allowed[k] {
			return nil, fmt.Errorf("%s: unknown argument %q", op, k)
		}
		out[k] = arg.Rec.Get(k)
	}
	for _, k := range required {
		if _, ok := out[k]; !ok {
			return nil, fmt.Errorf("%s: missing required argument %q", op, k)
		}
	}
	return out, nil
}

func parseCond(arg record.Value) (ast.Expr, error) {
	var parts []record.Value
	switch arg.Type {
	case record.TypeArray:
		if len(arg.Arr) != 3 {
			return nil, fmt.Errorf("$cond: expected 3 arguments, got %d", len(arg.Arr))
		}
		parts = arg.Arr
	default:
		m, err := namedArgs("$cond", arg, []string{"if", "then", "else"})
		if err != nil {
			return nil, err
		}
		parts = []record.Value{m["if"], m["then"], m["else"]}
	}
	exprs, err := parseAll("$cond", parts)
	if err != nil {
		return nil, err
	}
	return &ast.CondExpr{If: exprs[0], Then: exprs[1], Else: exprs[2]}, nil
}

func parseSwitch(arg record.Value) (ast.Expr, error) {
	m, err := namedArgs("$switch", arg, []string{"branches"}, "default")
	if err != nil {
		return nil, err
	}
	branches := m["branches"]
	if branches.Type != record.TypeArray || len(branches.Arr) == 0 {
		return nil, errors.New("$switch: branches must be a non-empty list")
	}
	sw := &ast.SwitchExpr{}
	for i, b := range branches.Arr {
		bm, err := namedArgs("$switch", b, []string{"case", "then"})
		if err != nil {
			return nil, fmt.Errorf("branch %d: %w", i, err)
		}
		exprs, err := parseAll("$switch", []record.Value{bm["case"], bm["then"]})
		if err != nil {
			return nil, err
		}
		sw.Branches = append(sw.Branches, ast.SwitchBranch{Case: exprs[0], Then: exprs[1]})
	}
	if d, ok := m["default"]; ok {
		e, err := ParseExpr(d)
		if err != nil {
			return nil, fmt.Errorf("$switch: %w", err)
		}
		sw.Default = e
	}
	return sw, nil
}

func varName(op string, m map[string]record.Value) (string, error) {
	v, ok := m["as"]
	if !ok {
		return "this", nil
	}
	if v.Type != record.TypeString || v.Str == "" || strings.HasPrefix(v.Str, "$") {
		return "", fmt.Errorf("%s: as must be a variable name", op)
	}
	return v.Str, nil
}

func parseFilter(arg record.Value) (ast.Expr, error) {
	m, err := namedArgs("$filter", arg, []string{"input", "cond"}, "as")
	if err != nil {
		return nil, err
	}
	as, err := varName("$filter", m)
	if err != nil {
		return nil, err
	}
	exprs, err := parseAll("$filter", []record.Value{m["input"], m["cond"]})
	if err != nil {
		return nil, err
	}
	return &ast.FilterExpr{Input: exprs[0], As: as, Cond: exprs[1]}, nil
}

func parseMap(arg record.Value) (ast.Expr, error) {
	m, err := namedArgs("$map", arg, []string{"input", "in"}, "as")
	if err != nil {
		return nil, err
	}
	as, err := varName("$map", m)
	if err != nil {
		return nil, err
	}
	exprs, err := parseAll("$map", []record.Value{m["input"], m["in"]})
	if err != nil {
		return nil, err
	}
	return &ast.MapExpr{Input: exprs[0], As: as, In: exprs[1]}, nil
}

func parseReduce(arg record.Value) (ast.Expr, error) {
	m, err := namedArgs("$reduce", arg, []string{"input", "initialValue", "in"})
	if err != nil {
		return nil, err
	}
	exprs, err := parseAll("$reduce", []record.Value{m["input"], m["initialValue"], m["in"]})
	if err != nil {
		return nil, err
	}
	return &ast.ReduceExpr{Input: exprs[0], Initial: exprs[1], In: exprs[2]}, nil
}

func parseSortArray(arg record.Value) (ast.Expr, error) {
	m, err := namedArgs("$sortArray", arg, []string{"input", "sortBy"})
	if err != nil {
		return nil, err
	}
	input, err := ParseExpr(m["input"])
	if err != nil {
		return nil, fmt.Errorf("$sortArray: %w", err)
	}
	out := &ast.SortArrayExpr{Input: input}
	sortBy := m["sortBy"]
	if sortBy.Type == record.TypeRecord {
		keys, err := parseSortKeys(sortBy)
		if err != nil {
			return nil, fmt.Errorf("$sortArray: %w", err)
		}
		out.Keys = keys
		return out, nil
	}
	desc, err := direction(sortBy)
	if err != nil {
		return nil, fmt.Errorf("$sortArray: %w", err)
	}
	out.Desc = desc
	return out, nil
}

func parseAll(op string, vs []record.Value) ([]ast.Expr, error) {
	out := make([]ast.Expr, len(vs))
	for i, v := range vs {
		e, err := ParseExpr(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out[i] = e
	}
	return out, nil
}
