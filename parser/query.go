package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/razeghi71/streamagg/ast"
	"github.com/razeghi71/streamagg/record"
)

var queryOps = map[string]bool{
	"$eq": true, "$ne": true, "$gt": true, "$gte": true, "$lt": true, "$lte": true,
	"$in": true, "$nin": true, "$exists": true,
}

// parseQuery turns a $match document into a single predicate. Top-level
// conditions are combined with $and.
func parseQuery(r *record.Record) (ast.Expr, error) {
	var preds []ast.Expr
	for _, k := range r.Keys() {
		v := r.Get(k)
		switch k {
		case "$expr":
			e, err := ParseExpr(v)
			if err != nil {
				return nil, fmt.Errorf("$expr: %w", err)
			}
			preds = append(preds, e)
		case "$and", "$or", "$nor":
			e, err := parseLogicalQuery(k, v)
			if err != nil {
				return nil, err
			}
			preds = append(preds, e)
		case "$text":
			return nil, errors.New("$text search is not supported")
		default:
			if strings.HasPrefix(k, "$") {
				return nil, fmt.Errorf("unknown query operator %q", k)
			}
			fp, err := parseFieldQuery(k, v)
			if err != nil {
				return nil, err
			}
			preds = append(preds, fp...)
		}
	}
	if len(preds) == 1 {
		return preds[0], nil
	}
	return &ast.CallExpr{Op: "$and", Args: preds}, nil
}

func parseLogicalQuery(op string, v record.Value) (ast.Expr, error) {
	if v.Type != record.TypeArray || len(v.Arr) == 0 {
		return nil, fmt.Errorf("%s: expected a non-empty list of queries", op)
	}
	args := make([]ast.Expr, 0, len(v.Arr))
	for i, sub := range v.Arr {
		if sub.Type != record.TypeRecord {
			return nil, fmt.Errorf("%s: element %d must be a query mapping", op, i)
		}
		e, err := parseQuery(sub.Rec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		args = append(args, e)
	}
	if op == "$nor" {
		return &ast.CallExpr{Op: "$not", Args: []ast.Expr{&ast.CallExpr{Op: "$or", Args: args}}}, nil
	}
	return &ast.CallExpr{Op: op, Args: args}, nil
}

// parseFieldQuery handles {field: value} and {field: {$op: value, ...}}.
func parseFieldQuery(path string, v record.Value) ([]ast.Expr, error) {
	if v.Type != record.TypeRecord || v.Rec.Len() == 0 || !strings.HasPrefix(v.Rec.Keys()[0], "$") {
		return []ast.Expr{&ast.QueryExpr{Path: path, Op: "$eq", Value: v}}, nil
	}
	var out []ast.Expr
	for _, op := range v.Rec.Keys() {
		arg := v.Rec.Get(op)
		if !queryOps[op] {
			return nil, fmt.Errorf("%s: unknown query operator %q", path, op)
		}
		if (op == "$in" || op == "$nin") && arg.Type != record.TypeArray {
			return nil, fmt.Errorf("%s: %s needs a list", path, op)
		}
		out = append(out, &ast.QueryExpr{Path: path, Op: op, Value: arg})
	}
	return out, nil
}
