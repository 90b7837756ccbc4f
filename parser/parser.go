package parser

import (
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"gopkg.in/yaml.v3"

	"github.com/razeghi71/streamagg/ast"
	"github.com/razeghi71/streamagg/record"
)

// Parse parses a pipeline document written in YAML or JSON. The document is
// either a list of stages or a mapping with "name", "source" and "pipeline".
func Parse(input []byte) (*ast.Pipeline, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(input, &node); err != nil {
		return nil, &ast.ConstructionError{Stage: -1, Err: fmt.Errorf("cannot decode document: %w", err)}
	}
	v, err := FromYAML(&node)
	if err != nil {
		return nil, &ast.ConstructionError{Stage: -1, Err: err}
	}
	return ParseDocument(v)
}

// ParseExtJSON parses a pipeline document in MongoDB Extended JSON
// ({"$numberLong": "..."} and friends). The top level must be an object.
func ParseExtJSON(input []byte) (*ast.Pipeline, error) {
	var d bson.D
	if err := bson.UnmarshalExtJSON(input, false, &d); err != nil {
		return nil, &ast.ConstructionError{Stage: -1, Err: fmt.Errorf("cannot decode extended JSON: %w", err)}
	}
	return ParseDocument(record.RecordVal(record.RecordFromBSON(d)))
}

// ParseDocument builds a pipeline from an already decoded document.
func ParseDocument(v record.Value) (*ast.Pipeline, error) {
	p := &ast.Pipeline{}
	var stages record.Value
	switch v.Type {
	case record.TypeArray:
		stages = v
	case record.TypeRecord:
		for _, k := range v.Rec.Keys() {
			switch k {
			case "name", "description", "source", "pipeline":
			default:
				return nil, &ast.ConstructionError{Stage: -1, Err: fmt.Errorf("unknown document key %q", k)}
			}
		}
		name, err := optString(v.Rec, "name")
		if err != nil {
			return nil, &ast.ConstructionError{Stage: -1, Err: err}
		}
		source, err := optString(v.Rec, "source")
		if err != nil {
			return nil, &ast.ConstructionError{Stage: -1, Err: err}
		}
		desc, err := optString(v.Rec, "description")
		if err != nil {
			return nil, &ast.ConstructionError{Stage: -1, Err: err}
		}
		p.Name, p.Description, p.Source = name, desc, source
		stages = v.Rec.Get("pipeline")
		if stages.IsMissing() {
			return nil, &ast.ConstructionError{Stage: -1, Err: errors.New(`missing "pipeline"`)}
		}
	default:
		return nil, &ast.ConstructionError{Stage: -1, Err: fmt.Errorf("expected a list of stages or a mapping, got %s", v.Type)}
	}

	ops, err := ParseStages(stages)
	if err != nil {
		return nil, err
	}
	p.Stages = ops
	return p, nil
}

// ParseStages parses an array of stage documents.
func ParseStages(v record.Value) ([]ast.Op, error) {
	if v.Type != record.TypeArray {
		return nil, &ast.ConstructionError{Stage: -1, Err: fmt.Errorf("pipeline must be a list of stages, got %s", v.Type)}
	}
	ops := make([]ast.Op, 0, len(v.Arr))
	for i, sv := range v.Arr {
		op, err := parseStage(i, sv)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func optString(r *record.Record, key string) (string, error) {
	v := r.Get(key)
	switch v.Type {
	case record.TypeMissing, record.TypeNull:
		return "", nil
	case record.TypeString:
		return v.Str, nil
	default:
		return "", fmt.Errorf("%q must be a string, got %s", key, v.Type)
	}
}

func parseStage(i int, v record.Value) (ast.Op, error) {
	if v.Type != record.TypeRecord || v.Rec.Len() != 1 {
		return nil, &ast.ConstructionError{Stage: i, Err: errors.New("a stage must be a mapping with exactly one key")}
	}
	name := v.Rec.Keys()[0]
	arg := v.Rec.Get(name)

	var op ast.Op
	var err error
	switch name {
	case "$unwind":
		op, err = parseUnwind(arg)
	case "$match":
		op, err = parseMatch(arg)
	case "$addFields", "$set":
		op, err = parseAddFields(arg)
	case "$project":
		op, err = parseProject(arg)
	case "$group":
		op, err = parseGroup(arg)
	case "$sort":
		op, err = parseSort(arg)
	case "$limit":
		op, err = parseLimit(arg)
	case "$skip":
		op, err = parseSkip(arg)
	case "$count":
		op, err = parseCount(arg)
	case "$unionWith":
		op, err = parseUnionWith(arg)
	case "$facet":
		op, err = parseFacet(arg)
	default:
		err = fmt.Errorf("unknown stage %q", name)
	}
	if err != nil {
		var ce *ast.ConstructionError
		if errors.As(err, &ce) && ce.Stage >= 0 {
			// nested sub-pipeline error: keep the inner position in the message
			err = fmt.Errorf("sub-pipeline %w", err)
		}
		return nil, &ast.ConstructionError{Stage: i, Op: name, Err: err}
	}
	return op, nil
}

func parseUnwind(arg record.Value) (ast.Op, error) {
	switch arg.Type {
	case record.TypeString:
		path, err := fieldPath(arg.Str)
		if err != nil {
			return nil, err
		}
		return &ast.UnwindOp{Path: path}, nil
	case record.TypeRecord:
		op := &ast.UnwindOp{}
		for _, k := range arg.Rec.Keys() {
			val := arg.Rec.Get(k)
			switch k {
			case "path":
				if val.Type != record.TypeString {
					return nil, errors.New("path must be a string")
				}
				path, err := fieldPath(val.Str)
				if err != nil {
					return nil, err
				}
				op.Path = path
			case "includeArrayIndex":
				if val.Type != record.TypeString || val.Str == "" || strings.HasPrefix(val.Str, "$") {
					return nil, errors.New("includeArrayIndex must be a field name")
				}
				op.IndexField = val.Str
			case "preserveNullAndEmptyArrays":
				if val.Truthy() {
					return nil, errors.New("preserveNullAndEmptyArrays is not supported: records without an array are skipped")
				}
			default:
				return nil, fmt.Errorf("unknown option %q", k)
			}
		}
		if op.Path == "" {
			return nil, errors.New(`missing required "path"`)
		}
		return op, nil
	default:
		return nil, fmt.Errorf("expected a field path or a mapping, got %s", arg.Type)
	}
}

// fieldPath strips the leading "$" of a field path reference.
func fieldPath(s string) (string, error) {
	if len(s) < 2 || s[0] != '$' || s[1] == '$' {
		return "", fmt.Errorf("expected a field path like \"$field\", got %q", s)
	}
	return s[1:], nil
}

func parseMatch(arg record.Value) (ast.Op, error) {
	if arg.Type != record.TypeRecord {
		return nil, fmt.Errorf("expected a query mapping, got %s", arg.Type)
	}
	pred, err := parseQuery(arg.Rec)
	if err != nil {
		return nil, err
	}
	return &ast.MatchOp{Predicate: pred}, nil
}

func parseAddFields(arg record.Value) (ast.Op, error) {
	if arg.Type != record.TypeRecord || arg.Rec.Len() == 0 {
		return nil, errors.New("expected a non-empty mapping of fields")
	}
	assigns, err := parseAssignments(arg.Rec)
	if err != nil {
		return nil, err
	}
	return &ast.AddFieldsOp{Assignments: assigns}, nil
}

func parseAssignments(r *record.Record) ([]ast.Assignment, error) {
	out := make([]ast.Assignment, 0, r.Len())
	for _, k := range r.Keys() {
		if k == "" || strings.HasPrefix(k, "$") {
			return nil, fmt.Errorf("invalid field name %q", k)
		}
		e, err := ParseExpr(r.Get(k))
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out = append(out, ast.Assignment{Field: k, Expr: e})
	}
	return out, nil
}

func parseProject(arg record.Value) (ast.Op, error) {
	if arg.Type != record.TypeRecord || arg.Rec.Len() == 0 {
		return nil, errors.New("expected a non-empty projection mapping")
	}
	op := &ast.ProjectOp{}
	for _, k := range arg.Rec.Keys() {
		v := arg.Rec.Get(k)
		if k == "" || strings.HasPrefix(k, "$") {
			return nil, fmt.Errorf("invalid field name %q", k)
		}
		flag, isFlag := projectionFlag(v)
		if k == "_id" && isFlag {
			op.SuppressID = !flag
			continue
		}
		switch {
		case isFlag && flag:
			op.Include = append(op.Include, k)
		case isFlag:
			op.Exclude = append(op.Exclude, k)
		default:
			e, err := ParseExpr(v)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			op.Computed = append(op.Computed, ast.Assignment{Field: k, Expr: e})
		}
	}
	if len(op.Exclude) > 0 && (len(op.Include) > 0 || len(op.Computed) > 0) {
		return nil, errors.New("cannot mix inclusion and exclusion in one projection")
	}
	return op, nil
}

func projectionFlag(v record.Value) (bool, bool) {
	switch v.Type {
	case record.TypeBool:
		return v.Bool, true
	case record.TypeInt, record.TypeFloat:
		return v.Truthy(), true
	}
	return false, false
}

var accumulators = map[string]bool{
	"$sum": true, "$avg": true, "$addToSet": true, "$push": true,
	"$max": true, "$min": true, "$first": true, "$last": true,
}

func parseGroup(arg record.Value) (ast.Op, error) {
	if arg.Type != record.TypeRecord {
		return nil, fmt.Errorf("expected a mapping, got %s", arg.Type)
	}
	if !arg.Rec.Has("_id") {
		return nil, errors.New(`missing required "_id"`)
	}
	key, err := ParseExpr(arg.Rec.Get("_id"))
	if err != nil {
		return nil, fmt.Errorf("_id: %w", err)
	}
	op := &ast.GroupOp{Key: key}
	for _, k := range arg.Rec.Keys() {
		if k == "_id" {
			continue
		}
		if strings.HasPrefix(k, "$") || strings.Contains(k, ".") {
			return nil, fmt.Errorf("invalid accumulator field name %q", k)
		}
		spec := arg.Rec.Get(k)
		if spec.Type != record.TypeRecord || spec.Rec.Len() != 1 {
			return nil, fmt.Errorf("field %q: accumulator must be a mapping with exactly one operator", k)
		}
		accOp := spec.Rec.Keys()[0]
		if !accumulators[accOp] {
			return nil, fmt.Errorf("field %q: unknown accumulator %q", k, accOp)
		}
		e, err := ParseExpr(spec.Rec.Get(accOp))
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		op.Accumulators = append(op.Accumulators, ast.Accumulator{Field: k, Op: accOp, Expr: e})
	}
	return op, nil
}

func parseSort(arg record.Value) (ast.Op, error) {
	keys, err := parseSortKeys(arg)
	if err != nil {
		return nil, err
	}
	return &ast.SortOp{Keys: keys}, nil
}

func parseSortKeys(arg record.Value) ([]ast.SortKey, error) {
	if arg.Type != record.TypeRecord || arg.Rec.Len() == 0 {
		return nil, errors.New("expected a non-empty mapping of sort keys")
	}
	keys := make([]ast.SortKey, 0, arg.Rec.Len())
	for _, k := range arg.Rec.Keys() {
		desc, err := direction(arg.Rec.Get(k))
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		keys = append(keys, ast.SortKey{Path: k, Desc: desc})
	}
	return keys, nil
}

func direction(v record.Value) (bool, error) {
	if n, ok := v.AsInt(); ok {
		switch n {
		case 1:
			return false, nil
		case -1:
			return true, nil
		}
	}
	return false, fmt.Errorf("sort direction must be 1 or -1, got %s", v.AsString())
}

func parseLimit(arg record.Value) (ast.Op, error) {
	n, ok := arg.AsInt()
	if !ok || n <= 0 {
		return nil, fmt.Errorf("expected a positive integer, got %s", arg.AsString())
	}
	return &ast.LimitOp{N: n}, nil
}

func parseSkip(arg record.Value) (ast.Op, error) {
	n, ok := arg.AsInt()
	if !ok || n < 0 {
		return nil, fmt.Errorf("expected a non-negative integer, got %s", arg.AsString())
	}
	return &ast.SkipOp{N: n}, nil
}

func parseCount(arg record.Value) (ast.Op, error) {
	if arg.Type != record.TypeString || arg.Str == "" || strings.HasPrefix(arg.Str, "$") || strings.Contains(arg.Str, ".") {
		return nil, fmt.Errorf("expected a field name, got %s", arg.AsString())
	}
	return &ast.CountOp{Field: arg.Str}, nil
}

func parseUnionWith(arg record.Value) (ast.Op, error) {
	switch arg.Type {
	case record.TypeString:
		if arg.Str == "" {
			return nil, errors.New("empty source name")
		}
		return &ast.UnionWithOp{Source: arg.Str}, nil
	case record.TypeRecord:
		op := &ast.UnionWithOp{}
		for _, k := range arg.Rec.Keys() {
			val := arg.Rec.Get(k)
			switch k {
			case "coll":
				if val.Type != record.TypeString || val.Str == "" {
					return nil, errors.New("coll must be a non-empty string")
				}
				op.Source = val.Str
			case "pipeline":
				ops, err := ParseStages(val)
				if err != nil {
					return nil, err
				}
				op.Pipeline = ops
			default:
				return nil, fmt.Errorf("unknown option %q", k)
			}
		}
		if op.Source == "" {
			return nil, errors.New(`missing required "coll"`)
		}
		return op, nil
	default:
		return nil, fmt.Errorf("expected a source name or a mapping, got %s", arg.Type)
	}
}

func parseFacet(arg record.Value) (ast.Op, error) {
	if arg.Type != record.TypeRecord || arg.Rec.Len() == 0 {
		return nil, errors.New("expected a non-empty mapping of sub-pipelines")
	}
	op := &ast.FacetOp{}
	for _, k := range arg.Rec.Keys() {
		if strings.HasPrefix(k, "$") {
			return nil, fmt.Errorf("invalid facet name %q", k)
		}
		ops, err := ParseStages(arg.Rec.Get(k))
		if err != nil {
			return nil, fmt.Errorf("facet %q: %w", k, err)
		}
		op.Facets = append(op.Facets, ast.Facet{Name: k, Pipeline: ops})
	}
	return op, nil
}

// FromYAML converts a decoded YAML node into a Value, keeping mapping order.
// JSON documents decode through the same path since YAML is a superset.
func FromYAML(n *yaml.Node) (record.Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return record.Null(), errors.New("empty document")
		}
		return FromYAML(n.Content[0])
	case yaml.AliasNode:
		return FromYAML(n.Alias)
	case yaml.MappingNode:
		r := record.New()
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			if k.Kind != yaml.ScalarNode {
				return record.Null(), fmt.Errorf("line %d: mapping keys must be scalars", k.Line)
			}
			if r.Has(k.Value) {
				return record.Null(), fmt.Errorf("line %d: duplicate key %q", k.Line, k.Value)
			}
			v, err := FromYAML(n.Content[i+1])
			if err != nil {
				return record.Null(), err
			}
			r.Set(k.Value, v)
		}
		return record.RecordVal(r), nil
	case yaml.SequenceNode:
		vs := make([]record.Value, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := FromYAML(c)
			if err != nil {
				return record.Null(), err
			}
			vs = append(vs, v)
		}
		return record.ArrayVal(vs), nil
	case yaml.ScalarNode:
		return scalarValue(n)
	default:
		return record.Null(), fmt.Errorf("line %d: unsupported YAML node", n.Line)
	}
}

func scalarValue(n *yaml.Node) (record.Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return record.Null(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return record.Null(), err
		}
		return record.BoolVal(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return record.Null(), err
		}
		return record.IntVal(i), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return record.Null(), err
		}
		return record.FloatVal(f), nil
	default:
		return record.StrVal(n.Value), nil
	}
}
