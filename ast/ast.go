package ast

import "github.com/razeghi71/streamagg/record"

// Expr represents an aggregation expression tree.
type Expr interface {
	exprNode()
}

// LiteralExpr is a constant value ($literal or a plain JSON scalar).
type LiteralExpr struct {
	Value record.Value
}

func (e *LiteralExpr) exprNode() {}

// FieldExpr references a field of the current record by dotted path ("$genre").
type FieldExpr struct {
	Path string
}

func (e *FieldExpr) exprNode() {}

// VarExpr references a variable ("$$this", "$$value.total").
type VarExpr struct {
	Name string
	Path string // optional sub-path
}

func (e *VarExpr) exprNode() {}

// ObjectExpr builds a record; fields are evaluated in order.
type ObjectExpr struct {
	Fields []Assignment
}

func (e *ObjectExpr) exprNode() {}

// ArrayExpr builds an array.
type ArrayExpr struct {
	Elems []Expr
}

func (e *ArrayExpr) exprNode() {}

// CallExpr is a named operator with positional arguments ($add, $eq, $size, ...).
type CallExpr struct {
	Op   string
	Args []Expr
}

func (e *CallExpr) exprNode() {}

// CondExpr is $cond.
type CondExpr struct {
	If   Expr
	Then Expr
	Else Expr
}

func (e *CondExpr) exprNode() {}

// SwitchBranch is one case of a $switch.
type SwitchBranch struct {
	Case Expr
	Then Expr
}

// SwitchExpr is $switch. Default may be nil.
type SwitchExpr struct {
	Branches []SwitchBranch
	Default  Expr
}

func (e *SwitchExpr) exprNode() {}

// FilterExpr is $filter.
type FilterExpr struct {
	Input Expr
	As    string // default "this"
	Cond  Expr
}

func (e *FilterExpr) exprNode() {}

// MapExpr is $map.
type MapExpr struct {
	Input Expr
	As    string
	In    Expr
}

func (e *MapExpr) exprNode() {}

// ReduceExpr is $reduce; In sees $$value and $$this.
type ReduceExpr struct {
	Input   Expr
	Initial Expr
	In      Expr
}

func (e *ReduceExpr) exprNode() {}

// SortArrayExpr is $sortArray. Keys is empty when sorting by whole elements.
type SortArrayExpr struct {
	Input Expr
	Keys  []SortKey
	Desc  bool // whole-element direction
}

func (e *SortArrayExpr) exprNode() {}

// QueryExpr is a query-language predicate on one field, as used by $match
// ({views_count: {$gt: 0}}). Array fields match when any element matches.
type QueryExpr struct {
	Path  string
	Op    string // $eq, $ne, $gt, $gte, $lt, $lte, $in, $nin, $exists
	Value record.Value
}

func (e *QueryExpr) exprNode() {}

// Assignment represents "field: expr" in addFields, project, and object literals.
type Assignment struct {
	Field string
	Expr  Expr
}

// SortKey is one key of $sort or $sortArray.
type SortKey struct {
	Path string
	Desc bool
}

// --- Operations (pipeline stages) ---

// Op represents a single stage in the pipeline.
type Op interface {
	opNode()
	// Name returns the stage name as written in pipeline documents.
	Name() string
}

// UnwindOp emits one record per element of an array field.
type UnwindOp struct {
	Path       string
	IndexField string // includeArrayIndex, optional
}

func (o *UnwindOp) opNode()      {}
func (o *UnwindOp) Name() string { return "$unwind" }

// MatchOp keeps records for which the predicate is truthy.
type MatchOp struct {
	Predicate Expr
}

func (o *MatchOp) opNode()      {}
func (o *MatchOp) Name() string { return "$match" }

// AddFieldsOp creates or overwrites fields with computed values.
type AddFieldsOp struct {
	Assignments []Assignment
}

func (o *AddFieldsOp) opNode()      {}
func (o *AddFieldsOp) Name() string { return "$addFields" }

// ProjectOp reshapes records. Include and Exclude are mutually exclusive;
// Computed fields imply inclusion mode.
type ProjectOp struct {
	Include    []string
	Exclude    []string
	Computed   []Assignment
	SuppressID bool
}

func (o *ProjectOp) opNode()      {}
func (o *ProjectOp) Name() string { return "$project" }

// Accumulator is a named per-group computation.
type Accumulator struct {
	Field string
	Op    string // $sum, $avg, $addToSet, $push, $max, $min, $first, $last
	Expr  Expr
}

// GroupOp groups records by key and computes accumulators.
type GroupOp struct {
	Key          Expr
	Accumulators []Accumulator
}

func (o *GroupOp) opNode()      {}
func (o *GroupOp) Name() string { return "$group" }

// SortOp sorts by keys, stable.
type SortOp struct {
	Keys []SortKey
}

func (o *SortOp) opNode()      {}
func (o *SortOp) Name() string { return "$sort" }

// LimitOp keeps the first N records.
type LimitOp struct {
	N int64
}

func (o *LimitOp) opNode()      {}
func (o *LimitOp) Name() string { return "$limit" }

// SkipOp drops the first N records.
type SkipOp struct {
	N int64
}

func (o *SkipOp) opNode()      {}
func (o *SkipOp) Name() string { return "$skip" }

// CountOp returns a single record holding the number of input records.
type CountOp struct {
	Field string
}

func (o *CountOp) opNode()      {}
func (o *CountOp) Name() string { return "$count" }

// UnionWithOp appends the output of a sub-pipeline run over another source.
type UnionWithOp struct {
	Source   string
	Pipeline []Op
}

func (o *UnionWithOp) opNode()      {}
func (o *UnionWithOp) Name() string { return "$unionWith" }

// Facet is one named sub-pipeline of a FacetOp.
type Facet struct {
	Name     string
	Pipeline []Op
}

// FacetOp runs sub-pipelines over the same input, producing one record.
type FacetOp struct {
	Facets []Facet
}

func (o *FacetOp) opNode()      {}
func (o *FacetOp) Name() string { return "$facet" }

// Pipeline represents a full pipeline: a primary source plus stages.
type Pipeline struct {
	Name        string
	Description string
	Source      string
	Stages      []Op
}

// Sources returns every source name the pipeline reads, primary first,
// including those referenced by nested $unionWith stages.
func (p *Pipeline) Sources() []string {
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	add(p.Source)
	var walk func(ops []Op)
	walk = func(ops []Op) {
		for _, op := range ops {
			switch o := op.(type) {
			case *UnionWithOp:
				add(o.Source)
				walk(o.Pipeline)
			case *FacetOp:
				for _, f := range o.Facets {
					walk(f.Pipeline)
				}
			}
		}
	}
	walk(p.Stages)
	return out
}
