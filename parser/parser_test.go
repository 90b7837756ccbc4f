package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/razeghi71/streamagg/ast"
	"github.com/razeghi71/streamagg/record"
)

func mustParse(t *testing.T, src string) *ast.Pipeline {
	t.Helper()
	p, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return p
}

func parseErr(t *testing.T, src string) *ast.ConstructionError {
	t.Helper()
	_, err := Parse([]byte(src))
	if err == nil {
		t.Fatalf("expected error for %s", src)
	}
	var ce *ast.ConstructionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ast.ConstructionError, got %T: %v", err, err)
	}
	return ce
}

func TestParseDocument(t *testing.T) {
	p := mustParse(t, `
name: genre_stats
source: content
pipeline:
  - $unwind: $genre
  - $group:
      _id: $genre
      avg_rating: {$avg: $rating}
      total_views: {$sum: $views_count}
  - $sort: {avg_rating: -1}
  - $limit: 5
`)
	if p.Name != "genre_stats" || p.Source != "content" {
		t.Errorf("expected genre_stats/content, got %q/%q", p.Name, p.Source)
	}
	if len(p.Stages) != 4 {
		t.Fatalf("expected 4 stages, got %d", len(p.Stages))
	}
	uw, ok := p.Stages[0].(*ast.UnwindOp)
	if !ok {
		t.Fatalf("stage 0: expected UnwindOp, got %T", p.Stages[0])
	}
	if uw.Path != "genre" {
		t.Errorf("expected unwind path 'genre', got %q", uw.Path)
	}
	g, ok := p.Stages[1].(*ast.GroupOp)
	if !ok {
		t.Fatalf("stage 1: expected GroupOp, got %T", p.Stages[1])
	}
	if len(g.Accumulators) != 2 {
		t.Fatalf("expected 2 accumulators, got %d", len(g.Accumulators))
	}
	if g.Accumulators[0].Field != "avg_rating" || g.Accumulators[0].Op != "$avg" {
		t.Errorf("unexpected first accumulator %+v", g.Accumulators[0])
	}
	if g.Accumulators[1].Field != "total_views" || g.Accumulators[1].Op != "$sum" {
		t.Errorf("unexpected second accumulator %+v", g.Accumulators[1])
	}
	s := p.Stages[2].(*ast.SortOp)
	if len(s.Keys) != 1 || s.Keys[0].Path != "avg_rating" || !s.Keys[0].Desc {
		t.Errorf("unexpected sort keys %+v", s.Keys)
	}
	if l := p.Stages[3].(*ast.LimitOp); l.N != 5 {
		t.Errorf("expected limit 5, got %d", l.N)
	}
}

func TestParseJSONStageList(t *testing.T) {
	p := mustParse(t, `[{"$match": {"content_type": "movie"}}, {"$count": "movies"}]`)
	if p.Source != "" {
		t.Errorf("expected no source, got %q", p.Source)
	}
	if len(p.Stages) != 2 {
		t.Fatalf("expected 2 stages, got %d", len(p.Stages))
	}
	m := p.Stages[0].(*ast.MatchOp)
	q, ok := m.Predicate.(*ast.QueryExpr)
	if !ok {
		t.Fatalf("expected QueryExpr, got %T", m.Predicate)
	}
	if q.Path != "content_type" || q.Op != "$eq" || q.Value.Str != "movie" {
		t.Errorf("unexpected query %+v", q)
	}
	if c := p.Stages[1].(*ast.CountOp); c.Field != "movies" {
		t.Errorf("expected count field 'movies', got %q", c.Field)
	}
}

func TestParseExtJSON(t *testing.T) {
	p, err := ParseExtJSON([]byte(`{"source": "content", "pipeline": [{"$limit": {"$numberLong": "3"}}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if l := p.Stages[0].(*ast.LimitOp); l.N != 3 {
		t.Errorf("expected limit 3, got %d", l.N)
	}
}

func TestParseMatchQueryForms(t *testing.T) {
	p := mustParse(t, `
- $match:
    views_count: {$gt: 0, $lte: 1000}
    $or:
      - {content_type: movie}
      - {rating: {$in: [4, 5]}}
`)
	m := p.Stages[0].(*ast.MatchOp)
	and, ok := m.Predicate.(*ast.CallExpr)
	if !ok || and.Op != "$and" {
		t.Fatalf("expected $and, got %#v", m.Predicate)
	}
	if len(and.Args) != 3 {
		t.Fatalf("expected 3 conjuncts, got %d", len(and.Args))
	}
	gt := and.Args[0].(*ast.QueryExpr)
	if gt.Op != "$gt" || gt.Path != "views_count" {
		t.Errorf("unexpected first conjunct %+v", gt)
	}
	or := and.Args[2].(*ast.CallExpr)
	if or.Op != "$or" || len(or.Args) != 2 {
		t.Errorf("unexpected $or %+v", or)
	}
}

func TestParseMatchExpr(t *testing.T) {
	p := mustParse(t, `[{$match: {$expr: {$lt: ["$release_year", 2010]}}}]`)
	call, ok := p.Stages[0].(*ast.MatchOp).Predicate.(*ast.CallExpr)
	if !ok || call.Op != "$lt" {
		t.Fatalf("expected $lt call, got %#v", p.Stages[0].(*ast.MatchOp).Predicate)
	}
	if f, ok := call.Args[0].(*ast.FieldExpr); !ok || f.Path != "release_year" {
		t.Errorf("expected field release_year, got %#v", call.Args[0])
	}
}

func TestParseExpressions(t *testing.T) {
	src := `
- $addFields:
    score:
      $add:
        - {$multiply: ["$rating", 20]}
        - {$log10: {$add: ["$views_count", 1]}}
    runtime:
      $cond:
        if: {$eq: ["$content_type", "movie"]}
        then: $duration_minutes
        else: $total_runtime_minutes
    top_seasons:
      $filter: {input: $seasons, as: s, cond: {$gt: ["$$s.episodes", 10]}}
    total:
      $reduce: {input: $episodes_per_season, initialValue: 0, in: {$add: ["$$value", "$$this"]}}
    sorted:
      $sortArray: {input: $genre, sortBy: 1}
    tier:
      $switch:
        branches:
          - {case: {$gte: ["$rating", 4.5]}, then: top}
        default: other
`
	p := mustParse(t, src)
	af := p.Stages[0].(*ast.AddFieldsOp)
	if len(af.Assignments) != 6 {
		t.Fatalf("expected 6 assignments, got %d", len(af.Assignments))
	}
	wantTypes := []string{"*ast.CallExpr", "*ast.CondExpr", "*ast.FilterExpr", "*ast.ReduceExpr", "*ast.SortArrayExpr", "*ast.SwitchExpr"}
	for i, a := range af.Assignments {
		got := typeName(a.Expr)
		if got != wantTypes[i] {
			t.Errorf("%s: expected %s, got %s", a.Field, wantTypes[i], got)
		}
	}
	f := af.Assignments[2].Expr.(*ast.FilterExpr)
	if f.As != "s" {
		t.Errorf("expected as 's', got %q", f.As)
	}
	v := f.Cond.(*ast.CallExpr).Args[0].(*ast.VarExpr)
	if v.Name != "s" || v.Path != "episodes" {
		t.Errorf("expected $$s.episodes, got %+v", v)
	}
	sw := af.Assignments[5].Expr.(*ast.SwitchExpr)
	if len(sw.Branches) != 1 || sw.Default == nil {
		t.Errorf("unexpected switch %+v", sw)
	}
}

func typeName(e ast.Expr) string {
	switch e.(type) {
	case *ast.CallExpr:
		return "*ast.CallExpr"
	case *ast.CondExpr:
		return "*ast.CondExpr"
	case *ast.FilterExpr:
		return "*ast.FilterExpr"
	case *ast.ReduceExpr:
		return "*ast.ReduceExpr"
	case *ast.SortArrayExpr:
		return "*ast.SortArrayExpr"
	case *ast.SwitchExpr:
		return "*ast.SwitchExpr"
	}
	return "other"
}

func TestParseLiteral(t *testing.T) {
	e, err := ParseExpr(record.RecordVal(record.Of(record.F("$literal", record.StrVal("$genre")))))
	if err != nil {
		t.Fatal(err)
	}
	lit, ok := e.(*ast.LiteralExpr)
	if !ok || lit.Value.Str != "$genre" {
		t.Errorf("expected literal \"$genre\", got %#v", e)
	}
}

func TestParseProject(t *testing.T) {
	p := mustParse(t, `[{$project: {_id: 0, title: 1, genre: true, year: "$release_year"}}]`)
	pr := p.Stages[0].(*ast.ProjectOp)
	if !pr.SuppressID {
		t.Error("expected _id suppressed")
	}
	if len(pr.Include) != 2 || pr.Include[0] != "title" || pr.Include[1] != "genre" {
		t.Errorf("unexpected include list %v", pr.Include)
	}
	if len(pr.Computed) != 1 || pr.Computed[0].Field != "year" {
		t.Errorf("unexpected computed fields %+v", pr.Computed)
	}
}

func TestParseUnwindOptions(t *testing.T) {
	p := mustParse(t, `[{$unwind: {path: $genre, includeArrayIndex: idx}}]`)
	uw := p.Stages[0].(*ast.UnwindOp)
	if uw.Path != "genre" || uw.IndexField != "idx" {
		t.Errorf("unexpected unwind %+v", uw)
	}
}

func TestParseUnionWithAndFacet(t *testing.T) {
	p := mustParse(t, `
source: movies
pipeline:
  - $unionWith:
      coll: series
      pipeline:
        - $match: {rating: {$gte: 4}}
        - $unionWith: documentaries
  - $facet:
      top: [{$sort: {rating: -1}}, {$limit: 1}]
      count: [{$count: n}]
`)
	u := p.Stages[0].(*ast.UnionWithOp)
	if u.Source != "series" || len(u.Pipeline) != 2 {
		t.Errorf("unexpected unionWith %+v", u)
	}
	f := p.Stages[1].(*ast.FacetOp)
	if len(f.Facets) != 2 || f.Facets[0].Name != "top" || f.Facets[1].Name != "count" {
		t.Errorf("unexpected facets %+v", f.Facets)
	}
	got := strings.Join(p.Sources(), ",")
	if got != "movies,series,documentaries" {
		t.Errorf("expected sources movies,series,documentaries, got %s", got)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		stage int
		msg   string
	}{
		{"unknown stage", `[{$lookup: {}}]`, 0, "unknown stage"},
		{"unknown operator", `[{$match: {$expr: {$pow: [1, 2]}}}]`, 0, "unknown operator"},
		{"arity", `[{$limit: 1}, {$addFields: {x: {$divide: [1]}}}]`, 1, "expected 2 argument"},
		{"zero limit", `[{$limit: 0}]`, 0, "positive integer"},
		{"bad sort direction", `[{$sort: {rating: 2}}]`, 0, "1 or -1"},
		{"group without _id", `[{$group: {n: {$sum: 1}}}]`, 0, "_id"},
		{"unknown accumulator", `[{$group: {_id: null, n: {$median: 1}}}]`, 0, "unknown accumulator"},
		{"mixed projection", `[{$project: {title: 1, genre: 0}}]`, 0, "mix inclusion and exclusion"},
		{"unionWith without coll", `[{$unionWith: {pipeline: []}}]`, 0, "coll"},
		{"two keys in stage", `[{$limit: 1, $skip: 1}]`, 0, "exactly one key"},
		{"text search", `[{$match: {$text: {$search: "x"}}}]`, 0, "$text"},
		{"preserve empty arrays", `[{$unwind: {path: $genre, preserveNullAndEmptyArrays: true}}]`, 0, "preserveNullAndEmptyArrays"},
		{"missing pipeline", `{name: x}`, -1, "missing \"pipeline\""},
		{"switch without branches", `[{$addFields: {x: {$switch: {branches: []}}}}]`, 0, "branches"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce := parseErr(t, tt.src)
			if ce.Stage != tt.stage {
				t.Errorf("expected stage %d, got %d (%v)", tt.stage, ce.Stage, ce)
			}
			if !strings.Contains(ce.Error(), tt.msg) {
				t.Errorf("expected error containing %q, got %q", tt.msg, ce.Error())
			}
		})
	}
}

func TestParseNestedStageError(t *testing.T) {
	ce := parseErr(t, `[{$limit: 1}, {$facet: {a: [{$limit: -1}]}}]`)
	if ce.Stage != 1 || ce.Op != "$facet" {
		t.Errorf("expected error at stage 1 ($facet), got %d (%s)", ce.Stage, ce.Op)
	}
}

func TestFromYAMLKeepsOrder(t *testing.T) {
	p := mustParse(t, `[{$addFields: {z: 1, a: 2, m: 3}}]`)
	af := p.Stages[0].(*ast.AddFieldsOp)
	var names []string
	for _, a := range af.Assignments {
		names = append(names, a.Field)
	}
	if strings.Join(names, "") != "zam" {
		t.Errorf("expected order z,a,m, got %v", names)
	}
}
