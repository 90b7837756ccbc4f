package engine

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/razeghi71/streamagg/ast"
	"github.com/razeghi71/streamagg/record"
)

// stage carries the position of an executor for error reporting.
type stage struct {
	index int
	op    string
}

// evalError attributes err to r within this stage. n is the 0-based position
// of r in the stage input, used when r has no identity field.
func (s stage) evalError(r *record.Record, n int, field string, err error) error {
	id := r.Identity()
	if id == "" {
		id = "#" + strconv.Itoa(n)
	}
	return &EvaluationError{Stage: s.index, Op: s.op, Record: id, Field: field, Err: err}
}

// streamCursor applies fn to each input record; fn returns zero or more
// output records. Used by every stage that does not need its whole input.
type streamCursor struct {
	in   record.Cursor
	fn   func(r *record.Record, n int) ([]*record.Record, error)
	buf  []*record.Record
	cur  *record.Record
	n    int
	err  error
	done bool
}

func (c *streamCursor) Next() bool {
	for {
		if len(c.buf) > 0 {
			c.cur, c.buf = c.buf[0], c.buf[1:]
			return true
		}
		if c.done {
			c.cur = nil
			return false
		}
		if !c.in.Next() {
			c.err = c.in.Err()
			c.done = true
			continue
		}
		out, err := c.fn(c.in.Record(), c.n)
		c.n++
		if err != nil {
			c.err = err
			c.done = true
			continue
		}
		c.buf = out
	}
}

func (c *streamCursor) Record() *record.Record { return c.cur }
func (c *streamCursor) Err() error             { return c.err }
func (c *streamCursor) Close() error           { return c.in.Close() }

// materialCursor drains its whole input on the first call to Next and
// iterates over the result of fn.
type materialCursor struct {
	in     record.Cursor
	fn     func(recs []*record.Record) ([]*record.Record, error)
	out    []*record.Record
	pos    int
	loaded bool
	err    error
}

func (c *materialCursor) Next() bool {
	if !c.loaded {
		c.loaded = true
		c.pos = -1
		var recs []*record.Record
		for c.in.Next() {
			recs = append(recs, c.in.Record())
		}
		if err := c.in.Err(); err != nil {
			c.err = err
			return false
		}
		c.out, c.err = c.fn(recs)
		if c.err != nil {
			c.out = nil
			return false
		}
	}
	if c.pos+1 >= len(c.out) {
		c.pos = len(c.out)
		return false
	}
	c.pos++
	return true
}

func (c *materialCursor) Record() *record.Record {
	if c.pos < 0 || c.pos >= len(c.out) {
		return nil
	}
	return c.out[c.pos]
}

func (c *materialCursor) Err() error   { return c.err }
func (c *materialCursor) Close() error { return c.in.Close() }

type limitCursor struct {
	in   record.Cursor
	n    int64
	seen int64
}

func (c *limitCursor) Next() bool {
	if c.seen >= c.n || !c.in.Next() {
		return false
	}
	c.seen++
	return true
}

func (c *limitCursor) Record() *record.Record { return c.in.Record() }
func (c *limitCursor) Err() error             { return c.in.Err() }
func (c *limitCursor) Close() error           { return c.in.Close() }

type skipCursor struct {
	in      record.Cursor
	n       int64
	skipped bool
}

func (c *skipCursor) Next() bool {
	if !c.skipped {
		c.skipped = true
		for i := int64(0); i < c.n; i++ {
			if !c.in.Next() {
				return false
			}
		}
	}
	return c.in.Next()
}

func (c *skipCursor) Record() *record.Record { return c.in.Record() }
func (c *skipCursor) Err() error             { return c.in.Err() }
func (c *skipCursor) Close() error           { return c.in.Close() }

// concatCursor yields every record of first, then opens and drains second.
type concatCursor struct {
	first  record.Cursor
	open   func() (record.Cursor, error)
	second record.Cursor
	onErr  func(error) error
	err    error
}

func (c *concatCursor) Next() bool {
	if c.second == nil {
		if c.first.Next() {
			return true
		}
		if err := c.first.Err(); err != nil {
			c.err = err
			return false
		}
		if c.err != nil {
			return false
		}
		sub, err := c.open()
		if err != nil {
			c.err = c.onErr(err)
			return false
		}
		c.second = sub
	}
	if c.second.Next() {
		return true
	}
	if err := c.second.Err(); err != nil {
		c.err = c.onErr(err)
	}
	return false
}

func (c *concatCursor) Record() *record.Record {
	if c.second != nil {
		return c.second.Record()
	}
	return c.first.Record()
}

func (c *concatCursor) Err() error { return c.err }

func (c *concatCursor) Close() error {
	err := c.first.Close()
	if c.second != nil {
		if err2 := c.second.Close(); err == nil {
			err = err2
		}
	}
	return err
}

func execUnwind(o *ast.UnwindOp) func(*record.Record, int) ([]*record.Record, error) {
	return func(r *record.Record, _ int) ([]*record.Record, error) {
		v := r.GetPath(o.Path)
		if v.Type != record.TypeArray || len(v.Arr) == 0 {
			return nil, nil
		}
		out := make([]*record.Record, len(v.Arr))
		for i, el := range v.Arr {
			nr := r.Clone()
			nr.SetPath(o.Path, el)
			if o.IndexField != "" {
				nr.SetPath(o.IndexField, record.IntVal(int64(i)))
			}
			out[i] = nr
		}
		return out, nil
	}
}

func execMatch(o *ast.MatchOp, s stage) func(*record.Record, int) ([]*record.Record, error) {
	return func(r *record.Record, n int) ([]*record.Record, error) {
		v, err := Eval(o.Predicate, NewContext(r))
		if err != nil {
			return nil, s.evalError(r, n, "", err)
		}
		if !v.Truthy() {
			return nil, nil
		}
		return []*record.Record{r}, nil
	}
}

func execAddFields(o *ast.AddFieldsOp, s stage) func(*record.Record, int) ([]*record.Record, error) {
	return func(r *record.Record, n int) ([]*record.Record, error) {
		ctx := NewContext(r)
		vals := make([]record.Value, len(o.Assignments))
		for i, a := range o.Assignments {
			v, err := Eval(a.Expr, ctx)
			if err != nil {
				return nil, s.evalError(r, n, a.Field, err)
			}
			vals[i] = v
		}
		nr := r.Clone()
		for i, a := range o.Assignments {
			if vals[i].IsMissing() {
				continue
			}
			nr.SetPath(a.Field, vals[i])
		}
		return []*record.Record{nr}, nil
	}
}

func execProject(o *ast.ProjectOp, s stage) func(*record.Record, int) ([]*record.Record, error) {
	return func(r *record.Record, n int) ([]*record.Record, error) {
		// {_id: 1} alone is an inclusion; {_id: 0} alone is an exclusion
		if len(o.Exclude) > 0 || (len(o.Include) == 0 && len(o.Computed) == 0 && o.SuppressID) {
			nr := r.Clone()
			for _, f := range o.Exclude {
				nr.DeletePath(f)
			}
			if o.SuppressID {
				nr.Delete("_id")
			}
			return []*record.Record{nr}, nil
		}

		ctx := NewContext(r)
		nr := record.New()
		if !o.SuppressID {
			nr.Set("_id", r.Get("_id"))
		}
		for _, f := range o.Include {
			nr.SetPath(f, r.GetPath(f))
		}
		for _, a := range o.Computed {
			v, err := Eval(a.Expr, ctx)
			if err != nil {
				return nil, s.evalError(r, n, a.Field, err)
			}
			nr.SetPath(a.Field, v)
		}
		return []*record.Record{nr}, nil
	}
}

type group struct {
	key  record.Value
	accs []accumulator
}

func execGroup(o *ast.GroupOp, s stage) func([]*record.Record) ([]*record.Record, error) {
	return func(recs []*record.Record) ([]*record.Record, error) {
		var groups []*group
		index := make(map[string]*group)
		for n, r := range recs {
			ctx := NewContext(r)
			key, err := Eval(o.Key, ctx)
			if err != nil {
				return nil, s.evalError(r, n, "_id", err)
			}
			if key.IsMissing() {
				key = record.Null()
			}
			k := record.Key(key)
			g, ok := index[k]
			if !ok {
				g = &group{key: key, accs: make([]accumulator, len(o.Accumulators))}
				for i, a := range o.Accumulators {
					acc, err := newAccumulator(a.Op)
					if err != nil {
						return nil, s.evalError(r, n, a.Field, err)
					}
					g.accs[i] = acc
				}
				index[k] = g
				groups = append(groups, g)
			}
			for i, a := range o.Accumulators {
				v, err := Eval(a.Expr, ctx)
				if err != nil {
					return nil, s.evalError(r, n, a.Field, err)
				}
				g.accs[i].add(v)
			}
		}

		out := make([]*record.Record, len(groups))
		for i, g := range groups {
			r := record.New()
			r.Set("_id", g.key)
			for j, a := range o.Accumulators {
				r.Set(a.Field, g.accs[j].result())
			}
			out[i] = r
		}
		return out, nil
	}
}

func execSort(o *ast.SortOp) func([]*record.Record) ([]*record.Record, error) {
	return func(recs []*record.Record) ([]*record.Record, error) {
		out := make([]*record.Record, len(recs))
		copy(out, recs)
		sort.SliceStable(out, func(i, j int) bool {
			return compareByKeys(o.Keys, record.RecordVal(out[i]), record.RecordVal(out[j])) < 0
		})
		return out, nil
	}
}

func execCount(o *ast.CountOp) func([]*record.Record) ([]*record.Record, error) {
	return func(recs []*record.Record) ([]*record.Record, error) {
		if len(recs) == 0 {
			return nil, nil
		}
		return []*record.Record{record.Of(record.F(o.Field, record.IntVal(int64(len(recs)))))}, nil
	}
}

// execFacet runs every sub-pipeline over the same materialized input and
// returns a single record holding each result under the facet name.
func execFacet(o *ast.FacetOp, s stage, build func(ops []ast.Op, in record.Cursor) (record.Cursor, error)) func([]*record.Record) ([]*record.Record, error) {
	return func(recs []*record.Record) ([]*record.Record, error) {
		out := record.New()
		for _, f := range o.Facets {
			c, err := build(f.Pipeline, record.SliceCursor(recs))
			if err != nil {
				return nil, err
			}
			res, err := record.Collect(c)
			if err != nil {
				return nil, nestError(s.index, s.op, fmt.Errorf("facet %q: %w", f.Name, err))
			}
			vals := make([]record.Value, len(res))
			for i, r := range res {
				vals[i] = record.RecordVal(r)
			}
			out.Set(f.Name, record.ArrayVal(vals))
		}
		return []*record.Record{out}, nil
	}
}
