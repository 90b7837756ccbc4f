package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/razeghi71/streamagg/ast"
	"github.com/razeghi71/streamagg/record"
	"github.com/razeghi71/streamagg/store"
)

// Runner executes pipelines against a record source.
type Runner struct {
	src    store.Source
	logger *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger used for run lifecycle messages.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner returns a runner reading from src.
func NewRunner(src store.Source, opts ...Option) *Runner {
	r := &Runner{src: src, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the pipeline and returns every output record, or an error and
// no records.
func (r *Runner) Run(ctx context.Context, p *ast.Pipeline) ([]*record.Record, error) {
	runID := uuid.NewString()
	log := r.logger.With("run_id", runID, "pipeline", p.Name, "source", p.Source)
	start := time.Now()
	log.Debug("run started")

	c, err := r.open(ctx, p)
	if err != nil {
		log.Warn("run rejected", "error", err)
		return nil, err
	}
	out, err := record.Collect(c)
	if err != nil {
		log.Warn("run failed", "error", err, "duration", time.Since(start))
		return nil, err
	}
	log.Info("run finished", "records", len(out), "duration", time.Since(start))
	return out, nil
}

// Open validates the pipeline and returns a cursor over its output. Records
// are produced as the caller pulls them; the caller must Close the cursor.
func (r *Runner) Open(ctx context.Context, p *ast.Pipeline) (record.Cursor, error) {
	return r.open(ctx, p)
}

func (r *Runner) open(ctx context.Context, p *ast.Pipeline) (record.Cursor, error) {
	if p.Source == "" {
		return nil, &ConstructionError{Stage: -1, Err: errors.New("pipeline has no source")}
	}
	if err := r.checkSources(ctx, p); err != nil {
		return nil, err
	}
	in, err := r.fetch(ctx, p.Source)
	if err != nil {
		return nil, err
	}
	c, err := r.build(ctx, p.Stages, in)
	if err != nil {
		in.Close()
		return nil, err
	}
	return c, nil
}

// Execute runs stages over in-memory input without consulting the source
// catalog for the primary input. $unionWith stages still read from the
// runner's source.
func (r *Runner) Execute(ctx context.Context, stages []ast.Op, input []*record.Record) ([]*record.Record, error) {
	p := &ast.Pipeline{Stages: stages}
	if err := r.checkSources(ctx, p); err != nil {
		return nil, err
	}
	c, err := r.build(ctx, stages, record.SliceCursor(input))
	if err != nil {
		return nil, err
	}
	return record.Collect(c)
}

// checkSources resolves every source the pipeline reads against the catalog
// before any record is processed.
func (r *Runner) checkSources(ctx context.Context, p *ast.Pipeline) error {
	names := p.Sources()
	if len(names) == 0 {
		return nil
	}
	if r.src == nil {
		return &ConstructionError{Stage: -1, Err: fmt.Errorf("no record source configured for %q", names[0])}
	}
	catalog, err := r.src.Collections(ctx)
	if err != nil {
		return &store.SourceError{Source: names[0], Err: err}
	}
	known := make(map[string]bool, len(catalog))
	for _, n := range catalog {
		known[n] = true
	}
	for _, n := range names {
		if !known[n] {
			return &ConstructionError{Stage: -1, Err: fmt.Errorf("unknown source %q", n)}
		}
	}
	return nil
}

func (r *Runner) fetch(ctx context.Context, name string) (record.Cursor, error) {
	c, err := r.src.Fetch(ctx, name)
	if err != nil {
		var se *store.SourceError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, &store.SourceError{Source: name, Err: err}
	}
	return store.WrapCursor(name, c), nil
}

// build wires each stage's executor to the output of the previous one.
func (r *Runner) build(ctx context.Context, ops []ast.Op, in record.Cursor) (record.Cursor, error) {
	sub := func(ops []ast.Op, in record.Cursor) (record.Cursor, error) {
		return r.build(ctx, ops, in)
	}
	current := in
	for i, op := range ops {
		s := stage{index: i, op: op.Name()}
		switch o := op.(type) {
		case *ast.UnwindOp:
			current = &streamCursor{in: current, fn: execUnwind(o)}
		case *ast.MatchOp:
			current = &streamCursor{in: current, fn: execMatch(o, s)}
		case *ast.AddFieldsOp:
			current = &streamCursor{in: current, fn: execAddFields(o, s)}
		case *ast.ProjectOp:
			current = &streamCursor{in: current, fn: execProject(o, s)}
		case *ast.GroupOp:
			current = &materialCursor{in: current, fn: execGroup(o, s)}
		case *ast.SortOp:
			current = &materialCursor{in: current, fn: execSort(o)}
		case *ast.LimitOp:
			current = &limitCursor{in: current, n: o.N}
		case *ast.SkipOp:
			current = &skipCursor{in: current, n: o.N}
		case *ast.CountOp:
			current = &materialCursor{in: current, fn: execCount(o)}
		case *ast.FacetOp:
			current = &materialCursor{in: current, fn: execFacet(o, s, sub)}
		case *ast.UnionWithOp:
			current = &concatCursor{
				first: current,
				open: func() (record.Cursor, error) {
					src, err := r.fetch(ctx, o.Source)
					if err != nil {
						return nil, err
					}
					c, err := r.build(ctx, o.Pipeline, src)
					if err != nil {
						src.Close()
						return nil, err
					}
					return c, nil
				},
				onErr: func(err error) error { return nestError(s.index, s.op, err) },
			}
		default:
			return nil, &ConstructionError{Stage: i, Err: fmt.Errorf("unknown stage type %T", op)}
		}
	}
	return current, nil
}
