package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/razeghi71/streamagg/ast"
	"github.com/razeghi71/streamagg/config"
	"github.com/razeghi71/streamagg/engine"
	"github.com/razeghi71/streamagg/ingest"
	"github.com/razeghi71/streamagg/parser"
	"github.com/razeghi71/streamagg/record"
	"github.com/razeghi71/streamagg/report"
	"github.com/razeghi71/streamagg/reports"
	"github.com/razeghi71/streamagg/store"
)

const usage = `usage: streamagg [-config file] [-format table|json|jsonl|yaml] [-envelope] <command> [args]

commands:
  list                    list the available reports
  run [report...]         run reports (all of them when none are named)
  query [-source name] [-extjson] <pipeline file>
                          run an ad hoc pipeline definition
  import <legacy.json>    convert {movies, series} JSON and store content, movies and series
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	cfg    *config.Config
	format report.Format
	out    io.Writer
	logger *slog.Logger
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("streamagg", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "", "YAML config file")
	format := fs.String("format", "", "output format (overrides output.format)")
	envelope := fs.Bool("envelope", false, "wrap results in a report envelope")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *format != "" {
		cfg.Output.Format = *format
	}
	if *envelope {
		cfg.Output.Envelope = true
	}
	f, err := report.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}

	logger := cfg.Log.NewLogger(stderr)
	slog.SetDefault(logger)
	a := &app{cfg: cfg, format: f, out: stdout, logger: logger}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "list":
		return a.list()
	case "run":
		return a.run(ctx, rest)
	case "query":
		return a.query(ctx, rest)
	case "import":
		return a.importLegacy(ctx, rest)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) catalog() (*reports.Catalog, error) {
	c, err := reports.Builtin()
	if err != nil {
		return nil, err
	}
	if a.cfg.Reports.Dir != "" {
		if err := c.AddDir(a.cfg.Reports.Dir); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (a *app) openStore(ctx context.Context) (store.Store, error) {
	s := a.cfg.Store
	return store.Open(ctx, store.Options{
		Driver:   s.Driver,
		DSN:      s.DSN,
		Database: s.Database,
		Dir:      s.Dir,
		Files:    s.Files,
	})
}

func (a *app) list() error {
	c, err := a.catalog()
	if err != nil {
		return err
	}
	var rows []*record.Record
	for _, r := range c.List() {
		rows = append(rows, record.Of(
			record.F("name", record.StrVal(r.Name)),
			record.F("source", record.StrVal(r.Source)),
			record.F("stages", record.IntVal(int64(len(r.Pipeline.Stages)))),
			record.F("description", record.StrVal(r.Description)),
		))
	}
	return report.Write(a.out, a.format, rows)
}

type result struct {
	name        string
	fingerprint string
	records     []*record.Record
}

func (a *app) run(ctx context.Context, names []string) error {
	c, err := a.catalog()
	if err != nil {
		return err
	}
	var selected []*reports.Report
	if len(names) == 0 {
		selected = c.List()
	}
	for _, name := range names {
		r, err := c.Get(name)
		if err != nil {
			return err
		}
		selected = append(selected, r)
	}

	src, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer src.Close()
	runner := engine.NewRunner(src, engine.WithLogger(a.logger))

	results := make([]result, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Run.Parallelism)
	for i, r := range selected {
		i, r := i, r
		g.Go(func() error {
			recs, err := runner.Run(gctx, r.Pipeline)
			if err != nil {
				return fmt.Errorf("report %q: %w", r.Name, err)
			}
			results[i] = result{name: r.Name, fingerprint: r.Fingerprint, records: recs}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return a.write(results)
}

func (a *app) query(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	source := fs.String("source", "", "primary source (overrides the definition)")
	extJSON := fs.Bool("extjson", false, "parse the file as MongoDB Extended JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("query expects exactly one pipeline file")
	}
	path := fs.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var p *ast.Pipeline
	if *extJSON {
		p, err = parser.ParseExtJSON(data)
	} else {
		p, err = parser.Parse(data)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if *source != "" {
		p.Source = *source
	}
	if p.Name == "" {
		p.Name = filepath.Base(path)
	}

	src, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer src.Close()

	recs, err := engine.NewRunner(src, engine.WithLogger(a.logger)).Run(ctx, p)
	if err != nil {
		return err
	}
	return a.write([]result{{name: p.Name, records: recs}})
}

func (a *app) importLegacy(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("import expects exactly one JSON file")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	res, err := ingest.Convert(data)
	if err != nil {
		return err
	}

	if a.cfg.Store.Driver == "file" && a.cfg.Store.Dir != "" {
		if err := os.MkdirAll(a.cfg.Store.Dir, 0o755); err != nil {
			return err
		}
	}
	dst, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer dst.Close()

	cols := res.Collections()
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)
	start := time.Now()
	for _, name := range names {
		if err := dst.Replace(ctx, name, cols[name]); err != nil {
			return err
		}
		a.logger.Info("collection imported", "collection", name, "records", len(cols[name]))
	}
	a.logger.Info("import finished", "movies", len(res.Movies), "series", len(res.Series), "duration", time.Since(start))
	return nil
}

func (a *app) write(results []result) error {
	for _, r := range results {
		if a.cfg.Output.Envelope {
			if err := report.NewEnvelope(r.name, r.fingerprint, r.records).Write(a.out, a.format); err != nil {
				return err
			}
			continue
		}
		if len(results) > 1 && a.format == report.Table {
			fmt.Fprintf(a.out, "== %s ==\n", r.name)
		}
		if err := report.Write(a.out, a.format, r.records); err != nil {
			return err
		}
	}
	return nil
}
