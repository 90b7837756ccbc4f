// Package reports is the catalog of named report pipelines. Built-in reports
// are embedded YAML definitions; more can be loaded from a directory.
package reports

import (
	"crypto/sha256"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/razeghi71/streamagg/ast"
	"github.com/razeghi71/streamagg/parser"
)

//go:embed definitions/*.yaml
var definitions embed.FS

var ErrNotFound = errors.New("report not found")

// Report is a parsed, fingerprinted pipeline definition.
type Report struct {
	Name        string
	Description string
	Source      string
	Pipeline    *ast.Pipeline
	// Fingerprint is the SHA-256 of the raw definition file.
	Fingerprint string
	Origin      string
}

type Catalog struct {
	reports map[string]*Report
}

// Builtin returns a catalog of the embedded reports.
func Builtin() (*Catalog, error) {
	c := &Catalog{reports: make(map[string]*Report)}
	if err := c.load(definitions, "definitions"); err != nil {
		return nil, err
	}
	return c, nil
}

// AddDir loads every *.yaml / *.yml file in dir. A missing directory is not
// an error. Names must not clash with reports already in the catalog.
func (c *Catalog) AddDir(dir string) error {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("report dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("report path %q is not a directory", dir)
	}
	return c.load(os.DirFS(dir), ".")
}

func (c *Catalog) load(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("reading report dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}
		file := path.Join(dir, e.Name())
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return fmt.Errorf("reading report file %s: %w", file, err)
		}
		r, err := parse(data, e.Name())
		if err != nil {
			return err
		}
		if _, exists := c.reports[r.Name]; exists {
			return fmt.Errorf("report %q: duplicate report name (check %s)", r.Name, e.Name())
		}
		c.reports[r.Name] = r
	}
	return nil
}

func parse(data []byte, filename string) (*Report, error) {
	p, err := parser.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("report file %s: %w", filename, err)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filename, path.Ext(filename))
	}
	if p.Source == "" {
		return nil, fmt.Errorf("report %q: source must not be empty", p.Name)
	}
	return &Report{
		Name:        p.Name,
		Description: p.Description,
		Source:      p.Source,
		Pipeline:    p,
		Fingerprint: fmt.Sprintf("%x", sha256.Sum256(data)),
		Origin:      filename,
	}, nil
}

// Get returns the named report.
func (c *Catalog) Get(name string) (*Report, error) {
	r, ok := c.reports[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return r, nil
}

// List returns every report sorted by name.
func (c *Catalog) List() []*Report {
	out := make([]*Report, 0, len(c.reports))
	for _, r := range c.reports {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
